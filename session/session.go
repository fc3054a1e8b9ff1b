package session

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http/httputil"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/launchdarkly/httpd-contract-tests/logging"
)

// MaxBodyBytes is the largest response body we will read.
const MaxBodyBytes = 16 * 1024 * 1024

const defaultDialTimeout = time.Second * 10

// Options controls the behavior of a Session.
type Options struct {
	// ReadTimeout bounds each call to ReadResponseHeader or ReadResponseBody. Zero means no limit.
	ReadTimeout time.Duration
	// DialTimeout bounds Connect. Zero means a default of 10 seconds.
	DialTimeout time.Duration
	// Logger receives a line for every request sent and response received.
	Logger logging.Logger
}

// Session is a single TCP connection to the device under test, with just enough state to write
// requests and to parse responses one at a time. Unlike an http.Client, it lets the caller
// decide exactly when requests are written and responses are read, so several requests can be
// pipelined before any response is read.
//
// A Session is not safe for concurrent use.
type Session struct {
	conn        net.Conn
	reader      *bufio.Reader
	host        string
	opts        Options
	header      *ResponseHeader
	pendingBody bool
	closeOnce   sync.Once
	closeErr    error
}

// Connect opens a TCP connection to host:port. Dial errors are returned as-is apart from being
// wrapped with the address; there are no retries.
func Connect(ctx context.Context, host string, port int, opts Options) (*Session, error) {
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", addr, err)
	}
	hostHeader := host
	if port != 80 {
		hostHeader = addr
	} else if strings.Contains(host, ":") {
		hostHeader = "[" + host + "]"
	}
	return NewSession(conn, hostHeader, opts), nil
}

// NewSession wraps an existing connection. The host parameter is the value to send in the Host
// header.
func NewSession(conn net.Conn, host string, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logging.NullLogger()
	}
	return &Session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		host:   host,
		opts:   opts,
	}
}

// Host returns the value sent in the Host header.
func (s *Session) Host() string {
	return s.host
}

// SendGet writes a GET request with no body. It does not wait for a response.
func (s *Session) SendGet(path string) error {
	return s.SendRequest("GET", path, nil)
}

// SendPost writes a POST request whose Content-Length is the exact length of data. It does not
// wait for a response.
func (s *Session) SendPost(path string, data []byte) error {
	return s.SendRequest("POST", path, data)
}

// SendRequest writes a request with the given method. A Content-Length header is included
// whenever body is non-nil.
func (s *Session) SendRequest(method, path string, body []byte) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", method, path)
	fmt.Fprintf(&buf, "Host: %s\r\n", s.host)
	if body != nil {
		fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	}
	buf.WriteString("\r\n")
	buf.Write(body)

	s.opts.Logger.Printf(">> %s %s (%d body bytes)", method, path, len(body))
	if _, err := s.conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("error sending %s %s: %w", method, path, err)
	}
	return nil
}

// ReadResponseHeader reads and parses the next response's status line and header fields. The
// result is also retained by the Session; see Status, ContentLength, and related methods.
func (s *Session) ReadResponseHeader() (ResponseHeader, error) {
	if err := s.setReadDeadline(); err != nil {
		return ResponseHeader{}, err
	}
	block, err := readHeaderBlock(s.reader)
	if err != nil {
		return ResponseHeader{}, fmt.Errorf("error reading response header: %w", err)
	}
	h, err := parseResponseHeader(block)
	if err != nil {
		return ResponseHeader{}, err
	}
	s.header = &h
	s.pendingBody = true
	s.opts.Logger.Printf("<< status %s, Content-Length %d, Content-Type %q", h.Status, h.ContentLength, h.ContentType)
	return h, nil
}

// ReadResponseBody reads the body of the response whose header was just read, using
// Content-Length framing or chunked decoding. Afterward the Session is ready to read the next
// response header on the same connection.
func (s *Session) ReadResponseBody() ([]byte, error) {
	if s.header == nil || !s.pendingBody {
		return nil, ErrNoResponseHeader
	}
	if err := s.setReadDeadline(); err != nil {
		return nil, err
	}
	var body []byte
	var err error
	switch {
	case s.header.Chunked():
		body, err = s.readChunkedBody()
	case s.header.ContentLength >= 0:
		body, err = s.readFixedBody(s.header.ContentLength)
	default:
		err = ErrMissingContentLength
	}
	if err != nil {
		return nil, err
	}
	s.pendingBody = false
	s.header.ContentLength = 0
	s.opts.Logger.Printf("<< body %q", body)
	return body, nil
}

// ReadResponse reads a whole response: header, then body.
func (s *Session) ReadResponse() (Response, error) {
	h, err := s.ReadResponseHeader()
	if err != nil {
		return Response{}, err
	}
	body, err := s.ReadResponseBody()
	if err != nil {
		return Response{}, err
	}
	return Response{ResponseHeader: h, Body: body}, nil
}

func (s *Session) readFixedBody(length int64) ([]byte, error) {
	if length > MaxBodyBytes {
		return nil, fmt.Errorf("response body of %d bytes exceeds limit of %d", length, MaxBodyBytes)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(s.reader, body); err != nil {
		return nil, fmt.Errorf("error reading %d-byte response body: %w", length, err)
	}
	return body, nil
}

func (s *Session) readChunkedBody() ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(httputil.NewChunkedReader(s.reader), MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("error reading chunked response body: %w", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("chunked response body exceeds limit of %d", MaxBodyBytes)
	}
	// Trailer fields, if any, end with a blank line.
	if _, err := textproto.NewReader(s.reader).ReadMIMEHeader(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error reading chunked response trailer: %w", err)
	}
	return body, nil
}

func (s *Session) setReadDeadline() error {
	if s.opts.ReadTimeout <= 0 {
		return nil
	}
	return s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
}

// Status returns the status code string of the last response header that was read.
func (s *Session) Status() string {
	if s.header == nil {
		return ""
	}
	return s.header.Status
}

// ContentLength returns the body length declared by the last response header, or zero once
// that body has been read.
func (s *Session) ContentLength() int64 {
	if s.header == nil {
		return 0
	}
	return s.header.ContentLength
}

func (s *Session) ContentType() string {
	if s.header == nil {
		return ""
	}
	return s.header.ContentType
}

func (s *Session) TransferEncoding() string {
	if s.header == nil {
		return ""
	}
	return s.header.TransferEncoding
}

// Close closes the connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
