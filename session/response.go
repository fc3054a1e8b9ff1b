package session

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

var (
	// ErrMissingContentLength means a response had neither a Content-Length nor a chunked
	// Transfer-Encoding, so there is no way to know where its body ends.
	ErrMissingContentLength = errors.New("response has no Content-Length header")

	// ErrNoResponseHeader means ReadResponseBody was called before ReadResponseHeader.
	ErrNoResponseHeader = errors.New("no response header has been read")
)

// MalformedResponseError describes a response header that could not be parsed.
type MalformedResponseError struct {
	Problem string
	Line    string
}

func (e MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %s: %q", e.Problem, e.Line)
}

// ResponseHeader is the parsed form of a response status line and header fields.
type ResponseHeader struct {
	// Status is the status code as it appeared in the status line, such as "404".
	Status string
	// StatusCode is Status as an integer.
	StatusCode int
	// ContentLength is the value of the Content-Length header, or -1 if there was none.
	ContentLength int64
	// ContentType is the Content-Type header, or "" if there was none.
	ContentType string
	// TransferEncoding is the Transfer-Encoding header, or "" if there was none.
	TransferEncoding string
	// Header contains every header field, keyed by canonical name.
	Header http.Header
}

// Chunked returns true if the body uses chunked transfer encoding.
func (h ResponseHeader) Chunked() bool {
	return strings.EqualFold(strings.TrimSpace(h.TransferEncoding), "chunked")
}

// Response is a complete response read from a session.
type Response struct {
	ResponseHeader
	Body []byte
}

func parseResponseHeader(block []byte) (ResponseHeader, error) {
	h := ResponseHeader{ContentLength: -1, Header: make(http.Header)}

	lines := strings.Split(string(bytes.TrimRight(block, "\r\n")), "\r\n")
	statusFields := strings.Fields(lines[0])
	if len(statusFields) < 2 || !strings.HasPrefix(statusFields[0], "HTTP/") {
		return h, MalformedResponseError{Problem: "bad status line", Line: lines[0]}
	}
	code, err := strconv.Atoi(statusFields[1])
	if err != nil || len(statusFields[1]) != 3 {
		return h, MalformedResponseError{Problem: "bad status code", Line: lines[0]}
	}
	h.Status = statusFields[1]
	h.StatusCode = code

	for _, line := range lines[1:] {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return h, MalformedResponseError{Problem: "bad header line", Line: line}
		}
		name := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:colon]))
		value := strings.TrimSpace(line[colon+1:])
		h.Header.Add(name, value)

		switch name {
		case "Content-Length":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return h, MalformedResponseError{Problem: "bad Content-Length", Line: line}
			}
			h.ContentLength = n
		case "Content-Type":
			h.ContentType = value
		case "Transfer-Encoding":
			h.TransferEncoding = value
		}
	}
	return h, nil
}
