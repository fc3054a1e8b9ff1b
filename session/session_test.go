package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/launchdarkly/httpd-contract-tests/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withPipeSession gives the test a Session on one end of an in-memory pipe, and the other end
// for playing the server's part.
func withPipeSession(t *testing.T, opts Options, action func(s *Session, server net.Conn)) {
	client, server := net.Pipe()
	s := NewSession(client, "dut.local", opts)
	defer s.Close()
	defer server.Close()
	action(s, server)
}

// writeInChunks writes data to w in pieces of the given size, from a separate goroutine since
// pipe writes block until they are read.
func writeInChunks(w io.Writer, data string, chunkSize int) {
	go func() {
		for len(data) > 0 {
			n := chunkSize
			if n > len(data) {
				n = len(data)
			}
			if _, err := w.Write([]byte(data[:n])); err != nil {
				return
			}
			data = data[n:]
		}
	}()
}

func readRequest(t *testing.T, r *bufio.Reader) *http.Request {
	req, err := http.ReadRequest(r)
	require.NoError(t, err)
	return req
}

func TestSendGet(t *testing.T) {
	withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
		go func() { _ = s.SendGet("/hello") }()
		req := readRequest(t, bufio.NewReader(server))
		assert.Equal(t, "GET", req.Method)
		assert.Equal(t, "/hello", req.URL.Path)
		assert.Equal(t, "dut.local", req.Host)
		assert.Equal(t, int64(0), req.ContentLength)
	})
}

func TestSendPostIncludesExactContentLength(t *testing.T) {
	body := "abcdefghijklmnopqrstuvwxyz\r\nabcdefghijklmnopqrstuvwxyz"
	withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
		go func() { _ = s.SendPost("/leftover_data", []byte(body)) }()
		req := readRequest(t, bufio.NewReader(server))
		assert.Equal(t, "POST", req.Method)
		assert.Equal(t, int64(len(body)), req.ContentLength)
		data, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, body, string(data))
	})
}

func TestPipelinedSendsDoNotWaitForResponses(t *testing.T) {
	withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
		done := make(chan error, 1)
		go func() {
			for i := 0; i < 3; i++ {
				if err := s.SendPost("/adder", []byte("4")); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()
		r := bufio.NewReader(server)
		for i := 0; i < 3; i++ {
			req := readRequest(t, r)
			data, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, "4", string(data))
		}
		require.NoError(t, <-done)
	})
}

func TestReadResponseRegardlessOfChunking(t *testing.T) {
	response := "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 12\r\n\r\nHello World!"
	for _, chunkSize := range []int{1, 2, 3, 4, 5, 7, 16, len(response)} {
		t.Run(strconv.Itoa(chunkSize), func(t *testing.T) {
			withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
				writeInChunks(server, response, chunkSize)

				h, err := s.ReadResponseHeader()
				require.NoError(t, err)
				assert.Equal(t, 200, h.StatusCode)
				assert.Equal(t, "200", s.Status())
				assert.Equal(t, int64(12), s.ContentLength())
				assert.Equal(t, "application/json", s.ContentType())
				assert.Equal(t, "", s.TransferEncoding())

				body, err := s.ReadResponseBody()
				require.NoError(t, err)
				assert.Equal(t, "Hello World!", string(body))
				assert.Equal(t, int64(0), s.ContentLength())
			})
		})
	}
}

func TestReadPipelinedResponsesInOrder(t *testing.T) {
	var responses string
	for _, v := range []string{"4", "8", "12"} {
		responses += "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(v)) + "\r\n\r\n" + v
	}
	withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
		writeInChunks(server, responses, 5)
		var bodies []string
		for i := 0; i < 3; i++ {
			resp, err := s.ReadResponse()
			require.NoError(t, err)
			bodies = append(bodies, string(resp.Body))
		}
		assert.Equal(t, []string{"4", "8", "12"}, bodies)
	})
}

func TestReadEmptyBody(t *testing.T) {
	withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
		writeInChunks(server, "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n", 100)
		resp, err := s.ReadResponse()
		require.NoError(t, err)
		assert.Equal(t, "404", resp.Status)
		assert.Empty(t, resp.Body)
	})
}

func TestReadChunkedBody(t *testing.T) {
	response := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nHello\r\n7\r\n World!\r\n0\r\n\r\n" +
		"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
		writeInChunks(server, response, 3)

		resp, err := s.ReadResponse()
		require.NoError(t, err)
		assert.Equal(t, "chunked", s.TransferEncoding())
		assert.Equal(t, "Hello World!", string(resp.Body))

		resp, err = s.ReadResponse()
		require.NoError(t, err)
		assert.Equal(t, "ok", string(resp.Body))
	})
}

func TestReadBodyWithoutContentLength(t *testing.T) {
	withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
		writeInChunks(server, "HTTP/1.1 200 OK\r\n\r\n", 100)
		_, err := s.ReadResponseHeader()
		require.NoError(t, err)
		_, err = s.ReadResponseBody()
		assert.True(t, errors.Is(err, ErrMissingContentLength))
	})
}

func TestReadBodyWithoutHeader(t *testing.T) {
	withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
		_, err := s.ReadResponseBody()
		assert.True(t, errors.Is(err, ErrNoResponseHeader))
	})
}

func TestReadBodyTwice(t *testing.T) {
	withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
		writeInChunks(server, "HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\nx", 100)
		_, err := s.ReadResponse()
		require.NoError(t, err)
		_, err = s.ReadResponseBody()
		assert.True(t, errors.Is(err, ErrNoResponseHeader))
	})
}

func TestConnectionClosedBeforeHeaderEnds(t *testing.T) {
	withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
		go func() {
			_, _ = server.Write([]byte("HTTP/1.1 200 OK\r\nContent-"))
			_ = server.Close()
		}()
		_, err := s.ReadResponseHeader()
		assert.True(t, errors.Is(err, ErrIncompleteHeader))
	})
}

func TestConnectionClosedDuringBody(t *testing.T) {
	withPipeSession(t, Options{}, func(s *Session, server net.Conn) {
		go func() {
			_, _ = server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nabc"))
			_ = server.Close()
		}()
		_, err := s.ReadResponseHeader()
		require.NoError(t, err)
		_, err = s.ReadResponseBody()
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	})
}

func TestReadTimeout(t *testing.T) {
	withPipeSession(t, Options{ReadTimeout: time.Millisecond * 50}, func(s *Session, server net.Conn) {
		go func() { _, _ = server.Write([]byte("HTTP/1.1 200 OK\r\n")) }()
		start := time.Now()
		_, err := s.ReadResponseHeader()
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
		assert.Less(t, int64(time.Since(start)), int64(time.Second*5))
	})
}

func TestSessionLogsTraffic(t *testing.T) {
	var logger logging.CapturingLogger
	withPipeSession(t, Options{Logger: &logger}, func(s *Session, server net.Conn) {
		go func() {
			_, _ = bufio.NewReader(server).ReadString('\n')
		}()
		require.NoError(t, s.SendGet("/hello"))
	})
	require.NotEmpty(t, logger.Output())
	assert.Equal(t, ">> GET /hello (0 body bytes)", logger.Output()[0].Message)
}

func TestCloseIsIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	s := NewSession(client, "x", Options{})
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestConnect(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port

	accepted := make(chan string, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, err := http.ReadRequest(bufio.NewReader(conn))
		if err != nil {
			return
		}
		accepted <- req.Host
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"))
	}()

	s, err := Connect(context.Background(), "127.0.0.1", port, Options{ReadTimeout: time.Second * 5})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(port), s.Host())

	require.NoError(t, s.SendGet("/"))
	resp, err := s.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, "hi", string(resp.Body))
	assert.Equal(t, s.Host(), <-accepted)
}

func TestConnectFailureIsReturned(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	_, err = Connect(context.Background(), "127.0.0.1", port, Options{})
	require.Error(t, err)
	var opErr *net.OpError
	assert.True(t, errors.As(err, &opErr))
	assert.True(t, strings.Contains(err.Error(), "could not connect"))
}
