package dut

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/launchdarkly/httpd-contract-tests/logging"

	"golang.org/x/net/netutil"
)

const (
	DefaultMaxSessions       = 8
	DefaultLeftoverPrefixLen = 10

	idleTimeout = time.Second * 30
)

// Config holds the settings of an emulated device.
type Config struct {
	// MaxSessions is the number of connections the device serves at once. Further connections
	// wait until one of the open ones is closed.
	MaxSessions int
	// LeftoverPrefixLen is how many body bytes /leftover_data reads and echoes.
	LeftoverPrefixLen int
	// Logger receives a line for each request handled.
	Logger logging.Logger
}

// Server is an in-process emulation of the device under test. It serves the same URIs with the
// same behavior, so the test suite can be checked without hardware.
type Server struct {
	listener net.Listener
	server   *http.Server
	done     chan struct{}
}

// Start begins serving on addr, such as "127.0.0.1:0".
func Start(addr string, config Config) (*Server, error) {
	if config.MaxSessions <= 0 {
		config.MaxSessions = DefaultMaxSessions
	}
	if config.LeftoverPrefixLen <= 0 {
		config.LeftoverPrefixLen = DefaultLeftoverPrefixLen
	}
	if config.Logger == nil {
		config.Logger = logging.NullLogger()
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("emulated device could not listen on %s: %w", addr, err)
	}

	s := &Server{
		listener: netutil.LimitListener(listener, config.MaxSessions),
		server: &http.Server{
			Handler:     NewHandler(config),
			IdleTimeout: idleTimeout,
			ConnContext: func(ctx context.Context, c net.Conn) context.Context {
				return withAdderState(ctx)
			},
		},
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.Logger.Printf("Emulated device stopped: %s", err)
		}
	}()
	return s, nil
}

// NewHandler returns the device's request router. Requests to /adder only work when the
// handler is served by a Server, since the running total belongs to the connection.
func NewHandler(config Config) http.Handler {
	if config.LeftoverPrefixLen <= 0 {
		config.LeftoverPrefixLen = DefaultLeftoverPrefixLen
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NullLogger()
	}
	table := routes(config.LeftoverPrefixLen)
	notFound := notFoundHandler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Printf("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		if h, ok := table[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		notFound.ServeHTTP(w, r)
	})
}

// Addr returns the address the device is listening on.
func (s *Server) Addr() *net.TCPAddr {
	return s.listener.Addr().(*net.TCPAddr)
}

// Close stops the server and closes all of its connections.
func (s *Server) Close() error {
	err := s.server.Close()
	<-s.done
	return err
}
