package dutests

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/launchdarkly/httpd-contract-tests/framework"
	"github.com/launchdarkly/httpd-contract-tests/logging"
	"github.com/launchdarkly/httpd-contract-tests/session"

	"github.com/stretchr/testify/require"
)

// T represents a test or subtest in the device test suite.
//
// It implements the same basic functionality as Go's testing.T, but in an environment that is
// outside of the Go test runner, and with some extra features such as debug logging and deferred
// cleanup. Those features are provided by our lower-level framework package.
//
// It also knows how to reach the device under test, either through a raw Session or through a
// standard HTTP client.
//
// To make test assertions, you can use the assert and require packages, passing the *T as if it
// were a *testing.T.
type T struct {
	context    *framework.Context
	config     Config
	httpClient *http.Client
}

func newTestScope(context *framework.Context, config Config, httpClient *http.Client) *T {
	return &T{
		context:    context,
		config:     config,
		httpClient: httpClient,
	}
}

// Errorf is called by assertions to log a test failure. It does not cause an immediate exit.
func (t *T) Errorf(format string, args ...interface{}) {
	t.context.Errorf(format, args...)
}

// FailNow is called by assertions when a test should fail and immediately exit. The methods in
// the require package call FailNow.
func (t *T) FailNow() {
	t.context.FailNow()
}

// Run runs a subtest. This is equivalent to the Run method of testing.T.
func (t *T) Run(name string, action func(*T)) {
	t.context.Run(name, func(c *framework.Context) {
		action(newTestScope(c, t.config, t.httpClient))
	})
}

// Defer schedules cleanup to run when the test ends, however it ends.
func (t *T) Defer(f func()) {
	t.context.Defer(f)
}

// Debug logs some debug output for the test. The output will be passed to the test logger at
// the end of the test.
func (t *T) Debug(format string, args ...interface{}) {
	t.context.Debug(format, args...)
}

func (t *T) DebugLogger() logging.Logger {
	return t.context.DebugLogger()
}

func (t *T) Config() Config {
	return t.config
}

func (t *T) sessionOptions(logger logging.Logger) session.Options {
	return session.Options{
		ReadTimeout: t.config.ReadTimeout(),
		Logger:      logger,
	}
}

// NewSession opens a raw session to the device. The session is closed automatically when the
// test ends. If the connection fails, the test fails and exits immediately.
func (t *T) NewSession() *session.Session {
	s, err := session.Connect(context.Background(), t.config.Host, t.config.Port, t.sessionOptions(t.DebugLogger()))
	require.NoError(t, err)
	t.Defer(func() { _ = s.Close() })
	return s
}

// RequireResponse reads the next response on the session. If it cannot be read, the test fails
// and exits immediately.
func (t *T) RequireResponse(s *session.Session) session.Response {
	resp, err := s.ReadResponse()
	require.NoError(t, err)
	return resp
}

// HTTPResponse is a response received through the standard HTTP client, with its body read.
type HTTPResponse struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// DoRequest sends one request through the standard HTTP client and reads the whole response. A
// nil body sends no body. If the request cannot be made, the test fails and exits immediately.
func (t *T) DoRequest(method, path string, body *string) HTTPResponse {
	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(*body)
	}
	req, err := http.NewRequest(method, t.config.BaseURL()+path, reader)
	require.NoError(t, err)
	t.Debug("%s %s", method, path)

	resp, err := t.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	t.Debug("status %d, Content-Type %q, body %q", resp.StatusCode, resp.Header.Get("Content-Type"), data)

	return HTTPResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: string(data)}
}
