package dutests

import (
	"net/http"

	"github.com/launchdarkly/httpd-contract-tests/framework"
)

// RunTestSuite runs every test against the device described by config.
func RunTestSuite(
	config Config,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	config = config.WithDefaults()
	httpClient := newHTTPClient(config)
	defer httpClient.CloseIdleConnections()

	return framework.Run(filter, testLogger, func(c *framework.Context) {
		t := newTestScope(c, config, httpClient)

		t.Run("basic HTTP", DoBasicHTTPTests)
		t.Run("sessions and context", DoSessionTests)
	})
}

// newHTTPClient returns the client for single-request tests. Keep-alive is disabled so that no
// idle connection stays open on the device, where it would use up one of its sessions.
func newHTTPClient(config Config) *http.Client {
	return &http.Client{
		Timeout: config.ReadTimeout(),
		Transport: &http.Transport{
			Proxy:             nil,
			DisableKeepAlives: true,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
