package dutests

import (
	"net"
	"strconv"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	DefaultPort              = 80
	DefaultMaxSessions       = 8
	DefaultReadTimeoutMS     = 10000
	DefaultLeftoverPrefixLen = 10
)

// Config describes the device under test and how to exercise it. It is passed explicitly to
// every test.
type Config struct {
	// Host is the device's IPv4 address. All tests run against it.
	Host string `json:"host"`
	// IPv6Host is the device's IPv6 address, if known. It is reported but not currently tested.
	IPv6Host string `json:"ipv6Host,omitempty"`
	// Port is the device's HTTP port.
	Port int `json:"port,omitempty"`
	// MaxSessions is the number of simultaneous connections the device is configured to
	// support. The pipelining test opens exactly this many.
	MaxSessions int `json:"maxSessions,omitempty"`
	// ReadTimeoutMS bounds every read of a response. If undefined, DefaultReadTimeoutMS is used;
	// zero means wait forever.
	ReadTimeoutMS ldvalue.OptionalInt `json:"readTimeoutMs,omitempty"`
	// PipelineDelayMS is an optional pause between the pipelined requests that each session
	// sends, so that they arrive in separate TCP segments.
	PipelineDelayMS ldvalue.OptionalInt `json:"pipelineDelayMs,omitempty"`
	// LeftoverPrefixLen is the number of body bytes that the device's /leftover_data handler
	// reads and echoes. It is a property of the device firmware, not something the harness can
	// discover.
	LeftoverPrefixLen int `json:"leftoverPrefixLen,omitempty"`
}

// WithDefaults returns a copy of the configuration with unset values filled in.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if !c.ReadTimeoutMS.IsDefined() {
		c.ReadTimeoutMS = ldvalue.NewOptionalInt(DefaultReadTimeoutMS)
	}
	if c.LeftoverPrefixLen <= 0 {
		c.LeftoverPrefixLen = DefaultLeftoverPrefixLen
	}
	return c
}

func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS.OrElse(DefaultReadTimeoutMS)) * time.Millisecond
}

func (c Config) PipelineDelay() time.Duration {
	return time.Duration(c.PipelineDelayMS.OrElse(0)) * time.Millisecond
}

// Addr returns the host:port of the device.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BaseURL returns the URL prefix used by the standard HTTP client tests.
func (c Config) BaseURL() string {
	return "http://" + c.Addr()
}
