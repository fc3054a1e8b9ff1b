package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/launchdarkly/httpd-contract-tests/dutests"
	"github.com/launchdarkly/httpd-contract-tests/framework"

	"github.com/alessio/shellescape"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

type commandParams struct {
	config   dutests.Config
	filters  framework.RegexFilters
	emulate  bool
	debug    bool
	debugAll bool
}

// optionalIntFlag lets a flag distinguish "not given" from an explicit zero.
type optionalIntFlag struct {
	value *ldvalue.OptionalInt
}

func (f optionalIntFlag) String() string {
	if f.value == nil || !f.value.IsDefined() {
		return ""
	}
	return strconv.Itoa(f.value.IntValue())
}

func (f optionalIntFlag) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %q", s)
	}
	if n < 0 {
		return fmt.Errorf("must not be negative: %d", n)
	}
	*f.value = ldvalue.NewOptionalInt(n)
	return nil
}

func (c *commandParams) Read(args []string, errOut io.Writer) bool {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&c.config.Host, "ipv4", "", "IPv4 address of the device under test")
	fs.StringVar(&c.config.Host, "4", "", "shorthand for -ipv4")
	fs.StringVar(&c.config.IPv6Host, "ipv6", "", "IPv6 address of the device under test (reported only)")
	fs.StringVar(&c.config.IPv6Host, "6", "", "shorthand for -ipv6")
	fs.IntVar(&c.config.Port, "port", dutests.DefaultPort, "HTTP port of the device under test")
	fs.IntVar(&c.config.MaxSessions, "max-sessions", dutests.DefaultMaxSessions,
		"number of simultaneous sessions the device supports")
	fs.Var(optionalIntFlag{&c.config.ReadTimeoutMS}, "read-timeout-ms",
		fmt.Sprintf("timeout for each response read, 0 to wait forever (default %d)", dutests.DefaultReadTimeoutMS))
	fs.Var(optionalIntFlag{&c.config.PipelineDelayMS}, "pipeline-delay-ms",
		"pause between pipelined requests in each session")
	fs.IntVar(&c.config.LeftoverPrefixLen, "leftover-prefix-len", dutests.DefaultLeftoverPrefixLen,
		"number of body bytes the device's /leftover_data handler reads")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.BoolVar(&c.emulate, "emulate", false, "run against a built-in emulation of the device")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")

	if err := fs.Parse(args[1:]); err != nil {
		return false
	}
	if err := c.validate(); err != nil {
		fmt.Fprintln(errOut, err)
		fs.Usage()
		return false
	}
	return true
}

func (c *commandParams) validate() error {
	if c.config.Host == "" && !c.emulate {
		return errors.New("-ipv4 is required unless -emulate is set")
	}
	if c.config.Port <= 0 || c.config.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.config.Port)
	}
	if c.config.MaxSessions <= 0 {
		return fmt.Errorf("-max-sessions must be at least 1, not %d", c.config.MaxSessions)
	}
	if c.config.LeftoverPrefixLen <= 0 {
		return fmt.Errorf("-leftover-prefix-len must be at least 1, not %d", c.config.LeftoverPrefixLen)
	}
	return nil
}

// rerunCommand returns a shell command line that runs only the given tests against the same
// device with the same settings.
func (c *commandParams) rerunCommand(program string, failures []framework.TestResult) string {
	var cmd commandBuilder
	cmd.add(program)
	if c.emulate {
		cmd.add("-emulate")
	} else {
		cmd.add("-ipv4", c.config.Host)
		if c.config.IPv6Host != "" {
			cmd.add("-ipv6", c.config.IPv6Host)
		}
		if c.config.Port != dutests.DefaultPort {
			cmd.add("-port", strconv.Itoa(c.config.Port))
		}
	}
	if c.config.MaxSessions != dutests.DefaultMaxSessions {
		cmd.add("-max-sessions", strconv.Itoa(c.config.MaxSessions))
	}
	if c.config.ReadTimeoutMS.IsDefined() {
		cmd.add("-read-timeout-ms", strconv.Itoa(c.config.ReadTimeoutMS.IntValue()))
	}
	if c.config.PipelineDelayMS.IsDefined() {
		cmd.add("-pipeline-delay-ms", strconv.Itoa(c.config.PipelineDelayMS.IntValue()))
	}
	if c.config.LeftoverPrefixLen != dutests.DefaultLeftoverPrefixLen {
		cmd.add("-leftover-prefix-len", strconv.Itoa(c.config.LeftoverPrefixLen))
	}
	if len(failures) > 0 {
		cmd.add("-run", failedTestsPattern(failures))
	}
	if c.debug {
		cmd.add("-debug")
	}
	if c.debugAll {
		cmd.add("-debug-all")
	}
	return cmd.String()
}

// failedTestsPattern builds a single regex that selects each failed test together with all of
// its parents, since a parent that does not match the filter is never entered.
func failedTestsPattern(failures []framework.TestResult) string {
	seen := make(map[string]bool)
	var alternatives []string
	for _, f := range failures {
		for i := 1; i <= len(f.TestID.Path); i++ {
			name := framework.TestID{Path: f.TestID.Path[:i]}.String()
			if !seen[name] {
				seen[name] = true
				alternatives = append(alternatives, regexp.QuoteMeta(name))
			}
		}
	}
	return "^(" + strings.Join(alternatives, "|") + ")$"
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}
