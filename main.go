package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/launchdarkly/httpd-contract-tests/dut"
	"github.com/launchdarkly/httpd-contract-tests/dutests"
	"github.com/launchdarkly/httpd-contract-tests/framework"
	"github.com/launchdarkly/httpd-contract-tests/logging"
)

const targetWaitTimeout = time.Second * 10

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	var params commandParams
	if !params.Read(args, errOut) {
		return 1
	}

	mainDebugLogger := logging.NullLogger()
	if params.debugAll {
		mainDebugLogger = log.New(out, "", log.LstdFlags)
	}

	config := params.config
	if params.emulate {
		server, err := dut.Start("127.0.0.1:0", dut.Config{
			MaxSessions:       config.MaxSessions,
			LeftoverPrefixLen: config.LeftoverPrefixLen,
			Logger:            logging.WithPrefix(mainDebugLogger, "[emulated device] "),
		})
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer server.Close()
		config.Host = server.Addr().IP.String()
		config.Port = server.Addr().Port
	}
	config = config.WithDefaults()

	if err := framework.AwaitTarget(config.Addr(), targetWaitTimeout, out); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	fmt.Fprintln(out)
	printConfig(out, config)
	framework.PrintFilterDescription(out, params.filters)

	fmt.Fprintln(out, "Running test suite")

	testLogger := &ConsoleTestLogger{
		Out:                  out,
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}

	results := dutests.RunTestSuite(config, params.filters.AsFilter, testLogger)

	fmt.Fprintln(out)
	framework.PrintResults(out, results)
	if !results.OK() {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "To run only the failed tests:")
		fmt.Fprintf(out, "  %s\n", params.rerunCommand(args[0], results.Failures))
		return 1
	}
	return 0
}

func printConfig(out io.Writer, config dutests.Config) {
	fmt.Fprintf(out, "Device under test: %s\n", config.BaseURL())
	if config.IPv6Host != "" {
		fmt.Fprintf(out, "IPv6 address: %s (not tested)\n", config.IPv6Host)
	}
	fmt.Fprintf(out, "Sessions: %d\n", config.MaxSessions)
	if t := config.ReadTimeout(); t > 0 {
		fmt.Fprintf(out, "Read timeout: %s\n", t)
	} else {
		fmt.Fprintln(out, "Read timeout: none")
	}
	if d := config.PipelineDelay(); d > 0 {
		fmt.Fprintf(out, "Pipeline delay: %s\n", d)
	}
	fmt.Fprintln(out)
}
