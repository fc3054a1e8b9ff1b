package framework

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/launchdarkly/httpd-contract-tests/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTestLogger struct {
	events []string
}

func (r *recordingTestLogger) TestStarted(id TestID) {
	r.events = append(r.events, "start "+id.String())
}

func (r *recordingTestLogger) TestError(id TestID, err error) {
	r.events = append(r.events, "error "+id.String()+": "+err.Error())
}

func (r *recordingTestLogger) TestFinished(id TestID, failed bool, debugOutput logging.CapturedOutput) {
	r.events = append(r.events, fmt.Sprintf("finish %s failed=%t debug=%d", id, failed, len(debugOutput)))
}

func (r *recordingTestLogger) TestSkipped(id TestID, reason string) {
	r.events = append(r.events, "skip "+id.String()+" ("+reason+")")
}

func TestPassingTest(t *testing.T) {
	logger := &recordingTestLogger{}
	results := Run(nil, logger, func(c *Context) {
		c.Run("a", func(c *Context) {
			c.Debug("some %s", "detail")
		})
	})
	assert.True(t, results.OK())
	require.Len(t, results.Tests, 1)
	assert.Equal(t, "a", results.Tests[0].TestID.String())
	assert.Equal(t, []string{"start a", "finish a failed=false debug=1"}, logger.events)
}

func TestErrorfDoesNotStopTest(t *testing.T) {
	reachedEnd := false
	results := Run(nil, nil, func(c *Context) {
		c.Run("a", func(c *Context) {
			c.Errorf("bad value %d", 3)
			reachedEnd = true
		})
	})
	assert.True(t, reachedEnd)
	require.Len(t, results.Failures, 1)
	require.Len(t, results.Failures[0].Errors, 1)
	assert.Equal(t, "bad value 3", results.Failures[0].Errors[0].Error())
}

func TestRequireFailureStopsOnlyThatTest(t *testing.T) {
	var ran []string
	results := Run(nil, nil, func(c *Context) {
		c.Run("first", func(c *Context) {
			require.Equal(c, 1, 2)
			ran = append(ran, "unreachable")
		})
		c.Run("second", func(c *Context) {
			ran = append(ran, "second")
		})
	})
	assert.Equal(t, []string{"second"}, ran)
	require.Len(t, results.Failures, 1)
	assert.Equal(t, "first", results.Failures[0].TestID.String())
	assert.Len(t, results.Tests, 2)
}

func TestPanicIsReportedAsFailure(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("a", func(c *Context) {
			panic("boom")
		})
	})
	require.Len(t, results.Failures, 1)
	require.Len(t, results.Failures[0].Errors, 1)
	assert.Contains(t, results.Failures[0].Errors[0].Error(), "unexpected panic in test: boom")
}

func TestFailNowWithoutMessage(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("a", func(c *Context) { c.FailNow() })
	})
	require.Len(t, results.Failures, 1)
	assert.Equal(t, "test failed with no failure message", results.Failures[0].Errors[0].Error())
}

func TestSkip(t *testing.T) {
	logger := &recordingTestLogger{}
	results := Run(nil, logger, func(c *Context) {
		c.Run("a", func(c *Context) {
			c.SkipWithReason("not today")
		})
	})
	assert.True(t, results.OK())
	require.Len(t, results.Tests, 1)
	assert.True(t, results.Tests[0].Skipped)
	assert.Equal(t, []string{"start a", "skip a (not today)"}, logger.events)
}

func TestSubtestIDs(t *testing.T) {
	var ids []string
	Run(nil, nil, func(c *Context) {
		c.Run("outer", func(c *Context) {
			c.Run("inner 1", func(c *Context) { ids = append(ids, c.ID().String()) })
			c.Run("inner 2", func(c *Context) { ids = append(ids, c.ID().String()) })
		})
	})
	assert.Equal(t, []string{"outer/inner 1", "outer/inner 2"}, ids)
}

func TestFilterExcludesTests(t *testing.T) {
	var filters RegexFilters
	require.NoError(t, filters.MustNotMatch.Set("^b$"))
	var ran []string
	logger := &recordingTestLogger{}
	Run(filters.AsFilter, logger, func(c *Context) {
		c.Run("a", func(c *Context) { ran = append(ran, "a") })
		c.Run("b", func(c *Context) { ran = append(ran, "b") })
	})
	assert.Equal(t, []string{"a"}, ran)
	assert.Contains(t, logger.events, "skip b (excluded by filter parameters)")
}

func TestDeferredFunctionsRunInReverseOrderOnEveryPath(t *testing.T) {
	for _, outcome := range []string{"pass", "fail", "panic", "skip"} {
		t.Run(outcome, func(t *testing.T) {
			var calls []int
			Run(nil, nil, func(c *Context) {
				c.Run("a", func(c *Context) {
					c.Defer(func() { calls = append(calls, 1) })
					c.Defer(func() { calls = append(calls, 2) })
					switch outcome {
					case "fail":
						c.FailNow()
					case "panic":
						panic(errors.New("oops"))
					case "skip":
						c.Skip()
					}
				})
			})
			assert.Equal(t, []int{2, 1}, calls)
		})
	}
}

func TestPanicInDeferredFunctionDoesNotStopOtherCleanups(t *testing.T) {
	called := false
	logger := &recordingTestLogger{}
	results := Run(nil, logger, func(c *Context) {
		c.Run("a", func(c *Context) {
			c.Defer(func() { called = true })
			c.Defer(func() { panic("cleanup failed") })
		})
	})
	assert.True(t, called)
	assert.True(t, results.OK())
	assert.Contains(t, logger.events, "finish a failed=false debug=1")
}

func TestReformatErrorDropsTestifyTrace(t *testing.T) {
	input := "\n\tError Trace:\tapi.go:10\n\t            \t\ttests.go:20\n\tError:      \tNot equal: \n\t            \texpected: 1\n\t            \tactual  : 2\n"
	out := reformatError(errors.New(input)).Error()
	assert.NotContains(t, out, "Error Trace")
	assert.NotContains(t, out, "api.go")
	assert.True(t, strings.HasPrefix(out, "Error:"))
	assert.Contains(t, out, "expected: 1")
}

func TestResultCounts(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("pass", func(c *Context) {})
		c.Run("fail", func(c *Context) { c.Errorf("x") })
		c.Run("skip", func(c *Context) { c.Skip() })
	})
	passed, failed, skipped := results.Counts()
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)
	assert.False(t, results.OK())
}

func TestSkipAfterFailureCountsAsFailure(t *testing.T) {
	logger := &recordingTestLogger{}
	results := Run(nil, logger, func(c *Context) {
		c.Run("a", func(c *Context) {
			c.Errorf("bad")
			c.Skip()
		})
	})
	passed, failed, skipped := results.Counts()
	assert.Equal(t, 0, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, skipped)
	require.Len(t, results.Tests, 1)
	assert.False(t, results.Tests[0].Skipped)
	assert.Contains(t, logger.events, "finish a failed=true debug=0")

	var buf bytes.Buffer
	PrintResults(&buf, results)
	assert.Contains(t, buf.String(), "(0 passed, 1 failed, 0 skipped)")
}

func TestAwaitTarget(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()

	var out strings.Builder
	assert.NoError(t, AwaitTarget(addr, 0, &out))
	assert.Contains(t, out.String(), addr)

	require.NoError(t, listener.Close())
	err = AwaitTarget(addr, time.Millisecond*200, &out)
	require.Error(t, err)
	var opErr *net.OpError
	assert.True(t, errors.As(err, &opErr))
}
