package dutests

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// leftoverBody is longer than the device's /leftover_data handler reads, and has a CRLF in it so
// that a server which scans the unread remainder for a request line would be fooled.
const leftoverBody = "abcdefghijklmnopqrstuvwxyz\r\nabcdefghijklmnopqrstuvwxyz"

func DoSessionTests(t *T) {
	t.Run(fmt.Sprintf("POST {pipelined} on /adder in %d sessions", t.Config().MaxSessions), DoPipelinedAdderTests)
	t.Run("leftover data in POST is purged (valid and invalid URIs)", DoLeftoverDataTests)
}

// DoPipelinedAdderTests checks that pipelining works and that the device keeps a separate
// context for each of its sessions. Every worker is reported as its own subtest.
func DoPipelinedAdderTests(t *T) {
	results := runAdderWorkers(context.Background(), t.Config(), t.DebugLogger())

	for _, r := range results {
		r := r
		t.Run(fmt.Sprintf("session %d (adding %d)", r.Index, r.ID), func(t *T) {
			require.NoError(t, r.Err)
			for i, status := range r.Statuses {
				assert.Equal(t, 200, status, "response[%d] status", i)
			}
			assert.Equal(t, r.expectedBodies(), r.Bodies, "running totals")
		})
	}
}

func DoLeftoverDataTests(t *T) {
	prefixLen := t.Config().LeftoverPrefixLen
	require.Less(t, prefixLen, len(leftoverBody), "leftover prefix length must be shorter than the test body")

	s := t.NewSession()

	requireHello := func() {
		require.NoError(t, s.SendGet("/hello"))
		resp := t.RequireResponse(s)
		require.Equal(t, 200, resp.StatusCode, "Hello World status")
		require.Equal(t, helloText, string(resp.Body), "Hello World data")
	}

	require.NoError(t, s.SendPost("/leftover_data", []byte(leftoverBody)))
	resp := t.RequireResponse(s)
	require.Equal(t, 200, resp.StatusCode, "Partial data status")
	require.Equal(t, leftoverBody[:prefixLen], string(resp.Body), "Partial data")

	requireHello()

	require.NoError(t, s.SendPost("/false_uri", []byte(leftoverBody)))
	resp = t.RequireResponse(s)
	require.Equal(t, "404", resp.Status, "False URI Status")

	requireHello()
}
