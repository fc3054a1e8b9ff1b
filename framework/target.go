package framework

import (
	"fmt"
	"io"
	"net"
	"time"
)

const targetDialTimeout = time.Second * 5

// AwaitTarget verifies that something is accepting TCP connections at the given address before
// any tests run. With a zero wait it makes exactly one attempt; otherwise it keeps trying until
// the wait has elapsed.
func AwaitTarget(addr string, wait time.Duration, output io.Writer) error {
	fmt.Fprintf(output, "Connecting to device under test at %s", addr)

	deadline := time.Now().Add(wait)
	for {
		fmt.Fprintf(output, ".")
		conn, err := net.DialTimeout("tcp", addr, targetDialTimeout)
		if err == nil {
			fmt.Fprintln(output)
			_ = conn.Close()
			return nil
		}
		if !time.Now().Before(deadline) {
			fmt.Fprintln(output)
			return fmt.Errorf("device under test is not reachable at %s: %w", addr, err)
		}
		time.Sleep(time.Millisecond * 100)
	}
}
