// Package dut is an emulation of the embedded HTTP server that the contract tests are written
// for. It exists so that the tests themselves can be exercised, and so that a test run can be
// tried out with -emulate before pointing the harness at real hardware.
//
// The emulation follows the device's documented surface: 404 for any unregistered URI or
// method, a running total for /adder kept per connection, and fixed-size
// reads in the handlers that leave the rest of a request body for the server to discard.
//
// URIs are matched exactly. The device's own router picks the longest registered prefix, so it
// would also answer "/hello/x" with the /hello handler; the emulator treats that as unknown.
package dut
