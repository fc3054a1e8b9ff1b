// Package dutests contains the contract tests for the device under test and their supporting
// API.
//
// Test harness infrastructure that is not specific to the device, such as the test context,
// filters and results, is in the lower-level framework package. Raw connections to the device
// are provided by the session package.
package dutests
