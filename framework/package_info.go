// Package framework contains the low-level implementation of test harness infrastructure
// that is not specific to any one device under test.
//
// There is a general notion of a test context which is similar to Go's *testing.T, allowing
// pieces of test logic to be associated with a test identifier, to accumulate success/failure
// results, and to register cleanup actions that run however the test ends. Tests are selected
// with regex filters and reported through a TestLogger.
//
// The domain-specific code that knows what is being tested builds its own test API on top of
// Context.
package framework
