// Package session provides raw HTTP/1.1 sessions over TCP for talking to the device under test.
//
// A standard HTTP client hides the connection and always reads a response before sending the
// next request. The tests in this harness need to pipeline requests, to reuse one connection
// across requests with deliberately unread request bodies, and to see exactly what the server
// put on the wire, so they write requests and parse responses themselves with a Session.
package session
