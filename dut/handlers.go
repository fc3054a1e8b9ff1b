package dut

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
)

const (
	helloText     = "Hello World!"
	notFoundText  = "This URI doesn't exist"
	typeJSON      = "application/json"
	typeHTML      = "text/html"
	echoMaxBytes  = 100
	adderMaxBytes = 10
)

type adderContextKey struct{}

// adderState is the per-connection accumulator for /adder. A new one is attached to the context
// of every accepted connection, so it lives exactly as long as the connection.
type adderState struct {
	sum  int
	lock sync.Mutex
}

func withAdderState(ctx context.Context) context.Context {
	return context.WithValue(ctx, adderContextKey{}, &adderState{})
}

func contentTypeHeader(contentType string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", contentType)
	return h
}

func notFoundHandler() http.Handler {
	return httphelpers.HandlerWithResponse(http.StatusNotFound, contentTypeHeader(typeHTML), []byte(notFoundText))
}

// routes returns the emulator's URI table. Lookups are exact, which is simpler than the
// device's longest-prefix match but agrees with it on every URI the tests use. A method that is
// not registered for a URI gets the same 404 response as an unknown URI.
func routes(leftoverPrefixLen int) map[string]http.Handler {
	notFound := notFoundHandler()
	onlyFor := func(method string, h http.Handler) http.Handler {
		return httphelpers.HandlerForMethod(method, h, notFound)
	}
	echo := http.HandlerFunc(echoHandler)
	return map[string]http.Handler{
		"/hello": onlyFor("GET",
			httphelpers.HandlerWithResponse(http.StatusOK, contentTypeHeader(typeJSON), []byte(helloText))),
		"/hello/type_html": onlyFor("GET",
			httphelpers.HandlerWithResponse(http.StatusOK, contentTypeHeader(typeHTML), []byte(helloText))),
		"/hello/status_500": onlyFor("GET",
			httphelpers.HandlerWithResponse(http.StatusInternalServerError, contentTypeHeader(typeJSON), []byte(helloText))),
		"/echo":          httphelpers.HandlerForMethod("POST", echo, onlyFor("PUT", echo)),
		"/adder":         onlyFor("POST", http.HandlerFunc(adderHandler)),
		"/leftover_data": onlyFor("POST", leftoverDataHandler(leftoverPrefixLen)),
	}
}

func writeText(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// echoHandler returns the first part of the request body, like the device's fixed-size receive
// buffer does.
func echoHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, echoMaxBytes))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeText(w, http.StatusOK, typeJSON, data)
}

// adderHandler adds the posted number to the connection's running total and returns the total.
// As with atoi, anything that is not a number counts as zero.
func adderHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, adderMaxBytes))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))

	state, ok := r.Context().Value(adderContextKey{}).(*adderState)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	state.lock.Lock()
	state.sum += val
	sum := state.sum
	state.lock.Unlock()

	writeText(w, http.StatusOK, typeJSON, []byte(strconv.Itoa(sum)))
}

// leftoverDataHandler echoes only the first prefixLen bytes of the body and leaves the rest
// unread, so the server has to discard it before the next request on the connection.
func leftoverDataHandler(prefixLen int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, prefixLen)
		n, err := io.ReadFull(r.Body, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeText(w, http.StatusOK, typeJSON, buf[:n])
	})
}
