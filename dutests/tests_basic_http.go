package dutests

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloText = "Hello World!"

func DoBasicHTTPTests(t *T) {
	t.Run("GET /hello returns 'Hello World!'", func(t *T) {
		resp := t.DoRequest("GET", "/hello", nil)
		require.Equal(t, 200, resp.StatusCode, "status_code")
		require.Equal(t, helloText, resp.Body, "data")
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"), "Content-Type")
	})

	expectStatus := func(method, path string, body *string, status int) func(*T) {
		return func(t *T) {
			resp := t.DoRequest(method, path, body)
			assert.Equal(t, status, resp.StatusCode, "status_code")
		}
	}

	expectEcho := func(method string) func(*T) {
		return func(t *T) {
			body := "Hello"
			resp := t.DoRequest(method, "/echo", &body)
			require.Equal(t, 200, resp.StatusCode, "status_code")
			assert.Equal(t, body, resp.Body, "data")
		}
	}

	hello := "Hello"

	t.Run("POST /hello returns 404", expectStatus("POST", "/hello", &hello, 404))

	t.Run("PUT /hello returns 404", expectStatus("PUT", "/hello", &hello, 404))

	t.Run("POST /echo echoes data", expectEcho("POST"))

	t.Run("GET /echo returns 404", expectStatus("GET", "/echo", nil, 404))

	t.Run("PUT /echo echoes data", expectEcho("PUT"))

	t.Run("GET /hello/type_html has Content-Type of text/html", func(t *T) {
		resp := t.DoRequest("GET", "/hello/type_html", nil)
		require.Equal(t, 200, resp.StatusCode, "status_code")
		require.Equal(t, helloText, resp.Body, "data")
		assert.Equal(t, "text/html", resp.Header.Get("Content-Type"), "Content-Type")
	})

	t.Run("GET /hello/status_500 returns status 500", expectStatus("GET", "/hello/status_500", nil, 500))

	t.Run("GET /false_uri returns status 404", expectStatus("GET", "/false_uri", nil, 404))
}
