package oauth2

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransport_RoundTrip(t *testing.T) {
	t.Run("adds a bearer token to the request", func(t *testing.T) {
		var authorization string
		mux := http.NewServeMux()
		mux.HandleFunc("GET /resource", func(w http.ResponseWriter, r *http.Request) {
			authorization = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("Access granted"))
		})
		httpServer := httptest.NewServer(mux)
		defer httpServer.Close()
		client := newTransportClient(&stubTokenSource{})

		httpResponse, err := client.Get(httpServer.URL + "/resource")

		require.NoError(t, err)
		defer httpResponse.Body.Close()
		require.Equal(t, http.StatusOK, httpResponse.StatusCode)
		require.Equal(t, "Bearer token-1", authorization)
	})
	t.Run("retries once with a fresh token after a 401", func(t *testing.T) {
		var requests int
		mux := http.NewServeMux()
		mux.HandleFunc("GET /resource", func(w http.ResponseWriter, r *http.Request) {
			requests++
			if r.Header.Get("Authorization") != "Bearer token-2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("Access granted"))
		})
		httpServer := httptest.NewServer(mux)
		defer httpServer.Close()
		source := &stubTokenSource{}
		client := newTransportClient(source)

		httpResponse, err := client.Get(httpServer.URL + "/resource")

		require.NoError(t, err)
		defer httpResponse.Body.Close()
		require.Equal(t, http.StatusOK, httpResponse.StatusCode)
		require.Equal(t, 2, requests)
		require.Equal(t, 2, source.callCount())
	})
	t.Run("returns the second 401 to the caller", func(t *testing.T) {
		var requests int
		mux := http.NewServeMux()
		mux.HandleFunc("GET /resource", func(w http.ResponseWriter, r *http.Request) {
			requests++
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("Unauthorized"))
		})
		httpServer := httptest.NewServer(mux)
		defer httpServer.Close()
		source := &stubTokenSource{}
		client := newTransportClient(source)

		httpResponse, err := client.Get(httpServer.URL + "/resource")

		require.NoError(t, err)
		defer httpResponse.Body.Close()
		require.Equal(t, http.StatusUnauthorized, httpResponse.StatusCode)
		require.Equal(t, 2, requests)
		require.Equal(t, 2, source.callCount())
	})
	t.Run("replays the request body on the retry", func(t *testing.T) {
		var mu sync.Mutex
		var bodies []string
		mux := http.NewServeMux()
		mux.HandleFunc("POST /resource", func(w http.ResponseWriter, r *http.Request) {
			requestBody, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			mu.Lock()
			bodies = append(bodies, string(requestBody))
			attempt := len(bodies)
			mu.Unlock()
			if attempt == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		httpServer := httptest.NewServer(mux)
		defer httpServer.Close()
		client := newTransportClient(&stubTokenSource{})

		httpResponse, err := client.Post(httpServer.URL+"/resource", "application/json", strings.NewReader("test-payload"))

		require.NoError(t, err)
		defer httpResponse.Body.Close()
		require.Equal(t, http.StatusOK, httpResponse.StatusCode)
		require.Equal(t, []string{"test-payload", "test-payload"}, bodies)
	})
	t.Run("buffers bodies that cannot be rewound", func(t *testing.T) {
		var mu sync.Mutex
		var bodies []string
		mux := http.NewServeMux()
		mux.HandleFunc("POST /resource", func(w http.ResponseWriter, r *http.Request) {
			requestBody, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			mu.Lock()
			bodies = append(bodies, string(requestBody))
			attempt := len(bodies)
			mu.Unlock()
			if attempt == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		httpServer := httptest.NewServer(mux)
		defer httpServer.Close()
		client := newTransportClient(&stubTokenSource{})

		// An anonymous reader keeps http.NewRequest from setting GetBody.
		opaqueBody := struct{ io.Reader }{strings.NewReader("opaque-payload")}
		request, err := http.NewRequest(http.MethodPost, httpServer.URL+"/resource", opaqueBody)
		require.NoError(t, err)

		httpResponse, err := client.Do(request)

		require.NoError(t, err)
		defer httpResponse.Body.Close()
		require.Equal(t, http.StatusOK, httpResponse.StatusCode)
		require.Equal(t, []string{"opaque-payload", "opaque-payload"}, bodies)
	})
	t.Run("surfaces token failures", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /resource", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		httpServer := httptest.NewServer(mux)
		defer httpServer.Close()
		source := &stubTokenSource{err: &AuthError{StatusCode: http.StatusBadRequest, Body: "invalid_grant"}}
		client := newTransportClient(source)

		_, err := client.Get(httpServer.URL + "/resource")

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, http.StatusBadRequest, authErr.StatusCode)
	})
	t.Run("transport without a token client fails", func(t *testing.T) {
		client := &http.Client{Transport: &Transport{}}

		_, err := client.Get("https://resource.example.com")

		require.ErrorContains(t, err, "no TokenClient")
	})
}

func newTransportClient(source TokenSource) *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &Transport{
			TokenClient: NewTokenClient(source),
		},
	}
}
