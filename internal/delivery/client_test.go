package delivery

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/panic-button/internal/version"
)

// TestClient_Send_StatusMapping checks that only 2xx statuses count as success.
func TestClient_Send_StatusMapping(t *testing.T) {
	t.Parallel()

	cases := map[int]bool{
		http.StatusOK:                  true,
		http.StatusCreated:             true,
		http.StatusNoContent:           true,
		http.StatusMovedPermanently:    false,
		http.StatusBadRequest:          false,
		http.StatusInternalServerError: false,
	}

	for code, want := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))

		c := NewClient(WithHTTPClient(&http.Client{
			// Redirects would otherwise be followed to a 200.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}))

		outcome := c.Send(context.Background(), NewRequest(http.MethodPost, server.URL, nil, nil))
		require.Equal(t, want, outcome.Success, "status %d", code)
		require.Equal(t, code, outcome.StatusCode)

		if !want {
			require.Contains(t, outcome.Reason, "unexpected status")
		}

		server.Close()
	}
}

// TestClient_Send_WritesBodyAndHeaders verifies the request reaches the server intact.
func TestClient_Send_WritesBodyAndHeaders(t *testing.T) {
	t.Parallel()

	type captured struct {
		method, auth, contentType, userAgent, body string
	}

	got := make(chan captured, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{
			method:      r.Method,
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			userAgent:   r.Header.Get("User-Agent"),
			body:        string(body),
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	headers := map[string]string{
		"Authorization": "key",
		"Content-Type":  "application/json",
	}
	req := NewRequest("", server.URL, []byte(`{"to":"x"}`), headers)

	// Mutating the caller's map must not change the request.
	headers["Authorization"] = "changed"

	outcome := NewClient().Send(context.Background(), req)
	require.True(t, outcome.Success, outcome.String())

	c := <-got
	require.Equal(t, http.MethodPost, c.method)
	require.Equal(t, "key", c.auth)
	require.Equal(t, "application/json", c.contentType)
	require.Equal(t, version.UserAgent(), c.userAgent)
	require.JSONEq(t, `{"to":"x"}`, c.body)
}

// TestClient_Send_TransportFault converts connection errors into failure outcomes.
func TestClient_Send_TransportFault(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	outcome := NewClient().Send(context.Background(), NewRequest(http.MethodPost, url, nil, nil))
	require.False(t, outcome.Success)
	require.Zero(t, outcome.StatusCode)
	require.NotEmpty(t, outcome.Reason)

	outcome = NewClient().Send(context.Background(), NewRequest(http.MethodPost, "://bad", nil, nil))
	require.False(t, outcome.Success)
	require.Contains(t, outcome.Reason, "build request")
}

// TestClient_Send_Timeout converts a hung server into a failure outcome.
func TestClient_Send_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))

	defer server.Close()
	defer close(release)

	c := NewClient(WithTimeout(50 * time.Millisecond))

	outcome := c.Send(context.Background(), NewRequest(http.MethodPost, server.URL, nil, nil))
	require.False(t, outcome.Success)
}

// TestClient_SendAsync reports the outcome through the callback.
func TestClient_SendAsync(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	done := make(chan Outcome, 1)
	NewClient().SendAsync(context.Background(), NewRequest(http.MethodPost, server.URL, nil, nil), func(o Outcome) {
		done <- o
	})

	select {
	case o := <-done:
		require.True(t, o.Success)
		require.Equal(t, http.StatusAccepted, o.StatusCode)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "callback not invoked")
	}
}

// TestRequest_Immutable ensures accessors hand out copies.
func TestRequest_Immutable(t *testing.T) {
	t.Parallel()

	req := NewRequest(http.MethodGet, "http://x", []byte("abc"), map[string]string{"A": "1"})

	body := req.Body()
	body[0] = 'z'
	req.Headers()["A"] = "2"

	require.Equal(t, []byte("abc"), req.Body())
	require.Equal(t, "1", req.Header("A"))
	require.Equal(t, http.MethodGet, req.Method())
	require.Equal(t, "http://x", req.URL())
}
