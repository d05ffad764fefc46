package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/sessionrelay/internal/session"
	"github.com/florianilch/sessionrelay/internal/tokensource"
	"github.com/florianilch/sessionrelay/internal/tokenstore"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/api", nil)
	require.NoError(t, err)
	return c, srv
}

func TestRequestBuildsURLAndHeaders(t *testing.T) {
	var got *http.Request
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":7,"name":"tour"}`)
	}))

	resp, err := c.Request(context.Background(), http.MethodGet, "/tours/7",
		WithQuery("expand", "stops"),
		WithHeader("X-Client", "test"),
	)
	require.NoError(t, err)

	assert.Equal(t, "/api/tours/7", got.URL.Path)
	assert.Equal(t, "stops", got.URL.Query().Get("expand"))
	assert.Equal(t, "test", got.Header.Get("X-Client"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.NotEmpty(t, got.Header.Get("X-Request-Id"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var tour struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, resp.JSON(&tour))
	assert.Equal(t, 7, tour.ID)
	assert.Equal(t, "tour", tour.Name)
}

func TestRequestSendsJSONBody(t *testing.T) {
	var body map[string]any
	var contentType string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
	}))

	resp, err := c.Request(context.Background(), http.MethodPost, "tours", WithJSON(map[string]any{"name": "alps"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, map[string]any{"name": "alps"}, body)

	assert.Error(t, resp.JSON(&body), "empty body")
}

func TestRequestReturnsAPIError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))

	_, err := c.Request(context.Background(), http.MethodGet, "/missing", WithQuery("secret", "s3"))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, http.MethodGet, apiErr.Method)
	assert.NotContains(t, apiErr.URL, "s3")
	assert.Contains(t, string(apiErr.Body), "not found")
	assert.Contains(t, err.Error(), "404")
}

func TestRequestRejectsOversizedBody(t *testing.T) {
	var size atomic.Int64
	size.Store(maxBody)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), int(size.Load())))
	}))

	resp, err := c.Request(context.Background(), http.MethodGet, "/export")
	require.NoError(t, err)
	assert.Len(t, resp.Body, maxBody)

	size.Store(maxBody + 1)
	resp, err = c.Request(context.Background(), http.MethodGet, "/export")
	assert.ErrorIs(t, err, ErrBodyTooLarge)
	assert.Nil(t, resp, "a truncated body is never returned")
}

func TestRequestTimeout(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))

	_, err := c.Request(context.Background(), http.MethodGet, "/slow", WithTimeout(20*time.Millisecond))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestOptionErrors(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())

	_, err := c.Request(context.Background(), http.MethodGet, "/", WithHeader("authorization", "Bearer x"))
	assert.Error(t, err)

	_, err = c.Request(context.Background(), http.MethodGet, "/", WithTimeout(0))
	assert.Error(t, err)

	_, err = c.Request(context.Background(), http.MethodPost, "/", WithJSON(make(chan int)))
	assert.Error(t, err)
}

func TestNewValidatesBaseURL(t *testing.T) {
	for _, raw := range []string{"", "/relative", "://bad"} {
		_, err := New(raw, nil)
		assert.Error(t, err, raw)
	}
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Accept", "application/json")

	out := redactHeaders(h)
	assert.Equal(t, "REDACTED", out.Get("Authorization"))
	assert.Equal(t, "application/json", out.Get("Accept"))
	assert.Equal(t, "Bearer secret", h.Get("Authorization"), "input untouched")
}

// newSessionClient wires a Client through a real Session against srv.
func newSessionClient(t *testing.T, srv *httptest.Server, refresh string) (*Client, *session.Session) {
	t.Helper()
	refresher, err := tokensource.NewRefresher(srv.URL)
	require.NoError(t, err)
	sess, err := session.New(session.Config{
		Store:      tokenstore.NewMemoryStore(refresh),
		Refresher:  refresher,
		LoginRoute: "/login",
	})
	require.NoError(t, err)

	c, err := New(srv.URL, sess.Transport(nil))
	require.NoError(t, err)
	return c, sess
}

func TestRequestThroughSession(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"A2"}`)
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer A2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"user":"hiker"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, sess := newSessionClient(t, srv, "R1")
	require.NoError(t, sess.Login(context.Background(), "A1", ""))

	resp, err := c.Request(context.Background(), http.MethodGet, "/me")
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"hiker"}`, string(resp.Body))
	assert.EqualValues(t, 1, refreshes.Load())
}

func TestRequestSurfacesSessionErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, _ := newSessionClient(t, srv, "R1")

	_, err := c.Request(context.Background(), http.MethodGet, "/me")
	assert.ErrorIs(t, err, session.ErrRefreshFailed)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
