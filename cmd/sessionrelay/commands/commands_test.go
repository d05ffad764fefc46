package commands

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI runs the command tree with stdin and returns stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer

	root := newRootCommand()
	root.Reader = strings.NewReader(stdin)
	root.Writer = &out
	root.ErrWriter = &errOut

	err := root.Run(context.Background(), append([]string{"sessionrelay"}, args...))
	return out.String(), err
}

// setupEnv points the CLI at upstream with a file token store under a temp dir.
func setupEnv(t *testing.T, upstream string) string {
	t.Helper()
	tokenFile := filepath.Join(t.TempDir(), "refresh_token")
	t.Setenv("SESSIONRELAY_UPSTREAM__BASE_URL", upstream)
	t.Setenv("SESSIONRELAY_AUTH__STORAGE", "file")
	t.Setenv("SESSIONRELAY_AUTH__FILE", tokenFile)
	t.Setenv("SESSIONRELAY_LOG_LEVEL", "error")
	t.Setenv("OTEL_LOGS_EXPORTER", "none")
	return tokenFile
}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"R1"`) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"A2"}`)
	})
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer A2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"user":"hiker","method":"`+r.Method+`","q":"`+r.URL.Query().Get("q")+`"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginStatusLogout(t *testing.T) {
	srv := newAPI(t)
	tokenFile := setupEnv(t, srv.URL+"/api")

	out, err := runCLI(t, "R1\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in")

	stored, err := os.ReadFile(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "R1", strings.TrimSpace(string(stored)))

	out, err = runCLI(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"has_refresh_token": true`)
	assert.Contains(t, out, `"has_access_token": false`, "access tokens do not outlive the process")

	out, err = runCLI(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "logged out")
	assert.NoFileExists(t, tokenFile)
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	srv := newAPI(t)
	setupEnv(t, srv.URL+"/api")

	_, err := runCLI(t, "\n", "login")
	assert.Error(t, err)
}

func TestRequestRefreshesAndPrintsBody(t *testing.T) {
	srv := newAPI(t)
	setupEnv(t, srv.URL+"/api")

	_, err := runCLI(t, "R1\n", "login")
	require.NoError(t, err)

	out, err := runCLI(t, "", "request", "--query", "q=alps", "get", "/me")
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"hiker","method":"GET","q":"alps"}`, out)
}

func TestRequestSessionExpired(t *testing.T) {
	srv := newAPI(t)
	setupEnv(t, srv.URL+"/api")

	_, err := runCLI(t, "R-unknown\n", "login")
	require.NoError(t, err)

	_, err = runCLI(t, "", "request", "GET", "/me")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session expired")
}

func TestRequestArgumentErrors(t *testing.T) {
	srv := newAPI(t)
	setupEnv(t, srv.URL+"/api")

	_, err := runCLI(t, "", "request", "/me")
	assert.Error(t, err)

	_, err = runCLI(t, "", "request", "/me", "GET")
	assert.Error(t, err, "swapped arguments")

	_, err = runCLI(t, "", "request", "--query", "novalue", "GET", "/me")
	assert.Error(t, err)
}

func TestReadSecretFromPipe(t *testing.T) {
	secret, err := readSecret(strings.NewReader("  token-value \nsecond line"), io.Discard, "prompt: ")
	require.NoError(t, err)
	assert.Equal(t, "token-value", secret)

	secret, err = readSecret(strings.NewReader("no-newline"), io.Discard, "prompt: ")
	require.NoError(t, err)
	assert.Equal(t, "no-newline", secret)
}
