// Package middleware holds HTTP middlewares shared by servers.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// Logging logs HTTP requests with method, path, status, and duration.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		// Explicitly prevent logging headers/body to avoid leaking tokens
		LogRequestHeaders:  []string{"Content-Type", "Origin", "X-Request-Id"}, // Never Authorization
		LogResponseHeaders: []string{},                                         // Explicit empty (default is empty, but be clear)
		LogRequestBody:     nil,                                                // Never log request bodies
		LogResponseBody:    nil,                                                // Never log response bodies

		RecoverPanics: false, // use dedicated middleware, panics are logged regardless
	})
}
