package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// requestConfig collects the settings of a single request.
type requestConfig struct {
	header      http.Header
	query       url.Values
	body        []byte
	contentType string
	timeout     time.Duration
}

// RequestOption configures a single request.
type RequestOption func(*requestConfig) error

// WithQuery adds a query parameter.
func WithQuery(key, value string) RequestOption {
	return func(cfg *requestConfig) error {
		cfg.query.Add(key, value)
		return nil
	}
}

// WithHeader sets a request header. Authorization is owned by the session
// and cannot be set here.
func WithHeader(key, value string) RequestOption {
	return func(cfg *requestConfig) error {
		if http.CanonicalHeaderKey(key) == "Authorization" {
			return fmt.Errorf("authorization header is managed by the session")
		}
		cfg.header.Set(key, value)
		return nil
	}
}

// WithJSON encodes v as the request body.
func WithJSON(v any) RequestOption {
	return func(cfg *requestConfig) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		cfg.body = b
		cfg.contentType = "application/json"
		return nil
	}
}

// WithBody sends body verbatim with the given content type.
func WithBody(contentType string, body []byte) RequestOption {
	return func(cfg *requestConfig) error {
		cfg.body = body
		cfg.contentType = contentType
		return nil
	}
}

// WithTimeout overrides the client's default timeout for this request.
func WithTimeout(d time.Duration) RequestOption {
	return func(cfg *requestConfig) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		cfg.timeout = d
		return nil
	}
}
