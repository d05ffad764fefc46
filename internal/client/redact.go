package client

import (
	"net/http"
	"net/url"
)

// sensitiveHeaders are replaced before headers are logged.
var sensitiveHeaders = []string{"Authorization", "Cookie", "Proxy-Authorization"}

// redactHeaders returns a copy of h safe to log.
func redactHeaders(h http.Header) http.Header {
	out := h.Clone()
	for _, k := range sensitiveHeaders {
		if out.Get(k) != "" {
			out.Set(k, "REDACTED")
		}
	}
	return out
}

// redactURL returns u without user info or query, which may carry secrets.
func redactURL(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	c.Fragment = ""
	return c.String()
}
