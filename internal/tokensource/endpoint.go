package tokensource

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// DefaultRefreshPath is the refresh endpoint path relative to the API base URL.
const DefaultRefreshPath = "/auth/refresh"

// refreshEndpoint builds the oauth2 endpoint for the refresh path under baseURL.
// Client credentials are never sent, so params style skips auth style detection.
func refreshEndpoint(baseURL, refreshPath string) (oauth2.Endpoint, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return oauth2.Endpoint{}, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return oauth2.Endpoint{}, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(refreshPath, "/")

	return oauth2.Endpoint{
		TokenURL:  u.String(),
		AuthStyle: oauth2.AuthStyleInParams,
	}, nil
}
