package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint builds ws(s)://<host>/ws/dash/<access>/ from the REST base URL.
// The websocket scheme mirrors the REST one: http -> ws, https -> wss.
func Endpoint(apiHost, access string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(apiHost))
	if err != nil {
		return "", fmt.Errorf("api host: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("api host: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api host: missing host")
	}
	if strings.TrimSpace(access) == "" {
		return "", fmt.Errorf("empty access token")
	}

	base := strings.TrimRight(u.EscapedPath(), "/")
	return u.Scheme + "://" + u.Host + base + "/ws/dash/" + url.PathEscape(access) + "/", nil
}
