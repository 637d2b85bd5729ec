package auth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/spotchat/internal/shared"
)

// rateLimitTransport converts HTTP 429 responses into [shared.UpstreamError] values carrying
// the Retry-After hint, which the Spotify client library would otherwise drop.
type rateLimitTransport struct {
	service string
	base    http.RoundTripper
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusTooManyRequests {
		return resp, err
	}
	resp.Body.Close()

	return nil, &shared.UpstreamError{
		Service:    t.service,
		Status:     http.StatusTooManyRequests,
		Message:    "rate limited",
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}
