package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotchat/internal/shared"
)

// LoginPath starts the OAuth login.
const LoginPath = "/auth/login"

const maxBodyBytes = 1 << 20

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error    string `json:"error"`
	LoginURL string `json:"login_url,omitempty"`
}

// routeTable is an embedded mux that lets one [Handler] serve several patterns.
type routeTable struct {
	mux      *http.ServeMux
	patterns []string
}

func newRouteTable() *routeTable {
	return &routeTable{mux: http.NewServeMux()}
}

func (t *routeTable) handle(pattern string, h http.HandlerFunc) {
	t.mux.HandleFunc(pattern, h)
	t.patterns = append(t.patterns, pattern)
}

// Routes returns the patterns registered on the table.
func (t *routeTable) Routes() []string {
	return t.patterns
}

func (t *routeTable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into v. Malformed bodies are [shared.ErrValidation].
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", shared.ErrValidation, err)
	}
	return nil
}

// errorStatus maps an error to its HTTP status.
func errorStatus(err error) int {
	switch {
	case shared.NeedsReauth(err):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrConfiguration):
		return http.StatusInternalServerError
	}
	if up, ok := shared.AsUpstream(err); ok {
		switch {
		case up.IsRateLimited():
			return http.StatusTooManyRequests
		case up.Status == http.StatusNotFound:
			return http.StatusNotFound
		case up.Status == http.StatusBadRequest:
			return http.StatusBadRequest
		default:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

// writeError renders err as JSON. Auth failures carry the login URL and rate limits a Retry-After header.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	status := errorStatus(err)
	resp := errorResponse{Error: err.Error()}

	switch status {
	case http.StatusUnauthorized:
		resp.LoginURL = LoginPath
	case http.StatusTooManyRequests:
		if up, ok := shared.AsUpstream(err); ok && up.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(up.RetryAfter.Seconds()))))
		}
	}

	if status >= 500 {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Debug("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}
