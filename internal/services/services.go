package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/desertthunder/spotchat/internal/auth"
	"github.com/desertthunder/spotchat/internal/shared"
)

// ClientProvider builds authenticated Spotify clients.
//
// [auth.ClientFactory] is the production implementation.
type ClientProvider interface {
	// AppClient returns a client authenticated with client credentials.
	AppClient(ctx context.Context) (*spotify.Client, error)

	// UserClient returns a client acting for the user owning sess.
	UserClient(ctx context.Context, sess auth.Session) (*spotify.Client, error)
}

// Generator produces a free-form text reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, message string) (string, error)
}

// Default page sizes for listing calls.
const (
	DefaultTopLimit        = 10
	DefaultPlaylistsLimit  = 50
	DefaultAlbumsLimit     = 50
	DefaultTracksLimit     = 50
	DefaultPlaylistTracks  = 100
	DefaultRecentlyPlayed  = 20
	DefaultNewReleaseLimit = 20
)

const spotifyService = "spotify"

// wrapErr converts errors returned by the Spotify client into [shared.UpstreamError].
// Errors that already carry a classification pass through unchanged.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrNotAuthenticated) || errors.Is(err, shared.ErrConfiguration) {
		return err
	}
	if _, ok := shared.AsUpstream(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return &shared.UpstreamError{Service: spotifyService, Status: apiErr.Status, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &shared.UpstreamError{Service: spotifyService, Status: apiErrPtr.Status, Message: apiErrPtr.Message, Err: err}
	}
	return &shared.UpstreamError{Service: spotifyService, Err: err}
}

func isNotFound(err error) bool {
	up, ok := shared.AsUpstream(err)
	return ok && up.Status == http.StatusNotFound
}

// clampLimit returns limit when it is in [1, max] and def otherwise.
func clampLimit(limit, def, max int) int {
	if limit < 1 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// trackID extracts the bare ID from a track URI ("spotify:track:<id>") or URL.
func trackID(uri string) spotify.ID {
	uri = strings.TrimSpace(uri)
	if i := strings.LastIndexAny(uri, ":/"); i >= 0 {
		uri = uri[i+1:]
	}
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	return spotify.ID(uri)
}
