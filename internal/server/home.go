package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/services"
	"github.com/desertthunder/spotchat/internal/session"
	"github.com/desertthunder/spotchat/internal/shared"
)

const homePanelLimit = 10

type homeResponse struct {
	Authenticated bool              `json:"authenticated"`
	LoginURL      string            `json:"login_url,omitempty"`
	NewReleases   []models.Album    `json:"new_releases"`
	TopArtists    []models.Artist   `json:"top_artists"`
	TopTracks     []models.Track    `json:"top_tracks"`
	Errors        map[string]string `json:"errors,omitempty"`
}

// HomeHandler serves the landing page data.
type HomeHandler struct {
	*routeTable
	spotify *services.SpotifyService
	logger  *log.Logger
}

// NewHomeHandler creates a [HomeHandler].
func NewHomeHandler(spotify *services.SpotifyService, logger *log.Logger) *HomeHandler {
	h := &HomeHandler{routeTable: newRouteTable(), spotify: spotify, logger: logger}
	h.handle("GET /{$}", h.home)
	return h
}

// home loads the three panels concurrently. Each panel fails on its own: auth
// failures on either user panel mark the visitor as logged out, anything else is
// reported under errors.
func (h *HomeHandler) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	svc := h.spotify
	if sess, ok := session.FromContext(ctx); ok {
		svc = svc.ForSession(sess)
	}

	resp := homeResponse{
		Authenticated: true,
		NewReleases:   []models.Album{},
		TopArtists:    []models.Artist{},
		TopTracks:     []models.Track{},
		Errors:        map[string]string{},
	}

	var mu sync.Mutex
	panel := func(name string, load func(context.Context) error, user bool) func() error {
		return func() error {
			err := load(ctx)
			if err == nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if user && shared.NeedsReauth(err) {
				resp.Authenticated = false
				return nil
			}
			h.logger.Warn("landing panel failed", "panel", name, "error", err)
			resp.Errors[name] = err.Error()
			return nil
		}
	}

	var g errgroup.Group
	g.Go(panel("new_releases", func(ctx context.Context) error {
		albums, err := svc.NewReleases(ctx, homePanelLimit)
		if err == nil {
			resp.NewReleases = albums
		}
		return err
	}, false))
	g.Go(panel("top_artists", func(ctx context.Context) error {
		artists, err := svc.TopArtists(ctx, models.MediumTerm, homePanelLimit)
		if err == nil {
			resp.TopArtists = artists
		}
		return err
	}, true))
	g.Go(panel("top_tracks", func(ctx context.Context) error {
		tracks, err := svc.TopTracks(ctx, models.MediumTerm, homePanelLimit)
		if err == nil {
			resp.TopTracks = tracks
		}
		return err
	}, true))
	_ = g.Wait()

	if !resp.Authenticated {
		resp.LoginURL = LoginPath
	}
	if len(resp.Errors) == 0 {
		resp.Errors = nil
	}
	writeJSON(w, http.StatusOK, resp)
}
