package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/services"
	"github.com/desertthunder/spotchat/internal/session"
	"github.com/desertthunder/spotchat/internal/shared"
)

// APIHandler exposes the Spotify service and playlist builder as JSON under /api.
type APIHandler struct {
	*routeTable
	spotify *services.SpotifyService
	logger  *log.Logger
}

// NewAPIHandler creates an [APIHandler].
func NewAPIHandler(spotify *services.SpotifyService, logger *log.Logger) *APIHandler {
	h := &APIHandler{routeTable: newRouteTable(), spotify: spotify, logger: logger}

	h.handle("GET /api/me", h.profile)
	h.handle("GET /api/me/overview", h.overview)
	h.handle("GET /api/me/top/artists", h.topArtists)
	h.handle("GET /api/me/top/tracks", h.topTracks)
	h.handle("GET /api/me/recently-played", h.recentlyPlayed)
	h.handle("GET /api/me/player", h.currentlyPlaying)
	h.handle("GET /api/me/tracks", h.savedTracks)
	h.handle("GET /api/me/playlists", h.playlists)
	h.handle("POST /api/me/playlists", h.createPlaylist)

	h.handle("GET /api/playlists/{id}", h.playlist)
	h.handle("POST /api/playlists/{id}/tracks", h.addTracks)
	h.handle("GET /api/albums/{id}", h.album)
	h.handle("GET /api/tracks/search", h.trackAutocomplete)
	h.handle("GET /api/tracks/{id}", h.track)
	h.handle("GET /api/artists/{id}", h.artist)
	h.handle("GET /api/artists/{id}/metrics", h.artistMetrics)

	h.handle("GET /api/search", h.search)
	h.handle("GET /api/genres", h.genres)
	h.handle("GET /api/browse/new-releases", h.newReleases)
	h.handle("GET /api/browse/categories", h.categories)
	h.handle("GET /api/browse/categories/playlists", h.playlistsByCategory)
	h.handle("GET /api/browse/categories/{id}/playlists", h.categoryPlaylists)

	h.handle("GET /api/builder", h.draft)
	h.handle("DELETE /api/builder", h.clearDraft)
	h.handle("POST /api/builder/tracks", h.addDraftTrack)
	h.handle("DELETE /api/builder/tracks/{uri}", h.removeDraftTrack)
	h.handle("POST /api/builder/top-tracks", h.addTopTracks)
	h.handle("GET /api/builder/recommendations", h.recommendations)
	h.handle("POST /api/builder/save", h.saveDraft)
	return h
}

// service returns the Spotify service bound to the request's session.
func (h *APIHandler) service(r *http.Request) *services.SpotifyService {
	if sess, ok := session.FromContext(r.Context()); ok {
		return h.spotify.ForSession(sess)
	}
	return h.spotify
}

func (h *APIHandler) builder(r *http.Request) (*services.PlaylistBuilder, error) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return nil, shared.ErrNotAuthenticated
	}
	return services.NewPlaylistBuilder(h.spotify.ForSession(sess), sess, h.logger), nil
}

// respond writes v as JSON, or the error.
func (h *APIHandler) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func queryInt(r *http.Request, name string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", shared.ErrValidation, name)
	}
	return n, nil
}

func timeRange(r *http.Request) models.TimeRange {
	return models.ParseTimeRange(r.URL.Query().Get("time_range"))
}

func (h *APIHandler) profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.service(r).Profile(r.Context())
	h.respond(w, p, err)
}

func (h *APIHandler) overview(w http.ResponseWriter, r *http.Request) {
	o, err := h.service(r).ProfileOverview(r.Context(), timeRange(r))
	h.respond(w, o, err)
}

func (h *APIHandler) topArtists(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	artists, err := h.service(r).TopArtists(r.Context(), timeRange(r), limit)
	h.respond(w, artists, err)
}

func (h *APIHandler) topTracks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	tracks, err := h.service(r).TopTracks(r.Context(), timeRange(r), limit)
	h.respond(w, tracks, err)
}

func (h *APIHandler) recentlyPlayed(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	history, err := h.service(r).RecentlyPlayed(r.Context(), limit)
	h.respond(w, history, err)
}

func (h *APIHandler) currentlyPlaying(w http.ResponseWriter, r *http.Request) {
	now, err := h.service(r).CurrentlyPlaying(r.Context())
	h.respond(w, now, err)
}

func (h *APIHandler) savedTracks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	tracks, err := h.service(r).SavedTracks(r.Context(), limit)
	h.respond(w, tracks, err)
}

func (h *APIHandler) playlists(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	playlists, err := h.service(r).Playlists(r.Context(), limit)
	h.respond(w, playlists, err)
}

func (h *APIHandler) createPlaylist(w http.ResponseWriter, r *http.Request) {
	var req models.NewPlaylist
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.service(r).CreatePlaylist(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *APIHandler) playlist(w http.ResponseWriter, r *http.Request) {
	p, err := h.service(r).Playlist(r.Context(), r.PathValue("id"))
	h.respond(w, p, err)
}

type addTracksRequest struct {
	URIs []string `json:"uris"`
}

func (h *APIHandler) addTracks(w http.ResponseWriter, r *http.Request) {
	var req addTracksRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(req.URIs) == 0 {
		writeError(w, h.logger, fmt.Errorf("%w: uris", shared.ErrMissingArgument))
		return
	}
	if err := h.service(r).AddTracks(r.Context(), r.PathValue("id"), req.URIs); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) album(w http.ResponseWriter, r *http.Request) {
	a, err := h.service(r).Album(r.Context(), r.PathValue("id"))
	h.respond(w, a, err)
}

func (h *APIHandler) track(w http.ResponseWriter, r *http.Request) {
	t, err := h.service(r).Track(r.Context(), r.PathValue("id"))
	h.respond(w, t, err)
}

func (h *APIHandler) trackAutocomplete(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	tracks, err := h.service(r).SearchTracks(r.Context(), r.URL.Query().Get("q"), limit)
	h.respond(w, tracks, err)
}

func (h *APIHandler) artist(w http.ResponseWriter, r *http.Request) {
	d, err := h.service(r).ArtistDetails(r.Context(), r.PathValue("id"))
	h.respond(w, d, err)
}

func (h *APIHandler) artistMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.service(r).BasicMetrics(r.Context(), r.PathValue("id"))
	h.respond(w, m, err)
}

// criteria reads [models.SearchCriteria] from the query string.
func criteria(r *http.Request) (models.SearchCriteria, error) {
	q := r.URL.Query()
	c := models.SearchCriteria{
		Query:      q.Get("q"),
		Type:       models.SearchType(q.Get("type")),
		Genre:      q.Get("genre"),
		Artist:     q.Get("artist"),
		Album:      q.Get("album"),
		Track:      q.Get("track"),
		Market:     q.Get("market"),
		Popularity: models.Popularity(q.Get("popularity")),
	}
	for name, dst := range map[string]*int{"year": &c.Year, "from_year": &c.FromYear, "to_year": &c.ToYear, "limit": &c.Limit} {
		n, err := queryInt(r, name)
		if err != nil {
			return c, err
		}
		*dst = n
	}
	return c, nil
}

func (h *APIHandler) search(w http.ResponseWriter, r *http.Request) {
	c, err := criteria(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.service(r).Search(r.Context(), c)
	h.respond(w, res, err)
}

func (h *APIHandler) genres(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service(r).Genres(r.Context()))
}

func (h *APIHandler) newReleases(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	albums, err := h.service(r).NewReleases(r.Context(), limit)
	h.respond(w, albums, err)
}

func (h *APIHandler) categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service(r).Categories(r.Context())
	h.respond(w, categories, err)
}

func (h *APIHandler) categoryPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.service(r).CategoryPlaylists(r.Context(), r.PathValue("id"))
	h.respond(w, playlists, err)
}

// playlistsByCategory takes a comma separated ids parameter.
func (h *APIHandler) playlistsByCategory(w http.ResponseWriter, r *http.Request) {
	var selected []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			selected = append(selected, id)
		}
	}

	svc := h.service(r)
	known, err := svc.Categories(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	byCategory, err := svc.PlaylistsByCategory(r.Context(), selected, known)
	h.respond(w, byCategory, err)
}

func (h *APIHandler) draft(w http.ResponseWriter, r *http.Request) {
	b, err := h.builder(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := b.Draft(r.Context())
	h.respond(w, d, err)
}

func (h *APIHandler) clearDraft(w http.ResponseWriter, r *http.Request) {
	b, err := h.builder(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := b.Clear(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) addDraftTrack(w http.ResponseWriter, r *http.Request) {
	var t models.DraftTrack
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, h.logger, err)
		return
	}
	b, err := h.builder(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := b.Add(r.Context(), t)
	h.respond(w, d, err)
}

func (h *APIHandler) removeDraftTrack(w http.ResponseWriter, r *http.Request) {
	b, err := h.builder(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := b.Remove(r.Context(), r.PathValue("uri"))
	h.respond(w, d, err)
}

func (h *APIHandler) addTopTracks(w http.ResponseWriter, r *http.Request) {
	b, err := h.builder(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := b.AddTopTracks(r.Context())
	h.respond(w, d, err)
}

func (h *APIHandler) recommendations(w http.ResponseWriter, r *http.Request) {
	b, err := h.builder(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	tracks, err := b.Recommend(r.Context())
	h.respond(w, tracks, err)
}

type saveDraftRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

func (h *APIHandler) saveDraft(w http.ResponseWriter, r *http.Request) {
	var req saveDraftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	b, err := h.builder(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := b.Save(r.Context(), req.Name, req.Description, req.Public)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
