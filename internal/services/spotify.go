package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"

	"github.com/desertthunder/spotchat/internal/auth"
	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
	"github.com/desertthunder/spotchat/internal/store"
)

// SpotifyService exposes Spotify data as [models] types.
//
// User scoped operations require a session (see [SpotifyService.ForSession]); catalog
// operations use the app client and fall back to the user client when no client secret
// is configured.
type SpotifyService struct {
	clients ClientProvider
	session auth.Session
	cache   store.Store
	market  string
	logger  *log.Logger

	// metricsSource and newBackOff override the metrics client and retry policy in tests.
	metricsSource artistSource
	newBackOff    func() backoff.BackOff
}

// SpotifyOpts configures a [SpotifyService].
type SpotifyOpts struct {
	Clients ClientProvider
	// Cache stores computed artist metrics. Metrics are not cached when nil.
	Cache  store.Store
	Market string
	Logger *log.Logger
}

// NewSpotifyService creates a [SpotifyService] without a session.
func NewSpotifyService(opts SpotifyOpts) *SpotifyService {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Market == "" {
		opts.Market = "US"
	}
	return &SpotifyService{
		clients: opts.Clients,
		cache:   opts.Cache,
		market:  opts.Market,
		logger:  shared.WithLogger(opts.Logger, "component", "spotify"),
	}
}

// ForSession returns a copy of the service acting for the user owning sess.
func (s *SpotifyService) ForSession(sess auth.Session) *SpotifyService {
	c := *s
	c.session = sess
	return &c
}

func (s *SpotifyService) userClient(ctx context.Context) (*spotify.Client, error) {
	if s.session == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return s.clients.UserClient(ctx, s.session)
}

// catalogClient prefers the app client. Without client credentials it uses the
// session's user client so public lookups still work for logged in users.
func (s *SpotifyService) catalogClient(ctx context.Context) (*spotify.Client, error) {
	client, err := s.clients.AppClient(ctx)
	if err == nil {
		return client, nil
	}
	if errors.Is(err, shared.ErrConfiguration) && s.session != nil {
		s.logger.Debug("app client unavailable, using user client", "error", err)
		return s.userClient(ctx)
	}
	return nil, err
}

// Profile returns the current user's profile.
func (s *SpotifyService) Profile(ctx context.Context) (*models.UserProfile, error) {
	client, err := s.userClient(ctx)
	if err != nil {
		return nil, err
	}
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}
	return toProfile(user), nil
}

func spotifyRange(tr models.TimeRange) spotify.Range {
	switch tr {
	case models.ShortTerm:
		return spotify.ShortTermRange
	case models.LongTerm:
		return spotify.LongTermRange
	default:
		return spotify.MediumTermRange
	}
}

// TopTracks returns the user's most played tracks over tr.
func (s *SpotifyService) TopTracks(ctx context.Context, tr models.TimeRange, limit int) ([]models.Track, error) {
	client, err := s.userClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := client.CurrentUsersTopTracks(ctx,
		spotify.Timerange(spotifyRange(tr)),
		spotify.Limit(clampLimit(limit, DefaultTopLimit, models.MaxSearchLimit)))
	if err != nil {
		return nil, wrapErr(err)
	}
	return toTracks(page.Tracks), nil
}

// TopArtists returns the user's most played artists over tr.
func (s *SpotifyService) TopArtists(ctx context.Context, tr models.TimeRange, limit int) ([]models.Artist, error) {
	client, err := s.userClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := client.CurrentUsersTopArtists(ctx,
		spotify.Timerange(spotifyRange(tr)),
		spotify.Limit(clampLimit(limit, DefaultTopLimit, models.MaxSearchLimit)))
	if err != nil {
		return nil, wrapErr(err)
	}
	return toArtists(page.Artists), nil
}

// RecentlyPlayed returns up to limit of the user's most recent plays, newest first.
func (s *SpotifyService) RecentlyPlayed(ctx context.Context, limit int) ([]models.PlayHistory, error) {
	client, err := s.userClient(ctx)
	if err != nil {
		return nil, err
	}
	items, err := client.PlayerRecentlyPlayed(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}

	limit = clampLimit(limit, DefaultRecentlyPlayed, models.MaxSearchLimit)
	if len(items) > limit {
		items = items[:limit]
	}
	history := make([]models.PlayHistory, 0, len(items))
	for _, item := range items {
		history = append(history, models.PlayHistory{Track: toSimpleTrack(item.Track), PlayedAt: item.PlayedAt})
	}
	return history, nil
}

// CurrentlyPlaying returns the user's current playback. The track is nil when nothing is playing.
func (s *SpotifyService) CurrentlyPlaying(ctx context.Context) (*models.NowPlaying, error) {
	client, err := s.userClient(ctx)
	if err != nil {
		return nil, err
	}
	cp, err := client.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}

	now := &models.NowPlaying{}
	if cp == nil || cp.Item == nil {
		return now, nil
	}
	track := toTrack(*cp.Item)
	now.Track = &track
	now.IsPlaying = cp.Playing
	now.ProgressMS = int(cp.Progress)
	return now, nil
}

// SavedTracks returns the user's liked tracks, most recently saved first.
func (s *SpotifyService) SavedTracks(ctx context.Context, limit int) ([]models.Track, error) {
	client, err := s.userClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := client.CurrentUsersTracks(ctx, spotify.Limit(clampLimit(limit, DefaultTracksLimit, models.MaxSearchLimit)))
	if err != nil {
		return nil, wrapErr(err)
	}
	tracks := make([]models.Track, 0, len(page.Tracks))
	for _, saved := range page.Tracks {
		tracks = append(tracks, toTrack(saved.FullTrack))
	}
	return tracks, nil
}

// Playlists returns the current user's playlists.
func (s *SpotifyService) Playlists(ctx context.Context, limit int) ([]models.Playlist, error) {
	client, err := s.userClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := client.CurrentUsersPlaylists(ctx, spotify.Limit(clampLimit(limit, DefaultPlaylistsLimit, models.MaxSearchLimit)))
	if err != nil {
		return nil, wrapErr(err)
	}
	return toPlaylists(page.Playlists), nil
}

// CreatePlaylist creates a playlist owned by the current user and adds p.TrackURIs to it.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, p models.NewPlaylist) (*models.Playlist, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrValidation)
	}

	client, err := s.userClient(ctx)
	if err != nil {
		return nil, err
	}
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}
	created, err := client.CreatePlaylistForUser(ctx, user.ID, name, p.Description, p.Public, false)
	if err != nil {
		return nil, wrapErr(err)
	}

	playlist := toPlaylist(created.SimplePlaylist)
	if len(p.TrackURIs) > 0 {
		if err := s.addTracks(ctx, client, created.ID, p.TrackURIs); err != nil {
			return &playlist, err
		}
		playlist.TrackCount = len(p.TrackURIs)
	}
	s.logger.Info("created playlist", "id", playlist.ID, "tracks", playlist.TrackCount)
	return &playlist, nil
}

// AddTracks appends trackURIs to a playlist the user can edit.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, trackURIs []string) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	client, err := s.userClient(ctx)
	if err != nil {
		return err
	}
	return s.addTracks(ctx, client, spotify.ID(playlistID), trackURIs)
}

// maxTracksPerAdd is the Spotify limit for one add-items request.
const maxTracksPerAdd = 100

func (s *SpotifyService) addTracks(ctx context.Context, client *spotify.Client, playlistID spotify.ID, uris []string) error {
	ids := make([]spotify.ID, 0, len(uris))
	for _, uri := range uris {
		if id := trackID(uri); id != "" {
			ids = append(ids, id)
		}
	}
	for chunk := range slices.Chunk(ids, maxTracksPerAdd) {
		if _, err := client.AddTracksToPlaylist(ctx, playlistID, chunk...); err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

// SearchTracks runs a plain track search for autocomplete and recommendations.
func (s *SpotifyService) SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Track{}, nil
	}
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	res, err := client.Search(ctx, query, spotify.SearchTypeTrack,
		spotify.Limit(clampLimit(limit, DefaultLookupLimit, models.MaxSearchLimit)))
	if err != nil {
		return nil, wrapErr(err)
	}
	if res.Tracks == nil {
		return []models.Track{}, nil
	}
	return toTracks(res.Tracks.Tracks), nil
}

// DefaultLookupLimit is the page size used by [SpotifyService.SearchTracks] and [SpotifyService.SearchArtists].
const DefaultLookupLimit = 5

// SearchArtists returns artists matching name, best match first.
func (s *SpotifyService) SearchArtists(ctx context.Context, name string, limit int) ([]models.Artist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: artist name", shared.ErrMissingArgument)
	}
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	res, err := client.Search(ctx, name, spotify.SearchTypeArtist,
		spotify.Limit(clampLimit(limit, DefaultLookupLimit, models.MaxSearchLimit)))
	if err != nil {
		return nil, wrapErr(err)
	}
	if res.Artists == nil {
		return []models.Artist{}, nil
	}
	return toArtists(res.Artists.Artists), nil
}

// Artist returns one artist.
func (s *SpotifyService) Artist(ctx context.Context, id string) (*models.Artist, error) {
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	a, err := client.GetArtist(ctx, spotify.ID(id))
	if err != nil {
		return nil, wrapErr(err)
	}
	artist := toArtist(*a)
	return &artist, nil
}

// ArtistTopTracks returns an artist's most popular tracks in the configured market.
func (s *SpotifyService) ArtistTopTracks(ctx context.Context, id string) ([]models.Track, error) {
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	tracks, err := client.GetArtistsTopTracks(ctx, spotify.ID(id), s.market)
	if err != nil {
		return nil, wrapErr(err)
	}
	return toTracks(tracks), nil
}

// ArtistAlbums returns an artist's albums and singles.
func (s *SpotifyService) ArtistAlbums(ctx context.Context, id string, limit int) ([]models.Album, error) {
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := client.GetArtistAlbums(ctx, spotify.ID(id),
		[]spotify.AlbumType{spotify.AlbumTypeAlbum, spotify.AlbumTypeSingle},
		spotify.Limit(clampLimit(limit, DefaultAlbumsLimit, models.MaxSearchLimit)))
	if err != nil {
		return nil, wrapErr(err)
	}
	return toAlbums(page.Albums), nil
}

// ArtistDetails returns an artist with their releases and top tracks.
func (s *SpotifyService) ArtistDetails(ctx context.Context, id string) (*models.ArtistDetails, error) {
	artist, err := s.Artist(ctx, id)
	if err != nil {
		return nil, err
	}
	albums, err := s.ArtistAlbums(ctx, id, DefaultAlbumsLimit)
	if err != nil {
		return nil, err
	}
	top, err := s.ArtistTopTracks(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ArtistDetails{Artist: *artist, Albums: albums, TopTracks: top}, nil
}

// Album returns an album with its track listing.
func (s *SpotifyService) Album(ctx context.Context, id string) (*models.Album, error) {
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	a, err := client.GetAlbum(ctx, spotify.ID(id))
	if err != nil {
		return nil, wrapErr(err)
	}
	album := toSimpleAlbum(a.SimpleAlbum)
	album.Tracks, err = s.AlbumTracks(ctx, id, DefaultTracksLimit)
	if err != nil {
		return nil, err
	}
	for i := range album.Tracks {
		album.Tracks[i].Album = album.Name
		album.Tracks[i].AlbumID = album.ID
		album.Tracks[i].ImageURL = album.ImageURL
	}
	return &album, nil
}

// AlbumTracks returns an album's tracks.
func (s *SpotifyService) AlbumTracks(ctx context.Context, id string, limit int) ([]models.Track, error) {
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := client.GetAlbumTracks(ctx, spotify.ID(id), spotify.Limit(clampLimit(limit, DefaultTracksLimit, models.MaxSearchLimit)))
	if err != nil {
		return nil, wrapErr(err)
	}
	tracks := make([]models.Track, 0, len(page.Tracks))
	for _, t := range page.Tracks {
		tracks = append(tracks, toSimpleTrack(t))
	}
	return tracks, nil
}

// Track returns one track.
func (s *SpotifyService) Track(ctx context.Context, id string) (*models.Track, error) {
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	t, err := client.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return nil, wrapErr(err)
	}
	track := toTrack(*t)
	return &track, nil
}

// Playlist returns a playlist with its first page of tracks.
func (s *SpotifyService) Playlist(ctx context.Context, id string) (*models.Playlist, error) {
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	p, err := client.GetPlaylist(ctx, spotify.ID(id))
	if err != nil {
		return nil, wrapErr(err)
	}
	playlist := toPlaylist(p.SimplePlaylist)
	playlist.TrackCount = int(p.Tracks.Total)
	playlist.Tracks, err = s.PlaylistTracks(ctx, id, DefaultPlaylistTracks)
	if err != nil {
		return nil, err
	}
	return &playlist, nil
}

// PlaylistTracks returns a playlist's tracks. Episodes and unavailable items are skipped.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, id string, limit int) ([]models.Track, error) {
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := client.GetPlaylistItems(ctx, spotify.ID(id), spotify.Limit(clampLimit(limit, DefaultPlaylistTracks, DefaultPlaylistTracks)))
	if err != nil {
		return nil, wrapErr(err)
	}
	tracks := make([]models.Track, 0, len(page.Items))
	for _, item := range page.Items {
		if item.Track.Track == nil {
			continue
		}
		tracks = append(tracks, toTrack(*item.Track.Track))
	}
	return tracks, nil
}

// NewReleases returns recently released albums.
func (s *SpotifyService) NewReleases(ctx context.Context, limit int) ([]models.Album, error) {
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := client.NewReleases(ctx, spotify.Limit(clampLimit(limit, DefaultNewReleaseLimit, models.MaxSearchLimit)))
	if err != nil {
		return nil, wrapErr(err)
	}
	return toAlbums(page.Albums), nil
}

// ProfileOverview returns the profile page data. Top albums are derived from the
// albums of the user's top tracks, in first-seen order.
func (s *SpotifyService) ProfileOverview(ctx context.Context, tr models.TimeRange) (*models.ProfileOverview, error) {
	profile, err := s.Profile(ctx)
	if err != nil {
		return nil, err
	}
	tracks, err := s.TopTracks(ctx, tr, DefaultTopLimit)
	if err != nil {
		return nil, err
	}
	artists, err := s.TopArtists(ctx, tr, DefaultTopLimit)
	if err != nil {
		return nil, err
	}

	albums := []models.Album{}
	seen := map[string]bool{}
	for _, t := range tracks {
		if t.AlbumID == "" || seen[t.AlbumID] {
			continue
		}
		seen[t.AlbumID] = true
		albums = append(albums, models.Album{ID: t.AlbumID, Name: t.Album, Artists: t.Artists, ImageURL: t.ImageURL})
	}

	return &models.ProfileOverview{Profile: *profile, TopTracks: tracks, TopArtists: artists, TopAlbums: albums}, nil
}
