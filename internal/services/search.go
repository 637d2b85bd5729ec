package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
)

// FallbackGenres is returned by [SpotifyService.Genres] when the seed endpoint fails.
var FallbackGenres = []string{
	"pop", "rock", "hip-hop", "jazz", "classical", "electronic", "country",
	"blues", "reggae", "folk", "punk", "metal", "indie", "alternative", "r-n-b",
}

const minSearchYear = 1900

// BuildSearchQuery renders criteria as a Spotify search query with field filters.
//
// An explicit Year wins over a FromYear/ToYear range; an open range end defaults to
// 1900 or the current year.
func BuildSearchQuery(c models.SearchCriteria, now time.Time) string {
	var parts []string
	if c.Query != "" {
		parts = append(parts, c.Query)
	}
	if c.Artist != "" {
		parts = append(parts, fmt.Sprintf("artist:%q", c.Artist))
	}
	if c.Album != "" {
		parts = append(parts, fmt.Sprintf("album:%q", c.Album))
	}
	if c.Track != "" {
		parts = append(parts, fmt.Sprintf("track:%q", c.Track))
	}
	if c.Genre != "" {
		parts = append(parts, fmt.Sprintf("genre:%q", c.Genre))
	}

	switch {
	case c.Year != 0:
		parts = append(parts, "year:"+strconv.Itoa(c.Year))
	case c.FromYear != 0 || c.ToYear != 0:
		from, to := c.FromYear, c.ToYear
		if from == 0 {
			from = minSearchYear
		}
		if to == 0 {
			to = now.Year()
		}
		parts = append(parts, fmt.Sprintf("year:%d-%d", from, to))
	}
	return strings.Join(parts, " ")
}

func searchType(t models.SearchType) spotify.SearchType {
	switch t {
	case models.SearchArtists:
		return spotify.SearchTypeArtist
	case models.SearchTracks:
		return spotify.SearchTypeTrack
	case models.SearchAlbums:
		return spotify.SearchTypeAlbum
	case models.SearchPlaylists:
		return spotify.SearchTypePlaylist
	default:
		return spotify.SearchTypeArtist | spotify.SearchTypeTrack | spotify.SearchTypeAlbum | spotify.SearchTypePlaylist
	}
}

// Search runs an advanced search. Criteria without a query, artist, album or track
// return empty results without calling Spotify. The popularity bucket filters artists
// and tracks after the call.
func (s *SpotifyService) Search(ctx context.Context, c models.SearchCriteria) (*models.SearchResults, error) {
	if err := c.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}

	results := &models.SearchResults{
		Artists:   []models.Artist{},
		Tracks:    []models.Track{},
		Albums:    []models.Album{},
		Playlists: []models.Playlist{},
	}
	if c.Empty() {
		return results, nil
	}

	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}

	opts := []spotify.RequestOption{spotify.Limit(c.Limit)}
	if c.Market != "" {
		opts = append(opts, spotify.Market(c.Market))
	}
	query := BuildSearchQuery(c, time.Now())
	s.logger.Debug("search", "query", query, "type", c.Type)

	res, err := client.Search(ctx, query, searchType(c.Type), opts...)
	if err != nil {
		return nil, wrapErr(err)
	}

	if res.Artists != nil {
		for _, a := range toArtists(res.Artists.Artists) {
			if c.Popularity.Matches(a.Popularity) {
				results.Artists = append(results.Artists, a)
			}
		}
	}
	if res.Tracks != nil {
		for _, t := range toTracks(res.Tracks.Tracks) {
			if c.Popularity.Matches(t.Popularity) {
				results.Tracks = append(results.Tracks, t)
			}
		}
	}
	if res.Albums != nil {
		results.Albums = toAlbums(res.Albums.Albums)
	}
	if res.Playlists != nil {
		results.Playlists = toPlaylists(res.Playlists.Playlists)
	}
	return results, nil
}

// Genres returns the available genre seeds sorted by name, or [FallbackGenres] when
// Spotify cannot provide them.
func (s *SpotifyService) Genres(ctx context.Context) []string {
	client, err := s.catalogClient(ctx)
	if err != nil {
		s.logger.Warn("genre seeds unavailable", "error", err)
		return slices.Clone(FallbackGenres)
	}
	genres, err := client.GetAvailableGenreSeeds(ctx)
	if err != nil || len(genres) == 0 {
		s.logger.Warn("genre seeds unavailable", "error", wrapErr(err))
		return slices.Clone(FallbackGenres)
	}
	slices.Sort(genres)
	return genres
}
