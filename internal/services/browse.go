package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
)

const (
	categoryPageSize  = 50
	categoryPlaylists = 100
	// MaxCategories caps how many categories one playlist lookup may select.
	MaxCategories = 5
)

// categoryMarkets is tried in order when a category has no playlists. The empty
// market lets Spotify pick.
var categoryMarkets = []string{"US", "", "GB", "CA"}

// Categories returns the browse categories sorted by name.
func (s *SpotifyService) Categories(ctx context.Context) ([]models.Category, error) {
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := client.GetCategories(ctx, spotify.Country(s.market), spotify.Limit(categoryPageSize))
	if err != nil {
		return nil, wrapErr(err)
	}

	categories := make([]models.Category, 0, len(page.Categories))
	for _, c := range page.Categories {
		if strings.TrimSpace(c.ID) == "" {
			continue
		}
		name := c.Name
		if name == "" {
			name = c.ID
		}
		categories = append(categories, models.Category{ID: c.ID, Name: name, IconURL: widestImage(c.Icons)})
	}
	slices.SortFunc(categories, func(a, b models.Category) int { return cmp.Compare(a.Name, b.Name) })
	return categories, nil
}

// CategoryPlaylists returns up to 100 playlists for a category, trying each fallback
// market until one returns results. A 404 moves on to the next market; an empty
// slice means no market had playlists.
func (s *SpotifyService) CategoryPlaylists(ctx context.Context, categoryID string) ([]models.Playlist, error) {
	if categoryID == "" {
		return nil, fmt.Errorf("%w: category id", shared.ErrMissingArgument)
	}
	client, err := s.catalogClient(ctx)
	if err != nil {
		return nil, err
	}

	for _, market := range categoryMarkets {
		playlists, err := s.categoryPlaylistsIn(ctx, client, categoryID, market)
		if isNotFound(err) {
			s.logger.Debug("category not found in market", "category", categoryID, "market", market)
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(playlists) > 0 {
			if market != s.market {
				s.logger.Info("category playlists from fallback market", "category", categoryID, "market", market, "count", len(playlists))
			}
			return playlists, nil
		}
	}
	return []models.Playlist{}, nil
}

func (s *SpotifyService) categoryPlaylistsIn(ctx context.Context, client *spotify.Client, categoryID, market string) ([]models.Playlist, error) {
	var playlists []models.Playlist
	for offset := 0; offset < categoryPlaylists; offset += categoryPageSize {
		opts := []spotify.RequestOption{spotify.Limit(categoryPageSize), spotify.Offset(offset)}
		if market != "" {
			opts = append(opts, spotify.Country(market))
		}
		page, err := client.GetCategoryPlaylists(ctx, categoryID, opts...)
		if err != nil {
			return nil, wrapErr(err)
		}
		playlists = append(playlists, toPlaylists(page.Playlists)...)
		if len(page.Playlists) < categoryPageSize {
			break
		}
	}
	return playlists, nil
}

// PlaylistsByCategory fetches playlists for up to [MaxCategories] distinct selected
// categories. Unknown ids are ignored when known is non-empty.
func (s *SpotifyService) PlaylistsByCategory(ctx context.Context, selected []string, known []models.Category) (map[string][]models.Playlist, error) {
	allowed := map[string]bool{}
	for _, c := range known {
		allowed[strings.ToLower(c.ID)] = true
	}

	var ids []string
	seen := map[string]bool{}
	for _, id := range selected {
		key := strings.ToLower(strings.TrimSpace(id))
		if key == "" || seen[key] || (len(allowed) > 0 && !allowed[key]) {
			continue
		}
		seen[key] = true
		ids = append(ids, strings.TrimSpace(id))
		if len(ids) == MaxCategories {
			break
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no valid categories selected", shared.ErrValidation)
	}

	out := make(map[string][]models.Playlist, len(ids))
	for _, id := range ids {
		playlists, err := s.CategoryPlaylists(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = playlists
	}
	return out, nil
}
