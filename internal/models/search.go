package models

import (
	"fmt"
	"slices"
	"strings"
)

// SearchType selects which kinds of item a search returns.
type SearchType string

const (
	SearchAll       SearchType = "all"
	SearchArtists   SearchType = "artists"
	SearchTracks    SearchType = "tracks"
	SearchAlbums    SearchType = "albums"
	SearchPlaylists SearchType = "playlists"
)

// Popularity is a coarse popularity bucket over Spotify's 0-100 score.
type Popularity string

const (
	PopularityAny    Popularity = ""
	PopularityLow    Popularity = "low"
	PopularityMedium Popularity = "medium"
	PopularityHigh   Popularity = "high"
)

// Matches reports whether score falls in the bucket: low [0,33], medium (33,66], high (66,100].
func (p Popularity) Matches(score int) bool {
	switch p {
	case PopularityLow:
		return score <= 33
	case PopularityMedium:
		return score > 33 && score <= 66
	case PopularityHigh:
		return score > 66
	default:
		return true
	}
}

// Markets lists the markets offered by the search form. The empty string means any market.
var Markets = []string{"", "US", "GB", "CA", "AU", "DE", "FR", "ES", "IT", "JP"}

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
)

// SearchCriteria is a user supplied search filter set.
type SearchCriteria struct {
	Query      string     `json:"query"`
	Type       SearchType `json:"type"`
	Genre      string     `json:"genre,omitempty"`
	Year       int        `json:"year,omitempty"`
	FromYear   int        `json:"from_year,omitempty"`
	ToYear     int        `json:"to_year,omitempty"`
	Artist     string     `json:"artist,omitempty"`
	Album      string     `json:"album,omitempty"`
	Track      string     `json:"track,omitempty"`
	Market     string     `json:"market,omitempty"`
	Popularity Popularity `json:"popularity,omitempty"`
	Limit      int        `json:"limit"`
}

// Normalize trims text fields, clamps Limit to [1, 50] (0 means the default of 20)
// and validates the enumerated fields.
func (c *SearchCriteria) Normalize() error {
	c.Query = strings.TrimSpace(c.Query)
	c.Genre = strings.TrimSpace(c.Genre)
	c.Artist = strings.TrimSpace(c.Artist)
	c.Album = strings.TrimSpace(c.Album)
	c.Track = strings.TrimSpace(c.Track)
	c.Market = strings.ToUpper(strings.TrimSpace(c.Market))

	switch {
	case c.Limit == 0:
		c.Limit = DefaultSearchLimit
	case c.Limit < 1:
		c.Limit = 1
	case c.Limit > MaxSearchLimit:
		c.Limit = MaxSearchLimit
	}

	c.Type = SearchType(strings.ToLower(string(c.Type)))
	switch c.Type {
	case "":
		c.Type = SearchAll
	case SearchAll, SearchArtists, SearchTracks, SearchAlbums, SearchPlaylists:
	default:
		return fmt.Errorf("unknown search type %q", c.Type)
	}

	c.Popularity = Popularity(strings.ToLower(string(c.Popularity)))
	switch c.Popularity {
	case PopularityAny, PopularityLow, PopularityMedium, PopularityHigh:
	default:
		return fmt.Errorf("unknown popularity %q", c.Popularity)
	}

	if !slices.Contains(Markets, c.Market) {
		return fmt.Errorf("unsupported market %q", c.Market)
	}

	if c.FromYear != 0 && c.ToYear != 0 && c.FromYear > c.ToYear {
		return fmt.Errorf("from_year %d is after to_year %d", c.FromYear, c.ToYear)
	}
	return nil
}

// Empty reports whether the criteria has nothing to search for.
func (c SearchCriteria) Empty() bool {
	return c.Query == "" && c.Artist == "" && c.Album == "" && c.Track == ""
}

// SearchResults groups the items returned by an advanced search.
type SearchResults struct {
	Artists   []Artist   `json:"artists"`
	Tracks    []Track    `json:"tracks"`
	Albums    []Album    `json:"albums"`
	Playlists []Playlist `json:"playlists"`
}
