// package models defines the data model for the spotchat web service
package models

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenRecord is the user's OAuth token as persisted in the session.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Scope        string    `json:"scope,omitempty"`
}

// NewTokenRecord converts an [oauth2.Token] to a TokenRecord, carrying the granted scope when the server sent one.
func NewTokenRecord(t *oauth2.Token) TokenRecord {
	rec := TokenRecord{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if scope, ok := t.Extra("scope").(string); ok {
		rec.Scope = scope
	}
	return rec
}

// Token converts the record back to an [oauth2.Token].
func (r TokenRecord) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.Expiry,
	}
}

// PKCEChallenge is the per-login PKCE material. Only Challenge and State leave the server.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	State     string
}

// TimeRange is Spotify's listening-history window.
type TimeRange int

const (
	MediumTerm TimeRange = iota
	ShortTerm
	LongTerm
)

// String returns the API value ("short_term", "medium_term", "long_term").
func (t TimeRange) String() string {
	switch t {
	case ShortTerm:
		return "short_term"
	case LongTerm:
		return "long_term"
	default:
		return "medium_term"
	}
}

// Label returns a human readable description of the window.
func (t TimeRange) Label() string {
	switch t {
	case ShortTerm:
		return "Last 4 weeks"
	case LongTerm:
		return "All time"
	default:
		return "Last 6 months"
	}
}

// ParseTimeRange maps an API value to a TimeRange, defaulting to [MediumTerm].
func ParseTimeRange(s string) TimeRange {
	switch s {
	case "short_term", "short":
		return ShortTerm
	case "long_term", "long":
		return LongTerm
	default:
		return MediumTerm
	}
}

// UserProfile is the current user's account.
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Country     string `json:"country,omitempty"`
	Product     string `json:"product,omitempty"`
	Followers   int    `json:"followers"`
	ImageURL    string `json:"image_url,omitempty"`
	URI         string `json:"uri"`
}

// Artist is a Spotify artist.
type Artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres,omitempty"`
	Popularity int      `json:"popularity"`
	Followers  int      `json:"followers"`
	ImageURL   string   `json:"image_url,omitempty"`
	URI        string   `json:"uri"`
}

// ArtistRef is the simplified artist embedded in tracks and albums.
type ArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Track is a Spotify track.
type Track struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Artists    []ArtistRef `json:"artists"`
	Album      string      `json:"album,omitempty"`
	AlbumID    string      `json:"album_id,omitempty"`
	DurationMS int         `json:"duration_ms"`
	Popularity int         `json:"popularity"`
	Explicit   bool        `json:"explicit"`
	ImageURL   string      `json:"image_url,omitempty"`
	PreviewURL string      `json:"preview_url,omitempty"`
	URI        string      `json:"uri"`
}

// ArtistNames returns the track's artist names.
func (t Track) ArtistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return names
}

// Album is a Spotify album.
type Album struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Artists     []ArtistRef `json:"artists"`
	AlbumType   string      `json:"album_type"`
	ReleaseDate string      `json:"release_date"`
	TotalTracks int         `json:"total_tracks"`
	ImageURL    string      `json:"image_url,omitempty"`
	URI         string      `json:"uri"`
	Tracks      []Track     `json:"tracks,omitempty"`
}

// Playlist is a Spotify playlist.
type Playlist struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Owner       string  `json:"owner,omitempty"`
	Public      bool    `json:"public"`
	TrackCount  int     `json:"track_count"`
	ImageURL    string  `json:"image_url,omitempty"`
	URI         string  `json:"uri"`
	Tracks      []Track `json:"tracks,omitempty"`
}

// PlayHistory is one recently played entry.
type PlayHistory struct {
	Track    Track     `json:"track"`
	PlayedAt time.Time `json:"played_at"`
}

// NowPlaying is the user's current playback. Track is nil when nothing is playing.
type NowPlaying struct {
	Track      *Track `json:"track,omitempty"`
	IsPlaying  bool   `json:"is_playing"`
	ProgressMS int    `json:"progress_ms"`
}

// Category is a browse category.
type Category struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// ArtistMetrics is a summary of an artist's reach.
type ArtistMetrics struct {
	ArtistID        string    `json:"artist_id"`
	Name            string    `json:"name"`
	Followers       int       `json:"followers"`
	Popularity      int       `json:"popularity"`
	TopTracksCount  int       `json:"top_tracks_count"`
	GenreCount      int       `json:"genre_count"`
	PrimaryImageURL string    `json:"primary_image_url,omitempty"`
	RetrievedAt     time.Time `json:"retrieved_at"`
}

// ArtistDetails combines an artist with their releases and top tracks.
type ArtistDetails struct {
	Artist    Artist  `json:"artist"`
	Albums    []Album `json:"albums"`
	TopTracks []Track `json:"top_tracks"`
}

// ProfileOverview is the data shown on the user's profile page.
type ProfileOverview struct {
	Profile    UserProfile `json:"profile"`
	TopTracks  []Track     `json:"top_tracks"`
	TopArtists []Artist    `json:"top_artists"`
	TopAlbums  []Album     `json:"top_albums"`
}

// NewPlaylist describes a playlist to create for the current user.
type NewPlaylist struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Public      bool     `json:"public"`
	TrackURIs   []string `json:"track_uris"`
}

// DraftTrack is a track selected in the playlist builder.
type DraftTrack struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Artist   string `json:"artist"`
	ImageURL string `json:"image_url,omitempty"`
}

// NewDraftTrack converts a track to a [DraftTrack], joining its artist names.
func NewDraftTrack(t Track) DraftTrack {
	return DraftTrack{URI: t.URI, Name: t.Name, Artist: strings.Join(t.ArtistNames(), ", "), ImageURL: t.ImageURL}
}

// PlaylistDraft is the builder's session-held selection, in insertion order.
type PlaylistDraft struct {
	Tracks []DraftTrack `json:"tracks"`
}

// Contains reports whether uri is already selected.
func (d PlaylistDraft) Contains(uri string) bool {
	for _, t := range d.Tracks {
		if t.URI == uri {
			return true
		}
	}
	return false
}

// URIs returns the selected track URIs.
func (d PlaylistDraft) URIs() []string {
	uris := make([]string, 0, len(d.Tracks))
	for _, t := range d.Tracks {
		uris = append(uris, t.URI)
	}
	return uris
}
