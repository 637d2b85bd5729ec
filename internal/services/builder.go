package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotchat/internal/auth"
	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
	"github.com/desertthunder/spotchat/internal/store"
)

// DraftKey is the session key holding the playlist builder selection.
const DraftKey = "playlist_builder"

const (
	draftTopTracks       = 10
	recommendSearchLimit = 20
	recommendLimit       = 10
)

// builderMusic is the part of [SpotifyService] the builder depends on.
type builderMusic interface {
	TopTracks(ctx context.Context, tr models.TimeRange, limit int) ([]models.Track, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error)
	CreatePlaylist(ctx context.Context, p models.NewPlaylist) (*models.Playlist, error)
}

// PlaylistBuilder keeps a draft playlist in the user's session until it is saved.
type PlaylistBuilder struct {
	music   builderMusic
	session auth.Session
	logger  *log.Logger
}

// NewPlaylistBuilder creates a builder for the user owning sess.
func NewPlaylistBuilder(music builderMusic, sess auth.Session, logger *log.Logger) *PlaylistBuilder {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PlaylistBuilder{music: music, session: sess, logger: shared.WithLogger(logger, "component", "builder")}
}

// Draft returns the current selection. A missing or unreadable draft is empty.
func (b *PlaylistBuilder) Draft(ctx context.Context) (models.PlaylistDraft, error) {
	draft := models.PlaylistDraft{Tracks: []models.DraftTrack{}}
	data, err := b.session.Get(ctx, DraftKey)
	if errors.Is(err, store.ErrNotFound) {
		return draft, nil
	}
	if err != nil {
		return draft, err
	}
	if err := json.Unmarshal(data, &draft); err != nil {
		b.logger.Warn("discarding unreadable playlist draft", "error", err)
		return models.PlaylistDraft{Tracks: []models.DraftTrack{}}, nil
	}
	return draft, nil
}

func (b *PlaylistBuilder) save(ctx context.Context, draft models.PlaylistDraft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	return b.session.Set(ctx, DraftKey, data)
}

// Add appends tracks that are not selected yet.
func (b *PlaylistBuilder) Add(ctx context.Context, tracks ...models.DraftTrack) (models.PlaylistDraft, error) {
	draft, err := b.Draft(ctx)
	if err != nil {
		return draft, err
	}
	for _, t := range tracks {
		if strings.TrimSpace(t.URI) == "" {
			return draft, fmt.Errorf("%w: track uri", shared.ErrMissingArgument)
		}
		if !draft.Contains(t.URI) {
			draft.Tracks = append(draft.Tracks, t)
		}
	}
	return draft, b.save(ctx, draft)
}

// Remove drops uri from the selection.
func (b *PlaylistBuilder) Remove(ctx context.Context, uri string) (models.PlaylistDraft, error) {
	draft, err := b.Draft(ctx)
	if err != nil {
		return draft, err
	}
	kept := draft.Tracks[:0]
	for _, t := range draft.Tracks {
		if t.URI != uri {
			kept = append(kept, t)
		}
	}
	draft.Tracks = kept
	return draft, b.save(ctx, draft)
}

// Clear discards the draft.
func (b *PlaylistBuilder) Clear(ctx context.Context) error {
	return b.session.Delete(ctx, DraftKey)
}

// AddTopTracks adds the user's top 10 tracks of the last four weeks.
func (b *PlaylistBuilder) AddTopTracks(ctx context.Context) (models.PlaylistDraft, error) {
	top, err := b.music.TopTracks(ctx, models.ShortTerm, draftTopTracks)
	if err != nil {
		return models.PlaylistDraft{}, err
	}
	tracks := make([]models.DraftTrack, 0, len(top))
	for _, t := range top {
		tracks = append(tracks, models.NewDraftTrack(t))
	}
	return b.Add(ctx, tracks...)
}

// Recommend suggests up to 10 tracks by the first artist of the first selected track,
// excluding tracks already in the draft. An empty draft yields no suggestions.
func (b *PlaylistBuilder) Recommend(ctx context.Context) ([]models.Track, error) {
	draft, err := b.Draft(ctx)
	if err != nil {
		return nil, err
	}
	if len(draft.Tracks) == 0 {
		return []models.Track{}, nil
	}

	artist, _, _ := strings.Cut(draft.Tracks[0].Artist, ",")
	artist = strings.TrimSpace(artist)
	if artist == "" {
		return []models.Track{}, nil
	}

	results, err := b.music.SearchTracks(ctx, artist, recommendSearchLimit)
	if err != nil {
		return nil, err
	}
	recs := make([]models.Track, 0, recommendLimit)
	for _, t := range results {
		if draft.Contains(t.URI) {
			continue
		}
		recs = append(recs, t)
		if len(recs) == recommendLimit {
			break
		}
	}
	return recs, nil
}

// Save creates a playlist from the draft and clears it.
func (b *PlaylistBuilder) Save(ctx context.Context, name, description string, public bool) (*models.Playlist, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrValidation)
	}
	draft, err := b.Draft(ctx)
	if err != nil {
		return nil, err
	}

	playlist, err := b.music.CreatePlaylist(ctx, models.NewPlaylist{
		Name:        name,
		Description: description,
		Public:      public,
		TrackURIs:   draft.URIs(),
	})
	if err != nil {
		return nil, err
	}
	if err := b.Clear(ctx); err != nil {
		b.logger.Warn("failed to clear playlist draft", "error", err)
	}
	return playlist, nil
}
