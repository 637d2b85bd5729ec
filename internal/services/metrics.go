package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
	"github.com/desertthunder/spotchat/internal/store"
)

const (
	// MetricsTTL is how long computed artist metrics stay cached.
	MetricsTTL = 10 * time.Minute

	metricsAttempts     = 3
	metricsInitialDelay = 500 * time.Millisecond
)

// artistSource is the part of [spotify.Client] used for metrics.
type artistSource interface {
	GetArtist(ctx context.Context, id spotify.ID) (*spotify.FullArtist, error)
	GetArtistsTopTracks(ctx context.Context, artistID spotify.ID, country string) ([]spotify.FullTrack, error)
}

// newMetricsBackOff waits 500ms, then 1s, between the three attempts.
func newMetricsBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = metricsInitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, metricsAttempts-1)
}

func metricsKey(artistID string) string {
	return "metrics:artist:" + artistID
}

// BasicMetrics returns follower, popularity, top track and genre counts for an artist.
//
// The artist and their top tracks are fetched concurrently; transient failures are
// retried with exponential backoff. Either call failing fails the whole operation.
// Results are cached for [MetricsTTL].
func (s *SpotifyService) BasicMetrics(ctx context.Context, artistID string) (*models.ArtistMetrics, error) {
	if artistID == "" {
		return nil, fmt.Errorf("%w: artist id", shared.ErrMissingArgument)
	}

	if cached, ok := s.cachedMetrics(ctx, artistID); ok {
		return cached, nil
	}

	src := s.metricsSource
	if src == nil {
		client, err := s.catalogClient(ctx)
		if err != nil {
			return nil, err
		}
		src = client
	}

	var (
		artist *spotify.FullArtist
		top    []spotify.FullTrack
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.retry(gctx, func() (err error) {
			artist, err = src.GetArtist(gctx, spotify.ID(artistID))
			return err
		})
	})
	g.Go(func() error {
		return s.retry(gctx, func() (err error) {
			top, err = src.GetArtistsTopTracks(gctx, spotify.ID(artistID), s.market)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a := toArtist(*artist)
	metrics := &models.ArtistMetrics{
		ArtistID:        artistID,
		Name:            a.Name,
		Followers:       a.Followers,
		Popularity:      a.Popularity,
		TopTracksCount:  len(top),
		GenreCount:      len(a.Genres),
		PrimaryImageURL: a.ImageURL,
		RetrievedAt:     time.Now().UTC(),
	}
	s.storeMetrics(ctx, metrics)
	return metrics, nil
}

// retry runs op under the metrics backoff policy. Only transient upstream errors are retried.
func (s *SpotifyService) retry(ctx context.Context, op func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := wrapErr(op())
		if err == nil {
			return nil
		}
		if up, ok := shared.AsUpstream(err); ok && up.Transient() {
			s.logger.Warn("transient spotify error", "attempt", attempt, "status", up.Status, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(s.backOff(), ctx))
}

func (s *SpotifyService) backOff() backoff.BackOff {
	if s.newBackOff != nil {
		return s.newBackOff()
	}
	return newMetricsBackOff()
}

func (s *SpotifyService) cachedMetrics(ctx context.Context, artistID string) (*models.ArtistMetrics, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, metricsKey(artistID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("metrics cache read failed", "artist", artistID, "error", err)
		}
		return nil, false
	}
	var m models.ArtistMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return &m, true
}

func (s *SpotifyService) storeMetrics(ctx context.Context, m *models.ArtistMetrics) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, metricsKey(m.ArtistID), data, MetricsTTL); err != nil {
		s.logger.Warn("metrics cache write failed", "artist", m.ArtistID, "error", err)
	}
}
