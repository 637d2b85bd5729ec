package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"

	"github.com/desertthunder/spotchat/internal/shared"
	"github.com/desertthunder/spotchat/internal/store"
)

// fakeArtists fails each call with the queued errors before succeeding.
type fakeArtists struct {
	mu          sync.Mutex
	artistErrs  []error
	topErrs     []error
	artistCalls int
	topCalls    int
}

func (f *fakeArtists) GetArtist(_ context.Context, id spotify.ID) (*spotify.FullArtist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artistCalls++
	if len(f.artistErrs) > 0 {
		err := f.artistErrs[0]
		f.artistErrs = f.artistErrs[1:]
		return nil, err
	}
	return &spotify.FullArtist{
		SimpleArtist: spotify.SimpleArtist{ID: id, Name: "Radiohead"},
		Popularity:   80,
		Genres:       []string{"art rock", "alternative"},
		Followers:    spotify.Followers{Count: 9000000},
		Images:       []spotify.Image{{URL: "small.jpg", Width: 64}, {URL: "big.jpg", Width: 640}},
	}, nil
}

func (f *fakeArtists) GetArtistsTopTracks(_ context.Context, _ spotify.ID, _ string) ([]spotify.FullTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topCalls++
	if len(f.topErrs) > 0 {
		err := f.topErrs[0]
		f.topErrs = f.topErrs[1:]
		return nil, err
	}
	return make([]spotify.FullTrack, 10), nil
}

func newMetricsService(src artistSource, cache store.Store) *SpotifyService {
	svc := NewSpotifyService(SpotifyOpts{Cache: cache})
	svc.metricsSource = src
	svc.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, metricsAttempts-1)
	}
	return svc
}

func TestBasicMetrics(t *testing.T) {
	ctx := context.Background()

	t.Run("combines artist and top tracks", func(t *testing.T) {
		svc := newMetricsService(&fakeArtists{}, nil)

		m, err := svc.BasicMetrics(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "a1", m.ArtistID)
		assert.Equal(t, 9000000, m.Followers)
		assert.Equal(t, 80, m.Popularity)
		assert.Equal(t, 10, m.TopTracksCount)
		assert.Equal(t, 2, m.GenreCount)
		assert.Equal(t, "big.jpg", m.PrimaryImageURL)
		assert.WithinDuration(t, time.Now(), m.RetrievedAt, time.Minute)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		src := &fakeArtists{
			artistErrs: []error{
				spotify.Error{Status: http.StatusServiceUnavailable, Message: "down"},
				spotify.Error{Status: http.StatusTooManyRequests, Message: "slow down"},
			},
		}
		svc := newMetricsService(src, nil)

		_, err := svc.BasicMetrics(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, 3, src.artistCalls)
		assert.Equal(t, 1, src.topCalls)
	})

	t.Run("gives up after three attempts", func(t *testing.T) {
		down := spotify.Error{Status: http.StatusBadGateway, Message: "bad gateway"}
		src := &fakeArtists{topErrs: []error{down, down, down, down}}
		svc := newMetricsService(src, nil)

		_, err := svc.BasicMetrics(ctx, "a1")
		up, ok := shared.AsUpstream(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadGateway, up.Status)
		assert.Equal(t, 3, src.topCalls)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		src := &fakeArtists{artistErrs: []error{spotify.Error{Status: http.StatusNotFound, Message: "missing"}}}
		svc := newMetricsService(src, nil)

		_, err := svc.BasicMetrics(ctx, "nope")
		require.Error(t, err)
		assert.Equal(t, 1, src.artistCalls)
	})

	t.Run("caches results", func(t *testing.T) {
		cache := store.NewMemoryStore()
		src := &fakeArtists{}
		svc := newMetricsService(src, cache)

		first, err := svc.BasicMetrics(ctx, "a1")
		require.NoError(t, err)
		second, err := svc.BasicMetrics(ctx, "a1")
		require.NoError(t, err)

		assert.Equal(t, 1, src.artistCalls)
		assert.Equal(t, first.Followers, second.Followers)
		assert.True(t, first.RetrievedAt.Equal(second.RetrievedAt))

		_, err = cache.Get(ctx, metricsKey("a1"))
		assert.NoError(t, err)
	})

	t.Run("requires an artist id", func(t *testing.T) {
		svc := newMetricsService(&fakeArtists{}, nil)
		_, err := svc.BasicMetrics(ctx, "")
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})

	t.Run("default policy waits between attempts", func(t *testing.T) {
		b := newMetricsBackOff()
		assert.Equal(t, 500*time.Millisecond, b.NextBackOff())
		assert.Equal(t, time.Second, b.NextBackOff())
		assert.Equal(t, backoff.Stop, b.NextBackOff())
	})

	t.Run("context cancellation is not retried", func(t *testing.T) {
		src := &fakeArtists{artistErrs: []error{context.Canceled}}
		svc := newMetricsService(src, nil)

		_, err := svc.BasicMetrics(ctx, "a1")
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, 1, src.artistCalls)
	})
}
