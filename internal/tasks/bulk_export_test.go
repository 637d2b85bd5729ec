package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/spotchat/internal/formatter"
	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
)

type fakeSource struct {
	playlists map[string]models.Playlist
	order     []string
	listErr   error
}

func newFakeSource(n int) *fakeSource {
	s := &fakeSource{playlists: map[string]models.Playlist{}}
	for i := range n {
		id := "playlist" + string(rune('1'+i))
		s.order = append(s.order, id)
		s.playlists[id] = models.Playlist{
			ID:         id,
			Name:       "Playlist " + string(rune('A'+i)),
			Owner:      "me",
			TrackCount: 1,
			Tracks: []models.Track{{
				ID:         "t" + id,
				Name:       "Song",
				URI:        "spotify:track:t" + id,
				Artists:    []models.ArtistRef{{Name: "Artist"}},
				DurationMS: 61000,
			}},
		}
	}
	return s
}

func (s *fakeSource) Playlists(context.Context, int) ([]models.Playlist, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.Playlist, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.playlists[id])
	}
	return out, nil
}

func (s *fakeSource) Playlist(_ context.Context, id string) (*models.Playlist, error) {
	p, ok := s.playlists[id]
	if !ok {
		return nil, &shared.UpstreamError{Service: "spotify", Status: 404, Message: "Not found"}
	}
	return &p, nil
}

func fastOpts(format, dir string) BulkExportOpts {
	return BulkExportOpts{Format: format, OutputDir: dir, NumWorkers: 3, RateLimit: 1000}
}

func TestBulkExport(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		format    string
		count     int
		wantFiles func(dir, id string) []string
	}{
		{
			name:   "json",
			format: formatter.FormatJSON,
			count:  1,
			wantFiles: func(dir, id string) []string {
				return []string{filepath.Join(dir, id+".json")}
			},
		},
		{
			name:   "csv writes tracks and metadata",
			format: formatter.FormatCSV,
			count:  3,
			wantFiles: func(dir, id string) []string {
				return []string{filepath.Join(dir, id+"_tracks.csv"), filepath.Join(dir, id+"_metadata.json")}
			},
		},
		{
			name:   "text",
			format: formatter.FormatText,
			count:  2,
			wantFiles: func(dir, id string) []string {
				return []string{filepath.Join(dir, id+"_tracks.txt")}
			},
		},
		{
			name:   "markdown",
			format: formatter.FormatMarkdown,
			count:  2,
			wantFiles: func(dir, id string) []string {
				return []string{filepath.Join(dir, id, "README.md")}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := newFakeSource(tt.count)
			e := NewExporter(src, nil, shared.NewLogger(nil))

			result, err := e.BulkExport(ctx, nil, src.order, fastOpts(tt.format, dir))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.SuccessfulExports != tt.count || result.FailedExports != 0 {
				t.Fatalf("expected %d successes and no failures, got %d/%d", tt.count, result.SuccessfulExports, result.FailedExports)
			}

			for i, res := range result.Results {
				if res.PlaylistID != src.order[i] {
					t.Errorf("result %d: expected %s, got %s", i, src.order[i], res.PlaylistID)
				}
				want := tt.wantFiles(dir, res.PlaylistID)
				if strings.Join(res.Files, ",") != strings.Join(want, ",") {
					t.Errorf("expected files %v, got %v", want, res.Files)
				}
				for _, f := range want {
					if _, err := os.Stat(f); err != nil {
						t.Errorf("expected %s to exist: %v", f, err)
					}
				}
			}
		})
	}

	t.Run("manifest", func(t *testing.T) {
		dir := t.TempDir()
		src := newFakeSource(2)
		e := NewExporter(src, nil, nil)

		result, err := e.BulkExport(ctx, nil, src.order, fastOpts(formatter.FormatJSON, dir))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ManifestPath != filepath.Join(dir, ManifestName) {
			t.Fatalf("unexpected manifest path %s", result.ManifestPath)
		}

		data, err := os.ReadFile(result.ManifestPath)
		if err != nil {
			t.Fatalf("failed to read manifest: %v", err)
		}
		var manifest BulkExportResult
		if err := json.Unmarshal(data, &manifest); err != nil {
			t.Fatalf("manifest is not valid JSON: %v", err)
		}
		if manifest.Format != "json" || manifest.TotalPlaylists != 2 || len(manifest.Results) != 2 {
			t.Errorf("unexpected manifest: %+v", manifest)
		}
	})

	t.Run("failed playlists are recorded", func(t *testing.T) {
		dir := t.TempDir()
		src := newFakeSource(2)
		ids := []string{src.order[0], "missing", src.order[1]}
		prog := make(chan ProgressUpdate, 20)

		result, err := NewExporter(src, nil, nil).BulkExport(ctx, prog, ids, fastOpts(formatter.FormatJSON, dir))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.SuccessfulExports != 2 || result.FailedExports != 1 {
			t.Fatalf("expected 2 successes and 1 failure, got %d/%d", result.SuccessfulExports, result.FailedExports)
		}

		failed := result.Results[1]
		if failed.PlaylistID != "missing" || failed.Success || !strings.Contains(failed.Error, "failed to fetch playlist") {
			t.Errorf("unexpected failure result: %+v", failed)
		}
		if failed.PlaylistName != "Unknown (missing)" {
			t.Errorf("unexpected name %q", failed.PlaylistName)
		}

		close(prog)
		var sawFailure, sawManifest bool
		for u := range prog {
			if u.Phase == ExportPlaylist && strings.Contains(u.Message, "✗") {
				sawFailure = true
			}
			if u.Phase == WriteManifest {
				sawManifest = true
			}
		}
		if !sawFailure || !sawManifest {
			t.Errorf("expected failure and manifest progress updates (failure=%v manifest=%v)", sawFailure, sawManifest)
		}
	})

	t.Run("all playlists when no ids are given", func(t *testing.T) {
		dir := t.TempDir()
		src := newFakeSource(3)

		result, err := NewExporter(src, nil, nil).BulkExport(ctx, nil, nil, fastOpts(formatter.FormatText, dir))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TotalPlaylists != 3 || result.SuccessfulExports != 3 {
			t.Errorf("expected all 3 playlists exported, got %+v", result)
		}
	})

	t.Run("listing errors are returned", func(t *testing.T) {
		src := &fakeSource{listErr: shared.ErrNotAuthenticated}
		_, err := NewExporter(src, nil, nil).BulkExport(ctx, nil, nil, fastOpts(formatter.FormatJSON, t.TempDir()))
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := NewExporter(newFakeSource(1), nil, nil).BulkExport(ctx, nil, []string{"playlist1"}, fastOpts("xml", t.TempDir()))
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		src := newFakeSource(2)

		result, err := NewExporter(src, nil, nil).BulkExport(cctx, nil, src.order, fastOpts(formatter.FormatJSON, t.TempDir()))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if result == nil || result.SuccessfulExports != 0 {
			t.Errorf("expected an empty partial result, got %+v", result)
		}
	})
}

func TestPhaseString(t *testing.T) {
	for phase, want := range map[Phase]string{
		ListPlaylists:  "list_playlists",
		FetchPlaylist:  "fetch_playlist",
		ExportPlaylist: "export_playlist",
		WriteManifest:  "write_manifest",
		Phase(99):      "",
	} {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}

func TestSendProgress(t *testing.T) {
	t.Run("nil channel", func(t *testing.T) {
		sendProgress(nil, ProgressUpdate{})
	})

	t.Run("full channel does not block", func(t *testing.T) {
		ch := make(chan ProgressUpdate, 1)
		sendProgress(ch, ProgressUpdate{Message: "first"})
		sendProgress(ch, ProgressUpdate{Message: "second"})
		if got := (<-ch).Message; got != "first" {
			t.Errorf("expected first update to be kept, got %q", got)
		}
	})
}
