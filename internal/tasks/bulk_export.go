package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/spotchat/internal/formatter"
	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
)

const (
	DefaultWorkers   = 5
	MaxWorkers       = 10
	DefaultRateLimit = 5.0

	// ManifestName is the summary file written at the root of every bulk export.
	ManifestName = "export_manifest.json"

	allPlaylistsLimit = 50
)

// BulkExportOpts contains configuration for bulk playlist exports.
type BulkExportOpts struct {
	Format     string  // Export format: one of [formatter.Formats]
	OutputDir  string  // Base output directory (default: spotify_export_{epoch})
	NumWorkers int     // Concurrent writers (default: 5, at most 10)
	RateLimit  float64 // Playlist fetches per second (default: 5)
}

// PlaylistExportResult is the outcome of exporting one playlist.
type PlaylistExportResult struct {
	PlaylistID   string   `json:"playlist_id"`
	PlaylistName string   `json:"playlist_name"`
	Success      bool     `json:"success"`
	Files        []string `json:"files,omitempty"`
	Error        string   `json:"error,omitempty"`

	index int
}

// BulkExportResult summarizes a bulk export. It is also the manifest's content.
type BulkExportResult struct {
	Format            string                 `json:"format"`
	OutputDirectory   string                 `json:"output_directory"`
	ExportedAt        time.Time              `json:"exported_at"`
	TotalPlaylists    int                    `json:"total_playlists"`
	SuccessfulExports int                    `json:"successful_exports"`
	FailedExports     int                    `json:"failed_exports"`
	Results           []PlaylistExportResult `json:"results"`
	ManifestPath      string                 `json:"-"`
}

// Exporter writes playlists from a [Source] to disk.
type Exporter struct {
	source     Source
	httpClient *http.Client
	logger     *log.Logger
}

// NewExporter creates an [Exporter]. httpClient downloads markdown cover images.
func NewExporter(source Source, httpClient *http.Client, logger *log.Logger) *Exporter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Exporter{
		source:     source,
		httpClient: httpClient,
		logger:     shared.WithLogger(logger, "component", "export"),
	}
}

// BulkExport exports the playlists in ids, or every playlist of the user when ids is empty.
//
// Playlists are fetched sequentially at opts.RateLimit per second and written by a worker pool.
// A failed playlist is recorded in the result; only setup failures and cancellation return an error.
// Results keep the order of ids.
func (e *Exporter) BulkExport(ctx context.Context, prog chan<- ProgressUpdate, ids []string, opts BulkExportOpts) (*BulkExportResult, error) {
	if !slices.Contains(formatter.Formats, opts.Format) {
		return nil, fmt.Errorf("%w: format must be one of %s", shared.ErrInvalidArgument, strings.Join(formatter.Formats, ", "))
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("spotify_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = DefaultWorkers
	}
	opts.NumWorkers = min(opts.NumWorkers, MaxWorkers)
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}

	if len(ids) == 0 {
		playlists, err := e.source.Playlists(ctx, allPlaylistsLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to list playlists: %w", err)
		}
		for _, p := range playlists {
			ids = append(ids, p.ID)
		}
		sendProgress(prog, listPlaylistsUpdate(len(ids)))
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		Format:          opts.Format,
		OutputDirectory: opts.OutputDir,
		ExportedAt:      time.Now().UTC(),
		TotalPlaylists:  len(ids),
		Results:         make([]PlaylistExportResult, 0, len(ids)),
	}

	type job struct {
		index    int
		playlist *models.Playlist
	}
	jobs := make(chan job)
	results := make(chan PlaylistExportResult, len(ids))
	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res := e.exportOne(ctx, j.playlist, opts)
				res.index = j.index
				results <- res
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, id := range ids {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			p, err := e.source.Playlist(ctx, id)
			if err != nil {
				e.logger.Warn("failed to fetch playlist", "id", id, "error", err)
				results <- PlaylistExportResult{
					PlaylistID:   id,
					PlaylistName: fmt.Sprintf("Unknown (%s)", id),
					Error:        fmt.Sprintf("failed to fetch playlist: %v", err),
					index:        i,
				}
				continue
			}
			sendProgress(prog, fetchPlaylistUpdate(i+1, len(ids), p))

			select {
			case jobs <- job{index: i, playlist: p}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		if res.Success {
			result.SuccessfulExports++
			sendProgress(prog, exportCompletedUpdate(completed, len(ids), res.PlaylistName, len(res.Files)))
		} else {
			result.FailedExports++
			sendProgress(prog, exportFailedUpdate(completed, len(ids), res.PlaylistName, res.Error))
		}
	}
	sort.Slice(result.Results, func(i, j int) bool {
		return result.Results[i].index < result.Results[j].index
	})

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("export interrupted after %d of %d playlists: %w", completed, len(ids), err)
	}

	manifestPath := filepath.Join(opts.OutputDir, ManifestName)
	if err := writeManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	sendProgress(prog, manifestUpdate(manifestPath))

	e.logger.Info("bulk export finished", "total", result.TotalPlaylists, "ok", result.SuccessfulExports, "failed", result.FailedExports)
	return result, nil
}

// exportOne writes a single playlist under the output directory, named by its ID.
func (e *Exporter) exportOne(ctx context.Context, p *models.Playlist, opts BulkExportOpts) PlaylistExportResult {
	result := PlaylistExportResult{
		PlaylistID:   p.ID,
		PlaylistName: p.Name,
	}

	res, err := formatter.WriteExport(ctx, p, opts.Format, filepath.Join(opts.OutputDir, p.ID), e.httpClient)
	if err != nil {
		result.Error = fmt.Sprintf("%s export failed: %v", opts.Format, err)
		return result
	}
	result.Files = res.Files
	result.Success = true
	return result
}

func writeManifest(result *BulkExportResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
