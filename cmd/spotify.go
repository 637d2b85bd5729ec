package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotchat/internal/formatter"
	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
	"github.com/desertthunder/spotchat/internal/tasks"
	"github.com/desertthunder/spotchat/internal/ui"
)

const tuiLogPath = "./tmp/spotchat-tui.log"

// Chat answers one message, or launches the interactive terminal UI when no message is given.
func (r *Runner) Chat(ctx context.Context, cmd *cli.Command) error {
	message := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if message == "" {
		return r.TUI(ctx)
	}

	if err := r.init(ctx); err != nil {
		return err
	}
	result := r.dispatcher().Dispatch(ctx, message)
	r.logger.Debug("chat reply", "intent", result.Intent, "outcome", result.Outcome)
	if result.Err != nil {
		r.logger.Debug("chat handler failed", "error", result.Err)
	}
	return r.writePlain("%s\n", result.Reply)
}

// TUI launches the interactive chat.
func (r *Runner) TUI(ctx context.Context) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	if err := r.init(ctx); err != nil {
		return err
	}

	model := ui.NewModel(ctx, r.dispatcher(), r.userService())
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// searchCriteria builds the search criteria from the command's arguments and flags.
func searchCriteria(cmd *cli.Command) (models.SearchCriteria, error) {
	c := models.SearchCriteria{
		Query:      strings.Join(cmd.Args().Slice(), " "),
		Type:       models.SearchType(cmd.String("type")),
		Genre:      cmd.String("genre"),
		Year:       int(cmd.Int("year")),
		FromYear:   int(cmd.Int("from-year")),
		ToYear:     int(cmd.Int("to-year")),
		Artist:     cmd.String("artist"),
		Album:      cmd.String("album"),
		Track:      cmd.String("track"),
		Market:     cmd.String("market"),
		Popularity: models.Popularity(cmd.String("popularity")),
		Limit:      int(cmd.Int("limit")),
	}
	if err := c.Normalize(); err != nil {
		return c, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if c.Empty() {
		return c, fmt.Errorf("%w: a query or one of --artist, --album, --track is required", shared.ErrMissingArgument)
	}
	return c, nil
}

// Search runs an advanced catalog search.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	criteria, err := searchCriteria(cmd)
	if err != nil {
		return err
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	r.logger.Infof("searching spotify for %q (%v)", criteria.Query, criteria.Type)

	results, err := r.userService().Search(ctx, criteria)
	if err != nil {
		return r.notLoggedIn(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(results, cmd.Bool("pretty"))
	}

	label := criteria.Query
	if label == "" {
		label = strings.TrimSpace(strings.Join([]string{criteria.Artist, criteria.Album, criteria.Track}, " "))
	}

	if len(results.Artists) > 0 {
		r.writePlainHeader("Artists")
		for i, a := range results.Artists {
			r.writePlain("%d. %s\n", i+1, a.Name)
			r.writePlain("   Followers: %s | Popularity: %d/100\n", formatter.FormatCount(a.Followers), a.Popularity)
			if len(a.Genres) > 0 {
				r.writePlain("   Genres: %s\n", strings.Join(a.Genres, ", "))
			}
		}
		r.writePlain("\n")
	}
	if len(results.Tracks) > 0 {
		r.writePlain("%s\n", formatter.TrackResults(label, results.Tracks))
	}
	if len(results.Albums) > 0 {
		r.writePlainHeader("Albums")
		for i, a := range results.Albums {
			names := make([]string, len(a.Artists))
			for j, artist := range a.Artists {
				names[j] = artist.Name
			}
			r.writePlain("%d. %s - %s (%s)\n", i+1, strings.Join(names, ", "), a.Name, a.ReleaseDate)
		}
		r.writePlain("\n")
	}
	if len(results.Playlists) > 0 {
		r.writePlainHeader("Playlists")
		for i, p := range results.Playlists {
			r.writePlain("%d. %s\n", i+1, p.Name)
			r.writePlain("   by %s | %d tracks\n", p.Owner, p.TrackCount)
		}
		r.writePlain("\n")
	}

	if len(results.Artists)+len(results.Tracks)+len(results.Albums)+len(results.Playlists) == 0 {
		return r.writePlain("No results for '%s'.\n", label)
	}
	return nil
}

// Metrics shows an artist's reach metrics.
func (r *Runner) Metrics(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: artist id is required", shared.ErrMissingArgument)
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	metrics, err := r.userService().BasicMetrics(ctx, id)
	if err != nil {
		return r.notLoggedIn(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(metrics, cmd.Bool("pretty"))
	}
	return r.writePlain("%s", formatter.ArtistStats(metrics))
}

// Playlists lists the user's playlists.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	limit := int(cmd.Int("limit"))
	if err := r.init(ctx); err != nil {
		return err
	}

	r.logger.Infof("listing spotify playlists with limit %v", limit)

	playlists, err := r.userService().Playlists(ctx, limit)
	if err != nil {
		return r.notLoggedIn(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		r.writePlain("   Visibility: %s\n", formatter.VisibilityString(p.Public))
		r.writePlain("\n")
	}

	return nil
}

// Export writes the given playlists, or all of the user's playlists, to disk.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	opts := tasks.BulkExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate"),
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			r.writePlain("[%v %d/%d] %s\n", update.Phase, update.Step, update.Total, update.Message)
		}
	}()

	exporter := tasks.NewExporter(r.userService(), r.httpClient, r.logger)
	result, err := exporter.BulkExport(ctx, progress, cmd.Args().Slice(), opts)
	close(progress)
	wg.Wait()
	if err != nil {
		return r.notLoggedIn(err)
	}

	r.writePlainln("✓ Exported %d of %d playlists to %s", result.SuccessfulExports, result.TotalPlaylists, result.OutputDirectory)
	for _, res := range result.Results {
		if !res.Success {
			r.writePlain("  ✗ %s: %s\n", res.PlaylistName, res.Error)
		}
	}
	return r.writePlain("Manifest: %s\n", result.ManifestPath)
}
