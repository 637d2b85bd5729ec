package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotchat/internal/auth"
	"github.com/desertthunder/spotchat/internal/chat"
	"github.com/desertthunder/spotchat/internal/services"
	"github.com/desertthunder/spotchat/internal/session"
	"github.com/desertthunder/spotchat/internal/shared"
	"github.com/desertthunder/spotchat/internal/store"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The store and services are created on first use, so commands that do not talk to
// Spotify (setup) work without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	store   store.Store
	flow    *auth.Flow
	spotify *services.SpotifyService
	gemini  services.Generator
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Store, Spotify and Gemini are optional; when nil they are built from Config.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Store      store.Store
	Spotify    *services.SpotifyService
	Gemini     services.Generator
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = defaultConfigPath
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		store:      opts.Store,
		spotify:    opts.Spotify,
		gemini:     opts.Gemini,
	}
}

// SetLogger replaces the logger, e.g. to keep log lines out of the TUI.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// cliStore opens the store used by command line sessions.
//
// The in-memory backend cannot outlive the process, so the CLI keeps its login in
// sqlite unless redis or sqlite is configured explicitly.
func (r *Runner) cliStore(ctx context.Context) (store.Store, error) {
	t, err := store.ParseType(r.config.Store.Type)
	if err != nil {
		return nil, err
	}
	if t == store.TypeMemory {
		r.logger.Debug("using sqlite for the CLI session", "path", r.config.Database.Path)
		return store.NewSQLiteStore(ctx, r.config.Database)
	}
	return store.New(ctx, r.config)
}

// init builds the store, auth flow and services that were not injected.
func (r *Runner) init(ctx context.Context) error {
	if r.store == nil {
		st, err := r.cliStore(ctx)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		r.store = st
	}
	r.buildServices()

	if r.gemini == nil {
		g, err := services.NewGeminiService(ctx, services.GeminiOpts{Config: r.config.Gemini, HTTPClient: r.httpClient, Logger: r.logger})
		if err != nil {
			return err
		}
		r.gemini = g
	}
	return nil
}

// buildServices creates the auth flow and Spotify service on top of r.store.
func (r *Runner) buildServices() {
	if r.flow == nil {
		r.flow = auth.NewFlow(auth.FlowOpts{
			Config:     r.config.Spotify,
			Cache:      r.store,
			HTTPClient: r.httpClient,
			Logger:     r.logger,
		})
	}
	if r.spotify == nil {
		clients := auth.NewClientFactory(auth.ClientFactoryOpts{Config: r.config.Spotify, HTTPClient: r.httpClient, Logger: r.logger})
		r.spotify = services.NewSpotifyService(services.SpotifyOpts{
			Clients: clients,
			Cache:   r.store,
			Market:  r.config.Spotify.Market,
			Logger:  r.logger,
		})
	}
}

// close releases the store.
func (r *Runner) close() {
	if r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn("failed to close store", "error", err)
	}
}

// session is the command line user's session.
func (r *Runner) session() *session.Session {
	return session.New(session.CLIID, r.store, 0)
}

// userService is the Spotify service acting for the CLI session.
func (r *Runner) userService() *services.SpotifyService {
	return r.spotify.ForSession(r.session())
}

func (r *Runner) dispatcher() *chat.Dispatcher {
	return chat.New(chat.Opts{Music: r.userService(), Fallback: r.gemini, Logger: r.logger})
}

// notLoggedIn turns session errors into a hint to run the login command.
func (r *Runner) notLoggedIn(err error) error {
	if shared.NeedsReauth(err) {
		return fmt.Errorf("%w: run 'spotchat login' first", err)
	}
	return err
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
