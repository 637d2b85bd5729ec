package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotchat/internal/auth"
	"github.com/desertthunder/spotchat/internal/server"
	"github.com/desertthunder/spotchat/internal/session"
	"github.com/desertthunder/spotchat/internal/store"
)

const janitorInterval = 5 * time.Minute

// Serve runs the web service until the context is cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.config.Server
	if host := cmd.String("host"); host != "" {
		config.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		config.Port = int(port)
	}

	if r.store == nil {
		st, err := store.New(ctx, r.config)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		r.store = st
	}
	go store.RunJanitor(ctx, r.store, janitorInterval, r.logger)

	r.flow = auth.NewFlow(auth.FlowOpts{
		Config:                r.config.Spotify,
		TrustForwardedHeaders: config.TrustForwardedHeaders,
		Cache:                 r.store,
		HTTPClient:            r.httpClient,
		Logger:                r.logger,
	})
	if err := r.init(ctx); err != nil {
		return err
	}

	if r.config.Spotify.ClientID == "" {
		r.logger.Warn("spotify.client_id is not set; logins will fail")
	}
	if r.config.Gemini.APIKey == "" {
		r.logger.Info("gemini.api_key is not set; unmatched chat messages get a canned reply")
	}

	srv := server.New(server.Opts{
		Config: config,
		Flow:   r.flow,
		Sessions: session.NewManager(session.ManagerOpts{
			Store:  r.store,
			TTL:    config.SessionTTL,
			Secure: config.CookieSecure,
			Logger: r.logger,
		}),
		Spotify: r.spotify,
		Gemini:  r.gemini,
		Logger:  r.logger,
	})

	r.logger.Info("starting spotchat", "addr", config.Addr(), "store", r.config.Store.Type)
	return srv.ListenAndServe(ctx)
}
