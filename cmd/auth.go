package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotchat/internal/auth"
	"github.com/desertthunder/spotchat/internal/formatter"
	"github.com/desertthunder/spotchat/internal/server"
	"github.com/desertthunder/spotchat/internal/shared"
)

const loginTimeout = 2 * time.Minute

// callbackTarget splits the configured callback URL into the address to listen on and the route to serve.
func callbackTarget(callbackURL string) (addr, path string, err error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid spotify.callback_url: %v", shared.ErrInvalidConfig, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: spotify.callback_url %q has no host", shared.ErrInvalidConfig, callbackURL)
	}
	path = u.Path
	if path == "" {
		path = "/auth/callback"
	}
	return u.Host, path, nil
}

// Login performs the PKCE login for the command line session.
//
// Starts a local HTTP server on the callback address, opens the browser on the authorize URL
// and waits for the callback to store the token.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	if r.config.Spotify.ClientID == "" {
		return fmt.Errorf("%w: spotify.client_id must be set in %s or %sSPOTIFY_CLIENT_ID", shared.ErrMissingConfig, r.configPath, shared.EnvPrefix)
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	addr, path, err := callbackTarget(r.config.Spotify.CallbackURL)
	if err != nil {
		return err
	}

	handler := server.NewCLILoginHandler(r.flow, r.session(), path)
	router := server.NewBasicRouter()
	router.Handler(handler)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting login callback server at %v", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	loginURL, err := r.flow.BuildLoginURI(ctx, nil, auth.LoginScopes)
	if err != nil {
		return err
	}

	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n%s\n\n", loginURL)
	} else {
		r.writePlain("→ Opening browser for Spotify login...\n")
		if err := shared.OpenBrowser(ctx, loginURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", loginURL)
		}
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = loginTimeout
	}
	r.writePlain("→ Waiting for authorization (%v timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-handler.Result():
		if err := result.Error(); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	r.writePlainln("✓ Logged in to Spotify")
	if profile, err := r.userService().Profile(ctx); err == nil {
		r.writePlain("%s\n", formatter.Profile(profile))
	} else {
		r.logger.Warn("failed to load profile after login", "error", err)
	}
	r.writePlain("You can now use: spotchat chat\n")
	return nil
}

// Logout forgets the command line session's token.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}
	if err := r.flow.Logout(ctx, r.session()); err != nil {
		return err
	}
	return r.writePlain("✓ Logged out\n")
}
