// Package auth implements the Spotify PKCE login flow and builds API clients from its tokens.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
	"github.com/desertthunder/spotchat/internal/store"
)

const (
	// TokenKey is the session key holding the JSON encoded [models.TokenRecord].
	TokenKey = "spotify_tokens"
	// PKCETTL is the absolute lifetime of a stored verifier.
	PKCETTL = 10 * time.Minute

	pkcePrefix   = "pkce:"
	callbackPath = "/auth/callback"
)

// LoginScopes are the scopes requested by the web and CLI login.
var LoginScopes = []string{
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserTopRead,
	spotifyauth.ScopeUserReadRecentlyPlayed,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// Session is the per-user storage the flow writes tokens to.
type Session interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Flow runs the authorization code + PKCE login against the Spotify accounts service.
type Flow struct {
	config         shared.SpotifyConfig
	trustForwarded bool
	cache          store.Store
	httpClient     *http.Client
	logger         *log.Logger
}

// FlowOpts configures a [Flow].
type FlowOpts struct {
	Config shared.SpotifyConfig
	// TrustForwardedHeaders derives the callback URL from X-Forwarded-Proto/Host.
	TrustForwardedHeaders bool
	// Cache holds pkce:<state> entries.
	Cache      store.Store
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewFlow creates a [Flow].
func NewFlow(opts FlowOpts) *Flow {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Flow{
		config:         opts.Config,
		trustForwarded: opts.TrustForwardedHeaders,
		cache:          opts.Cache,
		httpClient:     opts.HTTPClient,
		logger:         shared.WithLogger(opts.Logger, "component", "auth"),
	}
}

func (f *Flow) endpoint() oauth2.Endpoint {
	base := strings.TrimRight(f.config.AccountsURL, "/")
	return oauth2.Endpoint{
		AuthURL:   base + "/authorize",
		TokenURL:  base + "/api/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// oauthConfig is a public-client config: no secret, the verifier proves possession.
func (f *Flow) oauthConfig(redirectURL string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    f.config.ClientID,
		RedirectURL: redirectURL,
		Scopes:      scopes,
		Endpoint:    f.endpoint(),
	}
}

// CallbackURL returns the redirect URI for r.
//
// With a request the scheme and host come from the request (and the forwarded headers when trusted),
// and the path from the configured callback URL. Without one the configured URL is used as is.
func (f *Flow) CallbackURL(r *http.Request) string {
	if r == nil {
		return f.config.CallbackURL
	}

	path := callbackPath
	if u, err := url.Parse(f.config.CallbackURL); err == nil && u.Path != "" {
		path = u.Path
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if f.trustForwarded {
		if p := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); p != "" {
			scheme = p
		}
		if h := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); h != "" {
			host = h
		}
	}
	if host == "" {
		return f.config.CallbackURL
	}

	return (&url.URL{Scheme: scheme, Host: host, Path: path}).String()
}

func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// NewChallenge generates a verifier, its S256 challenge and a random state.
func NewChallenge() models.PKCEChallenge {
	verifier := oauth2.GenerateVerifier()
	return models.PKCEChallenge{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		State:     shared.GenerateState(),
	}
}

// BuildLoginURI stores a fresh verifier under its state and returns the authorize URL.
// The scope parameter is the space-joined scopes in the given order.
func (f *Flow) BuildLoginURI(ctx context.Context, r *http.Request, scopes []string) (string, error) {
	pkce := NewChallenge()

	if err := f.cache.Set(ctx, pkcePrefix+pkce.State, []byte(pkce.Verifier), PKCETTL); err != nil {
		return "", fmt.Errorf("failed to store PKCE verifier: %w", err)
	}

	conf := f.oauthConfig(f.CallbackURL(r), scopes)
	f.logger.Debug("issued login state", "state", pkce.State)

	return conf.AuthCodeURL(pkce.State, oauth2.S256ChallengeOption(pkce.Verifier)), nil
}

// CompleteLogin consumes the verifier stored for state, exchanges code for a token
// and writes the resulting [models.TokenRecord] to sess.
//
// The verifier is consumed before the exchange, so a state can never be redeemed twice
// even when the exchange fails. Exchange errors are returned unwrapped.
func (f *Flow) CompleteLogin(ctx context.Context, r *http.Request, sess Session, code, state string) error {
	if state == "" {
		return shared.ErrMissingState
	}

	verifier, err := f.cache.Take(ctx, pkcePrefix+state)
	if errors.Is(err, store.ErrNotFound) {
		f.logger.Warn("no verifier for state", "state", state)
		return shared.ErrMissingVerifier
	}
	if err != nil {
		return fmt.Errorf("failed to load PKCE verifier: %w", err)
	}

	conf := f.oauthConfig(f.CallbackURL(r), nil)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)

	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(string(verifier)))
	if err != nil {
		return err
	}

	if err := SaveToken(ctx, sess, models.NewTokenRecord(token)); err != nil {
		return err
	}

	f.logger.Info("login completed", "state", state)
	return nil
}

// Logout deletes the session's token record.
func (f *Flow) Logout(ctx context.Context, sess Session) error {
	if err := sess.Delete(ctx, TokenKey); err != nil {
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	return nil
}

// LoadToken reads the session's token record, returning [shared.ErrNotAuthenticated] when there is none.
func LoadToken(ctx context.Context, sess Session) (*models.TokenRecord, error) {
	data, err := sess.Get(ctx, TokenKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, shared.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session token: %w", err)
	}

	var rec models.TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt token record: %v", shared.ErrNotAuthenticated, err)
	}
	if rec.AccessToken == "" {
		return nil, shared.ErrNotAuthenticated
	}
	return &rec, nil
}

// SaveToken writes rec to the session.
func SaveToken(ctx context.Context, sess Session, rec models.TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}
	if err := sess.Set(ctx, TokenKey, data); err != nil {
		return fmt.Errorf("failed to write session token: %w", err)
	}
	return nil
}
