package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
)

// ClientFactory builds Spotify API clients.
//
// App clients authenticate with client credentials and share one cached token source.
// User clients are built per call from the session's token record.
type ClientFactory struct {
	config     shared.SpotifyConfig
	httpClient *http.Client
	logger     *log.Logger

	mu        sync.Mutex
	appSource oauth2.TokenSource
}

// ClientFactoryOpts configures a [ClientFactory].
type ClientFactoryOpts struct {
	Config     shared.SpotifyConfig
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewClientFactory creates a [ClientFactory].
func NewClientFactory(opts ClientFactoryOpts) *ClientFactory {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &ClientFactory{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     shared.WithLogger(opts.Logger, "component", "clients"),
	}
}

func (f *ClientFactory) tokenURL() string {
	return strings.TrimRight(f.config.AccountsURL, "/") + "/api/token"
}

// oauthContext carries the factory's HTTP client into token requests.
func (f *ClientFactory) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

func (f *ClientFactory) newClient(src oauth2.TokenSource) *spotify.Client {
	base := f.httpClient.Transport
	httpClient := &http.Client{
		Timeout: f.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: src,
			Base:   &rateLimitTransport{service: "spotify", base: base},
		},
	}

	opts := []spotify.ClientOption{}
	if f.config.APIURL != "" {
		opts = append(opts, spotify.WithBaseURL(f.config.APIURL))
	}
	return spotify.New(httpClient, opts...)
}

// AppClient returns a client for public catalog data.
// It fails with [shared.ErrConfiguration] when no client secret is configured.
func (f *ClientFactory) AppClient(ctx context.Context) (*spotify.Client, error) {
	if f.config.ClientID == "" || f.config.ClientSecret == "" {
		return nil, shared.ErrConfiguration
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.appSource == nil {
		cc := &clientcredentials.Config{
			ClientID:     f.config.ClientID,
			ClientSecret: f.config.ClientSecret,
			TokenURL:     f.tokenURL(),
		}
		// The source outlives this request, so it must not capture the request context.
		f.appSource = cc.TokenSource(f.oauthContext(context.WithoutCancel(ctx)))
	}

	return f.newClient(f.appSource), nil
}

// UserClient returns a client acting as the session's user.
//
// It fails with [shared.ErrNotAuthenticated] when the session holds no token. Whenever the
// client refreshes its access token the new token is written back to the session.
func (f *ClientFactory) UserClient(ctx context.Context, sess Session) (*spotify.Client, error) {
	rec, err := LoadToken(ctx, sess)
	if err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID: f.config.ClientID,
		Endpoint: oauth2.Endpoint{TokenURL: f.tokenURL(), AuthStyle: oauth2.AuthStyleInParams},
	}
	base := conf.TokenSource(f.oauthContext(ctx), rec.Token())

	writeCtx := context.WithoutCancel(ctx)
	src := newRefreshableTokenSource(base, rec.AccessToken, func(t *oauth2.Token) {
		updated := models.NewTokenRecord(t)
		if updated.Scope == "" {
			updated.Scope = rec.Scope
		}
		if err := SaveToken(writeCtx, sess, updated); err != nil {
			f.logger.Error("failed to persist refreshed token", "error", err)
			return
		}
		f.logger.Debug("persisted refreshed token")
	})

	return f.newClient(src), nil
}
