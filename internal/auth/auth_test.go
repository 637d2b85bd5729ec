package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/session"
	"github.com/desertthunder/spotchat/internal/shared"
	"github.com/desertthunder/spotchat/internal/store"
)

// fakeSpotify emulates the accounts service and the Web API.
type fakeSpotify struct {
	*httptest.Server

	mu        sync.Mutex
	forms     []url.Values
	lastAuth  string
	apiStatus int
}

func newFakeSpotify(t *testing.T) *fakeSpotify {
	f := &fakeSpotify{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.forms = append(f.forms, r.PostForm)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") == "bad" || r.PostForm.Get("code_verifier") == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid authorization code"}`))
				return
			}
			w.Write([]byte(`{"access_token":"user-access","token_type":"Bearer","expires_in":3600,"refresh_token":"r1","scope":"user-top-read"}`))
		case "refresh_token":
			if r.PostForm.Get("refresh_token") == "revoked" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Write([]byte(`{"access_token":"refreshed-access","token_type":"Bearer","expires_in":3600}`))
		case "client_credentials":
			if _, _, ok := r.BasicAuth(); !ok && r.PostForm.Get("client_secret") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"access_token":"app-access","token_type":"Bearer","expires_in":3600}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastAuth = r.Header.Get("Authorization")
		status := f.apiStatus
		f.mu.Unlock()

		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"u1","display_name":"Test User"}`))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeSpotify) config() shared.SpotifyConfig {
	return shared.SpotifyConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "http://127.0.0.1:3000/auth/callback",
		AccountsURL:  f.URL,
		APIURL:       f.URL + "/v1/",
	}
}

func (f *fakeSpotify) authorization() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

func (f *fakeSpotify) lastForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[len(f.forms)-1]
}

func newTestFlow(f *fakeSpotify, cache store.Store) *Flow {
	return NewFlow(FlowOpts{Config: f.config(), Cache: cache, HTTPClient: f.Client()})
}

func stateOf(t *testing.T, loginURI string) string {
	u, err := url.Parse(loginURI)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestFlow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSpotify(t)

	t.Run("BuildLoginURI", func(t *testing.T) {
		flow := newTestFlow(fake, store.NewMemoryStore())
		scopes := []string{"user-top-read", "user-read-email", "playlist-read-private"}

		uri, err := flow.BuildLoginURI(ctx, nil, scopes)
		require.NoError(t, err)

		u, err := url.Parse(uri)
		require.NoError(t, err)
		q := u.Query()

		assert.Equal(t, fake.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)
		assert.Equal(t, "client-id", q.Get("client_id"))
		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, "http://127.0.0.1:3000/auth/callback", q.Get("redirect_uri"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.NotEmpty(t, q.Get("code_challenge"))
		assert.Equal(t, "user-top-read user-read-email playlist-read-private", q.Get("scope"))
		assert.Len(t, q.Get("state"), 32)
		assert.Empty(t, q.Get("client_secret"))
	})

	t.Run("state is unique per call", func(t *testing.T) {
		flow := newTestFlow(fake, store.NewMemoryStore())
		seen := map[string]bool{}
		for range 20 {
			uri, err := flow.BuildLoginURI(ctx, nil, LoginScopes)
			require.NoError(t, err)
			state := stateOf(t, uri)
			assert.False(t, seen[state], "duplicate state %s", state)
			seen[state] = true
		}
	})

	t.Run("stores the verifier with a ten minute ttl", func(t *testing.T) {
		cache := store.NewMemoryStore()
		flow := newTestFlow(fake, cache)

		uri, err := flow.BuildLoginURI(ctx, nil, LoginScopes)
		require.NoError(t, err)

		u, _ := url.Parse(uri)
		verifier, err := cache.Get(ctx, "pkce:"+stateOf(t, uri))
		require.NoError(t, err)
		assert.Equal(t, u.Query().Get("code_challenge"), oauth2.S256ChallengeFromVerifier(string(verifier)))
		assert.NotContains(t, uri, string(verifier))
	})

	t.Run("CompleteLogin", func(t *testing.T) {
		cache := store.NewMemoryStore()
		flow := newTestFlow(fake, cache)
		sess := session.New("s1", cache, 0)

		uri, err := flow.BuildLoginURI(ctx, nil, LoginScopes)
		require.NoError(t, err)
		state := stateOf(t, uri)

		require.NoError(t, flow.CompleteLogin(ctx, nil, sess, "good-code", state))

		form := fake.lastForm()
		assert.Equal(t, "authorization_code", form.Get("grant_type"))
		assert.Equal(t, "client-id", form.Get("client_id"))
		assert.NotEmpty(t, form.Get("code_verifier"))
		assert.Empty(t, form.Get("client_secret"))

		rec, err := LoadToken(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, "user-access", rec.AccessToken)
		assert.Equal(t, "r1", rec.RefreshToken)
		assert.Equal(t, "user-top-read", rec.Scope)

		t.Run("second use of the same state fails", func(t *testing.T) {
			err := flow.CompleteLogin(ctx, nil, sess, "good-code", state)
			assert.ErrorIs(t, err, shared.ErrMissingVerifier)
		})
	})

	t.Run("empty state always fails with MissingState", func(t *testing.T) {
		flow := newTestFlow(fake, store.NewMemoryStore())
		sess := session.New("s2", store.NewMemoryStore(), 0)

		for _, code := range []string{"", "good-code", "bad"} {
			assert.ErrorIs(t, flow.CompleteLogin(ctx, nil, sess, code, ""), shared.ErrMissingState)
		}
	})

	t.Run("unknown state fails with MissingVerifier", func(t *testing.T) {
		flow := newTestFlow(fake, store.NewMemoryStore())
		sess := session.New("s3", store.NewMemoryStore(), 0)

		err := flow.CompleteLogin(ctx, nil, sess, "good-code", "never-issued")
		assert.ErrorIs(t, err, shared.ErrMissingVerifier)
	})

	t.Run("exchange failure is returned unmodified", func(t *testing.T) {
		cache := store.NewMemoryStore()
		flow := newTestFlow(fake, cache)
		sess := session.New("s4", cache, 0)

		uri, err := flow.BuildLoginURI(ctx, nil, LoginScopes)
		require.NoError(t, err)

		err = flow.CompleteLogin(ctx, nil, sess, "bad", stateOf(t, uri))
		var re *oauth2.RetrieveError
		require.True(t, errors.As(err, &re), "expected RetrieveError, got %T", err)
		assert.Equal(t, "invalid_grant", re.ErrorCode)

		_, err = LoadToken(ctx, sess)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
	})

	t.Run("Logout removes the token", func(t *testing.T) {
		cache := store.NewMemoryStore()
		flow := newTestFlow(fake, cache)
		sess := session.New("s5", cache, 0)
		require.NoError(t, SaveToken(ctx, sess, models.TokenRecord{AccessToken: "a"}))

		require.NoError(t, flow.Logout(ctx, sess))
		_, err := LoadToken(ctx, sess)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
	})
}

func TestCallbackURL(t *testing.T) {
	cfg := shared.SpotifyConfig{CallbackURL: "http://127.0.0.1:3000/auth/callback"}

	t.Run("falls back to config without a request", func(t *testing.T) {
		flow := NewFlow(FlowOpts{Config: cfg})
		assert.Equal(t, cfg.CallbackURL, flow.CallbackURL(nil))
	})

	t.Run("derives from request host", func(t *testing.T) {
		flow := NewFlow(FlowOpts{Config: cfg})
		r := httptest.NewRequest(http.MethodGet, "http://example.test:8080/auth/login", nil)
		assert.Equal(t, "http://example.test:8080/auth/callback", flow.CallbackURL(r))
	})

	t.Run("forwarded headers only when trusted", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "http://internal:3000/auth/login", nil)
		r.Header.Set("X-Forwarded-Proto", "https")
		r.Header.Set("X-Forwarded-Host", "abc.tunnel.example, proxy.local")

		untrusted := NewFlow(FlowOpts{Config: cfg})
		assert.Equal(t, "http://internal:3000/auth/callback", untrusted.CallbackURL(r))

		trusted := NewFlow(FlowOpts{Config: cfg, TrustForwardedHeaders: true})
		assert.Equal(t, "https://abc.tunnel.example/auth/callback", trusted.CallbackURL(r))
	})
}

func TestClientFactory(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSpotify(t)

	t.Run("AppClient requires a client secret", func(t *testing.T) {
		cfg := fake.config()
		cfg.ClientSecret = ""
		f := NewClientFactory(ClientFactoryOpts{Config: cfg, HTTPClient: fake.Client()})

		_, err := f.AppClient(ctx)
		assert.ErrorIs(t, err, shared.ErrConfiguration)
	})

	t.Run("AppClient uses client credentials", func(t *testing.T) {
		f := NewClientFactory(ClientFactoryOpts{Config: fake.config(), HTTPClient: fake.Client()})

		client, err := f.AppClient(ctx)
		require.NoError(t, err)
		_, err = client.CurrentUser(ctx)
		require.NoError(t, err)

		assert.Equal(t, "client_credentials", fake.lastForm().Get("grant_type"))
		assert.Equal(t, "Bearer app-access", fake.authorization())

		again, err := f.AppClient(ctx)
		require.NoError(t, err)
		_, err = again.CurrentUser(ctx)
		require.NoError(t, err)

		grants := 0
		fake.mu.Lock()
		for _, form := range fake.forms {
			if form.Get("grant_type") == "client_credentials" {
				grants++
			}
		}
		fake.mu.Unlock()
		assert.Equal(t, 1, grants, "app token should be reused")
	})

	t.Run("UserClient without token", func(t *testing.T) {
		f := NewClientFactory(ClientFactoryOpts{Config: fake.config(), HTTPClient: fake.Client()})
		_, err := f.UserClient(ctx, session.New("empty", store.NewMemoryStore(), 0))
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
	})

	t.Run("UserClient uses the stored token", func(t *testing.T) {
		sess := session.New("valid", store.NewMemoryStore(), 0)
		require.NoError(t, SaveToken(ctx, sess, models.TokenRecord{
			AccessToken: "stored-access", RefreshToken: "r1", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
		}))

		f := NewClientFactory(ClientFactoryOpts{Config: fake.config(), HTTPClient: fake.Client()})
		client, err := f.UserClient(ctx, sess)
		require.NoError(t, err)

		user, err := client.CurrentUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, "u1", user.ID)
		assert.Equal(t, "Bearer stored-access", fake.authorization())

		rec, err := LoadToken(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, "stored-access", rec.AccessToken)
	})

	t.Run("UserClient writes refreshed tokens back", func(t *testing.T) {
		sess := session.New("expired", store.NewMemoryStore(), 0)
		require.NoError(t, SaveToken(ctx, sess, models.TokenRecord{
			AccessToken: "old-access", RefreshToken: "r1", TokenType: "Bearer",
			Expiry: time.Now().Add(-time.Hour), Scope: "user-top-read",
		}))

		f := NewClientFactory(ClientFactoryOpts{Config: fake.config(), HTTPClient: fake.Client()})
		client, err := f.UserClient(ctx, sess)
		require.NoError(t, err)

		_, err = client.CurrentUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, "refresh_token", fake.lastForm().Get("grant_type"))
		assert.Equal(t, "Bearer refreshed-access", fake.authorization())

		rec, err := LoadToken(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, "refreshed-access", rec.AccessToken)
		assert.Equal(t, "r1", rec.RefreshToken)
		assert.Equal(t, "user-top-read", rec.Scope)
	})

	t.Run("revoked refresh token needs reauth", func(t *testing.T) {
		sess := session.New("revoked", store.NewMemoryStore(), 0)
		require.NoError(t, SaveToken(ctx, sess, models.TokenRecord{
			AccessToken: "old", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Hour),
		}))

		f := NewClientFactory(ClientFactoryOpts{Config: fake.config(), HTTPClient: fake.Client()})
		client, err := f.UserClient(ctx, sess)
		require.NoError(t, err)

		_, err = client.CurrentUser(ctx)
		require.Error(t, err)
		assert.True(t, shared.NeedsReauth(err), "expected reauth error, got %v", err)
	})

	t.Run("429 surfaces the retry hint", func(t *testing.T) {
		fake.mu.Lock()
		fake.apiStatus = http.StatusTooManyRequests
		fake.mu.Unlock()
		defer func() {
			fake.mu.Lock()
			fake.apiStatus = 0
			fake.mu.Unlock()
		}()

		sess := session.New("limited", store.NewMemoryStore(), 0)
		require.NoError(t, SaveToken(ctx, sess, models.TokenRecord{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}))

		f := NewClientFactory(ClientFactoryOpts{Config: fake.config(), HTTPClient: fake.Client()})
		client, err := f.UserClient(ctx, sess)
		require.NoError(t, err)

		_, err = client.CurrentUser(ctx)
		ue, ok := shared.AsUpstream(err)
		require.True(t, ok, "expected upstream error, got %v", err)
		assert.True(t, ue.IsRateLimited())
		assert.Equal(t, 7*time.Second, ue.RetryAfter)
	})
}

func TestRefreshableTokenSource(t *testing.T) {
	static := func(tok string) oauth2.TokenSource {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
	}

	t.Run("calls callback when token changes", func(t *testing.T) {
		var got []string
		src := newRefreshableTokenSource(static("new"), "old", func(tok *oauth2.Token) { got = append(got, tok.AccessToken) })

		_, err := src.Token()
		require.NoError(t, err)
		_, err = src.Token()
		require.NoError(t, err)
		assert.Equal(t, []string{"new"}, got)
	})

	t.Run("doesn't call callback when token unchanged", func(t *testing.T) {
		called := false
		src := newRefreshableTokenSource(static("same"), "same", func(*oauth2.Token) { called = true })
		_, err := src.Token()
		require.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("handles nil callback gracefully", func(t *testing.T) {
		src := newRefreshableTokenSource(static("x"), "", nil)
		_, err := src.Token()
		assert.NoError(t, err)
	})

	t.Run("handles callback panic gracefully", func(t *testing.T) {
		src := newRefreshableTokenSource(static("x"), "", func(*oauth2.Token) { panic("boom") })
		tok, err := src.Token()
		require.NoError(t, err)
		assert.Equal(t, "x", tok.AccessToken)
	})

	t.Run("propagates source errors as not authenticated", func(t *testing.T) {
		src := newRefreshableTokenSource(failingSource{}, "", nil)
		_, err := src.Token()
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
		assert.True(t, strings.Contains(err.Error(), "boom"))
	})
}

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) { return nil, errors.New("boom") }

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.InDelta(t, 30, d.Seconds(), 2)
}

func TestLoadTokenCorrupt(t *testing.T) {
	ctx := context.Background()
	sess := session.New("corrupt", store.NewMemoryStore(), 0)
	require.NoError(t, sess.Set(ctx, TokenKey, []byte("{not json")))

	_, err := LoadToken(ctx, sess)
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)

	raw, _ := json.Marshal(models.TokenRecord{})
	require.NoError(t, sess.Set(ctx, TokenKey, raw))
	_, err = LoadToken(ctx, sess)
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
}
