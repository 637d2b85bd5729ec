package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/spotchat/internal/auth"
	"github.com/desertthunder/spotchat/internal/formatter"
	"github.com/desertthunder/spotchat/internal/services"
	"github.com/desertthunder/spotchat/internal/session"
	"github.com/desertthunder/spotchat/internal/shared"
	"github.com/desertthunder/spotchat/internal/store"
	testutil "github.com/desertthunder/spotchat/internal/testing"
)

type fixture struct {
	api   *testutil.SpotifyAPI
	flow  *auth.Flow
	cache store.Store
	gen   *testutil.StubGenerator
	srv   *Server
}

func newFixture(t *testing.T, cfg shared.ServerConfig) *fixture {
	t.Helper()
	api := testutil.NewSpotifyAPI(t)
	api.HandleFunc("POST /api/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good" || r.PostForm.Get("code_verifier") == "" {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid authorization code"}`)
				return
			}
			io.WriteString(w, `{"access_token":"user-access","token_type":"Bearer","expires_in":3600,"refresh_token":"r1"}`)
		default:
			io.WriteString(w, `{"access_token":"app-access","token_type":"Bearer","expires_in":3600}`)
		}
	})

	logger := shared.NewLogger(io.Discard)
	spotifyConfig := shared.SpotifyConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "http://127.0.0.1:3000/auth/callback",
		AccountsURL:  api.URL,
		APIURL:       api.URL + "/v1/",
	}
	cache := store.NewMemoryStore()
	flow := auth.NewFlow(auth.FlowOpts{Config: spotifyConfig, Cache: cache, HTTPClient: api.Server.Client(), Logger: logger})
	clients := auth.NewClientFactory(auth.ClientFactoryOpts{Config: spotifyConfig, HTTPClient: api.Server.Client(), Logger: logger})
	gen := &testutil.StubGenerator{Reply: "generated"}

	srv := New(Opts{
		Config:   cfg,
		Flow:     flow,
		Sessions: session.NewManager(session.ManagerOpts{Store: cache, Logger: logger}),
		Spotify:  services.NewSpotifyService(services.SpotifyOpts{Clients: clients, Cache: cache, Logger: logger}),
		Gemini:   gen,
		Logger:   logger,
	})
	return &fixture{api: api, flow: flow, cache: cache, gen: gen, srv: srv}
}

func (f *fixture) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.RemoteAddr = "192.0.2.1:1234"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

// login runs the browser flow and returns the authenticated session cookie.
func (f *fixture) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := f.do(http.MethodGet, "/auth/login", "")
	require.Equal(t, http.StatusFound, rec.Code)
	cookie := sessionCookie(t, rec)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	rec = f.do(http.MethodGet, "/auth/callback?code=good&state="+loc.Query().Get("state"), "", cookie)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "/", rec.Header().Get("Location"))
	return cookie
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const meJSON = `{"id":"u1","display_name":"Test User","email":"u@example.com","country":"US","product":"premium","followers":{"total":3}}`

func TestAuthRoutes(t *testing.T) {
	t.Run("login redirects with PKCE parameters", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		rec := f.do(http.MethodGet, "/auth/login", "")

		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		q := loc.Query()

		assert.Equal(t, "/authorize", loc.Path)
		assert.Equal(t, "client-id", q.Get("client_id"))
		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.NotEmpty(t, q.Get("code_challenge"))
		assert.NotEmpty(t, q.Get("state"))
		assert.Equal(t, strings.Join(auth.LoginScopes, " "), q.Get("scope"))
		assert.Equal(t, "http://example.com/auth/callback", q.Get("redirect_uri"))
	})

	t.Run("callback errors", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})

		rec := f.do(http.MethodGet, "/auth/callback?error=access_denied", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "access_denied")

		rec = f.do(http.MethodGet, "/auth/callback?state=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.do(http.MethodGet, "/auth/callback?code=good", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), shared.ErrMissingState.Error())

		rec = f.do(http.MethodGet, "/auth/callback?code=good&state=never-issued", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "start the login again")
	})

	t.Run("failed exchange is a 500", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		rec := f.do(http.MethodGet, "/auth/login", "")
		loc, _ := url.Parse(rec.Header().Get("Location"))

		rec = f.do(http.MethodGet, "/auth/callback?code=bad&state="+loc.Query().Get("state"), "", sessionCookie(t, rec))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "Login failed")
	})

	t.Run("login, use and logout", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		f.api.Handle("GET /v1/me", http.StatusOK, meJSON)
		cookie := f.login(t)

		rec := f.do(http.MethodGet, "/api/me", "", cookie)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Test User", decode[map[string]any](t, rec)["display_name"])

		rec = f.do(http.MethodGet, "/auth/logout", "", cookie)
		assert.Equal(t, http.StatusFound, rec.Code)

		rec = f.do(http.MethodGet, "/api/me", "", cookie)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestChatSend(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})

		rec := f.do(http.MethodPost, "/chat/send", `{"message":"   "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decode[messageResponse](t, rec).Message)

		rec = f.do(http.MethodPost, "/chat/send", `not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.do(http.MethodGet, "/chat/send", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("unauthenticated intent asks for login", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		rec := f.do(http.MethodPost, "/chat/send", `{"message":"top artists"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, formatter.LoginRequired, decode[messageResponse](t, rec).Message)
	})

	t.Run("unmatched uses the fallback", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		rec := f.do(http.MethodPost, "/chat/send", `{"message":"Tell a joke"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "generated", decode[messageResponse](t, rec).Message)
		assert.Equal(t, []string{"Tell a joke"}, f.gen.Messages())
	})

	t.Run("authenticated profile", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		f.api.Handle("GET /v1/me", http.StatusOK, meJSON)
		cookie := f.login(t)

		rec := f.do(http.MethodPost, "/chat/send", `{"message":"who am i"}`, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, decode[messageResponse](t, rec).Message, "Name: Test User")
	})

	t.Run("rate limited per client", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{ChatRate: 0.5, ChatBurst: 1})

		rec := f.do(http.MethodPost, "/chat/send", `{"message":"help"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(http.MethodPost, "/chat/send", `{"message":"help"}`)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	})
}

func TestAPI(t *testing.T) {
	t.Run("unauthenticated user routes answer 401 with login url", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		rec := f.do(http.MethodGet, "/api/me/top/tracks?time_range=short_term", "")

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, LoginPath, decode[errorResponse](t, rec).LoginURL)
	})

	t.Run("catalog routes use the app client", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		f.api.Handle("GET /v1/tracks/t1", http.StatusOK,
			`{"id":"t1","name":"Reckoner","uri":"spotify:track:t1","type":"track","album":{"id":"al1","name":"In Rainbows"},"artists":[{"id":"a1","name":"Radiohead"}]}`)

		rec := f.do(http.MethodGet, "/api/tracks/t1", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Reckoner", decode[map[string]any](t, rec)["name"])
	})

	t.Run("upstream errors map to status codes", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		f.api.Fail("GET /v1/albums/al1", http.StatusInternalServerError, "oops")

		rec := f.do(http.MethodGet, "/api/albums/al1", "")
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		rec = f.do(http.MethodGet, "/api/albums/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad query values are 400", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		rec := f.do(http.MethodGet, "/api/search?q=x&limit=ten", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.do(http.MethodGet, "/api/search?q=x&type=podcasts", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("genres never fail", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		rec := f.do(http.MethodGet, "/api/genres", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, services.FallbackGenres, decode[[]string](t, rec))
	})

	t.Run("playlist builder", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		rec := f.do(http.MethodGet, "/api/builder", "")
		require.Equal(t, http.StatusOK, rec.Code)
		cookie := sessionCookie(t, rec)

		rec = f.do(http.MethodPost, "/api/builder/tracks", `{"uri":"spotify:track:t1","name":"Reckoner","artist":"Radiohead"}`, cookie)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(http.MethodGet, "/api/builder", "", cookie)
		assert.Contains(t, rec.Body.String(), "spotify:track:t1")

		rec = f.do(http.MethodDelete, "/api/builder/tracks/spotify:track:t1", "", cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "spotify:track:t1")

		rec = f.do(http.MethodPost, "/api/builder/save", `{"name":""}`, cookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHome(t *testing.T) {
	t.Run("anonymous visitor", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		f.api.Handle("GET /v1/browse/new-releases", http.StatusOK, `{"albums":{"items":[{"id":"al1","name":"Fresh","album_type":"album"}]}}`)

		rec := f.do(http.MethodGet, "/", "")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[homeResponse](t, rec)

		assert.False(t, resp.Authenticated)
		assert.Equal(t, LoginPath, resp.LoginURL)
		require.Len(t, resp.NewReleases, 1)
		assert.Equal(t, "Fresh", resp.NewReleases[0].Name)
		assert.Empty(t, resp.Errors)
	})

	t.Run("panel failures are reported symmetrically", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		f.api.Fail("GET /v1/me/top/artists", http.StatusInternalServerError, "down")
		f.api.Fail("GET /v1/me/top/tracks", http.StatusInternalServerError, "down")
		cookie := f.login(t)

		rec := f.do(http.MethodGet, "/", "", cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[homeResponse](t, rec)

		assert.True(t, resp.Authenticated)
		assert.Contains(t, resp.Errors, "top_artists")
		assert.Contains(t, resp.Errors, "top_tracks")
		assert.Contains(t, resp.Errors, "new_releases")
	})

	t.Run("unknown paths are 404", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/nope", "").Code)
	})
}

func TestMiddleware(t *testing.T) {
	logger := shared.NewLogger(io.Discard)

	t.Run("Recover", func(t *testing.T) {
		h := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/send", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Error: boom", decode[messageResponse](t, rec).Message)
	})

	t.Run("ClientLimiter", func(t *testing.T) {
		now := time.Unix(1000, 0)
		l := NewClientLimiter(1, 2, false)
		l.now = func() time.Time { return now }

		assert.True(t, l.Allow("a"))
		assert.True(t, l.Allow("a"))
		assert.False(t, l.Allow("a"))
		assert.True(t, l.Allow("b"), "clients have separate buckets")

		now = now.Add(time.Second)
		assert.True(t, l.Allow("a"))

		now = now.Add(limiterIdleTTL + limiterSweepInterval + time.Second)
		l.Allow("c")
		assert.NotContains(t, l.clients, "a")
	})

	t.Run("ClientLimiter disabled", func(t *testing.T) {
		l := NewClientLimiter(0, 0, false)
		for range 100 {
			require.True(t, l.Allow("a"))
		}
	})

	t.Run("clientIP", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

		assert.Equal(t, "10.0.0.1", clientIP(r, false))
		assert.Equal(t, "203.0.113.9", clientIP(r, true))
	})
}

func TestErrorStatus(t *testing.T) {
	tc := []struct {
		err  error
		want int
	}{
		{shared.ErrNotAuthenticated, http.StatusUnauthorized},
		{&shared.UpstreamError{Status: http.StatusForbidden}, http.StatusUnauthorized},
		{&shared.UpstreamError{Status: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{fmt.Errorf("%w: name", shared.ErrValidation), http.StatusBadRequest},
		{shared.ErrMissingArgument, http.StatusBadRequest},
		{shared.ErrConfiguration, http.StatusInternalServerError},
		{&shared.UpstreamError{Status: http.StatusServiceUnavailable}, http.StatusBadGateway},
		{&shared.UpstreamError{}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tc {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}

	t.Run("Retry-After", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, shared.NewLogger(io.Discard), &shared.UpstreamError{Service: "spotify", Status: http.StatusTooManyRequests, RetryAfter: 1500 * time.Millisecond})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	})
}

func TestCLILoginHandler(t *testing.T) {
	ctx := context.Background()

	start := func(t *testing.T, f *fixture) string {
		uri, err := f.flow.BuildLoginURI(ctx, nil, auth.LoginScopes)
		require.NoError(t, err)
		loc, err := url.Parse(uri)
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:3000/auth/callback", loc.Query().Get("redirect_uri"))
		return loc.Query().Get("state")
	}

	t.Run("stores the token once", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		sess := session.New(session.CLIID, f.cache, 0)
		h := NewCLILoginHandler(f.flow, sess, "/auth/callback")
		assert.Equal(t, []string{"GET /auth/callback"}, h.Routes())

		state := start(t, f)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=good&state="+state, nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		res := <-h.Result()
		require.NoError(t, res.Error())
		tok, err := auth.LoadToken(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, "user-access", tok.AccessToken)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=good&state="+state, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reports failures", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		h := NewCLILoginHandler(f.flow, session.New(session.CLIID, f.cache, 0), "/auth/callback")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=bad&state="+start(t, f), nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		res := <-h.Result()
		assert.Error(t, res.Error())
	})
}
