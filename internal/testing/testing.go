// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/zmb3/spotify/v2"

	"github.com/desertthunder/spotchat/internal/auth"
	"github.com/desertthunder/spotchat/internal/session"
	"github.com/desertthunder/spotchat/internal/shared"
	"github.com/desertthunder/spotchat/internal/store"
)

// SpotifyAPI emulates the Spotify Web API. Routes are matched on "METHOD /v1/path";
// unregistered routes answer 404 in Spotify's error format.
type SpotifyAPI struct {
	*httptest.Server

	mu      sync.Mutex
	routes  map[string]http.HandlerFunc
	calls   map[string]int
	queries map[string]url.Values
}

// NewSpotifyAPI starts a [SpotifyAPI] that is closed when the test ends.
func NewSpotifyAPI(t *testing.T) *SpotifyAPI {
	t.Helper()
	a := &SpotifyAPI{
		routes:  map[string]http.HandlerFunc{},
		calls:   map[string]int{},
		queries: map[string]url.Values{},
	}
	a.Server = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.Close)
	return a
}

func (a *SpotifyAPI) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	a.mu.Lock()
	a.calls[key]++
	a.queries[key] = r.URL.Query()
	h, ok := a.routes[key]
	a.mu.Unlock()

	if !ok {
		WriteSpotifyError(w, http.StatusNotFound, "Non existing id")
		return
	}
	h(w, r)
}

// Handle answers pattern with status and a JSON body.
func (a *SpotifyAPI) Handle(pattern string, status int, body string) {
	a.HandleFunc(pattern, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
}

// HandleFunc registers h for pattern, replacing any previous handler.
func (a *SpotifyAPI) HandleFunc(pattern string, h http.HandlerFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[pattern] = h
}

// Fail answers pattern with a Spotify error.
func (a *SpotifyAPI) Fail(pattern string, status int, message string) {
	a.HandleFunc(pattern, func(w http.ResponseWriter, _ *http.Request) {
		WriteSpotifyError(w, status, message)
	})
}

// Calls returns how many requests matched pattern.
func (a *SpotifyAPI) Calls(pattern string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[pattern]
}

// Query returns the query string of the last request matching pattern.
func (a *SpotifyAPI) Query(pattern string) url.Values {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queries[pattern]
}

// Client returns an unauthenticated client pointed at the fake.
func (a *SpotifyAPI) Client() *spotify.Client {
	return spotify.New(a.Server.Client(), spotify.WithBaseURL(a.URL+"/v1/"))
}

// WriteSpotifyError writes the Web API error envelope.
func WriteSpotifyError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"status":%d,"message":%q}}`, status, message)
}

// StubClients is a [services.ClientProvider] handing out a fixed client.
//
// UserClient fails with [shared.ErrNotAuthenticated] for a nil session or when
// Anonymous is set. AppErr and UserErr override the respective results.
type StubClients struct {
	Client    *spotify.Client
	AppErr    error
	UserErr   error
	Anonymous bool
}

func (s *StubClients) AppClient(context.Context) (*spotify.Client, error) {
	if s.AppErr != nil {
		return nil, s.AppErr
	}
	return s.Client, nil
}

func (s *StubClients) UserClient(_ context.Context, sess auth.Session) (*spotify.Client, error) {
	if s.UserErr != nil {
		return nil, s.UserErr
	}
	if sess == nil || s.Anonymous {
		return nil, shared.ErrNotAuthenticated
	}
	return s.Client, nil
}

// NewSession returns a session backed by a fresh in-memory store.
func NewSession(id string) *session.Session {
	return session.New(id, store.NewMemoryStore(), 0)
}

// StubGenerator records prompts and returns a fixed reply.
type StubGenerator struct {
	Reply string
	Err   error

	mu       sync.Mutex
	messages []string
}

func (g *StubGenerator) Generate(_ context.Context, message string) (string, error) {
	g.mu.Lock()
	g.messages = append(g.messages, message)
	g.mu.Unlock()
	return g.Reply, g.Err
}

// Messages returns the messages passed to Generate, in order.
func (g *StubGenerator) Messages() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.messages...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}
