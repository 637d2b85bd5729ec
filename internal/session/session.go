// Package session maps a browser cookie (or a fixed CLI identity) to a namespace in a [store.Store].
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotchat/internal/shared"
	"github.com/desertthunder/spotchat/internal/store"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "spotchat_session"
	// DefaultTTL is the idle lifetime of session entries.
	DefaultTTL = 12 * time.Hour
	// CLIID is the session id used by command line clients.
	CLIID = "cli"
)

// ErrNotFound is returned by [Session.Get] when the key was never set or has expired.
var ErrNotFound = store.ErrNotFound

// Session is one user's key namespace. Every write refreshes the entry's TTL.
type Session struct {
	id    string
	store store.Store
	ttl   time.Duration
}

// New creates a session handle for id backed by s.
func New(id string, s store.Store, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Session{id: id, store: s, ttl: ttl}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) key(k string) string {
	return "session:" + s.id + ":" + k
}

// Get returns the value stored under k or [ErrNotFound].
func (s *Session) Get(ctx context.Context, k string) ([]byte, error) {
	return s.store.Get(ctx, s.key(k))
}

// Set stores value under k.
func (s *Session) Set(ctx context.Context, k string, value []byte) error {
	return s.store.Set(ctx, s.key(k), value, s.ttl)
}

// Delete removes k.
func (s *Session) Delete(ctx context.Context, k string) error {
	return s.store.Delete(ctx, s.key(k))
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session attached by [Manager.Middleware], if any.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(*Session)
	return sess, ok
}

// Manager issues session cookies and resolves them to [Session] values.
type Manager struct {
	store  store.Store
	ttl    time.Duration
	secure bool
	logger *log.Logger
}

// ManagerOpts configures a [Manager].
type ManagerOpts struct {
	Store  store.Store
	TTL    time.Duration
	Secure bool
	Logger *log.Logger
}

// NewManager creates a [Manager].
func NewManager(opts ManagerOpts) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Manager{store: opts.Store, ttl: opts.TTL, secure: opts.Secure, logger: opts.Logger}
}

// CLI returns the session used by command line clients.
func (m *Manager) CLI() *Session {
	return New(CLIID, m.store, m.ttl)
}

// Load returns the session named by the request cookie, issuing a new cookie when there is none.
//
// Only ids issued by the manager are accepted; any other cookie value is replaced.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) *Session {
	c, err := r.Cookie(CookieName)
	switch {
	case err == nil && shared.ValidID(c.Value):
		return New(c.Value, m.store, m.ttl)
	case err == nil:
		m.logger.Debug("replacing session cookie with an unrecognized id")
	case !errors.Is(err, http.ErrNoCookie):
		m.logger.Debug("ignoring malformed session cookie", "error", err)
	}

	id := shared.GenerateID()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl / time.Second),
	})
	return New(id, m.store, m.ttl)
}

// Middleware attaches the request's session to its context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.Load(w, r)
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}
