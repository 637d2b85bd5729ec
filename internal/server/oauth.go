package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/desertthunder/spotchat/internal/auth"
)

const loginSuccessPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>spotchat</title>
  <style>
    body { font-family: system-ui, sans-serif; background: #121212; color: #b3b3b3;
           display: grid; place-items: center; height: 100vh; margin: 0; }
    h1 { color: #1DB954; }
  </style>
</head>
<body>
  <main>
    <h1>spotchat is connected to Spotify</h1>
    <p>Return to your terminal; this tab can be closed.</p>
  </main>
</body>
</html>
`

// LoginResult is the outcome of a CLI login.
type LoginResult struct {
	err error
}

func (o *LoginResult) Error() error {
	return o.err
}

// CLILoginHandler completes a command line login on a temporary local server.
//
// It handles exactly one callback and writes the token to the CLI session.
type CLILoginHandler struct {
	flow        *auth.Flow
	session     auth.Session
	path        string
	resultChan  chan LoginResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewCLILoginHandler creates a handler serving the callback at path.
func NewCLILoginHandler(flow *auth.Flow, sess auth.Session, path string) *CLILoginHandler {
	return &CLILoginHandler{
		flow:       flow,
		session:    sess,
		path:       path,
		resultChan: make(chan LoginResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CLILoginHandler) Routes() []string {
	return []string{"GET " + h.path}
}

// ServeHTTP handles the OAuth callback request.
//
// The flow checks the state against its stored verifier and exchanges the code; the
// result is sent through the result channel.
func (h *CLILoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only handle callback once
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		err := fmt.Errorf("authorization failed: %s - %s", q.Get("error"), q.Get("error_description"))
		h.Send(LoginResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	if err := h.flow.CompleteLogin(r.Context(), nil, h.session, code, q.Get("state")); err != nil {
		h.Send(LoginResult{err: fmt.Errorf("login failed: %w", err)})
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}

	h.Send(LoginResult{})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, loginSuccessPage)
}

// Send sends the login result through the channel (only once).
func (h *CLILoginHandler) Send(result LoginResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving login completion.
//
// Channel will receive exactly one result and then be closed.
func (h *CLILoginHandler) Result() <-chan LoginResult {
	return h.resultChan
}
