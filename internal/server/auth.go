package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotchat/internal/auth"
	"github.com/desertthunder/spotchat/internal/session"
	"github.com/desertthunder/spotchat/internal/shared"
)

// AuthHandler serves the browser login, callback and logout.
type AuthHandler struct {
	*routeTable
	flow   *auth.Flow
	logger *log.Logger
}

// NewAuthHandler creates an [AuthHandler].
func NewAuthHandler(flow *auth.Flow, logger *log.Logger) *AuthHandler {
	h := &AuthHandler{routeTable: newRouteTable(), flow: flow, logger: logger}
	h.handle("GET "+LoginPath, h.login)
	h.handle("GET /auth/callback", h.callback)
	h.handle("GET /auth/logout", h.logout)
	return h
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	uri, err := h.flow.BuildLoginURI(r.Context(), r, auth.LoginScopes)
	if err != nil {
		h.logger.Error("failed to start login", "error", err)
		http.Error(w, fmt.Sprintf("Failed to start login: %v", err), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, uri, http.StatusFound)
}

func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		http.Error(w, "Authorization failed: "+e, http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "Authorization failed: missing code", http.StatusBadRequest)
		return
	}

	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "Login failed: no session", http.StatusInternalServerError)
		return
	}

	err := h.flow.CompleteLogin(r.Context(), r, sess, code, q.Get("state"))
	switch {
	case err == nil:
		http.Redirect(w, r, "/", http.StatusFound)
	case errors.Is(err, shared.ErrMissingState), errors.Is(err, shared.ErrMissingVerifier):
		http.Error(w, fmt.Sprintf("%v. Please start the login again at %s.", err, LoginPath), http.StatusBadRequest)
	default:
		h.logger.Error("login failed", "error", err)
		http.Error(w, fmt.Sprintf("Login failed: %v", err), http.StatusInternalServerError)
	}
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := session.FromContext(r.Context()); ok {
		if err := h.flow.Logout(r.Context(), sess); err != nil {
			h.logger.Warn("logout failed", "error", err)
		}
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
