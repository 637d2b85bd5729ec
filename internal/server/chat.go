package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotchat/internal/chat"
	"github.com/desertthunder/spotchat/internal/services"
	"github.com/desertthunder/spotchat/internal/session"
)

type chatRequest struct {
	Message string `json:"message"`
}

// ChatHandler answers POST /chat/send.
type ChatHandler struct {
	spotify  *services.SpotifyService
	fallback chat.Fallback
	logger   *log.Logger
}

// NewChatHandler creates a [ChatHandler]. fallback may be nil.
func NewChatHandler(spotify *services.SpotifyService, fallback chat.Fallback, logger *log.Logger) *ChatHandler {
	return &ChatHandler{spotify: spotify, fallback: fallback, logger: logger}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid request body."})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Message cannot be empty."})
		return
	}

	music := h.spotify
	if sess, ok := session.FromContext(r.Context()); ok {
		music = music.ForSession(sess)
	}
	d := chat.New(chat.Opts{Music: music, Fallback: h.fallback, Logger: h.logger})

	res := d.Dispatch(r.Context(), req.Message)
	h.logger.Debug("chat reply", "intent", res.Intent, "outcome", res.Outcome)
	writeJSON(w, http.StatusOK, messageResponse{Message: res.Reply})
}
