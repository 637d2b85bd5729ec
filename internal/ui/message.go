package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/spotchat/internal/chat"
	"github.com/desertthunder/spotchat/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgReplyReceived MsgKind = iota
	MsgPlaylistsFetched
	MsgTracksFetched
)

type playlistsFetched struct {
	playlists []models.Playlist
	err       error
}

type tracksFetched struct {
	playlist *models.Playlist
	err      error
}

// replyReceivedMsg is the constructor for [MsgReplyReceived]
func replyReceivedMsg(result chat.Result) Msg {
	return Msg{kind: MsgReplyReceived, data: result}
}

// playlistsFetchedMsg is the constructor for [MsgPlaylistsFetched]
func playlistsFetchedMsg(playlists []models.Playlist, err error) Msg {
	return Msg{kind: MsgPlaylistsFetched, data: playlistsFetched{playlists, err}}
}

// tracksFetchedMsg is the constructor for [MsgTracksFetched]
func tracksFetchedMsg(playlist *models.Playlist, err error) Msg {
	return Msg{kind: MsgTracksFetched, data: tracksFetched{playlist, err}}
}
