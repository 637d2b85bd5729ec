// Package ui implements an interactive chat terminal interface using bubbletea's Elm architecture.
//
// The TUI has three views:
//  1. [ChatView] : Type messages and read the assistant's replies in a scrolling transcript
//  2. [PlaylistListView] : Browse the user's Spotify playlists
//  3. [TrackListView] : Preview a playlist's tracks; selecting one asks the assistant about its artist
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Replies are computed in commands so the input stays responsive while Spotify or Gemini is called.
//
// Keyboard navigation uses enter to send or select, ctrl+p for playlists, esc to go back and ctrl+c to quit,
// with contextual help displayed via charmbracelet/bubbles/help.
package ui
