package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/spotchat/internal/chat"
	"github.com/desertthunder/spotchat/internal/formatter"
	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ChatView ViewState = iota
	PlaylistListView
	TrackListView
)

// chromeHeight is the space taken by the title, the input line and the help line.
const chromeHeight = 6

const playlistLimit = 50

const greeting = "Hi! Ask me about your music, or type 'help' to see what I can do."

// Chatter answers one chat message.
type Chatter interface {
	Dispatch(ctx context.Context, msg string) chat.Result
}

// Library loads the user's playlists.
type Library interface {
	Playlists(ctx context.Context, limit int) ([]models.Playlist, error)
	Playlist(ctx context.Context, id string) (*models.Playlist, error)
}

// entry is one line of the transcript.
type entry struct {
	user    bool
	text    string
	outcome chat.Outcome
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	chat         Chatter
	library      Library
	width        int
	height       int
	ready        bool
	transcript   []entry
	viewport     viewport.Model
	input        textinput.Model
	spinner      spinner.Model
	pending      bool
	playlistList list.Model
	playlists    []models.Playlist
	trackList    list.Model
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, c Chatter, library Library) *Model {
	input := textinput.New()
	input.Placeholder = "Ask about your top artists, playlists, a song..."
	input.Prompt = "> "
	input.CharLimit = 500
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.ok

	return &Model{
		ctx:        ctx,
		view:       ChatView,
		chat:       c,
		library:    library,
		transcript: []entry{{text: greeting}},
		viewport:   viewport.New(0, 0),
		input:      input,
		spinner:    s,
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Init starts the cursor blinking.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		switch m.view {
		case ChatView:
			return m.handleChatKeys(msg)
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		}

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgReplyReceived:
		result := msg.data.(chat.Result)
		m.pending = false
		m.say(entry{text: result.Reply, outcome: result.Outcome})

	case MsgPlaylistsFetched:
		data := msg.data.(playlistsFetched)
		if data.err != nil {
			m.view = ChatView
			m.sayError(data.err)
			return m, nil
		}
		m.playlists = data.playlists
		if m.playlists == nil {
			m.playlists = []models.Playlist{}
		}
		items := make([]list.Item, len(data.playlists))
		for i, pl := range data.playlists {
			items[i] = playlistItem{playlist: pl}
		}
		m.playlistList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.playlistList.Title = "Your Playlists"
		m.playlistList.SetSize(m.listSize())

	case MsgTracksFetched:
		data := msg.data.(tracksFetched)
		if data.err != nil {
			m.view = ChatView
			m.sayError(data.err)
			return m, nil
		}
		items := make([]list.Item, len(data.playlist.Tracks))
		for i, t := range data.playlist.Tracks {
			items[i] = trackItem{track: t}
		}
		m.trackList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.trackList.Title = fmt.Sprintf("Tracks in '%s'", data.playlist.Name)
		m.trackList.SetSize(m.listSize())
		m.view = TrackListView
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case TrackListView:
		return m.renderTrackList()
	default:
		return m.renderChat()
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.ready = true

	m.viewport.Width = width
	m.viewport.Height = max(height-chromeHeight, 1)
	m.input.Width = max(width-4, 10)
	m.refresh()

	w, h := m.listSize()
	if m.playlistList.Width() != 0 {
		m.playlistList.SetSize(w, h)
	}
	if m.trackList.Width() != 0 {
		m.trackList.SetSize(w, h)
	}
}

func (m *Model) listSize() (int, int) {
	return max(m.width-4, 0), max(m.height-4, 0)
}

func (m *Model) handleChatKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.playlists):
		m.view = PlaylistListView
		if m.playlists == nil {
			return m, m.fetchPlaylists()
		}
		return m, nil

	case key.Matches(msg, m.keys.scroll):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.send):
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.pending {
			return m, nil
		}
		switch strings.ToLower(text) {
		case "exit", "quit":
			return m, tea.Quit
		}
		m.input.Reset()
		return m, m.ask(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.playlists == nil {
		if key.Matches(msg, m.keys.back) {
			m.view = ChatView
		}
		return m, nil
	}

	filtering := m.playlistList.FilterState() == list.Filtering
	switch {
	case !filtering && key.Matches(msg, m.keys.back):
		m.view = ChatView
		return m, nil
	case !filtering && key.Matches(msg, m.keys.enter):
		if pl, ok := m.playlistList.SelectedItem().(playlistItem); ok {
			return m, m.fetchTracks(pl.playlist.ID)
		}
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	filtering := m.trackList.FilterState() == list.Filtering
	switch {
	case !filtering && key.Matches(msg, m.keys.back):
		m.view = PlaylistListView
		return m, nil
	case !filtering && key.Matches(msg, m.keys.enter):
		if t, ok := m.trackList.SelectedItem().(trackItem); ok && len(t.track.Artists) > 0 {
			m.view = ChatView
			return m, m.ask("tell me about " + t.track.Artists[0].Name)
		}
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	default:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

// ask records the user's message and dispatches it in a command.
func (m *Model) ask(text string) tea.Cmd {
	m.say(entry{user: true, text: text})
	m.pending = true
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return replyReceivedMsg(m.chat.Dispatch(m.ctx, text))
	})
}

func (m *Model) say(e entry) {
	m.transcript = append(m.transcript, e)
	m.refresh()
}

func (m *Model) sayError(err error) {
	if shared.NeedsReauth(err) {
		m.say(entry{text: formatter.LoginRequired, outcome: chat.NeedsReauth})
		return
	}
	m.say(entry{text: formatter.Failure(err), outcome: chat.Failed})
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTranscript(m.transcript, m.viewport.Width))
	m.viewport.GotoBottom()
}

func renderTranscript(entries []entry, width int) string {
	body := lipgloss.NewStyle()
	if width > 2 {
		body = body.Width(width - 2)
	}

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		label := styles.ok.Render("spotchat")
		switch {
		case e.user:
			label = styles.user.Render("you")
		case e.outcome == chat.NeedsReauth:
			label = styles.warn.Render("spotchat")
		case e.outcome == chat.Failed:
			label = styles.err.Render("spotchat")
		}
		b.WriteString(label + "\n")
		b.WriteString(body.Render(e.text) + "\n")
	}
	return b.String()
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.library.Playlists(m.ctx, playlistLimit)
		return playlistsFetchedMsg(playlists, err)
	}
}

func (m *Model) fetchTracks(playlistID string) tea.Cmd {
	return func() tea.Msg {
		playlist, err := m.library.Playlist(m.ctx, playlistID)
		return tracksFetchedMsg(playlist, err)
	}
}

func (m *Model) renderChat() string {
	title := styles.title.Render("spotchat")
	status := ""
	if m.pending {
		status = m.spinner.View() + styles.help.Render(" thinking...")
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.send, m.keys.scroll, m.keys.playlists, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s", title, m.viewport.View(), status, m.input.View(), helpView)
}

func (m *Model) renderPlaylistList() string {
	if m.playlists == nil {
		return fmt.Sprintf("%s\n\n%s", styles.title.Render("Your Playlists"), styles.help.Render("Loading playlists..."))
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), helpView)
}

func (m *Model) renderTrackList() string {
	askKey := key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "ask about artist"),
	)
	helpView := m.help.ShortHelpView([]key.Binding{askKey, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), helpView)
}
