package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/swarmchat/internal/adapters/render/status"
	"github.com/bnema/swarmchat/internal/application"
	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

const (
	roomPaneWidth  = 28
	requestTimeout = 15 * time.Second
)

type Timeline interface {
	Rooms(ctx context.Context) ([]domain.Room, error)
	SelectRoom(ctx context.Context, roomID string) error
	CurrentRoom() string
	Messages() []domain.Message
	SendMessage(ctx context.Context, body string) (domain.Message, error)
	RetrySend(ctx context.Context, idOrTxn string) (domain.Message, error)
	Subscribe(fn func(application.TimelineUpdate)) ports.Subscription
}

type Moderation interface {
	Add(ctx context.Context, kind domain.ListKind, id string) ([]string, error)
	Remove(ctx context.Context, kind domain.ListKind, id string) ([]string, error)
	IsBlocked(userID string) bool
	Subscribe(fn func(application.ModerationUpdate)) ports.Subscription
}

type Sessions interface {
	Session() domain.Session
	Subscribe(fn func(application.SessionEvent)) ports.Subscription
}

type Deps struct {
	Timeline   Timeline
	Moderation Moderation
	Sessions   Sessions
	Now        func() time.Time
}

type focus int

const (
	focusInput focus = iota
	focusRooms
	focusMessages
)

type (
	roomsLoadedMsg struct {
		rooms []domain.Room
		err   error
	}
	roomSelectedMsg struct {
		roomID   string
		messages []domain.Message
		err      error
	}
	timelineMsg   application.TimelineUpdate
	sessionMsg    application.SessionEvent
	moderationMsg application.ModerationUpdate
	actionMsg     struct {
		done string
		err  error
	}
)

// Model is the chat view: joined rooms on the left, the selected room's
// timeline on the right and a composer below.
type Model struct {
	ctx  context.Context
	deps Deps
	keys keyMap

	input    textinput.Model
	viewport viewport.Model

	session    domain.Session
	rooms      []domain.Room
	roomCursor int
	roomID     string
	all        []domain.Message
	messages   []domain.Message
	// timelineSeq is the Seq of the last timeline update applied.
	timelineSeq uint64
	selected    int

	focus  focus
	notice string
	err    error
	width  int
	height int
}

func NewModel(ctx context.Context, deps Deps) Model {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	input := textinput.New()
	input.Placeholder = "message, or /retry /block @user:server /unblock @user:server"
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	m := Model{
		ctx:      ctx,
		deps:     deps,
		keys:     defaultKeyMap(),
		input:    input,
		viewport: viewport.New(80, 20),
		selected: -1,
	}
	if deps.Sessions != nil {
		m.session = deps.Sessions.Session()
	}
	if deps.Timeline != nil {
		m.roomID = deps.Timeline.CurrentRoom()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadRooms())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = max(msg.Width-roomPaneWidth-3, 20)
		m.viewport.Height = max(msg.Height-5, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionMsg:
		wasConnected := m.session.Connected()
		m.session = msg.Session
		if msg.Session.Connected() && !wasConnected {
			return m, m.loadRooms()
		}
		return m, nil

	case roomsLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rooms = msg.rooms
		m.roomCursor = min(m.roomCursor, max(len(m.rooms)-1, 0))
		if m.roomID == "" && len(m.rooms) > 0 {
			return m, m.selectRoom(m.rooms[0].ID)
		}
		return m, nil

	case roomSelectedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.roomID = msg.roomID
		m.err = nil
		m.setMessages(msg.messages)
		m.viewport.GotoBottom()
		return m, nil

	case timelineMsg:
		if msg.RoomID != m.roomID {
			return m, nil
		}
		if msg.Seq != 0 {
			if msg.Seq <= m.timelineSeq {
				return m, nil
			}
			m.timelineSeq = msg.Seq
		}
		atBottom := m.viewport.AtBottom()
		m.setMessages(msg.Messages)
		if atBottom {
			m.viewport.GotoBottom()
		}
		return m, nil

	case moderationMsg:
		m.setMessages(m.all)
		return m, nil

	case actionMsg:
		m.err = msg.err
		if msg.err == nil {
			m.notice = msg.done
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Focus):
		m.focus = (m.focus + 1) % 3
		if m.focus == focusInput {
			m.input.Focus()
		} else {
			m.input.Blur()
		}
		return m, nil
	case key.Matches(msg, m.keys.Reload):
		return m, m.loadRooms()
	}

	switch m.focus {
	case focusRooms:
		switch {
		case key.Matches(msg, m.keys.Up):
			m.roomCursor = max(m.roomCursor-1, 0)
		case key.Matches(msg, m.keys.Down):
			m.roomCursor = min(m.roomCursor+1, max(len(m.rooms)-1, 0))
		case key.Matches(msg, m.keys.Enter):
			if m.roomCursor < len(m.rooms) {
				return m, m.selectRoom(m.rooms[m.roomCursor].ID)
			}
		}
		return m, nil

	case focusMessages:
		switch {
		case key.Matches(msg, m.keys.Up):
			if m.selected < 0 {
				m.selected = len(m.messages)
			}
			m.selected = max(m.selected-1, 0)
		case key.Matches(msg, m.keys.Down):
			m.selected = min(m.selected+1, len(m.messages)-1)
		case key.Matches(msg, m.keys.Retry):
			cmd := m.retrySelected()
			return m, cmd
		case key.Matches(msg, m.keys.Block):
			cmd := m.blockSelected()
			m.refresh()
			return m, cmd
		}
		m.refresh()
		return m, nil
	}

	if key.Matches(msg, m.keys.Enter) {
		line := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		cmd := m.submit(line)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit runs a composer line: a slash command or a message body.
func (m *Model) submit(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return m.send(line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/retry":
		if len(fields) > 1 {
			return m.retry(fields[1])
		}
		return m.retrySelected()
	case "/block", "/unblock":
		if len(fields) != 2 {
			m.err = fmt.Errorf("usage: %s @user:server", fields[0])
			return nil
		}
		return m.setBlocked(fields[1], fields[0] == "/block")
	case "/rooms":
		return m.loadRooms()
	case "/join":
		if len(fields) != 2 {
			m.err = errors.New("usage: /join !room:server")
			return nil
		}
		return m.selectRoom(fields[1])
	default:
		m.err = fmt.Errorf("unknown command %s", fields[0])
		return nil
	}
}

func (m *Model) send(body string) tea.Cmd {
	timeline := m.deps.Timeline
	ctx := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		_, err := timeline.SendMessage(ctx, body)
		return actionMsg{err: err}
	}
}

func (m *Model) retrySelected() tea.Cmd {
	target, ok := m.selectedMessage()
	if !ok || target.Status != domain.MessageFailed {
		target, ok = lastFailed(m.messages)
	}
	if !ok {
		m.err = domain.ErrMessageNotFound
		return nil
	}
	return m.retry(target.ID)
}

func (m *Model) retry(idOrTxn string) tea.Cmd {
	timeline := m.deps.Timeline
	ctx := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		_, err := timeline.RetrySend(ctx, idOrTxn)
		return actionMsg{done: "resent", err: err}
	}
}

func (m *Model) blockSelected() tea.Cmd {
	target, ok := m.selectedMessage()
	if !ok {
		m.err = domain.ErrMessageNotFound
		return nil
	}
	if target.Sender == m.session.UserID {
		m.err = errors.New("cannot block yourself")
		return nil
	}
	m.selected = -1
	return m.setBlocked(target.Sender, true)
}

func (m *Model) setBlocked(userID string, blocked bool) tea.Cmd {
	moderation := m.deps.Moderation
	ctx := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		var err error
		verb := "blocked"
		if blocked {
			_, err = moderation.Add(ctx, domain.ListBlocked, userID)
		} else {
			verb = "unblocked"
			_, err = moderation.Remove(ctx, domain.ListBlocked, userID)
		}
		return actionMsg{done: verb + " " + userID, err: err}
	}
}

func (m Model) loadRooms() tea.Cmd {
	timeline := m.deps.Timeline
	ctx := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		rooms, err := timeline.Rooms(ctx)
		return roomsLoadedMsg{rooms: rooms, err: err}
	}
}

func (m Model) selectRoom(roomID string) tea.Cmd {
	timeline := m.deps.Timeline
	ctx := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		if err := timeline.SelectRoom(ctx, roomID); err != nil {
			return roomSelectedMsg{roomID: roomID, err: err}
		}
		return roomSelectedMsg{roomID: roomID, messages: timeline.Messages()}
	}
}

func (m *Model) setMessages(all []domain.Message) {
	m.all = all
	visible := make([]domain.Message, 0, len(all))
	for _, msg := range all {
		if m.deps.Moderation != nil && m.deps.Moderation.IsBlocked(msg.Sender) {
			continue
		}
		visible = append(visible, msg)
	}
	m.messages = visible
	if m.selected >= len(m.messages) {
		m.selected = len(m.messages) - 1
	}
	m.refresh()
}

func (m Model) selectedMessage() (domain.Message, bool) {
	if m.selected < 0 || m.selected >= len(m.messages) {
		return domain.Message{}, false
	}
	return m.messages[m.selected], true
}

func lastFailed(messages []domain.Message) (domain.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Status == domain.MessageFailed {
			return messages[i], true
		}
	}
	return domain.Message{}, false
}

func (m *Model) refresh() {
	opts := status.RenderOptions{Now: m.deps.Now(), Self: m.session.UserID}
	lines := make([]string, 0, len(m.messages))
	for i, msg := range m.messages {
		prefix := "  "
		if i == m.selected && m.focus == focusMessages {
			prefix = "> "
		}
		lines = append(lines, prefix+status.MessageLine(msg, opts))
	}
	if len(lines) == 0 {
		lines = append(lines, faint.Render("No messages."))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

var (
	faint       = lipgloss.NewStyle().Faint(true)
	bold        = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	paneStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, true, false, false).PaddingRight(1)
)

func (m Model) View() string {
	rooms := []string{bold.Render("Rooms")}
	if len(m.rooms) == 0 {
		rooms = append(rooms, faint.Render("none"))
	}
	for i, room := range m.rooms {
		label := room.Name
		if label == "" {
			label = room.ID
		}
		cursor := "  "
		if i == m.roomCursor && m.focus == focusRooms {
			cursor = "> "
		}
		if room.ID == m.roomID {
			label = bold.Render(label)
		}
		rooms = append(rooms, cursor+label)
	}

	left := paneStyle.Width(roomPaneWidth).Render(strings.Join(rooms, "\n"))
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, " ", m.viewport.View())

	return lipgloss.JoinVertical(lipgloss.Left, m.header(), body, m.input.View(), m.footer())
}

func (m Model) header() string {
	user := m.session.UserID
	if user == "" {
		user = "anonymous"
	}
	room := m.roomID
	if room == "" {
		room = "no room"
	}
	return bold.Render("swarmchat") + faint.Render(fmt.Sprintf("  %s  %s  %s", m.session.State, user, room))
}

func (m Model) footer() string {
	switch {
	case m.err != nil:
		return errorStyle.Render("error: " + m.err.Error())
	case m.notice != "":
		return noticeStyle.Render(m.notice)
	default:
		return faint.Render("tab switch pane · r retry · b block · ctrl+l reload · esc quit")
	}
}
