package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/swarmchat/internal/domain"
)

type Report struct {
	Node        domain.NodeStatus
	NodeReady   bool
	ObservedAt  time.Time
	ProbeError  string
	Session     domain.Session
	Blocked     []string
	Muted       []string
	ListsLoaded bool
}

type RenderOptions struct {
	Now        time.Time
	StaleAfter time.Duration
	// Self marks the local user's messages in a timeline.
	Self string
}

func renderView(report Report, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Swarmchat Status"),
		s.header.Render(fmt.Sprintf("node: %s  session: %s", report.Node.State, report.Session.State)),
		s.section.Render(renderNode(report, opts, s)),
		s.section.Render(renderSession(report.Session, s)),
	}
	if report.ListsLoaded {
		lines = append(lines, s.section.Render(renderModeration(report, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderNode(report Report, opts RenderOptions, s styles) string {
	node := report.Node
	title := s.label.Render("Node") + " " + stateStyle(string(node.State), s).Render(string(node.State))
	if report.NodeReady {
		title += " " + s.good.Render("[ready]")
	}
	if isStale(report.ObservedAt, opts) {
		title += " " + s.warning.Render("[stale]")
	}

	parts := []string{title}
	if node.PID != nil {
		parts = append(parts, s.detail.Render(fmt.Sprintf("pid: %d", *node.PID)))
	}
	if node.UptimeSeconds != nil {
		parts = append(parts, s.detail.Render("uptime: "+formatUptime(time.Duration(*node.UptimeSeconds)*time.Second)))
	}
	if node.HasPort() {
		parts = append(parts, s.detail.Render(fmt.Sprintf("client port: %d", *node.ClientPort)))
	} else {
		parts = append(parts, s.empty.Render("client port: n/a"))
	}
	if node.ErrorMessage != "" {
		parts = append(parts, s.warning.Render("error: "+node.ErrorMessage))
	}
	if report.ProbeError != "" && report.ProbeError != node.ErrorMessage {
		parts = append(parts, s.warning.Render("probe: "+report.ProbeError))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderSession(session domain.Session, s styles) string {
	parts := []string{s.label.Render("Session") + " " + stateStyle(string(session.State), s).Render(string(session.State))}

	switch {
	case session.UserID != "":
		parts = append(parts, s.detail.Render("user: "+session.UserID))
	case session.Connected():
		parts = append(parts, s.detail.Render("user: anonymous"))
	}
	if session.BaseURL != "" {
		parts = append(parts, s.detail.Render("server: "+session.BaseURL))
	}
	if session.LastError != "" {
		parts = append(parts, s.warning.Render("last error: "+session.LastError))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderModeration(report Report, s styles) string {
	parts := []string{s.label.Render("Moderation")}
	for _, list := range []struct {
		name string
		ids  []string
	}{
		{"blocked", report.Blocked},
		{"muted", report.Muted},
	} {
		if len(list.ids) == 0 {
			parts = append(parts, s.empty.Render(list.name+": none"))
			continue
		}
		parts = append(parts, s.detail.Render(fmt.Sprintf("%s (%d): %s", list.name, len(list.ids), strings.Join(list.ids, ", "))))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderMessages(roomID string, messages []domain.Message, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render(roomID),
		s.header.Render(fmt.Sprintf("messages: %d", len(messages))),
	}
	if len(messages) == 0 {
		lines = append(lines, s.empty.Render("No messages."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, msg := range messages {
		lines = append(lines, messageLine(msg, opts, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// MessageLine renders one timeline entry with its delivery marker.
func MessageLine(msg domain.Message, opts RenderOptions) string {
	return messageLine(msg, opts, newStyles())
}

func messageLine(msg domain.Message, opts RenderOptions, s styles) string {
	senderStyle := s.sender
	if opts.Self != "" && msg.Sender == opts.Self {
		senderStyle = s.own
	}

	line := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.stamp.Render(formatStamp(msg.Timestamp, opts.Now)),
		" ",
		senderStyle.Render(msg.Sender),
		" ",
		s.detail.Render(msg.Body),
	)

	switch msg.Status {
	case domain.MessagePending:
		line += " " + s.pending.Render("[sending]")
	case domain.MessageFailed:
		line += " " + s.warning.Render("[failed]")
	default:
		if len(msg.Receipts) > 0 {
			line += " " + s.receipts.Render(fmt.Sprintf("(seen by %d)", len(msg.Receipts)))
		}
	}

	return line
}

func stateStyle(state string, s styles) lipgloss.Style {
	switch state {
	case string(domain.NodeRunning), string(domain.SessionConnected):
		return s.good
	case string(domain.NodeStarting), string(domain.NodeStopping), string(domain.SessionConnecting):
		return s.pending
	case string(domain.NodeError): // domain.SessionError has the same value ("error")
		return s.warning
	default:
		return s.detail
	}
}

func isStale(observedAt time.Time, opts RenderOptions) bool {
	if opts.Now.IsZero() || observedAt.IsZero() || opts.StaleAfter <= 0 {
		return false
	}
	return opts.Now.Sub(observedAt) > opts.StaleAfter
}

func formatUptime(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd%02dh", int(d.Hours())/24, int(d.Hours())%24)
}

func formatStamp(ts, now time.Time) string {
	if ts.IsZero() {
		return "--:--"
	}
	if now.IsZero() {
		return ts.Format("15:04")
	}

	yearA, monthA, dayA := now.Date()
	yearB, monthB, dayB := ts.Date()
	if yearA == yearB && monthA == monthB && dayA == dayB {
		return ts.Format("15:04")
	}

	return ts.Format("02 Jan 15:04")
}
