package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bnema/swarmchat/internal/application"
)

// Run starts the chat view and blocks until the user quits or ctx ends.
// Component events are forwarded into the program from listener callbacks.
func Run(ctx context.Context, deps Deps, opts ...tea.ProgramOption) error {
	model := NewModel(ctx, deps)
	p := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)...)

	if deps.Sessions != nil {
		sub := deps.Sessions.Subscribe(func(ev application.SessionEvent) { p.Send(sessionMsg(ev)) })
		defer sub.Close()
	}
	if deps.Timeline != nil {
		sub := deps.Timeline.Subscribe(func(u application.TimelineUpdate) { p.Send(timelineMsg(u)) })
		defer sub.Close()
	}
	if deps.Moderation != nil {
		sub := deps.Moderation.Subscribe(func(u application.ModerationUpdate) { p.Send(moderationMsg(u)) })
		defer sub.Close()
	}

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run chat view: %w", err)
	}
	return nil
}
