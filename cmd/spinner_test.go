package cmd

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/swarmchat/internal/domain"
)

func TestConnectPhasesFollowSessionStates(t *testing.T) {
	phases := newConnectPhases("Logging in as alice")

	label, ok := phases.label(domain.Session{State: domain.SessionConnecting, BaseURL: "http://127.0.0.1:8008"})
	require.True(t, ok)
	assert.Equal(t, "Logging in as alice (http://127.0.0.1:8008)", label)

	label, ok = phases.label(domain.Session{State: domain.SessionConnected, UserID: "@alice:local", Authenticated: true})
	require.True(t, ok)
	assert.Equal(t, "Starting sync... as @alice:local", label)

	_, ok = phases.label(domain.Session{State: domain.SessionError})
	assert.False(t, ok)
}

func TestConnectSpinnerRelabelsOnPhase(t *testing.T) {
	m := newConnectSpinnerModel("Checking node...", nil)
	assert.Contains(t, m.View(), "Checking node...")

	next, _ := m.Update(phaseMsg("Connecting (http://127.0.0.1:8008)"))
	m = next.(connectSpinnerModel)
	assert.Contains(t, m.View(), "Connecting (http://127.0.0.1:8008)")
	assert.NotContains(t, m.View(), "Checking node")

	next, cmd := m.Update(connectDoneMsg{err: domain.ErrNodeNotRunning})
	m = next.(connectSpinnerModel)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())
	assert.ErrorIs(t, m.err, domain.ErrNodeNotRunning)
}
