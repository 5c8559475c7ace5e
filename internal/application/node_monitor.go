package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

var ErrMonitorClosed = errors.New("node monitor closed")

const (
	DefaultPollInterval      = time.Second
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultConfirmTimeout    = 5 * time.Second
	DefaultConfirmInterval   = 300 * time.Millisecond
)

type NodeMonitorConfig struct {
	// PollInterval paces probes while the node is not ready.
	PollInterval time.Duration
	// HeartbeatInterval paces probes once ready. Zero disables the heartbeat.
	HeartbeatInterval time.Duration
	PortRequired      bool
	ConfirmTimeout    time.Duration
	ConfirmInterval   time.Duration
}

func (c NodeMonitorConfig) withDefaults() NodeMonitorConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HeartbeatInterval < 0 {
		c.HeartbeatInterval = 0
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = DefaultConfirmTimeout
	}
	if c.ConfirmInterval <= 0 {
		c.ConfirmInterval = DefaultConfirmInterval
	}
	return c
}

// NodeSnapshot is what the monitor publishes after every observation.
type NodeSnapshot struct {
	Seq        uint64
	Status     domain.NodeStatus
	Ready      bool
	Err        error
	ObservedAt time.Time
}

// NodeMonitor owns the node status. It polls the probe quickly until the
// node is ready, then falls back to a slow heartbeat.
type NodeMonitor struct {
	probe  ports.NodeProbe
	cfg    NodeMonitorConfig
	clock  ports.Clock
	logger zerolog.Logger

	mu        sync.Mutex
	snapshot  NodeSnapshot
	opened    bool
	closed    bool
	cancel    context.CancelFunc
	wake      chan struct{}
	wg        sync.WaitGroup
	listeners listeners[NodeSnapshot]
}

func NewNodeMonitor(probe ports.NodeProbe, cfg NodeMonitorConfig, clock ports.Clock, logger zerolog.Logger) *NodeMonitor {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &NodeMonitor{
		probe:    probe,
		cfg:      cfg.withDefaults(),
		clock:    clock,
		logger:   logger.With().Str("component", "node_monitor").Logger(),
		snapshot: NodeSnapshot{Status: domain.NodeStatus{State: domain.NodeUnknown}},
		wake:     make(chan struct{}, 1),
	}
}

// Open starts the polling loop. The first probe runs immediately.
func (m *NodeMonitor) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMonitorClosed
	}
	if m.opened {
		return nil
	}
	m.opened = true

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.loop(loopCtx)

	return nil
}

// Close stops polling and waits for it. No state changes after Close returns.
func (m *NodeMonitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *NodeMonitor) Snapshot() NodeSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

func (m *NodeMonitor) Ready() bool {
	return m.Snapshot().Ready
}

func (m *NodeMonitor) Subscribe(fn func(NodeSnapshot)) ports.Subscription {
	return m.listeners.add(fn)
}

// ProbeOnce queries the node once and records the result.
func (m *NodeMonitor) ProbeOnce(ctx context.Context) (domain.NodeStatus, error) {
	status, err := m.probe.Status(ctx)
	if err != nil {
		failed := domain.NodeStatus{State: domain.NodeError, ErrorMessage: err.Error()}
		wrapped := fmt.Errorf("%w: %w", domain.ErrProbeFailure, err)
		m.apply(failed, wrapped)
		return failed, wrapped
	}

	m.apply(status, nil)
	return status, nil
}

// Refresh probes immediately and resets the poll timer.
func (m *NodeMonitor) Refresh(ctx context.Context) (NodeSnapshot, error) {
	_, err := m.ProbeOnce(ctx)
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return m.Snapshot(), err
}

// StartNode asserts Starting right away, asks the node to start, then waits
// for Running to be observed.
func (m *NodeMonitor) StartNode(ctx context.Context) error {
	return m.transition(ctx, domain.NodeStarting, domain.NodeRunning, m.probe.Start)
}

// StopNode asserts Stopping right away, asks the node to stop, then waits
// for Stopped to be observed.
func (m *NodeMonitor) StopNode(ctx context.Context) error {
	return m.transition(ctx, domain.NodeStopping, domain.NodeStopped, m.probe.Stop)
}

func (m *NodeMonitor) transition(ctx context.Context, asserted, target domain.NodeState, action func(context.Context) error) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMonitorClosed
	}
	optimistic := m.snapshot.Status
	optimistic.State = asserted
	optimistic.ErrorMessage = ""
	if asserted == domain.NodeStarting {
		optimistic.ClientPort = nil
	}
	m.mu.Unlock()
	m.apply(optimistic, nil)

	if err := action(ctx); err != nil {
		m.apply(domain.NodeStatus{State: domain.NodeError, ErrorMessage: err.Error()}, err)
		return fmt.Errorf("request node %s: %w", target, err)
	}

	if err := m.confirm(ctx, target); err != nil {
		return err
	}

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

func (m *NodeMonitor) confirm(ctx context.Context, target domain.NodeState) error {
	deadline := time.NewTimer(m.cfg.ConfirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.cfg.ConfirmInterval)
	defer ticker.Stop()

	for {
		status, err := m.ProbeOnce(ctx)
		if err == nil && status.State == target {
			return nil
		}
		if m.isClosed() {
			return ErrMonitorClosed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			msg := fmt.Sprintf("node did not reach %s within %s", target, m.cfg.ConfirmTimeout)
			m.apply(domain.NodeStatus{State: domain.NodeError, ErrorMessage: msg}, domain.ErrNodeConfirmTimeout)
			return fmt.Errorf("confirm node %s: %w", target, domain.ErrNodeConfirmTimeout)
		case <-ticker.C:
		}
	}
}

func (m *NodeMonitor) loop(ctx context.Context) {
	defer m.wg.Done()

	for {
		if _, err := m.ProbeOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Debug().Err(err).Msg("node probe failed")
		}

		interval := m.cfg.PollInterval
		if m.Ready() {
			interval = m.cfg.HeartbeatInterval
		}

		if !m.wait(ctx, interval) {
			return
		}
	}
}

// wait blocks for interval, a wake-up or cancellation. A zero interval
// waits for a wake-up only.
func (m *NodeMonitor) wait(ctx context.Context, interval time.Duration) bool {
	var tick <-chan time.Time
	if interval > 0 {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		tick = timer.C
	}

	select {
	case <-ctx.Done():
		return false
	case <-m.wake:
		return true
	case <-tick:
		return true
	}
}

func (m *NodeMonitor) apply(status domain.NodeStatus, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	wasReady := m.snapshot.Ready
	m.snapshot = NodeSnapshot{
		Seq:        m.snapshot.Seq + 1,
		Status:     status,
		Ready:      status.Ready(m.cfg.PortRequired),
		Err:        err,
		ObservedAt: m.clock.Now(),
	}
	snapshot := m.snapshot
	m.mu.Unlock()

	if wasReady != snapshot.Ready {
		m.logger.Info().Str("state", string(status.State)).Bool("ready", snapshot.Ready).Msg("node readiness changed")
	}
	m.listeners.notify(snapshot)
}

func (m *NodeMonitor) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
