package sidecar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

const (
	DefaultStopTimeout = 5 * time.Second
	DefaultStopPoll    = 200 * time.Millisecond
	DefaultLogBacklog  = 200
)

type Config struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
	// ClientPort is used when the node does not log its port.
	ClientPort  int
	Classifier  LineClassifier
	StopTimeout time.Duration
	StopPoll    time.Duration
	LogBacklog  int
}

// Supervisor runs the node binary as a child process and reports its
// state from the process lifecycle and its log lines.
type Supervisor struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	cmd       *exec.Cmd
	exited    chan struct{}
	state     domain.NodeState
	startedAt time.Time
	port      int
	errMsg    string
	backlog   []domain.NodeLogEvent

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(domain.NodeLogEvent)
}

var (
	_ ports.NodeProbe     = (*Supervisor)(nil)
	_ ports.NodeLogSource = (*Supervisor)(nil)
)

func NewSupervisor(cfg Config, logger zerolog.Logger) *Supervisor {
	if cfg.Classifier == nil {
		cfg.Classifier = DefaultClassifier()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.StopPoll <= 0 {
		cfg.StopPoll = DefaultStopPoll
	}
	if cfg.LogBacklog <= 0 {
		cfg.LogBacklog = DefaultLogBacklog
	}

	return &Supervisor{
		cfg:    cfg,
		logger: logger.With().Str("component", "sidecar").Logger(),
		now:    time.Now,
		state:  domain.NodeStopped,
		subs:   map[int]func(domain.NodeLogEvent){},
	}
}

func (s *Supervisor) Status(ctx context.Context) (domain.NodeStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.NodeStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status := domain.NodeStatus{State: s.state, ErrorMessage: s.errMsg}
	if s.cmd != nil && s.cmd.Process != nil {
		status.PID = domain.IntPtr(s.cmd.Process.Pid)
		status.UptimeSeconds = domain.Int64Ptr(int64(s.now().Sub(s.startedAt).Seconds()))
	}
	if s.port > 0 {
		status.ClientPort = domain.IntPtr(s.port)
	}
	return status, nil
}

// Start spawns the node. The process outlives ctx; only Stop ends it.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return domain.ErrNodeAlreadyRunning
	}

	bin, err := exec.LookPath(s.cfg.Binary)
	if err != nil {
		return fmt.Errorf("locate node binary %q: %w", s.cfg.Binary, err)
	}

	cmd := exec.Command(bin, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir
	if len(s.cfg.Env) > 0 {
		cmd.Env = s.cfg.Env
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attach node stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attach node stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		s.state = domain.NodeError
		s.errMsg = err.Error()
		return fmt.Errorf("spawn node: %w", err)
	}

	exited := make(chan struct{})
	s.cmd = cmd
	s.exited = exited
	s.state = domain.NodeStarting
	s.startedAt = s.now()
	s.port = s.cfg.ClientPort
	s.errMsg = ""
	s.logger.Info().Int("pid", cmd.Process.Pid).Str("binary", bin).Msg("node spawned")

	var readers sync.WaitGroup
	readers.Add(2)
	go s.readLines(&readers, stdout, domain.NodeLogStdout)
	go s.readLines(&readers, stderr, domain.NodeLogStderr)
	go s.wait(cmd, &readers, exited)

	return nil
}

// Stop kills the node and waits for it to exit, polling until StopTimeout.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	if cmd == nil {
		s.mu.Unlock()
		return domain.ErrNodeNotRunning
	}
	s.state = domain.NodeStopping
	s.mu.Unlock()

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill node: %w", err)
	}

	ticker := time.NewTicker(s.cfg.StopPoll)
	defer ticker.Stop()
	deadline := time.NewTimer(s.cfg.StopTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-exited:
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			s.logger.Warn().Dur("timeout", s.cfg.StopTimeout).Msg("node did not exit after kill")
			return nil
		case <-ticker.C:
		case <-exited:
			return nil
		}
	}
}

// Close stops the node if it is running.
func (s *Supervisor) Close(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil && !errors.Is(err, domain.ErrNodeNotRunning) {
		return err
	}
	return nil
}

func (s *Supervisor) wait(cmd *exec.Cmd, readers *sync.WaitGroup, exited chan struct{}) {
	readers.Wait()
	err := cmd.Wait()

	s.mu.Lock()
	if s.cmd == cmd {
		switch {
		case s.state == domain.NodeStopping:
			s.state = domain.NodeStopped
		case err != nil:
			s.state = domain.NodeError
			s.errMsg = fmt.Sprintf("node exited: %v", err)
		default:
			s.state = domain.NodeStopped
		}
		s.cmd = nil
		s.exited = nil
		s.port = 0
	}
	state := s.state
	s.mu.Unlock()
	close(exited)

	s.logger.Info().Str("state", string(state)).Err(err).Msg("node exited")
}

func (s *Supervisor) readLines(readers *sync.WaitGroup, r io.Reader, stream domain.NodeLogStream) {
	defer readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.handleLine(stream, scanner.Text())
	}
}

func (s *Supervisor) handleLine(stream domain.NodeLogStream, line string) {
	events := []domain.NodeLogEvent{{Stream: stream, Line: line}}

	s.mu.Lock()
	switch s.cfg.Classifier.Classify(stream, line) {
	case SignalReady:
		if s.state == domain.NodeStarting {
			s.state = domain.NodeRunning
		}
	case SignalError:
		s.errMsg = line
		// Once running, noisy error lines are kept for display only.
		if s.state == domain.NodeStarting {
			s.state = domain.NodeError
		}
	}
	if port, ok := DetectPort(line); ok && port != s.port {
		s.port = port
		events = append(events, domain.NodeLogEvent{Stream: domain.NodeLogPort, Line: line, Port: port})
	}
	s.backlog = append(s.backlog, events...)
	if over := len(s.backlog) - s.cfg.LogBacklog; over > 0 {
		s.backlog = append([]domain.NodeLogEvent(nil), s.backlog[over:]...)
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.publish(ev)
	}
}

// Backlog returns the most recent log events, oldest first.
func (s *Supervisor) Backlog() []domain.NodeLogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.NodeLogEvent(nil), s.backlog...)
}

func (s *Supervisor) SubscribeLogs(handler func(domain.NodeLogEvent)) ports.Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = handler

	return ports.NewSubscription(func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	})
}

func (s *Supervisor) publish(ev domain.NodeLogEvent) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(domain.NodeLogEvent), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
