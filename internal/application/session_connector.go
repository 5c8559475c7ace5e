package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

var (
	ErrConnectorClosed = errors.New("session connector closed")
	// errSuperseded marks an attempt overtaken by disconnect, teardown or a newer attempt.
	errSuperseded = errors.New("connect attempt superseded")
)

const (
	DefaultProbeTimeout = 3 * time.Second
	DefaultRetryDelay   = time.Second
)

type SessionConfig struct {
	AutoConnect  bool
	ProbeTimeout time.Duration
	RetryDelay   time.Duration
	// Host overrides the address used to reach the node's client port.
	Host string
	Auth domain.ExplicitAuth
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// NodeReadiness is the part of the node monitor the connector depends on.
type NodeReadiness interface {
	Snapshot() NodeSnapshot
	Subscribe(fn func(NodeSnapshot)) ports.Subscription
}

// SessionEvent is published on every session change. Client is nil unless
// the session is Connected.
type SessionEvent struct {
	Seq     uint64
	Session domain.Session
	Client  ports.ChatClient
}

type SessionConnector struct {
	node      NodeReadiness
	connector ports.ChatConnector
	store     ports.CredentialStore
	cfg       SessionConfig
	logger    zerolog.Logger

	group singleflight.Group

	mu           sync.Mutex
	session      domain.Session
	client       ports.ChatClient
	seq          uint64
	attempt      uint64
	begun        uint64
	lastNodeSeq  uint64
	lastReady    bool
	suppressed   bool
	retryPending bool
	retryTimer   *time.Timer
	opened       bool
	closed       bool
	ctx          context.Context
	cancel       context.CancelFunc
	nodeSub      ports.Subscription
	wg           sync.WaitGroup
	listeners    listeners[SessionEvent]

	// credMu orders credential writes against clears.
	credMu sync.Mutex
}

func NewSessionConnector(node NodeReadiness, connector ports.ChatConnector, store ports.CredentialStore, cfg SessionConfig, logger zerolog.Logger) *SessionConnector {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionConnector{
		node:      node,
		connector: connector,
		store:     store,
		cfg:       cfg.withDefaults(),
		logger:    logger.With().Str("component", "session_connector").Logger(),
		session:   domain.Session{State: domain.SessionIdle},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Open subscribes to node readiness and applies the auto-connect policy to
// the current snapshot.
func (c *SessionConnector) Open() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectorClosed
	}
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = true
	c.mu.Unlock()

	sub := c.node.Subscribe(c.onNodeSnapshot)

	c.mu.Lock()
	c.nodeSub = sub
	c.mu.Unlock()

	c.onNodeSnapshot(c.node.Snapshot())
	return nil
}

// Close stops background work and the live client. Persisted credentials
// are kept.
func (c *SessionConnector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.attempt++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	client := c.client
	c.client = nil
	sub := c.nodeSub
	c.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	c.cancel()
	c.wg.Wait()
	if client != nil {
		client.Stop()
	}
}

func (c *SessionConnector) Session() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Client returns the live client while the session is Connected.
func (c *SessionConnector) Client() (ports.ChatClient, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client, c.client != nil
}

func (c *SessionConnector) Subscribe(fn func(SessionEvent)) ports.Subscription {
	return c.listeners.add(fn)
}

// Connect establishes a session against the ready node. Concurrent calls
// share one attempt. A live session makes it a no-op.
func (c *SessionConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectorClosed
	}
	c.suppressed = false
	c.mu.Unlock()

	return c.connectShared(ctx)
}

func (c *SessionConnector) connectShared(ctx context.Context) error {
	_, err, _ := c.group.Do("connect", func() (any, error) {
		return nil, c.connect(ctx)
	})
	return err
}

func (c *SessionConnector) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.client != nil && c.session.Connected() {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	baseURL, err := c.baseURL()
	if err != nil {
		c.fail(0, "", err)
		return fmt.Errorf("connect: %w", err)
	}

	attempt, emit := c.begin(baseURL)
	if attempt == 0 {
		return ErrConnectorClosed
	}
	emit()

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	err = c.connector.Probe(probeCtx, baseURL)
	cancel()
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", domain.ErrServerProbeFailed, baseURL, err)
		c.fail(attempt, baseURL, err)
		return fmt.Errorf("connect: %w", err)
	}

	creds, persist, err := c.resolveCredentials(ctx, baseURL)
	if err != nil {
		c.fail(attempt, baseURL, err)
		return fmt.Errorf("connect: %w", err)
	}

	if err := c.install(ctx, attempt, baseURL, creds, persist); err != nil {
		if !errors.Is(err, errSuperseded) {
			c.fail(attempt, baseURL, err)
		}
		return fmt.Errorf("connect: %w", err)
	}

	return nil
}

// resolveCredentials picks, in order: persisted token, explicit token,
// explicit username and password, anonymous.
func (c *SessionConnector) resolveCredentials(ctx context.Context, baseURL string) (*domain.Credentials, bool, error) {
	if stored, ok := c.storedCredentials(ctx); ok {
		return &stored, false, nil
	}

	auth := c.cfg.Auth
	if auth.HasToken() {
		return &domain.Credentials{AccessToken: auth.AccessToken, UserID: auth.UserID}, true, nil
	}

	if auth.HasPassword() {
		creds, err := c.connector.Login(ctx, baseURL, auth.Username, auth.Password)
		if err != nil {
			return nil, false, fmt.Errorf("%w: login %s: %w", domain.ErrAuthFailure, auth.Username, err)
		}
		return &creds, true, nil
	}

	return nil, false, nil
}

func (c *SessionConnector) storedCredentials(ctx context.Context) (domain.Credentials, bool) {
	token, err := c.store.Get(ctx, domain.KeyAccessToken)
	if err != nil {
		if !errors.Is(err, domain.ErrCredentialNotFound) {
			c.logger.Warn().Err(err).Msg("read stored access token")
		}
		return domain.Credentials{}, false
	}

	userID, err := c.store.Get(ctx, domain.KeyUserID)
	if err != nil {
		if !errors.Is(err, domain.ErrCredentialNotFound) {
			c.logger.Warn().Err(err).Msg("read stored user id")
		}
		return domain.Credentials{}, false
	}

	creds := domain.Credentials{AccessToken: token, UserID: userID}
	return creds, creds.Complete()
}

// Login performs a password login against the node and replaces any live
// session with the authenticated one.
func (c *SessionConnector) Login(ctx context.Context, username, password string) error {
	return c.authenticate(ctx, "login", username, password, c.connector.Login)
}

// Register creates the account on the node and logs in as it.
func (c *SessionConnector) Register(ctx context.Context, username, password string) error {
	if err := domain.CheckUsername(username); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return c.authenticate(ctx, "register", username, password, c.connector.Register)
}

type authFunc func(ctx context.Context, baseURL, username, password string) (domain.Credentials, error)

func (c *SessionConnector) authenticate(ctx context.Context, op, username, password string, call authFunc) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectorClosed
	}
	c.suppressed = false
	c.mu.Unlock()

	baseURL, err := c.baseURL()
	if err != nil {
		c.fail(0, "", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	attempt, emit := c.begin(baseURL)
	if attempt == 0 {
		return ErrConnectorClosed
	}
	emit()

	creds, err := call(ctx, baseURL, username, password)
	if err != nil {
		err = fmt.Errorf("%w: %s %s: %w", domain.ErrAuthFailure, op, username, err)
		c.fail(attempt, baseURL, err)
		return err
	}

	if err := c.install(ctx, attempt, baseURL, &creds, true); err != nil {
		if !errors.Is(err, errSuperseded) {
			c.fail(attempt, baseURL, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Disconnect stops the live client, forgets the session and clears the
// persisted credentials. Auto-connect stays off until the node becomes ready
// again or Connect is called.
func (c *SessionConnector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectorClosed
	}
	c.attempt++
	c.suppressed = true
	c.retryPending = false
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	client := c.client
	c.client = nil
	gen := c.begun
	emit := c.setSessionLocked(domain.Session{State: domain.SessionDisconnected})
	c.mu.Unlock()

	if client != nil {
		client.Stop()
	}
	emit()

	if err := c.clearCredentials(ctx, gen); err != nil {
		return err
	}

	c.logger.Info().Msg("disconnected")
	return nil
}

// clearCredentials deletes the persisted token and user id unless an attempt
// has begun since gen was read.
func (c *SessionConnector) clearCredentials(ctx context.Context, gen uint64) error {
	c.credMu.Lock()
	defer c.credMu.Unlock()

	c.mu.Lock()
	stale := c.begun != gen
	c.mu.Unlock()
	if stale {
		return nil
	}

	var errs error
	for _, key := range []string{domain.KeyAccessToken, domain.KeyUserID} {
		if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrCredentialNotFound) {
			errs = errors.Join(errs, err)
		}
	}
	if errs != nil {
		return fmt.Errorf("clear credentials: %w", errs)
	}
	return nil
}

func (c *SessionConnector) baseURL() (string, error) {
	snapshot := c.node.Snapshot()
	if !snapshot.Status.HasPort() {
		return "", domain.ErrNoPort
	}
	if !snapshot.Ready {
		return "", fmt.Errorf("%w: state %s", domain.ErrNodeNotRunning, snapshot.Status.State)
	}

	baseURL, _ := snapshot.Status.BaseURL(c.cfg.Host)
	return baseURL, nil
}

// begin starts a new attempt and moves the session to Connecting. It
// returns attempt 0 when the connector is closed.
func (c *SessionConnector) begin(baseURL string) (uint64, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, func() {}
	}
	c.attempt++
	c.begun++
	c.retryPending = false
	emit := c.setSessionLocked(domain.Session{State: domain.SessionConnecting, BaseURL: baseURL})
	return c.attempt, emit
}

// install opens and starts a client for creds and publishes it unless the
// attempt has been overtaken. Credentials are persisted, when asked, only
// for the published attempt.
func (c *SessionConnector) install(ctx context.Context, attempt uint64, baseURL string, creds *domain.Credentials, persist bool) error {
	client, err := c.connector.Open(baseURL, creds)
	if err != nil {
		return fmt.Errorf("open client: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		client.Stop()
		return fmt.Errorf("start client: %w", err)
	}

	session := domain.Session{State: domain.SessionConnected, BaseURL: baseURL}
	if client.Authenticated() {
		session.UserID = client.UserID()
		session.Authenticated = true
	}

	c.mu.Lock()
	if c.closed || c.attempt != attempt {
		c.mu.Unlock()
		client.Stop()
		return errSuperseded
	}
	previous := c.client
	c.client = client
	emit := c.setSessionLocked(session)
	c.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	emit()

	if persist && creds != nil {
		c.persist(ctx, attempt, *creds)
	}

	c.logger.Info().Str("user_id", session.UserID).Bool("authenticated", session.Authenticated).Msg("session connected")
	return nil
}

func (c *SessionConnector) persist(ctx context.Context, attempt uint64, creds domain.Credentials) {
	c.credMu.Lock()
	defer c.credMu.Unlock()

	c.mu.Lock()
	current := !c.closed && c.attempt == attempt
	c.mu.Unlock()
	if !current {
		c.logger.Debug().Msg("attempt overtaken, credentials not persisted")
		return
	}

	if err := c.store.Put(ctx, domain.KeyAccessToken, creds.AccessToken); err != nil {
		c.logger.Warn().Err(err).Msg("persist access token")
		return
	}
	if err := c.store.Put(ctx, domain.KeyUserID, creds.UserID); err != nil {
		c.logger.Warn().Err(err).Msg("persist user id")
	}
}

// fail records err on the session unless the attempt has been overtaken.
// Attempt 0 means no attempt was started.
func (c *SessionConnector) fail(attempt uint64, baseURL string, err error) {
	c.mu.Lock()
	if c.closed || (attempt != 0 && c.attempt != attempt) {
		c.mu.Unlock()
		return
	}
	emit := c.setSessionLocked(domain.Session{State: domain.SessionError, BaseURL: baseURL, LastError: err.Error()})
	c.mu.Unlock()

	c.logger.Warn().Err(err).Msg("session failed")
	emit()
}

func (c *SessionConnector) setSessionLocked(session domain.Session) func() {
	c.session = session
	c.seq++
	event := SessionEvent{Seq: c.seq, Session: session, Client: c.client}
	return func() { c.listeners.notify(event) }
}

func (c *SessionConnector) onNodeSnapshot(snapshot NodeSnapshot) {
	c.mu.Lock()
	if c.closed || (snapshot.Seq != 0 && snapshot.Seq <= c.lastNodeSeq) {
		c.mu.Unlock()
		return
	}
	c.lastNodeSeq = snapshot.Seq
	wasReady := c.lastReady
	c.lastReady = snapshot.Ready

	if !snapshot.Ready {
		c.teardownLocked(wasReady)
		return
	}

	if !wasReady {
		c.suppressed = false
	}

	eligible := !wasReady || c.retryPending || c.session.State == domain.SessionIdle
	if !c.cfg.AutoConnect || c.suppressed || c.client != nil || c.session.State == domain.SessionConnecting || !eligible {
		c.mu.Unlock()
		return
	}
	c.retryPending = false
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if err := c.connectShared(c.ctx); err != nil {
			if errors.Is(err, errSuperseded) || errors.Is(err, context.Canceled) || errors.Is(err, ErrConnectorClosed) {
				return
			}
			c.logger.Debug().Err(err).Msg("auto-connect failed")
			c.scheduleRetry()
		}
	}()
}

// teardownLocked disconnects after the node went unready: the live client
// stops and the persisted credentials are cleared. Auto-connect stays armed
// for the next rising edge. It releases c.mu.
func (c *SessionConnector) teardownLocked(wasReady bool) {
	inFlight := c.session.State == domain.SessionConnecting
	if c.client == nil && !inFlight {
		c.mu.Unlock()
		return
	}

	c.attempt++
	c.retryPending = false
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	client := c.client
	c.client = nil
	gen := c.begun
	emit := c.setSessionLocked(domain.Session{State: domain.SessionDisconnected})
	c.mu.Unlock()

	if client != nil {
		client.Stop()
	}
	emit()

	if err := c.clearCredentials(c.ctx, gen); err != nil {
		c.logger.Warn().Err(err).Msg("clear credentials after node went unready")
	}
	c.logger.Info().Bool("was_ready", wasReady).Msg("node unready, session disconnected")
}

// scheduleRetry re-enters Error once after the retry delay. The next node
// snapshot then drives a new attempt.
func (c *SessionConnector) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	attempt := c.attempt
	c.retryTimer = time.AfterFunc(c.cfg.RetryDelay, func() {
		c.mu.Lock()
		if c.closed || c.attempt != attempt || c.client != nil || c.session.State != domain.SessionError {
			c.mu.Unlock()
			return
		}
		c.retryPending = true
		emit := c.setSessionLocked(c.session)
		c.mu.Unlock()
		emit()
	})
}
