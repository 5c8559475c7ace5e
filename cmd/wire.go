package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	chainstore "github.com/bnema/swarmchat/internal/adapters/credentials/chain"
	filestore "github.com/bnema/swarmchat/internal/adapters/credentials/file"
	passstore "github.com/bnema/swarmchat/internal/adapters/credentials/pass"
	pebblestore "github.com/bnema/swarmchat/internal/adapters/credentials/pebble"
	"github.com/bnema/swarmchat/internal/adapters/ids"
	"github.com/bnema/swarmchat/internal/adapters/matrix"
	"github.com/bnema/swarmchat/internal/adapters/node/remote"
	"github.com/bnema/swarmchat/internal/adapters/node/sidecar"
	statusadapter "github.com/bnema/swarmchat/internal/adapters/render/status"
	"github.com/bnema/swarmchat/internal/application"
	"github.com/bnema/swarmchat/internal/config"
	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/logging"
	"github.com/bnema/swarmchat/internal/ports"
)

const supervisorProbeTimeout = 2 * time.Second

type app struct {
	configPath string
	logLevel   string

	cfg            config.Config
	logger         zerolog.Logger
	statusRenderer func(statusadapter.Report, statusadapter.RenderOptions) (string, error)
	httpClient     *http.Client
	now            func() time.Time
}

func newApp() *app {
	return &app{
		logger:         zerolog.Nop(),
		statusRenderer: statusadapter.Render,
		httpClient:     http.DefaultClient,
		now:            time.Now,
	}
}

// load reads the layered configuration and builds the logger. It runs
// before every command.
func (a *app) load(stderr io.Writer) error {
	cfg, err := config.Load(viper.New(), a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("wire logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// openStore opens the configured credential store backend.
func (a *app) openStore() (ports.CredentialStore, func(), error) {
	path := a.cfg.Store.Path

	switch a.cfg.Store.Backend {
	case config.StoreBackendPebble:
		store, err := pebblestore.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("wire pebble credential store: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("close credential store")
			}
		}, nil
	case config.StoreBackendFile:
		return filestore.NewStore(path), func() {}, nil
	case config.StoreBackendPass:
		return passstore.NewStore(passstore.DefaultPrefix), func() {}, nil
	case config.StoreBackendChain:
		store, err := chainstore.NewPassFirstWithFileFallback(path)
		if err != nil {
			return nil, nil, fmt.Errorf("wire credential store chain: %w", err)
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", a.cfg.Store.Backend)
	}
}

// supervisorClient talks to the supervisor API: the configured remote one,
// or the local `node serve` in sidecar mode.
func (a *app) supervisorClient() *remote.Client {
	baseURL := a.cfg.Node.SupervisorURL
	if a.cfg.Node.Mode == config.NodeModeSidecar || baseURL == "" {
		baseURL = "http://" + a.cfg.Node.Listen
	}

	return &remote.Client{
		BaseURL:    baseURL,
		HTTPClient: a.httpClient,
		Logger:     a.logger,
	}
}

func (a *app) newSupervisor() *sidecar.Supervisor {
	return sidecar.NewSupervisor(sidecar.Config{
		Binary:     a.cfg.Node.Binary,
		Args:       a.cfg.Node.Args,
		ClientPort: a.cfg.Node.ClientPort,
	}, a.logger)
}

// nodeControl picks the node probe for long-running commands. In sidecar
// mode a reachable `node serve` is reused; otherwise this process supervises
// the node itself and owned is returned.
func (a *app) nodeControl(ctx context.Context) (ports.NodeProbe, *sidecar.Supervisor) {
	client := a.supervisorClient()
	if a.cfg.Node.Mode != config.NodeModeSidecar {
		return client, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, supervisorProbeTimeout)
	defer cancel()
	if _, err := client.Status(probeCtx); err == nil {
		a.logger.Debug().Str("supervisor", client.BaseURL).Msg("using running supervisor")
		return client, nil
	}

	owned := a.newSupervisor()
	return owned, owned
}

func (a *app) monitorConfig() application.NodeMonitorConfig {
	return application.NodeMonitorConfig{
		PollInterval:      a.cfg.Monitor.PollInterval,
		HeartbeatInterval: a.cfg.Monitor.HeartbeatInterval,
		PortRequired:      a.cfg.Monitor.PortRequired,
		ConfirmTimeout:    a.cfg.Monitor.ConfirmTimeout,
		ConfirmInterval:   a.cfg.Monitor.ConfirmInterval,
	}
}

func (a *app) chatConnector() *matrix.Connector {
	return &matrix.Connector{
		HTTPClient: a.httpClient,
		Logger:     a.logger,
	}
}

type runtimeOptions struct {
	// poll starts the monitor loop; one-shot commands probe once instead.
	poll        bool
	autoConnect bool
	auth        domain.ExplicitAuth
}

// runtime is the wired application core for one command run.
type runtime struct {
	monitor    *application.NodeMonitor
	sessions   *application.SessionConnector
	moderation *application.ModerationSync
	timeline   *application.TimelineReconciler
	closers    []func()
}

func (a *app) startRuntime(ctx context.Context, probe ports.NodeProbe, opts runtimeOptions) (*runtime, error) {
	store, closeStore, err := a.openStore()
	if err != nil {
		return nil, err
	}

	rt := &runtime{closers: []func(){closeStore}}

	rt.monitor = application.NewNodeMonitor(probe, a.monitorConfig(), nil, a.logger)
	rt.closers = append(rt.closers, rt.monitor.Close)

	auth := opts.auth
	if auth == (domain.ExplicitAuth{}) {
		auth = domain.ExplicitAuth{
			Username:    a.cfg.Session.Username,
			Password:    a.cfg.Session.Password,
			AccessToken: a.cfg.Session.AccessToken,
			UserID:      a.cfg.Session.UserID,
		}
	}
	rt.sessions = application.NewSessionConnector(rt.monitor, a.chatConnector(), store, application.SessionConfig{
		AutoConnect:  opts.autoConnect,
		ProbeTimeout: a.cfg.Session.ProbeTimeout,
		RetryDelay:   a.cfg.Session.RetryDelay,
		Host:         a.cfg.Node.Host,
		Auth:         auth,
	}, a.logger)
	rt.closers = append(rt.closers, rt.sessions.Close)

	rt.moderation = application.NewModerationSync(rt.sessions, store, a.logger)
	rt.closers = append(rt.closers, rt.moderation.Close)

	rt.timeline = application.NewTimelineReconciler(rt.sessions, rt.moderation, ids.Generator{}, nil, application.TimelineConfig{
		BackfillLimit:   a.cfg.Timeline.BackfillLimit,
		ReceiptInterval: a.cfg.Timeline.ReceiptInterval,
		MatchWindow:     a.cfg.Timeline.MatchWindow,
	}, a.logger)
	rt.closers = append(rt.closers, rt.timeline.Close)

	if opts.poll {
		if err := rt.monitor.Open(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("open node monitor: %w", err)
		}
	} else if _, err := rt.monitor.Refresh(ctx); err != nil {
		a.logger.Debug().Err(err).Msg("node probe failed")
	}

	if err := rt.sessions.Open(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("open session connector: %w", err)
	}
	if err := rt.moderation.Open(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("open moderation sync: %w", err)
	}

	return rt, nil
}

// Close tears components down in reverse wiring order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// connect establishes a session if the node is ready.
func (rt *runtime) connect(ctx context.Context) error {
	if !rt.monitor.Ready() {
		snapshot := rt.monitor.Snapshot()
		if snapshot.Err != nil {
			return fmt.Errorf("node is not ready: %w", snapshot.Err)
		}
		return fmt.Errorf("%w: state %s", domain.ErrNodeNotRunning, snapshot.Status.State)
	}
	return rt.sessions.Connect(ctx)
}

// oneShot wires a runtime against the supervisor API for commands that run
// once and exit.
func (a *app) oneShot(ctx context.Context, auth domain.ExplicitAuth) (*runtime, error) {
	return a.startRuntime(ctx, a.supervisorClient(), runtimeOptions{auth: auth})
}

var (
	errUsernameRequired = errors.New("username is required: use --username or session.username")
	errPasswordRequired = errors.New("password is required: use --password-stdin or SWARMCHAT_SESSION_PASSWORD")
)
