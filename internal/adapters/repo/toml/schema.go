package toml

import (
	"fmt"
	"time"

	"github.com/bnema/swarmchat/internal/config"
)

const currentSchemaVersion = 1

// fileSchema mirrors config.Config with durations as strings. Passwords and
// tokens are never written; they live in the credential store or the
// environment.
type fileSchema struct {
	Version  int            `toml:"version"`
	Node     nodeSchema     `toml:"node"`
	Monitor  monitorSchema  `toml:"monitor"`
	Session  sessionSchema  `toml:"session"`
	Timeline timelineSchema `toml:"timeline"`
	Store    storeSchema    `toml:"store"`
	Log      logSchema      `toml:"log"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported config schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type nodeSchema struct {
	Mode          string   `toml:"mode"`
	Binary        string   `toml:"binary,omitempty"`
	Args          []string `toml:"args,omitempty"`
	SupervisorURL string   `toml:"supervisor_url,omitempty"`
	ClientPort    int      `toml:"client_port,omitempty"`
	Host          string   `toml:"host,omitempty"`
	Listen        string   `toml:"listen,omitempty"`
}

type monitorSchema struct {
	PollInterval      string `toml:"poll_interval"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	PortRequired      *bool  `toml:"port_required"`
	ConfirmTimeout    string `toml:"confirm_timeout"`
	ConfirmInterval   string `toml:"confirm_interval"`
}

type sessionSchema struct {
	AutoConnect  *bool  `toml:"auto_connect"`
	ProbeTimeout string `toml:"probe_timeout"`
	RetryDelay   string `toml:"retry_delay"`
	Username     string `toml:"username,omitempty"`
	UserID       string `toml:"user_id,omitempty"`
}

type timelineSchema struct {
	BackfillLimit   int    `toml:"backfill_limit"`
	ReceiptInterval string `toml:"receipt_interval"`
	MatchWindow     string `toml:"match_window"`
}

type storeSchema struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path,omitempty"`
}

type logSchema struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func toSchema(cfg config.Config) fileSchema {
	return fileSchema{
		Version: currentSchemaVersion,
		Node: nodeSchema{
			Mode:          cfg.Node.Mode,
			Binary:        cfg.Node.Binary,
			Args:          cfg.Node.Args,
			SupervisorURL: cfg.Node.SupervisorURL,
			ClientPort:    cfg.Node.ClientPort,
			Host:          cfg.Node.Host,
			Listen:        cfg.Node.Listen,
		},
		Monitor: monitorSchema{
			PollInterval:      formatDuration(cfg.Monitor.PollInterval),
			HeartbeatInterval: formatDuration(cfg.Monitor.HeartbeatInterval),
			PortRequired:      boolPtr(cfg.Monitor.PortRequired),
			ConfirmTimeout:    formatDuration(cfg.Monitor.ConfirmTimeout),
			ConfirmInterval:   formatDuration(cfg.Monitor.ConfirmInterval),
		},
		Session: sessionSchema{
			AutoConnect:  boolPtr(cfg.Session.AutoConnect),
			ProbeTimeout: formatDuration(cfg.Session.ProbeTimeout),
			RetryDelay:   formatDuration(cfg.Session.RetryDelay),
			Username:     cfg.Session.Username,
			UserID:       cfg.Session.UserID,
		},
		Timeline: timelineSchema{
			BackfillLimit:   cfg.Timeline.BackfillLimit,
			ReceiptInterval: formatDuration(cfg.Timeline.ReceiptInterval),
			MatchWindow:     formatDuration(cfg.Timeline.MatchWindow),
		},
		Store: storeSchema{
			Backend: cfg.Store.Backend,
			Path:    cfg.Store.Path,
		},
		Log: logSchema{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
		},
	}
}

// fromSchema overlays the file onto the built-in defaults, so sections or
// keys missing from older files keep their default values.
func fromSchema(file fileSchema) (config.Config, error) {
	cfg := config.Default()

	if file.Node.Mode != "" {
		cfg.Node.Mode = file.Node.Mode
	}
	if file.Node.Binary != "" {
		cfg.Node.Binary = file.Node.Binary
	}
	cfg.Node.Args = file.Node.Args
	cfg.Node.SupervisorURL = file.Node.SupervisorURL
	cfg.Node.ClientPort = file.Node.ClientPort
	if file.Node.Host != "" {
		cfg.Node.Host = file.Node.Host
	}
	if file.Node.Listen != "" {
		cfg.Node.Listen = file.Node.Listen
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"monitor.poll_interval", file.Monitor.PollInterval, &cfg.Monitor.PollInterval},
		{"monitor.heartbeat_interval", file.Monitor.HeartbeatInterval, &cfg.Monitor.HeartbeatInterval},
		{"monitor.confirm_timeout", file.Monitor.ConfirmTimeout, &cfg.Monitor.ConfirmTimeout},
		{"monitor.confirm_interval", file.Monitor.ConfirmInterval, &cfg.Monitor.ConfirmInterval},
		{"session.probe_timeout", file.Session.ProbeTimeout, &cfg.Session.ProbeTimeout},
		{"session.retry_delay", file.Session.RetryDelay, &cfg.Session.RetryDelay},
		{"timeline.receipt_interval", file.Timeline.ReceiptInterval, &cfg.Timeline.ReceiptInterval},
		{"timeline.match_window", file.Timeline.MatchWindow, &cfg.Timeline.MatchWindow},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return config.Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if file.Monitor.PortRequired != nil {
		cfg.Monitor.PortRequired = *file.Monitor.PortRequired
	}
	if file.Session.AutoConnect != nil {
		cfg.Session.AutoConnect = *file.Session.AutoConnect
	}
	cfg.Session.Username = file.Session.Username
	cfg.Session.UserID = file.Session.UserID
	if file.Timeline.BackfillLimit != 0 {
		cfg.Timeline.BackfillLimit = file.Timeline.BackfillLimit
	}
	if file.Store.Backend != "" {
		cfg.Store.Backend = file.Store.Backend
	}
	if file.Store.Path != "" {
		cfg.Store.Path = file.Store.Path
	}
	if file.Log.Level != "" {
		cfg.Log.Level = file.Log.Level
	}
	if file.Log.Format != "" {
		cfg.Log.Format = file.Log.Format
	}

	return cfg, nil
}

func formatDuration(d time.Duration) string {
	return d.String()
}

func boolPtr(v bool) *bool {
	return &v
}
