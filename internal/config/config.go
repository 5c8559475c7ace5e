package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "SWARMCHAT"
	configName = "config"
	configType = "toml"
	configDir  = ".swarmchat"

	NodeModeSidecar = "sidecar"
	NodeModeRemote  = "remote"

	StoreBackendPebble = "pebble"
	StoreBackendFile   = "file"
	StoreBackendPass   = "pass"
	StoreBackendChain  = "chain"
)

type Config struct {
	Node     NodeConfig     `mapstructure:"node"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Session  SessionConfig  `mapstructure:"session"`
	Timeline TimelineConfig `mapstructure:"timeline"`
	Store    StoreConfig    `mapstructure:"store"`
	Log      LogConfig      `mapstructure:"log"`
}

type NodeConfig struct {
	Mode          string   `mapstructure:"mode"`
	Binary        string   `mapstructure:"binary"`
	Args          []string `mapstructure:"args"`
	SupervisorURL string   `mapstructure:"supervisor_url"`
	ClientPort    int      `mapstructure:"client_port"`
	Host          string   `mapstructure:"host"`
	// Listen is the address `node serve` binds the supervisor API to.
	Listen string `mapstructure:"listen"`
}

type MonitorConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PortRequired      bool          `mapstructure:"port_required"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout"`
	ConfirmInterval   time.Duration `mapstructure:"confirm_interval"`
}

type SessionConfig struct {
	AutoConnect  bool          `mapstructure:"auto_connect"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	AccessToken  string        `mapstructure:"access_token"`
	UserID       string        `mapstructure:"user_id"`
}

type TimelineConfig struct {
	BackfillLimit   int           `mapstructure:"backfill_limit"`
	ReceiptInterval time.Duration `mapstructure:"receipt_interval"`
	MatchWindow     time.Duration `mapstructure:"match_window"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Dir is the per-user configuration directory.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, configDir), nil
}

// DefaultPath is the config file read when --config is not given.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName+"."+configType), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Node: NodeConfig{
			Mode:   NodeModeSidecar,
			Binary: "dendrite",
			Host:   "127.0.0.1",
			Listen: "127.0.0.1:7070",
		},
		Monitor: MonitorConfig{
			PollInterval:      time.Second,
			HeartbeatInterval: 5 * time.Second,
			PortRequired:      true,
			ConfirmTimeout:    5 * time.Second,
			ConfirmInterval:   300 * time.Millisecond,
		},
		Session: SessionConfig{
			AutoConnect:  true,
			ProbeTimeout: 3 * time.Second,
			RetryDelay:   time.Second,
		},
		Timeline: TimelineConfig{
			BackfillLimit:   30,
			ReceiptInterval: 5 * time.Second,
			MatchWindow:     30 * time.Second,
		},
		Store: StoreConfig{
			Backend: StoreBackendPebble,
			Path:    filepath.Join("~", configDir, "store"),
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// SetDefaults registers every key with its built-in value, which also
// makes each key visible to environment lookups.
func SetDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		"node.mode":                  d.Node.Mode,
		"node.binary":                d.Node.Binary,
		"node.supervisor_url":        "",
		"node.client_port":           0,
		"node.host":                  d.Node.Host,
		"node.listen":                d.Node.Listen,
		"monitor.poll_interval":      d.Monitor.PollInterval,
		"monitor.heartbeat_interval": d.Monitor.HeartbeatInterval,
		"monitor.port_required":      d.Monitor.PortRequired,
		"monitor.confirm_timeout":    d.Monitor.ConfirmTimeout,
		"monitor.confirm_interval":   d.Monitor.ConfirmInterval,
		"session.auto_connect":       d.Session.AutoConnect,
		"session.probe_timeout":      d.Session.ProbeTimeout,
		"session.retry_delay":        d.Session.RetryDelay,
		"session.username":           "",
		"session.password":           "",
		"session.access_token":       "",
		"session.user_id":            "",
		"timeline.backfill_limit":    d.Timeline.BackfillLimit,
		"timeline.receipt_interval":  d.Timeline.ReceiptInterval,
		"timeline.match_window":      d.Timeline.MatchWindow,
		"store.backend":              d.Store.Backend,
		"store.path":                 d.Store.Path,
		"log.level":                  d.Log.Level,
		"log.format":                 d.Log.Format,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load layers defaults, the config file and SWARMCHAT_* environment
// variables. A missing config file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType)
	} else {
		dir, err := Dir()
		if err != nil {
			return Config{}, err
		}
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	storePath, err := ExpandHome(cfg.Store.Path)
	if err != nil {
		return Config{}, err
	}
	cfg.Store.Path = storePath

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Node.Mode {
	case NodeModeSidecar:
		if c.Node.Binary == "" {
			errs = append(errs, errors.New("node.binary is required in sidecar mode"))
		}
	case NodeModeRemote:
		if c.Node.SupervisorURL == "" {
			errs = append(errs, errors.New("node.supervisor_url is required in remote mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported node.mode %q", c.Node.Mode))
	}

	backends := []string{StoreBackendPebble, StoreBackendFile, StoreBackendPass, StoreBackendChain}
	if !slices.Contains(backends, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("unsupported store.backend %q", c.Store.Backend))
	}
	if c.Store.Path == "" && c.Store.Backend != StoreBackendPass {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Timeline.BackfillLimit < 0 {
		errs = append(errs, errors.New("timeline.backfill_limit must not be negative"))
	}
	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, errors.New("monitor.poll_interval must be positive"))
	}

	return errors.Join(errs...)
}

// ExpandHome resolves a leading "~" against the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}
