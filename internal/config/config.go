package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

// EnvPrefix is prepended to every setting, e.g. RADIOSCHED_MPD_ADDR.
const EnvPrefix = "RADIOSCHED"

const appName = "radio-scheduler"

type Config struct {
	ConfigFile    string `mapstructure:"config_file"`    // station/schedule document
	StateFile     string `mapstructure:"state_file"`     // bbolt state database
	ControlSocket string `mapstructure:"control_socket"` // unix socket for the control API

	LogLevel  string `mapstructure:"log_level"`  // "debug" | "info" | "warn" | "error"
	PrettyLog bool   `mapstructure:"pretty_log"` // true => zap dev (color), false => zap prod (JSON)
	LogFile   string `mapstructure:"log_file"`   // optional, in addition to stderr

	// MPD
	MPDNetwork  string `mapstructure:"mpd_network"` // "tcp" | "unix"
	MPDAddr     string `mapstructure:"mpd_addr"`    // ex: "localhost:6600"
	MPDPassword string `mapstructure:"mpd_password"`
	IdleWatch   bool   `mapstructure:"idle_watch"` // wake the loop on MPD player events

	// Reconciliation loop
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	BackendTimeout   time.Duration `mapstructure:"backend_timeout"` // bound on each MPD call
	BackoffInitial   time.Duration `mapstructure:"backoff_initial"`
	BackoffMax       time.Duration `mapstructure:"backoff_max"`
	BackoffJitter    float64       `mapstructure:"backoff_jitter"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	StopOnShutdown   bool          `mapstructure:"stop_on_shutdown"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	CommandTimeout   time.Duration `mapstructure:"command_timeout"`
	WatchConfig      bool          `mapstructure:"watch_config"` // fsnotify on the document directory

	// Play history
	HistoryRetention  time.Duration `mapstructure:"history_retention"`
	HistoryGCInterval time.Duration `mapstructure:"history_gc_interval"`

	// Redis status mirror (disabled when RedisAddr is empty)
	RedisAddr           string        `mapstructure:"redis_addr"`
	RedisUser           string        `mapstructure:"redis_username"`
	RedisPassword       string        `mapstructure:"redis_password"`
	RedisDB             int           `mapstructure:"redis_db"`
	RedisDT             time.Duration `mapstructure:"redis_dial_timeout"`
	RedisRT             time.Duration `mapstructure:"redis_read_timeout"`
	RedisWT             time.Duration `mapstructure:"redis_write_timeout"`
	RedisPoolSize       int           `mapstructure:"redis_pool_size"`
	RedisConnectTimeout time.Duration `mapstructure:"redis_connect_timeout"` // total time to retry connecting
	RedisRetryInterval  time.Duration `mapstructure:"redis_retry_interval"`  // grows exponentially
	RedisMaxWait        time.Duration `mapstructure:"redis_max_wait"`
	RedisPingTimeout    time.Duration `mapstructure:"redis_ping_timeout"`
	RedisWarnThreshold  int           `mapstructure:"redis_warn_threshold"`
	MirrorInterval      time.Duration `mapstructure:"mirror_interval"`
	MirrorTTL           time.Duration `mapstructure:"mirror_ttl"`
	MirrorHistoryLen    int           `mapstructure:"mirror_history_len"`
}

// New returns a viper instance reading RADIOSCHED_* variables, with every
// default registered.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("config_file", filepath.Join(xdg.ConfigHome, appName, "config.yaml"))
	v.SetDefault("state_file", filepath.Join(xdg.StateHome, appName, "state.db"))
	v.SetDefault("control_socket", filepath.Join(xdg.RuntimeDir, appName+".sock"))

	v.SetDefault("log_level", "info")
	v.SetDefault("pretty_log", true)
	v.SetDefault("log_file", "")

	v.SetDefault("mpd_network", "tcp")
	v.SetDefault("mpd_addr", "localhost:6600")
	v.SetDefault("mpd_password", "")
	v.SetDefault("idle_watch", true)

	v.SetDefault("tick_interval", 5*time.Second)
	v.SetDefault("backend_timeout", 3*time.Second)
	v.SetDefault("backoff_initial", 2*time.Second)
	v.SetDefault("backoff_max", 60*time.Second)
	v.SetDefault("backoff_jitter", 0.2)
	v.SetDefault("failure_threshold", 5)
	v.SetDefault("stop_on_shutdown", true)
	v.SetDefault("shutdown_timeout", 5*time.Second)
	v.SetDefault("command_timeout", 5*time.Second)
	v.SetDefault("watch_config", true)

	v.SetDefault("history_retention", 30*24*time.Hour)
	v.SetDefault("history_gc_interval", 24*time.Hour)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_username", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_dial_timeout", 5*time.Second)
	v.SetDefault("redis_read_timeout", 3*time.Second)
	v.SetDefault("redis_write_timeout", 3*time.Second)
	v.SetDefault("redis_pool_size", 4)
	v.SetDefault("redis_connect_timeout", 10*time.Second)
	v.SetDefault("redis_retry_interval", time.Second)
	v.SetDefault("redis_max_wait", 5*time.Second)
	v.SetDefault("redis_ping_timeout", 2*time.Second)
	v.SetDefault("redis_warn_threshold", 3)
	v.SetDefault("mirror_interval", 30*time.Second)
	v.SetDefault("mirror_ttl", 2*time.Minute)
	v.SetDefault("mirror_history_len", 100)
}

// BindFlags binds every flag of fs whose name matches a setting
// ("--mpd-addr" => mpd_addr).
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	known := make(map[string]bool)
	for _, k := range v.AllKeys() {
		known[k] = true
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !known[key] {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind --%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load decodes and validates the settings.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	require := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	require(c.ConfigFile != "", "config_file must be set")
	require(c.StateFile != "", "state_file must be set")
	require(c.ControlSocket != "", "control_socket must be set")
	require(logger.ValidLevel(c.LogLevel), "log_level must be debug, info, warn or error, got %q", c.LogLevel)

	require(c.MPDNetwork == "tcp" || c.MPDNetwork == "unix", "mpd_network must be tcp or unix, got %q", c.MPDNetwork)
	require(c.MPDAddr != "", "mpd_addr must be set")

	for name, d := range map[string]time.Duration{
		"tick_interval":    c.TickInterval,
		"backend_timeout":  c.BackendTimeout,
		"backoff_initial":  c.BackoffInitial,
		"backoff_max":      c.BackoffMax,
		"shutdown_timeout": c.ShutdownTimeout,
		"command_timeout":  c.CommandTimeout,
	} {
		require(d > 0, "%s must be > 0, got %v", name, d)
	}
	require(c.BackoffMax >= c.BackoffInitial, "backoff_max (%v) must be >= backoff_initial (%v)", c.BackoffMax, c.BackoffInitial)
	require(c.BackoffJitter >= 0 && c.BackoffJitter < 1, "backoff_jitter must be in [0, 1), got %v", c.BackoffJitter)
	require(c.FailureThreshold > 0, "failure_threshold must be > 0, got %d", c.FailureThreshold)
	require(c.HistoryRetention >= 0, "history_retention must be >= 0, got %v", c.HistoryRetention)

	if c.MirrorEnabled() {
		require(c.MirrorInterval > 0, "mirror_interval must be > 0, got %v", c.MirrorInterval)
		require(c.MirrorHistoryLen > 0, "mirror_history_len must be > 0, got %d", c.MirrorHistoryLen)
	}

	return errors.Join(errs...)
}

// MirrorEnabled reports whether a Redis status mirror is configured.
func (c *Config) MirrorEnabled() bool { return c.RedisAddr != "" }

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.MPDPassword != "" {
		c.MPDPassword = "***REDACTED***"
	}
	if c.RedisPassword != "" {
		c.RedisPassword = "***REDACTED***"
	}
	if c.RedisUser != "" {
		c.RedisUser = "***REDACTED***"
	}
	return c
}
