package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/session"
	"github.com/dmitrijs2005/geopresence/internal/logging"
)

// Durable store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Cross-tab channels.
const (
	SyncRedis = "redis"
	SyncFile  = "file"
	SyncNone  = "none"
)

// Redis holds the connection used by the redis store and sync channel.
type Redis struct {
	Addr     string `env:"GEOPRESENCE_REDIS_ADDR"`
	Password string `env:"GEOPRESENCE_REDIS_PASSWORD"`
	DB       int    `env:"GEOPRESENCE_REDIS_DB"`
	Key      string `env:"GEOPRESENCE_REDIS_KEY"`
	Channel  string `env:"GEOPRESENCE_REDIS_CHANNEL"`
}

// Config holds runtime settings for the geopresence client.
type Config struct {
	ServerURL      string        `env:"GEOPRESENCE_SERVER_URL"`
	RequestTimeout time.Duration `env:"GEOPRESENCE_REQUEST_TIMEOUT"`

	WarningWindow     time.Duration `env:"GEOPRESENCE_WARNING_WINDOW"`
	IdleTimeout       time.Duration `env:"GEOPRESENCE_IDLE_TIMEOUT"`
	IdleWarning       time.Duration `env:"GEOPRESENCE_IDLE_WARNING"`
	AutoRefreshBefore time.Duration `env:"GEOPRESENCE_AUTO_REFRESH_BEFORE"`
	ExpiryTolerance   time.Duration `env:"GEOPRESENCE_EXPIRY_TOLERANCE"`
	RefreshMode       string        `env:"GEOPRESENCE_REFRESH_MODE"`

	DurableStore string `env:"GEOPRESENCE_DURABLE_STORE"`
	SQLitePath   string `env:"GEOPRESENCE_SQLITE_PATH"`
	Redis        Redis
	Sync         string `env:"GEOPRESENCE_SYNC"`
	SyncDir      string `env:"GEOPRESENCE_SYNC_DIR"`

	CountdownInterval time.Duration `env:"GEOPRESENCE_COUNTDOWN_INTERVAL"`
	LogLevel          string        `env:"GEOPRESENCE_LOG_LEVEL"`
	LogFormat         string        `env:"GEOPRESENCE_LOG_FORMAT"`
}

// LoadDefaults populates c with the defaults of the attendance frontend.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:5000"
	c.RequestTimeout = session.DefaultRequestTimeout

	c.WarningWindow = session.DefaultWarningWindow
	c.IdleTimeout = session.DefaultIdleTimeout
	c.IdleWarning = session.DefaultIdleWarning
	c.AutoRefreshBefore = 0
	c.ExpiryTolerance = session.DefaultExpiryTolerance
	c.RefreshMode = string(session.RefreshAuto)

	c.DurableStore = StoreSQLite
	c.SQLitePath = "geopresence.db"
	c.Redis = Redis{
		Addr:    "127.0.0.1:6379",
		Key:     "geopresence:session",
		Channel: "geopresence:signals",
	}
	c.Sync = SyncFile
	c.SyncDir = ".geopresence-signals"

	c.CountdownInterval = 30 * time.Second
	c.LogLevel = "warn"
	c.LogFormat = logging.FormatText
}

// LoadConfig builds a Config from defaults, then the JSON file named by
// -c/-config, then GEOPRESENCE_* environment variables, then flags. Later
// sources take precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	args := os.Args[1:]
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("config: server url is required")
	}
	if _, err := session.ParseRefreshMode(c.RefreshMode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.DurableStore {
	case StoreSQLite, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("config: unknown durable store %q", c.DurableStore)
	}
	switch c.Sync {
	case SyncRedis, SyncFile, SyncNone:
	default:
		return fmt.Errorf("config: unknown sync channel %q", c.Sync)
	}
	switch c.LogFormat {
	case logging.FormatText, logging.FormatJSON, logging.FormatZap:
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	if c.IdleTimeout > 0 && c.IdleWarning >= c.IdleTimeout {
		return fmt.Errorf("config: idle warning %s must be shorter than idle timeout %s", c.IdleWarning, c.IdleTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive")
	}
	return nil
}

// SessionOptions converts the lifecycle settings for session.NewManager.
func (c *Config) SessionOptions() (session.Options, error) {
	mode, err := session.ParseRefreshMode(c.RefreshMode)
	if err != nil {
		return session.Options{}, err
	}
	return session.Options{
		WarningWindow:     c.WarningWindow,
		IdleTimeout:       c.IdleTimeout,
		IdleWarning:       c.IdleWarning,
		AutoRefreshBefore: c.AutoRefreshBefore,
		ExpiryTolerance:   c.ExpiryTolerance,
		RefreshMode:       mode,
		RequestTimeout:    c.RequestTimeout,
	}, nil
}
