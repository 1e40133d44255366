package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/flagx"
	"github.com/dmitrijs2005/geopresence/internal/timex"
)

// JSONRedis mirrors Redis for the config file.
type JSONRedis struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       *int   `json:"db"`
	Key      string `json:"key"`
	Channel  string `json:"channel"`
}

// JSONConfig is the config file layout. Durations use timex.Duration, so
// "5m" and integer nanoseconds are both accepted. Absent fields keep their
// current value; pointer durations let a file set a zero explicitly.
type JSONConfig struct {
	ServerURL         string          `json:"server_url"`
	RequestTimeout    *timex.Duration `json:"request_timeout"`
	WarningWindow     *timex.Duration `json:"warning_window"`
	IdleTimeout       *timex.Duration `json:"idle_timeout"`
	IdleWarning       *timex.Duration `json:"idle_warning"`
	AutoRefreshBefore *timex.Duration `json:"auto_refresh_before"`
	ExpiryTolerance   *timex.Duration `json:"expiry_tolerance"`
	RefreshMode       string          `json:"refresh_mode"`
	DurableStore      string          `json:"durable_store"`
	SQLitePath        string          `json:"sqlite_path"`
	Redis             *JSONRedis      `json:"redis"`
	Sync              string          `json:"sync"`
	SyncDir           string          `json:"sync_dir"`
	CountdownInterval *timex.Duration `json:"countdown_interval"`
	LogLevel          string          `json:"log_level"`
	LogFormat         string          `json:"log_format"`
}

// parseJSON overlays cfg with the file given by -c or -config in args.
// Without either flag it does nothing.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	setString(&cfg.ServerURL, jc.ServerURL)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.WarningWindow, jc.WarningWindow)
	setDuration(&cfg.IdleTimeout, jc.IdleTimeout)
	setDuration(&cfg.IdleWarning, jc.IdleWarning)
	setDuration(&cfg.AutoRefreshBefore, jc.AutoRefreshBefore)
	setDuration(&cfg.ExpiryTolerance, jc.ExpiryTolerance)
	setString(&cfg.RefreshMode, jc.RefreshMode)
	setString(&cfg.DurableStore, jc.DurableStore)
	setString(&cfg.SQLitePath, jc.SQLitePath)
	if r := jc.Redis; r != nil {
		setString(&cfg.Redis.Addr, r.Addr)
		setString(&cfg.Redis.Password, r.Password)
		setString(&cfg.Redis.Key, r.Key)
		setString(&cfg.Redis.Channel, r.Channel)
		if r.DB != nil {
			cfg.Redis.DB = *r.DB
		}
	}
	setString(&cfg.Sync, jc.Sync)
	setString(&cfg.SyncDir, jc.SyncDir)
	setDuration(&cfg.CountdownInterval, jc.CountdownInterval)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
