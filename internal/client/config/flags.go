package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/geopresence/internal/flagx"
)

// parseFlags overlays cfg with the command-line flags in args. Flags owned
// by other components are filtered out with flagx.FilterArgs first.
//
//	-a string              backend base URL
//	-t duration            request timeout
//	-w duration            session warning window
//	-idle duration         idle timeout, 0 disables idle logout
//	-idle-warning duration idle warning lead time
//	-auto-refresh duration proactive refresh lead time, 0 disables it
//	-tolerance duration    expiry sync tolerance
//	-refresh-mode string   auto, cookie or bearer
//	-store string          durable store: sqlite, redis or memory
//	-sqlite string         sqlite file path
//	-redis string          redis address
//	-sync string           cross-tab channel: redis, file or none
//	-sync-dir string       directory of the file channel
//	-countdown duration    countdown print interval, 0 disables it
//	-log-level string      debug, info, warn or error
//	-log-format string     text, json or zap
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("geopresence", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "backend base URL")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "request timeout")
	fs.DurationVar(&cfg.WarningWindow, "w", cfg.WarningWindow, "session warning window")
	fs.DurationVar(&cfg.IdleTimeout, "idle", cfg.IdleTimeout, "idle timeout")
	fs.DurationVar(&cfg.IdleWarning, "idle-warning", cfg.IdleWarning, "idle warning lead time")
	fs.DurationVar(&cfg.AutoRefreshBefore, "auto-refresh", cfg.AutoRefreshBefore, "proactive refresh lead time")
	fs.DurationVar(&cfg.ExpiryTolerance, "tolerance", cfg.ExpiryTolerance, "expiry sync tolerance")
	fs.StringVar(&cfg.RefreshMode, "refresh-mode", cfg.RefreshMode, "refresh mode")
	fs.StringVar(&cfg.DurableStore, "store", cfg.DurableStore, "durable store backend")
	fs.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "sqlite file path")
	fs.StringVar(&cfg.Redis.Addr, "redis", cfg.Redis.Addr, "redis address")
	fs.StringVar(&cfg.Sync, "sync", cfg.Sync, "cross-tab channel")
	fs.StringVar(&cfg.SyncDir, "sync-dir", cfg.SyncDir, "file channel directory")
	fs.DurationVar(&cfg.CountdownInterval, "countdown", cfg.CountdownInterval, "countdown print interval")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format")

	var allowed []string
	fs.VisitAll(func(f *flag.Flag) {
		allowed = append(allowed, "-"+f.Name, "--"+f.Name)
	})

	if err := fs.Parse(flagx.FilterArgs(args, allowed)); err != nil {
		return fmt.Errorf("config: flags: %w", err)
	}
	return nil
}
