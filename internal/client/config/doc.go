// Package config loads runtime configuration for the geopresence client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. GEOPRESENCE_* environment variables, read with cleanenv.
//  4. Command-line flags, which override everything else.
//
// # JSON schema
//
// Durations accept Go duration strings or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:5000",
//	  "warning_window": "5m",
//	  "idle_timeout": "10m",
//	  "refresh_mode": "auto",
//	  "durable_store": "sqlite",
//	  "sqlite_path": "geopresence.db",
//	  "redis": {"addr": "127.0.0.1:6379", "key": "geopresence:session"},
//	  "sync": "file",
//	  "sync_dir": ".geopresence-signals"
//	}
//
// An idle_timeout of 0 disables idle logout.
package config
