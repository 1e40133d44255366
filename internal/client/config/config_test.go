package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/session"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *Config {
	c := &Config{}
	c.LoadDefaults()
	return c
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c := defaults()

	assert.Equal(t, "http://127.0.0.1:5000", c.ServerURL)
	assert.Equal(t, 5*time.Minute, c.WarningWindow)
	assert.Equal(t, 10*time.Minute, c.IdleTimeout)
	assert.Equal(t, "auto", c.RefreshMode)
	assert.Equal(t, StoreSQLite, c.DurableStore)
	assert.Equal(t, SyncFile, c.Sync)
	assert.NoError(t, c.Validate())
}

func TestParseJSON(t *testing.T) {
	t.Run("overlays present fields", func(t *testing.T) {
		path := writeFile(t, `{
			"server_url": "https://attendance.example",
			"warning_window": "2m",
			"idle_timeout": 0,
			"redis": {"addr": "cache:6379", "db": 3},
			"log_format": "zap"
		}`)

		cfg := defaults()
		require.NoError(t, parseJSON(cfg, []string{"-config", path}))

		want := defaults()
		want.ServerURL = "https://attendance.example"
		want.WarningWindow = 2 * time.Minute
		want.IdleTimeout = 0
		want.Redis.Addr = "cache:6379"
		want.Redis.DB = 3
		want.LogFormat = "zap"
		assert.Empty(t, cmp.Diff(want, cfg))
	})

	t.Run("no flag leaves config alone", func(t *testing.T) {
		cfg := defaults()
		require.NoError(t, parseJSON(cfg, []string{"-a", "http://x"}))
		assert.Empty(t, cmp.Diff(defaults(), cfg))
	})

	t.Run("invalid json", func(t *testing.T) {
		path := writeFile(t, `{ not json`)
		assert.Error(t, parseJSON(defaults(), []string{"-c", path}))
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, parseJSON(defaults(), []string{"-c", filepath.Join(t.TempDir(), "nope.json")}))
	})
}

func TestParseEnv(t *testing.T) {
	t.Setenv("GEOPRESENCE_SERVER_URL", "http://env:5000")
	t.Setenv("GEOPRESENCE_IDLE_TIMEOUT", "20m")
	t.Setenv("GEOPRESENCE_REDIS_DB", "2")
	t.Setenv("GEOPRESENCE_SYNC", "redis")

	cfg := defaults()
	require.NoError(t, parseEnv(cfg))

	want := defaults()
	want.ServerURL = "http://env:5000"
	want.IdleTimeout = 20 * time.Minute
	want.Redis.DB = 2
	want.Sync = SyncRedis
	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestParseEnv_Invalid(t *testing.T) {
	t.Setenv("GEOPRESENCE_WARNING_WINDOW", "soon")
	assert.Error(t, parseEnv(defaults()))
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    func(*Config)
		wantErr bool
	}{
		{
			name: "short and long forms",
			args: []string{"-a", "http://flag:1", "--idle=0s", "-w", "90s", "-refresh-mode", "bearer"},
			want: func(c *Config) {
				c.ServerURL = "http://flag:1"
				c.IdleTimeout = 0
				c.WarningWindow = 90 * time.Second
				c.RefreshMode = "bearer"
			},
		},
		{
			name: "foreign flags are ignored",
			args: []string{"-c", "cfg.json", "-remember", "-store", "memory"},
			want: func(c *Config) { c.DurableStore = StoreMemory },
		},
		{
			name:    "bad duration",
			args:    []string{"-w", "abc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			err := parseFlags(cfg, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			want := defaults()
			tt.want(want)
			assert.Empty(t, cmp.Diff(want, cfg))
		})
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeFile(t, `{"server_url": "http://json", "warning_window": "1m", "sync": "none", "log_level": "debug"}`)
	t.Setenv("GEOPRESENCE_WARNING_WINDOW", "2m")
	t.Setenv("GEOPRESENCE_SYNC", "redis")

	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"geopresence", "-c", path, "-sync", "file"}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://json", cfg.ServerURL)
	assert.Equal(t, 2*time.Minute, cfg.WarningWindow)
	assert.Equal(t, SyncFile, cfg.Sync)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"geopresence", "-store", "postgres"}

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "durable store")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty server", func(c *Config) { c.ServerURL = "" }, "server url"},
		{"refresh mode", func(c *Config) { c.RefreshMode = "header" }, "refresh mode"},
		{"sync", func(c *Config) { c.Sync = "broadcast" }, "sync channel"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
		{"idle warning", func(c *Config) { c.IdleWarning = c.IdleTimeout }, "idle warning"},
		{"timeout", func(c *Config) { c.RequestTimeout = 0 }, "request timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaults()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.errMsg)
		})
	}

	c := defaults()
	c.IdleTimeout, c.IdleWarning = 0, time.Hour
	assert.NoError(t, c.Validate(), "idle warning is irrelevant when idle logout is off")
}

func TestSessionOptions(t *testing.T) {
	c := defaults()
	c.RefreshMode = "Cookie"
	c.AutoRefreshBefore = time.Minute

	opts, err := c.SessionOptions()
	require.NoError(t, err)

	want := session.DefaultOptions()
	want.RefreshMode = session.RefreshCookie
	want.AutoRefreshBefore = time.Minute
	assert.Equal(t, want, opts)
}
