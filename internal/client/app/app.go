// Package app wires the geopresence client together from a Config: HTTP
// client, token store backends, cross-tab channel, session manager and CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/geopresence/internal/client/cli"
	"github.com/dmitrijs2005/geopresence/internal/client/client"
	"github.com/dmitrijs2005/geopresence/internal/client/config"
	"github.com/dmitrijs2005/geopresence/internal/client/crosstab"
	"github.com/dmitrijs2005/geopresence/internal/client/repositories/kv"
	"github.com/dmitrijs2005/geopresence/internal/client/services"
	"github.com/dmitrijs2005/geopresence/internal/client/session"
	"github.com/dmitrijs2005/geopresence/internal/client/tokenstore"
	"github.com/dmitrijs2005/geopresence/internal/logging"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const eventBuffer = 32

// Runtime is a fully wired client.
type Runtime struct {
	Manager *session.Manager
	Origin  string

	cli     *cli.App
	syncer  *crosstab.Synchronizer
	log     logging.Logger
	closers []func() error
}

// New builds the client described by cfg. Commands are read from in and
// output goes to out; logs go to logOut.
func New(ctx context.Context, cfg *config.Config, in io.Reader, out, logOut io.Writer) (*Runtime, error) {
	log, err := logging.New(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return build(ctx, cfg, clockwork.NewRealClock(), in, out, log)
}

func build(ctx context.Context, cfg *config.Config, clock clockwork.Clock, in io.Reader, out io.Writer, log logging.Logger) (_ *Runtime, err error) {
	rt := &Runtime{Origin: uuid.NewString(), log: log}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	opts, err := cfg.SessionOptions()
	if err != nil {
		return nil, err
	}
	api, err := client.NewHTTPClient(cfg.ServerURL, cfg.RequestTimeout, log.With("component", "http"))
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.DurableStore == config.StoreRedis || cfg.Sync == config.SyncRedis {
		if rdb, err = kv.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, rdb.Close)
	}

	durable, err := rt.durable(ctx, cfg, rdb)
	if err != nil {
		return nil, err
	}

	notifier, err := rt.notifier(cfg, rdb, clock, log)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, notifier.Close)

	store := tokenstore.New(durable, kv.NewMemoryRepository(),
		tokenstore.WithNotifier(notifier, rt.Origin),
		tokenstore.WithClock(clock),
		tokenstore.WithLogger(log.With("component", "tokenstore")),
	)

	rt.Manager = session.NewManager(api, store, clock, log.With("component", "session"), opts)
	rt.syncer = crosstab.NewSynchronizer(notifier, rt.Origin, rt.Manager, log.With("component", "crosstab"))

	events, _ := rt.Manager.Subscribe(eventBuffer)
	rt.cli = cli.NewApp(
		services.NewAuthService(rt.Manager),
		services.NewAttendanceService(rt.Manager),
		events, clock, cfg.CountdownInterval, in, out, log,
	)
	return rt, nil
}

func (rt *Runtime) durable(ctx context.Context, cfg *config.Config, rdb *redis.Client) (kv.Repository, error) {
	switch cfg.DurableStore {
	case config.StoreSQLite:
		db, err := kv.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		return kv.NewSQLiteRepository(db), nil
	case config.StoreRedis:
		return kv.NewRedisRepository(rdb, cfg.Redis.Key), nil
	case config.StoreMemory:
		return kv.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown durable store %q", cfg.DurableStore)
	}
}

func (rt *Runtime) notifier(cfg *config.Config, rdb *redis.Client, clock clockwork.Clock, log logging.Logger) (crosstab.Notifier, error) {
	switch cfg.Sync {
	case config.SyncRedis:
		return crosstab.NewRedisNotifier(rdb, cfg.Redis.Channel, log), nil
	case config.SyncFile:
		return crosstab.NewFileNotifier(cfg.SyncDir, crosstab.DefaultRetention, clock, log)
	case config.SyncNone:
		return crosstab.NewHub(), nil
	default:
		return nil, fmt.Errorf("unknown sync channel %q", cfg.Sync)
	}
}

// Run starts listening to other clients, restores the stored session and
// runs the REPL until the user exits. A failing cross-tab channel is logged
// and the client runs on without it.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := rt.syncer.Start(ctx); err != nil {
		rt.log.Warn(ctx, "cross-tab sync unavailable", "error", err)
	}
	if err := rt.Manager.Bootstrap(ctx); err != nil {
		return err
	}
	rt.cli.Run(ctx)
	return nil
}

// Close stops timers and releases stores and channels. The stored session
// is kept.
func (rt *Runtime) Close() error {
	if rt.Manager != nil {
		rt.Manager.Close()
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
