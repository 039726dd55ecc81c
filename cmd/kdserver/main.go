// Command kdserver serves k-d tree queries over SQLite-backed datasets.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/viant/sqlite-kd/catalog"
	"github.com/viant/sqlite-kd/changelog"
	"github.com/viant/sqlite-kd/engine"
	"github.com/viant/sqlite-kd/internal/cache"
	"github.com/viant/sqlite-kd/internal/config"
	"github.com/viant/sqlite-kd/internal/logger"
	"github.com/viant/sqlite-kd/kd"
	"github.com/viant/sqlite-kd/service"
	"github.com/viant/sqlite-kd/store"
	"github.com/viant/sqlite-kd/store/badgerstore"
)

func main() {
	cfg := config.Load()
	l := logger.Setup()
	l.Debug("config_loaded", "db", cfg.DBPath, "listen", cfg.Listen, "api_base", cfg.APIBase,
		"table", cfg.Table, "index", cfg.IndexKind, "snapshots", cfg.Snapshots)

	db, err := engine.OpenFile(cfg.DBPath)
	if err != nil {
		l.Error("db_open_error", "path", cfg.DBPath, "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := kd.Register(db); err != nil {
		l.Error("sql_functions_error", "err", err)
		os.Exit(1)
	}
	if err := db.Ping(); err != nil {
		l.Error("db_ping_error", "err", err)
		os.Exit(1)
	}
	l.Info("db_open_ok", "path", cfg.DBPath)

	if err := kd.InstallTriggers(context.Background(), db, cfg.Table); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	st, err := store.NewSQLiteStore(db, store.WithTable(cfg.Table))
	if err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}

	kind, err := catalog.ParseKind(cfg.IndexKind)
	if err != nil {
		l.Error("config_index_error", "err", err)
		os.Exit(1)
	}
	var badgerSnaps *badgerstore.Snapshots
	opts := []catalog.Option{catalog.WithName(cfg.Table), catalog.WithKind(kind), catalog.WithLogger(l)}
	switch cfg.Snapshots {
	case config.SnapshotsSQLite:
		snaps, err := store.NewSQLiteSnapshots(db, cfg.Table)
		if err != nil {
			l.Error("snapshot_schema_error", "err", err)
			os.Exit(1)
		}
		opts = append(opts, catalog.WithSnapshots(snaps))
	case config.SnapshotsBadger:
		bs, err := badgerstore.Open(badgerstore.Options{Dir: cfg.BadgerDir})
		if err != nil {
			l.Error("badger_open_error", "dir", cfg.BadgerDir, "err", err)
			os.Exit(1)
		}
		defer bs.Close()
		badgerSnaps = bs.Snapshots(cfg.Table)
		opts = append(opts, catalog.WithSnapshots(badgerSnaps))
		l.Info("badger_open_ok", "dir", cfg.BadgerDir)
	default:
		l.Info("snapshots_disabled")
	}
	cat, err := catalog.New(st, opts...)
	if err != nil {
		l.Error("catalog_error", "err", err)
		os.Exit(1)
	}
	defer cat.Close()
	if badgerSnaps != nil {
		// SQL writes only clear kd_storage; badger snapshots go here
		cat.OnInvalidate(func(datasets []string) {
			for _, ds := range datasets {
				if err := badgerSnaps.DeleteSnapshot(context.Background(), ds); err != nil {
					l.Warn("snapshot_delete_error", "dataset", ds, "err", err)
				}
			}
		})
	}

	var sopts []service.Option
	sopts = append(sopts, service.WithLogger(l))
	if cfg.RedisEnabled() {
		rc := cache.Open(cfg.RedisAddr(), cfg.RedisPass, cfg.RedisDB, cfg.CacheTTL)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rc.Ping(ctx); err != nil {
			l.Error("redis_ping_error", "addr", cfg.RedisAddr(), "err", err)
		} else {
			l.Info("redis_ping_ok", "addr", cfg.RedisAddr())
			sopts = append(sopts, service.WithCache(rc))
		}
		cancel()
		defer rc.Close()
	} else {
		l.Info("redis_disabled")
	}
	if cfg.Changelog {
		if err := changelog.Install(context.Background(), db, cfg.Table); err != nil {
			l.Error("changelog_install_error", "err", err)
			os.Exit(1)
		}
		sopts = append(sopts, service.WithChangelog(db, cfg.Table))
		l.Info("changelog_enabled", "table", cfg.Table)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           service.New(cat, sopts...).Handler(cfg.APIBase),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	l.Info("listening", "addr", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("listen_error", "err", err)
	}
	l.Info("shutdown")
}
