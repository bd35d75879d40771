// Command unisqld serves the configured databases over HTTP.
//
//	unisqld -config /etc/unisql/unisqld.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/koustreak/unisql/internal/config"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/filestore"
	"github.com/koustreak/unisql/internal/filestore/memory"
	"github.com/koustreak/unisql/internal/filestore/minio"
	"github.com/koustreak/unisql/internal/logger"
	"github.com/koustreak/unisql/internal/server"
	"github.com/koustreak/unisql/internal/transfer"
	"golang.org/x/sync/errgroup"

	// Backends register themselves with database.Open.
	_ "github.com/koustreak/unisql/internal/database/mysql"
	_ "github.com/koustreak/unisql/internal/database/postgres"
	_ "github.com/koustreak/unisql/internal/database/sqlite"
	_ "github.com/koustreak/unisql/internal/odbc"
)

func main() {
	path := flag.String("config", "unisqld.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unisqld:", err)
		os.Exit(2)
	}

	log := logger.New(cfg.Log)
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.With().Err(err).Logger().Fatal("unisqld stopped")
	}
	log.Info("unisqld stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	conns, err := openConnections(ctx, cfg, log)
	defer func() {
		for name, c := range conns {
			if err := c.Connector.Close(); err != nil {
				log.With().Str("connection", name).Err(err).Logger().Warn("close failed")
			}
		}
	}()
	if err != nil {
		return err
	}

	var xfer *transfer.Service
	if cfg.FileStore != nil {
		store, err := openStore(ctx, cfg.FileStore, log)
		if err != nil {
			return err
		}
		defer store.Close()
		xfer = transfer.New(store, cfg.FileStore.Bucket, cfg.FileStore.PresignTTL, log)
	}

	return server.New(cfg.Server, conns, xfer, log).Run(ctx)
}

// openConnections opens every configured connection concurrently. On error
// the connections that did open are still returned so the caller can close
// them.
func openConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (map[string]server.Connection, error) {
	var (
		mu    sync.Mutex
		conns = make(map[string]server.Connection, len(cfg.Connections))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range cfg.ConnectionNames() {
		dbcfg := cfg.Connections[name]
		g.Go(func() error {
			clog := log.With().Str("connection", name).Str("backend", string(dbcfg.Backend)).Logger()
			c, err := database.Open(gctx, dbcfg, clog)
			if err != nil {
				return errs.Wrap(errs.KindOf(err), "connection "+name, err)
			}
			mu.Lock()
			conns[name] = server.Connection{Connector: c, QueryTimeout: dbcfg.QueryTimeout}
			mu.Unlock()
			clog.Info("connection ready")
			return nil
		})
	}
	return conns, g.Wait()
}

func openStore(ctx context.Context, cfg *filestore.Config, log *logger.Logger) (filestore.Store, error) {
	switch cfg.Provider {
	case filestore.ProviderMemory:
		log.Warn("using in-memory file store; exported objects do not survive a restart")
		return memory.New(), nil
	case filestore.ProviderMinIO:
		d, err := minio.New(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown file store provider %q", cfg.Provider)
}
