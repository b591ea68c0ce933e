package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/panoround/internal/config"
	"github.com/playperu/panoround/internal/database"
	"github.com/playperu/panoround/internal/engine"
	"github.com/playperu/panoround/internal/server"
	"github.com/playperu/panoround/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- Store ---
	clock := store.NewClock(nil)
	var rooms store.Store
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := database.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("connecting to sqlite: %w", err)
		}
		defer db.Close()

		rooms, err = store.NewSQLite(ctx, db, clock)
		if err != nil {
			return fmt.Errorf("initialising room store: %w", err)
		}
		logger.Info("connected to sqlite", "path", cfg.DBPath)
	default:
		rooms = store.NewMemory(clock)
		logger.Info("using in-memory room store")
	}

	hooks := store.NewHooks(rooms, logger)
	svc := engine.NewService(rooms, hooks, cfg.Engine(), logger, engine.WithTokenCost(cfg.TokenCost))

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, svc, map[string]server.Checker{
		"store": server.CheckerFunc(rooms.Ping),
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error { return svc.RunSweeper(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}
