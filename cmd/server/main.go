package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"microblog/internal/auth"
	"microblog/internal/config"
	"microblog/internal/domain"
	"microblog/internal/httpserver"
	"microblog/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := sqlite.Migrate(context.Background(), db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database ready", "path", cfg.DatabasePath)

	repo := sqlite.NewRepository(db)

	// The cache is owned here and handed to the service explicitly, not
	// reached through a package-level singleton.
	cache := domain.NewPageCache(cfg.CacheTTL)

	service, err := domain.NewService(repo, repo, repo, repo, repo, cache, cfg.PageSize, logger)
	if err != nil {
		return fmt.Errorf("create feed service: %w", err)
	}

	sessions := auth.NewManager(db, cfg.SessionMaxAge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	server := httpserver.NewServer(cfg, service, repo, sessions, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
			cancel()
		}
	}()

	logger.Info("server started",
		"port", cfg.Port,
		"page_size", cfg.PageSize,
		"cache_ttl", cfg.CacheTTL,
	)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
