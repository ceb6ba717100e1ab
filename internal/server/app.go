// Package server initializes and runs the reference sync server: loads
// config, opens the database, runs migrations, wires the auth/sync
// services, and serves the httpapi router — the HTTP counterpart to the
// teacher's gRPC-based app.go (SPEC_FULL.md §14).
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/eidolon-labs/notesync/internal/logging"
	"github.com/eidolon-labs/notesync/internal/server/config"
	"github.com/eidolon-labs/notesync/internal/server/httpapi"
	"github.com/eidolon-labs/notesync/internal/server/repositories/repomanager"
	"github.com/eidolon-labs/notesync/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	authService := services.NewAuthService(db, rm, cfg)
	syncService := services.NewSyncService(db, rm)

	httpServer := httpapi.NewServer(logger, authService, syncService, []byte(cfg.SecretKey))

	return &App{config: cfg, logger: logger, db: db, server: httpServer}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "addr", app.config.EndpointAddrHTTP)

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.server,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, "server stopped", "err", err)
	}

	_ = app.db.Close()
}
