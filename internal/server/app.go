// Package server initializes and runs the bridge server: it opens the
// database, applies migrations, wires services, and starts the HTTP endpoint
// with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/smsbridge/internal/logging"
	"github.com/dmitrijs2005/smsbridge/internal/server/authn"
	"github.com/dmitrijs2005/smsbridge/internal/server/config"
	"github.com/dmitrijs2005/smsbridge/internal/server/fingerprint"
	"github.com/dmitrijs2005/smsbridge/internal/server/httpapi"
	"github.com/dmitrijs2005/smsbridge/internal/server/metrics"
	"github.com/dmitrijs2005/smsbridge/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/smsbridge/internal/server/services"
	"github.com/dmitrijs2005/smsbridge/internal/server/telegram"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	mtr := metrics.NewProm("smsbridge")

	userService := services.NewUserService(db, rm, logger)

	notifier := telegram.NewClient(cfg.TelegramAPIBaseURL, cfg.BotToken, cfg.ChatID, cfg.TelegramTimeout, logger)
	fp := fingerprint.New(cfg.DedupWindowSeconds)
	smsService := services.NewSMSService(db, rm, fp, notifier, telegram.Format(cfg.TelegramFormat), mtr, logger)

	authService := authn.NewService(authn.Policy{
		AuthRequired:        cfg.AuthRequired,
		AllowSecretFallback: cfg.AllowSecretFallback,
		AllowLegacySecret:   cfg.AllowLegacySecret,
		HMACWindowSeconds:   cfg.HMACWindowSeconds,
		Secret:              cfg.Secret,
	}, rm.APITokens(db), logger)

	srv := httpapi.NewServer(cfg, logger, userService, smsService, authService, mtr)

	return &App{config: cfg, logger: logger, db: db, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
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

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
