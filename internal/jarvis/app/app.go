// Package app wires the Jarvis components together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bdobrica/jarvis/internal/jarvis/api"
	"github.com/bdobrica/jarvis/internal/jarvis/config"
	"github.com/bdobrica/jarvis/internal/jarvis/dialogue"
	"github.com/bdobrica/jarvis/internal/jarvis/dispatch"
	"github.com/bdobrica/jarvis/internal/jarvis/gateway"
	"github.com/bdobrica/jarvis/internal/jarvis/matrix"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

// App holds the long-lived components.
type App struct {
	config     *config.Config
	store      *store.Store
	gateway    *gateway.Gateway
	dispatcher *dispatch.Dispatcher
	api        *api.Server
	matrix     *matrix.Bot
}

// New opens the database and builds every component. Nothing listens until
// Run is called.
func New(cfg *config.Config) (*App, error) {
	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	gw := gateway.New(cfg.Gateway())
	if !gw.Enabled() {
		slog.Warn("inference API key not set; chat fallthrough and translation are disabled")
	}

	d, err := dispatch.New(dispatch.Config{
		Tasks:     db,
		Completer: gw,
		Slots:     dialogue.NewStore(dialogue.Options{TTL: cfg.Dialogue.SlotTTL}),
		Limiter:   gateway.NewRateLimiter(cfg.Chat.RateLimit, 0),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	srv, err := api.New(api.Config{Tasks: db, Auth: db, Dispatcher: d, Translator: gw})
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{config: cfg, store: db, gateway: gw, dispatcher: d, api: srv}

	if cfg.Matrix.Enabled() {
		bot, err := matrix.New(matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Rooms:       cfg.Matrix.Rooms,
			DB:          db.DB(),
		}, db, d)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.matrix = bot
	}

	return a, nil
}

// Store returns the opened database.
func (a *App) Store() *store.Store { return a.store }

// Dispatcher returns the chat dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Gateway returns the inference gateway.
func (a *App) Gateway() *gateway.Gateway { return a.gateway }

// Run starts the HTTP server and, when configured, the Matrix bot, then
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.api.Start(ctx, a.config.HTTPAddr); err != nil {
		return err
	}

	if a.matrix != nil {
		slog.Info("starting Matrix sync")
		if err := a.matrix.Start(ctx); err != nil {
			return fmt.Errorf("start matrix bot: %w", err)
		}
	}

	slog.Info("Jarvis is running", "addr", a.config.HTTPAddr, "matrix", a.matrix != nil)
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// Stop releases everything New acquired.
func (a *App) Stop() {
	if a.matrix != nil {
		slog.Info("stopping Matrix bot")
		a.matrix.Stop()
	}
	a.api.Stop()

	slog.Info("closing database")
	if err := a.store.Close(); err != nil {
		slog.Warn("close database", "err", err)
	}
}
