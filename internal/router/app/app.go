// Package app assembles the call router: store, repository, selection
// strategies, routing engine, media-server control, and the admin API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sebas/acd/internal/router/api"
	"github.com/sebas/acd/internal/router/ari"
	"github.com/sebas/acd/internal/router/config"
	"github.com/sebas/acd/internal/router/engine"
	"github.com/sebas/acd/internal/router/metrics"
	"github.com/sebas/acd/internal/router/repository"
	"github.com/sebas/acd/internal/router/selector"
	"github.com/sebas/acd/internal/router/store"
)

// Router is the assembled call-distribution service.
type Router struct {
	config    *config.Config
	store     store.Store
	repo      *repository.Repository
	engine    *engine.Engine
	ariClient *ari.HTTP
	events    *ari.EventSocket
	apiServer *api.Server
	metrics   *metrics.Metrics
}

// NewRouter builds the service from configuration. The store must be
// reachable; routing state is reconciled before any event is consumed.
func NewRouter(cfg *config.Config) (*Router, error) {
	st := store.NewRedis(store.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to reach store: %w", err)
	}

	repo := repository.New(st)

	// A previous instance may have crashed between related writes; the
	// agent records are authoritative for queue membership.
	if err := repo.ReconcileAll(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to reconcile routing state: %w", err)
	}

	m := metrics.New()

	ariCfg := ari.Config{
		Host:     cfg.ARIHost,
		Port:     cfg.ARIPort,
		Username: cfg.ARIUsername,
		Password: cfg.ARIPassword,
		AppName:  cfg.AppName,
	}
	ariClient := ari.NewHTTP(ariCfg)

	eng := engine.New(repo, ariClient, []selector.Strategy{
		selector.NewRoundRobin(repo),
	}, m, engine.Config{
		AppName:       cfg.AppName,
		AnswerTimeout: cfg.AnswerTimeout,
		WrapUp:        cfg.WrapUp,
	})

	events := ari.NewEventSocket(ariCfg, eng)
	apiServer := api.NewServer(cfg.APIAddr, repo, st, eng, m)

	return &Router{
		config:    cfg,
		store:     st,
		repo:      repo,
		engine:    eng,
		ariClient: ariClient,
		events:    events,
		apiServer: apiServer,
		metrics:   m,
	}, nil
}

// Start connects the event socket and serves the admin API. It blocks
// until the event socket fails or ctx is cancelled; a dead event socket
// is unrecoverable and returns an error.
func (r *Router) Start(ctx context.Context) error {
	if err := r.events.Connect(ctx); err != nil {
		return err
	}

	apiErr := make(chan error, 1)
	go func() {
		if err := r.apiServer.Start(); err != nil {
			apiErr <- err
		}
	}()

	slog.Info("Call router running",
		"app", r.config.AppName, "api", r.config.APIAddr,
		"active_calls", r.engine.ActiveCallCount())

	select {
	case err := <-r.events.Err():
		slog.Error("Event socket failed", "error", err)
		return err
	case err := <-apiErr:
		slog.Error("Admin API failed", "error", err)
		return err
	case <-ctx.Done():
		return nil
	}
}

// Close shuts the service down.
func (r *Router) Close() error {
	if r.events != nil {
		if err := r.events.Close(); err != nil {
			slog.Warn("Event socket close", "error", err)
		}
	}
	if r.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.apiServer.Shutdown(ctx); err != nil {
			slog.Warn("Admin API shutdown", "error", err)
		}
	}
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}
