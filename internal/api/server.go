// SPDX-License-Identifier: Apache-2.0

// Package api exposes the clusterman HTTP interface: health and metrics
// endpoints plus a small v1 API for inspecting and overriding pool
// capacity.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clusterman/clusterman/internal/audit"
	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/connector"
	"github.com/clusterman/clusterman/internal/health"
	"github.com/clusterman/clusterman/internal/log"
	"github.com/clusterman/clusterman/internal/markets"
	"github.com/clusterman/clusterman/internal/pool"
	"github.com/clusterman/clusterman/internal/store"
)

// PoolManager is the slice of the pool manager the API needs.
type PoolManager interface {
	TargetCapacity() float64
	FulfilledCapacity() float64
	GroupStatuses() []pool.GroupStatus
	Connector() connector.ClusterConnector
	ModifyTargetCapacity(ctx context.Context, desired float64, dryRun, force bool) (float64, error)
	MarkGroupStale(ctx context.Context, groupID string) error
}

// ConfigReloader triggers a pool configuration reload; satisfied by
// *config.Holder.
type ConfigReloader interface {
	Reload(ctx context.Context) error
}

// StateStore answers historical price and capacity queries; satisfied by
// *store.Store.
type StateStore interface {
	LatestPrice(ctx context.Context, market markets.InstanceMarket) (store.PriceRecord, error)
	PricesSince(ctx context.Context, market markets.InstanceMarket, since time.Time) ([]store.PriceRecord, error)
	LatestCapacity(ctx context.Context, cluster, pool string) (store.CapacityRecord, error)
	CapacitiesSince(ctx context.Context, cluster, pool string, since time.Time) ([]store.CapacityRecord, error)
}

// Server serves the clusterman HTTP API for one pool.
type Server struct {
	cfg     config.Config
	manager PoolManager
	holder  ConfigReloader
	store   StateStore
	health  *health.Manager
	auditor *audit.Logger
	logger  zerolog.Logger
}

// NewServer wires the API server. The store may be nil when persistence is
// disabled; the price and history endpoints then return 404.
func NewServer(cfg config.Config, manager PoolManager, holder ConfigReloader, st StateStore, hm *health.Manager, auditor *audit.Logger) *Server {
	return &Server{
		cfg:     cfg,
		manager: manager,
		holder:  holder,
		store:   st,
		health:  hm,
		auditor: auditor,
		logger:  log.WithPool("api", cfg.Cluster, cfg.Pool),
	}
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/prices", s.handlePrices)
		r.Get("/capacity/history", s.handleCapacityHistory)

		// Mutations are rate limited: a runaway client must not be able to
		// thrash target capacity.
		r.Group(func(r chi.Router) {
			r.Use(s.mutationLimiter())
			r.Post("/capacity", s.handleSetCapacity)
			r.Post("/groups/{id}/stale", s.handleMarkGroupStale)
			r.Post("/reload", s.handleReload)
		})
	})

	return otelhttp.NewHandler(r, "clusterman-api")
}

// ListenAndServe runs the API server until the context is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.APIListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("event", "api.listen").
			Str("addr", s.cfg.APIListenAddr).
			Msg("api server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) mutationLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.auditor.RateLimitExceeded(r.RemoteAddr, r.URL.Path)
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		}),
	)
}
