package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"oidcgate/internal/cache"
	"oidcgate/internal/config"
	"oidcgate/internal/store"
)

// HealthHandler reports the service's own liveness plus the reachability
// of its cache and user store. It never calls the identity provider: a
// provider outage should not flap this endpoint.
type HealthHandler struct {
	cfg       *config.Config
	cache     cache.Cache
	store     store.Store
	logger    *slog.Logger
	startTime time.Time
}

func NewHealthHandler(cfg *config.Config, c cache.Cache, s store.Store, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:       cfg,
		cache:     c,
		store:     s,
		logger:    logger,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status string          `json:"status"`
	Uptime string          `json:"uptime"`
	Cache  ComponentHealth `json:"cache"`
	Store  ComponentHealth `json:"store"`
}

type ComponentHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status: "healthy",
		Uptime: time.Since(h.startTime).String(),
	}

	resp.Cache.Type = h.cfg.Cache.Type
	if err := h.cache.Ping(ctx); err != nil {
		resp.Cache.Status = "unreachable"
		resp.Status = "degraded"
		h.logger.Warn("cache health check failed", "error", err)
	} else {
		resp.Cache.Status = "connected"
	}

	resp.Store.Type = h.cfg.Store.Type
	if h.store == nil {
		resp.Store.Status = "disabled"
	} else if err := h.store.Ping(ctx); err != nil {
		resp.Store.Status = "unreachable"
		resp.Status = "degraded"
		h.logger.Warn("store health check failed", "error", err)
	} else {
		resp.Store.Status = "connected"
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
