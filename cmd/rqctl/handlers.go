// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hemant/rqueue"
	"github.com/hemant/rqueue/internal/base"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"
)

const defaultPendingLimit = 100

var errInvalidLimit = errors.New("limit must be a non-negative integer")

// handler serves the read-only inspection API.
type handler struct {
	inspector *rqueue.Inspector
	logger    rqueue.Logger
}

func newRouter(h *handler, registry *prometheus.Registry, timeout time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", h.handleHealth)
	r.Get("/api/queues/{name}", h.handleQueue)
	r.Get("/api/queues/{name}/pending", h.handlePending)
	r.Get("/api/pools/{name}", h.handlePool)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return r
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.inspector.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "ok"})
}

func (h *handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	info, err := h.inspector.QueueInfo(r.Context(), name)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, info)
}

func (h *handler) handlePending(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	limit := defaultPendingLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = n
	}
	items, err := h.inspector.PendingItems(r.Context(), name)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	h.writeJSON(w, map[string]interface{}{"queue": name, "items": items})
}

func (h *handler) handlePool(w http.ResponseWriter, r *http.Request) {
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	info, err := h.inspector.PoolInfo(r.Context(), name)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, info)
}

func (h *handler) nameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if err := base.ValidateName(name); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return name, true
}

func (h *handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response: ", err)
	}
}

func (h *handler) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		h.logger.Error(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
