package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/propstatus/internal/model"
	"github.com/sells-group/propstatus/internal/resilience"
	"github.com/sells-group/propstatus/internal/resolver"
	"github.com/sells-group/propstatus/internal/store"
)

const (
	maxRequestBodySize = 1 << 20
	maxBatchItems      = 500
	principalHeader    = "X-Principal"
)

// statusService is what the HTTP surface needs from the resolver.
type statusService interface {
	Resolve(ctx context.Context, principal, address string) model.Resolution
	ResolveBatch(ctx context.Context, principal string, items []model.BatchItem, limit int) map[string]model.BatchEntry
	CurrentModel() string
	ListAvailableModels(ctx context.Context) []string
	Breakers() map[string]resilience.BreakerSnapshot
	OpenCandidates() []string
}

type serverDeps struct {
	svc     statusService
	store   store.Store
	origins []string
	// batchLimit caps the concurrency a batch request may ask for.
	batchLimit int
}

func buildRouter(d serverDeps) http.Handler {
	origins := d.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", principalHeader},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth(d.store))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/status", handleResolve(d.svc))
		r.Post("/status/batch", handleBatch(d.svc, d.batchLimit))
		r.Get("/properties/{id}/status", handlePropertyStatus(d.svc, d.store))
		r.Get("/tenants/{tenant}/statuses", handleTenantStatuses(d.svc, d.store))
		r.Get("/models", handleModels(d.svc))
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("http: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func principal(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(principalHeader))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func handleHealth(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		if st != nil {
			if err := st.Ping(r.Context()); err != nil {
				body["status"] = "degraded"
				body["store"] = "unavailable"
				writeJSON(w, http.StatusServiceUnavailable, body)
				return
			}
			body["store"] = "ok"
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func handleResolve(svc statusService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Address string `json:"address"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Address) == "" {
			writeError(w, http.StatusBadRequest, "address is required")
			return
		}
		writeJSON(w, http.StatusOK, svc.Resolve(r.Context(), principal(r), req.Address))
	}
}

type batchResponse struct {
	Results map[string]model.BatchEntry `json:"results"`
}

func handleBatch(svc statusService, limit int) http.HandlerFunc {
	if limit <= 0 {
		limit = resolver.DefaultBatchConcurrency
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Items       []model.BatchItem `json:"items"`
			Concurrency int               `json:"concurrency"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Items) == 0 {
			writeError(w, http.StatusBadRequest, "items is required")
			return
		}
		if len(req.Items) > maxBatchItems {
			writeError(w, http.StatusBadRequest, "too many items (max "+strconv.Itoa(maxBatchItems)+")")
			return
		}
		seen := make(map[string]bool, len(req.Items))
		for _, it := range req.Items {
			if it.ID == "" {
				writeError(w, http.StatusBadRequest, "every item needs an id")
				return
			}
			if seen[it.ID] {
				writeError(w, http.StatusBadRequest, "duplicate item id "+it.ID)
				return
			}
			seen[it.ID] = true
		}

		results := svc.ResolveBatch(r.Context(), principal(r), req.Items, min(req.Concurrency, limit))
		writeJSON(w, http.StatusOK, batchResponse{Results: results})
	}
}

func handlePropertyStatus(svc statusService, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "property store not configured")
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid property id")
			return
		}

		address, err := st.GetAddress(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "property not found")
			return
		}
		if err != nil {
			zap.L().Error("http: get address", zap.Int64("id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "property lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, svc.Resolve(r.Context(), principal(r), address))
	}
}

type tenantStatus struct {
	ID      int64               `json:"id"`
	Address string              `json:"address"`
	Stored  model.ListingStatus `json:"stored_status"`
	model.BatchEntry
}

func handleTenantStatuses(svc statusService, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "property store not configured")
			return
		}
		tenant := chi.URLParam(r, "tenant")
		props, err := st.ListByTenant(r.Context(), tenant)
		if err != nil {
			zap.L().Error("http: list properties", zap.String("tenant", tenant), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "property lookup failed")
			return
		}

		who := principal(r)
		if who == "" {
			who = tenant
		}
		entries := svc.ResolveBatch(r.Context(), who, propertyItems(props), 0)

		out := make([]tenantStatus, 0, len(props))
		for _, p := range props {
			out = append(out, tenantStatus{
				ID:         p.ID,
				Address:    p.Address,
				Stored:     p.Status,
				BatchEntry: entries[strconv.FormatInt(p.ID, 10)],
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenant": tenant, "properties": out})
	}
}

type circuitStatus struct {
	State    string `json:"state"`
	Failures int    `json:"consecutive_failures"`
}

func handleModels(svc statusService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		circuits := make(map[string]circuitStatus)
		for name, snap := range svc.Breakers() {
			circuits[name] = circuitStatus{State: snap.State.String(), Failures: snap.Failures}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"current":       svc.CurrentModel(),
			"candidates":    svc.ListAvailableModels(r.Context()),
			"circuits":      circuits,
			"open_circuits": svc.OpenCandidates(),
		})
	}
}
