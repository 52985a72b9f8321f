// Package scanapi exposes the scan and dashboard HTTP API.
package scanapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/thirukguru/perimeter-api/service/crypto"
	"github.com/thirukguru/perimeter-api/service/dashboard"
	"github.com/thirukguru/perimeter-api/service/jobs"
	"github.com/thirukguru/perimeter-api/service/scanner"
	"github.com/thirukguru/perimeter-api/service/scanstore"
)

// Router holds the services the HTTP handlers dispatch to.
type Router struct {
	store     scanstore.Service
	dashboard dashboard.Service
	crypto    crypto.Service
	scanner   scanner.Service
	jobs      jobs.Service
	logger    *zap.Logger
}

// NewRouter wires every route and returns the ready handler.
func NewRouter(store scanstore.Service, dash dashboard.Service, cryptoSvc crypto.Service, scanSvc scanner.Service, jobsSvc jobs.Service, logger *zap.Logger) http.Handler {
	r := &Router{
		store:     store,
		dashboard: dash,
		crypto:    cryptoSvc,
		scanner:   scanSvc,
		jobs:      jobsSvc,
		logger:    logger,
	}

	mux := chi.NewRouter()
	mux.Use(requestLogger(logger))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", tenantHeader},
		MaxAge:         300,
	}))

	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Group(func(authed chi.Router) {
		authed.Use(requireTenant)

		authed.Route("/api/scan", func(rt chi.Router) {
			rt.Post("/aws-cloud-scan", r.wrap(r.handleStartScan))
			rt.Get("/scan-status/{scanID}", r.wrap(r.handleScanStatus))
			rt.Get("/scans/{scanID}", r.wrap(r.handleGetScan))
			rt.Post("/scans", r.wrap(r.handleCreateScan))
			rt.Get("/scans", r.wrap(r.handleListScans))
			rt.Post("/service-scan-result", r.wrap(r.handleSaveServiceResult))
			rt.Get("/service-scan-result/{scanID}/{serviceName}", r.wrap(r.handleGetServiceResult))
		})
		authed.Post("/api/dashboard/metrics", r.wrap(r.handleDashboardMetrics))
		authed.Get("/api/regions", r.wrap(r.handleListRegions))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// apiError carries a response status alongside the message.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func badRequest(message string) error {
	return &apiError{status: http.StatusBadRequest, message: message}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var apiErr *apiError
		switch {
		case errors.As(err, &apiErr):
			writeJSON(w, apiErr.status, map[string]string{"error": apiErr.message})
		case errors.Is(err, scanstore.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		case errors.Is(err, crypto.ErrDecryption):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "credentials could not be decrypted"})
		case errors.Is(err, jobs.ErrQueueFull):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scan queue is full, retry later"})
		default:
			r.logger.Error("request failed",
				zap.String("path", req.URL.Path), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
