package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sokol-alert/config"
	"sokol-alert/core/alert"
	"sokol-alert/core/store"
	"sokol-alert/core/utils"
)

// Server exposes the read-only operations API: health, recent
// incidents, full reports and Prometheus metrics. The bot itself does
// not depend on it; with no listen address set Run serves nothing and
// just waits for cancellation.
type Server struct {
	cfg    *config.AppConfig
	svc    *alert.Service
	db     *store.DB
	logger *utils.Logger
}

func NewServer(cfg *config.AppConfig, svc *alert.Service, db *store.DB, logger *utils.Logger) *Server {
	return &Server{cfg: cfg, svc: svc, db: db, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.MethodFunc(http.MethodGet, "/healthz", s.handleHealth)
	r.MethodFunc(http.MethodGet, "/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(s.requireToken)
		apiRouter.MethodFunc(http.MethodGet, "/incidents", s.handleListIncidents)
		apiRouter.MethodFunc(http.MethodGet, "/incidents/last/report", s.handleLastIncidentReport)
		apiRouter.MethodFunc(http.MethodGet, "/incidents/{id:[0-9]+}/report", s.handleIncidentReport)
		apiRouter.MethodFunc(http.MethodGet, "/incidents/{id:[0-9]+}/deliveries", s.handleIncidentDeliveries)
	})
	return r
}

// Run blocks until the context is cancelled or the listener fails.
// With an empty listen address there is no listener, but Run still
// blocks; returning early would look like a terminal failure to the
// runtime supervisor.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.ListenAddr == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("ops api listening on %s", s.cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.EffectiveListLimit()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	incidents, err := s.svc.ListRecentUnchecked(r.Context(), limit)
	if err != nil {
		s.logger.Errorf("list incidents: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if incidents == nil {
		incidents = []store.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"incidents": incidents})
}

func (s *Server) handleIncidentReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid incident id"})
		return
	}
	report, err := s.svc.CompileFullUnchecked(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "incident not found"})
			return
		}
		s.logger.Errorf("compile report for incident %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLastIncidentReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.CompileLastUnchecked(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no incidents yet"})
			return
		}
		s.logger.Errorf("compile last incident report: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleIncidentDeliveries(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid incident id"})
		return
	}
	deliveries, err := s.svc.ListDeliveriesUnchecked(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "incident not found"})
			return
		}
		s.logger.Errorf("list deliveries for incident %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if deliveries == nil {
		deliveries = []store.Delivery{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deliveries": deliveries})
}
