package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alim08/coingraph/pkg/logger"
	"github.com/alim08/coingraph/pkg/scheduler"
)

type healthChecker interface {
	Health(ctx context.Context) error
}

type stateReporter interface {
	State() scheduler.State
	States() map[string]scheduler.State
}

type healthResponse struct {
	Status    string            `json:"status"`
	Scheduler string            `json:"scheduler"`
	Tasks     map[string]string `json:"tasks"`
	Store     string            `json:"store"`
}

func newRouter(hc healthChecker, sr stateReporter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler(hc, sr))
	return r
}

// healthHandler reports 200 while the scheduler runs and the store answers.
func healthHandler(hc healthChecker, sr stateReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:    "ok",
			Scheduler: sr.State().String(),
			Tasks:     make(map[string]string),
			Store:     "ok",
		}
		for name, st := range sr.States() {
			resp.Tasks[name] = st.String()
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := hc.Health(ctx); err != nil {
			resp.Store = err.Error()
			resp.Status = "degraded"
		}
		if sr.State() != scheduler.StateRunning {
			resp.Status = "degraded"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Log.Error("failed to encode health response", zap.Error(err))
		}
	}
}

func startMetricsServer(port int, hc healthChecker, sr stateReporter) *http.Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      newRouter(hc, sr),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Log.Info("metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
