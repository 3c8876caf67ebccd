package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/uxtrace/uxtrace/app"
	"go.uber.org/zap"
)

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// ReadinessCheck validates that storage is reachable before reporting ready
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		status := "ready"
		httpStatus := http.StatusOK

		if deps.DB == nil {
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			checks["database"] = "not_initialized"
		} else if err := deps.DB.HealthCheck(ctx); err != nil {
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			checks["database"] = "unhealthy"
			deps.Logger.Error("database health check failed", zap.Error(err))
		} else {
			checks["database"] = "healthy"
		}

		respondJSON(w, httpStatus, map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	}
}
