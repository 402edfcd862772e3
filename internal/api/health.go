package api

import (
	"context"
	"net/http"
	"time"

	"spacewh/mis/internal/common"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/models/dtos"
	"spacewh/mis/internal/models/entities"
	"spacewh/mis/internal/providers"
)

const healthProbeTimeout = 5 * time.Second

// RootHandler handles GET /
func RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		common.RespondJSON(w, dtos.MessageResp{Message: "SpaceWH Membership Initiation API is running."})
	}
}

// HealthCheckHandler handles GET /health by probing the record store.
func HealthCheckHandler(store providers.RecordStore, upSince time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		now := time.Now().UTC()
		uptime := now.Sub(upSince).Round(time.Second).String()

		if err := store.Ping(ctx); err != nil {
			logging.Error("Health check failed", "provider", store.GetProviderType(), "error", err)
			common.RespondJSON(w, entities.HealthCheckResponse{
				Status:    "unhealthy",
				Timestamp: now,
				Uptime:    uptime,
				Error:     err.Error(),
			}, http.StatusServiceUnavailable)
			return
		}

		common.RespondJSON(w, entities.HealthCheckResponse{
			Status:    "healthy",
			Timestamp: now,
			Database:  "connected",
			Uptime:    uptime,
		})
	}
}
