package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"linkwatch/app/internal/models"
)

type healthSource interface {
	Status() models.HealthStatus
}

type inventorySource interface {
	Meta() models.InventoryMeta
}

type journalSource interface {
	Len() int
}

type healthResponse struct {
	Status    string               `json:"status"`
	Database  databaseHealth       `json:"database"`
	Inventory models.InventoryMeta `json:"inventory"`
	Events    int                  `json:"events"`
}

type databaseHealth struct {
	models.HealthStatus
	NextRetryMs int64 `json:"next_retry_ms"`
}

func newMux(h healthSource, inv inventorySource, journal journalSource) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz(h, inv, journal))
	mux.Handle("GET /metrics", promhttp.Handler())
	return secureHeaders(mux)
}

// secureHeaders adds the response headers every endpoint carries
func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// handleHealthz always answers 200. A database outage is reported as
// degraded, and "starting" covers the time before the first probe.
func handleHealthz(h healthSource, inv inventorySource, journal journalSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := h.Status()
		resp := healthResponse{
			Status:    "ok",
			Database:  databaseHealth{HealthStatus: st, NextRetryMs: st.NextRetryDelay.Milliseconds()},
			Inventory: inv.Meta(),
			Events:    journal.Len(),
		}
		switch {
		case !st.Checked:
			resp.Status = "starting"
		case !st.Healthy:
			resp.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Debug().Err(err).Msg("Failed to write health response")
		}
	}
}
