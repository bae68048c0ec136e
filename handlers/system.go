// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/beaconhill/compliance-tracker/cliparse"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/middleware"
	"github.com/beaconhill/compliance-tracker/models"
)

type SystemHandler struct {
	db  *db.DB
	cfg cliparse.Config
	now func() time.Time
}

func NewSystemHandler(d *db.DB, cfg cliparse.Config) *SystemHandler {
	return &SystemHandler{db: d, cfg: cfg, now: time.Now}
}

type dbInfoResponse struct {
	Status            string     `json:"status"`
	Message           string     `json:"message,omitempty"`
	DatabaseType      string     `json:"database_type,omitempty"`
	DatabaseURLPrefix string     `json:"database_url_prefix,omitempty"`
	Counts            *db.Counts `json:"counts,omitempty"`
	Timestamp         string     `json:"timestamp"`
}

// Health handles GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.JSONResponse(w, http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Message:   "Beacon Hill Compliance Tracker API is running",
		Timestamp: db.FormatTime(h.now()),
	})
}

// DBInfo handles GET /debug/db-info. Only the URL scheme is reported.
func (h *SystemHandler) DBInfo(w http.ResponseWriter, r *http.Request) {
	ts := db.FormatTime(h.now())
	counts, err := db.TableCounts(r.Context(), h.db)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to count rows", "error", err)
		middleware.JSONResponse(w, http.StatusInternalServerError, dbInfoResponse{
			Status:    "error",
			Message:   err.Error(),
			Timestamp: ts,
		})
		return
	}

	prefix := "unknown"
	if scheme, _, ok := strings.Cut(h.cfg.Database.URL, "://"); ok {
		prefix = scheme
	}
	middleware.JSONResponse(w, http.StatusOK, dbInfoResponse{
		Status:            "success",
		DatabaseType:      string(h.db.Dialect()),
		DatabaseURLPrefix: prefix,
		Counts:            &counts,
		Timestamp:         ts,
	})
}
