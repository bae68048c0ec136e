// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/beaconhill/compliance-tracker/cache"
	"github.com/beaconhill/compliance-tracker/cliparse"
	"github.com/beaconhill/compliance-tracker/compliance"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/middleware"
	"github.com/beaconhill/compliance-tracker/models"
)

const (
	defaultChangelogLimit = 10
	maxChangelogLimit     = 100
)

// DashboardHandler serves the public read-only API behind the dashboard.
type DashboardHandler struct {
	db    *db.DB
	stats *cache.StatsCache
}

func NewDashboardHandler(d *db.DB, stats *cache.StatsCache) *DashboardHandler {
	return &DashboardHandler{db: d, stats: stats}
}

// GetStats handles GET /api/stats
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, source, err := h.stats.Get(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to compute global stats", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to load statistics")
		return
	}
	w.Header().Set("X-Cache", string(source))
	middleware.JSONResponse(w, http.StatusOK, stats)
}

// ListCommittees handles GET /api/committees
func (h *DashboardHandler) ListCommittees(w http.ResponseWriter, r *http.Request) {
	committees, err := compliance.ListCommittees(r.Context(), h.db)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list committees", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to load committees")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, committees)
}

// CommitteeStats handles GET /api/committees/stats
func (h *DashboardHandler) CommitteeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := compliance.CommitteeStats(r.Context(), h.db)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to compute committee stats", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to load committee statistics")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, stats)
}

// GetCommittee handles GET /api/committees/{id}
func (h *DashboardHandler) GetCommittee(w http.ResponseWriter, r *http.Request) {
	c, err := compliance.GetCommittee(r.Context(), h.db, r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		middleware.ErrorMessage(w, http.StatusNotFound, "Committee not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load committee", "error", err, "committee_id", r.PathValue("id"))
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to load committee")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, c)
}

// ListBills handles GET /api/bills. The singular parameters (committee_id,
// chamber, state) win over their comma-separated plural forms.
func (h *DashboardHandler) ListBills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := compliance.BillFilter{
		CommitteeIDs: singleOrList(q, "committee_id", "committees"),
		Chambers:     singleOrList(q, "chamber", "chambers"),
		States:       singleOrList(q, "state", "states"),
		Search:       strings.TrimSpace(q.Get("search")),
	}

	bills, err := compliance.ListBills(r.Context(), h.db, filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list bills", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to load bills")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, bills)
}

func singleOrList(q url.Values, single, list string) []string {
	if v := strings.TrimSpace(q.Get(single)); v != "" {
		return []string{v}
	}
	return cliparse.SplitCSV(q.Get(list))
}

// CommitteeMetadata handles GET /api/compliance/{id}/metadata
func (h *DashboardHandler) CommitteeMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := compliance.CommitteeMetadata(r.Context(), h.db, r.PathValue("id"))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load scan metadata", "error", err, "committee_id", r.PathValue("id"))
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to load scan metadata")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, md)
}

// GlobalMetadata handles GET /api/compliance/metadata?interval=
func (h *DashboardHandler) GlobalMetadata(w http.ResponseWriter, r *http.Request) {
	interval := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("interval")))
	if interval == "" {
		interval = compliance.IntervalDaily
	}
	if !compliance.ValidInterval(interval) {
		middleware.ErrorMessage(w, http.StatusBadRequest, "interval must be one of daily, weekly, monthly")
		return
	}

	md, err := compliance.GlobalMetadata(r.Context(), h.db, interval)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to aggregate scan metadata", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to load scan metadata")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, md)
}

// Changelog handles GET /api/changelog?limit=&version=
func (h *DashboardHandler) Changelog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 {
		limit = defaultChangelogLimit
	}
	limit = min(limit, maxChangelogLimit)

	versions, err := compliance.ListChangelog(r.Context(), h.db, limit, strings.TrimSpace(q.Get("version")))
	if errors.Is(err, db.ErrNotFound) {
		middleware.ErrorMessage(w, http.StatusNotFound, "Version not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load changelog", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to load changelog")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ChangelogResponse{
		Status:    "success",
		Count:     len(versions),
		Changelog: versions,
	})
}
