// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/beaconhill/compliance-tracker/cache"
	"github.com/beaconhill/compliance-tracker/compliance"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/metrics"
	"github.com/beaconhill/compliance-tracker/middleware"
)

// IngestHandler accepts signed pushes from the scanners. Routes must be
// wrapped in Authenticator.RequireIngestSignature.
type IngestHandler struct {
	db    *db.DB
	stats *cache.StatsCache
	now   func() time.Time
}

func NewIngestHandler(d *db.DB, stats *cache.StatsCache) *IngestHandler {
	return &IngestHandler{db: d, stats: stats, now: time.Now}
}

type ingestResponse struct {
	Status              string `json:"status"`
	Message             string `json:"message"`
	ImportedCount       *int   `json:"imported_count,omitempty"`
	AuthenticatedUserID int64  `json:"authenticated_user_id"`
}

type changelogResponse struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	Version          string `json:"version"`
	VersionsImported int    `json:"versions_imported"`
	EntriesImported  int    `json:"entries_imported"`
}

// readObject reads a non-empty JSON object body. It writes the 400 itself
// and returns ok=false when the body is missing or not an object.
func readObject(w http.ResponseWriter, r *http.Request, notObject string) (map[string]json.RawMessage, []byte, bool) {
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		middleware.StatusError(w, http.StatusBadRequest, "Failed to read request body")
		return nil, nil, false
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		middleware.StatusError(w, http.StatusBadRequest, "No JSON data provided")
		return nil, nil, false
	}
	if trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			middleware.StatusError(w, http.StatusBadRequest, "Invalid JSON")
			return nil, nil, false
		}
		middleware.StatusError(w, http.StatusBadRequest, notObject)
		return nil, nil, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		middleware.StatusError(w, http.StatusBadRequest, "Invalid JSON")
		return nil, nil, false
	}
	if len(obj) == 0 {
		middleware.StatusError(w, http.StatusBadRequest, "No JSON data provided")
		return nil, nil, false
	}
	return obj, trimmed, true
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func signerID(r *http.Request) int64 {
	key, _ := middleware.SigningKeyFromContext(r.Context())
	return key.UserID
}

// Cache handles POST /ingest/cache
func (h *IngestHandler) Cache(w http.ResponseWriter, r *http.Request) {
	_, body, ok := readObject(w, r, "Expected JSON object with cache data")
	if !ok {
		return
	}

	var data compliance.CacheData
	if err := json.Unmarshal(body, &data); err != nil {
		middleware.StatusError(w, http.StatusBadRequest, "Invalid cache data: "+err.Error())
		return
	}

	err := compliance.ImportCache(r.Context(), h.db, data, h.now())
	metrics.RecordIngest("cache", len(data.CommitteeContacts)+len(data.BillParsers), err)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to import cache data", "error", err)
		middleware.StatusError(w, http.StatusInternalServerError, "Database error")
		return
	}
	h.stats.Invalidate()

	slog.InfoContext(r.Context(), "cache data imported",
		"committees", len(data.CommitteeContacts),
		"bills", len(data.BillParsers),
		"user_id", signerID(r),
	)
	middleware.JSONResponse(w, http.StatusOK, ingestResponse{
		Status:              "success",
		Message:             "Successfully imported cache data",
		AuthenticatedUserID: signerID(r),
	})
}

// Basic handles POST /ingest/basic. The committee comes from the body or
// the committee_id query parameter; bills from "bills" or "items".
func (h *IngestHandler) Basic(w http.ResponseWriter, r *http.Request) {
	obj, _, ok := readObject(w, r, "Expected JSON object with committee_id and items")
	if !ok {
		return
	}

	var report compliance.Report
	if raw, ok := obj["committee_id"]; ok {
		// a non-string committee_id falls through to the query parameter
		_ = json.Unmarshal(raw, &report.CommitteeID)
	}
	if report.CommitteeID == "" {
		report.CommitteeID = r.URL.Query().Get("committee_id")
	}
	if report.CommitteeID == "" {
		middleware.StatusError(w, http.StatusBadRequest, "committee_id is required")
		return
	}

	var items json.RawMessage
	switch {
	case isArray(obj["bills"]):
		items = obj["bills"]
		if raw, ok := obj["diff_report"]; ok {
			if err := json.Unmarshal(raw, &report.DiffReport); err != nil {
				middleware.StatusError(w, http.StatusBadRequest, "Invalid diff_report")
				return
			}
		}
		if raw, ok := obj["analysis"]; ok {
			report.Analysis = analysisText(raw)
		}
	case isArray(obj["items"]):
		items = obj["items"]
	default:
		middleware.StatusError(w, http.StatusBadRequest, "Expected 'items' or 'bills' to be an array")
		return
	}
	if err := json.Unmarshal(items, &report.Items); err != nil {
		middleware.StatusError(w, http.StatusBadRequest, "Invalid bill data: "+err.Error())
		return
	}

	n, err := compliance.ImportReport(r.Context(), h.db, report, h.now())
	metrics.RecordIngest("basic", n, err)
	if errors.Is(err, compliance.ErrInvalidInput) {
		middleware.StatusError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to import compliance report", "error", err, "committee_id", report.CommitteeID)
		middleware.StatusError(w, http.StatusInternalServerError, "Database error")
		return
	}
	h.stats.Invalidate()

	slog.InfoContext(r.Context(), "compliance report imported",
		"committee_id", report.CommitteeID,
		"bills", n,
		"diff_report", report.DiffReport != nil,
		"user_id", signerID(r),
	)
	middleware.JSONResponse(w, http.StatusOK, ingestResponse{
		Status:              "success",
		Message:             fmt.Sprintf("Successfully imported %d bills for committee %s", n, report.CommitteeID),
		ImportedCount:       &n,
		AuthenticatedUserID: signerID(r),
	})
}

// analysisText keeps a string analysis as is and stores anything else as
// its JSON text.
func analysisText(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	s = string(raw)
	return &s
}

// Changelog handles POST /ingest/changelog
func (h *IngestHandler) Changelog(w http.ResponseWriter, r *http.Request) {
	obj, body, ok := readObject(w, r, "Expected JSON object with changelog data")
	if !ok {
		return
	}
	if raw, ok := obj["changelog"]; ok && !isArray(raw) && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		middleware.StatusError(w, http.StatusBadRequest, "Expected 'changelog' to be an array")
		return
	}

	var p compliance.ChangelogPayload
	if err := json.Unmarshal(body, &p); err != nil {
		middleware.StatusError(w, http.StatusBadRequest, "Invalid changelog data: "+err.Error())
		return
	}
	if p.CurrentVersion == "" {
		middleware.StatusError(w, http.StatusBadRequest, "current_version is required")
		return
	}

	res, err := compliance.ImportChangelog(r.Context(), h.db, p, h.now())
	metrics.RecordIngest("changelog", res.Entries, err)
	if errors.Is(err, compliance.ErrInvalidInput) {
		middleware.StatusError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to import changelog", "error", err, "version", p.CurrentVersion)
		middleware.StatusError(w, http.StatusInternalServerError, "Failed to import changelog")
		return
	}

	slog.InfoContext(r.Context(), "changelog imported",
		"version", p.CurrentVersion,
		"versions", res.Versions,
		"entries", res.Entries,
		"user_id", signerID(r),
	)
	middleware.JSONResponse(w, http.StatusOK, changelogResponse{
		Status:           "success",
		Message:          "Changelog received successfully",
		Version:          p.CurrentVersion,
		VersionsImported: res.Versions,
		EntriesImported:  res.Entries,
	})
}
