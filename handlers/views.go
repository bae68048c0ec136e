// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/middleware"
	"github.com/beaconhill/compliance-tracker/models"
)

// MaxViewNameLength is the longest saved view name accepted.
const MaxViewNameLength = 255

var errDuplicateViewName = errors.New("A view with this name already exists")

type ViewHandler struct {
	db  *db.DB
	now func() time.Time
}

func NewViewHandler(d *db.DB) *ViewHandler {
	return &ViewHandler{db: d, now: time.Now}
}

type viewResponse struct {
	Message string `json:"message,omitempty"`
	View    any    `json:"view"`
}

type viewListResponse struct {
	Views []models.SavedView `json:"views"`
	Count int                `json:"count"`
	Query string             `json:"query,omitempty"`
}

const viewColumns = `id, user_id, name, payload_json, created_at, updated_at`

func scanView(row interface{ Scan(...any) error }) (models.SavedView, error) {
	var v models.SavedView
	err := row.Scan(&v.ID, &v.UserID, &v.Name, &v.PayloadJSON, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// decodeFields reads a JSON object body keeping each member raw, so callers
// can tell an absent member from a null one.
func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	err := middleware.ParseJSONBody(r, &fields)
	if err != nil && !errors.Is(err, middleware.ErrEmptyBody) {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Invalid JSON")
		return nil, false
	}
	if len(fields) == 0 {
		middleware.ErrorMessage(w, http.StatusBadRequest, "No JSON data provided")
		return nil, false
	}
	return fields, true
}

// stringField returns the trimmed string member key. Absent and null both
// read as "".
func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return strings.TrimSpace(s), nil
}

// emptyPayload reports whether a payload carries nothing worth saving:
// null, false, zero, "", [] or {}.
func emptyPayload(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch p := v.(type) {
	case nil:
		return true
	case bool:
		return !p
	case float64:
		return p == 0
	case string:
		return p == ""
	case []any:
		return len(p) == 0
	case map[string]any:
		return len(p) == 0
	}
	return false
}

// compactPayload validates raw and returns it re-encoded without
// insignificant whitespace.
func compactPayload(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func viewID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *ViewHandler) loadView(ctx context.Context, userID, id int64) (models.SavedView, error) {
	v, err := scanView(h.db.QueryRowContext(ctx, `
		SELECT `+viewColumns+`
		FROM saved_views
		WHERE id = ? AND user_id = ?
	`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SavedView{}, db.ErrNotFound
	}
	return v, err
}

// nameTaken reports whether userID already has a view called name other
// than exclude.
func nameTaken(ctx context.Context, q db.Querier, userID int64, name string, exclude int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM saved_views WHERE user_id = ? AND name = ? AND id <> ?
	`, userID, name, exclude).Scan(&n)
	return n > 0, err
}

// insertView stores a new view unless the name is taken.
func (h *ViewHandler) insertView(ctx context.Context, userID int64, name, payload string) (models.SavedView, error) {
	ts := db.FormatTime(h.now())
	v := models.SavedView{UserID: userID, Name: name, PayloadJSON: payload, CreatedAt: ts, UpdatedAt: ts}
	err := h.db.WithTx(ctx, func(tx *db.Tx) error {
		taken, err := nameTaken(ctx, tx, userID, name, 0)
		if err != nil {
			return err
		}
		if taken {
			return errDuplicateViewName
		}
		v.ID, err = db.InsertID(ctx, tx, `
			INSERT INTO saved_views (user_id, name, payload_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, userID, name, payload, ts, ts)
		return err
	})
	return v, err
}

func validViewName(w http.ResponseWriter, name, emptyMsg string) bool {
	if name == "" {
		middleware.ErrorMessage(w, http.StatusBadRequest, emptyMsg)
		return false
	}
	if utf8.RuneCountInString(name) > MaxViewNameLength {
		middleware.ErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("View name too long (max %d characters)", MaxViewNameLength))
		return false
	}
	return true
}

func (h *ViewHandler) listViews(w http.ResponseWriter, r *http.Request, query string) {
	user, _ := middleware.UserFromContext(r.Context())

	sqlText := `SELECT ` + viewColumns + ` FROM saved_views WHERE user_id = ?`
	args := []any{user.ID}
	if query != "" {
		sqlText += ` AND LOWER(name) LIKE ? ESCAPE '\'`
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(query))+"%")
	}
	sqlText += ` ORDER BY updated_at DESC, id DESC`

	rows, err := h.db.QueryContext(r.Context(), sqlText, args...)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to query saved views", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to retrieve saved views")
		return
	}
	defer rows.Close()

	views := []models.SavedView{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to scan saved view", "error", err)
			middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to retrieve saved views")
			return
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		slog.ErrorContext(r.Context(), "failed to read saved views", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to retrieve saved views")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, viewListResponse{Views: views, Count: len(views), Query: query})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List handles GET /api/views
func (h *ViewHandler) List(w http.ResponseWriter, r *http.Request) {
	h.listViews(w, r, "")
}

// Search handles GET /api/views/search?q=
func (h *ViewHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		middleware.ErrorMessage(w, http.StatusBadRequest, `Search query parameter "q" is required`)
		return
	}
	h.listViews(w, r, q)
}

// Create handles POST /api/views
func (h *ViewHandler) Create(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	name, err := stringField(fields, "name")
	if err != nil {
		middleware.ErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validViewName(w, name, "View name is required") {
		return
	}
	if emptyPayload(fields["payload"]) {
		middleware.ErrorMessage(w, http.StatusBadRequest, "View payload is required")
		return
	}
	payload, err := compactPayload(fields["payload"])
	if err != nil {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Invalid payload format: "+err.Error())
		return
	}

	user, _ := middleware.UserFromContext(r.Context())
	v, err := h.insertView(r.Context(), user.ID, name, payload)
	if errors.Is(err, errDuplicateViewName) {
		middleware.ErrorMessage(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create saved view", "error", err, "user_id", user.ID)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to create saved view")
		return
	}

	slog.InfoContext(r.Context(), "saved view created", "view_id", v.ID, "user_id", user.ID)
	middleware.JSONResponse(w, http.StatusCreated, viewResponse{Message: "Saved view created successfully", View: v})
}

// Get handles GET /api/views/{id}. The response also carries the decoded
// payload; a payload that no longer parses is returned as {}.
func (h *ViewHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	id, ok := viewID(r)
	if !ok {
		middleware.ErrorMessage(w, http.StatusNotFound, "Saved view not found")
		return
	}

	v, err := h.loadView(r.Context(), user.ID, id)
	if errors.Is(err, db.ErrNotFound) {
		middleware.ErrorMessage(w, http.StatusNotFound, "Saved view not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load saved view", "error", err, "view_id", id)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to retrieve saved view")
		return
	}

	detail := models.SavedViewDetail{SavedView: v}
	if err := json.Unmarshal([]byte(v.PayloadJSON), &detail.Payload); err != nil {
		detail.Payload = map[string]any{}
	}
	middleware.JSONResponse(w, http.StatusOK, viewResponse{View: detail})
}

// Update handles PUT /api/views/{id}. Only the members present in the body
// are changed.
func (h *ViewHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := middleware.UserFromContext(ctx)
	id, ok := viewID(r)
	if !ok {
		middleware.ErrorMessage(w, http.StatusNotFound, "Saved view not found")
		return
	}

	v, err := h.loadView(ctx, user.ID, id)
	if errors.Is(err, db.ErrNotFound) {
		middleware.ErrorMessage(w, http.StatusNotFound, "Saved view not found")
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to load saved view", "error", err, "view_id", id)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to update saved view")
		return
	}

	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	if _, present := fields["name"]; present {
		name, err := stringField(fields, "name")
		if err != nil {
			middleware.ErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		if !validViewName(w, name, "View name cannot be empty") {
			return
		}
		v.Name = name
	}
	if raw, present := fields["payload"]; present {
		if emptyPayload(raw) {
			middleware.ErrorMessage(w, http.StatusBadRequest, "View payload cannot be empty")
			return
		}
		payload, err := compactPayload(raw)
		if err != nil {
			middleware.ErrorMessage(w, http.StatusBadRequest, "Invalid payload format: "+err.Error())
			return
		}
		v.PayloadJSON = payload
	}
	v.UpdatedAt = db.FormatTime(h.now())

	err = h.db.WithTx(ctx, func(tx *db.Tx) error {
		taken, err := nameTaken(ctx, tx, user.ID, v.Name, v.ID)
		if err != nil {
			return err
		}
		if taken {
			return errDuplicateViewName
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE saved_views SET name = ?, payload_json = ?, updated_at = ?
			WHERE id = ? AND user_id = ?
		`, v.Name, v.PayloadJSON, v.UpdatedAt, v.ID, user.ID)
		return err
	})
	if errors.Is(err, errDuplicateViewName) {
		middleware.ErrorMessage(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to update saved view", "error", err, "view_id", id)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to update saved view")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, viewResponse{Message: "Saved view updated successfully", View: v})
}

// Delete handles DELETE /api/views/{id}
func (h *ViewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := middleware.UserFromContext(ctx)
	id, ok := viewID(r)
	if !ok {
		middleware.ErrorMessage(w, http.StatusNotFound, "Saved view not found")
		return
	}

	v, err := h.loadView(ctx, user.ID, id)
	if errors.Is(err, db.ErrNotFound) {
		middleware.ErrorMessage(w, http.StatusNotFound, "Saved view not found")
		return
	}
	if err == nil {
		_, err = h.db.ExecContext(ctx, `DELETE FROM saved_views WHERE id = ? AND user_id = ?`, id, user.ID)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete saved view", "error", err, "view_id", id)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to delete saved view")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Saved view %q deleted successfully", v.Name),
	})
}

// Duplicate handles POST /api/views/duplicate/{id}. Without a name the copy
// is called "{name} (Copy)".
func (h *ViewHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := middleware.UserFromContext(ctx)
	id, ok := viewID(r)
	if !ok {
		middleware.ErrorMessage(w, http.StatusNotFound, "Source view not found")
		return
	}

	src, err := h.loadView(ctx, user.ID, id)
	if errors.Is(err, db.ErrNotFound) {
		middleware.ErrorMessage(w, http.StatusNotFound, "Source view not found")
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to load saved view", "error", err, "view_id", id)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to duplicate saved view")
		return
	}

	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	name, err := stringField(fields, "name")
	if err != nil {
		middleware.ErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if name == "" {
		name = src.Name + " (Copy)"
	}
	if !validViewName(w, name, "View name is required") {
		return
	}

	v, err := h.insertView(ctx, user.ID, name, src.PayloadJSON)
	if errors.Is(err, errDuplicateViewName) {
		middleware.ErrorMessage(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to duplicate saved view", "error", err, "view_id", id)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to duplicate saved view")
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, viewResponse{Message: "Saved view duplicated successfully", View: v})
}
