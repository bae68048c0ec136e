// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/beaconhill/compliance-tracker/email"
	"github.com/beaconhill/compliance-tracker/middleware"
	"github.com/beaconhill/compliance-tracker/models"
	"github.com/beaconhill/compliance-tracker/validation"
)

type ContactHandler struct {
	notifier *email.Notifier
}

func NewContactHandler(notifier *email.Notifier) *ContactHandler {
	return &ContactHandler{notifier: notifier}
}

// Send handles POST /api/contact/send
func (h *ContactHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req models.ContactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)

	if err := validation.ValidateStruct(req); err != nil {
		var errs validation.Errors
		switch {
		case errors.As(err, &errs) && errs.Has("required"):
			middleware.ErrorMessage(w, http.StatusBadRequest, "All fields are required")
		case errors.As(err, &errs):
			middleware.ErrorMessage(w, http.StatusBadRequest, errs[0].Error())
		default:
			slog.ErrorContext(r.Context(), "failed to validate contact form", "error", err)
			middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to process request")
		}
		return
	}

	err := h.notifier.SendContact(r.Context(), email.ContactForm{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to send contact email", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to send message. Please try again later or email us directly.")
		return
	}

	slog.InfoContext(r.Context(), "contact form submitted", "name", req.Name, "email", req.Email)
	middleware.JSONResponse(w, http.StatusOK, map[string]string{
		"message": "Thank you for your message! We will get back to you soon.",
	})
}
