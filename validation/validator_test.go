// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhill/compliance-tracker/models"
)

func TestContactRequestRules(t *testing.T) {
	valid := models.ContactRequest{
		Name:    "Ada",
		Email:   "ada@example.com",
		Subject: "Question",
		Message: "Hello there, a question.",
	}
	require.NoError(t, ValidateStruct(&valid))

	tests := []struct {
		name    string
		mutate  func(r *models.ContactRequest)
		tag     string
		message string
	}{
		{"missing name", func(r *models.ContactRequest) { r.Name = "" }, "required", "Name is required"},
		{"bad email", func(r *models.ContactRequest) { r.Email = "not-an-email" }, "email", "Invalid email: The email address is not valid."},
		{"short message", func(r *models.ContactRequest) { r.Message = "hi" }, "min", "Message must be at least 10 characters long"},
		{"long message", func(r *models.ContactRequest) { r.Message = strings.Repeat("x", 5001) }, "max", "Message must be less than 5000 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := ValidateStruct(&req)
			var verrs Errors
			require.True(t, errors.As(err, &verrs), "expected Errors, got %v", err)

			fe, ok := verrs.First(tt.tag)
			require.True(t, ok, "no %s failure in %v", tt.tag, verrs)
			assert.Equal(t, tt.message, Message(fe))
		})
	}
}

func TestMessageAtLimitAccepted(t *testing.T) {
	req := models.ContactRequest{Name: "A", Email: "a@b.org", Subject: "S", Message: strings.Repeat("é", 5000)}
	assert.NoError(t, ValidateStruct(&req))
}

func TestCustomTags(t *testing.T) {
	type sample struct {
		Chamber  string `json:"chamber" validate:"chamber"`
		Role     string `json:"role" validate:"role"`
		Category string `json:"category" validate:"changelog_category"`
	}

	assert.NoError(t, ValidateStruct(&sample{"House", "admin", "fixed"}))

	err := ValidateStruct(&sample{"Assembly", "root", "misc"})
	var verrs Errors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 3)
	assert.True(t, verrs.Has("chamber"))
	assert.True(t, verrs.Has("role"))
	assert.True(t, verrs.Has("changelog_category"))
}

func TestEmail(t *testing.T) {
	assert.NoError(t, Email("someone@beaconhilltracker.org"))
	assert.Error(t, Email(""))
	assert.Error(t, Email("two@@signs.org"))
	assert.Error(t, Email("no-at-sign"))
}
