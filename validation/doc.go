// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package validation wraps a shared go-playground/validator instance.
//
// Field names in errors are the JSON names. Custom tags: chamber, role,
// changelog_category. Message turns a FieldError into the text the API
// returns, e.g. "Message must be at least 10 characters long".
package validation
