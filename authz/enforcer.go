// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package authz

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Resources guarded by the policy.
const (
	ResourceProfile   = "profile"
	ResourceViews     = "views"
	ResourceKeys      = "keys"
	ResourceKeysAdmin = "keys:admin"
	ResourceUsers     = "users"
)

// Actions.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// Enforcer answers role-based permission checks.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an enforcer from the embedded model and policy.
func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if err := loadPolicy(e, embeddedPolicy); err != nil {
		return nil, err
	}

	return &Enforcer{enforcer: e}, nil
}

// loadPolicy parses policy CSV lines ("p, sub, obj, act" and "g, child, parent").
func loadPolicy(e *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := e.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := e.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Allowed reports whether role may perform action on resource. Errors
// from casbin deny.
func (e *Enforcer) Allowed(role, resource, action string) bool {
	ok, err := e.enforcer.Enforce(role, resource, action)
	if err != nil {
		slog.Error("authorization check failed", "role", role, "resource", resource, "error", err)
		return false
	}
	return ok
}
