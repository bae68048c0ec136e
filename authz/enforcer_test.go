// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleHierarchy(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)

	tests := []struct {
		role, resource, action string
		want                   bool
	}{
		{"user", ResourceViews, ActionWrite, true},
		{"user", ResourceProfile, ActionRead, true},
		{"user", ResourceKeys, ActionWrite, false},
		{"user", ResourceUsers, ActionRead, false},
		{"privileged", ResourceViews, ActionRead, true},
		{"privileged", ResourceKeys, ActionWrite, true},
		{"privileged", ResourceKeysAdmin, ActionRead, false},
		{"admin", ResourceKeys, ActionRead, true},
		{"admin", ResourceKeysAdmin, ActionWrite, true},
		{"admin", ResourceUsers, ActionWrite, true},
		{"admin", ResourceViews, ActionWrite, true},
		{"", ResourceViews, ActionRead, false},
		{"guest", ResourceViews, ActionRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.resource+"/"+tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Allowed(tt.role, tt.resource, tt.action))
		})
	}
}

func TestLoadPolicyRejectsMalformedLines(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)
	assert.Error(t, loadPolicy(e.enforcer, "p, user, views"))
}
