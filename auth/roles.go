// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import "github.com/beaconhill/compliance-tracker/models"

var roleLevels = map[string]int{
	models.RoleUser:       0,
	models.RolePrivileged: 1,
	models.RoleAdmin:      2,
}

// ValidRole reports whether role is one of user, privileged, admin.
func ValidRole(role string) bool {
	_, ok := roleLevels[role]
	return ok
}

// HasRole reports whether actual is at least required in the hierarchy.
// Unknown roles never satisfy anything.
func HasRole(actual, required string) bool {
	a, ok := roleLevels[actual]
	if !ok {
		return false
	}
	r, ok := roleLevels[required]
	if !ok {
		return false
	}
	return a >= r
}

func CanGenerateKeys(role string) bool { return HasRole(role, models.RolePrivileged) }

func CanManageUsers(role string) bool { return HasRole(role, models.RoleAdmin) }
