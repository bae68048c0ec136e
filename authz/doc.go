// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package authz maps roles to permissions with a casbin RBAC model.

The model and policy are embedded (model.conf, policy.csv). Requests are
checked as (role, resource, action):

	e, _ := authz.NewEnforcer()
	if !e.Allowed(user.Role, authz.ResourceKeys, authz.ActionWrite) { ... }

Roles inherit downwards: admin → privileged → user.
*/
package authz
