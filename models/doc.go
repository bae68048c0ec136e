// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - RegisterRequest, LoginRequest: email, password
  - UpdateRoleRequest: user_id, role
  - ForgotPasswordRequest, ResetPasswordRequest
  - ViewRequest: name, payload (both optional on update)
  - CreateKeyRequest, VerifyKeyRequest
  - ContactRequest: name, email, subject, message

# Response Types

  - LoginResponse: access_token, user
  - ChangelogResponse: status, count, changelog
  - StatusResponse: status, message (ingest envelope)
  - ErrorResponse: error, message
  - HealthResponse

# Domain Types

  - Committee, CommitteeDetails: committee metadata and contacts
  - Bill: latest compliance row for a bill within a committee
  - GlobalStats, CommitteeStats: dashboard aggregates
  - ScanMetadata: diff report and analysis of the latest scan
  - ChangelogVersion: release notes grouped by category
  - User, SavedView, SigningKey: account data

Password hashes never serialize. Signing key secrets serialize only when
the caller sets Secret, which handlers do once at creation time.

# Constants

Compliance states:

	StateCompliant    = "compliant"
	StateNonCompliant = "non-compliant"
	StateIncomplete   = "incomplete"  // reported as non-compliant
	StateUnknown      = "unknown"

Roles, lowest to highest:

	RoleUser       = "user"
	RolePrivileged = "privileged"
	RoleAdmin      = "admin"
*/
package models
