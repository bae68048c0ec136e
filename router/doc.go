// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the compliance tracker API.

# Route Registration

NewRouter builds a chi router with the global middleware chain and every
endpoint:

	h, err := router.NewRouter(d, cfg, email.New(cfg.Mail))

The mailer is a parameter so tests can pass an email.Recorder.

# Endpoints

Operational:

	GET /health         - Liveness
	GET /debug/db-info  - Dialect and row counts
	GET /metrics        - Prometheus

Dashboard (public):

	GET /api/stats
	GET /api/committees
	GET /api/committees/stats
	GET /api/committees/{id}
	GET /api/bills
	GET /api/compliance/metadata
	GET /api/compliance/{id}/metadata
	GET /api/changelog

Scanner ingest (X-Ingest-* signature):

	POST /ingest/cache
	POST /ingest/basic
	POST /ingest/changelog

Accounts (register, login, forgot-password and reset-password share the
stricter auth rate limit):

	POST     /api/auth/register
	GET|POST /api/auth/verify/{token}
	POST     /api/auth/login
	GET      /api/auth/me
	PATCH    /api/auth/role       - admin
	GET      /api/auth/users      - admin
	POST     /api/auth/forgot-password
	POST     /api/auth/reset-password

Saved views (bearer token):

	GET    /api/views
	POST   /api/views
	GET    /api/views/search?q=
	GET    /api/views/{id}
	PUT    /api/views/{id}
	DELETE /api/views/{id}
	POST   /api/views/duplicate/{id}

Signing keys (privileged and up, except verify):

	POST  /api/keys
	GET   /api/keys
	GET   /api/keys/{id}
	PATCH /api/keys/revoke/{id}
	PATCH /api/keys/{id}/revoke
	POST  /api/keys/verify
	GET   /api/keys/admin/all          - admin
	PATCH /api/keys/admin/revoke/{id}  - admin

Contact:

	POST /api/contact/send

Unknown paths and methods answer JSON 404 and 405 bodies.
*/
package router
