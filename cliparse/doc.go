// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse loads the tracker configuration.

# Configuration

Commands bind their own flags, call Load with the values they parsed and
validate only when they need a complete configuration:

	cfg, err := cliparse.Load(cliparse.Overrides{DatabaseURL: url})
	if err := cfg.Validate(); err != nil { ... }

# Layers

Later layers win:

 1. Defaults()
 2. YAML file from -config, CONFIG_PATH or ./tracker.yaml
 3. .env (never overrides variables already set)
 4. Environment variables
 5. Command-line flags

# CLI Flags

	-p, --port          Server port
	-d, --database-url  Database URL (sqlite:///path or postgres://...)
	--database-type     Database type, normally inferred from the URL
	--jwt-secret        JWT signing secret (prefer env)
	--config            YAML config file
	--log-level         trace, debug, info, warn or error

# Environment Variables

The deployment's existing variable names are mapped onto config paths,
for example:

	DATABASE_URL      database.url
	JWT_SECRET_KEY    auth.jwt_secret
	CORS_ORIGINS      security.cors_origins (comma separated)
	RATELIMIT_AUTH    security.rate_limit_auth ("5 per minute")
	MAIL_SERVER       mail.server
	ADMIN_EMAIL       admin.email

Unmapped variables are ignored. Rate limits use ParseRate syntax.
*/
package cliparse
