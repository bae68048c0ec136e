// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides authentication primitives: passwords, access tokens,
random tokens and ingest request signatures.

# Passwords

Passwords are hashed with bcrypt:

	hash, err := auth.HashPassword(pw, cfg.Auth.BcryptCost)
	ok := auth.CheckPassword(hash, pw)

# Access Tokens

JWTManager issues HS256 tokens whose subject is the user id:

	m, _ := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	token, _ := m.GenerateToken(user.ID, user.Role)
	claims, err := m.ValidateToken(token)

# Random Tokens

GenerateToken returns 32 random bytes, URL-safe base64 without padding.
It backs email verification links, password reset links and signing key
secrets.

# Ingest Signatures

Scanners push data to /ingest/* with three headers:

	X-Ingest-Key-Id:    bhct_xxxxxxxxxxxxxxxxxxxxxxxx
	X-Ingest-Timestamp: Unix seconds
	X-Ingest-Signature: hex HMAC-SHA256(secret, message)

where message is

	{timestamp}.{METHOD}.{path}.{sha256hex(compact JSON body)}

The body is compacted (insignificant whitespace removed) before hashing,
so clients must sign the same key order they send. Timestamps more than
five minutes from server time are rejected. Comparison uses hmac.Equal.

# Roles

Roles form a hierarchy: user < privileged < admin. HasRole checks the
hierarchy; privileged users may create signing keys and admins may
manage users.
*/
package auth
