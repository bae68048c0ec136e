// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Ingest request headers.
const (
	HeaderKeyID     = "X-Ingest-Key-Id"
	HeaderTimestamp = "X-Ingest-Timestamp"
	HeaderSignature = "X-Ingest-Signature"
)

// KeyIDPrefix marks tracker signing keys.
const KeyIDPrefix = "bhct_"

// DefaultSkew is the largest clock difference accepted on signed requests.
const DefaultSkew = 300 * time.Second

var (
	ErrMissingHeaders   = errors.New("Missing required signature headers (X-Ingest-Key-Id, X-Ingest-Timestamp, X-Ingest-Signature)")
	ErrBadTimestamp     = errors.New("Invalid timestamp format")
	ErrTimestampSkew    = errors.New("Request timestamp too old or too far in future")
	ErrUnknownKey       = errors.New("Invalid signing key ID")
	ErrRevokedKey       = errors.New("Signing key has been revoked")
	ErrInvalidSignature = errors.New("Invalid signature")
)

// GenerateToken returns 32 random bytes as URL-safe base64 without padding.
// Used for email tokens and signing key secrets.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "="), nil
}

// GenerateKeyID returns "bhct_" followed by 24 characters from [a-z0-9].
func GenerateKeyID() (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	max := big.NewInt(int64(len(alphabet)))

	b := make([]byte, 24)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate key id: %w", err)
		}
		b[i] = alphabet[n.Int64()]
	}
	return KeyIDPrefix + string(b), nil
}

// GenerateKeyPair creates a new signing key id and secret.
func GenerateKeyPair() (keyID, secret string, err error) {
	if keyID, err = GenerateKeyID(); err != nil {
		return "", "", err
	}
	if secret, err = GenerateToken(); err != nil {
		return "", "", err
	}
	return keyID, secret, nil
}

// BodyHash returns the hex SHA-256 of the canonical JSON form of body
// (see canonicalJSON). Bodies that are not valid JSON are hashed verbatim.
func BodyHash(body []byte) string {
	canonical, err := canonicalJSON(body)
	if err != nil {
		canonical = body
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// SigningMessage builds "{timestamp}.{METHOD}.{path}.{bodyHash}".
func SigningMessage(timestamp, method, path, bodyHash string) string {
	return timestamp + "." + strings.ToUpper(method) + "." + path + "." + bodyHash
}

// Sign returns the hex HMAC-SHA256 of message under secret.
func Sign(secret, message string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// SignRequest computes the signature a client sends for a request.
func SignRequest(secret, timestamp, method, path string, body []byte) string {
	return Sign(secret, SigningMessage(timestamp, method, path, BodyHash(body)))
}

// VerifySignature checks signature in constant time.
func VerifySignature(secret, message, signature string) error {
	expected := Sign(secret, message)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// CheckTimestamp parses a Unix-seconds timestamp and rejects values more
// than skew away from now in either direction.
func CheckTimestamp(timestamp string, now time.Time, skew time.Duration) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}
	diff := now.Unix() - ts
	if diff < 0 {
		diff = -diff
	}
	if time.Duration(diff)*time.Second > skew {
		return ErrTimestampSkew
	}
	return nil
}
