// Package credential implements the gateway's Credential Store (spec
// §4.6): issuing and validating the bearer credential a MUD presents in its
// auth frame.
//
// Grounded on the teacher's internal/auth/agent_apikey.go (bcrypt-hashed
// admin-gated issuance for service-to-service credentials rather than human
// login) and internal/auth/jwt.go (golang-jwt/jwt/v5 signing): the issued
// credential is a signed JWT carrying the MUD name as its subject, so
// Validate can reject a credential presented for the wrong name without a
// registry round-trip. Issuance itself is gated by an optional admin secret,
// compared against its bcrypt hash exactly as the teacher's API-key issuance
// path does.
package credential

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost mirrors the teacher's API-key hashing cost factor.
const BcryptCost = 12

// Store is the Credential Store contract (spec §4.6).
type Store interface {
	// IssueCredential mints a new credential for mudName. adminSecret is
	// checked against the store's configured admin secret hash when one is
	// set; pass "" when no admin gating is configured.
	IssueCredential(mudName, adminSecret string) (string, error)
	Validate(mudName, credential string) bool
	Revoke(mudName string) error
}

// claims is the JWT payload carried by an issued credential.
type claims struct {
	MudName string `json:"mudName"`
	jwt.RegisteredClaims
}

// JWTStore issues signed, MUD-name-scoped JWTs and validates them against
// both the signature and an in-process revocation list.
type JWTStore struct {
	signingKey     []byte
	adminSecretHash string // empty disables admin gating on issuance

	mu      sync.RWMutex
	revoked map[string]bool // mudName -> revoked
}

// NewJWTStore builds a Store signing credentials with signingKey. Pass an
// empty adminSecretHash to allow unauthenticated issuance (suitable for a
// deployment where the transport to the issuance path is itself trusted).
func NewJWTStore(signingKey []byte, adminSecretHash string) *JWTStore {
	return &JWTStore{
		signingKey:      signingKey,
		adminSecretHash: adminSecretHash,
		revoked:         make(map[string]bool),
	}
}

// HashAdminSecret bcrypt-hashes an admin secret for NewJWTStore, mirroring
// the teacher's HashAPIKey.
func HashAdminSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("credential: failed to hash admin secret: %w", err)
	}
	return string(hash), nil
}

// GenerateSigningKey produces a random 32-byte HMAC signing key suitable for
// NewJWTStore, for deployments that don't supply their own.
func GenerateSigningKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("credential: failed to generate signing key: %w", err)
	}
	return key, nil
}

// IssueCredential mints a JWT bound to mudName, valid for one year (MUD
// servers are long-lived peers, re-issued manually on rotation).
func (s *JWTStore) IssueCredential(mudName, adminSecret string) (string, error) {
	if s.adminSecretHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(s.adminSecretHash), []byte(adminSecret)) != nil {
			return "", errors.New("credential: admin secret does not match")
		}
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		MudName: mudName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   mudName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.AddDate(1, 0, 0)),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("credential: failed to sign credential: %w", err)
	}

	s.mu.Lock()
	delete(s.revoked, mudName)
	s.mu.Unlock()

	return signed, nil
}

// Validate reports whether credential is a currently-valid, unexpired,
// unrevoked JWT bound to mudName. Runs in bounded time (HMAC verify plus a
// map lookup), satisfying spec §4.6's "returns within bounded time"
// requirement.
func (s *JWTStore) Validate(mudName, credential string) bool {
	parsed, err := jwt.ParseWithClaims(credential, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return false
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.MudName != mudName {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.revoked[mudName]
}

// Revoke invalidates any outstanding credential for mudName immediately,
// regardless of the JWT's own expiry.
func (s *JWTStore) Revoke(mudName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[mudName] = true
	return nil
}
