package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/dd0wney/cluso-lobstore/pkg/lob"
)

var ErrUnknownAPIKey = errors.New("unknown API key")

// apiKeyPrefixLen is how many characters of a key double as its lookup
// handle. Only the bcrypt hash of the full key is retained.
const apiKeyPrefixLen = 8

// APIKeyGate admits privileged operations for callers presenting a known
// API key. Keys are stored hashed; losing the plaintext means issuing a
// new key.
type APIKeyGate struct {
	mu     sync.RWMutex
	hashes map[string][]byte // key prefix -> bcrypt hash of full key
}

// NewAPIKeyGate creates an empty gate.
func NewAPIKeyGate() *APIKeyGate {
	return &APIKeyGate{hashes: make(map[string][]byte)}
}

// IssueKey mints a new key, stores its hash and returns the plaintext. The
// plaintext is shown exactly once.
func (g *APIKeyGate) IssueKey() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	key := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing key: %w", err)
	}

	g.mu.Lock()
	g.hashes[key[:apiKeyPrefixLen]] = hash
	g.mu.Unlock()
	return key, nil
}

// RevokeKey forgets the key with the given plaintext or prefix.
func (g *APIKeyGate) RevokeKey(keyOrPrefix string) {
	if len(keyOrPrefix) > apiKeyPrefixLen {
		keyOrPrefix = keyOrPrefix[:apiKeyPrefixLen]
	}
	g.mu.Lock()
	delete(g.hashes, keyOrPrefix)
	g.mu.Unlock()
}

// Validate checks a plaintext key against the stored hashes.
func (g *APIKeyGate) Validate(key string) error {
	if len(key) < apiKeyPrefixLen {
		return ErrUnknownAPIKey
	}
	g.mu.RLock()
	hash, ok := g.hashes[key[:apiKeyPrefixLen]]
	g.mu.RUnlock()
	if !ok {
		return ErrUnknownAPIKey
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
		return ErrUnknownAPIKey
	}
	return nil
}

// Authorize implements the Authorizer contract: the context must carry a
// known API key.
func (g *APIKeyGate) Authorize(ctx context.Context, op string) error {
	key, ok := APIKeyFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: %w for %s", lob.ErrPermissionDenied, ErrNoCredentials, op)
	}
	if err := g.Validate(key); err != nil {
		return fmt.Errorf("%w: %w", lob.ErrPermissionDenied, err)
	}
	return nil
}
