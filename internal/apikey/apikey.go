// Package apikey issues and verifies API keys. Raw keys are shown once;
// only a bcrypt hash and a short lookup prefix are stored.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix starts every generated key.
	KeyPrefix = "lr_"
	// LookupLen is how many leading characters of a raw key are stored in
	// clear for lookup.
	LookupLen = 8
)

const randomBytes = 20

// Cost is the bcrypt cost used when hashing new keys.
var Cost = bcrypt.DefaultCost

var ErrInvalidKey = errors.New("invalid api key")

// Store is the persistence needed to issue keys.
type Store interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// Generate returns a new random raw key.
func Generate() (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}

// Lookup returns the stored lookup prefix of raw, or "" when raw is too short.
func Lookup(raw string) string {
	if len(raw) < LookupLen {
		return ""
	}
	return raw[:LookupLen]
}

// Matches reports whether raw hashes to key's stored hash.
func Matches(key *models.APIKey, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)) == nil
}

// ValidateScopes rejects empty or unknown scope lists.
func ValidateScopes(scopes []string) error {
	if len(scopes) == 0 {
		return fmt.Errorf("%w: at least one scope is required", ErrInvalidKey)
	}
	for _, s := range scopes {
		switch s {
		case models.ScopeResolve, models.ScopeIngest, models.ScopeAdmin:
		default:
			return fmt.Errorf("%w: unknown scope %q", ErrInvalidKey, s)
		}
	}
	return nil
}

// Issue creates and stores a key for raw. An empty raw generates one. The
// returned raw key is the only copy.
func Issue(ctx context.Context, s Store, name, raw string, scopes []string) (*models.APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", fmt.Errorf("%w: name is required", ErrInvalidKey)
	}
	if err := ValidateScopes(scopes); err != nil {
		return nil, "", err
	}

	if raw == "" {
		var err error
		if raw, err = Generate(); err != nil {
			return nil, "", err
		}
	}
	if Lookup(raw) == "" {
		return nil, "", fmt.Errorf("%w: key must be at least %d characters", ErrInvalidKey, LookupLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), Cost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing key: %w", err)
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: Lookup(raw),
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("storing key: %w", err)
	}
	return key, raw, nil
}

// Bootstrap makes sure raw exists as an admin key. It reports whether a key
// was created.
func Bootstrap(ctx context.Context, s Store, raw string) (bool, error) {
	existing, err := s.GetAPIKeyByPrefix(ctx, Lookup(raw))
	if err != nil {
		return false, fmt.Errorf("looking up bootstrap key: %w", err)
	}
	for _, k := range existing {
		if Matches(k, raw) {
			return false, nil
		}
	}
	if _, _, err := Issue(ctx, s, "bootstrap", raw, []string{models.ScopeAdmin}); err != nil {
		return false, err
	}
	return true, nil
}
