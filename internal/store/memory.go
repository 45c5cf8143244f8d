package store

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrForbidden is returned for any administrative call made with a wrong
	// or missing admin credential.
	ErrForbidden = errors.New("invalid admin key")
)

// Tier is the service level attached to an API key.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// ParseTier maps a configuration or request value to a Tier.
// An empty value means free.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case "", TierFree:
		return TierFree, nil
	case TierPro:
		return TierPro, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// AllowsCoordinates reports whether callers on this tier may query
// arbitrary latitude/longitude pairs instead of gazetteer cities.
func (t Tier) AllowsCoordinates() bool {
	return t == TierPro
}

// APIKey is an issued caller credential.
type APIKey struct {
	Key       string    `json:"key"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Tier      Tier      `json:"plan"`
	CreatedAt time.Time `json:"created"`
}

// NewKey describes a key to be issued by Create.
type NewKey struct {
	Name  string
	Email string
	Tier  Tier
}

// KeyStore is a concurrency-safe in-memory table of API keys.
type KeyStore struct {
	mu sync.RWMutex

	// key: api key identifier
	keys map[string]APIKey

	adminKey string
	now      func() time.Time
}

// Option customises a KeyStore.
type Option func(*KeyStore)

// WithClock overrides the clock used for key generation and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *KeyStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewKeyStore creates an empty KeyStore. An empty adminKey disables every
// administrative operation.
func NewKeyStore(adminKey string, opts ...Option) *KeyStore {
	s := &KeyStore{
		keys:     make(map[string]APIKey),
		adminKey: adminKey,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed registers a key from static configuration.
func (s *KeyStore) Seed(k APIKey) {
	if k.Tier == "" {
		k.Tier = TierFree
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.Key] = k
}

// Validate returns the tier of a known key. Unknown keys are never valid.
func (s *KeyStore) Validate(key string) (Tier, bool) {
	if key == "" {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[key]
	if !ok {
		return "", false
	}
	return k.Tier, true
}

// Create issues a new key.
func (s *KeyStore) Create(adminKey string, req NewKey) (APIKey, error) {
	if !s.authorized(adminKey) {
		return APIKey{}, ErrForbidden
	}

	tier := req.Tier
	if tier == "" {
		tier = TierFree
	}

	now := s.now()
	id, err := generateKey(now)
	if err != nil {
		return APIKey{}, err
	}

	k := APIKey{
		Key:       id,
		Name:      req.Name,
		Email:     req.Email,
		Tier:      tier,
		CreatedAt: now.UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[id] = k
	return k, nil
}

// Revoke deletes a key and reports whether it existed.
func (s *KeyStore) Revoke(adminKey, key string) (bool, error) {
	if !s.authorized(adminKey) {
		return false, ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; !ok {
		return false, nil
	}
	delete(s.keys, key)
	return true, nil
}

// List returns every key, oldest first, with identifiers redacted.
func (s *KeyStore) List(adminKey string) ([]APIKey, error) {
	if !s.authorized(adminKey) {
		return nil, ErrForbidden
	}

	s.mu.RLock()
	result := make([]APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		k.Key = Redact(k.Key)
		result = append(result, k)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Key < result[j].Key
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Authorize checks an admin credential without performing any operation.
func (s *KeyStore) Authorize(adminKey string) error {
	if !s.authorized(adminKey) {
		return ErrForbidden
	}
	return nil
}

func (s *KeyStore) authorized(adminKey string) bool {
	if s.adminKey == "" || adminKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(adminKey), []byte(s.adminKey)) == 1
}

// Redact keeps the first 10 characters of a key identifier. Keys that short
// are hidden entirely.
func Redact(key string) string {
	if len(key) <= 10 {
		return "..."
	}
	return key[:10] + "..."
}

// generateKey combines a nanosecond timestamp with 122 random bits.
func generateKey(now time.Time) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return fmt.Sprintf("ukw_%d_%s", now.UnixNano(), strings.ReplaceAll(id.String(), "-", "")), nil
}
