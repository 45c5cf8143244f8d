package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/i474232898/uk-weather-gateway/internal/store"
)

// AnonymousBucket is the shared identity for callers without a valid key.
const AnonymousBucket = "anonymous"

// TierResolver looks up the tier of an API key.
type TierResolver interface {
	Validate(key string) (store.Tier, bool)
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// ResetIn is only set on denied decisions.
	ResetIn time.Duration
}

// RetryAfterSeconds rounds ResetIn up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.ResetIn <= 0 {
		return 0
	}
	return int((d.ResetIn + time.Second - 1) / time.Second)
}

// Config configures a Limiter.
type Config struct {
	Window time.Duration
	Quotas map[store.Tier]int
	Now    func() time.Time
	// Recorder receives every decision; optional.
	Recorder Recorder
}

// Limiter is a per-key fixed-window rate limiter with tier quotas.
type Limiter struct {
	mu       sync.Mutex
	tiers    TierResolver
	window   time.Duration
	quotas   map[store.Tier]int
	now      func() time.Time
	recorder Recorder

	buckets map[string]*bucket
}

type bucket struct {
	count   int
	resetAt time.Time
}

// DefaultQuotas are the per-hour request allowances.
func DefaultQuotas() map[store.Tier]int {
	return map[store.Tier]int{
		store.TierFree: 100,
		store.TierPro:  1000,
	}
}

// New creates a Limiter.
func New(tiers TierResolver, cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.Quotas == nil {
		cfg.Quotas = DefaultQuotas()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		tiers:    tiers,
		window:   cfg.Window,
		quotas:   cfg.Quotas,
		now:      cfg.Now,
		recorder: cfg.Recorder,
		buckets:  make(map[string]*bucket),
	}
}

// Check counts one request against the bucket for key and decides whether
// it may proceed. Empty and unknown keys share AnonymousBucket.
func (l *Limiter) Check(ctx context.Context, key string) Decision {
	id, tier := l.identify(key)
	limit := l.quotas[tier]
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[id]
	if !ok || now.After(b.resetAt) {
		b = &bucket{resetAt: now.Add(l.window)}
		l.buckets[id] = b
	}

	var dec Decision
	if b.count < limit {
		b.count++
		dec = Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - b.count,
			ResetAt:   b.resetAt,
		}
	} else {
		resetIn := b.resetAt.Sub(now)
		if resetIn < time.Second {
			resetIn = time.Second
		}
		dec = Decision{
			Allowed:   false,
			Limit:     limit,
			Remaining: 0,
			ResetAt:   b.resetAt,
			ResetIn:   resetIn,
		}
	}
	l.mu.Unlock()

	if l.recorder != nil {
		err := l.recorder.Record(ctx, Event{Bucket: id, Tier: tier, Allowed: dec.Allowed, At: now})
		if err != nil {
			log.Printf("ratelimit: stats record failed for %s: %v", id, err)
		}
	}
	return dec
}

// Cleanup drops buckets whose window has ended and returns how many were removed.
func (l *Limiter) Cleanup() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

// Limit returns the configured quota for a tier.
func (l *Limiter) Limit(tier store.Tier) int {
	return l.quotas[tier]
}

func (l *Limiter) identify(key string) (string, store.Tier) {
	if key != "" && l.tiers != nil {
		if tier, ok := l.tiers.Validate(key); ok {
			return "key:" + key, tier
		}
	}
	return AnonymousBucket, store.TierFree
}
