package ratelimit

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"

	"github.com/i474232898/uk-weather-gateway/internal/store"
)

// Event describes one rate-limit decision.
type Event struct {
	Bucket  string
	Tier    store.Tier
	Allowed bool
	At      time.Time
}

// Recorder is a best-effort sink for decisions. Errors never block a request.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Counters is a snapshot of allowed/denied totals.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// MemoryStats counts decisions in process.
type MemoryStats struct {
	allowed *atomic.Int64
	denied  *atomic.Int64
}

func NewMemoryStats() *MemoryStats {
	return &MemoryStats{
		allowed: atomic.NewInt64(0),
		denied:  atomic.NewInt64(0),
	}
}

func (s *MemoryStats) Record(_ context.Context, ev Event) error {
	if ev.Allowed {
		s.allowed.Inc()
	} else {
		s.denied.Inc()
	}
	return nil
}

func (s *MemoryStats) Totals() Counters {
	return Counters{Allowed: s.allowed.Load(), Denied: s.denied.Load()}
}

// RedisRecordTimeout bounds a single RedisStats write.
const RedisRecordTimeout = 50 * time.Millisecond

// RedisStats mirrors decision counts into per-minute Redis hashes that expire
// after ttl. Counters are keyed by tier, never by raw API key.
type RedisStats struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

func NewRedisStats(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStats {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "weather:ratelimit"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStats{rdb: rdb, prefix: prefix, ttl: ttl, timeout: RedisRecordTimeout}
}

func (s *RedisStats) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	pipe.HIncrBy(ctx, bucketKey, string(ev.Tier)+":"+field, 1)
	pipe.Expire(ctx, bucketKey, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// MultiRecorder fans one event out to several recorders.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, ev Event) error {
	var firstErr error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AsyncRecorder hands events to one background goroutine so a slow sink never
// delays Check. Events are dropped while the buffer is full.
type AsyncRecorder struct {
	next    Recorder
	events  chan Event
	quit    chan struct{}
	done    chan struct{}
	dropped *atomic.Int64

	closeOnce sync.Once
}

func NewAsyncRecorder(next Recorder, buffer int) *AsyncRecorder {
	if buffer <= 0 {
		buffer = 1024
	}
	r := &AsyncRecorder{
		next:    next,
		events:  make(chan Event, buffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		dropped: atomic.NewInt64(0),
	}
	go r.run()
	return r
}

// Record enqueues ev without waiting. It never returns an error.
func (r *AsyncRecorder) Record(_ context.Context, ev Event) error {
	select {
	case <-r.quit:
		r.dropped.Inc()
		return nil
	default:
	}

	select {
	case r.events <- ev:
	default:
		r.dropped.Inc()
	}
	return nil
}

// Dropped counts events discarded because the buffer was full or the
// recorder was closed.
func (r *AsyncRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops the worker after flushing queued events.
func (r *AsyncRecorder) Close() {
	r.closeOnce.Do(func() { close(r.quit) })
	<-r.done
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.events:
			r.forward(ev)
		case <-r.quit:
			for {
				select {
				case ev := <-r.events:
					r.forward(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *AsyncRecorder) forward(ev Event) {
	if err := r.next.Record(context.Background(), ev); err != nil {
		log.Printf("ratelimit: async stats record failed for %s: %v", ev.Bucket, err)
	}
}
