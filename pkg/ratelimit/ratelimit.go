// Package ratelimit provides in-process token-bucket limiting keyed by
// client IP, workspace or credential. Buckets live in sharded maps so the
// hot path takes one shard lock, and idle buckets are evicted
// periodically to bound memory.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const shardCount = 32

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Limiter is one rate rule applied across many keys. Each distinct key
// gets its own token bucket created on first use.
type Limiter struct {
	limit  rate.Limit
	burst  int
	shards [shardCount]*shard
}

// New creates a limiter allowing r events per second with the given
// burst per key.
func New(r rate.Limit, burst int) *Limiter {
	l := &Limiter{limit: r, burst: burst}
	for i := range l.shards {
		l.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return l
}

// PerMinute creates a limiter allowing n events per minute per key, with
// a burst of n.
func PerMinute(n int) *Limiter {
	return New(rate.Limit(float64(n)/60.0), n)
}

// PerHour creates a limiter allowing n events per hour per key, with a
// burst of n.
func PerHour(n int) *Limiter {
	return New(rate.Limit(float64(n)/3600.0), n)
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		s.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e.lim
}

// Allow reports whether one event for key may proceed now. When denied,
// retryAfter is how long the caller should wait before retrying.
func (l *Limiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	lim := l.bucket(key)
	res := lim.Reserve()
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

// Reset drops every bucket. Test environments call this between runs so
// earlier requests cannot bleed limits into the next scenario.
func (l *Limiter) Reset() {
	for _, s := range l.shards {
		s.mu.Lock()
		s.entries = make(map[string]*entry)
		s.mu.Unlock()
	}
}

// Evict removes buckets idle for longer than idleFor and returns how
// many were dropped.
func (l *Limiter) Evict(idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)
	evicted := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if e.lastSeen.Before(cutoff) {
				delete(s.entries, key)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
