package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Defaults for the service rules.
const (
	DefaultBootstrapPerHour    = 10   // per IP
	DefaultKeyCreatePerMinute  = 10   // per workspace
	DefaultCapabilityPerMinute = 1000 // per key, reads
	DefaultAppendPerMinute     = 600  // per key, appends + heartbeats
	DefaultEvictAfter          = time.Hour
	DefaultEvictInterval       = 10 * time.Minute
)

// Config tunes the per-rule rates. Zero fields fall back to defaults.
type Config struct {
	BootstrapPerHour    int
	KeyCreatePerMinute  int
	CapabilityPerMinute int
	AppendPerMinute     int
	EvictAfter          time.Duration
	EvictInterval       time.Duration
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.BootstrapPerHour <= 0 {
		out.BootstrapPerHour = DefaultBootstrapPerHour
	}
	if out.KeyCreatePerMinute <= 0 {
		out.KeyCreatePerMinute = DefaultKeyCreatePerMinute
	}
	if out.CapabilityPerMinute <= 0 {
		out.CapabilityPerMinute = DefaultCapabilityPerMinute
	}
	if out.AppendPerMinute <= 0 {
		out.AppendPerMinute = DefaultAppendPerMinute
	}
	if out.EvictAfter <= 0 {
		out.EvictAfter = DefaultEvictAfter
	}
	if out.EvictInterval <= 0 {
		out.EvictInterval = DefaultEvictInterval
	}
	return out
}

// Set bundles the service's rate rules.
//
//	Bootstrap  — workspace creation, keyed by client IP
//	KeyCreate  — API key minting, keyed by workspace id
//	Capability — capability URL reads, keyed by key id
//	Append     — appends and heartbeats, keyed by key id
type Set struct {
	Bootstrap  *Limiter
	KeyCreate  *Limiter
	Capability *Limiter
	Append     *Limiter

	evictAfter time.Duration
	ticker     *time.Ticker
	done       chan struct{}
}

// NewSet builds the rule set from config.
func NewSet(cfg *Config) *Set {
	c := cfg.withDefaults()
	s := &Set{
		Bootstrap:  PerHour(c.BootstrapPerHour),
		KeyCreate:  PerMinute(c.KeyCreatePerMinute),
		Capability: PerMinute(c.CapabilityPerMinute),
		Append:     PerMinute(c.AppendPerMinute),
		evictAfter: c.EvictAfter,
		done:       make(chan struct{}),
	}
	s.ticker = time.NewTicker(c.EvictInterval)
	go s.evictLoop()
	return s
}

func (s *Set) evictLoop() {
	for {
		select {
		case <-s.ticker.C:
			for _, l := range s.all() {
				l.Evict(s.evictAfter)
			}
		case <-s.done:
			return
		}
	}
}

func (s *Set) all() []*Limiter {
	return []*Limiter{s.Bootstrap, s.KeyCreate, s.Capability, s.Append}
}

// ResetAll clears every bucket in every rule.
func (s *Set) ResetAll() {
	for _, l := range s.all() {
		l.Reset()
	}
}

// Close stops the background eviction loop.
func (s *Set) Close() {
	s.ticker.Stop()
	close(s.done)
}

// Unlimited returns a limiter that never denies. Used where a rule is
// configured off.
func Unlimited() *Limiter {
	return New(rate.Inf, 0)
}
