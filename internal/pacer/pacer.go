// Package pacer implements adaptive request pacing: a single global delay
// state shared across the process, plus a per-domain pacing table backed by
// internal/stats' Manager for origins with enough history to warrant their own
// signal.
package pacer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/corvidlabs/helmsman/internal/stats"
)

// Config bounds and tunes the global pacer's delay adjustments.
type Config struct {
	BaseDelay         time.Duration
	MinDelay          time.Duration
	MaxDelay          time.Duration
	SuccessIncrement  float64
	FailureDecrement  float64
}

// DefaultConfig returns the spec's default pacer tunables.
func DefaultConfig() Config {
	return Config{
		BaseDelay:        2 * time.Second,
		MinDelay:         500 * time.Millisecond,
		MaxDelay:         30 * time.Second,
		SuccessIncrement: 0.1,
		FailureDecrement: 0.2,
	}
}

// Pacer holds the single global delay/success-rate state machine described
// in the data model, plus an (optional) per-domain table consulted alongside
// it. It is safe for concurrent use by multiple sessions.
type Pacer struct {
	cfg Config

	mu           sync.Mutex
	currentDelay time.Duration
	successRate  float64
	totalCount   int64
	successCount int64

	domains *stats.Manager
}

// New creates a Pacer with the given config. domains may be nil to disable
// per-domain pacing (global-only mode).
func New(cfg Config, domains *stats.Manager) *Pacer {
	return &Pacer{
		cfg:          cfg,
		currentDelay: cfg.BaseDelay,
		successRate:  1.0,
		domains:      domains,
	}
}

// NextDelay reports the current delay (without side effects beyond reading
// state) and updates the running state for the outcome just observed.
// Jitter in [0, 1s) is added to the returned value, matching the invariant
// that delays include uniform jitter.
func (p *Pacer) NextDelay(success bool) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalCount++
	if success {
		p.successCount++
		p.successRate = min(1.0, p.successRate+p.cfg.SuccessIncrement)
		p.currentDelay = clampDuration(
			time.Duration(float64(p.currentDelay)*0.9), p.cfg.MinDelay, p.cfg.MaxDelay)
	} else {
		p.successRate = max(0.1, p.successRate-p.cfg.FailureDecrement)
		p.currentDelay = clampDuration(p.currentDelay*2, p.cfg.MinDelay, p.cfg.MaxDelay)
	}

	return p.currentDelay + time.Duration(rand.Int63n(int64(time.Second)))
}

// Wait sleeps for the delay implied by the last-reported outcome, honoring
// context cancellation. Callers report the PREVIOUS operation's outcome;
// the very first call of a session reports success=true (no history yet).
func (p *Pacer) Wait(ctx context.Context, success bool) error {
	delay := p.NextDelay(success)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForDomain waits for the larger of the global pacer's delay and the
// per-domain suggested delay for the given origin, when per-domain pacing
// is enabled and the domain has accumulated history.
func (p *Pacer) WaitForDomain(ctx context.Context, domain string, success bool) error {
	globalDelay := p.NextDelay(success)

	delay := globalDelay
	if p.domains != nil && domain != "" {
		if d := time.Duration(p.domains.SuggestedDelay(domain)) * time.Millisecond; d > delay {
			delay = d
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordDomainOutcome feeds a completed request's outcome into the
// per-domain table. No-op if per-domain pacing is disabled.
func (p *Pacer) RecordDomainOutcome(domain string, latencyMs int64, success, rateLimited bool) {
	if p.domains == nil || domain == "" {
		return
	}
	p.domains.RecordRequest(domain, latencyMs, success, rateLimited)
}

// Snapshot reports the pacer's current state for health/metrics endpoints.
type Snapshot struct {
	CurrentDelay time.Duration
	SuccessRate  float64
	TotalCount   int64
	SuccessCount int64
}

// Stats returns a point-in-time snapshot of the global pacer state.
func (p *Pacer) Stats() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		CurrentDelay: p.currentDelay,
		SuccessRate:  p.successRate,
		TotalCount:   p.totalCount,
		SuccessCount: p.successCount,
	}
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
