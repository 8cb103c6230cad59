package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BreakerConfig tunes the automatic circuit breaker
type BreakerConfig struct {
	Enabled                bool
	MaxConsecutiveFailures int           // venue failures in a row before tripping
	Cooldown               time.Duration // stop auto-clears after this, 0 means manual clear only
}

// DefaultBreakerConfig returns safe defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:                true,
		MaxConsecutiveFailures: 5,
		Cooldown:               30 * time.Minute,
	}
}

// Breaker trips the emergency stop when the venue fails repeatedly. A run of
// failures usually means the venue or the network is unhealthy, and pushing
// more orders into it only burns capital on partial states.
type Breaker struct {
	cfg    BreakerConfig
	stop   *EmergencyStop
	logger zerolog.Logger

	mu                  sync.Mutex
	consecutiveFailures int
	trippedAt           time.Time
	tripped             bool
	engageReason        string
}

// NewBreaker creates a circuit breaker bound to the emergency stop
func NewBreaker(cfg BreakerConfig, stop *EmergencyStop, logger zerolog.Logger) *Breaker {
	return &Breaker{
		cfg:    cfg,
		stop:   stop,
		logger: logger.With().Str("component", "circuit_breaker").Logger(),
	}
}

// RecordFailure counts a venue failure; reaching the threshold engages the
// emergency stop
func (b *Breaker) RecordFailure() {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	if b.tripped || b.consecutiveFailures < b.cfg.MaxConsecutiveFailures {
		return
	}

	b.tripped = true
	b.trippedAt = time.Now()
	b.engageReason = fmt.Sprintf("circuit breaker: %d consecutive venue failures", b.consecutiveFailures)
	b.stop.Engage(b.engageReason)
	b.logger.Error().
		Int("consecutive_failures", b.consecutiveFailures).
		Msg("Circuit breaker tripped, emergency stop engaged")
}

// RecordSuccess resets the failure streak
func (b *Breaker) RecordSuccess() {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
}

// MaybeReset clears a tripped breaker after the cooldown. The stop is only
// cleared while it still carries the reason this breaker engaged it with; a
// stop an operator engaged (or re-engaged) in the meantime is left alone.
func (b *Breaker) MaybeReset(now time.Time) {
	if !b.cfg.Enabled || b.cfg.Cooldown <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.tripped || now.Sub(b.trippedAt) < b.cfg.Cooldown {
		return
	}

	b.tripped = false
	b.consecutiveFailures = 0
	if b.stop.Reason() != b.engageReason {
		b.logger.Warn().
			Str("stop_reason", b.stop.Reason()).
			Msg("Circuit breaker cooldown elapsed but the stop is no longer its own; leaving it engaged")
		return
	}
	b.stop.Clear()
	b.logger.Warn().Msg("Circuit breaker cooldown elapsed, emergency stop cleared")
}

// Tripped reports whether the breaker is currently open
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}
