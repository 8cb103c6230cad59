// Package selector routes admitted signals to a capital pool.
//
// Selection reads pool snapshots only; it never mutates pool counters. The
// projected-limit check here is advisory pre-filtering — the commit-time
// re-check in the pool registry is the system of record, so a selection can
// still lose a race and be rejected at commit.
package selector

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"solana-trading-engine/internal/pool"
	"solana-trading-engine/internal/signal"
)

// ErrNoEligiblePool is returned when no pool supports the signal's strategy
// within its projected limits. This is an expected outcome under capital
// constraints, not a fault.
var ErrNoEligiblePool = errors.New("no eligible pool")

// Selection is the routing decision for an admitted signal
type Selection struct {
	PoolID string
	Kind   pool.Kind
	Reason string
}

// Selector ranks eligible pools deterministically
type Selector struct {
	registry       *pool.Registry
	fallbackPoolID string
	logger         zerolog.Logger
}

// New creates a pool selector backed by the given registry. fallbackPoolID
// optionally names a catch-all pool tried when normal selection fails; empty
// disables the fallback.
func New(registry *pool.Registry, fallbackPoolID string, logger zerolog.Logger) *Selector {
	return &Selector{
		registry:       registry,
		fallbackPoolID: fallbackPoolID,
		logger:         logger.With().Str("component", "selector").Logger(),
	}
}

// Select picks the pool for an admitted signal:
//
//  1. keep pools that support the signal's strategy tag,
//  2. keep pools whose projected post-trade state stays inside their own
//     limits,
//  3. rank survivors: Primary kind first, then lowest relative exposure,
//     ties broken by pool id ascending so reruns are reproducible,
//  4. if nothing survived and a fallback pool is configured, route there
//     instead. The fallback takes strategies its pool does not list, but its
//     projected limits still apply, as does the commit-time re-check.
func (s *Selector) Select(sig signal.TradingSignal) (Selection, error) {
	notional := sig.Notional()

	var candidates []pool.Snapshot
	for _, snap := range s.registry.Snapshots() {
		if !snap.Supports(sig.Strategy) {
			continue
		}
		if ok, rule := snap.Fits(notional); !ok {
			s.logger.Debug().
				Str("signal_id", sig.ID).
				Str("pool_id", snap.ID).
				Str("rule", rule).
				Msg("Pool filtered by projected limits")
			continue
		}
		candidates = append(candidates, snap)
	}

	if len(candidates) == 0 {
		if sel, ok := s.fallback(sig, notional); ok {
			return sel, nil
		}
		s.logger.Info().
			Str("signal_id", sig.ID).
			Str("strategy", string(sig.Strategy)).
			Float64("notional", notional).
			Msg("No eligible pool for signal")
		return Selection{}, ErrNoEligiblePool
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		ap, bp := a.Kind == pool.KindPrimary, b.Kind == pool.KindPrimary
		if ap != bp {
			return ap
		}
		ae, be := a.RelativeExposure(), b.RelativeExposure()
		if ae != be {
			return ae < be
		}
		return a.ID < b.ID
	})

	chosen := candidates[0]
	sel := Selection{
		PoolID: chosen.ID,
		Kind:   chosen.Kind,
		Reason: fmt.Sprintf("Supports %s, within position and exposure limits", sig.Strategy),
	}

	s.logger.Info().
		Str("signal_id", sig.ID).
		Str("pool_id", sel.PoolID).
		Str("reason", sel.Reason).
		Msg("Pool selected")
	return sel, nil
}

// fallback routes to the configured catch-all pool when normal selection
// produced no candidate. The strategy filter is waived, the limit filter is
// not: a fallback pool with no headroom still refuses the signal.
func (s *Selector) fallback(sig signal.TradingSignal, notional float64) (Selection, bool) {
	if s.fallbackPoolID == "" {
		return Selection{}, false
	}

	snap, err := s.registry.Snapshot(s.fallbackPoolID)
	if err != nil {
		s.logger.Warn().
			Str("pool_id", s.fallbackPoolID).
			Msg("Configured fallback pool is not registered")
		return Selection{}, false
	}
	if ok, rule := snap.Fits(notional); !ok {
		s.logger.Debug().
			Str("signal_id", sig.ID).
			Str("pool_id", snap.ID).
			Str("rule", rule).
			Msg("Fallback pool filtered by projected limits")
		return Selection{}, false
	}

	sel := Selection{
		PoolID: snap.ID,
		Kind:   snap.Kind,
		Reason: fmt.Sprintf("fallback pool: no pool supports %s within limits", sig.Strategy),
	}
	s.logger.Info().
		Str("signal_id", sig.ID).
		Str("pool_id", sel.PoolID).
		Msg("Fallback pool selected")
	return sel, true
}
