package pool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"solana-trading-engine/internal/signal"
)

// LimitViolation is returned by ApplyDelta when the commit-time re-check
// fails. Selection and commit disagreeing indicates a race or a stale
// snapshot, so callers log it as a high-severity anomaly.
type LimitViolation struct {
	PoolID string
	Rule   string
}

func (e *LimitViolation) Error() string {
	return fmt.Sprintf("pool %s limit violation: %s", e.PoolID, e.Rule)
}

// entry holds one pool's state under its own lock so concurrent executions
// against unrelated pools never serialize on each other
type entry struct {
	mu    sync.Mutex
	state Snapshot
}

// Registry owns every capital pool. The pool map is fixed after startup and
// shared read-only; only the per-entry counters mutate, always under the
// entry lock.
type Registry struct {
	pools  map[string]*entry
	ids    []string // sorted, for deterministic iteration
	logger zerolog.Logger
}

// NewRegistry builds a registry from startup pool specs. Duplicate or
// invalid specs are configuration errors and abort startup.
func NewRegistry(specs []Spec, logger zerolog.Logger) (*Registry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no capital pools configured")
	}

	r := &Registry{
		pools:  make(map[string]*entry, len(specs)),
		logger: logger.With().Str("component", "pool_registry").Logger(),
	}

	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.pools[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate pool id: %s", spec.ID)
		}

		supported := make(map[signal.StrategyTag]bool, len(spec.SupportedStrategies))
		for _, tag := range spec.SupportedStrategies {
			supported[tag] = true
		}

		r.pools[spec.ID] = &entry{state: Snapshot{
			ID:                     spec.ID,
			Kind:                   spec.Kind,
			Balance:                spec.Balance,
			MaxPositionSize:        spec.MaxPositionSize,
			MaxDailyLoss:           spec.MaxDailyLoss,
			MaxExposurePct:         spec.MaxExposurePct,
			MaxConcurrentPositions: spec.MaxConcurrentPositions,
			SupportedStrategies:    supported,
		}}
		r.ids = append(r.ids, spec.ID)

		r.logger.Info().
			Str("pool_id", spec.ID).
			Str("kind", string(spec.Kind)).
			Float64("balance", spec.Balance).
			Msg("Capital pool registered")
	}

	sort.Strings(r.ids)
	return r, nil
}

// Snapshot returns a copy of the pool's current state
func (r *Registry) Snapshot(poolID string) (Snapshot, error) {
	e, ok := r.pools[poolID]
	if !ok {
		return Snapshot{}, fmt.Errorf("pool not found: %s", poolID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSnapshot(e.state), nil
}

// Snapshots returns copies of every pool's state, ordered by pool id
func (r *Registry) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(r.ids))
	for _, id := range r.ids {
		e := r.pools[id]
		e.mu.Lock()
		out = append(out, cloneSnapshot(e.state))
		e.mu.Unlock()
	}
	return out
}

// ApplyDelta commits a position delta to a pool. The limits are re-validated
// under the pool lock and the commit fails closed: if the delta would push
// the pool over any limit, nothing changes and a *LimitViolation is returned.
func (r *Registry) ApplyDelta(poolID string, d Delta) error {
	e, ok := r.pools[poolID]
	if !ok {
		return fmt.Errorf("pool not found: %s", poolID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state
	next.CurrentExposure += d.Notional
	next.OpenPositions += d.Positions
	next.DailyRealizedLoss += d.RealizedLoss

	if rule := validateCounters(next); rule != "" {
		r.logger.Error().
			Str("pool_id", poolID).
			Str("rule", rule).
			Float64("delta_notional", d.Notional).
			Msg("Commit-time limit re-check failed; selection raced a concurrent execution")
		return &LimitViolation{PoolID: poolID, Rule: rule}
	}

	e.state = next
	r.logger.Debug().
		Str("pool_id", poolID).
		Float64("exposure", next.CurrentExposure).
		Int("open_positions", next.OpenPositions).
		Msg("Pool delta committed")
	return nil
}

// validateCounters checks the post-delta counters against the pool's limits,
// returning the violated rule or "" when the state is consistent
func validateCounters(s Snapshot) string {
	if s.CurrentExposure < 0 {
		return fmt.Sprintf("exposure would go negative (%.2f)", s.CurrentExposure)
	}
	if s.OpenPositions < 0 {
		return fmt.Sprintf("open positions would go negative (%d)", s.OpenPositions)
	}
	if s.CurrentExposure > s.ExposureLimit() {
		return fmt.Sprintf("exposure %.2f exceeds limit %.2f", s.CurrentExposure, s.ExposureLimit())
	}
	if s.OpenPositions > s.MaxConcurrentPositions {
		return fmt.Sprintf("open positions %d exceed limit %d", s.OpenPositions, s.MaxConcurrentPositions)
	}
	// Same boundary as the selection-time Fits check: at the budget means
	// halted.
	if s.DailyRealizedLoss >= s.MaxDailyLoss {
		return fmt.Sprintf("daily loss %.2f at limit %.2f", s.DailyRealizedLoss, s.MaxDailyLoss)
	}
	return ""
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := s
	out.SupportedStrategies = make(map[signal.StrategyTag]bool, len(s.SupportedStrategies))
	for tag := range s.SupportedStrategies {
		out.SupportedStrategies[tag] = true
	}
	return out
}

// PortfolioSummary aggregates exposure across all pools for the operator API
type PortfolioSummary struct {
	TotalPools        int        `json:"total_pools"`
	TotalBalance      float64    `json:"total_balance"`
	TotalExposure     float64    `json:"total_exposure"`
	TotalOpenPosition int        `json:"total_open_positions"`
	DailyRealizedLoss float64    `json:"daily_realized_loss"`
	Pools             []Snapshot `json:"pools"`
}

// Portfolio returns a cross-pool summary, ordered by pool id
func (r *Registry) Portfolio() PortfolioSummary {
	snaps := r.Snapshots()
	sum := PortfolioSummary{TotalPools: len(snaps), Pools: snaps}
	for _, s := range snaps {
		sum.TotalBalance += s.Balance
		sum.TotalExposure += s.CurrentExposure
		sum.TotalOpenPosition += s.OpenPositions
		sum.DailyRealizedLoss += s.DailyRealizedLoss
	}
	return sum
}
