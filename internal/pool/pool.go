// Package pool implements the capital pool registry: isolated capital
// allocations ("wallets") with their own risk limits and exposure counters.
package pool

import (
	"fmt"

	"solana-trading-engine/internal/signal"
)

// Kind classifies a pool by purpose
type Kind string

const (
	KindPrimary      Kind = "PRIMARY"
	KindHFT          Kind = "HFT"
	KindConservative Kind = "CONSERVATIVE"
	KindExperimental Kind = "EXPERIMENTAL"
	KindArbitrage    Kind = "ARBITRAGE"
	KindMEVProtected Kind = "MEV_PROTECTED"
	KindEmergency    Kind = "EMERGENCY"
)

// ParseKind converts a string to a pool Kind
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPrimary, KindHFT, KindConservative, KindExperimental,
		KindArbitrage, KindMEVProtected, KindEmergency:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown pool kind: %q", s)
}

// Spec is the startup-time definition of a capital pool
type Spec struct {
	ID                     string
	Kind                   Kind
	Balance                float64
	MaxPositionSize        float64
	MaxDailyLoss           float64 // daily loss budget; the pool halts once realized loss reaches it
	MaxExposurePct         float64 // percent of balance, 0-100
	MaxConcurrentPositions int
	SupportedStrategies    []signal.StrategyTag
}

// Validate checks a pool spec at startup; an invalid spec is fatal
func (s Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("pool id is empty")
	}
	if _, err := ParseKind(string(s.Kind)); err != nil {
		return fmt.Errorf("pool %s: %w", s.ID, err)
	}
	if s.Balance < 0 {
		return fmt.Errorf("pool %s: negative balance", s.ID)
	}
	if s.MaxPositionSize <= 0 {
		return fmt.Errorf("pool %s: max_position_size must be positive", s.ID)
	}
	if s.MaxDailyLoss <= 0 {
		return fmt.Errorf("pool %s: max_daily_loss must be positive", s.ID)
	}
	if s.MaxExposurePct <= 0 || s.MaxExposurePct > 100 {
		return fmt.Errorf("pool %s: max_exposure_pct must be in (0,100]", s.ID)
	}
	if s.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("pool %s: max_concurrent_positions must be positive", s.ID)
	}
	if len(s.SupportedStrategies) == 0 {
		return fmt.Errorf("pool %s: no supported strategies", s.ID)
	}
	for _, tag := range s.SupportedStrategies {
		if _, err := signal.ParseStrategyTag(string(tag)); err != nil {
			return fmt.Errorf("pool %s: %w", s.ID, err)
		}
	}
	return nil
}

// Snapshot is a point-in-time copy of a pool's configuration and counters.
// Snapshots are advisory: the commit-time check in ApplyDelta is the system
// of record.
type Snapshot struct {
	ID                     string                       `json:"id"`
	Kind                   Kind                         `json:"kind"`
	Balance                float64                      `json:"balance"`
	MaxPositionSize        float64                      `json:"max_position_size"`
	MaxDailyLoss           float64                      `json:"max_daily_loss"`
	MaxExposurePct         float64                      `json:"max_exposure_pct"`
	MaxConcurrentPositions int                          `json:"max_concurrent_positions"`
	SupportedStrategies    map[signal.StrategyTag]bool  `json:"supported_strategies"`
	CurrentExposure        float64                      `json:"current_exposure"`
	OpenPositions          int                          `json:"open_positions"`
	DailyRealizedLoss      float64                      `json:"daily_realized_loss"`
}

// Supports reports whether the pool accepts the given strategy tag
func (s Snapshot) Supports(tag signal.StrategyTag) bool {
	return s.SupportedStrategies[tag]
}

// ExposureLimit returns the absolute exposure ceiling for the pool
func (s Snapshot) ExposureLimit() float64 {
	return s.Balance * s.MaxExposurePct / 100
}

// RelativeExposure returns current exposure as a fraction of the exposure
// limit, used for ranking (lower means more headroom)
func (s Snapshot) RelativeExposure() float64 {
	limit := s.ExposureLimit()
	if limit <= 0 {
		return 1
	}
	return s.CurrentExposure / limit
}

// Fits reports whether adding the given notional would keep the pool inside
// all of its limits, with the failing rule when it would not
func (s Snapshot) Fits(notional float64) (bool, string) {
	if notional > s.MaxPositionSize {
		return false, fmt.Sprintf("notional %.2f exceeds max position size %.2f", notional, s.MaxPositionSize)
	}
	if s.CurrentExposure+notional > s.ExposureLimit() {
		return false, fmt.Sprintf("projected exposure %.2f exceeds limit %.2f", s.CurrentExposure+notional, s.ExposureLimit())
	}
	if s.OpenPositions >= s.MaxConcurrentPositions {
		return false, fmt.Sprintf("open positions at limit (%d/%d)", s.OpenPositions, s.MaxConcurrentPositions)
	}
	if s.DailyRealizedLoss >= s.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss %.2f at limit %.2f", s.DailyRealizedLoss, s.MaxDailyLoss)
	}
	return true, ""
}

// Delta is the position change applied to a pool when an execution confirms.
// RealizedLoss is positive when the trade closed a prior position at a loss.
type Delta struct {
	Notional     float64
	Positions    int
	RealizedLoss float64
}
