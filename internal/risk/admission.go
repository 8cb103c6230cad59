// Package risk implements the admission gate a signal must pass before any
// capital pool is considered, plus the global emergency stop flag.
package risk

import (
	"fmt"

	"github.com/rs/zerolog"

	"solana-trading-engine/internal/signal"
)

// Policy holds the global risk thresholds. It is read-only at pipeline run
// time; reloading happens only at controlled checkpoints.
type Policy struct {
	MinConfidence     float64
	MaxSignalNotional float64
}

// Validate checks the policy at startup
func (p Policy) Validate() error {
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0,1], got %f", p.MinConfidence)
	}
	if p.MaxSignalNotional <= 0 {
		return fmt.Errorf("max_signal_notional must be positive, got %f", p.MaxSignalNotional)
	}
	return nil
}

// AdmissionController validates signals against the global policy. It is a
// pure function over signal + policy: it never reads or mutates pool state,
// so decisions are deterministic and replayable.
type AdmissionController struct {
	policy Policy
	stop   *EmergencyStop
	logger zerolog.Logger
}

// NewAdmissionController creates an admission controller
func NewAdmissionController(policy Policy, stop *EmergencyStop, logger zerolog.Logger) *AdmissionController {
	return &AdmissionController{
		policy: policy,
		stop:   stop,
		logger: logger.With().Str("component", "admission").Logger(),
	}
}

// Admit checks a signal against the global policy. The checks run in a fixed
// order and short-circuit on the first failure; the returned reason is empty
// when the signal is admitted.
func (a *AdmissionController) Admit(sig signal.TradingSignal) (bool, string) {
	if a.stop.Engaged() {
		reason := "emergency stop"
		if r := a.stop.Reason(); r != "" {
			reason = fmt.Sprintf("emergency stop: %s", r)
		}
		a.logger.Warn().Str("signal_id", sig.ID).Msg("Signal rejected: emergency stop engaged")
		return false, reason
	}

	if sig.Confidence < a.policy.MinConfidence {
		reason := fmt.Sprintf("confidence %.2f below minimum %.2f", sig.Confidence, a.policy.MinConfidence)
		a.logger.Info().Str("signal_id", sig.ID).Float64("confidence", sig.Confidence).Msg("Signal rejected: confidence below floor")
		return false, reason
	}

	if notional := sig.Notional(); notional > a.policy.MaxSignalNotional {
		reason := fmt.Sprintf("notional %.2f exceeds maximum %.2f", notional, a.policy.MaxSignalNotional)
		a.logger.Info().Str("signal_id", sig.ID).Float64("notional", notional).Msg("Signal rejected: notional over policy cap")
		return false, reason
	}

	if err := sig.Validate(); err != nil {
		a.logger.Info().Str("signal_id", sig.ID).Err(err).Msg("Signal rejected: malformed")
		return false, fmt.Sprintf("malformed signal: %v", err)
	}

	return true, ""
}

// Policy returns the active policy
func (a *AdmissionController) Policy() Policy {
	return a.policy
}
