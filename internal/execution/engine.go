package execution

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"solana-trading-engine/internal/events"
	"solana-trading-engine/internal/pool"
	"solana-trading-engine/internal/risk"
	"solana-trading-engine/internal/signal"
)

// State tracks a signal's progress through the engine. Transitions are
// one-way: a signal that reaches a terminal status is never resubmitted.
type State string

const (
	StateReceived        State = "RECEIVED"
	StateConfidenceGated State = "CONFIDENCE_GATED"
	StateExecuting       State = "EXECUTING"
)

// Config holds the engine's execution parameters
type Config struct {
	// LatencyBudget bounds how long the engine waits for a venue fill before
	// declaring the signal timed out. The venue call itself is not cancelled.
	LatencyBudget time.Duration

	// KindConfidenceFloors optionally raises the confidence bar per pool
	// kind, on top of the global admission floor. Experimental and emergency
	// pools typically demand more conviction.
	KindConfidenceFloors map[pool.Kind]float64
}

// Engine executes routed signals against a venue and commits confirmed fills
// to the pool registry. Exactly one Result is returned per call.
type Engine struct {
	venue    Venue
	registry *pool.Registry
	stop     *risk.EmergencyStop
	bus      *events.Bus
	cfg      Config
	logger   zerolog.Logger
}

// NewEngine creates an execution engine
func NewEngine(venue Venue, registry *pool.Registry, stop *risk.EmergencyStop, bus *events.Bus, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.LatencyBudget <= 0 {
		cfg.LatencyBudget = 25 * time.Millisecond
	}
	return &Engine{
		venue:    venue,
		registry: registry,
		stop:     stop,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With().Str("component", "execution_engine").Logger(),
	}
}

// venueOutcome carries the venue response across the timeout boundary
type venueOutcome struct {
	fill Fill
	err  error
}

// Execute runs a routed signal to its terminal state. The signal has already
// passed admission and pool selection; this method applies the pool-kind
// confidence gate, re-checks the emergency stop, submits to the venue within
// the latency budget, and commits the fill. The commit-time limit re-check in
// the registry is authoritative: a violation there voids the selection.
func (e *Engine) Execute(ctx context.Context, sig signal.TradingSignal, poolID string, kind pool.Kind) Result {
	start := time.Now()
	log := e.logger.With().Str("signal_id", sig.ID).Str("pool_id", poolID).Logger()
	log.Debug().Str("state", string(StateReceived)).Msg("Signal entered execution")

	if floor, ok := e.cfg.KindConfidenceFloors[kind]; ok && sig.Confidence < floor {
		log.Info().
			Str("state", string(StateConfidenceGated)).
			Float64("confidence", sig.Confidence).
			Float64("floor", floor).
			Msg("Signal below pool-kind confidence floor")
		return e.terminal(Result{
			SignalID:  sig.ID,
			PoolID:    poolID,
			Status:    StatusRiskRejected,
			Reason:    "confidence below pool-kind floor",
			LatencyMs: time.Since(start).Milliseconds(),
		})
	}
	log.Debug().Str("state", string(StateConfidenceGated)).Msg("Confidence gate passed")

	// Last check before capital can move. In-flight venue calls are never
	// interrupted by the stop, only new ones are refused.
	if e.stop.Engaged() {
		log.Warn().Msg("Emergency stop engaged before execution")
		return e.terminal(Result{
			SignalID:  sig.ID,
			PoolID:    poolID,
			Status:    StatusRiskRejected,
			Reason:    "emergency stop",
			LatencyMs: time.Since(start).Milliseconds(),
		})
	}

	log.Debug().Str("state", string(StateExecuting)).Msg("Submitting to venue")
	intent := TradeIntent{
		SignalID: sig.ID,
		PoolID:   poolID,
		Symbol:   sig.Symbol,
		Action:   sig.Action,
		Quantity: sig.Quantity,
		Price:    sig.TargetPrice,
	}

	// Submit on the parent context, not a deadline context. The budget bounds
	// how long we wait for the answer; the submission itself may already be
	// on the wire and cancelling it would not undo that.
	outcome := make(chan venueOutcome, 1)
	go func() {
		fill, err := e.venue.Submit(ctx, intent)
		outcome <- venueOutcome{fill: fill, err: err}
	}()

	timer := time.NewTimer(e.cfg.LatencyBudget)
	defer timer.Stop()

	select {
	case out := <-outcome:
		if out.err != nil {
			log.Warn().Err(out.err).Msg("Venue rejected or failed the order")
			e.bus.PublishVenueFailed(sig.ID, poolID, out.err.Error())
			return e.terminal(Result{
				SignalID:  sig.ID,
				PoolID:    poolID,
				Status:    StatusVenueFailed,
				Reason:    out.err.Error(),
				LatencyMs: time.Since(start).Milliseconds(),
			})
		}
		return e.commit(sig, poolID, out.fill, start, log)

	case <-timer.C:
		log.Warn().
			Dur("budget", e.cfg.LatencyBudget).
			Msg("Venue call exceeded latency budget; result abandoned, submission not cancelled")
		e.bus.PublishExecutionTimedOut(sig.ID, poolID, e.cfg.LatencyBudget.Milliseconds())
		go e.drainLate(sig.ID, poolID, outcome)
		return e.terminal(Result{
			SignalID:  sig.ID,
			PoolID:    poolID,
			Status:    StatusTimedOut,
			Reason:    "venue response exceeded latency budget",
			LatencyMs: time.Since(start).Milliseconds(),
		})

	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Msg("Execution context cancelled while waiting on venue")
		go e.drainLate(sig.ID, poolID, outcome)
		return e.terminal(Result{
			SignalID:  sig.ID,
			PoolID:    poolID,
			Status:    StatusTimedOut,
			Reason:    "cancelled while waiting on venue",
			LatencyMs: time.Since(start).Milliseconds(),
		})
	}
}

// commit applies the fill to the pool under the registry's commit-time
// re-check. A limit violation here means selection raced another execution:
// the fill is reported as a venue-class failure and the pool stays untouched.
func (e *Engine) commit(sig signal.TradingSignal, poolID string, fill Fill, start time.Time, log zerolog.Logger) Result {
	notional := fill.Quantity * fill.Price
	err := e.registry.ApplyDelta(poolID, pool.Delta{Notional: notional, Positions: 1})
	if err != nil {
		var lv *pool.LimitViolation
		if errors.As(err, &lv) {
			log.Error().
				Str("rule", lv.Rule).
				Float64("notional", notional).
				Msg("Commit-time limit violation after fill")
			e.bus.PublishLimitViolation(sig.ID, poolID, lv.Rule)
		} else {
			log.Error().Err(err).Msg("Pool commit failed after fill")
		}
		e.bus.PublishVenueFailed(sig.ID, poolID, err.Error())
		return e.terminal(Result{
			SignalID:  sig.ID,
			PoolID:    poolID,
			Status:    StatusVenueFailed,
			Reason:    err.Error(),
			LatencyMs: time.Since(start).Milliseconds(),
		})
	}

	latency := time.Since(start).Milliseconds()
	log.Info().
		Str("transaction_id", fill.TransactionID).
		Float64("executed_price", fill.Price).
		Float64("fees", fill.Fees).
		Int64("latency_ms", latency).
		Msg("Execution confirmed")
	e.bus.PublishExecutionConfirmed(sig.ID, poolID, fill.TransactionID, fill.Price, fill.Fees, latency)

	return e.terminal(Result{
		SignalID:         sig.ID,
		PoolID:           poolID,
		TransactionID:    fill.TransactionID,
		Status:           StatusConfirmed,
		ExecutedQuantity: fill.Quantity,
		ExecutedPrice:    fill.Price,
		Fees:             fill.Fees,
		LatencyMs:        latency,
	})
}

// drainLate consumes a venue answer that arrived after the wait was
// abandoned. The outcome is logged and discarded: the signal already has its
// terminal result and pool counters must not change behind it.
func (e *Engine) drainLate(signalID, poolID string, outcome <-chan venueOutcome) {
	out := <-outcome
	if out.err != nil {
		e.logger.Debug().
			Str("signal_id", signalID).
			Str("pool_id", poolID).
			Err(out.err).
			Msg("Late venue answer after timeout: error")
		return
	}
	e.logger.Warn().
		Str("signal_id", signalID).
		Str("pool_id", poolID).
		Str("transaction_id", out.fill.TransactionID).
		Msg("Late fill arrived after timeout; reconcile against venue records")
}

func (e *Engine) terminal(r Result) Result {
	r.Timestamp = time.Now().UTC()
	return r
}
