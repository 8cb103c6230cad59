// Package pipeline wires admission, pool selection and execution into a
// bounded concurrent flow: signals in, exactly one terminal result out per
// accepted signal.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-trading-engine/internal/events"
	"solana-trading-engine/internal/execution"
	"solana-trading-engine/internal/risk"
	"solana-trading-engine/internal/selector"
	"solana-trading-engine/internal/signal"
)

// Config bounds the pipeline's queues and worker pool
type Config struct {
	QueueSize  int           // signal intake buffer
	ResultSize int           // result buffer consumed by sinks
	Workers    int           // concurrent signal processors
	SubmitWait time.Duration // how long Submit blocks on a full queue before dropping
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.ResultSize <= 0 {
		c.ResultSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.SubmitWait <= 0 {
		c.SubmitWait = 10 * time.Millisecond
	}
	return c
}

// Stats are the pipeline's running counters, snapshot for the operator API
type Stats struct {
	Received         int64            `json:"received"`
	Dropped          int64            `json:"dropped"`
	Admitted         int64            `json:"admitted"`
	RiskRejected     int64            `json:"risk_rejected"`
	NoEligiblePool   int64            `json:"no_eligible_pool"`
	Confirmed        int64            `json:"confirmed"`
	TimedOut         int64            `json:"timed_out"`
	VenueFailed      int64            `json:"venue_failed"`
	ByPool           map[string]int64 `json:"by_pool"`
	ByStrategy       map[string]int64 `json:"by_strategy"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	totalLatencyMs   int64
	executedSignals  int64
}

// Orchestrator runs the signal pipeline. Signals enter through Submit, flow
// through bounded channels to a fixed worker pool, and leave as exactly one
// Result each on the Results channel.
type Orchestrator struct {
	admission *risk.AdmissionController
	selector  *selector.Selector
	engine    *execution.Engine
	bus       *events.Bus
	cfg       Config
	logger    zerolog.Logger

	signals chan signal.TradingSignal
	results chan execution.Result

	statsMu sync.Mutex
	stats   Stats

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a pipeline orchestrator
func New(admission *risk.AdmissionController, sel *selector.Selector, engine *execution.Engine, bus *events.Bus, cfg Config, logger zerolog.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		admission: admission,
		selector:  sel,
		engine:    engine,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With().Str("component", "pipeline").Logger(),
		signals:   make(chan signal.TradingSignal, cfg.QueueSize),
		results:   make(chan execution.Result, cfg.ResultSize),
		stats: Stats{
			ByPool:     make(map[string]int64),
			ByStrategy: make(map[string]int64),
		},
	}
}

// Start launches the worker pool. Workers exit when the signal queue is
// closed by Stop or when ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.logger.Info().
		Int("workers", o.cfg.Workers).
		Int("queue_size", o.cfg.QueueSize).
		Msg("Pipeline started")

	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx)
	}
}

func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()
	for sig := range o.signals {
		res := o.process(ctx, sig)
		select {
		case o.results <- res:
		case <-ctx.Done():
			o.logger.Warn().Str("signal_id", res.SignalID).Msg("Result dropped during shutdown")
			return
		}
	}
}

// Submit offers a signal to the pipeline. On a full queue it blocks for the
// configured bounded wait, then drops the signal with an audit record. A
// dropped signal never entered the pipeline and produces no result.
func (o *Orchestrator) Submit(sig signal.TradingSignal) bool {
	select {
	case o.signals <- sig:
		o.bump(func(s *Stats) { s.Received++ })
		return true
	default:
	}

	timer := time.NewTimer(o.cfg.SubmitWait)
	defer timer.Stop()
	select {
	case o.signals <- sig:
		o.bump(func(s *Stats) { s.Received++ })
		return true
	case <-timer.C:
		o.logger.Warn().
			Str("signal_id", sig.ID).
			Int("queue_depth", len(o.signals)).
			Msg("Signal dropped: intake queue full past bounded wait")
		o.bus.PublishBackpressureDrop(sig.ID, len(o.signals))
		o.bump(func(s *Stats) { s.Dropped++ })
		return false
	}
}

// Results exposes the terminal result stream for sinks
func (o *Orchestrator) Results() <-chan execution.Result {
	return o.results
}

// Stop closes the intake, drains the workers and closes the result stream.
// Safe to call more than once.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.signals)
		o.wg.Wait()
		close(o.results)
		o.logger.Info().Msg("Pipeline stopped")
	})
}

// process takes one signal to its terminal state
func (o *Orchestrator) process(ctx context.Context, sig signal.TradingSignal) execution.Result {
	if ok, reason := o.admission.Admit(sig); !ok {
		o.bus.PublishSignalRejected(sig.ID, reason)
		o.bump(func(s *Stats) { s.RiskRejected++ })
		return execution.Result{
			SignalID:  sig.ID,
			Status:    execution.StatusRiskRejected,
			Reason:    reason,
			Timestamp: time.Now().UTC(),
		}
	}
	o.bus.PublishSignalAdmitted(sig.ID, string(sig.Strategy), sig.Confidence, sig.Notional())
	o.bump(func(s *Stats) { s.Admitted++ })

	sel, err := o.selector.Select(sig)
	if err != nil {
		if !errors.Is(err, selector.ErrNoEligiblePool) {
			o.logger.Error().Err(err).Str("signal_id", sig.ID).Msg("Selection failed")
		}
		o.bus.PublishNoEligiblePool(sig.ID, string(sig.Strategy), sig.Notional())
		o.bump(func(s *Stats) { s.NoEligiblePool++ })
		return execution.Result{
			SignalID:  sig.ID,
			Status:    execution.StatusNoEligiblePool,
			Reason:    "no pool supports this signal within limits",
			Timestamp: time.Now().UTC(),
		}
	}
	o.bus.PublishPoolSelected(sig.ID, sel.PoolID, sel.Reason)

	res := o.engine.Execute(ctx, sig, sel.PoolID, sel.Kind)
	o.record(sig, res)
	return res
}

func (o *Orchestrator) record(sig signal.TradingSignal, res execution.Result) {
	o.bump(func(s *Stats) {
		switch res.Status {
		case execution.StatusConfirmed:
			s.Confirmed++
			s.ByPool[res.PoolID]++
			s.ByStrategy[string(sig.Strategy)]++
		case execution.StatusTimedOut:
			s.TimedOut++
		case execution.StatusVenueFailed:
			s.VenueFailed++
		case execution.StatusRiskRejected:
			s.RiskRejected++
		}
		s.totalLatencyMs += res.LatencyMs
		s.executedSignals++
	})
}

func (o *Orchestrator) bump(fn func(*Stats)) {
	o.statsMu.Lock()
	fn(&o.stats)
	o.statsMu.Unlock()
}

// Snapshot returns a copy of the running counters
func (o *Orchestrator) Snapshot() Stats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	out := o.stats
	out.ByPool = make(map[string]int64, len(o.stats.ByPool))
	for k, v := range o.stats.ByPool {
		out.ByPool[k] = v
	}
	out.ByStrategy = make(map[string]int64, len(o.stats.ByStrategy))
	for k, v := range o.stats.ByStrategy {
		out.ByStrategy[k] = v
	}
	if out.executedSignals > 0 {
		out.AvgLatencyMs = float64(out.totalLatencyMs) / float64(out.executedSignals)
	}
	return out
}
