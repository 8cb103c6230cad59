package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"solana-trading-engine/internal/events"
	"solana-trading-engine/internal/execution"
	"solana-trading-engine/internal/pool"
	"solana-trading-engine/internal/risk"
	"solana-trading-engine/internal/selector"
	"solana-trading-engine/internal/signal"
)

func testPools(t *testing.T) *pool.Registry {
	t.Helper()
	specs := []pool.Spec{
		{
			ID: "primary", Kind: pool.KindPrimary,
			Balance: 20000, MaxPositionSize: 10000, MaxDailyLoss: 1000,
			MaxExposurePct: 80, MaxConcurrentPositions: 10,
			SupportedStrategies: []signal.StrategyTag{signal.StrategyArbitrage},
		},
		{
			ID: "conservative", Kind: pool.KindConservative,
			Balance: 5000, MaxPositionSize: 1000, MaxDailyLoss: 100,
			MaxExposurePct: 20, MaxConcurrentPositions: 3,
			SupportedStrategies: []signal.StrategyTag{signal.StrategyMomentumTrading},
		},
	}
	r, err := pool.NewRegistry(specs, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return r
}

func testOrchestrator(t *testing.T, reg *pool.Registry) *Orchestrator {
	t.Helper()
	nop := zerolog.Nop()
	bus := events.NewBus()
	stop := risk.NewEmergencyStop()
	adm := risk.NewAdmissionController(risk.Policy{MinConfidence: 0.6, MaxSignalNotional: 50000}, stop, nop)
	sel := selector.New(reg, "", nop)
	venue := execution.NewSimulatedVenue()
	venue.Latency = time.Millisecond
	eng := execution.NewEngine(venue, reg, stop, bus, execution.Config{LatencyBudget: time.Second}, nop)
	return New(adm, sel, eng, bus, Config{QueueSize: 16, Workers: 4}, nop)
}

func newSignal(strategy signal.StrategyTag, quantity, price, confidence float64) signal.TradingSignal {
	s := signal.New("SOL/USDC", signal.ActionBuy, strategy, quantity, price, confidence)
	return s
}

func collect(t *testing.T, o *Orchestrator, n int) []execution.Result {
	t.Helper()
	out := make([]execution.Result, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case res, ok := <-o.Results():
			if !ok {
				t.Fatalf("result stream closed after %d of %d results", len(out), n)
			}
			out = append(out, res)
		case <-deadline:
			t.Fatalf("timed out waiting for results: got %d of %d", len(out), n)
		}
	}
	return out
}

func TestPipelineConfirmsAdmittedSignal(t *testing.T) {
	reg := testPools(t)
	o := testOrchestrator(t, reg)
	o.Start(context.Background())
	defer o.Stop()

	if !o.Submit(newSignal(signal.StrategyArbitrage, 500, 2.5025, 0.9)) {
		t.Fatal("submit should succeed on an empty queue")
	}
	res := collect(t, o, 1)[0]

	if res.Status != execution.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s (%s)", res.Status, res.Reason)
	}
	if res.PoolID != "primary" {
		t.Errorf("expected routing to primary, got %s", res.PoolID)
	}
}

// Seed scenario: two concurrent signals that both fit the conservative pool's
// remaining headroom individually, but not together. Exactly one confirms;
// the loser is refused at selection or at the commit-time re-check, never
// both committed.
func TestConcurrentSignalsNeverOverrunPoolLimit(t *testing.T) {
	reg := testPools(t)
	o := testOrchestrator(t, reg)
	o.Start(context.Background())
	defer o.Stop()

	// conservative exposure limit is 1000; each signal is 600 notional.
	for i := 0; i < 2; i++ {
		if !o.Submit(newSignal(signal.StrategyMomentumTrading, 300, 2, 0.9)) {
			t.Fatal("submit failed")
		}
	}
	results := collect(t, o, 2)

	confirmed := 0
	for _, res := range results {
		switch res.Status {
		case execution.StatusConfirmed:
			confirmed++
		case execution.StatusNoEligiblePool, execution.StatusVenueFailed:
		default:
			t.Errorf("unexpected terminal status %s (%s)", res.Status, res.Reason)
		}
	}
	if confirmed != 1 {
		t.Errorf("expected exactly one confirmation, got %d", confirmed)
	}

	snap, _ := reg.Snapshot("conservative")
	if snap.CurrentExposure != 600 || snap.OpenPositions != 1 {
		t.Errorf("pool overrun: exposure=%f positions=%d", snap.CurrentExposure, snap.OpenPositions)
	}
}

func TestEverySignalGetsExactlyOneResult(t *testing.T) {
	reg := testPools(t)
	o := testOrchestrator(t, reg)
	o.Start(context.Background())

	const n = 40
	submitted := 0
	for i := 0; i < n; i++ {
		// Mix of confirmable, low-confidence and unroutable signals.
		var sig signal.TradingSignal
		switch i % 3 {
		case 0:
			sig = newSignal(signal.StrategyArbitrage, 10, 2, 0.9)
		case 1:
			sig = newSignal(signal.StrategyArbitrage, 10, 2, 0.3)
		default:
			sig = newSignal(signal.StrategyMemeCoin, 10, 2, 0.9)
		}
		if o.Submit(sig) {
			submitted++
		}
	}

	results := collect(t, o, submitted)
	o.Stop()

	seen := make(map[string]int)
	for _, res := range results {
		seen[res.SignalID]++
		if !res.Status.Terminal() {
			t.Errorf("non-terminal status %s for %s", res.Status, res.SignalID)
		}
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("signal %s produced %d results", id, count)
		}
	}
}

func TestRejectedSignalLeavesPoolsUntouched(t *testing.T) {
	reg := testPools(t)
	o := testOrchestrator(t, reg)
	o.Start(context.Background())
	defer o.Stop()

	o.Submit(newSignal(signal.StrategyArbitrage, 500, 2.5025, 0.3))
	res := collect(t, o, 1)[0]

	if res.Status != execution.StatusRiskRejected {
		t.Fatalf("expected RISK_REJECTED, got %s", res.Status)
	}
	if reg.Portfolio().TotalExposure != 0 {
		t.Error("rejected signal must not touch pool counters")
	}
}

func TestUnroutableSignalGetsNoEligiblePool(t *testing.T) {
	reg := testPools(t)
	o := testOrchestrator(t, reg)
	o.Start(context.Background())
	defer o.Stop()

	// Notional 25000 exceeds every pool's max position size.
	o.Submit(newSignal(signal.StrategyArbitrage, 10000, 2.5, 0.9))
	res := collect(t, o, 1)[0]

	if res.Status != execution.StatusNoEligiblePool {
		t.Fatalf("expected NO_ELIGIBLE_POOL, got %s", res.Status)
	}
}

func TestSubmitDropsWhenQueueStaysFull(t *testing.T) {
	reg := testPools(t)
	nop := zerolog.Nop()
	bus := events.NewBus()
	stop := risk.NewEmergencyStop()
	adm := risk.NewAdmissionController(risk.Policy{MinConfidence: 0.6, MaxSignalNotional: 50000}, stop, nop)
	sel := selector.New(reg, "", nop)
	venue := execution.NewSimulatedVenue()
	eng := execution.NewEngine(venue, reg, stop, bus, execution.Config{LatencyBudget: time.Second}, nop)

	// No workers started: the queue can only fill up.
	o := New(adm, sel, eng, bus, Config{QueueSize: 1, SubmitWait: 5 * time.Millisecond}, nop)

	dropped := make(chan events.Event, 1)
	bus.Subscribe(events.EventBackpressureDrop, func(e events.Event) { dropped <- e })

	if !o.Submit(newSignal(signal.StrategyArbitrage, 10, 2, 0.9)) {
		t.Fatal("first submit should fill the queue")
	}
	if o.Submit(newSignal(signal.StrategyArbitrage, 10, 2, 0.9)) {
		t.Fatal("second submit should drop after the bounded wait")
	}

	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("backpressure drop was not audited")
	}

	stats := o.Snapshot()
	if stats.Dropped != 1 || stats.Received != 1 {
		t.Errorf("unexpected counters: received=%d dropped=%d", stats.Received, stats.Dropped)
	}
}

func TestStatsTrackOutcomes(t *testing.T) {
	reg := testPools(t)
	o := testOrchestrator(t, reg)
	o.Start(context.Background())

	o.Submit(newSignal(signal.StrategyArbitrage, 10, 2, 0.9))  // confirmed
	o.Submit(newSignal(signal.StrategyArbitrage, 10, 2, 0.2))  // risk rejected
	o.Submit(newSignal(signal.StrategyMemeCoin, 10, 2, 0.9))   // no eligible pool
	collect(t, o, 3)
	o.Stop()

	stats := o.Snapshot()
	if stats.Confirmed != 1 || stats.RiskRejected != 1 || stats.NoEligiblePool != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.ByPool["primary"] != 1 {
		t.Errorf("expected one confirmation on primary, got %d", stats.ByPool["primary"])
	}
	if stats.ByStrategy["ARBITRAGE"] != 1 {
		t.Errorf("expected one ARBITRAGE routing, got %d", stats.ByStrategy["ARBITRAGE"])
	}
}
