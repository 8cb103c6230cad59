package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"solana-trading-engine/internal/events"
	"solana-trading-engine/internal/pool"
	"solana-trading-engine/internal/risk"
	"solana-trading-engine/internal/signal"
)

// stubVenue returns a scripted outcome after an optional delay
type stubVenue struct {
	fill  Fill
	err   error
	delay time.Duration
}

func (v *stubVenue) Submit(ctx context.Context, intent TradeIntent) (Fill, error) {
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return Fill{}, ctx.Err()
		}
	}
	if v.err != nil {
		return Fill{}, v.err
	}
	fill := v.fill
	if fill.TransactionID == "" {
		fill = Fill{TransactionID: "tx-1", Quantity: intent.Quantity, Price: intent.Price, Fees: intent.Quantity * intent.Price * 0.001}
	}
	return fill, nil
}

func testRegistry(t *testing.T) *pool.Registry {
	t.Helper()
	r, err := pool.NewRegistry([]pool.Spec{{
		ID: "primary", Kind: pool.KindPrimary,
		Balance: 20000, MaxPositionSize: 10000, MaxDailyLoss: 1000,
		MaxExposurePct: 80, MaxConcurrentPositions: 10,
		SupportedStrategies: []signal.StrategyTag{signal.StrategyArbitrage},
	}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return r
}

func testEngine(t *testing.T, venue Venue, reg *pool.Registry, cfg Config) *Engine {
	t.Helper()
	return NewEngine(venue, reg, risk.NewEmergencyStop(), events.NewBus(), cfg, zerolog.Nop())
}

func arbSignal() signal.TradingSignal {
	return signal.TradingSignal{
		ID:          "sig-1",
		Symbol:      "SOL/USDC",
		Action:      signal.ActionBuy,
		Strategy:    signal.StrategyArbitrage,
		Quantity:    500,
		TargetPrice: 2.5025,
		Confidence:  0.9,
		CreatedAt:   time.Now(),
		Source:      signal.SourceLocal,
	}
}

func TestExecuteConfirmsAndCommitsFill(t *testing.T) {
	reg := testRegistry(t)
	eng := testEngine(t, &stubVenue{}, reg, Config{LatencyBudget: time.Second})

	res := eng.Execute(context.Background(), arbSignal(), "primary", pool.KindPrimary)

	if res.Status != StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s (%s)", res.Status, res.Reason)
	}
	if res.TransactionID == "" {
		t.Error("confirmed result must carry a transaction id")
	}
	if res.ExecutedQuantity != 500 || res.ExecutedPrice != 2.5025 {
		t.Errorf("unexpected fill: qty=%f price=%f", res.ExecutedQuantity, res.ExecutedPrice)
	}

	snap, _ := reg.Snapshot("primary")
	if snap.CurrentExposure != 1251.25 || snap.OpenPositions != 1 {
		t.Errorf("fill not committed: exposure=%f positions=%d", snap.CurrentExposure, snap.OpenPositions)
	}
}

// Seed scenario: a venue slower than the latency budget yields TimedOut and
// leaves pool counters untouched. The signal is never retried.
func TestExecuteTimesOutWithoutTouchingCounters(t *testing.T) {
	reg := testRegistry(t)
	venue := &stubVenue{delay: 200 * time.Millisecond}
	eng := testEngine(t, venue, reg, Config{LatencyBudget: 20 * time.Millisecond})

	res := eng.Execute(context.Background(), arbSignal(), "primary", pool.KindPrimary)

	if res.Status != StatusTimedOut {
		t.Fatalf("expected TIMED_OUT, got %s", res.Status)
	}
	snap, _ := reg.Snapshot("primary")
	if snap.CurrentExposure != 0 || snap.OpenPositions != 0 {
		t.Errorf("timeout must not move counters: exposure=%f positions=%d", snap.CurrentExposure, snap.OpenPositions)
	}

	// The late fill is drained and discarded, still no counter movement.
	time.Sleep(250 * time.Millisecond)
	snap, _ = reg.Snapshot("primary")
	if snap.CurrentExposure != 0 || snap.OpenPositions != 0 {
		t.Errorf("late fill must not move counters: exposure=%f", snap.CurrentExposure)
	}
}

func TestExecuteReportsVenueRejection(t *testing.T) {
	reg := testRegistry(t)
	venue := &stubVenue{err: errors.New("insufficient liquidity")}
	eng := testEngine(t, venue, reg, Config{LatencyBudget: time.Second})

	res := eng.Execute(context.Background(), arbSignal(), "primary", pool.KindPrimary)

	if res.Status != StatusVenueFailed {
		t.Fatalf("expected VENUE_FAILED, got %s", res.Status)
	}
	if res.Reason == "" {
		t.Error("venue failure must carry the rejection reason")
	}
	snap, _ := reg.Snapshot("primary")
	if snap.CurrentExposure != 0 {
		t.Errorf("rejected order must not move counters: exposure=%f", snap.CurrentExposure)
	}
}

func TestExecuteFailsClosedOnCommitViolation(t *testing.T) {
	reg := testRegistry(t)
	// Fill nearly all exposure headroom (limit is 16000) so the fill's commit
	// re-check fails even though selection would have passed earlier.
	if err := reg.ApplyDelta("primary", pool.Delta{Notional: 15500, Positions: 1}); err != nil {
		t.Fatalf("seeding exposure failed: %v", err)
	}
	eng := testEngine(t, &stubVenue{}, reg, Config{LatencyBudget: time.Second})

	res := eng.Execute(context.Background(), arbSignal(), "primary", pool.KindPrimary)

	if res.Status != StatusVenueFailed {
		t.Fatalf("expected VENUE_FAILED on commit violation, got %s", res.Status)
	}
	snap, _ := reg.Snapshot("primary")
	if snap.CurrentExposure != 15500 || snap.OpenPositions != 1 {
		t.Errorf("failed commit must leave counters unchanged: exposure=%f positions=%d", snap.CurrentExposure, snap.OpenPositions)
	}
}

func TestExecuteAppliesKindConfidenceFloor(t *testing.T) {
	reg := testRegistry(t)
	eng := testEngine(t, &stubVenue{}, reg, Config{
		LatencyBudget:        time.Second,
		KindConfidenceFloors: map[pool.Kind]float64{pool.KindPrimary: 0.95},
	})

	res := eng.Execute(context.Background(), arbSignal(), "primary", pool.KindPrimary)

	if res.Status != StatusRiskRejected {
		t.Fatalf("expected RISK_REJECTED below kind floor, got %s", res.Status)
	}
	snap, _ := reg.Snapshot("primary")
	if snap.CurrentExposure != 0 {
		t.Error("gated signal must not reach the venue")
	}
}

func TestExecuteRefusedWhileEmergencyStopped(t *testing.T) {
	reg := testRegistry(t)
	stop := risk.NewEmergencyStop()
	eng := NewEngine(&stubVenue{}, reg, stop, events.NewBus(), Config{LatencyBudget: time.Second}, zerolog.Nop())

	stop.Engage("operator halt")
	res := eng.Execute(context.Background(), arbSignal(), "primary", pool.KindPrimary)

	if res.Status != StatusRiskRejected {
		t.Fatalf("expected RISK_REJECTED while stopped, got %s", res.Status)
	}
	if res.Reason != "emergency stop" {
		t.Errorf("unexpected reason: %q", res.Reason)
	}
}

func TestSimulatedVenueFillsAtTargetWithFee(t *testing.T) {
	v := NewSimulatedVenue()
	v.Latency = time.Millisecond

	fill, err := v.Submit(context.Background(), TradeIntent{
		SignalID: "sig-1", Symbol: "SOL/USDC", Action: signal.ActionBuy,
		Quantity: 100, Price: 10,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if fill.Price != 10 || fill.Quantity != 100 {
		t.Errorf("paper fill should match intent: %+v", fill)
	}
	if fill.Fees != 1.0 { // 0.1% of 1000
		t.Errorf("expected 0.1%% fee, got %f", fill.Fees)
	}
	if fill.TransactionID == "" {
		t.Error("expected a simulated transaction id")
	}
}
