package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newBreaker(cfg BreakerConfig) (*Breaker, *EmergencyStop) {
	stop := NewEmergencyStop()
	return NewBreaker(cfg, stop, zerolog.Nop()), stop
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b, stop := newBreaker(BreakerConfig{Enabled: true, MaxConsecutiveFailures: 3})

	b.RecordFailure()
	b.RecordFailure()
	if stop.Engaged() {
		t.Fatal("breaker tripped too early")
	}

	b.RecordFailure()
	if !stop.Engaged() {
		t.Fatal("breaker should trip on the third consecutive failure")
	}
	if !b.Tripped() {
		t.Error("breaker should report tripped")
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	b, stop := newBreaker(BreakerConfig{Enabled: true, MaxConsecutiveFailures: 3})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if stop.Engaged() {
		t.Error("interleaved success should reset the streak")
	}
}

func TestBreakerResetsAfterCooldown(t *testing.T) {
	b, stop := newBreaker(BreakerConfig{Enabled: true, MaxConsecutiveFailures: 1, Cooldown: time.Minute})

	b.RecordFailure()
	if !stop.Engaged() {
		t.Fatal("breaker should have tripped")
	}

	b.MaybeReset(time.Now().Add(30 * time.Second))
	if !stop.Engaged() {
		t.Fatal("breaker must not reset before the cooldown")
	}

	b.MaybeReset(time.Now().Add(2 * time.Minute))
	if stop.Engaged() || b.Tripped() {
		t.Error("breaker should reset after the cooldown")
	}
}

func TestCooldownLeavesOperatorStopEngaged(t *testing.T) {
	b, stop := newBreaker(BreakerConfig{Enabled: true, MaxConsecutiveFailures: 1, Cooldown: time.Minute})

	b.RecordFailure()
	if !stop.Engaged() {
		t.Fatal("breaker should have tripped")
	}

	// An operator re-engages the stop while the breaker is tripped. The
	// cooldown must not override that.
	stop.Engage("manual maintenance halt")

	b.MaybeReset(time.Now().Add(2 * time.Minute))
	if !stop.Engaged() {
		t.Fatal("cooldown cleared a stop the operator engaged")
	}
	if got := stop.Reason(); got != "manual maintenance halt" {
		t.Errorf("operator reason lost: %q", got)
	}
	if b.Tripped() {
		t.Error("breaker should still reset its own state")
	}
}

func TestCooldownSkipsManuallyClearedStop(t *testing.T) {
	b, stop := newBreaker(BreakerConfig{Enabled: true, MaxConsecutiveFailures: 1, Cooldown: time.Minute})

	b.RecordFailure()
	stop.Clear()

	b.MaybeReset(time.Now().Add(2 * time.Minute))
	if stop.Engaged() {
		t.Error("stop should remain cleared")
	}
	if b.Tripped() {
		t.Error("breaker should reset after the cooldown")
	}
}

func TestDisabledBreakerNeverTrips(t *testing.T) {
	b, stop := newBreaker(BreakerConfig{Enabled: false, MaxConsecutiveFailures: 1})

	for i := 0; i < 10; i++ {
		b.RecordFailure()
	}
	if stop.Engaged() {
		t.Error("disabled breaker must not engage the stop")
	}
}
