// Package execution turns a routed signal into exactly one terminal result.
package execution

import "time"

// Status is the terminal outcome of a signal
type Status string

const (
	StatusConfirmed      Status = "CONFIRMED"
	StatusRiskRejected   Status = "RISK_REJECTED"
	StatusNoEligiblePool Status = "NO_ELIGIBLE_POOL"
	StatusTimedOut       Status = "TIMED_OUT"
	StatusVenueFailed    Status = "VENUE_FAILED"
)

// Result is the single terminal record produced for every signal that enters
// the pipeline. SignalID is the idempotency key downstream: the persistence
// sink writes at most one row per signal.
type Result struct {
	SignalID         string    `json:"signal_id"`
	PoolID           string    `json:"pool_id,omitempty"`
	TransactionID    string    `json:"transaction_id,omitempty"`
	Status           Status    `json:"status"`
	ExecutedQuantity float64   `json:"executed_quantity,omitempty"`
	ExecutedPrice    float64   `json:"executed_price,omitempty"`
	Fees             float64   `json:"fees,omitempty"`
	LatencyMs        int64     `json:"latency_ms"`
	Reason           string    `json:"reason,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Terminal reports whether the status is a terminal state. Every status the
// pipeline emits is terminal; retrying from any of them is forbidden because
// TimedOut submissions may still land on the venue.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusRiskRejected, StatusNoEligiblePool, StatusTimedOut, StatusVenueFailed:
		return true
	}
	return false
}
