package execution

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solana-trading-engine/internal/signal"
)

// TradeIntent is the order handed to a venue after routing
type TradeIntent struct {
	SignalID string             `json:"signal_id"`
	PoolID   string             `json:"pool_id"`
	Symbol   string             `json:"symbol"`
	Action   signal.TradeAction `json:"action"`
	Quantity float64            `json:"quantity"`
	Price    float64            `json:"price"`
}

// Fill is a venue's confirmation of an executed trade
type Fill struct {
	TransactionID string  `json:"transaction_id"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price"`
	Fees          float64 `json:"fees"`
}

// Venue submits trade intents to an execution venue. Submit must return a
// definitive answer: a fill, or an error meaning the venue rejected or failed
// the order. Callers own the latency budget; Submit should honor ctx
// cancellation on its transport but is allowed to outlive an abandoned wait.
type Venue interface {
	Submit(ctx context.Context, intent TradeIntent) (Fill, error)
}

// SimulatedVenue is the paper-trading venue: fills at target price after a
// fixed latency with a flat fee rate. Used in paper mode and in tests.
type SimulatedVenue struct {
	Latency time.Duration
	FeeRate float64 // fraction of notional, e.g. 0.001 for 0.1%
	FailPct float64 // probability of a simulated venue rejection, 0 disables

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedVenue returns a paper venue with the default 50ms fill latency
// and 0.1% fee
func NewSimulatedVenue() *SimulatedVenue {
	return &SimulatedVenue{
		Latency: 50 * time.Millisecond,
		FeeRate: 0.001,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Submit simulates a fill
func (v *SimulatedVenue) Submit(ctx context.Context, intent TradeIntent) (Fill, error) {
	select {
	case <-time.After(v.Latency):
	case <-ctx.Done():
		return Fill{}, ctx.Err()
	}

	if v.FailPct > 0 {
		v.mu.Lock()
		fail := v.rng.Float64() < v.FailPct
		v.mu.Unlock()
		if fail {
			return Fill{}, fmt.Errorf("simulated venue rejection for %s", intent.Symbol)
		}
	}

	return Fill{
		TransactionID: "SIM-" + uuid.New().String(),
		Quantity:      intent.Quantity,
		Price:         intent.Price,
		Fees:          intent.Quantity * intent.Price * v.FeeRate,
	}, nil
}

// LiveVenue submits orders to the external signing and submission service
// over HTTP. The service holds the keys; this client only ships intents and
// reads back transaction ids.
type LiveVenue struct {
	client   *resty.Client
	slippage float64 // price adjustment applied to buys, e.g. 0.005
	feeRate  float64
	logger   zerolog.Logger
}

// LiveVenueConfig configures the live submission client
type LiveVenueConfig struct {
	BaseURL  string
	APIKey   string
	Slippage float64
	FeeRate  float64
	Timeout  time.Duration
}

// NewLiveVenue creates a live venue client
func NewLiveVenue(cfg LiveVenueConfig, logger zerolog.Logger) *LiveVenue {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &LiveVenue{
		client:   client,
		slippage: cfg.Slippage,
		feeRate:  cfg.FeeRate,
		logger:   logger.With().Str("component", "live_venue").Logger(),
	}
}

type submitResponse struct {
	TransactionID string  `json:"transaction_id"`
	FilledQty     float64 `json:"filled_quantity"`
	FilledPrice   float64 `json:"filled_price"`
	Error         string  `json:"error"`
}

// Submit posts the intent to the submission service. Buys are priced with a
// slippage allowance so the venue can fill in a moving market.
func (v *LiveVenue) Submit(ctx context.Context, intent TradeIntent) (Fill, error) {
	priced := intent
	if intent.Action == signal.ActionBuy {
		priced.Price = intent.Price * (1 + v.slippage)
	}

	var out submitResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetBody(priced).
		SetResult(&out).
		Post("/v1/orders")
	if err != nil {
		return Fill{}, fmt.Errorf("venue submission failed: %w", err)
	}
	if resp.IsError() {
		return Fill{}, fmt.Errorf("venue rejected order: status %d: %s", resp.StatusCode(), out.Error)
	}
	if out.TransactionID == "" {
		return Fill{}, fmt.Errorf("venue returned no transaction id")
	}

	fill := Fill{
		TransactionID: out.TransactionID,
		Quantity:      out.FilledQty,
		Price:         out.FilledPrice,
		Fees:          out.FilledQty * out.FilledPrice * v.feeRate,
	}
	v.logger.Info().
		Str("signal_id", intent.SignalID).
		Str("transaction_id", fill.TransactionID).
		Float64("filled_price", fill.Price).
		Msg("Live order filled")
	return fill, nil
}
