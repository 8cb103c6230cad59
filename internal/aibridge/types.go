// Package aibridge connects the engine to the external AI decision process
// over redis lists: market events out, trading decisions in.
package aibridge

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"solana-trading-engine/internal/signal"
)

// Redis keys shared with the AI process
const (
	KeyTradingCommands = "trade_engine:trading_commands"
	KeyMarketEvents    = "trade_engine:market_events"
	KeyBridgeHealth    = "trade_engine:bridge_health"
)

// AIAction is the decision the AI process took on a market event
type AIAction string

const (
	AIActionBuy  AIAction = "BUY"
	AIActionSell AIAction = "SELL"
	AIActionHold AIAction = "HOLD"
)

// MarketEvent is pushed to the AI process for analysis
type MarketEvent struct {
	EventID   string    `json:"event_id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMarketEvent creates a market event with a fresh id
func NewMarketEvent(symbol string, price, volume float64, source string) MarketEvent {
	return MarketEvent{
		EventID:   uuid.New().String(),
		Symbol:    symbol,
		Price:     price,
		Volume:    volume,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// Decision is what the AI process pushes back on the commands list
type Decision struct {
	DecisionID string    `json:"decision_id"`
	Symbol     string    `json:"symbol"`
	Action     AIAction  `json:"action"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrDecisionStale marks a decision older than the freshness window
var ErrDecisionStale = fmt.Errorf("decision is stale")

// ErrDecisionHold marks a Hold decision, which produces no trading signal
var ErrDecisionHold = fmt.Errorf("hold decision")

// ToSignal converts a fresh actionable decision into a trading signal. Hold
// decisions and decisions older than maxAge are refused: acting on a stale
// price target is worse than not acting at all.
func (d Decision) ToSignal(now time.Time, maxAge time.Duration) (signal.TradingSignal, error) {
	if d.Action == AIActionHold {
		return signal.TradingSignal{}, ErrDecisionHold
	}
	if d.CreatedAt.IsZero() || now.Sub(d.CreatedAt) > maxAge {
		return signal.TradingSignal{}, fmt.Errorf("%w: created %s, window %s", ErrDecisionStale, d.CreatedAt, maxAge)
	}

	var action signal.TradeAction
	switch d.Action {
	case AIActionBuy:
		action = signal.ActionBuy
	case AIActionSell:
		action = signal.ActionSell
	default:
		return signal.TradingSignal{}, fmt.Errorf("unknown AI action: %q", d.Action)
	}

	id := d.DecisionID
	if id == "" {
		id = uuid.New().String()
	}
	return signal.TradingSignal{
		ID:          id,
		Symbol:      d.Symbol,
		Action:      action,
		Strategy:    signal.StrategyAIDecision,
		Quantity:    d.Quantity,
		TargetPrice: d.Price,
		Confidence:  d.Confidence,
		CreatedAt:   d.CreatedAt,
		Source:      signal.SourceAIBridge,
	}, nil
}
