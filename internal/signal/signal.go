// Package signal defines the trading signal types that flow through the
// decision pipeline.
package signal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TradeAction represents the direction of a trading signal
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
	ActionHold TradeAction = "HOLD"
)

// ParseTradeAction converts a string to a TradeAction
func ParseTradeAction(s string) (TradeAction, error) {
	switch s {
	case "BUY", "buy", "Buy":
		return ActionBuy, nil
	case "SELL", "sell", "Sell":
		return ActionSell, nil
	case "HOLD", "hold", "Hold":
		return ActionHold, nil
	default:
		return "", fmt.Errorf("unknown trade action: %q", s)
	}
}

// StrategyTag identifies the strategy family a signal belongs to.
// The set is closed so pool routing can be checked exhaustively.
type StrategyTag string

const (
	StrategyTokenSniping      StrategyTag = "TOKEN_SNIPING"
	StrategyArbitrage         StrategyTag = "ARBITRAGE"
	StrategyMomentumTrading   StrategyTag = "MOMENTUM_TRADING"
	StrategySoulMeteorSniping StrategyTag = "SOUL_METEOR_SNIPING"
	StrategyMeteoraDAMM       StrategyTag = "METEORA_DAMM"
	StrategyDevTracking       StrategyTag = "DEV_TRACKING"
	StrategyMemeCoin          StrategyTag = "MEME_COIN"
	StrategyAIDecision        StrategyTag = "AI_DECISION"
)

// AllStrategyTags lists every known strategy tag
var AllStrategyTags = []StrategyTag{
	StrategyTokenSniping,
	StrategyArbitrage,
	StrategyMomentumTrading,
	StrategySoulMeteorSniping,
	StrategyMeteoraDAMM,
	StrategyDevTracking,
	StrategyMemeCoin,
	StrategyAIDecision,
}

// ParseStrategyTag converts a string to a StrategyTag
func ParseStrategyTag(s string) (StrategyTag, error) {
	for _, tag := range AllStrategyTags {
		if string(tag) == s {
			return tag, nil
		}
	}
	return "", fmt.Errorf("unknown strategy tag: %q", s)
}

// Source identifies where a signal was produced
type Source string

const (
	SourceLocal    Source = "LOCAL"
	SourceAIBridge Source = "AI_BRIDGE"
)

// TradingSignal is a scored trading intent. It is immutable once created:
// the pipeline never modifies a signal in flight, only derives results from it.
type TradingSignal struct {
	ID          string      `json:"signal_id"`
	Symbol      string      `json:"symbol"`
	Action      TradeAction `json:"action"`
	Strategy    StrategyTag `json:"strategy"`
	Quantity    float64     `json:"quantity"`
	TargetPrice float64     `json:"target_price"`
	Confidence  float64     `json:"confidence"`
	CreatedAt   time.Time   `json:"created_at"`
	Source      Source      `json:"source"`
}

// New creates a locally generated signal with a fresh ID
func New(symbol string, action TradeAction, strategy StrategyTag, quantity, targetPrice, confidence float64) TradingSignal {
	return TradingSignal{
		ID:          uuid.New().String(),
		Symbol:      symbol,
		Action:      action,
		Strategy:    strategy,
		Quantity:    quantity,
		TargetPrice: targetPrice,
		Confidence:  confidence,
		CreatedAt:   time.Now().UTC(),
		Source:      SourceLocal,
	}
}

// Notional returns the quantity * target price value of the signal
func (s TradingSignal) Notional() float64 {
	return s.Quantity * s.TargetPrice
}

// Validate checks that the signal is well-formed
func (s TradingSignal) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("signal id is empty")
	}
	if s.Symbol == "" {
		return fmt.Errorf("signal %s: symbol is empty", s.ID)
	}
	switch s.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return fmt.Errorf("signal %s: unknown action %q", s.ID, s.Action)
	}
	if _, err := ParseStrategyTag(string(s.Strategy)); err != nil {
		return fmt.Errorf("signal %s: %w", s.ID, err)
	}
	if s.Quantity < 0 {
		return fmt.Errorf("signal %s: negative quantity %f", s.ID, s.Quantity)
	}
	if s.TargetPrice < 0 {
		return fmt.Errorf("signal %s: negative target price %f", s.ID, s.TargetPrice)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal %s: confidence %f outside [0,1]", s.ID, s.Confidence)
	}
	return nil
}
