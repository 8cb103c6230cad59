package aibridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"solana-trading-engine/internal/signal"
)

// Config controls the bridge's redis connection and decision handling
type Config struct {
	Addr           string
	Password       string
	DB             int
	DecisionMaxAge time.Duration // freshness window for incoming decisions
	PollTimeout    time.Duration // BLPOP block time per iteration
	HealthInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DecisionMaxAge <= 0 {
		c.DecisionMaxAge = 5 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	return c
}

// SubmitFunc hands a converted signal to the pipeline
type SubmitFunc func(signal.TradingSignal) bool

// Bridge consumes AI decisions from redis and feeds them to the pipeline,
// and publishes market events for the AI process to analyze.
type Bridge struct {
	client  *redis.Client
	cfg     Config
	submit  SubmitFunc
	logger  zerolog.Logger
	healthy atomic.Bool

	decisionsSeen    atomic.Int64
	decisionsStale   atomic.Int64
	decisionsHeld    atomic.Int64
	decisionsRouted  atomic.Int64
	decisionsDropped atomic.Int64
}

// New creates the AI bridge and verifies redis connectivity
func New(ctx context.Context, cfg Config, submit SubmitFunc, logger zerolog.Logger) (*Bridge, error) {
	cfg = cfg.withDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ai bridge redis ping failed: %w", err)
	}

	b := &Bridge{
		client: client,
		cfg:    cfg,
		submit: submit,
		logger: logger.With().Str("component", "ai_bridge").Logger(),
	}
	b.healthy.Store(true)
	return b, nil
}

// Run blocks consuming decisions until ctx is cancelled
func (b *Bridge) Run(ctx context.Context) {
	b.logger.Info().Str("commands_key", KeyTradingCommands).Msg("AI bridge consuming decisions")

	go b.healthLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("AI bridge stopped")
			return
		default:
		}

		vals, err := b.client.BLPop(ctx, b.cfg.PollTimeout, KeyTradingCommands).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			b.healthy.Store(false)
			b.logger.Warn().Err(err).Msg("Decision poll failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		b.healthy.Store(true)
		if len(vals) < 2 {
			continue
		}
		b.handleDecision([]byte(vals[1]))
	}
}

func (b *Bridge) handleDecision(payload []byte) {
	b.decisionsSeen.Add(1)

	var dec Decision
	if err := json.Unmarshal(payload, &dec); err != nil {
		b.decisionsDropped.Add(1)
		b.logger.Warn().Err(err).Msg("Unparseable AI decision dropped")
		return
	}

	sig, err := dec.ToSignal(time.Now().UTC(), b.cfg.DecisionMaxAge)
	if err != nil {
		switch {
		case errors.Is(err, ErrDecisionHold):
			b.decisionsHeld.Add(1)
			b.logger.Debug().Str("decision_id", dec.DecisionID).Msg("Hold decision, no signal produced")
		case errors.Is(err, ErrDecisionStale):
			b.decisionsStale.Add(1)
			b.logger.Warn().
				Str("decision_id", dec.DecisionID).
				Time("created_at", dec.CreatedAt).
				Msg("Stale AI decision rejected")
		default:
			b.decisionsDropped.Add(1)
			b.logger.Warn().Err(err).Str("decision_id", dec.DecisionID).Msg("AI decision dropped")
		}
		return
	}

	if b.submit(sig) {
		b.decisionsRouted.Add(1)
	} else {
		b.decisionsDropped.Add(1)
	}
}

// PublishMarketEvent pushes a market event for the AI process
func (b *Bridge) PublishMarketEvent(ctx context.Context, ev MarketEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal market event: %w", err)
	}
	if err := b.client.LPush(ctx, KeyMarketEvents, payload).Err(); err != nil {
		return fmt.Errorf("publish market event: %w", err)
	}
	return nil
}

// healthLoop writes a heartbeat the AI process can watch, and keeps the
// bridge's own view of redis health current
func (b *Bridge) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat := map[string]interface{}{
				"timestamp":         time.Now().UTC().Format(time.RFC3339),
				"decisions_seen":    b.decisionsSeen.Load(),
				"decisions_routed":  b.decisionsRouted.Load(),
				"decisions_stale":   b.decisionsStale.Load(),
				"decisions_held":    b.decisionsHeld.Load(),
				"decisions_dropped": b.decisionsDropped.Load(),
			}
			payload, _ := json.Marshal(beat)
			if err := b.client.LPush(ctx, KeyBridgeHealth, payload).Err(); err != nil {
				b.healthy.Store(false)
				b.logger.Warn().Err(err).Msg("Health heartbeat failed")
				continue
			}
			// Keep only the most recent heartbeats.
			b.client.LTrim(ctx, KeyBridgeHealth, 0, 9)
			b.healthy.Store(true)
		}
	}
}

// Healthy reports the bridge's last known redis connectivity
func (b *Bridge) Healthy() bool {
	return b.healthy.Load()
}

// Close releases the redis connection
func (b *Bridge) Close() error {
	return b.client.Close()
}
