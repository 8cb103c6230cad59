package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"solana-trading-engine/internal/events"
	"solana-trading-engine/internal/execution"
)

// Sink drains the pipeline's result stream and audit bus into PostgreSQL.
// signal_id is the primary key on execution_results, so replays of the same
// terminal result are absorbed by ON CONFLICT DO NOTHING: at most one row
// per signal, ever.
type Sink struct {
	db     *DB
	logger zerolog.Logger
}

// NewSink creates a persistence sink
func NewSink(db *DB) *Sink {
	return &Sink{
		db:     db,
		logger: db.logger.With().Str("component", "result_sink").Logger(),
	}
}

// Run consumes results until the channel closes or ctx is cancelled
func (s *Sink) Run(ctx context.Context, results <-chan execution.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			s.writeResult(ctx, res)
		}
	}
}

func (s *Sink) writeResult(ctx context.Context, res execution.Result) {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := s.db.Pool.Exec(writeCtx, `
		INSERT INTO execution_results
			(signal_id, pool_id, transaction_id, status, executed_quantity,
			 executed_price, fees, latency_ms, reason, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (signal_id) DO NOTHING`,
		res.SignalID, res.PoolID, res.TransactionID, string(res.Status),
		res.ExecutedQuantity, res.ExecutedPrice, res.Fees, res.LatencyMs,
		res.Reason, res.Timestamp,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("signal_id", res.SignalID).Msg("Failed to persist execution result")
		return
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn().Str("signal_id", res.SignalID).Msg("Duplicate terminal result ignored")
	}
}

// AttachAuditLog subscribes the sink to the audit bus so every pipeline
// decision lands in the audit_events table
func (s *Sink) AttachAuditLog(ctx context.Context, bus *events.Bus) {
	bus.SubscribeAll(func(e events.Event) {
		payload, err := json.Marshal(e.Data)
		if err != nil {
			s.logger.Error().Err(err).Str("event_type", string(e.Type)).Msg("Unserializable audit event")
			return
		}

		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		_, err = s.db.Pool.Exec(writeCtx, `
			INSERT INTO audit_events (event_type, payload, occurred_at)
			VALUES ($1, $2, $3)`,
			string(e.Type), payload, e.Timestamp,
		)
		if err != nil {
			s.logger.Error().Err(err).Str("event_type", string(e.Type)).Msg("Failed to persist audit event")
		}
	})
}

// RecentResults returns the newest terminal results for the operator API
func (s *Sink) RecentResults(ctx context.Context, limit int) ([]execution.Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Pool.Query(ctx, `
		SELECT signal_id, COALESCE(pool_id, ''), COALESCE(transaction_id, ''),
		       status, COALESCE(executed_quantity, 0), COALESCE(executed_price, 0),
		       COALESCE(fees, 0), latency_ms, COALESCE(reason, ''), executed_at
		FROM execution_results
		ORDER BY executed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []execution.Result
	for rows.Next() {
		var r execution.Result
		var status string
		if err := rows.Scan(&r.SignalID, &r.PoolID, &r.TransactionID, &status,
			&r.ExecutedQuantity, &r.ExecutedPrice, &r.Fees, &r.LatencyMs,
			&r.Reason, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Status = execution.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
