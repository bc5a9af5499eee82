// Package store writes query-side copies of orders and trades to the
// relational store described in spec.md §6. It is strictly
// non-authoritative: the WAL, not this store, is the system of record.
// Every method here is fire-and-forget from the pipeline's perspective —
// failures are logged, never propagated into the command path.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/saiputravu/obm/internal/model"
)

// Store owns a connection pool to the query-side database.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against databaseURL. Returns an error so callers
// can decide whether to run without persistence (as the original service
// does) rather than fail startup outright.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// InsertOrder persists a newly created order. Errors are logged, not
// returned, to keep this off the durability path.
func (s *Store) InsertOrder(ctx context.Context, o *model.Order) {
	if s == nil {
		return
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, side, order_price, order_quantity, avg_traded_price, traded_quantity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, o.ID, o.Side.String(), o.PricePaise, o.OriginalQty, o.AvgTradePaise, o.TradedQty, string(o.Status), o.CreatedTs, o.UpdatedTs)
	if err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("store: insert order failed")
	}
}

// UpdateOrder persists a mutated order's current state.
func (s *Store) UpdateOrder(ctx context.Context, o *model.Order) {
	if s == nil {
		return
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET order_price = $2, order_quantity = $3, avg_traded_price = $4,
		    traded_quantity = $5, status = $6, updated_at = $7
		WHERE id = $1
	`, o.ID, o.PricePaise, o.OriginalQty, o.AvgTradePaise, o.TradedQty, string(o.Status), o.UpdatedTs)
	if err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("store: update order failed")
	}
}

// InsertTrade persists a newly executed trade.
func (s *Store) InsertTrade(ctx context.Context, t model.Trade) {
	if s == nil {
		return
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (id, bid_order_id, ask_order_id, traded_price, traded_quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.BidOrderID, t.AskOrderID, t.PricePaise, t.Qty, t.Timestamp)
	if err != nil {
		log.Error().Err(err).Str("trade_id", t.ID).Msg("store: insert trade failed")
	}
}
