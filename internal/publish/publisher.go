// Package publish implements the Event Publisher: trade fan-out and a
// periodic snapshot pump over Redis Pub/Sub channels. Publishing is
// best-effort — a slow or disconnected subscriber never blocks the
// command pipeline.
package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/saiputravu/obm/internal/model"
)

// Snapshotter is the minimal view of the book the snapshot pump needs.
// Satisfied by *pqb.Book; expressed as an interface so the pump can be
// tested without a real book.
type Snapshotter interface {
	Snapshot(depth int) (bids, asks []model.Level)
}

// wireTrade is the external trade-channel payload from spec.md §6: prices
// cross the integer/decimal serialization boundary here.
type wireTrade struct {
	TradeID    string  `json:"trade_id"`
	Timestamp  string  `json:"timestamp"`
	Price      float64 `json:"price"`
	Qty        uint64  `json:"qty"`
	BidOrderID string  `json:"bid_order_id"`
	AskOrderID string  `json:"ask_order_id"`
}

// Publisher fans trades and snapshots out over Redis Pub/Sub.
type Publisher struct {
	client          *redis.Client
	book            Snapshotter
	tradeChannel    string
	snapshotChannel string
	interval        time.Duration
	depth           int
}

// New constructs a Publisher. interval and depth default to 1s/5 levels
// (spec.md §4.5) when zero.
func New(client *redis.Client, book Snapshotter, tradeChannel, snapshotChannel string, interval time.Duration, depth int) *Publisher {
	if interval <= 0 {
		interval = time.Second
	}
	if depth <= 0 {
		depth = model.DefaultSnapshotDepth
	}
	return &Publisher{
		client:          client,
		book:            book,
		tradeChannel:    tradeChannel,
		snapshotChannel: snapshotChannel,
		interval:        interval,
		depth:           depth,
	}
}

// PublishTrades serializes and publishes each trade, in emission order,
// to the trade channel. A per-trade publish failure is logged and
// swallowed; it never fails the overall command.
func (p *Publisher) PublishTrades(ctx context.Context, trades []model.Trade) {
	for _, t := range trades {
		wire := wireTrade{
			TradeID:    t.ID,
			Timestamp:  t.Timestamp.UTC().Format(time.RFC3339Nano),
			Price:      model.MinorUnitsToFloat(t.PricePaise),
			Qty:        t.Qty,
			BidOrderID: t.BidOrderID,
			AskOrderID: t.AskOrderID,
		}
		payload, err := json.Marshal(wire)
		if err != nil {
			log.Error().Err(err).Str("trade_id", t.ID).Msg("publish: failed to marshal trade")
			continue
		}
		if err := p.client.Publish(ctx, p.tradeChannel, payload).Err(); err != nil {
			log.Warn().Err(err).Str("trade_id", t.ID).Msg("publish: trade fan-out failed, subscriber may be slow/disconnected")
		}
	}
}

// RunSnapshotPump starts the cooperative snapshot timer under t, publishing
// every interval until the tomb is dying. It satisfies spec.md §4.5/§5:
// snapshots may interleave with trade publications at arbitrary points,
// on their own cadence.
func (p *Publisher) RunSnapshotPump(t *tomb.Tomb) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			p.publishSnapshot(t.Context(nil))
		}
	}
}

func (p *Publisher) publishSnapshot(ctx context.Context) {
	bids, asks := p.book.Snapshot(p.depth)
	snap := model.Snapshot{
		Timestamp: time.Now().UTC(),
		Bids:      bids,
		Asks:      asks,
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Msg("publish: failed to marshal snapshot")
		return
	}
	if err := p.client.Publish(ctx, p.snapshotChannel, payload).Err(); err != nil {
		log.Debug().Err(err).Msg("publish: snapshot fan-out failed")
		return
	}
	if len(bids) > 0 || len(asks) > 0 {
		log.Debug().Int("bid_levels", len(bids)).Int("ask_levels", len(asks)).Msg("publish: snapshot published")
	}
}
