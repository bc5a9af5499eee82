// Package consumer implements the Command Consumer: it pulls commands
// off the durable queue, drives WAL + matching engine + event publisher
// in the contractual order from spec.md §4.6, and acknowledges exactly
// when a command is fully durable and observable.
package consumer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/saiputravu/obm/internal/matching"
	"github.com/saiputravu/obm/internal/metrics"
	"github.com/saiputravu/obm/internal/model"
	"github.com/saiputravu/obm/internal/pqb"
	"github.com/saiputravu/obm/internal/queue"
	"github.com/saiputravu/obm/internal/store"
	"github.com/saiputravu/obm/internal/wal"
)

// WALAppender is the subset of *wal.WAL the consumer depends on.
type WALAppender interface {
	Append(op model.Op, table model.Table, data any) (int64, error)
}

// TradePublisher is the subset of *publish.Publisher the consumer depends
// on. Extracted (mirroring WALAppender) so tests can inject a fake fan-out
// target instead of a real Redis client.
type TradePublisher interface {
	PublishTrades(ctx context.Context, trades []model.Trade)
}

// Consumer owns the book, engine, and WAL exclusively; no other
// subsystem mutates them (spec.md §5).
type Consumer struct {
	book      *pqb.Book
	engine    *matching.Engine
	wal       WALAppender
	publisher TradePublisher
	store     *store.Store
	queue     *queue.Queue
	metrics   *metrics.Metrics
}

// New wires a Consumer from its already-constructed collaborators.
// book/engine are normally the result of recovery.Recover followed by
// matching.New over the recovered book.
func New(book *pqb.Book, engine *matching.Engine, w *wal.WAL, pub TradePublisher, st *store.Store, q *queue.Queue, m *metrics.Metrics) *Consumer {
	return &Consumer{book: book, engine: engine, wal: w, publisher: pub, store: st, queue: q, metrics: m}
}

// Run drives the consume loop until t is dying. Per spec.md §5, a
// shutdown signal lets the in-flight command finish; there is no
// preemption mid-command.
func (c *Consumer) Run(t *tomb.Tomb) error {
	ctx := t.Context(nil)
	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		delivery, err := c.queue.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("consumer: failed to fetch next command")
			continue
		}

		if err := c.handle(ctx, delivery); err != nil {
			// A WAL durability failure is fatal per spec.md §4.3/§7: the
			// command must not be acked so it is redelivered on restart.
			log.Error().Err(err).Str("operation", string(delivery.Command.Operation)).Msg("consumer: command pipeline aborted, not acking")
			return err
		}

		if err := c.queue.Ack(ctx, delivery); err != nil {
			log.Error().Err(err).Msg("consumer: failed to ack command")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d queue.Delivery) error {
	start := time.Now()
	op := d.Command.Operation
	outcome := "ok"
	defer func() { c.metrics.ObserveCommand(string(op), outcome, start) }()

	var err error
	switch op {
	case queue.OpCreate:
		err = c.handleCreate(ctx, d.Command.Data)
	case queue.OpModify:
		err = c.handleModify(ctx, d.Command.Data)
	case queue.OpCancel:
		err = c.handleCancel(ctx, d.Command.Data)
	case queue.OpFetch, queue.OpFetchAll:
		// Read-only probes; the query side is external (spec.md §4.6).
		log.Debug().Str("operation", string(op)).Msg("consumer: ignoring read-only probe")
	default:
		log.Warn().Str("operation", string(op)).Msg("consumer: unknown operation, ignoring")
	}

	if err != nil {
		if isFatal(err) {
			outcome = "fatal"
			return err
		}
		outcome = "rejected"
		log.Info().Err(err).Str("operation", string(op)).Msg("consumer: command rejected, acking as no-op")
	}
	return nil
}

// fatalError wraps an error that must abort the whole command and
// prevent acknowledgement (WAL durability failures).
type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

func isFatal(err error) bool {
	_, ok := err.(*fatalError)
	return ok
}

func (c *Consumer) appendWAL(op model.Op, table model.Table, data any) (int64, error) {
	start := time.Now()
	lsn, err := c.wal.Append(op, table, data)
	c.metrics.ObserveWALAppend(start)
	if err != nil {
		return 0, &fatalError{err}
	}
	return lsn, nil
}

// handleCreate implements spec.md §4.6 CREATE: validate, WAL-log the
// insert, match, WAL-log trades and (if any fill occurred) the post-match
// order state, then publish. Each WAL append is followed by a best-effort
// persist.
func (c *Consumer) handleCreate(ctx context.Context, data []byte) error {
	var req createRequest
	if err := parsePayload(data, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	side, _ := req.side()

	now := time.Now().UTC()
	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}

	order := &model.Order{
		ID:           orderID,
		Side:         side,
		PricePaise:   req.PricePaise,
		OriginalQty:  req.Qty,
		RemainingQty: req.Qty,
		Status:       model.StatusOpen,
		CreatedTs:    now,
		UpdatedTs:    now,
	}

	c.book.Lock()
	defer c.book.Unlock()

	if _, err := c.appendWAL(model.OpInsert, model.TableOrder, order); err != nil {
		return err
	}
	c.store.InsertOrder(ctx, order)

	trades := c.engine.Process(order)
	for _, trade := range trades {
		if _, err := c.appendWAL(model.OpInsert, model.TableTrade, trade); err != nil {
			return err
		}
		c.store.InsertTrade(ctx, trade)
		c.metrics.TradesExecuted.Inc()
	}

	if order.TradedQty > 0 {
		if _, err := c.appendWAL(model.OpUpdate, model.TableOrder, order); err != nil {
			return err
		}
		c.store.UpdateOrder(ctx, order)
	}

	c.publisher.PublishTrades(ctx, trades)
	log.Info().Str("order_id", order.ID).Int("trades", len(trades)).Msg("consumer: order created")
	return nil
}

// handleModify implements spec.md §4.6 MODIFY: price-only amendment that
// resets time priority at the new level by removing and re-matching.
func (c *Consumer) handleModify(ctx context.Context, data []byte) error {
	var req modifyRequest
	if err := parsePayload(data, &req); err != nil {
		return err
	}

	c.book.Lock()
	defer c.book.Unlock()

	order, ok := c.book.Get(req.OrderID)
	if !ok {
		log.Info().Str("order_id", req.OrderID).Msg("consumer: modify target not found, no-op")
		return nil
	}
	if err := req.validate(); err != nil {
		return err
	}

	c.book.Remove(req.OrderID)
	oldPrice := order.PricePaise
	order.PricePaise = req.UpdatedPricePaise
	order.UpdatedTs = time.Now().UTC()

	if _, err := c.appendWAL(model.OpUpdate, model.TableOrder, order); err != nil {
		return err
	}
	c.store.UpdateOrder(ctx, order)

	trades := c.engine.Process(order)
	for _, trade := range trades {
		if _, err := c.appendWAL(model.OpInsert, model.TableTrade, trade); err != nil {
			return err
		}
		c.store.InsertTrade(ctx, trade)
		c.metrics.TradesExecuted.Inc()
	}

	if order.TradedQty > 0 {
		if _, err := c.appendWAL(model.OpUpdate, model.TableOrder, order); err != nil {
			return err
		}
		c.store.UpdateOrder(ctx, order)
	}

	c.publisher.PublishTrades(ctx, trades)
	log.Info().Str("order_id", req.OrderID).Int64("old_price", oldPrice).Int64("new_price", req.UpdatedPricePaise).Msg("consumer: order modified")
	return nil
}

// handleCancel implements spec.md §4.6 CANCEL.
func (c *Consumer) handleCancel(ctx context.Context, data []byte) error {
	var req cancelRequest
	if err := parsePayload(data, &req); err != nil {
		return err
	}

	c.book.Lock()
	defer c.book.Unlock()

	order := c.book.Cancel(req.OrderID, time.Now().UTC())
	if order == nil {
		log.Info().Str("order_id", req.OrderID).Msg("consumer: cancel target not found, no-op")
		return nil
	}

	if _, err := c.appendWAL(model.OpDelete, model.TableOrder, order); err != nil {
		return err
	}
	c.store.UpdateOrder(ctx, order)
	log.Info().Str("order_id", req.OrderID).Msg("consumer: order cancelled")
	return nil
}
