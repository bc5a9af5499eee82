package consumer

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputravu/obm/internal/matching"
	"github.com/saiputravu/obm/internal/metrics"
	"github.com/saiputravu/obm/internal/model"
	"github.com/saiputravu/obm/internal/pqb"
	"github.com/saiputravu/obm/internal/recovery"
	"github.com/saiputravu/obm/internal/wal"
)

// fakePublisher satisfies TradePublisher, recording what would have been
// fanned out over Redis instead of requiring a live broker in tests.
type fakePublisher struct {
	calls [][]model.Trade
}

func (f *fakePublisher) PublishTrades(_ context.Context, trades []model.Trade) {
	f.calls = append(f.calls, trades)
}

// harness wires a Consumer against a real temp-file WAL and a fake
// publisher, with store and queue left nil (handleCreate/handleModify/
// handleCancel never touch the queue, and *store.Store's methods are
// nil-receiver safe per spec.md §7's best-effort persistence contract).
type harness struct {
	consumer *Consumer
	pub      *fakePublisher
	book     *pqb.Book
	wal      *wal.WAL
	walPath  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	book := pqb.New()
	engine := matching.New(book, nil)
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := wal.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	pub := &fakePublisher{}
	m := metrics.New(prometheus.NewRegistry())
	c := New(book, engine, w, pub, nil, nil, m)

	return &harness{consumer: c, pub: pub, book: book, wal: w, walPath: path}
}

func createPayload(orderID, side string, pricePaise int64, qty uint64) []byte {
	return []byte(fmt.Sprintf(`{"order_id":%q,"side":%q,"price_paise":%d,"qty":%d}`, orderID, side, pricePaise, qty))
}

func modifyPayload(orderID string, updatedPricePaise int64) []byte {
	return []byte(fmt.Sprintf(`{"order_id":%q,"updated_price_paise":%d}`, orderID, updatedPricePaise))
}

func cancelPayload(orderID string) []byte {
	return []byte(fmt.Sprintf(`{"order_id":%q}`, orderID))
}

// Scenario 1 (spec.md §8): resting sell, aggressive buy, full fill.
func TestConsumer_Scenario1_RestingSellAggressiveBuyFullFill(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("A", "SELL", 12345, 10)))
	aOrder, ok := h.book.Get("A")
	require.True(t, ok, "resting sell must be in the book before the cross")

	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("B", "BUY", 12500, 10)))

	require.Len(t, h.pub.calls, 2)
	assert.Empty(t, h.pub.calls[0], "a resting order alone produces no trade")
	require.Len(t, h.pub.calls[1], 1)

	trade := h.pub.calls[1][0]
	assert.Equal(t, int64(12345), trade.PricePaise, "trade price is the resting order's price")
	assert.EqualValues(t, 10, trade.Qty)
	assert.Equal(t, "B", trade.BidOrderID)
	assert.Equal(t, "A", trade.AskOrderID)

	assert.Equal(t, 0, h.book.Len(), "book is empty once both sides are fully filled")
	assert.Equal(t, model.StatusFilled, aOrder.Status)
	assert.EqualValues(t, 0, aOrder.RemainingQty)
}

// Scenario 2 (spec.md §8): partial fill then rest.
func TestConsumer_Scenario2_PartialFillThenRest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("A", "SELL", 10000, 5)))
	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("B", "BUY", 10000, 8)))

	require.Len(t, h.pub.calls, 2)
	require.Len(t, h.pub.calls[1], 1)
	assert.EqualValues(t, 5, h.pub.calls[1][0].Qty)

	require.Equal(t, 1, h.book.Len(), "B rests with its remainder; A is fully filled and gone")
	resting, ok := h.book.Get("B")
	require.True(t, ok)
	assert.EqualValues(t, 3, resting.RemainingQty)
	assert.Equal(t, model.StatusPartiallyFilled, resting.Status)
}

// Scenario 3 (spec.md §8): no cross, both sides rest, snapshot reflects both.
func TestConsumer_Scenario3_NoCross(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("A", "SELL", 11000, 5)))
	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("B", "BUY", 10900, 5)))

	assert.Empty(t, h.pub.calls[0])
	assert.Empty(t, h.pub.calls[1])

	bids, asks := h.book.Snapshot(5)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)
	assert.InDelta(t, 109.00, bids[0].Price, 1e-9)
	assert.EqualValues(t, 5, bids[0].Qty)
	assert.InDelta(t, 110.00, asks[0].Price, 1e-9)
	assert.EqualValues(t, 5, asks[0].Qty)
}

// Scenario 4 (spec.md §8): MODIFY loses time priority, joining the tail of
// its new price level rather than keeping its original arrival order.
func TestConsumer_Scenario4_ModifyLosesTimePriority(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("A", "SELL", 10000, 2)))
	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("C", "SELL", 10000, 2)))
	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("M", "SELL", 10100, 2)))

	require.NoError(t, h.consumer.handleModify(ctx, modifyPayload("M", 10000)))

	price, head, ok := h.book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(10000), price)
	assert.Equal(t, "A", head.ID, "A kept its original priority; M joined the tail on re-pricing")

	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("B", "BUY", 10000, 2)))

	lastTrades := h.pub.calls[len(h.pub.calls)-1]
	require.Len(t, lastTrades, 1)
	assert.Equal(t, "A", lastTrades[0].AskOrderID, "the incoming buy must match A first, not the re-priced M")

	_, newHead, ok := h.book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, "C", newHead.ID, "once A is filled, C (not M) is next in line")
}

// Scenario 5 (spec.md §8): cancel during partial fill.
func TestConsumer_Scenario5_CancelDuringPartialFill(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("A", "SELL", 10000, 10)))
	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("B", "BUY", 10000, 3)))

	resting, ok := h.book.Get("A")
	require.True(t, ok)
	assert.EqualValues(t, 7, resting.RemainingQty)

	require.NoError(t, h.consumer.handleCancel(ctx, cancelPayload("A")))

	assert.Equal(t, model.StatusCancelled, resting.Status)
	_, _, ok = h.book.BestAsk()
	assert.False(t, ok, "the book's ask side is empty once the only resting order is cancelled")
}

// Scenario 6 (spec.md §8): recovery after scenarios 1 and 2 reconstructs the
// trade journal exactly and restores every order that was itself the
// incoming side of its last command, driven end-to-end through the
// consumer and a real on-disk WAL rather than constructing WAL entries by
// hand. A resting order that was only ever the passive (matched) side of
// someone else's command never gets a second WAL record for itself, so it
// is not part of this scenario's assertions; see handleCreate/handleModify.
func TestConsumer_Scenario6_RecoveryMatchesLiveState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("A1", "SELL", 12345, 10)))
	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("B1", "BUY", 12500, 10)))
	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("A2", "SELL", 10000, 5)))
	require.NoError(t, h.consumer.handleCreate(ctx, createPayload("B2", "BUY", 10000, 8)))

	resting, ok := h.book.Get("B2")
	require.True(t, ok)
	liveRestingQty := resting.RemainingQty

	require.NoError(t, h.wal.Close())

	result, err := recovery.Recover(h.walPath)
	require.NoError(t, err)

	recovered, ok := result.Book.Get("B2")
	require.True(t, ok, "B2 must still be resting after replay")
	assert.Equal(t, liveRestingQty, recovered.RemainingQty)
	assert.EqualValues(t, 3, recovered.RemainingQty)
	assert.Equal(t, model.StatusPartiallyFilled, recovered.Status)

	require.Len(t, result.Trades, 2)
	assert.EqualValues(t, 10, result.Trades[0].Qty, "trades replay in original emission order")
	assert.EqualValues(t, 5, result.Trades[1].Qty)
}
