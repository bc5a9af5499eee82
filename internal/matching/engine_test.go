package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/saiputravu/obm/internal/model"
	"github.com/saiputravu/obm/internal/pqb"
)

func restingOrder(id string, side model.Side, pricePaise int64, qty uint64) *model.Order {
	return &model.Order{ID: id, Side: side, PricePaise: pricePaise, OriginalQty: qty, RemainingQty: qty, Status: model.StatusOpen}
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestEngine_Process_NoCross_RestsOpen(t *testing.T) {
	book := pqb.New()
	book.Insert(restingOrder("ask-1", model.Sell, 10100, 50))

	eng := New(book, fixedClock(time.Now()))
	buy := restingOrder("buy-1", model.Buy, 10000, 50)

	trades := eng.Process(buy)
	assert.Empty(t, trades)
	assert.Equal(t, model.StatusOpen, buy.Status)
	_, head, ok := book.BestBid()
	assert.True(t, ok)
	assert.Equal(t, "buy-1", head.ID)
}

func TestEngine_Process_FullFill_AtRestingPrice(t *testing.T) {
	book := pqb.New()
	book.Insert(restingOrder("ask-1", model.Sell, 10000, 50))

	eng := New(book, fixedClock(time.Now()))
	buy := restingOrder("buy-1", model.Buy, 10500, 50)

	trades := eng.Process(buy)
	assert.Len(t, trades, 1)
	assert.Equal(t, int64(10000), trades[0].PricePaise, "trade executes at the resting order's price, not the aggressor's")
	assert.EqualValues(t, 50, trades[0].Qty)
	assert.Equal(t, model.StatusFilled, buy.Status)
	assert.EqualValues(t, 0, buy.RemainingQty)

	_, _, ok := book.BestAsk()
	assert.False(t, ok, "fully filled resting order must leave the book")
}

func TestEngine_Process_PartialFill_RestsRemainder(t *testing.T) {
	book := pqb.New()
	book.Insert(restingOrder("ask-1", model.Sell, 10000, 30))

	eng := New(book, fixedClock(time.Now()))
	buy := restingOrder("buy-1", model.Buy, 10000, 100)

	trades := eng.Process(buy)
	assert.Len(t, trades, 1)
	assert.EqualValues(t, 30, trades[0].Qty)
	assert.Equal(t, model.StatusPartiallyFilled, buy.Status)
	assert.EqualValues(t, 70, buy.RemainingQty)

	_, head, ok := book.BestBid()
	assert.True(t, ok)
	assert.Equal(t, "buy-1", head.ID)
}

func TestEngine_Process_SweepsMultipleLevels(t *testing.T) {
	book := pqb.New()
	book.Insert(restingOrder("ask-1", model.Sell, 10000, 90))
	book.Insert(restingOrder("ask-2", model.Sell, 10100, 20))

	eng := New(book, fixedClock(time.Now()))
	buy := restingOrder("buy-1", model.Buy, 10300, 120)

	trades := eng.Process(buy)
	assert.Len(t, trades, 2)
	assert.Equal(t, int64(10000), trades[0].PricePaise)
	assert.EqualValues(t, 90, trades[0].Qty)
	assert.Equal(t, int64(10100), trades[1].PricePaise)
	assert.EqualValues(t, 20, trades[1].Qty)
	assert.Equal(t, model.StatusPartiallyFilled, buy.Status)
	assert.EqualValues(t, 10, buy.RemainingQty)
}

func TestEngine_Process_WeightedAverageTradePrice(t *testing.T) {
	book := pqb.New()
	book.Insert(restingOrder("ask-1", model.Sell, 10000, 50))
	book.Insert(restingOrder("ask-2", model.Sell, 10200, 50))

	eng := New(book, fixedClock(time.Now()))
	buy := restingOrder("buy-1", model.Buy, 10300, 100)

	eng.Process(buy)
	assert.Equal(t, model.StatusFilled, buy.Status)
	// (50*10000 + 50*10200) / 100 = 10100
	assert.Equal(t, int64(10100), buy.AvgTradePaise)
}

func TestEngine_Process_BidAskAssignmentBySide(t *testing.T) {
	book := pqb.New()
	book.Insert(restingOrder("resting-buy", model.Buy, 10000, 50))

	eng := New(book, fixedClock(time.Now()))
	sell := restingOrder("incoming-sell", model.Sell, 9900, 50)

	trades := eng.Process(sell)
	assert.Len(t, trades, 1)
	assert.Equal(t, "resting-buy", trades[0].BidOrderID)
	assert.Equal(t, "incoming-sell", trades[0].AskOrderID)
}
