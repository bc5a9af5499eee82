// Package matching implements the Matching Engine: a pure function over
// the Price-Quantity Book that crosses an incoming order against resting
// liquidity at resting prices, in strict price-time priority.
package matching

import (
	"time"

	"github.com/google/uuid"

	"github.com/saiputravu/obm/internal/model"
	"github.com/saiputravu/obm/internal/pqb"
)

// Clock abstracts wall-clock access so trade timestamps are injectable in
// tests without affecting the (deterministic) matching decision itself.
type Clock func() time.Time

// Engine executes the matching loop described in spec.md §4.2. It holds
// no state of its own beyond a clock; the book is the single owned
// mutable structure.
type Engine struct {
	book  *pqb.Book
	clock Clock
}

// New constructs a matching engine over book, using time.Now for trade
// timestamps unless a different clock is supplied.
func New(book *pqb.Book, clock Clock) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{book: book, clock: clock}
}

// Process matches incoming against the opposite side of the book,
// emitting trades at resting prices, and rests any remainder. It mutates
// incoming in place (status, remaining/traded quantities) and returns the
// ordered list of trades produced.
func (e *Engine) Process(incoming *model.Order) []model.Trade {
	var trades []model.Trade

	for incoming.RemainingQty > 0 {
		trade, matched := e.tryMatch(incoming)
		if !matched {
			break
		}
		trades = append(trades, trade)
	}

	if incoming.RemainingQty > 0 && incoming.Status != model.StatusCancelled {
		if incoming.TradedQty == 0 {
			incoming.Status = model.StatusOpen
		} else {
			incoming.Status = model.StatusPartiallyFilled
		}
		e.book.Insert(incoming)
	}

	return trades
}

// tryMatch attempts a single fill against the best resting order on the
// opposite side. It returns matched=false when there is no cross.
func (e *Engine) tryMatch(incoming *model.Order) (model.Trade, bool) {
	var (
		restingPrice int64
		resting      *model.Order
		ok           bool
	)

	switch incoming.Side {
	case model.Buy:
		restingPrice, resting, ok = e.book.BestAsk()
		if !ok || incoming.PricePaise < restingPrice {
			return model.Trade{}, false
		}
	case model.Sell:
		restingPrice, resting, ok = e.book.BestBid()
		if !ok || incoming.PricePaise > restingPrice {
			return model.Trade{}, false
		}
	}

	fillQty := min(incoming.RemainingQty, resting.RemainingQty)
	now := e.clock()

	trade := model.Trade{
		ID:         uuid.NewString(),
		Timestamp:  now,
		PricePaise: restingPrice,
		Qty:        fillQty,
	}
	if incoming.Side == model.Buy {
		trade.BidOrderID = incoming.ID
		trade.AskOrderID = resting.ID
	} else {
		trade.BidOrderID = resting.ID
		trade.AskOrderID = incoming.ID
	}

	// Resting order's state is updated first: it may leave the book
	// entirely, which must happen before the incoming order is updated
	// so the next loop iteration observes a consistent book.
	e.book.UpdateAfterTrade(resting, fillQty, restingPrice, now)
	incoming.ApplyFill(fillQty, restingPrice, now)

	return trade, true
}
