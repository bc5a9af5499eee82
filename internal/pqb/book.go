// Package pqb implements the Price-Quantity Book: the in-memory data
// structure maintaining bids and asks with price-level aggregation and
// FIFO time priority within a level.
//
// The ordered-map choice follows the teacher repo exactly: a
// github.com/tidwall/btree.BTreeG keyed by integer price gives O(log L)
// best-of-book and insertion, with O(1) head access within a level.
package pqb

import (
	"sync"
	"time"

	"github.com/tidwall/btree"

	"github.com/saiputravu/obm/internal/model"
)

// PriceLevel holds the FIFO queue of live orders resting at one price.
type PriceLevel struct {
	Price  int64
	Orders []*model.Order
}

type levels = btree.BTreeG[*PriceLevel]

// Book maintains the two sides of a single instrument's order book plus
// an id index for O(1) lookup by order id.
//
// Per spec.md §5, the book is owned exclusively by the Command Consumer
// loop and is not internally synchronized for that access path. mu exists
// solely to guard the one cross-goroutine reader: the Event Publisher's
// snapshot timer, which takes RLock so it never observes a book
// half-mutated by an in-flight command.
type Book struct {
	mu   sync.RWMutex
	bids *levels
	asks *levels
	byID map[string]*model.Order
}

// New constructs an empty book. Bids are ordered highest-price-first,
// asks lowest-price-first, matching the teacher's NewOrderBook.
func New() *Book {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price
	})
	return &Book{
		bids: bids,
		asks: asks,
		byID: make(map[string]*model.Order),
	}
}

func (b *Book) sideTree(side model.Side) *levels {
	if side == model.Buy {
		return b.bids
	}
	return b.asks
}

// Insert appends order at the tail of its price level, creating the
// level if absent, and adds it to the id index. Precondition (caller's
// responsibility): order.RemainingQty > 0 and its id is not present.
func (b *Book) Insert(order *model.Order) {
	tree := b.sideTree(order.Side)
	level, ok := tree.Get(&PriceLevel{Price: order.PricePaise})
	if ok {
		level.Orders = append(level.Orders, order)
	} else {
		tree.Set(&PriceLevel{Price: order.PricePaise, Orders: []*model.Order{order}})
	}
	b.byID[order.ID] = order
}

// Get performs an index lookup by order id.
func (b *Book) Get(orderID string) (*model.Order, bool) {
	o, ok := b.byID[orderID]
	return o, ok
}

// Remove detaches the order from its level (removing the level if it
// becomes empty) and clears the index entry. Returns the removed order,
// or nil if the id is unknown.
func (b *Book) Remove(orderID string) *model.Order {
	order, ok := b.byID[orderID]
	if !ok {
		return nil
	}
	tree := b.sideTree(order.Side)
	level, ok := tree.Get(&PriceLevel{Price: order.PricePaise})
	if ok {
		for i, o := range level.Orders {
			if o.ID == orderID {
				level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
				break
			}
		}
		if len(level.Orders) == 0 {
			tree.Delete(level)
		}
	}
	delete(b.byID, orderID)
	return order
}

// BestBid returns the highest bid price and the head-of-FIFO order
// resting at that level, or ok=false if the bid side is empty.
func (b *Book) BestBid() (price int64, head *model.Order, ok bool) {
	return bestOf(b.bids)
}

// BestAsk returns the lowest ask price and the head-of-FIFO order
// resting at that level, or ok=false if the ask side is empty.
func (b *Book) BestAsk() (price int64, head *model.Order, ok bool) {
	return bestOf(b.asks)
}

func bestOf(tree *levels) (price int64, head *model.Order, ok bool) {
	level, found := tree.Min()
	if !found || len(level.Orders) == 0 {
		return 0, nil, false
	}
	return level.Price, level.Orders[0], true
}

// UpdateAfterTrade applies a fill to order: decrements remaining,
// increments traded, recomputes the weighted average trade price, and
// sets status. It never rewrites time priority — a partial fill keeps
// its original FIFO position at the head of its level. If the fill
// exhausts the order, it is detached from the book.
func (b *Book) UpdateAfterTrade(order *model.Order, qty uint64, pricePaise int64, now time.Time) {
	order.ApplyFill(qty, pricePaise, now)
	if order.RemainingQty == 0 {
		b.Remove(order.ID)
	}
}

// Cancel marks the order CANCELLED and removes it from the book. Returns
// nil if the id is unknown (a no-op per spec.md §7).
func (b *Book) Cancel(orderID string, now time.Time) *model.Order {
	order, ok := b.byID[orderID]
	if !ok {
		return nil
	}
	order.Status = model.StatusCancelled
	order.UpdatedTs = now
	return b.Remove(orderID)
}

// Snapshot returns the top-depth levels on each side with aggregated
// remaining quantity per level. Prices are surfaced as floats for the
// external channel; internal storage stays integer. Safe to call from a
// goroutine other than the command loop's.
func (b *Book) Snapshot(depth int) (bids, asks []model.Level) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bids = aggregateLevels(b.bids, depth)
	asks = aggregateLevels(b.asks, depth)
	return bids, asks
}

// Lock and Unlock let the command loop bracket an entire command's
// mutations so the snapshot timer (running on its own goroutine) only
// ever observes the book at a boundary between commands, never
// mid-command, per spec.md §5.
func (b *Book) Lock()   { b.mu.Lock() }
func (b *Book) Unlock() { b.mu.Unlock() }

func aggregateLevels(tree *levels, depth int) []model.Level {
	out := make([]model.Level, 0, depth)
	tree.Scan(func(level *PriceLevel) bool {
		if len(out) >= depth {
			return false
		}
		var qty uint64
		for _, o := range level.Orders {
			qty += o.RemainingQty
		}
		out = append(out, model.Level{Price: model.MinorUnitsToFloat(level.Price), Qty: qty})
		return true
	})
	return out
}

// Len reports the total number of resting orders across both sides.
func (b *Book) Len() int {
	return len(b.byID)
}
