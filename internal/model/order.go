// Package model holds the wire- and WAL-level entity types shared by every
// OBM component: Order, Trade, Snapshot, and the WAL envelope itself.
package model

import "time"

// Side is the two-value enum for order direction. It is intentionally a
// closed set rather than anything resembling dynamic dispatch.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Status is the closed set of lifecycle states an Order passes through.
type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
)

// Order is the authoritative record for a resting or terminal order.
// Prices are exact integers in minor units (paise/cents); no floating
// point is used anywhere in the core matching path.
type Order struct {
	ID             string    `json:"order_id"`
	Side           Side      `json:"side"`
	PricePaise     int64     `json:"price_paise"`
	OriginalQty    uint64    `json:"original_qty"`
	RemainingQty   uint64    `json:"remaining_qty"`
	TradedQty      uint64    `json:"traded_qty"`
	AvgTradePaise  int64     `json:"avg_trade_price_paise"`
	Status         Status    `json:"status"`
	CreatedTs      time.Time `json:"created_ts"`
	UpdatedTs      time.Time `json:"updated_ts"`
}

// InBook reports whether the order should be resting in the PQB per the
// spec.md §3 invariant: present in the book iff remaining > 0 and status
// is still active.
func (o *Order) InBook() bool {
	return o.RemainingQty > 0 && (o.Status == StatusOpen || o.Status == StatusPartiallyFilled)
}

// ApplyFill updates remaining/traded quantities and the weighted average
// trade price after a fill of qty units at px. It does not touch time
// priority; callers decide whether the order stays at the head of its
// level (partial fill) or is removed (full fill).
func (o *Order) ApplyFill(qty uint64, pricePaise int64, now time.Time) {
	o.RemainingQty -= qty
	tradedBefore := o.TradedQty
	o.TradedQty += qty

	if tradedBefore == 0 {
		o.AvgTradePaise = pricePaise
	} else {
		total := o.AvgTradePaise*int64(tradedBefore) + pricePaise*int64(qty)
		o.AvgTradePaise = total / int64(o.TradedQty)
	}

	if o.RemainingQty == 0 {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	o.UpdatedTs = now
}
