package model

import "time"

// Trade is immutable once emitted by the matching engine.
type Trade struct {
	ID          string    `json:"trade_id"`
	Timestamp   time.Time `json:"timestamp"`
	PricePaise  int64     `json:"price_paise"`
	Qty         uint64    `json:"qty"`
	BidOrderID  string    `json:"bid_order_id"`
	AskOrderID  string    `json:"ask_order_id"`
}

// WirePrice renders the trade's price as a decimal string with exactly two
// fractional digits. Internal arithmetic never touches this representation.
func (t Trade) WirePrice() string {
	return minorUnitsToDecimal(t.PricePaise)
}
