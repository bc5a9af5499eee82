package model

import "time"

// DefaultSnapshotDepth is the number of price levels per side surfaced by
// a snapshot publication unless configured otherwise.
const DefaultSnapshotDepth = 5

// Level is one aggregated row of a Snapshot: a price (as a float, per the
// external channel contract) and the summed remaining quantity resting at
// that price.
type Level struct {
	Price float64 `json:"price"`
	Qty   uint64  `json:"qty"`
}

// MarshalJSON renders a Level as the wire tuple [price, qty] rather than
// an object, matching the snapshot channel payload in spec.md §6.
func (l Level) MarshalJSON() ([]byte, error) {
	return marshalLevelTuple(l.Price, l.Qty)
}

// Snapshot is a point-in-time view of the book, taken between two
// commands (never mid-command, per spec.md §5).
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
}
