package consumer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/saiputravu/obm/internal/model"
)

// Validation errors. These map to spec.md §7's "Validation" taxonomy:
// rejected before any WAL write, command still acked.
var (
	ErrInvalidQty   = errors.New("consumer: quantity must be > 0")
	ErrInvalidPrice = errors.New("consumer: price must be > 0 minor units")
	ErrInvalidSide  = errors.New("consumer: side must be BUY or SELL")
)

// createRequest is the CREATE command payload. Side accepts either the
// data-model string form (BUY/SELL) or the wire ±1 form spec.md §4.6
// mentions as an alternative representation; both decode to model.Side.
// OrderID is normally supplied by the upstream API front-end (out of
// scope here); if absent, CC assigns one so standalone testing and
// direct clients still work.
type createRequest struct {
	OrderID    string          `json:"order_id"`
	Side       json.RawMessage `json:"side"`
	PricePaise int64           `json:"price_paise"`
	Qty        uint64          `json:"qty"`
}

func (r createRequest) side() (model.Side, error) {
	return decodeSide(r.Side)
}

func decodeSide(raw json.RawMessage) (model.Side, error) {
	if len(raw) == 0 {
		return 0, ErrInvalidSide
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		switch strings.ToUpper(asString) {
		case "BUY":
			return model.Buy, nil
		case "SELL":
			return model.Sell, nil
		default:
			return 0, ErrInvalidSide
		}
	}
	var asInt int
	if err := json.Unmarshal(raw, &asInt); err == nil {
		switch asInt {
		case 1:
			return model.Buy, nil
		case -1:
			return model.Sell, nil
		default:
			return 0, ErrInvalidSide
		}
	}
	return 0, ErrInvalidSide
}

func (r createRequest) validate() error {
	if r.Qty == 0 {
		return ErrInvalidQty
	}
	if r.PricePaise <= 0 {
		return ErrInvalidPrice
	}
	if _, err := r.side(); err != nil {
		return err
	}
	return nil
}

// modifyRequest is the MODIFY command payload: a price-only amendment.
type modifyRequest struct {
	OrderID           string `json:"order_id"`
	UpdatedPricePaise int64  `json:"updated_price_paise"`
}

func (r modifyRequest) validate() error {
	if r.UpdatedPricePaise <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// cancelRequest is the CANCEL command payload.
type cancelRequest struct {
	OrderID string `json:"order_id"`
}

func parsePayload[T any](data json.RawMessage, out *T) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("consumer: decode command payload: %w", err)
	}
	return nil
}
