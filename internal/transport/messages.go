// Package transport adapts the teacher repo's binary TCP wire protocol
// (internal/net/messages.go in the original fenrir source) into a small
// gateway that turns NewOrder/CancelOrder wire messages into commands on
// the durable queue — a stand-in for the out-of-scope API front-end
// (spec.md §1) useful for local demos and integration tests.
package transport

import (
	"encoding/binary"
	"errors"
)

var (
	ErrMessageTooShort    = errors.New("transport: message too short")
	ErrInvalidMessageType = errors.New("transport: invalid message type")
)

// MessageType tags the kind of wire message, as in the teacher's protocol.
type MessageType uint16

const (
	NewOrder MessageType = iota
	CancelOrder
)

// wire layout, fixed-width fields only (no variable-length strings, unlike
// the teacher's ticker/owner fields — this protocol carries a single
// instrument and an opaque order id instead):
//
//	NewOrder:    [type:2][side:1][price_paise:8][qty:8][order_id:16] = 35 bytes
//	CancelOrder: [type:2][order_id:16]                                = 18 bytes
const (
	newOrderLen    = 2 + 1 + 8 + 8 + 16
	cancelOrderLen = 2 + 16
)

// NewOrderMessage is the decoded CREATE wire message.
type NewOrderMessage struct {
	Side       byte // 0 = BUY, 1 = SELL
	PricePaise int64
	Qty        uint64
	OrderID    [16]byte
}

// CancelOrderMessage is the decoded CANCEL wire message.
type CancelOrderMessage struct {
	OrderID [16]byte
}

// ParseMessage decodes one fixed-width message off the wire.
func ParseMessage(buf []byte) (any, error) {
	if len(buf) < 2 {
		return nil, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(buf[0:2]))
	switch typeOf {
	case NewOrder:
		return parseNewOrder(buf)
	case CancelOrder:
		return parseCancelOrder(buf)
	default:
		return nil, ErrInvalidMessageType
	}
}

func parseNewOrder(buf []byte) (NewOrderMessage, error) {
	if len(buf) < newOrderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	msg := NewOrderMessage{
		Side:       buf[2],
		PricePaise: int64(binary.BigEndian.Uint64(buf[3:11])),
		Qty:        binary.BigEndian.Uint64(buf[11:19]),
	}
	copy(msg.OrderID[:], buf[19:35])
	return msg, nil
}

func parseCancelOrder(buf []byte) (CancelOrderMessage, error) {
	if len(buf) < cancelOrderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	var msg CancelOrderMessage
	copy(msg.OrderID[:], buf[2:18])
	return msg, nil
}

// EncodeNewOrder is the client-side counterpart, used by test harnesses.
func EncodeNewOrder(side byte, pricePaise int64, qty uint64, orderID [16]byte) []byte {
	buf := make([]byte, newOrderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	buf[2] = side
	binary.BigEndian.PutUint64(buf[3:11], uint64(pricePaise))
	binary.BigEndian.PutUint64(buf[11:19], qty)
	copy(buf[19:35], orderID[:])
	return buf
}

// EncodeCancelOrder is the client-side counterpart for cancellation.
func EncodeCancelOrder(orderID [16]byte) []byte {
	buf := make([]byte, cancelOrderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	copy(buf[2:18], orderID[:])
	return buf
}
