package model

import (
	"bytes"
	"encoding/json"
)

// marshalLevelTuple renders a snapshot row as the two-element JSON array
// [price, qty] the external snapshot channel expects, rather than an
// object with named fields.
func marshalLevelTuple(price float64, qty uint64) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	p, err := json.Marshal(price)
	if err != nil {
		return nil, err
	}
	buf.Write(p)
	buf.WriteByte(',')
	q, err := json.Marshal(qty)
	if err != nil {
		return nil, err
	}
	buf.Write(q)
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
