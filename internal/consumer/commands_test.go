package consumer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saiputravu/obm/internal/model"
)

func TestDecodeSide_StringForm(t *testing.T) {
	buy, err := decodeSide(json.RawMessage(`"buy"`))
	assert.NoError(t, err)
	assert.Equal(t, model.Buy, buy)

	sell, err := decodeSide(json.RawMessage(`"SELL"`))
	assert.NoError(t, err)
	assert.Equal(t, model.Sell, sell)
}

func TestDecodeSide_SignedIntForm(t *testing.T) {
	buy, err := decodeSide(json.RawMessage(`1`))
	assert.NoError(t, err)
	assert.Equal(t, model.Buy, buy)

	sell, err := decodeSide(json.RawMessage(`-1`))
	assert.NoError(t, err)
	assert.Equal(t, model.Sell, sell)
}

func TestDecodeSide_RejectsUnknown(t *testing.T) {
	_, err := decodeSide(json.RawMessage(`"HOLD"`))
	assert.ErrorIs(t, err, ErrInvalidSide)

	_, err = decodeSide(json.RawMessage(`0`))
	assert.ErrorIs(t, err, ErrInvalidSide)

	_, err = decodeSide(nil)
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestCreateRequest_Validate(t *testing.T) {
	valid := createRequest{Side: json.RawMessage(`"BUY"`), PricePaise: 100, Qty: 1}
	assert.NoError(t, valid.validate())

	zeroQty := createRequest{Side: json.RawMessage(`"BUY"`), PricePaise: 100, Qty: 0}
	assert.ErrorIs(t, zeroQty.validate(), ErrInvalidQty)

	zeroPrice := createRequest{Side: json.RawMessage(`"BUY"`), PricePaise: 0, Qty: 1}
	assert.ErrorIs(t, zeroPrice.validate(), ErrInvalidPrice)

	badSide := createRequest{Side: json.RawMessage(`"HOLD"`), PricePaise: 100, Qty: 1}
	assert.ErrorIs(t, badSide.validate(), ErrInvalidSide)
}

func TestModifyRequest_Validate(t *testing.T) {
	assert.NoError(t, modifyRequest{OrderID: "o1", UpdatedPricePaise: 100}.validate())
	assert.ErrorIs(t, modifyRequest{OrderID: "o1", UpdatedPricePaise: 0}.validate(), ErrInvalidPrice)
}

func TestParsePayload_DecodesIntoTarget(t *testing.T) {
	var req cancelRequest
	err := parsePayload(json.RawMessage(`{"order_id":"abc"}`), &req)
	assert.NoError(t, err)
	assert.Equal(t, "abc", req.OrderID)
}

func TestParsePayload_RejectsMalformedJSON(t *testing.T) {
	var req cancelRequest
	err := parsePayload(json.RawMessage(`not json`), &req)
	assert.Error(t, err)
}
