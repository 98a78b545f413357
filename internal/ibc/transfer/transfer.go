// Package transfer decodes ICS-20 fungible token transfer payloads, trying
// protobuf first and falling back to JSON — both shapes appear in the
// wild, per the Open Question resolution in the design notes.
package transfer

import (
	"encoding/json"

	"github.com/Cordtus/chainpulse/internal/ibc/wire"
)

// Payload is the parser's normalized ICS-20 transfer fields. Decode
// populates all four of Denom/Amount/Sender/Receiver together or not at
// all; Memo is optional within a successful decode.
type Payload struct {
	Denom    string
	Amount   string
	Sender   string
	Receiver string
	Memo     string
}

// jsonPayload mirrors the wire JSON shape: {denom, amount, sender,
// receiver, memo}.
type jsonPayload struct {
	Denom    string `json:"denom"`
	Amount   string `json:"amount"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Memo     string `json:"memo"`
}

// Decode attempts to interpret data as FungibleTokenPacketData, protobuf
// first then JSON. It reports ok=false when neither shape yields all of
// denom/amount/sender/receiver — a partial decode is treated as failure so
// callers never attach a partially populated transfer payload.
func Decode(data []byte) (Payload, bool) {
	if p, ok := decodeProtobuf(data); ok {
		return p, true
	}
	return decodeJSON(data)
}

func decodeProtobuf(data []byte) (Payload, bool) {
	d, err := wire.DecodeFungibleTokenPacketData(data)
	if err != nil {
		return Payload{}, false
	}
	if d.Denom == "" || d.Amount == "" || d.Sender == "" || d.Receiver == "" {
		return Payload{}, false
	}
	return Payload{
		Denom:    d.Denom,
		Amount:   d.Amount,
		Sender:   d.Sender,
		Receiver: d.Receiver,
		Memo:     d.Memo,
	}, true
}

func decodeJSON(data []byte) (Payload, bool) {
	var p jsonPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, false
	}
	if p.Denom == "" || p.Amount == "" || p.Sender == "" || p.Receiver == "" {
		return Payload{}, false
	}
	return Payload{
		Denom:    p.Denom,
		Amount:   p.Amount,
		Sender:   p.Sender,
		Receiver: p.Receiver,
		Memo:     p.Memo,
	}, true
}
