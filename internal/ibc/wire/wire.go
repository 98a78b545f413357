// Package wire hand-decodes the small slice of Cosmos SDK / IBC protobuf
// messages the collector needs, directly against their stable public wire
// field numbers. The retrieval pack carries no generated Go bindings for
// cosmos-sdk or ibc-go, so full typed stubs aren't available; walking the
// wire with google.golang.org/protobuf/encoding/protowire keeps this a real
// protobuf decode rather than a hand-rolled parser.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Any mirrors google.protobuf.Any: {type_url: string = 1, value: bytes = 2}.
type Any struct {
	TypeURL string
	Value   []byte
}

// Height mirrors ibc.core.client.v1.Height:
// {revision_number: uint64 = 1, revision_height: uint64 = 2}.
type Height struct {
	RevisionNumber uint64
	RevisionHeight uint64
}

// Packet mirrors ibc.core.channel.v1.Packet.
type Packet struct {
	Sequence           uint64
	SourcePort         string
	SourceChannel      string
	DestinationPort    string
	DestinationChannel string
	Data               []byte
	TimeoutHeight      Height
	TimeoutTimestamp   uint64
}

// PacketMsg is the common shape of MsgRecvPacket, MsgAcknowledgement,
// MsgTimeout and MsgTimeoutOnClose: a Packet plus a signer string, each at
// its own field number per message type.
type PacketMsg struct {
	Packet Packet
	Signer string
}

// TransferMsg mirrors ibc.applications.transfer.v1.MsgTransfer.
type TransferMsg struct {
	SourcePort    string
	SourceChannel string
	Sender        string
	Receiver      string
	Memo          string
	TimeoutHeight Height
	Timeout       uint64
}

// FungibleTokenPacketData mirrors
// ibc.applications.transfer.v1.FungibleTokenPacketData.
type FungibleTokenPacketData struct {
	Denom    string
	Amount   string
	Sender   string
	Receiver string
	Memo     string
}

// TxBody mirrors the fields of cosmos.tx.v1beta1.TxBody that the collector
// reads: messages and memo.
type TxBody struct {
	Messages []Any
	Memo     string
}

// field walks b, invoking visit for every (fieldNum, wireType, value-bytes)
// tuple it can consume. Unknown field numbers are passed through so callers
// can ignore them; malformed input returns an error.
func field(b []byte, visit func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		var val []byte
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("wire: bad varint: %w", protowire.ParseError(m))
			}
			val = protowire.AppendVarint(nil, v)
			b = b[m:]
		case protowire.Fixed32Type:
			_, m := protowire.ConsumeFixed32(b)
			if m < 0 {
				return fmt.Errorf("wire: bad fixed32: %w", protowire.ParseError(m))
			}
			val = b[:m]
			b = b[m:]
		case protowire.Fixed64Type:
			_, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return fmt.Errorf("wire: bad fixed64: %w", protowire.ParseError(m))
			}
			val = b[:m]
			b = b[m:]
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("wire: bad bytes: %w", protowire.ParseError(m))
			}
			val = v
			b = b[m:]
		default:
			return fmt.Errorf("wire: unsupported wire type %v", typ)
		}

		if err := visit(num, typ, val); err != nil {
			return err
		}
	}
	return nil
}

func varint(v []byte) uint64 {
	u, _ := protowire.ConsumeVarint(v)
	return u
}

// DecodeAny decodes a google.protobuf.Any.
func DecodeAny(b []byte) (Any, error) {
	var a Any
	err := field(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			a.TypeURL = string(v)
		case 2:
			a.Value = v
		}
		return nil
	})
	return a, err
}

// DecodeHeight decodes an ibc.core.client.v1.Height.
func DecodeHeight(b []byte) (Height, error) {
	var h Height
	err := field(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			h.RevisionNumber = varint(v)
		case 2:
			h.RevisionHeight = varint(v)
		}
		return nil
	})
	return h, err
}

// DecodePacket decodes an ibc.core.channel.v1.Packet.
func DecodePacket(b []byte) (Packet, error) {
	var p Packet
	err := field(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			p.Sequence = varint(v)
		case 2:
			p.SourcePort = string(v)
		case 3:
			p.SourceChannel = string(v)
		case 4:
			p.DestinationPort = string(v)
		case 5:
			p.DestinationChannel = string(v)
		case 6:
			p.Data = append([]byte(nil), v...)
		case 7:
			h, err := DecodeHeight(v)
			if err != nil {
				return err
			}
			p.TimeoutHeight = h
		case 8:
			p.TimeoutTimestamp = varint(v)
		}
		return nil
	})
	return p, err
}

// decodePacketMsg decodes the common {packet=1, signer=signerField} shape
// shared by MsgRecvPacket, MsgAcknowledgement, MsgTimeout and
// MsgTimeoutOnClose.
func decodePacketMsg(b []byte, signerField protowire.Number) (PacketMsg, error) {
	var m PacketMsg
	err := field(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1:
			p, err := DecodePacket(v)
			if err != nil {
				return err
			}
			m.Packet = p
		case num == signerField:
			m.Signer = string(v)
		}
		return nil
	})
	return m, err
}

// DecodeMsgRecvPacket decodes an ibc.core.channel.v1.MsgRecvPacket.
// signer is field 4.
func DecodeMsgRecvPacket(b []byte) (PacketMsg, error) { return decodePacketMsg(b, 4) }

// DecodeMsgAcknowledgement decodes an ibc.core.channel.v1.MsgAcknowledgement.
// signer is field 5.
func DecodeMsgAcknowledgement(b []byte) (PacketMsg, error) { return decodePacketMsg(b, 5) }

// DecodeMsgTimeout decodes an ibc.core.channel.v1.MsgTimeout.
// signer is field 5.
func DecodeMsgTimeout(b []byte) (PacketMsg, error) { return decodePacketMsg(b, 5) }

// DecodeMsgTimeoutOnClose decodes an ibc.core.channel.v1.MsgTimeoutOnClose.
// signer is field 6.
func DecodeMsgTimeoutOnClose(b []byte) (PacketMsg, error) { return decodePacketMsg(b, 6) }

// DecodeMsgTransfer decodes an ibc.applications.transfer.v1.MsgTransfer.
// token (field 3) is a cosmos.base.v1beta1.Coin the collector doesn't need.
func DecodeMsgTransfer(b []byte) (TransferMsg, error) {
	var m TransferMsg
	err := field(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.SourcePort = string(v)
		case 2:
			m.SourceChannel = string(v)
		case 4:
			m.Sender = string(v)
		case 5:
			m.Receiver = string(v)
		case 6:
			h, err := DecodeHeight(v)
			if err != nil {
				return err
			}
			m.TimeoutHeight = h
		case 7:
			m.Timeout = varint(v)
		case 8:
			m.Memo = string(v)
		}
		return nil
	})
	return m, err
}

// DecodeFungibleTokenPacketData decodes an
// ibc.applications.transfer.v1.FungibleTokenPacketData.
func DecodeFungibleTokenPacketData(b []byte) (FungibleTokenPacketData, error) {
	var d FungibleTokenPacketData
	err := field(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			d.Denom = string(v)
		case 2:
			d.Amount = string(v)
		case 3:
			d.Sender = string(v)
		case 4:
			d.Receiver = string(v)
		case 5:
			d.Memo = string(v)
		}
		return nil
	})
	return d, err
}

// DecodeTxBody decodes the messages and memo fields of a
// cosmos.tx.v1beta1.TxBody, ignoring timeout_height and the extension
// option fields the collector never reads.
func DecodeTxBody(b []byte) (TxBody, error) {
	var t TxBody
	err := field(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			a, err := DecodeAny(v)
			if err != nil {
				return err
			}
			t.Messages = append(t.Messages, a)
		case 2:
			t.Memo = string(v)
		}
		return nil
	})
	return t, err
}

// DecodeTxBodyFromTx decodes a cosmos.tx.v1beta1.Tx down to its TxBody
// (field 1); auth_info (field 2) and signatures (field 3) are not needed
// because signer attribution comes from each message's own signer field.
func DecodeTxBodyFromTx(b []byte) (TxBody, error) {
	var body TxBody
	var found bool
	err := field(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 {
			tb, err := DecodeTxBody(v)
			if err != nil {
				return err
			}
			body = tb
			found = true
		}
		return nil
	})
	if err != nil {
		return TxBody{}, err
	}
	if !found {
		return TxBody{}, fmt.Errorf("wire: tx has no body")
	}
	return body, nil
}
