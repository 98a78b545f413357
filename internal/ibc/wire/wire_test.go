package wire

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendTag(b []byte, num protowire.Number, typ protowire.Type) []byte {
	return protowire.AppendTag(b, num, typ)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = appendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = appendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = appendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func TestDecodePacket(t *testing.T) {
	var b []byte
	b = appendVarint(b, 1, 892193)
	b = appendString(b, 2, "transfer")
	b = appendString(b, 3, "channel-750")
	b = appendString(b, 4, "transfer")
	b = appendString(b, 5, "channel-1")
	b = appendBytesField(b, 6, []byte(`{"denom":"uusdc"}`))
	b = appendVarint(b, 8, 1700000000000000000)

	p, err := DecodePacket(b)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if p.Sequence != 892193 || p.SourceChannel != "channel-750" || p.DestinationChannel != "channel-1" {
		t.Fatalf("unexpected packet: %+v", p)
	}
	if p.TimeoutTimestamp != 1700000000000000000 {
		t.Fatalf("unexpected timeout: %+v", p)
	}
}

func TestDecodeMsgRecvPacketSigner(t *testing.T) {
	var packetBytes []byte
	packetBytes = appendVarint(packetBytes, 1, 1)
	packetBytes = appendString(packetBytes, 2, "transfer")

	var b []byte
	b = appendBytesField(b, 1, packetBytes)
	b = appendString(b, 4, "osmo1relayer")

	m, err := DecodeMsgRecvPacket(b)
	if err != nil {
		t.Fatalf("DecodeMsgRecvPacket: %v", err)
	}
	if m.Signer != "osmo1relayer" {
		t.Fatalf("Signer = %q, want osmo1relayer", m.Signer)
	}
	if m.Packet.Sequence != 1 {
		t.Fatalf("Packet.Sequence = %d, want 1", m.Packet.Sequence)
	}
}

func TestDecodeFungibleTokenPacketData(t *testing.T) {
	var b []byte
	b = appendString(b, 1, "uusdc")
	b = appendString(b, 2, "30371228")
	b = appendString(b, 3, "osmo1a")
	b = appendString(b, 4, "noble1b")

	d, err := DecodeFungibleTokenPacketData(b)
	if err != nil {
		t.Fatalf("DecodeFungibleTokenPacketData: %v", err)
	}
	if d.Denom != "uusdc" || d.Amount != "30371228" || d.Sender != "osmo1a" || d.Receiver != "noble1b" {
		t.Fatalf("unexpected payload: %+v", d)
	}
	if d.Memo != "" {
		t.Fatalf("Memo = %q, want empty", d.Memo)
	}
}

func TestDecodeAny(t *testing.T) {
	var b []byte
	b = appendString(b, 1, "/ibc.core.channel.v1.MsgRecvPacket")
	b = appendBytesField(b, 2, []byte{0x01, 0x02})

	a, err := DecodeAny(b)
	if err != nil {
		t.Fatalf("DecodeAny: %v", err)
	}
	if a.TypeURL != "/ibc.core.channel.v1.MsgRecvPacket" {
		t.Fatalf("TypeURL = %q", a.TypeURL)
	}
	if len(a.Value) != 2 {
		t.Fatalf("Value = %v", a.Value)
	}
}

func TestDecodeTxBody(t *testing.T) {
	var anyBytes []byte
	anyBytes = appendString(anyBytes, 1, "/ibc.applications.transfer.v1.MsgTransfer")
	anyBytes = appendBytesField(anyBytes, 2, []byte{0xAB})

	var b []byte
	b = appendBytesField(b, 1, anyBytes)
	b = appendString(b, 2, "relayed by hermes")

	body, err := DecodeTxBody(b)
	if err != nil {
		t.Fatalf("DecodeTxBody: %v", err)
	}
	if len(body.Messages) != 1 || body.Messages[0].TypeURL != "/ibc.applications.transfer.v1.MsgTransfer" {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
	if body.Memo != "relayed by hermes" {
		t.Fatalf("Memo = %q", body.Memo)
	}
}
