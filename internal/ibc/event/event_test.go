package event

import (
	"encoding/hex"
	"testing"

	"github.com/Cordtus/chainpulse/internal/infra/chain"
)

func attr(key, value string) chain.Attribute { return chain.Attribute{Key: key, Value: value} }

func TestDecodeSendPacketWithHexData(t *testing.T) {
	data := `{"denom":"uusdc","amount":"30371228","sender":"osmo1a","receiver":"noble1b"}`
	e := chain.RawEvent{
		Kind: TypeSendPacket,
		Attributes: []chain.Attribute{
			attr("packet_sequence", "892193"),
			attr("packet_src_port", "transfer"),
			attr("packet_src_channel", "channel-750"),
			attr("packet_dst_port", "transfer"),
			attr("packet_dst_channel", "channel-1"),
			attr("packet_data_hex", hex.EncodeToString([]byte(data))),
			attr("packet_timeout_timestamp", "1700000000000000000"),
			attr("packet_timeout_height", "0-12345"),
		},
	}

	d, ok := Decode(e)
	if !ok {
		t.Fatal("Decode returned ok=false")
	}
	if d.Kind != KindSendPacket {
		t.Fatalf("Kind = %v, want KindSendPacket", d.Kind)
	}
	if d.Identifying.Sequence != 892193 || d.Identifying.SrcChannel != "channel-750" {
		t.Fatalf("Identifying = %+v", d.Identifying)
	}
	if d.TimeoutHeight.RevisionHeight != 12345 {
		t.Fatalf("TimeoutHeight = %+v", d.TimeoutHeight)
	}
	if d.Transfer == nil || d.Transfer.Denom != "uusdc" {
		t.Fatalf("Transfer = %+v", d.Transfer)
	}
}

func TestDecodeSendPacketWithPlainData(t *testing.T) {
	data := `{"denom":"uatom","amount":"10","sender":"cosmos1a","receiver":"osmo1b"}`
	e := chain.RawEvent{
		Kind: TypeSendPacket,
		Attributes: []chain.Attribute{
			attr("packet_sequence", "1"),
			attr("packet_data", data),
		},
	}

	d, ok := Decode(e)
	if !ok {
		t.Fatal("Decode returned ok=false")
	}
	if string(d.Data) != data {
		t.Fatalf("Data = %q", d.Data)
	}
	if d.Transfer == nil || d.Transfer.Denom != "uatom" {
		t.Fatalf("Transfer = %+v", d.Transfer)
	}
}

func TestDecodeTerminalEventHasNoData(t *testing.T) {
	e := chain.RawEvent{
		Kind: TypeWriteAcknowledgement,
		Attributes: []chain.Attribute{
			attr("packet_sequence", "892193"),
			attr("packet_src_channel", "channel-750"),
		},
	}

	d, ok := Decode(e)
	if !ok {
		t.Fatal("Decode returned ok=false")
	}
	if d.Kind != KindWriteAcknowledgement {
		t.Fatalf("Kind = %v, want KindWriteAcknowledgement", d.Kind)
	}
	if d.Data != nil {
		t.Fatalf("Data = %v, want nil for terminal event", d.Data)
	}
}

func TestDecodeUnrecognizedKind(t *testing.T) {
	e := chain.RawEvent{Kind: "transfer", Attributes: nil}
	_, ok := Decode(e)
	if ok {
		t.Fatal("Decode returned ok=true for unrecognized kind")
	}
	if IsRecognized(e) {
		t.Fatal("IsRecognized returned true for unrecognized kind")
	}
}
