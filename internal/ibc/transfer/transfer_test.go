package transfer

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func TestDecodeProtobuf(t *testing.T) {
	var b []byte
	b = appendString(b, 1, "uusdc")
	b = appendString(b, 2, "30371228")
	b = appendString(b, 3, "osmo1a")
	b = appendString(b, 4, "noble1b")

	p, ok := Decode(b)
	if !ok {
		t.Fatal("Decode returned ok=false for valid protobuf payload")
	}
	if p.Denom != "uusdc" || p.Amount != "30371228" || p.Sender != "osmo1a" || p.Receiver != "noble1b" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestDecodeJSONFallback(t *testing.T) {
	data := []byte(`{"denom":"uatom","amount":"100","sender":"cosmos1a","receiver":"osmo1b","memo":"hello"}`)

	p, ok := Decode(data)
	if !ok {
		t.Fatal("Decode returned ok=false for valid JSON payload")
	}
	if p.Denom != "uatom" || p.Memo != "hello" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestDecodeJSONWithoutMemo(t *testing.T) {
	data := []byte(`{"denom":"uatom","amount":"100","sender":"cosmos1a","receiver":"osmo1b"}`)

	p, ok := Decode(data)
	if !ok {
		t.Fatal("Decode returned ok=false")
	}
	if p.Memo != "" {
		t.Fatalf("Memo = %q, want empty", p.Memo)
	}
}

func TestDecodeFailsOnGarbage(t *testing.T) {
	_, ok := Decode([]byte("not a packet at all"))
	if ok {
		t.Fatal("Decode returned ok=true for garbage input")
	}
}

func TestDecodeFailsOnPartialJSON(t *testing.T) {
	data := []byte(`{"denom":"uatom","amount":"100"}`)
	_, ok := Decode(data)
	if ok {
		t.Fatal("Decode returned ok=true for partial payload")
	}
}
