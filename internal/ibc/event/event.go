// Package event implements the IBC event parser (spec component 4.4):
// decoding the lifecycle events ABCI records during tx execution and
// feeding send/terminal transitions into the lifecycle engine.
package event

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/Cordtus/chainpulse/internal/core/domain"
	"github.com/Cordtus/chainpulse/internal/ibc/transfer"
	"github.com/Cordtus/chainpulse/internal/infra/chain"
)

// Kind identifies which of the five recognized event kinds a RawEvent is.
type Kind int

const (
	KindUnknown Kind = iota
	KindSendPacket
	KindRecvPacket
	KindWriteAcknowledgement
	KindAcknowledgePacket
	KindTimeoutPacket
)

const (
	TypeSendPacket           = "send_packet"
	TypeRecvPacket           = "recv_packet"
	TypeWriteAcknowledgement = "write_acknowledgement"
	TypeAcknowledgePacket    = "acknowledge_packet"
	TypeTimeoutPacket        = "timeout_packet"
)

func kindOf(t string) Kind {
	switch t {
	case TypeSendPacket:
		return KindSendPacket
	case TypeRecvPacket:
		return KindRecvPacket
	case TypeWriteAcknowledgement:
		return KindWriteAcknowledgement
	case TypeAcknowledgePacket:
		return KindAcknowledgePacket
	case TypeTimeoutPacket:
		return KindTimeoutPacket
	default:
		return KindUnknown
	}
}

// Identifying is the triple (plus ports) every IBC lifecycle event's
// attributes carry.
type Identifying struct {
	Sequence   uint64
	SrcPort    string
	SrcChannel string
	DstPort    string
	DstChannel string
}

// Decoded is the event parser's output for one recognized RawEvent.
type Decoded struct {
	Kind             Kind
	Identifying      Identifying
	Data             []byte // synthesized packet data; only populated for send_packet
	Transfer         *transfer.Payload
	TimeoutTimestamp uint64
	TimeoutHeight    domain.Height
}

// IsRecognized reports whether e.Kind is one of the five IBC lifecycle
// event kinds the parser decodes; anything else is ignored by the caller.
func IsRecognized(e chain.RawEvent) bool {
	return kindOf(e.Kind) != KindUnknown
}

// Decode decodes one ABCI event into its identifying triple and, for
// send_packet, its synthesized packet data re-run through the ICS-20
// decoder. It returns ok=false for event kinds outside the five
// recognized lifecycle kinds.
func Decode(e chain.RawEvent) (Decoded, bool) {
	kind := kindOf(e.Kind)
	if kind == KindUnknown {
		return Decoded{}, false
	}

	d := Decoded{Kind: kind}

	if seqStr, ok := e.Attr("packet_sequence"); ok {
		if seq, err := strconv.ParseUint(seqStr, 10, 64); err == nil {
			d.Identifying.Sequence = seq
		}
	}
	d.Identifying.SrcPort, _ = e.Attr("packet_src_port")
	d.Identifying.SrcChannel, _ = e.Attr("packet_src_channel")
	d.Identifying.DstPort, _ = e.Attr("packet_dst_port")
	d.Identifying.DstChannel, _ = e.Attr("packet_dst_channel")

	if tsStr, ok := e.Attr("packet_timeout_timestamp"); ok {
		if ts, err := strconv.ParseUint(tsStr, 10, 64); err == nil {
			d.TimeoutTimestamp = ts
		}
	}
	if hStr, ok := e.Attr("packet_timeout_height"); ok {
		d.TimeoutHeight = parseHeight(hStr)
	}

	if kind == KindSendPacket {
		data := synthesizePacketData(e)
		d.Data = data
		if payload, ok := transfer.Decode(data); ok {
			d.Transfer = &payload
		}
	}

	return d, true
}

// synthesizePacketData reconstructs the raw packet data bytes from
// whichever attribute variant is present: hex-decoded for the 0.38-style
// packet_data_hex attribute, else the UTF-8 bytes of the plain
// packet_data string.
func synthesizePacketData(e chain.RawEvent) []byte {
	if hexStr, ok := e.Attr("packet_data_hex"); ok {
		if b, err := hex.DecodeString(hexStr); err == nil {
			return b
		}
	}
	if str, ok := e.Attr("packet_data"); ok {
		return []byte(str)
	}
	return nil
}

// parseHeight parses the ibc-go "{revision}-{height}" height string
// representation, e.g. "0-12345".
func parseHeight(s string) domain.Height {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return domain.Height{}
	}
	rev, err1 := strconv.ParseUint(parts[0], 10, 64)
	h, err2 := strconv.ParseUint(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return domain.Height{}
	}
	return domain.Height{RevisionNumber: rev, RevisionHeight: h}
}
