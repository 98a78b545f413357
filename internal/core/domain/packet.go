package domain

import "time"

// EffectState is the tri-state terminal flag for a packet's lifecycle.
type EffectState int

const (
	EffectPending    EffectState = 0
	EffectDelivered  EffectState = 1
	EffectUneffected EffectState = 2
)

func (s EffectState) String() string {
	switch s {
	case EffectPending:
		return "pending"
	case EffectDelivered:
		return "delivered"
	case EffectUneffected:
		return "uneffected"
	default:
		return "unknown"
	}
}

// PacketKey is the identifying triple a Packet is uniquely addressed by.
type PacketKey struct {
	ChainID     string
	SrcChannel  string
	Sequence    uint64
}

// Height is the IBC client height pair (revision number, revision height).
type Height struct {
	RevisionNumber uint64
	RevisionHeight uint64
}

// Packet is the central lifecycle entity: one row per observed send_packet,
// mutated at most once by the first terminal observation on the
// destination chain for that identifying triple.
type Packet struct {
	ChainID            string
	SrcPort            string
	SrcChannel         string
	DstPort            string
	DstChannel         string
	Sequence           uint64
	MsgTypeURL         string
	DataHash           string // hex-encoded SHA-256 of the raw packet data
	CreatedAt          time.Time
	EffectedAt         *time.Time
	TimeoutTimestamp   *uint64 // nanoseconds since Unix epoch
	TimeoutHeight      *Height

	Effected       EffectState
	Signer         string // tx signer that produced this row's send_packet observation
	EffectedSigner string // signer of the terminal observation, once resolved
	EffectedTxHash string
	EffectedMemo   string // memo of the tx that resolved the packet, for frontrun attribution

	// Transfer payload, nullable as a group: either all four are set or none.
	Sender     *string
	Receiver   *string
	Denom      *string
	Amount     *string
	IBCVersion IBCVersion
}

// Key returns the packet's identifying triple.
func (p *Packet) Key() PacketKey {
	return PacketKey{ChainID: p.ChainID, SrcChannel: p.SrcChannel, Sequence: p.Sequence}
}

// HasTransferPayload reports whether the ICS-20 fields were populated.
func (p *Packet) HasTransferPayload() bool {
	return p.Sender != nil && p.Receiver != nil && p.Denom != nil && p.Amount != nil
}

// FrontrunEvent is derived, not persisted as its own row: emitted when an
// uneffected observation matches an earlier delivered row on the same key.
type FrontrunEvent struct {
	ChainID       string
	SrcChannel    string
	SrcPort       string
	DstChannel    string
	DstPort       string
	Sequence      uint64
	WinnerSigner  string
	LoserSigner   string
	WinnerMemo    string
	LoserMemo     string
}

// ChannelCongestion is derived: per (src_channel, dst_channel) pair, the
// count of pending packets and their summed amount per denom. Every pending
// row counts, whatever its age; no stuck-age threshold is applied.
type ChannelCongestion struct {
	SrcChannel         string
	DstChannel         string
	StuckCount         int
	OldestStuckAgeSecs int64
	TotalByDenom       map[string]string
}
