// Package chain is the version adapter boundary (spec component 4.2): it
// converts the three CometBFT/Tendermint wire dialects (0.34, 0.37, 0.38)
// into one NormalizedBlock shape, and owns the per-chain collector state
// machine (spec component 4.1) that drives a websocket subscription
// through it.
package chain

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Cordtus/chainpulse/internal/ibc/msg"
	"github.com/Cordtus/chainpulse/internal/ibc/wire"
)

// NormalizedBlock is the version adapter's single output shape, uniform
// across all three dialects apart from the dialect-specific noise (begin/
// end-block events) the adapter strips.
type NormalizedBlock struct {
	ChainID string
	Height  uint64
	Time    time.Time
	Txs     []NormalizedTx
}

// NormalizedTx is one decoded transaction: its Cosmos SDK body messages
// plus the lifecycle events ABCI recorded for it.
type NormalizedTx struct {
	Hash     string
	Memo     string
	Signers  []string
	Messages []RawMsg
	Events   []RawEvent
}

// RawMsg is a protobuf Any-shaped message as it appeared in the tx body.
type RawMsg struct {
	TypeURL string
	Value   []byte
}

// RawEvent is one ABCI event, attributes already normalized to UTF-8
// strings regardless of the wire's base64-or-plain encoding.
type RawEvent struct {
	Kind       string
	Attributes []Attribute
}

// Attribute is one event attribute key/value pair.
type Attribute struct {
	Key   string
	Value string
}

// Attr looks up the first attribute with the given key.
func (e RawEvent) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Decoder normalizes one chain's CometBFT dialect. DecodeBlock takes the
// raw JSON payload of a NewBlock subscription event and the raw JSON
// response of the matching block_results RPC call, and produces one
// NormalizedBlock.
type Decoder interface {
	DecodeBlock(chainID string, newBlock, blockResults []byte) (NormalizedBlock, error)
}

// blockEnvelope is the NewBlock subscription event shape, stable across
// 0.34/0.37/0.38: only the event-attribute encoding and event location
// differ between dialects, not the block header/data wire shape itself.
type blockEnvelope struct {
	Data struct {
		Value struct {
			Block struct {
				Header struct {
					Height string    `json:"height"`
					Time   time.Time `json:"time"`
				} `json:"header"`
				Data struct {
					Txs []string `json:"txs"` // base64-encoded raw tx bytes
				} `json:"data"`
			} `json:"block"`
		} `json:"value"`
	} `json:"data"`
}

// PeekBlockHeight extracts just the block height from a raw NewBlock
// subscription event, before the matching block_results call is made and
// the full decode via a Decoder is possible.
func PeekBlockHeight(newBlock []byte) (uint64, error) {
	var env blockEnvelope
	if err := json.Unmarshal(newBlock, &env); err != nil {
		return 0, fmt.Errorf("chain: decode NewBlock envelope: %w", err)
	}
	h, err := strconv.ParseUint(env.Data.Value.Block.Header.Height, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chain: parse block height: %w", err)
	}
	return h, nil
}

// decodeBlockEnvelope parses the common NewBlock event shape, returning
// the block height, timestamp, and raw (not yet protobuf-decoded) tx
// bytes in block order.
func decodeBlockEnvelope(newBlock []byte) (height uint64, ts time.Time, rawTxs [][]byte, err error) {
	var env blockEnvelope
	if err := json.Unmarshal(newBlock, &env); err != nil {
		return 0, time.Time{}, nil, fmt.Errorf("chain: decode NewBlock envelope: %w", err)
	}

	h, err := strconv.ParseUint(env.Data.Value.Block.Header.Height, 10, 64)
	if err != nil {
		return 0, time.Time{}, nil, fmt.Errorf("chain: parse block height: %w", err)
	}

	rawTxs = make([][]byte, 0, len(env.Data.Value.Block.Data.Txs))
	for _, b64 := range env.Data.Value.Block.Data.Txs {
		tx, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return 0, time.Time{}, nil, fmt.Errorf("chain: decode tx base64: %w", err)
		}
		rawTxs = append(rawTxs, tx)
	}

	return h, env.Data.Value.Block.Header.Time, rawTxs, nil
}

// decodeTx decodes one raw Cosmos SDK tx's body into a NormalizedTx with
// Events left empty — callers fill Events from the dialect-specific
// block_results location. For Neutron and similar chains, the first tx of
// a block may be a non-standard oracle payload that fails protobuf
// decoding; decodeTx returns an error the caller is expected to log at
// debug and skip, not propagate as a block failure.
func decodeTx(raw []byte) (NormalizedTx, error) {
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	body, err := wire.DecodeTxBodyFromTx(raw)
	if err != nil {
		return NormalizedTx{}, fmt.Errorf("chain: decode tx body: %w", err)
	}

	messages := make([]RawMsg, 0, len(body.Messages))
	var signers []string
	for i, a := range body.Messages {
		messages = append(messages, RawMsg{TypeURL: a.TypeURL, Value: a.Value})

		if i == 0 {
			if d, err := msg.Decode(a.TypeURL, a.Value); err == nil && d.Signer != "" {
				signers = append(signers, d.Signer)
			}
		}
	}

	return NormalizedTx{
		Hash:     hash,
		Memo:     body.Memo,
		Signers:  signers,
		Messages: messages,
	}, nil
}

// toValidUTF8Lossy converts raw event-attribute bytes to a UTF-8 string,
// falling back to lossy replacement-character substitution on invalid
// bytes rather than failing the decode.
func toValidUTF8Lossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// NewDecoder selects the Decoder for a configured comet version.
func NewDecoder(version string) (Decoder, error) {
	switch version {
	case "0.34":
		return newV034Decoder(), nil
	case "0.37":
		return newV037Decoder(), nil
	case "0.38":
		return newV038Decoder(), nil
	default:
		return nil, fmt.Errorf("chain: unknown comet version %q", version)
	}
}
