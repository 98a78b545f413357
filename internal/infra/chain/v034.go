package chain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
)

// v034Decoder handles CometBFT 0.34: event attributes arrive base64-encoded
// on the wire and per-tx events live in txs_results[i].events; begin_block_
// events/end_block_events are separate top-level arrays the adapter must
// not attribute to any tx.
type v034Decoder struct{}

func newV034Decoder() *v034Decoder { return &v034Decoder{} }

type v034Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Index bool   `json:"index"`
}

type v034Event struct {
	Type       string          `json:"type"`
	Attributes []v034Attribute `json:"attributes"`
}

type v034TxResult struct {
	Code   uint32      `json:"code"`
	Events []v034Event `json:"events"`
}

type v034BlockResults struct {
	Height          string         `json:"height"`
	TxsResults      []v034TxResult `json:"txs_results"`
	BeginBlockEvents []v034Event   `json:"begin_block_events"`
	EndBlockEvents   []v034Event   `json:"end_block_events"`
}

func (d *v034Decoder) DecodeBlock(chainID string, newBlock, blockResults []byte) (NormalizedBlock, error) {
	height, ts, rawTxs, err := decodeBlockEnvelope(newBlock)
	if err != nil {
		return NormalizedBlock{}, err
	}

	var br v034BlockResults
	if len(blockResults) > 0 {
		if err := json.Unmarshal(blockResults, &br); err != nil {
			return NormalizedBlock{}, fmt.Errorf("chain/v034: decode block_results: %w", err)
		}
	}

	block := NormalizedBlock{ChainID: chainID, Height: height, Time: ts}
	for i, raw := range rawTxs {
		tx, err := decodeTx(raw)
		if err != nil {
			slog.Debug("skipping undecodable tx", "chain", chainID, "height", height, "index", i, "error", err)
			continue
		}

		if i < len(br.TxsResults) {
			tx.Events = decodeV034Events(br.TxsResults[i].Events)
		}

		block.Txs = append(block.Txs, tx)
	}

	return block, nil
}

func decodeV034Events(events []v034Event) []RawEvent {
	out := make([]RawEvent, 0, len(events))
	for _, e := range events {
		attrs := make([]Attribute, 0, len(e.Attributes))
		for _, a := range e.Attributes {
			attrs = append(attrs, Attribute{
				Key:   decodeBase64Lossy(a.Key),
				Value: decodeBase64Lossy(a.Value),
			})
		}
		out = append(out, RawEvent{Kind: e.Type, Attributes: attrs})
	}
	return out
}

// decodeBase64Lossy decodes 0.34/0.37's base64-wrapped event attribute
// strings, falling back to the raw string (and, on invalid UTF-8, a lossy
// conversion) so a malformed attribute never fails the whole block.
func decodeBase64Lossy(s string) string {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	return toValidUTF8Lossy(b)
}
