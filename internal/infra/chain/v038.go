package chain

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// v038Decoder handles CometBFT 0.38: event attributes arrive already
// decoded (no base64 wrapper) and begin/end-block events are merged into
// a single finalize_block_events array the adapter must still not
// attribute to any tx; per-tx events remain in txs_results[i].events.
type v038Decoder struct{}

func newV038Decoder() *v038Decoder { return &v038Decoder{} }

type v038Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Index bool   `json:"index"`
}

type v038Event struct {
	Type       string          `json:"type"`
	Attributes []v038Attribute `json:"attributes"`
}

type v038TxResult struct {
	Code   uint32      `json:"code"`
	Events []v038Event `json:"events"`
}

type v038BlockResults struct {
	Height              string         `json:"height"`
	TxsResults          []v038TxResult `json:"txs_results"`
	FinalizeBlockEvents []v038Event    `json:"finalize_block_events"`
}

func (d *v038Decoder) DecodeBlock(chainID string, newBlock, blockResults []byte) (NormalizedBlock, error) {
	height, ts, rawTxs, err := decodeBlockEnvelope(newBlock)
	if err != nil {
		return NormalizedBlock{}, err
	}

	var br v038BlockResults
	if len(blockResults) > 0 {
		if err := json.Unmarshal(blockResults, &br); err != nil {
			return NormalizedBlock{}, fmt.Errorf("chain/v038: decode block_results: %w", err)
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
			tx.Events = decodeV038Events(br.TxsResults[i].Events)
		}

		block.Txs = append(block.Txs, tx)
	}

	return block, nil
}

func decodeV038Events(events []v038Event) []RawEvent {
	out := make([]RawEvent, 0, len(events))
	for _, e := range events {
		attrs := make([]Attribute, 0, len(e.Attributes))
		for _, a := range e.Attributes {
			// Already UTF-8 on the wire in 0.38; no base64 unwrap needed.
			attrs = append(attrs, Attribute{Key: a.Key, Value: a.Value})
		}
		out = append(out, RawEvent{Kind: e.Type, Attributes: attrs})
	}
	return out
}
