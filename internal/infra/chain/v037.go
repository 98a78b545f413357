package chain

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// v037Decoder handles CometBFT 0.37: same base64-wrapped attribute
// encoding as 0.34, same txs_results[i].events location, same separate
// begin_block_events/end_block_events arrays to ignore. The dialect
// differs from 0.34 in RPC envelope details the adapter doesn't need to
// distinguish once the block_results JSON has been parsed.
type v037Decoder struct{}

func newV037Decoder() *v037Decoder { return &v037Decoder{} }

func (d *v037Decoder) DecodeBlock(chainID string, newBlock, blockResults []byte) (NormalizedBlock, error) {
	height, ts, rawTxs, err := decodeBlockEnvelope(newBlock)
	if err != nil {
		return NormalizedBlock{}, err
	}

	var br v034BlockResults
	if len(blockResults) > 0 {
		if err := json.Unmarshal(blockResults, &br); err != nil {
			return NormalizedBlock{}, fmt.Errorf("chain/v037: decode block_results: %w", err)
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
