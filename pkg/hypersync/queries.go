package hypersync

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	LogFields = []string{
		"block_number", "block_hash", "log_index", "transaction_index", "transaction_hash",
		"address", "data", "topic0", "topic1", "topic2", "topic3",
	}
	TransactionFields = []string{
		"block_number", "block_hash", "transaction_index", "hash", "from", "to", "nonce", "type",
		"gas_used", "effective_gas_price", "max_fee_per_gas", "max_priority_fee_per_gas",
	}
	BlockFields = []string{
		"number", "hash", "timestamp", "base_fee_per_gas", "gas_used", "extra_data", "parent_beacon_block_root",
	}
)

type txKey struct {
	block uint64
	index uint64
}

// QueryEvents returns every log whose first topic is topic0, starting at fromBlock.
// With includeTxData each record also carries its transaction and block.
func (c *Client) QueryEvents(ctx context.Context, topic0 string, fromBlock uint64, includeTxData bool) ([]EventRecord, error) {
	q := Query{
		FromBlock: fromBlock,
		Logs:      []LogSelection{{Topics: [][]string{{strings.ToLower(topic0)}}}},
		FieldSelection: FieldSelection{
			Log: LogFields,
		},
	}
	if includeTxData {
		q.FieldSelection.Transaction = TransactionFields
		q.FieldSelection.Block = BlockFields
	} else {
		q.JoinMode = JoinNothing
	}

	data, err := c.QueryAll(ctx, q)
	if err != nil {
		return nil, err
	}

	txs := make(map[txKey]*Transaction)
	blocks := make(map[uint64]*Block)
	var records []EventRecord
	for i := range data {
		for j := range data[i].Transactions {
			tx := &data[i].Transactions[j]
			txs[txKey{tx.BlockNumber.Uint64(), tx.TransactionIndex.Uint64()}] = tx
		}
		for j := range data[i].Blocks {
			b := &data[i].Blocks[j]
			blocks[b.Number.Uint64()] = b
		}
	}
	for i := range data {
		for _, l := range data[i].Logs {
			record := EventRecord{Log: l}
			if includeTxData {
				record.Transaction = txs[txKey{l.BlockNumber.Uint64(), l.TransactionIndex.Uint64()}]
				record.Block = blocks[l.BlockNumber.Uint64()]
			}
			records = append(records, record)
		}
	}
	log.WithFields(log.Fields{
		"topic0":    topic0,
		"fromBlock": fromBlock,
		"records":   len(records),
	}).Debug("Fetched events")
	return records, nil
}

// QueryTransactions returns the transactions with the given hashes that the endpoint knows about,
// each joined with its block.
func (c *Client) QueryTransactions(ctx context.Context, hashes []string) ([]TransactionRecord, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	q := Query{
		FromBlock:    0,
		Transactions: []TransactionSelection{{Hash: hashes}},
		FieldSelection: FieldSelection{
			Transaction: TransactionFields,
			Block:       BlockFields,
		},
	}
	data, err := c.QueryAll(ctx, q)
	if err != nil {
		return nil, err
	}

	blocks := make(map[uint64]*Block)
	for i := range data {
		for j := range data[i].Blocks {
			b := &data[i].Blocks[j]
			blocks[b.Number.Uint64()] = b
		}
	}
	var records []TransactionRecord
	for i := range data {
		for _, tx := range data[i].Transactions {
			if tx.Hash == "" {
				return nil, fmt.Errorf("%w: transaction without a hash in block %d", ErrMalformedResponse, tx.BlockNumber.Uint64())
			}
			records = append(records, TransactionRecord{Transaction: tx, Block: blocks[tx.BlockNumber.Uint64()]})
		}
	}
	return records, nil
}
