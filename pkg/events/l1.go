package events

import (
	"strings"

	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
)

// Columns of the l1_transactions table.
var L1Columns = []store.Column{
	{Name: "hash", Type: store.TypeVarchar},
	{Name: "block_number", Type: store.TypeUBigInt},
	{Name: "block_hash", Type: store.TypeVarchar},
	{Name: "timestamp", Type: store.TypeUBigInt},
	{Name: "transaction_index", Type: store.TypeUBigInt},
	{Name: "from", Type: store.TypeVarchar},
	{Name: "to", Type: store.TypeVarchar},
	{Name: "nonce", Type: store.TypeUBigInt},
	{Name: "type", Type: store.TypeUBigInt},
	{Name: "gas_used", Type: store.TypeUBigInt},
	{Name: "effective_gas_price", Type: store.TypeUBigInt},
	{Name: "max_fee_per_gas", Type: store.TypeUBigInt},
	{Name: "max_priority_fee_per_gas", Type: store.TypeUBigInt},
	{Name: "base_fee_per_gas", Type: store.TypeUBigInt},
	{Name: "gas_used_block", Type: store.TypeUBigInt},
	{Name: "extra_data", Type: store.TypeVarchar},
	{Name: "parent_beacon_block_root", Type: store.TypeVarchar},
}

// L1Batch builds the l1_transactions rows. The hash column is normalized so it joins with txnHash.
func L1Batch(records []hypersync.TransactionRecord) *store.Batch {
	batch := store.NewBatch(L1Columns...)
	for _, r := range records {
		tx := r.Transaction
		row := []interface{}{
			NormalizeTxHash(tx.Hash),
			tx.BlockNumber.Uint64(),
			strings.ToLower(tx.BlockHash),
			blockValue(r.Block, func(b *hypersync.Block) interface{} { return b.Timestamp.Uint64() }),
			tx.TransactionIndex.Uint64(),
		}
		row = append(row, transactionValues(&tx, r.Block)...)
		if err := batch.Append(row...); err != nil {
			loghelper.LogTableError(store.TableL1Transactions, err).Error("Skipping a malformed row")
		}
	}
	return batch
}

// NormalizeTxHash lowercases the hash and makes sure it carries exactly one 0x prefix.
func NormalizeTxHash(hash string) string {
	h := strings.ToLower(strings.TrimSpace(hash))
	for strings.HasPrefix(h, "0x") {
		h = h[2:]
	}
	return "0x" + h
}

// DistinctTxHashes returns the normalized txnHash values of a commit_stores batch in first-seen order.
func DistinctTxHashes(batch *store.Batch) []string {
	if batch.IsEmpty() {
		return nil
	}
	values, err := batch.Column("txnHash")
	if err != nil {
		loghelper.LogError(err).Error("The batch carries no txnHash column")
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	hashes := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		h := NormalizeTxHash(s)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
	}
	return hashes
}
