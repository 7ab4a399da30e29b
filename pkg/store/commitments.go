package store

import (
	"context"
	"fmt"
	"strings"
)

// Joins the three event tables and the L1 transactions into one row per preconfirmation.
// Only commitments that are stored, opened, processed and have a matching L1 transaction appear.
const commitmentsCTE = `WITH commitments AS (
	SELECT
		e.commitmentIndex,
		e.committer,
		e.commitmentDigest,
		c.bidder,
		p.isSlash,
		c.commitmentSignature,
		c.bid,
		c.blockNumber AS inc_block_number,
		c.bidHash,
		c.decayStartTimeStamp,
		c.decayEndTimeStamp,
		c.txnHash,
		c.revertingTxHashes,
		c.bidSignature,
		c.sharedSecretKey,
		c.block_number,
		l.block_number AS block_number_l1,
		l.extra_data AS extra_data_l1,
		l."to" AS to_l1,
		l."from" AS from_l1,
		l.nonce AS nonce_l1,
		l."type" AS type_l1,
		l.block_hash AS block_hash_l1,
		l."timestamp" AS timestamp_l1,
		l.base_fee_per_gas AS base_fee_per_gas_l1,
		l.gas_used_block AS gas_used_block_l1,
		l.parent_beacon_block_root,
		l.max_priority_fee_per_gas AS max_priority_fee_per_gas_l1,
		l.max_fee_per_gas AS max_fee_per_gas_l1,
		l.effective_gas_price AS effective_gas_price_l1,
		l.gas_used AS gas_used_l1
	FROM encrypted_stores e
	INNER JOIN commit_stores c ON e.commitmentIndex = c.commitmentIndex
	INNER JOIN commits_processed p ON c.commitmentIndex = p.commitmentIndex
	INNER JOIN l1_transactions l ON l.hash = CASE
		WHEN lower(c.txnHash) LIKE '0x%' THEN lower(c.txnHash)
		ELSE '0x' || lower(c.txnHash)
	END
)
`

// Wei is an unbounded integer amount rendered as a bare JSON number.
type Wei string

func (w Wei) MarshalJSON() ([]byte, error) {
	if w == "" {
		return []byte("null"), nil
	}
	return []byte(w), nil
}

// Commitment is a single row of the commitment view.
type Commitment struct {
	CommitmentIndex        string  `db:"commitmentIndex" json:"commitmentIndex"`
	Committer              string  `db:"committer" json:"committer"`
	CommitmentDigest       string  `db:"commitmentDigest" json:"commitmentDigest"`
	Bidder                 string  `db:"bidder" json:"bidder"`
	IsSlash                bool    `db:"isSlash" json:"isSlash"`
	CommitmentSignature    string  `db:"commitmentSignature" json:"commitmentSignature"`
	Bid                    Wei     `db:"bid" json:"bid"`
	IncBlockNumber         uint64  `db:"inc_block_number" json:"inc_block_number"`
	BidHash                string  `db:"bidHash" json:"bidHash"`
	DecayStartTimeStamp    uint64  `db:"decayStartTimeStamp" json:"decayStartTimeStamp"`
	DecayEndTimeStamp      uint64  `db:"decayEndTimeStamp" json:"decayEndTimeStamp"`
	TxnHash                string  `db:"txnHash" json:"txnHash"`
	RevertingTxHashes      *string `db:"revertingTxHashes" json:"revertingTxHashes"`
	BidSignature           string  `db:"bidSignature" json:"bidSignature"`
	SharedSecretKey        string  `db:"sharedSecretKey" json:"sharedSecretKey"`
	BlockNumber            uint64  `db:"block_number" json:"block_number"`
	BlockNumberL1          uint64  `db:"block_number_l1" json:"block_number_l1"`
	ExtraDataL1            *string `db:"extra_data_l1" json:"extra_data_l1"`
	ToL1                   *string `db:"to_l1" json:"to_l1"`
	FromL1                 *string `db:"from_l1" json:"from_l1"`
	NonceL1                *uint64 `db:"nonce_l1" json:"nonce_l1"`
	TypeL1                 *uint64 `db:"type_l1" json:"type_l1"`
	BlockHashL1            *string `db:"block_hash_l1" json:"block_hash_l1"`
	TimestampL1            *uint64 `db:"timestamp_l1" json:"timestamp_l1"`
	BaseFeePerGasL1        *uint64 `db:"base_fee_per_gas_l1" json:"base_fee_per_gas_l1"`
	GasUsedBlockL1         *uint64 `db:"gas_used_block_l1" json:"gas_used_block_l1"`
	ParentBeaconBlockRoot  *string `db:"parent_beacon_block_root" json:"parent_beacon_block_root"`
	MaxPriorityFeePerGasL1 *uint64 `db:"max_priority_fee_per_gas_l1" json:"max_priority_fee_per_gas_l1"`
	MaxFeePerGasL1         *uint64 `db:"max_fee_per_gas_l1" json:"max_fee_per_gas_l1"`
	EffectiveGasPriceL1    *uint64 `db:"effective_gas_price_l1" json:"effective_gas_price_l1"`
	GasUsedL1              *uint64 `db:"gas_used_l1" json:"gas_used_l1"`
}

// CommitmentColumns lists the view columns that can be grouped on.
var CommitmentColumns = []string{
	"commitmentIndex", "committer", "commitmentDigest", "bidder", "isSlash", "commitmentSignature",
	"bid", "inc_block_number", "bidHash", "decayStartTimeStamp", "decayEndTimeStamp", "txnHash",
	"revertingTxHashes", "bidSignature", "sharedSecretKey", "block_number", "block_number_l1",
	"extra_data_l1", "to_l1", "from_l1", "nonce_l1", "type_l1", "block_hash_l1", "timestamp_l1",
	"base_fee_per_gas_l1", "gas_used_block_l1", "parent_beacon_block_root",
	"max_priority_fee_per_gas_l1", "max_fee_per_gas_l1", "effective_gas_price_l1", "gas_used_l1",
}

// IsCommitmentColumn reports whether name is a column of the commitment view.
func IsCommitmentColumn(name string) bool {
	for _, c := range CommitmentColumns {
		if c == name {
			return true
		}
	}
	return false
}

// CommitmentFilter narrows a commitment listing. A zero Limit returns every matching row.
type CommitmentFilter struct {
	Bidder         string
	BlockNumberMin *uint64
	BlockNumberMax *uint64
	Limit          int
	Offset         int
}

func (f CommitmentFilter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.Bidder != "" {
		clauses = append(clauses, "lower(bidder) = lower(?)")
		args = append(args, f.Bidder)
	}
	if f.BlockNumberMin != nil {
		clauses = append(clauses, "inc_block_number >= ?")
		args = append(args, *f.BlockNumberMin)
	}
	if f.BlockNumberMax != nil {
		clauses = append(clauses, "inc_block_number <= ?")
		args = append(args, *f.BlockNumberMax)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Session) hasCommitmentTables(ctx context.Context) (bool, error) {
	for _, table := range []string{TableEncryptedStores, TableCommitStores, TableCommitsProcessed, TableL1Transactions} {
		exists, err := s.TableExists(ctx, table)
		if err != nil || !exists {
			return false, err
		}
	}
	return true, nil
}

// Commitments returns one page of the commitment view, newest inclusion block first, and the number
// of rows matching the filter. Until all four source tables exist the view is empty.
func (s *Session) Commitments(ctx context.Context, f CommitmentFilter) ([]Commitment, int64, error) {
	ready, err := s.hasCommitmentTables(ctx)
	if err != nil || !ready {
		return []Commitment{}, 0, err
	}

	where, args := f.where()
	var total int64
	if err := s.db.QueryRow(ctx, commitmentsCTE+"SELECT COUNT(*) FROM commitments"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := commitmentsCTE + "SELECT * REPLACE (CAST(bid AS VARCHAR) AS bid) FROM commitments" + where +
		" ORDER BY inc_block_number DESC, commitmentIndex"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	commitments := []Commitment{}
	if err := s.db.Select(ctx, &commitments, query, args...); err != nil {
		return nil, 0, err
	}
	return commitments, total, nil
}

// Aggregation is the summary of all commitments sharing one value of the grouped column.
// Bids are reported in ether.
type Aggregation struct {
	GroupByValue interface{} `db:"group_by_value"`
	PreconfCount int64       `db:"preconf_count"`
	AverageBid   *float64    `db:"average_bid"`
	TotalBid     *float64    `db:"total_bid"`
}

// AggregateCommitments groups the commitment view by field, most frequent value first.
// field must be one of CommitmentColumns.
func (s *Session) AggregateCommitments(ctx context.Context, field string) ([]Aggregation, error) {
	if !IsCommitmentColumn(field) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, field)
	}
	ready, err := s.hasCommitmentTables(ctx)
	if err != nil || !ready {
		return []Aggregation{}, err
	}
	query := commitmentsCTE + fmt.Sprintf(`SELECT
		%s AS group_by_value,
		COUNT(*) AS preconf_count,
		AVG(CAST(bid AS DOUBLE)) / 1e18 AS average_bid,
		SUM(CAST(bid AS DOUBLE)) / 1e18 AS total_bid
	FROM commitments
	GROUP BY 1
	ORDER BY preconf_count DESC, 1`, quoteIdent(field))
	aggregations := []Aggregation{}
	if err := s.db.Select(ctx, &aggregations, query); err != nil {
		return nil, err
	}
	return aggregations, nil
}
