package hypersync

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Query is the body of POST /query.
type Query struct {
	FromBlock      uint64                 `json:"from_block"`
	ToBlock        *uint64                `json:"to_block,omitempty"`
	Logs           []LogSelection         `json:"logs,omitempty"`
	Transactions   []TransactionSelection `json:"transactions,omitempty"`
	FieldSelection FieldSelection         `json:"field_selection"`
	JoinMode       JoinMode               `json:"join_mode,omitempty"`
}

// JoinMode controls which related rows the server returns alongside the selected ones.
type JoinMode int

const (
	// Transactions and blocks of the selected logs.
	JoinDefault JoinMode = 0
	// Every transaction and log of the selected blocks.
	JoinAll JoinMode = 1
	// Only the selected rows.
	JoinNothing JoinMode = 2
)

// LogSelection matches logs by emitting address and topics. Each topic position is an OR list.
type LogSelection struct {
	Address []string   `json:"address,omitempty"`
	Topics  [][]string `json:"topics,omitempty"`
}

// TransactionSelection matches transactions by hash.
type TransactionSelection struct {
	Hash []string `json:"hash,omitempty"`
}

type FieldSelection struct {
	Block       []string `json:"block,omitempty"`
	Transaction []string `json:"transaction,omitempty"`
	Log         []string `json:"log,omitempty"`
}

// QueryResponse is a single page returned by POST /query.
type QueryResponse struct {
	Data          []ResponseData `json:"data"`
	ArchiveHeight *uint64        `json:"archive_height"`
	NextBlock     uint64         `json:"next_block"`
	ExecutionTime uint64         `json:"total_execution_time"`
}

type ResponseData struct {
	Blocks       []Block       `json:"blocks"`
	Transactions []Transaction `json:"transactions"`
	Logs         []Log         `json:"logs"`
}

type Block struct {
	Number                Quantity  `json:"number"`
	Hash                  string    `json:"hash"`
	Timestamp             Quantity  `json:"timestamp"`
	BaseFeePerGas         *Quantity `json:"base_fee_per_gas"`
	GasUsed               *Quantity `json:"gas_used"`
	ExtraData             *string   `json:"extra_data"`
	ParentBeaconBlockRoot *string   `json:"parent_beacon_block_root"`
}

type Transaction struct {
	BlockNumber          Quantity  `json:"block_number"`
	BlockHash            string    `json:"block_hash"`
	TransactionIndex     Quantity  `json:"transaction_index"`
	Hash                 string    `json:"hash"`
	From                 string    `json:"from"`
	To                   *string   `json:"to"`
	Nonce                Quantity  `json:"nonce"`
	Type                 *Quantity `json:"type"`
	GasUsed              *Quantity `json:"gas_used"`
	EffectiveGasPrice    *Quantity `json:"effective_gas_price"`
	MaxFeePerGas         *Quantity `json:"max_fee_per_gas"`
	MaxPriorityFeePerGas *Quantity `json:"max_priority_fee_per_gas"`
}

type Log struct {
	BlockNumber      Quantity `json:"block_number"`
	BlockHash        string   `json:"block_hash"`
	LogIndex         Quantity `json:"log_index"`
	TransactionIndex Quantity `json:"transaction_index"`
	TransactionHash  string   `json:"transaction_hash"`
	Address          string   `json:"address"`
	Data             string   `json:"data"`
	Topic0           *string  `json:"topic0"`
	Topic1           *string  `json:"topic1"`
	Topic2           *string  `json:"topic2"`
	Topic3           *string  `json:"topic3"`
}

// Topics returns the non-empty topics of the log in position order.
func (l Log) Topics() []string {
	var topics []string
	for _, t := range []*string{l.Topic0, l.Topic1, l.Topic2, l.Topic3} {
		if t == nil || *t == "" {
			break
		}
		topics = append(topics, *t)
	}
	return topics
}

// EventRecord is a decoded-ready log together with its transaction and block, when they were requested.
type EventRecord struct {
	Log         Log
	Transaction *Transaction
	Block       *Block
}

// TransactionRecord is a transaction together with its block.
type TransactionRecord struct {
	Transaction Transaction
	Block       *Block
}

// Quantity is an unsigned integer the server may encode as a JSON number, a hex string or a decimal string.
type Quantity struct {
	big.Int
}

// Create a Quantity from a uint64.
func NewQuantity(v uint64) Quantity {
	var q Quantity
	q.SetUint64(v)
	return q
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	base := 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		raw = raw[2:]
		base = 16
		if raw == "" {
			raw = "0"
		}
	}
	if _, ok := q.SetString(raw, base); !ok {
		return fmt.Errorf("invalid quantity %s", string(data))
	}
	if q.Sign() < 0 {
		return fmt.Errorf("negative quantity %s", string(data))
	}
	return nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote("0x" + q.Text(16))), nil
}

// Uint64 value of the quantity. Values beyond 64 bits are truncated.
func (q *Quantity) Uint64() uint64 {
	if q == nil {
		return 0
	}
	return q.Int.Uint64()
}

// OptionalUint64 returns nil for a missing quantity.
func OptionalUint64(q *Quantity) interface{} {
	if q == nil {
		return nil
	}
	return q.Uint64()
}
