package events

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
)

var ErrDecode = errors.New("unable to decode log")

// Columns attached to every event row when transaction data is requested.
var TxDataColumns = []store.Column{
	{Name: "block_number", Type: store.TypeUBigInt},
	{Name: "block_hash", Type: store.TypeVarchar},
	{Name: "timestamp", Type: store.TypeUBigInt},
	{Name: "transaction_hash", Type: store.TypeVarchar},
	{Name: "transaction_index", Type: store.TypeUBigInt},
	{Name: "log_index", Type: store.TypeUBigInt},
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

// Columns attached to every event row without transaction data.
var LogColumns = []store.Column{
	{Name: "block_number", Type: store.TypeUBigInt},
	{Name: "transaction_hash", Type: store.TypeVarchar},
	{Name: "log_index", Type: store.TypeUBigInt},
}

// Columns lists the event arguments in declaration order followed by the log metadata columns.
func (c *EventConfig) Columns(includeTxData bool) []store.Column {
	columns := make([]store.Column, 0, len(c.Event.Inputs)+len(TxDataColumns))
	for _, arg := range c.Event.Inputs {
		typ, ok := c.ColumnMapping[arg.Name]
		if !ok {
			typ = columnType(arg.Type)
		}
		columns = append(columns, store.Column{Name: arg.Name, Type: typ})
	}
	if includeTxData {
		return append(columns, TxDataColumns...)
	}
	return append(columns, LogColumns...)
}

// Decode turns the records into a batch for the event table. Logs that do not belong to the event
// or cannot be decoded are logged and skipped.
func (c *EventConfig) Decode(records []hypersync.EventRecord, includeTxData bool) *store.Batch {
	batch := store.NewBatch(c.Columns(includeTxData)...)
	for _, record := range records {
		row, err := c.decodeRow(record, includeTxData)
		if err != nil {
			loghelper.LogTableError(c.Table, err).WithFields(log.Fields{
				"event":           c.Name,
				"blockNumber":     record.Log.BlockNumber.Uint64(),
				"transactionHash": record.Log.TransactionHash,
				"logIndex":        record.Log.LogIndex.Uint64(),
			}).Error("Skipping a log that could not be decoded")
			continue
		}
		if err := batch.Append(row...); err != nil {
			loghelper.LogTableError(c.Table, err).Error("Skipping a malformed row")
		}
	}
	return batch
}

func (c *EventConfig) decodeRow(record hypersync.EventRecord, includeTxData bool) ([]interface{}, error) {
	topics := record.Log.Topics()
	if len(topics) == 0 || !strings.EqualFold(topics[0], c.Topic0()) {
		return nil, fmt.Errorf("%w: topic0 does not match %s", ErrDecode, c.Name)
	}

	values := make(map[string]interface{}, len(c.Event.Inputs))
	data, err := hexutil.Decode(record.Log.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %s", ErrDecode, err.Error())
	}
	if err := c.Event.Inputs.NonIndexed().UnpackIntoMap(values, data); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err.Error())
	}

	var indexed abi.Arguments
	for _, arg := range c.Event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(topics)-1 != len(indexed) {
		return nil, fmt.Errorf("%w: expected %d indexed topics, got %d", ErrDecode, len(indexed), len(topics)-1)
	}
	hashes := make([]common.Hash, 0, len(indexed))
	for _, t := range topics[1:] {
		hashes = append(hashes, common.HexToHash(t))
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, hashes); err != nil {
		return nil, fmt.Errorf("%w: topics: %s", ErrDecode, err.Error())
	}

	row := make([]interface{}, 0, len(c.Event.Inputs)+len(TxDataColumns))
	for _, arg := range c.Event.Inputs {
		value, err := columnValue(arg.Type, values[arg.Name])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrDecode, arg.Name, err.Error())
		}
		row = append(row, value)
	}

	l := record.Log
	if !includeTxData {
		return append(row, l.BlockNumber.Uint64(), strings.ToLower(l.TransactionHash), l.LogIndex.Uint64()), nil
	}
	row = append(row,
		l.BlockNumber.Uint64(),
		strings.ToLower(l.BlockHash),
		blockValue(record.Block, func(b *hypersync.Block) interface{} { return b.Timestamp.Uint64() }),
		strings.ToLower(l.TransactionHash),
		l.TransactionIndex.Uint64(),
		l.LogIndex.Uint64(),
	)
	return append(row, transactionValues(record.Transaction, record.Block)...), nil
}

// from, to, nonce, type, gas_used, effective_gas_price, max_fee_per_gas, max_priority_fee_per_gas,
// base_fee_per_gas, gas_used_block, extra_data, parent_beacon_block_root
func transactionValues(tx *hypersync.Transaction, block *hypersync.Block) []interface{} {
	values := make([]interface{}, 0, 12)
	if tx == nil {
		values = append(values, nil, nil, nil, nil, nil, nil, nil, nil)
	} else {
		values = append(values,
			strings.ToLower(tx.From),
			lowerOptional(tx.To),
			tx.Nonce.Uint64(),
			hypersync.OptionalUint64(tx.Type),
			hypersync.OptionalUint64(tx.GasUsed),
			hypersync.OptionalUint64(tx.EffectiveGasPrice),
			hypersync.OptionalUint64(tx.MaxFeePerGas),
			hypersync.OptionalUint64(tx.MaxPriorityFeePerGas),
		)
	}
	return append(values,
		blockValue(block, func(b *hypersync.Block) interface{} { return hypersync.OptionalUint64(b.BaseFeePerGas) }),
		blockValue(block, func(b *hypersync.Block) interface{} { return hypersync.OptionalUint64(b.GasUsed) }),
		blockValue(block, func(b *hypersync.Block) interface{} { return optional(b.ExtraData) }),
		blockValue(block, func(b *hypersync.Block) interface{} { return optional(b.ParentBeaconBlockRoot) }),
	)
}

func blockValue(block *hypersync.Block, get func(*hypersync.Block) interface{}) interface{} {
	if block == nil {
		return nil
	}
	return get(block)
}

func optional(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func lowerOptional(s *string) interface{} {
	if s == nil {
		return nil
	}
	return strings.ToLower(*s)
}

func columnType(t abi.Type) store.ColumnType {
	switch t.T {
	case abi.BoolTy:
		return store.TypeBoolean
	case abi.UintTy:
		switch {
		case t.Size <= 64:
			return store.TypeUBigInt
		case t.Size <= 128:
			return store.TypeUHugeInt
		}
		// Wider than any DuckDB integer, stored as decimal digits.
		return store.TypeVarchar
	case abi.IntTy:
		switch {
		case t.Size <= 64:
			return store.TypeBigInt
		case t.Size <= 128:
			return store.TypeHugeInt
		}
		return store.TypeVarchar
	default:
		return store.TypeVarchar
	}
}

// columnValue converts a value produced by the abi package to the Go type stored for its column.
func columnValue(t abi.Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t.T {
	case abi.AddressTy:
		addr, ok := v.(common.Address)
		if !ok {
			return nil, fmt.Errorf("unexpected %T for address", v)
		}
		return strings.ToLower(addr.Hex()), nil
	case abi.FixedBytesTy, abi.HashTy:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("unexpected %T for %s", v, t.String())
		}
		b := make([]byte, rv.Len())
		for i := range b {
			b[i] = byte(rv.Index(i).Uint())
		}
		return hexutil.Encode(b), nil
	case abi.BytesTy:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("unexpected %T for bytes", v)
		}
		return hexutil.Encode(b), nil
	case abi.UintTy, abi.IntTy:
		return integerValue(v)
	case abi.BoolTy, abi.StringTy:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

func integerValue(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case *big.Int:
		return n, nil
	default:
		return nil, fmt.Errorf("unexpected %T for an integer", v)
	}
}
