package store

import (
	"fmt"
	"math/big"
)

// ColumnType is the DuckDB logical type a column is created with.
type ColumnType string

const (
	TypeBoolean  ColumnType = "BOOLEAN"
	TypeBigInt   ColumnType = "BIGINT"
	TypeUBigInt  ColumnType = "UBIGINT"
	TypeHugeInt  ColumnType = "HUGEINT"
	TypeUHugeInt ColumnType = "UHUGEINT"
	TypeDouble   ColumnType = "DOUBLE"
	TypeVarchar  ColumnType = "VARCHAR"
)

// A single column of a Batch. An empty Type is inferred from the first non-nil value on write.
type Column struct {
	Name string
	Type ColumnType
}

// Batch is an ordered set of rows that share a column layout. It is the unit the Store Writer appends.
type Batch struct {
	Columns []Column
	Rows    [][]interface{}
}

// Create an empty batch with the provided columns.
func NewBatch(columns ...Column) *Batch {
	return &Batch{Columns: columns}
}

// Number of rows in the batch. A nil batch has no rows.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

func (b *Batch) IsEmpty() bool {
	return b.Len() == 0
}

// Append a single row. The number of values must match the number of columns.
func (b *Batch) Append(values ...interface{}) error {
	if len(values) != len(b.Columns) {
		return fmt.Errorf("row has %d values, the batch has %d columns", len(values), len(b.Columns))
	}
	b.Rows = append(b.Rows, values)
	return nil
}

// Index of the named column, -1 if it is not part of the batch.
func (b *Batch) ColumnIndex(name string) int {
	for i, c := range b.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// All values of the named column in row order.
func (b *Batch) Column(name string) ([]interface{}, error) {
	idx := b.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	values := make([]interface{}, 0, len(b.Rows))
	for _, row := range b.Rows {
		values = append(values, row[idx])
	}
	return values, nil
}

// MaxUint64 returns the largest value of a numeric column. ok is false when the batch holds no values.
func (b *Batch) MaxUint64(name string) (max uint64, ok bool, err error) {
	values, err := b.Column(name)
	if err != nil {
		return 0, false, err
	}
	for _, v := range values {
		n, isNum := toUint64(v)
		if !isNum {
			continue
		}
		if !ok || n > max {
			max = n
			ok = true
		}
	}
	return max, ok, nil
}

// DropBelow removes every row whose column value is lower than min, returning the number removed.
// Rows with a NULL or non-numeric value are kept.
func (b *Batch) DropBelow(name string, min uint64) (int, error) {
	idx := b.ColumnIndex(name)
	if idx < 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	kept := b.Rows[:0]
	dropped := 0
	for _, row := range b.Rows {
		if n, ok := toUint64(row[idx]); ok && n < min {
			dropped++
			continue
		}
		kept = append(kept, row)
	}
	b.Rows = kept
	return dropped, nil
}

// ResolveTypes fills every untyped column with the type of its first non-nil value.
// Columns that only hold NULLs become VARCHAR.
func (b *Batch) ResolveTypes() {
	for i := range b.Columns {
		if b.Columns[i].Type != "" {
			continue
		}
		b.Columns[i].Type = TypeVarchar
		for _, row := range b.Rows {
			if row[i] != nil {
				b.Columns[i].Type = InferType(row[i])
				break
			}
		}
	}
}

// InferType maps a Go value to the column type it is stored as.
func InferType(v interface{}) ColumnType {
	switch v.(type) {
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64:
		return TypeBigInt
	case uint, uint8, uint16, uint32, uint64:
		return TypeUBigInt
	case *big.Int:
		// Arbitrary precision, kept as decimal text. DuckDB casts it back for arithmetic.
		return TypeVarchar
	case float32, float64:
		return TypeDouble
	default:
		return TypeVarchar
	}
}

func toUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, true
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, true
		}
		return uint64(n), true
	case *big.Int:
		if n == nil || !n.IsUint64() {
			return 0, false
		}
		return n.Uint64(), true
	default:
		return 0, false
	}
}
