package store

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/database/sql"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
)

// Write appends the batch to the table. The table is created from the batch columns on first write.
// Writing to an existing table fails with ErrUnknownColumn if the batch carries a column it does not have.
// An empty batch is a no-op.
func (s *Session) Write(ctx context.Context, table string, batch *Batch) (int, error) {
	if batch.IsEmpty() {
		loghelper.LogTable(table).Debug("No new data to write")
		return 0, nil
	}
	if s.readOnly {
		return 0, sql.ErrReadOnly
	}
	batch.ResolveTypes()

	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if exists {
		if err := s.checkColumns(ctx, table, batch); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(ctx); rerr != nil {
				loghelper.LogTableError(table, rerr).Error("Unable to rollback the write")
			}
		}
	}()

	if !exists {
		if _, err = tx.Exec(ctx, createTableStatement(table, batch.Columns)); err != nil {
			loghelper.LogTableError(table, err).Error("Unable to create the table")
			return 0, err
		}
		loghelper.LogTable(table).Info("Created table")
	}

	stmt, err := tx.Prepare(ctx, insertStatement(table, batch.Columns))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, row := range batch.Rows {
		if _, err = stmt.Exec(ctx, bindValues(row)...); err != nil {
			loghelper.LogTableError(table, err).Error("Unable to insert a row")
			return 0, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{"table": table, "rows": batch.Len()}).Debug("Rows written")
	return batch.Len(), nil
}

func (s *Session) checkColumns(ctx context.Context, table string, batch *Batch) error {
	existing, err := s.TableSchema(ctx, table)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		known[c.ColumnName] = struct{}{}
	}
	for _, c := range batch.Columns {
		if _, ok := known[c.Name]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, c.Name)
		}
	}
	return nil
}

func createTableStatement(table string, columns []Column) string {
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		defs = append(defs, quoteIdent(c.Name)+" "+string(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
}

// 128-bit parameters are bound as decimal strings and cast on the server.
func insertStatement(table string, columns []Column) string {
	names := make([]string, 0, len(columns))
	params := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, quoteIdent(c.Name))
		switch c.Type {
		case TypeHugeInt, TypeUHugeInt:
			params = append(params, fmt.Sprintf("CAST(? AS %s)", c.Type))
		default:
			params = append(params, "?")
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(names, ", "), strings.Join(params, ", "))
}

func bindValues(row []interface{}) []interface{} {
	args := make([]interface{}, len(row))
	for i, v := range row {
		switch n := v.(type) {
		case *big.Int:
			if n == nil {
				args[i] = nil
			} else {
				args[i] = n.String()
			}
		default:
			args[i] = v
		}
	}
	return args
}
