// VulcanizeDB
// Copyright © 2022 Vulcanize

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package store owns the shared DuckDB file. Every access goes through the store lock: the ingestion
// process uses Update, the query service uses View, and neither ever sees the other mid-write.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/database/sql"
	"github.com/vulcanize/mev-commit-indexer/pkg/database/sql/duckdb"
	"github.com/vulcanize/mev-commit-indexer/pkg/dblock"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
)

// The tables written by the ingestion loop. Their names and columns are read by the query service.
const (
	TableEncryptedStores  = "encrypted_stores"
	TableCommitStores     = "commit_stores"
	TableCommitsProcessed = "commits_processed"
	TableL1Transactions   = "l1_transactions"

	BlockNumberColumn = "block_number"
)

var (
	ErrStoreNotFound = errors.New("the store file does not exist")
	ErrTableNotFound = errors.New("table not found")
	ErrUnknownColumn = errors.New("unknown column")
)

// Locker is the cross-process mutex guarding the store file.
type Locker interface {
	Acquire() (*dblock.Handle, error)
	Release(*dblock.Handle)
}

// Store opens the store file on demand, only while holding the lock.
type Store struct {
	path string
	lock Locker
}

// Create a Store for the file at path guarded by lock.
func New(path string, lock Locker) *Store {
	return &Store{path: path, lock: lock}
}

// Path of the store file.
func (st *Store) Path() string {
	return st.path
}

// Update acquires the lock, opens the store for writing, runs fn and closes everything again.
// The store file and its directory are created if needed.
func (st *Store) Update(ctx context.Context, fn func(*Session) error) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("unable to create the store directory: %w", err)
	}
	return st.withSession(ctx, false, fn)
}

// View acquires the lock, opens the store read-only, runs fn and closes everything again.
// ErrStoreNotFound is returned if nothing has been ingested yet.
func (st *Store) View(ctx context.Context, fn func(*Session) error) error {
	return st.withSession(ctx, true, fn)
}

func (st *Store) withSession(ctx context.Context, readOnly bool, fn func(*Session) error) (err error) {
	handle, err := st.lock.Acquire()
	if err != nil {
		return err
	}
	defer st.lock.Release(handle)

	if readOnly {
		if _, statErr := os.Stat(st.path); errors.Is(statErr, os.ErrNotExist) {
			return ErrStoreNotFound
		}
	}

	db, err := duckdb.SetupDuckDb(ctx, st.path, readOnly)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			loghelper.LogError(cerr).WithField("path", st.path).Error("Unable to close the store")
			if err == nil {
				err = cerr
			}
		}
	}()

	return fn(&Session{db: db, readOnly: readOnly})
}

// Session is an open connection to the store, valid only inside Update or View.
type Session struct {
	db       sql.Database
	readOnly bool
}

// TableExists reports whether the named table has been created.
func (s *Session) TableExists(ctx context.Context, table string) (bool, error) {
	var count int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM information_schema.tables
	WHERE table_schema = 'main' AND table_name = ?`, table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LatestBlock returns MAX(column) for the table. ok is false if the table is absent or empty.
func (s *Session) LatestBlock(ctx context.Context, table string, column string) (latest uint64, ok bool, err error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil || !exists {
		return 0, false, err
	}
	var max *uint64
	query := fmt.Sprintf("SELECT CAST(MAX(%s) AS UBIGINT) FROM %s", quoteIdent(column), quoteIdent(table))
	if err := s.db.QueryRow(ctx, query).Scan(&max); err != nil {
		loghelper.LogTableError(table, err).Error("Unable to read the latest block")
		return 0, false, err
	}
	if max == nil {
		return 0, false, nil
	}
	return *max, true, nil
}

// Watermark is the first block the next fetch for the table starts from: one past the latest
// stored block, or 0 if nothing is stored yet.
func (s *Session) Watermark(ctx context.Context, table string) (uint64, error) {
	latest, ok, err := s.LatestBlock(ctx, table, BlockNumberColumn)
	if err != nil {
		return 0, err
	}
	if !ok {
		log.WithFields(log.Fields{"table": table}).Debug("Nothing stored yet, starting from the beginning")
		return 0, nil
	}
	return latest + 1, nil
}

// A single column as reported by information_schema.
type ColumnInfo struct {
	ColumnName string `db:"column_name" json:"column_name"`
	DataType   string `db:"data_type" json:"data_type"`
}

// ListTables returns every table in the store, sorted by name.
func (s *Session) ListTables(ctx context.Context) ([]string, error) {
	var rows []struct {
		TableName string `db:"table_name"`
	}
	err := s.db.Select(ctx, &rows, `SELECT table_name FROM information_schema.tables
	WHERE table_schema = 'main' ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(rows))
	for _, r := range rows {
		tables = append(tables, r.TableName)
	}
	return tables, nil
}

// TableSchema returns the columns of the table in ordinal order, or ErrTableNotFound.
func (s *Session) TableSchema(ctx context.Context, table string) ([]ColumnInfo, error) {
	var columns []ColumnInfo
	err := s.db.Select(ctx, &columns, `SELECT column_name, data_type FROM information_schema.columns
	WHERE table_schema = 'main' AND table_name = ?
	ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return columns, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
