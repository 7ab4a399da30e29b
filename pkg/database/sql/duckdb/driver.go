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
package duckdb

import (
	"context"
	stdsql "database/sql"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/georgysavva/scany/sqlscan"
	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/database/sql"
)

// duckDriver driver, implements sql.Driver
type duckDriver struct {
	ctx      context.Context
	db       *stdsql.DB
	readOnly bool
}

// newDuckDriver opens the store file and makes sure it answers a ping.
func newDuckDriver(ctx context.Context, config Config) (*duckDriver, error) {
	db, err := stdsql.Open("duckdb", config.DSN())
	if err != nil {
		return nil, sql.ErrDBConnectionFailed(err)
	}
	if config.MaxOpenConns != 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			log.WithField("err", cerr).Warn("Unable to close the store after a failed ping")
		}
		return nil, sql.ErrDBConnectionFailed(err)
	}
	return &duckDriver{ctx: ctx, db: db, readOnly: config.ReadOnly}, nil
}

// QueryRow satisfies sql.Database
func (d *duckDriver) QueryRow(ctx context.Context, query string, args ...interface{}) sql.ScannableRow {
	return d.db.QueryRowContext(ctx, query, args...)
}

// Exec satisfies sql.Database
func (d *duckDriver) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if d.readOnly {
		return nil, sql.ErrReadOnly
	}
	return d.db.ExecContext(ctx, query, args...)
}

// Select satisfies sql.Database
func (d *duckDriver) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlscan.Select(ctx, d.db, dest, query, args...)
}

// Get satisfies sql.Database
func (d *duckDriver) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlscan.Get(ctx, d.db, dest, query, args...)
}

// Begin satisfies sql.Database
func (d *duckDriver) Begin(ctx context.Context) (sql.Tx, error) {
	if d.readOnly {
		return nil, sql.ErrReadOnly
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return duckTxWrapper{tx: tx}, nil
}

func (d *duckDriver) Stats() sql.Stats {
	return duckStatsWrapper{stats: d.db.Stats()}
}

// Close satisfies sql.Database/io.Closer
func (d *duckDriver) Close() error {
	return d.db.Close()
}

// Context satisfies sql.Database
func (d *duckDriver) Context() context.Context {
	return d.ctx
}

type duckStatsWrapper struct {
	stats stdsql.DBStats
}

// MaxOpen satisfies sql.Stats
func (s duckStatsWrapper) MaxOpen() int64 {
	return int64(s.stats.MaxOpenConnections)
}

// Open satisfies sql.Stats
func (s duckStatsWrapper) Open() int64 {
	return int64(s.stats.OpenConnections)
}

// InUse satisfies sql.Stats
func (s duckStatsWrapper) InUse() int64 {
	return int64(s.stats.InUse)
}

// Idle satisfies sql.Stats
func (s duckStatsWrapper) Idle() int64 {
	return int64(s.stats.Idle)
}

// WaitCount satisfies sql.Stats
func (s duckStatsWrapper) WaitCount() int64 {
	return s.stats.WaitCount
}

// WaitDuration satisfies sql.Stats
func (s duckStatsWrapper) WaitDuration() time.Duration {
	return s.stats.WaitDuration
}

// MaxIdleClosed satisfies sql.Stats
func (s duckStatsWrapper) MaxIdleClosed() int64 {
	return s.stats.MaxIdleClosed
}

// MaxLifetimeClosed satisfies sql.Stats
func (s duckStatsWrapper) MaxLifetimeClosed() int64 {
	return s.stats.MaxLifetimeClosed
}

type duckTxWrapper struct {
	tx *stdsql.Tx
}

// QueryRow satisfies sql.Tx
func (t duckTxWrapper) QueryRow(ctx context.Context, query string, args ...interface{}) sql.ScannableRow {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// Exec satisfies sql.Tx
func (t duckTxWrapper) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// Prepare satisfies sql.Tx
func (t duckTxWrapper) Prepare(ctx context.Context, query string) (sql.Stmt, error) {
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return duckStmtWrapper{stmt: stmt}, nil
}

// Commit satisfies sql.Tx
func (t duckTxWrapper) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

// Rollback satisfies sql.Tx
func (t duckTxWrapper) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}

type duckStmtWrapper struct {
	stmt *stdsql.Stmt
}

// Exec satisfies sql.Stmt
func (s duckStmtWrapper) Exec(ctx context.Context, args ...interface{}) (sql.Result, error) {
	return s.stmt.ExecContext(ctx, args...)
}

// Close satisfies sql.Stmt
func (s duckStmtWrapper) Close() error {
	return s.stmt.Close()
}
