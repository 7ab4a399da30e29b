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

	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/database/sql"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
)

var _ sql.Database = &DB{}

// NewDuckDB returns a duckdb.DB using the provided Config.
func NewDuckDB(ctx context.Context, c Config) (*DB, error) {
	driver, err := newDuckDriver(ctx, c)
	if err != nil {
		return nil, err
	}
	return &DB{driver}, nil
}

// A simple wrapper to open the store file for reading or writing.
func SetupDuckDb(ctx context.Context, path string, readOnly bool) (sql.Database, error) {
	log.WithFields(log.Fields{
		"path":     path,
		"readOnly": readOnly,
	}).Debug("Opening the store")
	DB, err := NewDuckDB(ctx, Config{Path: path, ReadOnly: readOnly})
	if err != nil {
		loghelper.LogError(err).WithField("path", path).Error("Unable to open the store")
		return nil, err
	}
	return DB, nil
}

// DB implements sql.Database using a configured driver and DuckDB statement syntax
type DB struct {
	sql.Driver
}
