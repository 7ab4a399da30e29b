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

// Package ingest runs the polling loop that moves mev-commit events and their L1 transactions
// from HyperSync into the store.
package ingest

import (
	"time"
)

// Config of the ingestion loop.
type Config struct {
	Interval     time.Duration // Pause between two cycles.
	ChunkSize    int           // Number of transaction hashes per L1 query.
	ChunkTimeout time.Duration // Deadline of a single L1 query.
	ChunkWorkers int           // L1 queries in flight at once.
}

// DefaultConfig polls every 30 seconds and fetches L1 transactions sequentially in chunks of 3000.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		ChunkSize:    3000,
		ChunkTimeout: 30 * time.Second,
		ChunkWorkers: 1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = d.ChunkTimeout
	}
	if c.ChunkWorkers <= 0 {
		c.ChunkWorkers = d.ChunkWorkers
	}
	return c
}
