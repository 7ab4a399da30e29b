package duckdb

import (
	"net/url"
	"strconv"
)

// DefaultConfig are default parameters for opening the shared store file.
var DefaultConfig = Config{
	Path: "/app/db/data/mev_commit.duckdb",
}

// Config holds params for a DuckDB store file.
type Config struct {
	Path     string // Path to the store file.
	ReadOnly bool   // Open with access_mode=READ_ONLY.

	// conn settings
	Threads      int
	MaxOpenConns int
}

// DSN constructs the duckdb connection string from the config.
func (c Config) DSN() string {
	params := url.Values{}
	if c.ReadOnly {
		params.Set("access_mode", "READ_ONLY")
	}
	if c.Threads > 0 {
		params.Set("threads", strconv.Itoa(c.Threads))
	}
	if len(params) == 0 {
		return c.Path
	}
	return c.Path + "?" + params.Encode()
}
