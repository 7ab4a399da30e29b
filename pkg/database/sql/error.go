package sql

import (
	"errors"
	"fmt"
)

const (
	DbConnectionFailedMsg = "db connection failed"
	ReadOnlyMsg           = "the store was opened read-only"
)

// ErrReadOnly is returned when a write is attempted through a read-only connection.
var ErrReadOnly = errors.New(ReadOnlyMsg)

func ErrDBConnectionFailed(connectErr error) error {
	return formatError(DbConnectionFailedMsg, connectErr)
}

func formatError(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
