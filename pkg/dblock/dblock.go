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

// Package dblock guards the shared store file with an exclusive flock(2) on a well-known lock file.
// The ingestion process and every query process take the same lock, so a reader can never open the
// store while a write is in progress. Readers also exclude each other.
package dblock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
	"golang.org/x/sys/unix"
)

// The lock file shared between the ingestion process and the query service.
const DefaultLockfilePath = "/app/db/data/duckdb_lock"

var (
	ErrLockFailed = errors.New("unable to acquire the store lock")
	ErrLockHeld   = errors.New("the store lock is held by another handle")
)

// FileLock is a named, blocking, non-reentrant mutex shared across process boundaries.
type FileLock struct {
	path string
}

// Handle is returned by Acquire and must be passed to Release.
type Handle struct {
	file *os.File
}

// Create a FileLock for the given path. An empty path uses DefaultLockfilePath.
func New(path string) *FileLock {
	if path == "" {
		path = DefaultLockfilePath
	}
	return &FileLock{path: path}
}

// Path of the lock file.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire blocks until the exclusive lock is obtained.
// The parent directory and the lock file are created if they do not exist.
func (l *FileLock) Acquire() (*Handle, error) {
	return l.acquire(unix.LOCK_EX)
}

// TryAcquire obtains the lock without blocking, returning ErrLockHeld when it is taken.
func (l *FileLock) TryAcquire() (*Handle, error) {
	return l.acquire(unix.LOCK_EX | unix.LOCK_NB)
}

func (l *FileLock) acquire(how int) (*Handle, error) {
	log.WithField("path", l.path).Debug("Attempting to acquire lock")
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		loghelper.LogError(err).WithField("path", l.path).Error("Unable to create the lock directory")
		return nil, fmt.Errorf("%w: %s", ErrLockFailed, err.Error())
	}
	// Append mode so the file is never truncated, its contents do not matter.
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		loghelper.LogError(err).WithField("path", l.path).Error("Unable to open the lock file")
		return nil, fmt.Errorf("%w: %s", ErrLockFailed, err.Error())
	}

	for {
		err = unix.Flock(int(file.Fd()), how)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrLockHeld
		}
		loghelper.LogError(err).WithField("path", l.path).Error("Failed to acquire lock")
		return nil, fmt.Errorf("%w: %s", ErrLockFailed, err.Error())
	}
	log.WithField("path", l.path).Debug("Lock acquired")
	return &Handle{file: file}, nil
}

// Release unlocks and closes the handle. Unlock failures are logged, the file is always closed.
func (l *FileLock) Release(h *Handle) {
	if h == nil || h.file == nil {
		return
	}
	defer func() {
		if err := h.file.Close(); err != nil {
			loghelper.LogError(err).WithField("path", l.path).Error("Failed to close the lock file")
		}
		h.file = nil
	}()
	if err := unix.Flock(int(h.file.Fd()), unix.LOCK_UN); err != nil {
		loghelper.LogError(err).WithField("path", l.path).Error("Failed to release lock")
		return
	}
	log.WithField("path", l.path).Debug("Lock released")
}
