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
package boot

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/dblock"
	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
	"golang.org/x/sync/errgroup"
)

// Config of everything the application needs before it can start working.
type Config struct {
	StorePath      string
	LockfilePath   string
	CommitUrl      string // HyperSync endpoint of the mev-commit chain.
	L1Url          string // HyperSync endpoint of the settlement chain.
	BearerToken    string
	RequestTimeout time.Duration
	MaxPages       int
	RetryInterval  time.Duration // The time to wait between each try.
	MaxRetry       int           // Max times to try to reach the endpoints and the store at boot.
}

// Application holds the booted components.
type Application struct {
	Store       *store.Store
	Lock        *dblock.FileLock
	CommitChain *hypersync.Client
	L1Chain     *hypersync.Client
}

// This function will perform some boot operations. If any steps fail, the application will fail to start.
//
// 1. Make sure both HyperSync endpoints answer.
//
// 2. Make sure the store can be locked, created and written.
func BootApplication(ctx context.Context, c Config) (*Application, error) {
	log.Info("Booting the Application")

	app := &Application{
		CommitChain: hypersync.NewClient(c.CommitUrl, c.BearerToken, c.RequestTimeout, c.MaxPages),
		L1Chain:     hypersync.NewClient(c.L1Url, c.BearerToken, c.RequestTimeout, c.MaxPages),
	}

	log.Debug("Checking the HyperSync endpoints")
	errG, gCtx := errgroup.WithContext(ctx)
	errG.Go(func() error {
		if err := app.CommitChain.CheckHealth(gCtx); err != nil {
			return fmt.Errorf("mev-commit endpoint %s: %w", c.CommitUrl, err)
		}
		return nil
	})
	errG.Go(func() error {
		if err := app.L1Chain.CheckHealth(gCtx); err != nil {
			return fmt.Errorf("L1 endpoint %s: %w", c.L1Url, err)
		}
		return nil
	})
	if err := errG.Wait(); err != nil {
		return nil, err
	}

	log.Debug("Checking the store")
	app.Lock = dblock.New(c.LockfilePath)
	app.Store = store.New(c.StorePath, app.Lock)
	if err := app.Store.Update(ctx, func(*store.Session) error { return nil }); err != nil {
		return nil, err
	}
	return app, nil
}

// Add retry logic to ensure that we give HyperSync and the shared volume time to come up.
func BootApplicationWithRetry(ctx context.Context, c Config) (*Application, error) {
	var (
		app *Application
		err error
	)
	attempts := c.MaxRetry
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		app, err = BootApplication(ctx, c)
		if err == nil {
			return app, nil
		}
		if i == attempts-1 {
			break
		}
		log.WithFields(log.Fields{
			"retryNumber": i,
			"err":         err,
		}).Warn("Unable to boot application. Going to try again")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.RetryInterval):
		}
	}
	return nil, err
}

// BootReader prepares read-only access to the store for the query service. The store itself may
// not exist yet; only the lock has to be usable.
func BootReader(storePath string, lockfilePath string) (*store.Store, error) {
	lock := dblock.New(lockfilePath)
	handle, err := lock.Acquire()
	if err != nil {
		return nil, err
	}
	lock.Release(handle)
	log.WithFields(log.Fields{"store": storePath, "lockfile": lock.Path()}).Info("The store is reachable")
	return store.New(storePath, lock), nil
}
