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
package shutdown

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/vulcanize/mev-commit-indexer/internal/boot"
	"github.com/vulcanize/mev-commit-indexer/pkg/api"
	"github.com/vulcanize/mev-commit-indexer/pkg/gracefulshutdown"
	"github.com/vulcanize/mev-commit-indexer/pkg/ingest"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
)

// StartIngestion runs the loop in the background. When the loop ends on its own with an error,
// SIGTERM is sent on notifierCh so that ShutdownIngestion returns that error.
func StartIngestion(ctx context.Context, notifierCh chan os.Signal, run func(context.Context) error) (context.CancelFunc, <-chan error) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		err := run(loopCtx)
		done <- err
		if err != nil && loopCtx.Err() == nil {
			loghelper.LogError(err).Error("The ingestion loop gave up, shutting down")
			notifierCh <- syscall.SIGTERM
		}
	}()
	return cancel, done
}

// Shutdown the ingestion loop and its status server. cancel stops the loop, which then reports on done.
func ShutdownIngestion(ctx context.Context, notifierCh chan os.Signal, waitTime time.Duration, cancel context.CancelFunc, done <-chan error, status *ingest.StatusServer) error {
	ops := map[string]gracefulshutdown.Operation{
		// The loop only stops between states, so an in-flight write is completed first.
		"ingestion": func(ctx context.Context) error {
			cancel()
			select {
			case err := <-done:
				if err != nil {
					loghelper.LogError(err).Error("The ingestion loop ended with an error")
				}
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	if status != nil {
		ops["statusServer"] = func(ctx context.Context) error {
			return status.Shutdown(ctx)
		}
	}
	return wait(gracefulshutdown.Shutdown(ctx, notifierCh, waitTime, ops))
}

// Shutdown the query service.
func ShutdownServer(ctx context.Context, notifierCh chan os.Signal, waitTime time.Duration, server *api.Server) error {
	return wait(gracefulshutdown.Shutdown(ctx, notifierCh, waitTime, map[string]gracefulshutdown.Operation{
		"queryServer": func(ctx context.Context) error {
			err := server.Shutdown(ctx)
			if err != nil {
				loghelper.LogError(err).Error("Unable to shutdown the query server")
			}
			return err
		},
	}))
}

// Shutdown the booted components when the application only had to boot.
func ShutdownBoot(ctx context.Context, notifierCh chan os.Signal, waitTime time.Duration, app *boot.Application) error {
	return wait(gracefulshutdown.Shutdown(ctx, notifierCh, waitTime, map[string]gracefulshutdown.Operation{
		"hypersync": func(ctx context.Context) error {
			app.CommitChain.HttpClient.CloseIdleConnections()
			app.L1Chain.HttpClient.CloseIdleConnections()
			return nil
		},
		"store": func(ctx context.Context) error {
			// Take the lock once more so a write started during boot is finished.
			handle, err := app.Lock.Acquire()
			if err != nil {
				return err
			}
			app.Lock.Release(handle)
			return nil
		},
	}))
}

func wait(successCh <-chan struct{}, errCh <-chan error) error {
	select {
	case <-successCh:
		return nil
	case err := <-errCh:
		return err
	}
}
