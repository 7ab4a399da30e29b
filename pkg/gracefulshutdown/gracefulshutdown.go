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
package gracefulshutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
)

// operation is a clean up function on shutting down
type Operation func(ctx context.Context) error

// TimeoutErr is returned when the clean up operations did not finish within the allotted time.
var TimeoutErr = func(timeout string) error {
	return fmt.Errorf("The Timeout %s, has been elapsed, the application will forcefully exit", timeout)
}

// Shutdown waits for a termination signal on notifierCh and runs every operation concurrently.
// The first channel is closed once all operations are done, the second receives a TimeoutErr if
// they take longer than timeout, or the error of a failed operation.
func Shutdown(ctx context.Context, notifierCh chan os.Signal, timeout time.Duration, ops map[string]Operation) (<-chan struct{}, <-chan error) {
	waitCh := make(chan struct{})
	errCh := make(chan error, len(ops)+1)
	go func() {
		// add any other syscalls that you want to be notified with
		signal.Notify(notifierCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		<-notifierCh
		signal.Stop(notifierCh)

		log.Info("Shutting Down your application")

		// set timeout for the ops to be done to prevent system hang
		timeoutFunc := time.AfterFunc(timeout, func() {
			log.Warnf("timeout %d ms has been elapsed, force exit", timeout.Milliseconds())
			errCh <- TimeoutErr(timeout.String())
		})

		defer timeoutFunc.Stop()

		var (
			wg     sync.WaitGroup
			failed bool
			mu     sync.Mutex
		)

		// Do the operations asynchronously to save time
		for key, op := range ops {
			wg.Add(1)
			innerOp := op
			innerKey := key
			go func() {
				defer wg.Done()

				log.Infof("cleaning up: %s", innerKey)
				if err := innerOp(ctx); err != nil {
					loghelper.LogError(err).Errorf("%s: clean up failed: %s", innerKey, err.Error())
					mu.Lock()
					failed = true
					mu.Unlock()
					errCh <- fmt.Errorf("%s: %w", innerKey, err)
					return
				}

				log.Infof("%s was shutdown gracefully", innerKey)
			}()
		}

		wg.Wait()

		if !failed {
			close(waitCh)
		}
	}()

	return waitCh, errCh
}
