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
package shutdown_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vulcanize/mev-commit-indexer/internal/boot"
	"github.com/vulcanize/mev-commit-indexer/internal/shutdown"
	"github.com/vulcanize/mev-commit-indexer/pkg/api"
	"github.com/vulcanize/mev-commit-indexer/pkg/dblock"
	"github.com/vulcanize/mev-commit-indexer/pkg/gracefulshutdown"
	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
	"github.com/vulcanize/mev-commit-indexer/pkg/ingest"
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
)

var (
	maxWaitSecondsShutdown time.Duration = time.Duration(1) * time.Second
	ctx                    context.Context
	notifierCh             chan os.Signal
)

var _ = Describe("Shutdown", func() {
	BeforeEach(func() {
		ctx = context.Background()
		notifierCh = make(chan os.Signal, 1)
	})

	Describe("Run Shutdown Function for the ingestion loop,", Label("unit"), func() {
		Context("When the loop stops in time,", func() {
			It("Should Shutdown Successfully.", func() {
				loopCtx, cancel := context.WithCancel(ctx)
				done := make(chan error, 1)
				go func() {
					<-loopCtx.Done()
					done <- nil
				}()
				registry := prometheus.NewRegistry()
				status := ingest.NewStatusServer("127.0.0.1:0", registry)
				go status.ListenAndServe()

				shutdownCh := make(chan error)
				go func() {
					shutdownCh <- shutdown.ShutdownIngestion(ctx, notifierCh, maxWaitSecondsShutdown, cancel, done, status)
				}()
				notifierCh <- syscall.SIGTERM
				Eventually(shutdownCh, 5*time.Second).Should(Receive(BeNil()))
			})
		})
		Context("When the loop does not stop,", func() {
			It("Should shutdown within a given time frame.", func() {
				_, cancel := context.WithCancel(ctx)
				done := make(chan error)

				shutdownCh := make(chan error)
				go func() {
					shutdownCh <- shutdown.ShutdownIngestion(ctx, notifierCh, maxWaitSecondsShutdown, cancel, done, nil)
				}()
				notifierCh <- syscall.SIGHUP
				var err error
				Eventually(shutdownCh, 5*time.Second).Should(Receive(&err))
				Expect(err).To(MatchError(gracefulshutdown.TimeoutErr(maxWaitSecondsShutdown.String())))
			})
		})
		Context("When the loop gives up on its own,", func() {
			It("Should shut down without a signal and report the error.", func() {
				cancel, done := shutdown.StartIngestion(ctx, notifierCh, func(context.Context) error {
					return fmt.Errorf("unable to lock the store: %w", dblock.ErrLockFailed)
				})

				shutdownCh := make(chan error)
				go func() {
					shutdownCh <- shutdown.ShutdownIngestion(ctx, notifierCh, maxWaitSecondsShutdown, cancel, done, nil)
				}()
				var err error
				Eventually(shutdownCh, 5*time.Second).Should(Receive(&err))
				Expect(errors.Is(err, dblock.ErrLockFailed)).To(BeTrue())
			})
		})
		Context("When the loop is started and stopped by a signal,", func() {
			It("Should not report an error.", func() {
				cancel, done := shutdown.StartIngestion(ctx, notifierCh, func(loopCtx context.Context) error {
					<-loopCtx.Done()
					return nil
				})

				shutdownCh := make(chan error)
				go func() {
					shutdownCh <- shutdown.ShutdownIngestion(ctx, notifierCh, maxWaitSecondsShutdown, cancel, done, nil)
				}()
				notifierCh <- syscall.SIGTERM
				Eventually(shutdownCh, 5*time.Second).Should(Receive(BeNil()))
			})
		})
		Context("When the loop ends with an error,", func() {
			It("Should report it.", func() {
				_, cancel := context.WithCancel(ctx)
				done := make(chan error, 1)
				done <- dblock.ErrLockFailed

				shutdownCh := make(chan error)
				go func() {
					shutdownCh <- shutdown.ShutdownIngestion(ctx, notifierCh, maxWaitSecondsShutdown, cancel, done, nil)
				}()
				notifierCh <- syscall.SIGTERM
				var err error
				Eventually(shutdownCh, 5*time.Second).Should(Receive(&err))
				Expect(errors.Is(err, dblock.ErrLockFailed)).To(BeTrue())
			})
		})
	})

	Describe("Run Shutdown Function for the query service,", Label("unit"), func() {
		It("Should Shutdown Successfully.", func() {
			dir := GinkgoT().TempDir()
			st := store.New(filepath.Join(dir, "mev_commit.duckdb"), dblock.New(filepath.Join(dir, "duckdb_lock")))
			registry := prometheus.NewRegistry()
			server := api.NewServer(st, "127.0.0.1:0", registry, registry)
			go server.ListenAndServe()

			shutdownCh := make(chan error)
			go func() {
				shutdownCh <- shutdown.ShutdownServer(ctx, notifierCh, maxWaitSecondsShutdown, server)
			}()
			notifierCh <- syscall.SIGTERM
			Eventually(shutdownCh, 5*time.Second).Should(Receive(BeNil()))
		})
	})

	Describe("Run Shutdown Function for boot,", Label("unit"), func() {
		It("Should Shutdown Successfully.", func() {
			dir := GinkgoT().TempDir()
			lock := dblock.New(filepath.Join(dir, "duckdb_lock"))
			app := &boot.Application{
				Store:       store.New(filepath.Join(dir, "mev_commit.duckdb"), lock),
				Lock:        lock,
				CommitChain: hypersync.NewClient("http://commit.invalid", "", time.Second, 1),
				L1Chain:     hypersync.NewClient("http://l1.invalid", "", time.Second, 1),
			}

			shutdownCh := make(chan error)
			go func() {
				shutdownCh <- shutdown.ShutdownBoot(ctx, notifierCh, maxWaitSecondsShutdown, app)
			}()
			notifierCh <- syscall.SIGTERM
			Eventually(shutdownCh, 5*time.Second).Should(Receive(BeNil()))
		})
	})
})
