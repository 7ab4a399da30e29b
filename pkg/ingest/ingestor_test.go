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
package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vulcanize/mev-commit-indexer/pkg/dblock"
	"github.com/vulcanize/mev-commit-indexer/pkg/events"
	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
	"github.com/vulcanize/mev-commit-indexer/pkg/ingest"
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
	"github.com/vulcanize/mev-commit-indexer/pkg/testhelpers"
)

var bidder = common.HexToAddress("0x00000000000000000000000000000000000B1DDE")

type published struct {
	reports []*ingest.CycleReport
}

func (p *published) Publish(report *ingest.CycleReport) {
	p.reports = append(p.reports, report)
}

func commitments(ctx context.Context, st *store.Store) []store.Commitment {
	var rows []store.Commitment
	Expect(st.View(ctx, func(s *store.Session) error {
		var err error
		rows, _, err = s.Commitments(ctx, store.CommitmentFilter{})
		return err
	})).To(Succeed())
	return rows
}

func watermarks(ctx context.Context, st *store.Store) map[string]uint64 {
	marks := map[string]uint64{}
	Expect(st.View(ctx, func(s *store.Session) error {
		for _, table := range []string{store.TableCommitStores, store.TableEncryptedStores, store.TableCommitsProcessed} {
			w, err := s.Watermark(ctx, table)
			if err != nil {
				return err
			}
			marks[table] = w
		}
		return nil
	})).To(Succeed())
	return marks
}

var _ = Describe("Ingestor", func() {
	var (
		ctx       context.Context
		dir       string
		st        *store.Store
		chain     *fakeCommitChain
		l1        *fakeL1Chain
		fixtures  []testhelpers.CommitmentFixture
		config    ingest.Config
		metrics   *ingest.Metrics
		publisher *published
	)

	newIngestor := func() *ingest.Ingestor {
		in := ingest.NewIngestor(st, chain, l1, config, metrics)
		in.Publisher = publisher
		return in
	}

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		st = store.New(filepath.Join(dir, "data", "mev_commit.duckdb"), dblock.New(filepath.Join(dir, "data", "duckdb_lock")))
		chain = newFakeCommitChain()
		fixtures = []testhelpers.CommitmentFixture{
			testhelpers.NewCommitmentFixture(0, bidder, 10),
			testhelpers.NewCommitmentFixture(1, bidder, 10),
		}
		l1 = newFakeL1Chain(fixtures...)
		config = ingest.Config{Interval: time.Hour, ChunkSize: 3000, ChunkTimeout: time.Second, ChunkWorkers: 1}
		metrics = ingest.NewMetrics(prometheus.NewRegistry())
		publisher = &published{}
	})

	Describe("Running cycles", Label("unit"), func() {
		It("Only exposes commitments once every constituent row exists", func() {
			for _, f := range fixtures {
				chain.add(f.Unopened(), f.Opened())
			}

			report, err := newIngestor().RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Fetched).To(Equal(map[string]int{
				store.TableCommitStores:     2,
				store.TableEncryptedStores:  2,
				store.TableCommitsProcessed: 0,
				store.TableL1Transactions:   2,
			}))
			Expect(report.Written).To(Equal(map[string]int{
				store.TableCommitStores:    2,
				store.TableEncryptedStores: 2,
				store.TableL1Transactions:  2,
			}))
			Expect(report.L1Hashes).To(Equal(2))
			Expect(report.LatestBlocks).To(Equal(map[string]uint64{
				store.TableCommitStores:    10,
				store.TableEncryptedStores: 10,
			}))
			Expect(commitments(ctx, st)).To(BeEmpty())

			processed := make([]hypersync.EventRecord, 0, len(fixtures))
			for _, f := range fixtures {
				f.StoredAt = 20
				processed = append(processed, f.Processed())
			}
			chain.add(processed...)

			report, err = newIngestor().RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Watermarks).To(Equal(map[string]uint64{
				store.TableCommitStores:     11,
				store.TableEncryptedStores:  11,
				store.TableCommitsProcessed: 0,
			}))
			Expect(report.Written).To(Equal(map[string]int{store.TableCommitsProcessed: 2}))
			Expect(report.L1Hashes).To(Equal(0))
			Expect(l1.requestedChunks()).To(HaveLen(1))

			rows := commitments(ctx, st)
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].IncBlockNumber).To(Equal(fixtures[1].IncBlockNumber))
			Expect(rows[1].TxnHash).To(Equal(fixtures[0].TxnHash))

			Expect(metrics.Cycles).To(Equal(uint64(2)))
			Expect(metrics.RowsWritten).To(Equal(uint64(8)))
			Expect(publisher.reports).To(HaveLen(2))
		})

		It("Resumes from the watermarks without duplicating rows", func() {
			for _, f := range fixtures {
				chain.add(f.Unopened(), f.Opened(), f.Processed())
			}
			_, err := newIngestor().RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			first := watermarks(ctx, st)
			Expect(first[store.TableCommitStores]).To(Equal(uint64(11)))

			report, err := newIngestor().RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Written).To(BeEmpty())
			Expect(chain.fromBlocks(events.OpenedCommitmentStored.Topic0())).To(Equal([]uint64{0, 11}))
			Expect(watermarks(ctx, st)).To(Equal(first))
			Expect(commitments(ctx, st)).To(HaveLen(2))
		})

		It("Keeps the watermarks monotonic", func() {
			chain.add(fixtures[0].Unopened(), fixtures[0].Opened(), fixtures[0].Processed())
			_, err := newIngestor().RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			before := watermarks(ctx, st)

			late := testhelpers.NewCommitmentFixture(7, bidder, 5)
			later := testhelpers.NewCommitmentFixture(8, bidder, 30)
			chain.add(late.Opened(), later.Opened())
			_, err = newIngestor().RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			after := watermarks(ctx, st)

			for table, w := range before {
				Expect(after[table]).To(BeNumerically(">=", w), table)
			}
			Expect(after[store.TableCommitStores]).To(Equal(uint64(31)))
		})

		It("Isolates a failing event query", func() {
			for _, f := range fixtures {
				chain.add(f.Unopened(), f.Opened(), f.Processed())
			}
			chain.fail(events.UnopenedCommitmentStored.Topic0(), fmt.Errorf("%w: status 503", hypersync.ErrTransport))

			report, err := newIngestor().RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.FetchErrors).To(HaveKey(store.TableEncryptedStores))
			Expect(report.Fetched[store.TableEncryptedStores]).To(Equal(0))
			Expect(report.Written[store.TableCommitStores]).To(Equal(2))
			Expect(report.Written[store.TableCommitsProcessed]).To(Equal(2))
			Expect(metrics.FetchErrors).To(Equal(uint64(1)))
			Expect(commitments(ctx, st)).To(BeEmpty())
			Expect(watermarks(ctx, st)[store.TableEncryptedStores]).To(Equal(uint64(0)))
		})

		It("Leaves a known gap when an L1 chunk times out", func() {
			fixtures = nil
			for i := 0; i < 5; i++ {
				fixtures = append(fixtures, testhelpers.NewCommitmentFixture(i, bidder, 10))
			}
			l1 = newFakeL1Chain(fixtures...)
			hung := fixtures[2].NormalizedTxnHash()
			l1.hang = func(hashes []string) bool {
				return testhelpers.ListContainsString(hashes, hung)
			}
			for _, f := range fixtures {
				chain.add(f.Unopened(), f.Opened(), f.Processed())
			}
			config.ChunkSize = 2
			config.ChunkTimeout = 50 * time.Millisecond

			report, err := newIngestor().RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.L1Chunks).To(Equal(3))
			Expect(report.DroppedChunks).To(Equal(1))
			Expect(report.Written[store.TableL1Transactions]).To(Equal(3))
			Expect(metrics.ChunksDropped).To(Equal(uint64(1)))
			Expect(metrics.HashesDropped).To(Equal(uint64(2)))

			rows := commitments(ctx, st)
			Expect(rows).To(HaveLen(3))
			for _, r := range rows {
				Expect(r.TxnHash).NotTo(Equal(fixtures[2].TxnHash))
				Expect(r.TxnHash).NotTo(Equal(fixtures[3].TxnHash))
			}
		})

		It("Aborts the cycle when the store cannot be written", func() {
			chain.add(fixtures[0].Opened())
			Expect(st.Update(ctx, func(s *store.Session) error {
				batch := store.NewBatch(store.Column{Name: "block_number", Type: store.TypeUBigInt})
				Expect(batch.Append(uint64(1))).To(Succeed())
				_, err := s.Write(ctx, store.TableCommitStores, batch)
				return err
			})).To(Succeed())

			report, err := newIngestor().RunCycle(ctx)
			Expect(errors.Is(err, store.ErrUnknownColumn)).To(BeTrue())
			Expect(report.Err).NotTo(BeEmpty())
			Expect(metrics.CycleErrors).To(Equal(uint64(1)))
		})
	})

	Describe("The polling loop", Label("unit"), func() {
		It("Stops when the context is cancelled", func() {
			chain.add(fixtures[0].Unopened())
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() {
				done <- newIngestor().Run(runCtx)
			}()
			Eventually(func() uint64 {
				var w uint64
				_ = st.View(ctx, func(s *store.Session) error {
					var err error
					w, err = s.Watermark(ctx, store.TableEncryptedStores)
					return err
				})
				return w
			}, 10*time.Second).Should(Equal(uint64(11)))
			cancel()
			Eventually(done, 5*time.Second).Should(Receive(BeNil()))
		})

		It("Stops when the store lock cannot be taken", func() {
			blocker := filepath.Join(dir, "not-a-directory")
			Expect(os.WriteFile(blocker, []byte("x"), 0o644)).To(Succeed())
			st = store.New(filepath.Join(dir, "data", "mev_commit.duckdb"), dblock.New(filepath.Join(blocker, "duckdb_lock")))

			err := newIngestor().Run(ctx)
			Expect(errors.Is(err, dblock.ErrLockFailed)).To(BeTrue())
		})
	})
})
