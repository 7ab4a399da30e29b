package ingest_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
	"github.com/vulcanize/mev-commit-indexer/pkg/ingest"
)

func syntheticHashes(n int) []string {
	hashes := make([]string, n)
	for i := range hashes {
		hashes[i] = fmt.Sprintf("0x%064x", i)
	}
	return hashes
}

func knownL1(hashes []string) *fakeL1Chain {
	f := &fakeL1Chain{txs: map[string]hypersync.TransactionRecord{}}
	for _, h := range hashes {
		f.txs[h] = hypersync.TransactionRecord{Transaction: hypersync.Transaction{Hash: h}}
	}
	return f
}

var _ = Describe("L1Fetcher", Label("unit"), func() {
	var (
		ctx     context.Context
		metrics *ingest.Metrics
	)

	BeforeEach(func() {
		ctx = context.Background()
		metrics = ingest.NewMetrics(prometheus.NewRegistry())
	})

	It("Splits hashes into bounded chunks", func() {
		chunks := ingest.Chunk(syntheticHashes(7000), 3000)
		Expect(chunks).To(HaveLen(3))
		Expect(chunks[0]).To(HaveLen(3000))
		Expect(chunks[1]).To(HaveLen(3000))
		Expect(chunks[2]).To(HaveLen(1000))
		Expect(ingest.Chunk(nil, 3000)).To(BeEmpty())
	})

	It("Returns nothing for no hashes", func() {
		source := knownL1(nil)
		f := &ingest.L1Fetcher{Source: source, ChunkSize: 3000, ChunkTimeout: time.Second, Metrics: metrics}
		result, err := f.Fetch(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Records).To(BeEmpty())
		Expect(source.requestedChunks()).To(BeEmpty())
	})

	DescribeTable("Skips a chunk that times out and keeps the others",
		func(workers int) {
			hashes := syntheticHashes(7000)
			source := knownL1(hashes)
			source.hang = func(chunk []string) bool { return chunk[0] == hashes[3000] }
			f := &ingest.L1Fetcher{
				Source:       source,
				ChunkSize:    3000,
				ChunkTimeout: 50 * time.Millisecond,
				Workers:      workers,
				Metrics:      metrics,
			}

			result, err := f.Fetch(ctx, hashes)
			Expect(err).NotTo(HaveOccurred())
			Expect(source.requestedChunks()).To(HaveLen(3))
			Expect(result.Chunks).To(Equal(3))
			Expect(result.DroppedChunks).To(Equal(1))
			Expect(result.DroppedHashes).To(Equal(3000))
			Expect(result.Records).To(HaveLen(4000))
			Expect(result.Records[0].Transaction.Hash).To(Equal(hashes[0]))
			Expect(result.Records[3000].Transaction.Hash).To(Equal(hashes[6000]))
			Expect(metrics.ChunksDropped).To(Equal(uint64(1)))
			Expect(metrics.HashesDropped).To(Equal(uint64(3000)))
		},
		Entry("sequentially", 1),
		Entry("concurrently", 3),
	)

	It("Reports a cancelled context", func() {
		hashes := syntheticHashes(10)
		source := knownL1(hashes)
		source.hang = func([]string) bool { return true }
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		f := &ingest.L1Fetcher{Source: source, ChunkSize: 5, ChunkTimeout: time.Second, Workers: 1, Metrics: metrics}
		_, err := f.Fetch(cancelled, hashes)
		Expect(err).To(MatchError(context.Canceled))
	})
})
