package ingest

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
	"golang.org/x/sync/errgroup"
)

// TransactionSource looks transactions up by hash.
type TransactionSource interface {
	QueryTransactions(ctx context.Context, hashes []string) ([]hypersync.TransactionRecord, error)
}

// L1Fetcher queries L1 transactions in bounded chunks. A chunk that fails or exceeds its timeout
// is logged, counted and skipped; the remaining chunks are unaffected.
type L1Fetcher struct {
	Source       TransactionSource
	ChunkSize    int
	ChunkTimeout time.Duration
	Workers      int
	Metrics      *Metrics
}

// L1Result holds the transactions of every chunk that succeeded, in chunk order.
type L1Result struct {
	Records       []hypersync.TransactionRecord
	Chunks        int
	DroppedChunks int
	DroppedHashes int
}

// Chunk splits hashes into consecutive slices of at most size elements.
func Chunk(hashes []string, size int) [][]string {
	if size <= 0 {
		size = len(hashes)
	}
	var chunks [][]string
	for start := 0; start < len(hashes); start += size {
		end := start + size
		if end > len(hashes) {
			end = len(hashes)
		}
		chunks = append(chunks, hashes[start:end])
	}
	return chunks
}

// Fetch retrieves the transactions of hashes. Only the cancellation of ctx is reported as an error.
func (f *L1Fetcher) Fetch(ctx context.Context, hashes []string) (*L1Result, error) {
	result := &L1Result{}
	if len(hashes) == 0 {
		log.Info("No L1 transaction hashes to query.")
		return result, nil
	}

	chunks := Chunk(hashes, f.ChunkSize)
	result.Chunks = len(chunks)
	slots := make([][]hypersync.TransactionRecord, len(chunks))
	failed := make([]bool, len(chunks))

	workers := f.Workers
	if workers <= 0 {
		workers = 1
	}
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if ctx.Err() != nil {
				failed[i] = true
				return nil
			}
			chunkCtx, cancel := context.WithTimeout(ctx, f.ChunkTimeout)
			defer cancel()

			records, err := f.Source.QueryTransactions(chunkCtx, chunk)
			if err != nil {
				failed[i] = true
				entry := loghelper.LogChunk(i, len(chunk)).WithError(err)
				if chunkCtx.Err() == context.DeadlineExceeded {
					entry.Error("Timeout while fetching L1 transactions for chunk")
				} else {
					entry.Error("Unexpected error while fetching L1 transactions for chunk")
				}
				return nil
			}
			slots[i] = records
			loghelper.LogChunk(i, len(chunk)).WithField("records", len(records)).Debug("Fetched L1 chunk")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, records := range slots {
		if failed[i] {
			result.DroppedChunks++
			result.DroppedHashes += len(chunks[i])
			if f.Metrics != nil {
				f.Metrics.IncrementChunksDropped(len(chunks[i]))
			}
			continue
		}
		result.Records = append(result.Records, records...)
	}
	if len(result.Records) == 0 {
		log.Info("No L1 transactions found.")
	}
	return result, nil
}
