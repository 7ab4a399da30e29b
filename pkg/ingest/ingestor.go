package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/dblock"
	"github.com/vulcanize/mev-commit-indexer/pkg/events"
	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
)

// EventSource returns the logs of one event starting at a block.
type EventSource interface {
	QueryEvents(ctx context.Context, topic0 string, fromBlock uint64, includeTxData bool) ([]hypersync.EventRecord, error)
}

// Publisher receives the report of every cycle.
type Publisher interface {
	Publish(report *CycleReport)
}

// CycleReport summarizes one ingestion cycle.
type CycleReport struct {
	Started       time.Time         `json:"started"`
	Duration      time.Duration     `json:"duration"`
	Watermarks    map[string]uint64 `json:"watermarks"`
	LatestBlocks  map[string]uint64 `json:"latestBlocks,omitempty"`
	Fetched       map[string]int    `json:"fetched"`
	Written       map[string]int    `json:"written"`
	FetchErrors   map[string]string `json:"fetchErrors,omitempty"`
	L1Hashes      int               `json:"l1Hashes"`
	L1Chunks      int               `json:"l1Chunks"`
	DroppedChunks int               `json:"droppedChunks"`
	Err           string            `json:"error,omitempty"`
}

func newCycleReport() *CycleReport {
	return &CycleReport{
		Started:      time.Now(),
		Watermarks:   map[string]uint64{},
		LatestBlocks: map[string]uint64{},
		Fetched:      map[string]int{},
		Written:      map[string]int{},
		FetchErrors:  map[string]string{},
	}
}

// Ingestor moves events and their L1 transactions into the store, one cycle at a time.
type Ingestor struct {
	Store     *store.Store
	Events    EventSource
	L1        *L1Fetcher
	Configs   []*events.EventConfig
	Config    Config
	Metrics   *Metrics
	Publisher Publisher
}

// Create an Ingestor following the mev-commit events.
func NewIngestor(st *store.Store, commitChain EventSource, l1Chain TransactionSource, config Config, metrics *Metrics) *Ingestor {
	config = config.withDefaults()
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Ingestor{
		Store:   st,
		Events:  commitChain,
		Configs: events.MevCommitEvents(),
		Config:  config,
		Metrics: metrics,
		L1: &L1Fetcher{
			Source:       l1Chain,
			ChunkSize:    config.ChunkSize,
			ChunkTimeout: config.ChunkTimeout,
			Workers:      config.ChunkWorkers,
			Metrics:      metrics,
		},
	}
}

// Run executes cycles until ctx is cancelled, sleeping Config.Interval between them.
// A failed cycle is logged and retried on the next tick; only a lock failure ends the loop.
func (in *Ingestor) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"interval": in.Config.Interval,
		"store":    in.Store.Path(),
	}).Info("Starting the ingestion loop")
	for {
		_, err := in.RunCycle(ctx)
		if ctx.Err() != nil {
			log.Info("The ingestion loop has been stopped")
			return nil
		}
		if err != nil {
			if errors.Is(err, dblock.ErrLockFailed) {
				loghelper.LogError(err).Error("Unable to lock the store, stopping the ingestion loop")
				return err
			}
			loghelper.LogError(err).Error("The ingestion cycle failed")
		}

		timer := time.NewTimer(in.Config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("The ingestion loop has been stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle computes the watermarks, fetches every event table and the referenced L1 transactions,
// and writes all non-empty batches under a single lock acquisition.
func (in *Ingestor) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := newCycleReport()
	err := in.runCycle(ctx, report)
	report.Duration = time.Since(report.Started)
	if err != nil {
		report.Err = err.Error()
		in.Metrics.IncrementCycleErrors()
	} else {
		in.Metrics.IncrementCycles(report.Duration.Seconds())
	}
	if in.Publisher != nil {
		in.Publisher.Publish(report)
	}
	return report, err
}

func (in *Ingestor) runCycle(ctx context.Context, report *CycleReport) error {
	watermarks, err := in.watermarks(ctx)
	if err != nil {
		return err
	}
	report.Watermarks = watermarks
	info := make([]string, 0, len(in.Configs))
	for _, c := range in.Configs {
		info = append(info, fmt.Sprintf("%s: %d", c.Table, watermarks[c.Table]))
		in.Metrics.SetWatermark(c.Table, watermarks[c.Table])
	}
	log.Info("Latest blocks - " + strings.Join(info, "; "))

	type write struct {
		table string
		batch *store.Batch
	}
	var writes []write
	info = info[:0]
	for _, c := range in.Configs {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := in.fetchEvents(ctx, c, watermarks[c.Table], report)
		report.Fetched[c.Table] = batch.Len()
		if latest, ok, err := batch.MaxUint64(store.BlockNumberColumn); err == nil && ok {
			report.LatestBlocks[c.Table] = latest
			loghelper.LogTable(c.Table).WithField("latestBlock", latest).Debug("New records fetched")
		}
		writes = append(writes, write{c.Table, batch})
		info = append(info, fmt.Sprintf("%s: %d new records", c.Table, batch.Len()))

		if c.Table == store.TableCommitStores && !batch.IsEmpty() {
			if err := ctx.Err(); err != nil {
				return err
			}
			hashes := events.DistinctTxHashes(batch)
			report.L1Hashes = len(hashes)
			l1, err := in.L1.Fetch(ctx, hashes)
			if err != nil {
				return err
			}
			report.L1Chunks = l1.Chunks
			report.DroppedChunks = l1.DroppedChunks
			l1Batch := events.L1Batch(l1.Records)
			report.Fetched[store.TableL1Transactions] = l1Batch.Len()
			writes = append(writes, write{store.TableL1Transactions, l1Batch})
			info = append(info, fmt.Sprintf("%s: %d new records", store.TableL1Transactions, l1Batch.Len()))
		}
	}
	log.Info("Fetched records - " + strings.Join(info, "; "))

	if err := ctx.Err(); err != nil {
		return err
	}
	info = info[:0]
	err = in.Store.Update(ctx, func(s *store.Session) error {
		for _, w := range writes {
			if w.batch.IsEmpty() {
				info = append(info, fmt.Sprintf("%s: No new data to write.", w.table))
				continue
			}
			n, err := s.Write(ctx, w.table, w.batch)
			if err != nil {
				return fmt.Errorf("writing %s: %w", w.table, err)
			}
			report.Written[w.table] = n
			in.Metrics.IncrementRowsWritten(w.table, uint64(n))
			info = append(info, fmt.Sprintf("%s: %d rows written", w.table, n))
		}
		return nil
	})
	log.Info("Write to DuckDB - " + strings.Join(info, "; "))
	return err
}

// The watermarks are read under their own short lock so readers are not blocked during the fetches.
func (in *Ingestor) watermarks(ctx context.Context) (map[string]uint64, error) {
	watermarks := make(map[string]uint64, len(in.Configs))
	for _, c := range in.Configs {
		watermarks[c.Table] = 0
	}
	err := in.Store.View(ctx, func(s *store.Session) error {
		for _, c := range in.Configs {
			w, err := s.Watermark(ctx, c.Table)
			if err != nil {
				return err
			}
			watermarks[c.Table] = w
		}
		return nil
	})
	if errors.Is(err, store.ErrStoreNotFound) {
		log.Debug("The store has not been created yet")
		return watermarks, nil
	}
	return watermarks, err
}

// fetchEvents never fails the cycle: an unavailable or malformed response yields an empty batch.
func (in *Ingestor) fetchEvents(ctx context.Context, c *events.EventConfig, from uint64, report *CycleReport) *store.Batch {
	records, err := in.Events.QueryEvents(ctx, c.Topic0(), from, true)
	if err != nil {
		entry := loghelper.LogTableError(c.Table, err).WithField("fromBlock", from)
		switch {
		case errors.Is(err, hypersync.ErrMalformedResponse):
			entry.Warn("Malformed response, no records for this table in this cycle")
		default:
			entry.Error("Unable to fetch events, no records for this table in this cycle")
		}
		report.FetchErrors[c.Table] = err.Error()
		in.Metrics.IncrementFetchErrors(c.Table)
		return store.NewBatch(c.Columns(true)...)
	}
	batch := c.Decode(records, true)
	dropped, err := batch.DropBelow(store.BlockNumberColumn, from)
	if err != nil {
		loghelper.LogTableError(c.Table, err).Error("Unable to filter the fetched records")
	} else if dropped > 0 {
		loghelper.LogTable(c.Table).WithFields(log.Fields{
			"dropped":   dropped,
			"fromBlock": from,
		}).Warn("Dropped records below the watermark")
	}
	return batch
}
