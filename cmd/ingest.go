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

package cmd

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vulcanize/mev-commit-indexer/internal/boot"
	"github.com/vulcanize/mev-commit-indexer/internal/shutdown"
	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
	"github.com/vulcanize/mev-commit-indexer/pkg/ingest"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
)

var notifierCh chan os.Signal = make(chan os.Signal, 1)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Follow the mev-commit events and write them to the store",
	Long: `Follow the commitment events of the mev-commit chain and the L1 transactions they reference.
Every interval, each table is caught up from its latest stored block and all new rows
are written to the DuckDB store in a single locked session.`,
	Run: func(cmd *cobra.Command, args []string) {
		startIngestion()
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	//// HyperSync Specific
	ingestCmd.PersistentFlags().String("hs.commitUrl", "https://mev-commit.hypersync.xyz", "HyperSync endpoint of the mev-commit chain")
	ingestCmd.PersistentFlags().String("hs.l1Url", "https://holesky.hypersync.xyz", "HyperSync endpoint of the L1 chain")
	ingestCmd.PersistentFlags().String("hs.bearerToken", "", "Bearer token sent to both HyperSync endpoints")
	ingestCmd.PersistentFlags().Duration("hs.requestTimeout", hypersync.DefaultTimeout, "Timeout of a single HyperSync request")
	ingestCmd.PersistentFlags().Int("hs.maxPages", hypersync.DefaultMaxPages, "Maximum number of pages followed by a single HyperSync query")

	//// Ingestion Specific
	defaults := ingest.DefaultConfig()
	ingestCmd.PersistentFlags().Duration("ingest.interval", defaults.Interval, "Time to sleep between two ingestion cycles")
	ingestCmd.PersistentFlags().Int("ingest.chunkSize", defaults.ChunkSize, "Number of transaction hashes requested from the L1 endpoint at once")
	ingestCmd.PersistentFlags().Duration("ingest.chunkTimeout", defaults.ChunkTimeout, "Timeout of a single L1 chunk, a chunk that times out is dropped")
	ingestCmd.PersistentFlags().Int("ingest.chunkWorkers", defaults.ChunkWorkers, "Number of L1 chunks fetched concurrently")
	ingestCmd.PersistentFlags().Duration("ingest.bootRetryInterval", 30*time.Second, "Time to wait between two boot attempts")
	ingestCmd.PersistentFlags().Int("ingest.bootMaxRetry", 5, "Number of boot attempts before giving up")

	//// Prometheus Specific
	ingestCmd.PersistentFlags().Bool("pm.metrics", true, "Serve the metrics, health and event stream endpoints")
	ingestCmd.PersistentFlags().String("pm.address", "localhost", "Address of the status server")
	ingestCmd.PersistentFlags().Int("pm.port", 9000, "Port of the status server")

	// Bind Flags with Viper
	for _, key := range []string{
		"hs.commitUrl", "hs.l1Url", "hs.bearerToken", "hs.requestTimeout", "hs.maxPages",
		"ingest.interval", "ingest.chunkSize", "ingest.chunkTimeout", "ingest.chunkWorkers",
		"ingest.bootRetryInterval", "ingest.bootMaxRetry",
		"pm.metrics", "pm.address", "pm.port",
	} {
		exitErr(viper.BindPFlag(key, ingestCmd.PersistentFlags().Lookup(key)))
	}
}

// Boot the application, then run the ingestion loop until a signal is received.
func startIngestion() {
	log.Info("Starting the application in ingestion mode.")
	ctx := context.Background()

	app, err := boot.BootApplicationWithRetry(ctx, bootConfig())
	if err != nil {
		StopApplicationPreBoot(err)
	}

	metrics := ingest.NewMetrics(prometheus.DefaultRegisterer)
	ingestor := ingest.NewIngestor(app.Store, app.CommitChain, app.L1Chain, ingest.Config{
		Interval:     viper.GetDuration("ingest.interval"),
		ChunkSize:    viper.GetInt("ingest.chunkSize"),
		ChunkTimeout: viper.GetDuration("ingest.chunkTimeout"),
		ChunkWorkers: viper.GetInt("ingest.chunkWorkers"),
	}, metrics)

	var status *ingest.StatusServer
	if viper.GetBool("pm.metrics") {
		addr := viper.GetString("pm.address") + ":" + strconv.Itoa(viper.GetInt("pm.port"))
		status = ingest.NewStatusServer(addr, prometheus.DefaultGatherer)
		ingestor.Publisher = status
		go func() {
			if err := status.ListenAndServe(); err != nil {
				loghelper.LogError(err).Error("The status server stopped")
			}
		}()
	}

	log.Info("The application has booted successfully!")
	cancel, done := shutdown.StartIngestion(ctx, notifierCh, ingestor.Run)

	// Shutdown when the time is right.
	err = shutdown.ShutdownIngestion(ctx, notifierCh, maxWaitSecondsShutdown, cancel, done, status)
	if err != nil {
		loghelper.LogError(err).Fatal("Ungracefully Shutdown mev-commit-indexer!")
	} else {
		log.Info("Gracefully shutdown mev-commit-indexer")
	}
}

func bootConfig() boot.Config {
	return boot.Config{
		StorePath:      viper.GetString("store.path"),
		LockfilePath:   viper.GetString("store.lockfile"),
		CommitUrl:      viper.GetString("hs.commitUrl"),
		L1Url:          viper.GetString("hs.l1Url"),
		BearerToken:    viper.GetString("hs.bearerToken"),
		RequestTimeout: viper.GetDuration("hs.requestTimeout"),
		MaxPages:       viper.GetInt("hs.maxPages"),
		RetryInterval:  viper.GetDuration("ingest.bootRetryInterval"),
		MaxRetry:       viper.GetInt("ingest.bootMaxRetry"),
	}
}

// Stop the application if it could not boot.
func StopApplicationPreBoot(err error) {
	loghelper.LogError(err).Fatal("Unable to boot the application")
}

// Helper function to catch any errors.
// We need to capture these errors for the linter.
func exitErr(err error) {
	if err != nil {
		os.Exit(1)
	}
}
