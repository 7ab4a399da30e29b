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
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vulcanize/mev-commit-indexer/internal/boot"
	"github.com/vulcanize/mev-commit-indexer/internal/shutdown"
	"github.com/vulcanize/mev-commit-indexer/pkg/api"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the stored commitments over HTTP",
	Long: `Serve a read-only HTTP API on top of the DuckDB store: list the tables and their schema,
page through the joined preconfirmation commitments, and aggregate them by bidder or block.`,
	Run: func(cmd *cobra.Command, args []string) {
		startServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("api.address", "0.0.0.0", "Address the query service listens on")
	serveCmd.Flags().Int("api.port", 8000, "Port the query service listens on")

	exitErr(viper.BindPFlag("api.address", serveCmd.Flags().Lookup("api.address")))
	exitErr(viper.BindPFlag("api.port", serveCmd.Flags().Lookup("api.port")))
}

func startServer() {
	log.Info("Starting the application in query mode.")
	ctx := context.Background()

	st, err := boot.BootReader(viper.GetString("store.path"), viper.GetString("store.lockfile"))
	if err != nil {
		StopApplicationPreBoot(err)
	}

	addr := viper.GetString("api.address") + ":" + strconv.Itoa(viper.GetInt("api.port"))
	server := api.NewServer(st, addr, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			loghelper.LogError(err).Error("The query server stopped")
			notifierCh <- syscall.SIGTERM
		}
	}()

	err = shutdown.ShutdownServer(ctx, notifierCh, maxWaitSecondsShutdown, server)
	if err != nil {
		loghelper.LogError(err).Fatal("Ungracefully Shutdown mev-commit-indexer!")
	} else {
		log.Info("Gracefully shutdown mev-commit-indexer")
	}
}
