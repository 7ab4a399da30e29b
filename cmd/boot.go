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
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vulcanize/mev-commit-indexer/internal/boot"
	"github.com/vulcanize/mev-commit-indexer/internal/shutdown"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
)

// bootCmd represents the boot command
var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Run the boot command then exit",
	Long:  `Run the application to boot and exit. Primarily used for testing.`,
	Run: func(cmd *cobra.Command, args []string) {
		bootApp()
	},
}

func bootApp() {

	// Boot the application
	log.Info("Starting the application in boot mode.")
	ctx := context.Background()

	app, err := boot.BootApplicationWithRetry(ctx, bootConfig())
	if err != nil {
		StopApplicationPreBoot(err)
	}

	log.Info("Boot complete, we are going to shutdown.")

	notifierCh := make(chan os.Signal, 1)

	go func() {
		notifierCh <- syscall.SIGTERM
	}()

	err = shutdown.ShutdownBoot(ctx, notifierCh, maxWaitSecondsShutdown, app)
	if err != nil {
		loghelper.LogError(err).Error("Ungracefully Shutdown mev-commit-indexer!")
	} else {
		log.Info("Gracefully shutdown mev-commit-indexer")
	}
}

func init() {
	ingestCmd.AddCommand(bootCmd)
}
