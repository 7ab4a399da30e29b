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
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	v "github.com/vulcanize/mev-commit-indexer/pkg/version"
)

var (
	Major = 0  // Major version component of the current release
	Minor = 1  // Minor version component of the current release
	Patch = 0  // Patch version component of the current release
	Meta  = "" // Version metadata to append to the version string
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version of mev-commit-indexer",
	Long: `Prints the version of mev-commit-indexer together with the version metadata
set at build time, for example:

go build -ldflags "-X github.com/vulcanize/mev-commit-indexer/cmd.Meta=$(git rev-parse --short HEAD)"`,
	Run: func(cmd *cobra.Command, args []string) {
		version := v.Version{
			Major: Major,
			Minor: Minor,
			Patch: Patch,
			Meta:  Meta,
		}
		log.WithFields(log.Fields{"version": version.GetVersionWithMeta(), "go": version.GoVersion()}).Debug("mev-commit-indexer version")
		fmt.Println(version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
