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
package loghelper

import (
	log "github.com/sirupsen/logrus"
)

// A simple helper function that will help wrap messages about a single table.
func LogTable(table string) *log.Entry {
	return log.WithFields(log.Fields{
		"table": table,
	})
}

// A simple helper function that will help wrap the table error messages.
func LogTableError(table string, err error) *log.Entry {
	return log.WithFields(log.Fields{
		"err":   err,
		"table": table,
	})
}

// A simple helper function for messages about one chunk of an L1 transaction request.
func LogChunk(index int, size int) *log.Entry {
	return log.WithFields(log.Fields{
		"chunk":     index,
		"chunkSize": size,
	})
}
