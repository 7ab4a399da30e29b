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

// Package events describes the contract events the indexer follows and turns raw logs into
// store batches.
package events

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
)

// EventConfig binds an event signature to the table its decoded rows are written to.
type EventConfig struct {
	Name      string
	Table     string
	Signature string
	Event     abi.Event
	// Overrides the column type derived from the ABI type of an argument.
	ColumnMapping map[string]store.ColumnType
}

// NewEventConfig parses a human readable signature such as
// "CommitmentProcessed(bytes32 indexed commitmentIndex, bool isSlash)".
func NewEventConfig(table string, signature string, mapping map[string]store.ColumnType) (*EventConfig, error) {
	event, err := ParseSignature(signature)
	if err != nil {
		return nil, err
	}
	return &EventConfig{
		Name:          event.RawName,
		Table:         table,
		Signature:     signature,
		Event:         event,
		ColumnMapping: mapping,
	}, nil
}

// Topic0 is the keccak hash of the canonical signature, hex encoded.
func (c *EventConfig) Topic0() string {
	return c.Event.ID.Hex()
}

// ParseSignature builds an abi.Event from "Name(type [indexed] name, ...)".
func ParseSignature(signature string) (abi.Event, error) {
	signature = strings.TrimSpace(signature)
	open := strings.Index(signature, "(")
	if open <= 0 || !strings.HasSuffix(signature, ")") {
		return abi.Event{}, fmt.Errorf("malformed event signature %q", signature)
	}
	name := strings.TrimSpace(signature[:open])
	body := strings.TrimSpace(signature[open+1 : len(signature)-1])

	var inputs abi.Arguments
	if body != "" {
		for i, part := range strings.Split(body, ",") {
			fields := strings.Fields(part)
			arg := abi.Argument{}
			switch {
			case len(fields) == 3 && fields[1] == "indexed":
				arg.Indexed = true
				arg.Name = fields[2]
			case len(fields) == 2 && fields[1] != "indexed":
				arg.Name = fields[1]
			default:
				return abi.Event{}, fmt.Errorf("malformed argument %d %q in %s", i, strings.TrimSpace(part), name)
			}
			typ, err := abi.NewType(fields[0], "", nil)
			if err != nil {
				return abi.Event{}, fmt.Errorf("argument %s of %s: %w", arg.Name, name, err)
			}
			arg.Type = typ
			inputs = append(inputs, arg)
		}
	}
	return abi.NewEvent(name, name, false, inputs), nil
}
