package events

import (
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
)

const (
	UnopenedCommitmentStoredSignature = "UnopenedCommitmentStored(bytes32 indexed commitmentIndex, address committer, " +
		"bytes32 commitmentDigest, bytes commitmentSignature, uint64 dispatchTimestamp)"

	OpenedCommitmentStoredSignature = "OpenedCommitmentStored(bytes32 indexed commitmentIndex, address bidder, " +
		"address committer, uint256 bid, uint64 blockNumber, bytes32 bidHash, uint64 decayStartTimeStamp, " +
		"uint64 decayEndTimeStamp, string txnHash, string revertingTxHashes, bytes32 commitmentDigest, " +
		"bytes bidSignature, bytes commitmentSignature, uint64 dispatchTimestamp, bytes sharedSecretKey)"

	CommitmentProcessedSignature = "CommitmentProcessed(bytes32 indexed commitmentIndex, bool isSlash)"
)

var (
	UnopenedCommitmentStored = mustEventConfig(store.TableEncryptedStores, UnopenedCommitmentStoredSignature, nil)
	OpenedCommitmentStored   = mustEventConfig(store.TableCommitStores, OpenedCommitmentStoredSignature, map[string]store.ColumnType{
		// uint256 wei amounts, kept as decimal text.
		"bid": store.TypeVarchar,
	})
	CommitmentProcessed = mustEventConfig(store.TableCommitsProcessed, CommitmentProcessedSignature, nil)
)

// MevCommitEvents returns the followed events in the order they are fetched and written.
func MevCommitEvents() []*EventConfig {
	return []*EventConfig{OpenedCommitmentStored, UnopenedCommitmentStored, CommitmentProcessed}
}

func mustEventConfig(table string, signature string, mapping map[string]store.ColumnType) *EventConfig {
	config, err := NewEventConfig(table, signature, mapping)
	if err != nil {
		panic(err)
	}
	return config
}
