package testhelpers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vulcanize/mev-commit-indexer/pkg/events"
	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
)

// CommitmentFixture describes one preconfirmation across all three events and its L1 transaction.
type CommitmentFixture struct {
	Index          common.Hash
	Bidder         common.Address
	Committer      common.Address
	Bid            *big.Int
	IncBlockNumber uint64
	TxnHash        string // As emitted by the contract, without the 0x prefix.
	StoredAt       uint64 // Block of the mev-commit chain the events are emitted in.
	IsSlash        bool
}

// NewCommitmentFixture derives a deterministic commitment from n.
func NewCommitmentFixture(n int, bidder common.Address, storedAt uint64) CommitmentFixture {
	index := crypto.Keccak256Hash([]byte(fmt.Sprintf("commitment-%d", n)))
	txn := crypto.Keccak256Hash([]byte(fmt.Sprintf("l1-transaction-%d", n)))
	bid, _ := new(big.Int).SetString("1000000000000000000", 10)
	return CommitmentFixture{
		Index:          index,
		Bidder:         bidder,
		Committer:      common.HexToAddress(fmt.Sprintf("0x%040x", 0xc0ffee+n)),
		Bid:            bid.Mul(bid, big.NewInt(int64(n+1))),
		IncBlockNumber: 1000 + uint64(n),
		TxnHash:        txn.Hex()[2:],
		StoredAt:       storedAt,
	}
}

// NormalizedTxnHash is the hash as stored in l1_transactions.
func (f CommitmentFixture) NormalizedTxnHash() string {
	return events.NormalizeTxHash(f.TxnHash)
}

func (f CommitmentFixture) Unopened() hypersync.EventRecord {
	digest := crypto.Keccak256Hash(f.Index.Bytes(), []byte("digest"))
	return EventRecord(events.UnopenedCommitmentStored, f.StoredAt, 0, []interface{}{
		[32]byte(f.Index),
		f.Committer,
		[32]byte(digest),
		[]byte{0x01, 0x02},
		uint64(1700000000),
	})
}

func (f CommitmentFixture) Opened() hypersync.EventRecord {
	digest := crypto.Keccak256Hash(f.Index.Bytes(), []byte("digest"))
	bidHash := crypto.Keccak256Hash(f.Index.Bytes(), []byte("bid"))
	return EventRecord(events.OpenedCommitmentStored, f.StoredAt, 1, []interface{}{
		[32]byte(f.Index),
		f.Bidder,
		f.Committer,
		f.Bid,
		f.IncBlockNumber,
		[32]byte(bidHash),
		uint64(1700000000),
		uint64(1700000012),
		f.TxnHash,
		"",
		[32]byte(digest),
		[]byte{0x03},
		[]byte{0x04},
		uint64(1700000001),
		[]byte{0x05},
	})
}

func (f CommitmentFixture) Processed() hypersync.EventRecord {
	return EventRecord(events.CommitmentProcessed, f.StoredAt, 2, []interface{}{
		[32]byte(f.Index),
		f.IsSlash,
	})
}

func (f CommitmentFixture) L1Transaction() hypersync.TransactionRecord {
	to := "0x00000000000000000000000000000000000000aa"
	return hypersync.TransactionRecord{
		Transaction: hypersync.Transaction{
			BlockNumber:      hypersync.NewQuantity(f.IncBlockNumber),
			BlockHash:        crypto.Keccak256Hash([]byte(fmt.Sprintf("l1-block-%d", f.IncBlockNumber))).Hex(),
			TransactionIndex: hypersync.NewQuantity(0),
			Hash:             "0x" + f.TxnHash,
			From:             f.Bidder.Hex(),
			To:               &to,
			Nonce:            hypersync.NewQuantity(1),
		},
		Block: &hypersync.Block{
			Number:    hypersync.NewQuantity(f.IncBlockNumber),
			Hash:      crypto.Keccak256Hash([]byte(fmt.Sprintf("l1-block-%d", f.IncBlockNumber))).Hex(),
			Timestamp: hypersync.NewQuantity(1700000100),
		},
	}
}

// EventRecord ABI encodes args, given in declaration order, into a log of the configured event.
// The log comes with a transaction and block, as if transaction data had been requested.
func EventRecord(config *events.EventConfig, block uint64, logIndex uint64, args []interface{}) hypersync.EventRecord {
	topic0 := config.Topic0()
	topics := []*string{&topic0}
	var data []interface{}
	for i, arg := range config.Event.Inputs {
		if arg.Indexed {
			b := args[i].([32]byte)
			topic := common.Hash(b).Hex()
			topics = append(topics, &topic)
			continue
		}
		data = append(data, args[i])
	}
	packed, err := config.Event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}

	txHash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s-%d-%d", config.Name, block, logIndex))).Hex()
	blockHash := crypto.Keccak256Hash([]byte(fmt.Sprintf("block-%d", block))).Hex()
	l := hypersync.Log{
		BlockNumber:      hypersync.NewQuantity(block),
		BlockHash:        blockHash,
		LogIndex:         hypersync.NewQuantity(logIndex),
		TransactionIndex: hypersync.NewQuantity(logIndex),
		TransactionHash:  txHash,
		Data:             hexutil.Encode(packed),
	}
	for i, t := range topics {
		switch i {
		case 0:
			l.Topic0 = t
		case 1:
			l.Topic1 = t
		case 2:
			l.Topic2 = t
		case 3:
			l.Topic3 = t
		}
	}
	return hypersync.EventRecord{
		Log: l,
		Transaction: &hypersync.Transaction{
			BlockNumber:      hypersync.NewQuantity(block),
			BlockHash:        blockHash,
			TransactionIndex: hypersync.NewQuantity(logIndex),
			Hash:             txHash,
			From:             "0x00000000000000000000000000000000000000f1",
			Nonce:            hypersync.NewQuantity(logIndex),
		},
		Block: &hypersync.Block{
			Number:    hypersync.NewQuantity(block),
			Hash:      blockHash,
			Timestamp: hypersync.NewQuantity(1700000000 + block),
		},
	}
}

// SeedStore writes the fixtures to all four tables the way one ingestion cycle would.
func SeedStore(ctx context.Context, st *store.Store, fixtures ...CommitmentFixture) error {
	var unopened, opened, processed []hypersync.EventRecord
	var l1 []hypersync.TransactionRecord
	for _, f := range fixtures {
		unopened = append(unopened, f.Unopened())
		opened = append(opened, f.Opened())
		processed = append(processed, f.Processed())
		l1 = append(l1, f.L1Transaction())
	}
	return st.Update(ctx, func(s *store.Session) error {
		writes := []struct {
			table string
			batch *store.Batch
		}{
			{store.TableCommitStores, events.OpenedCommitmentStored.Decode(opened, true)},
			{store.TableEncryptedStores, events.UnopenedCommitmentStored.Decode(unopened, true)},
			{store.TableCommitsProcessed, events.CommitmentProcessed.Decode(processed, true)},
			{store.TableL1Transactions, events.L1Batch(l1)},
		}
		for _, w := range writes {
			if _, err := s.Write(ctx, w.table, w.batch); err != nil {
				return err
			}
		}
		return nil
	})
}
