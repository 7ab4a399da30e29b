package events_test

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/vulcanize/mev-commit-indexer/pkg/events"
	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
	"github.com/vulcanize/mev-commit-indexer/pkg/testhelpers"
)

var bidder = common.HexToAddress("0x00000000000000000000000000000000000B1DDE")

func valueOf(batch *store.Batch, row int, column string) interface{} {
	idx := batch.ColumnIndex(column)
	Expect(idx).To(BeNumerically(">=", 0), column)
	return batch.Rows[row][idx]
}

var _ = Describe("Events", Label("unit"), func() {
	Describe("Parsing signatures", func() {
		It("Computes the topic of the canonical signature", func() {
			expected := crypto.Keccak256Hash([]byte("CommitmentProcessed(bytes32,bool)")).Hex()
			Expect(events.CommitmentProcessed.Topic0()).To(Equal(expected))
			Expect(events.CommitmentProcessed.Name).To(Equal("CommitmentProcessed"))
			Expect(events.CommitmentProcessed.Event.Inputs[0].Indexed).To(BeTrue())
		})
		It("Binds each event to its table", func() {
			tables := []string{}
			for _, c := range events.MevCommitEvents() {
				tables = append(tables, c.Table)
			}
			Expect(tables).To(Equal([]string{store.TableCommitStores, store.TableEncryptedStores, store.TableCommitsProcessed}))
		})
		DescribeTable("Rejects malformed signatures",
			func(signature string) {
				_, err := events.ParseSignature(signature)
				Expect(err).To(HaveOccurred())
			},
			Entry("no parenthesis", "Broken"),
			Entry("unknown type", "Broken(widget a)"),
			Entry("missing name", "Broken(uint64)"),
			Entry("misplaced indexed", "Broken(uint64 a indexed)"),
		)
	})

	Describe("Deriving columns", func() {
		It("Maps ABI types and applies the overrides", func() {
			columns := events.OpenedCommitmentStored.Columns(true)
			byName := map[string]store.ColumnType{}
			for _, c := range columns {
				byName[c.Name] = c.Type
			}
			Expect(byName["bid"]).To(Equal(store.TypeVarchar))
			Expect(byName["blockNumber"]).To(Equal(store.TypeUBigInt))
			Expect(byName["bidder"]).To(Equal(store.TypeVarchar))
			Expect(byName["block_number"]).To(Equal(store.TypeUBigInt))
			Expect(byName).To(HaveKey("parent_beacon_block_root"))
			Expect(columns).To(HaveLen(15 + len(events.TxDataColumns)))
		})
		It("Only carries the log position without transaction data", func() {
			columns := events.CommitmentProcessed.Columns(false)
			Expect(columns).To(HaveLen(2 + len(events.LogColumns)))
		})
	})

	Describe("Decoding logs", func() {
		var fixture testhelpers.CommitmentFixture

		BeforeEach(func() {
			fixture = testhelpers.NewCommitmentFixture(3, bidder, 42)
		})

		It("Decodes an opened commitment with its transaction data", func() {
			batch := events.OpenedCommitmentStored.Decode([]hypersync.EventRecord{fixture.Opened()}, true)
			Expect(batch.Len()).To(Equal(1))
			Expect(valueOf(batch, 0, "commitmentIndex")).To(Equal(fixture.Index.Hex()))
			Expect(valueOf(batch, 0, "bidder")).To(Equal(strings.ToLower(bidder.Hex())))
			Expect(valueOf(batch, 0, "bid").(*big.Int).Cmp(fixture.Bid)).To(Equal(0))
			Expect(valueOf(batch, 0, "blockNumber")).To(Equal(fixture.IncBlockNumber))
			Expect(valueOf(batch, 0, "txnHash")).To(Equal(fixture.TxnHash))
			Expect(valueOf(batch, 0, "bidSignature")).To(Equal("0x03"))
			Expect(valueOf(batch, 0, "block_number")).To(Equal(uint64(42)))
			Expect(valueOf(batch, 0, "timestamp")).To(Equal(uint64(1700000042)))
			Expect(valueOf(batch, 0, "from")).To(Equal("0x00000000000000000000000000000000000000f1"))
			Expect(valueOf(batch, 0, "base_fee_per_gas")).To(BeNil())
		})
		It("Decodes the processed flag", func() {
			fixture.IsSlash = true
			batch := events.CommitmentProcessed.Decode([]hypersync.EventRecord{fixture.Processed()}, false)
			Expect(batch.Len()).To(Equal(1))
			Expect(valueOf(batch, 0, "isSlash")).To(Equal(true))
			Expect(valueOf(batch, 0, "log_index")).To(Equal(uint64(2)))
		})
		It("Skips logs of another event and undecodable data", func() {
			broken := fixture.Unopened()
			broken.Log.Data = "0x1234"
			batch := events.UnopenedCommitmentStored.Decode([]hypersync.EventRecord{
				fixture.Processed(),
				broken,
				fixture.Unopened(),
			}, true)
			Expect(batch.Len()).To(Equal(1))
			Expect(valueOf(batch, 0, "committer")).To(Equal(strings.ToLower(fixture.Committer.Hex())))
		})
		It("Leaves transaction columns empty when the transaction was not joined", func() {
			record := fixture.Unopened()
			record.Transaction = nil
			record.Block = nil
			batch := events.UnopenedCommitmentStored.Decode([]hypersync.EventRecord{record}, true)
			Expect(batch.Len()).To(Equal(1))
			Expect(valueOf(batch, 0, "from")).To(BeNil())
			Expect(valueOf(batch, 0, "timestamp")).To(BeNil())
			Expect(valueOf(batch, 0, "block_number")).To(Equal(uint64(42)))
		})
	})

	Describe("L1 transactions", func() {
		It("Normalizes hashes", func() {
			Expect(events.NormalizeTxHash("ABCD")).To(Equal("0xabcd"))
			Expect(events.NormalizeTxHash("0xABCD")).To(Equal("0xabcd"))
			Expect(events.NormalizeTxHash("0x0xabcd")).To(Equal("0xabcd"))
		})
		It("Collects distinct transaction hashes in order", func() {
			a := testhelpers.NewCommitmentFixture(1, bidder, 10)
			b := testhelpers.NewCommitmentFixture(2, bidder, 10)
			dup := testhelpers.NewCommitmentFixture(5, bidder, 11)
			dup.TxnHash = strings.ToUpper(a.TxnHash)
			batch := events.OpenedCommitmentStored.Decode([]hypersync.EventRecord{a.Opened(), b.Opened(), dup.Opened()}, true)
			Expect(events.DistinctTxHashes(batch)).To(Equal([]string{a.NormalizedTxnHash(), b.NormalizedTxnHash()}))
		})
		It("Returns nothing for an empty batch", func() {
			Expect(events.DistinctTxHashes(store.NewBatch())).To(BeEmpty())
		})
		It("Builds the l1_transactions rows", func() {
			f := testhelpers.NewCommitmentFixture(1, bidder, 10)
			batch := events.L1Batch([]hypersync.TransactionRecord{f.L1Transaction()})
			Expect(batch.Len()).To(Equal(1))
			Expect(valueOf(batch, 0, "hash")).To(Equal(f.NormalizedTxnHash()))
			Expect(valueOf(batch, 0, "block_number")).To(Equal(f.IncBlockNumber))
			Expect(valueOf(batch, 0, "nonce")).To(Equal(uint64(1)))
			Expect(valueOf(batch, 0, "type")).To(BeNil())
			Expect(valueOf(batch, 0, "timestamp")).To(Equal(uint64(1700000100)))
		})
	})
})
