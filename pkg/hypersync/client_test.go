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
package hypersync_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/vulcanize/mev-commit-indexer/pkg/hypersync"
)

const (
	testUrl    = "http://hypersync.test"
	testTopic0 = "0xa4a1cd2bb0f3f0e2a5a8e7b43b0c3b2ca7a2f2a4d3e9d3d39d5b5cf41b3e7f01"
)

func uint64Ptr(v uint64) *uint64 {
	return &v
}

// Answer every POST /query with the page whose from_block matches the request.
func pagedResponder(pages map[uint64]string, seen *[]hypersync.Query) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		var q hypersync.Query
		if err := json.NewDecoder(req.Body).Decode(&q); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		*seen = append(*seen, q)
		body, ok := pages[q.FromBlock]
		if !ok {
			return httpmock.NewStringResponse(http.StatusBadRequest, fmt.Sprintf("unexpected from_block %d", q.FromBlock)), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, body), nil
	}
}

var _ = Describe("Hypersync", Label("unit"), func() {
	var (
		ctx    context.Context
		client *hypersync.Client
		seen   []hypersync.Query
	)

	BeforeEach(func() {
		httpmock.Activate()
		ctx = context.Background()
		client = hypersync.NewClient(testUrl+"/", "", 5*time.Second, 10)
		seen = nil
	})

	AfterEach(func() {
		httpmock.DeactivateAndReset()
	})

	Describe("Creating a client", func() {
		It("Should apply the defaults and trim the url", func() {
			c := hypersync.NewClient(testUrl+"/", "", 0, 0)
			Expect(c.Url).To(Equal(testUrl))
			Expect(c.MaxPages).To(Equal(hypersync.DefaultMaxPages))
			Expect(c.HttpClient.Timeout).To(Equal(hypersync.DefaultTimeout))
		})
	})

	Describe("Decoding quantities", func() {
		It("Accepts numbers, hex strings and decimal strings", func() {
			var values []hypersync.Quantity
			Expect(json.Unmarshal([]byte(`[7, "0x10", "42", "0x"]`), &values)).To(Succeed())
			Expect(values[0].Uint64()).To(Equal(uint64(7)))
			Expect(values[1].Uint64()).To(Equal(uint64(16)))
			Expect(values[2].Uint64()).To(Equal(uint64(42)))
			Expect(values[3].Uint64()).To(Equal(uint64(0)))
		})
		It("Rejects garbage", func() {
			var q hypersync.Quantity
			Expect(json.Unmarshal([]byte(`"0xzz"`), &q)).NotTo(Succeed())
			Expect(json.Unmarshal([]byte(`"-5"`), &q)).NotTo(Succeed())
		})
	})

	Describe("Paging through a query", func() {
		It("Follows next_block until the archive height", func() {
			httpmock.RegisterResponder("POST", testUrl+"/query", pagedResponder(map[uint64]string{
				0:   `{"data":[{"logs":[{"block_number":5,"log_index":0,"transaction_index":0,"topic0":"0x01"}]}],"archive_height":200,"next_block":100}`,
				100: `{"data":[{"logs":[{"block_number":150,"log_index":0,"transaction_index":0,"topic0":"0x01"}]}],"archive_height":200,"next_block":201}`,
			}, &seen))

			data, err := client.QueryAll(ctx, hypersync.Query{FromBlock: 0})
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(HaveLen(2))
			Expect(data[0].Logs[0].BlockNumber.Uint64()).To(Equal(uint64(5)))
			Expect(data[1].Logs[0].BlockNumber.Uint64()).To(Equal(uint64(150)))
			Expect(seen).To(HaveLen(2))
		})
		It("Stops at the requested to_block", func() {
			httpmock.RegisterResponder("POST", testUrl+"/query", pagedResponder(map[uint64]string{
				0: `{"data":[],"archive_height":500,"next_block":100}`,
			}, &seen))
			_, err := client.QueryAll(ctx, hypersync.Query{FromBlock: 0, ToBlock: uint64Ptr(100)})
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(HaveLen(1))
		})
		It("Stops when the server makes no progress", func() {
			httpmock.RegisterResponder("POST", testUrl+"/query", pagedResponder(map[uint64]string{
				300: `{"data":[],"archive_height":299,"next_block":300}`,
			}, &seen))
			data, err := client.QueryAll(ctx, hypersync.Query{FromBlock: 300})
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(BeEmpty())
			Expect(seen).To(HaveLen(1))
		})
		It("Honors the page limit", func() {
			client.MaxPages = 1
			httpmock.RegisterResponder("POST", testUrl+"/query", pagedResponder(map[uint64]string{
				0: `{"data":[{"logs":[]}],"archive_height":500,"next_block":100}`,
			}, &seen))
			data, err := client.QueryAll(ctx, hypersync.Query{FromBlock: 0})
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(HaveLen(1))
			Expect(seen).To(HaveLen(1))
		})
	})

	Describe("Classifying failures", func() {
		DescribeTable("Maps the response to an error class",
			func(responder httpmock.Responder, expected error) {
				httpmock.RegisterResponder("POST", testUrl+"/query", responder)
				_, err := client.Query(ctx, hypersync.Query{})
				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, expected)).To(BeTrue(), err.Error())
			},
			Entry("server error", httpmock.NewStringResponder(http.StatusInternalServerError, "boom"), hypersync.ErrTransport),
			Entry("rate limited", httpmock.NewStringResponder(http.StatusTooManyRequests, "slow down"), hypersync.ErrTransport),
			Entry("network failure", httpmock.NewErrorResponder(errors.New("connection refused")), hypersync.ErrTransport),
			Entry("bad request", httpmock.NewStringResponder(http.StatusBadRequest, "bad query"), hypersync.ErrRequestRejected),
			Entry("not json", httpmock.NewStringResponder(http.StatusOK, "<html>"), hypersync.ErrMalformedResponse),
			Entry("bad quantity", httpmock.NewStringResponder(http.StatusOK, `{"data":[],"next_block":"0xnope"}`), hypersync.ErrMalformedResponse),
		)
		It("Rejects a next_block behind the request", func() {
			httpmock.RegisterResponder("POST", testUrl+"/query",
				httpmock.NewStringResponder(http.StatusOK, `{"data":[],"archive_height":10,"next_block":3}`))
			_, err := client.Query(ctx, hypersync.Query{FromBlock: 5})
			Expect(errors.Is(err, hypersync.ErrMalformedResponse)).To(BeTrue())
		})
	})

	Describe("Querying events", func() {
		It("Selects the topic and joins transactions and blocks", func() {
			httpmock.RegisterResponder("POST", testUrl+"/query", pagedResponder(map[uint64]string{
				10: `{"data":[{
					"blocks":[{"number":"0xc","hash":"0xb1","timestamp":"0x64"}],
					"transactions":[{"block_number":12,"transaction_index":1,"hash":"0xt1","from":"0xf1","nonce":"0x2"}],
					"logs":[{"block_number":12,"transaction_index":1,"log_index":3,"transaction_hash":"0xt1","topic0":"0x01","topic1":"0x02"}]
				}],"archive_height":12,"next_block":13}`,
			}, &seen))

			records, err := client.QueryEvents(ctx, testTopic0, 10, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Log.Topics()).To(Equal([]string{"0x01", "0x02"}))
			Expect(records[0].Transaction).NotTo(BeNil())
			Expect(records[0].Transaction.Hash).To(Equal("0xt1"))
			Expect(records[0].Block).NotTo(BeNil())
			Expect(records[0].Block.Timestamp.Uint64()).To(Equal(uint64(100)))

			Expect(seen[0].Logs[0].Topics[0]).To(Equal([]string{testTopic0}))
			Expect(seen[0].FieldSelection.Transaction).To(Equal(hypersync.TransactionFields))
		})
		It("Leaves out the transaction data when not asked for", func() {
			httpmock.RegisterResponder("POST", testUrl+"/query", pagedResponder(map[uint64]string{
				0: `{"data":[{"logs":[{"block_number":1,"transaction_index":0,"log_index":0,"topic0":"0x01"}]}],"archive_height":1,"next_block":2}`,
			}, &seen))
			records, err := client.QueryEvents(ctx, testTopic0, 0, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(records[0].Transaction).To(BeNil())
			Expect(seen[0].JoinMode).To(Equal(hypersync.JoinNothing))
			Expect(seen[0].FieldSelection.Block).To(BeEmpty())
		})
	})

	Describe("Querying transactions", func() {
		It("Returns nothing without sending a request for no hashes", func() {
			records, err := client.QueryTransactions(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
			Expect(httpmock.GetTotalCallCount()).To(Equal(0))
		})
		It("Selects by hash and joins the block", func() {
			httpmock.RegisterResponder("POST", testUrl+"/query", pagedResponder(map[uint64]string{
				0: `{"data":[{
					"blocks":[{"number":7,"hash":"0xb7","timestamp":70,"base_fee_per_gas":"0x3b9aca00"}],
					"transactions":[{"block_number":7,"transaction_index":0,"hash":"0xaa","from":"0xf1","nonce":1,"type":2}]
				}],"archive_height":9,"next_block":10}`,
			}, &seen))
			records, err := client.QueryTransactions(ctx, []string{"0xaa", "0xbb"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Block.BaseFeePerGas.Uint64()).To(Equal(uint64(1000000000)))
			Expect(seen[0].Transactions[0].Hash).To(Equal([]string{"0xaa", "0xbb"}))
		})
	})

	Describe("Checking health", func() {
		It("Reads the height and sends the bearer token", func() {
			client.BearerToken = "secret"
			httpmock.RegisterResponder("GET", testUrl+"/height", func(req *http.Request) (*http.Response, error) {
				if req.Header.Get("Authorization") != "Bearer secret" {
					return httpmock.NewStringResponse(http.StatusUnauthorized, "no token"), nil
				}
				return httpmock.NewStringResponse(http.StatusOK, `{"height":1234}`), nil
			})
			height, err := client.Height(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(height).To(Equal(uint64(1234)))
			Expect(client.CheckHealth(ctx)).To(Succeed())
		})
		It("Fails when the endpoint is down", func() {
			httpmock.RegisterResponder("GET", testUrl+"/height", httpmock.NewStringResponder(http.StatusBadGateway, ""))
			err := client.CheckHealth(ctx)
			Expect(errors.Is(err, hypersync.ErrTransport)).To(BeTrue())
		})
	})
})
