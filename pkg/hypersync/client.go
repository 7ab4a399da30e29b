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

// Package hypersync is a client for the HyperSync JSON API used to read contract events and
// transactions from an indexed chain.
package hypersync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
)

var (
	// The endpoint could not be reached, timed out, or answered with a server side error.
	ErrTransport = errors.New("hypersync transport error")
	// The endpoint answered with a body that could not be decoded.
	ErrMalformedResponse = errors.New("hypersync malformed response")
	// The endpoint refused the request.
	ErrRequestRejected = errors.New("hypersync request rejected")
)

const (
	DefaultTimeout  = 60 * time.Second
	DefaultMaxPages = 1000
)

// Client talks to a single HyperSync endpoint.
type Client struct {
	Url         string       // The base url, for example https://mev-commit.hypersync.xyz
	BearerToken string       // Optional API token sent as a bearer authorization header.
	HttpClient  *http.Client // The client used for every request.
	MaxPages    int          // Upper bound on pages followed by QueryAll.
}

// Create a new client. A zero timeout or maxPages uses the defaults.
func NewClient(url string, bearerToken string, timeout time.Duration, maxPages int) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	loghelper.LogUrl(url).Debug("Creating a HyperSync client")
	return &Client{
		Url:         strings.TrimRight(url, "/"),
		BearerToken: bearerToken,
		HttpClient:  &http.Client{Timeout: timeout},
		MaxPages:    maxPages,
	}
}

func (c *Client) do(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	endpoint := c.Url + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("unable to encode the request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		loghelper.LogEndpoint(method, endpoint).WithError(err).Error("Unable to create a request!")
		return fmt.Errorf("%w: unable to create a request: %s", ErrTransport, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}

	response, err := c.HttpClient.Do(req)
	if err != nil {
		loghelper.LogEndpoint(method, endpoint).WithError(err).Error("Unable to query HyperSync!")
		return fmt.Errorf("%w: %s", ErrTransport, err.Error())
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("%w: unable to read the response: %s", ErrTransport, err.Error())
	}

	rc := response.StatusCode
	switch {
	case rc == http.StatusTooManyRequests || rc >= 500:
		loghelper.LogEndpoint(method, endpoint).WithFields(log.Fields{"statusCode": rc}).Warn("HyperSync is unavailable")
		return fmt.Errorf("%w: status %d: %s", ErrTransport, rc, string(raw))
	case rc < 200 || rc > 299:
		loghelper.LogEndpoint(method, endpoint).WithFields(log.Fields{
			"statusCode": rc,
			"body":       string(raw),
		}).Error("HyperSync rejected the request")
		return fmt.Errorf("%w: status %d: %s", ErrRequestRejected, rc, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		loghelper.LogEndpoint(method, endpoint).WithFields(log.Fields{
			"rawMessage": truncate(string(raw), 512),
			"err":        err,
		}).Error("Unable to unmarshal the response")
		return fmt.Errorf("%w: %s", ErrMalformedResponse, err.Error())
	}
	return nil
}

// Query fetches a single page.
func (c *Client) Query(ctx context.Context, q Query) (*QueryResponse, error) {
	resp := &QueryResponse{}
	if err := c.do(ctx, http.MethodPost, "/query", q, resp); err != nil {
		return nil, err
	}
	if resp.NextBlock < q.FromBlock {
		return nil, fmt.Errorf("%w: next_block %d is behind from_block %d", ErrMalformedResponse, resp.NextBlock, q.FromBlock)
	}
	return resp, nil
}

// QueryAll follows next_block until the server reports the archive height or the requested
// to_block was reached, and returns the data of every page in order.
func (c *Client) QueryAll(ctx context.Context, q Query) ([]ResponseData, error) {
	var data []ResponseData
	for page := 0; ; page++ {
		if page >= c.MaxPages {
			loghelper.LogUrl(c.Url).WithFields(log.Fields{
				"pages":     page,
				"nextBlock": q.FromBlock,
			}).Warn("Reached the page limit, the remainder is left for the next query")
			return data, nil
		}
		resp, err := c.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		data = append(data, resp.Data...)

		if resp.NextBlock == q.FromBlock {
			return data, nil
		}
		if q.ToBlock != nil && resp.NextBlock >= *q.ToBlock {
			return data, nil
		}
		if resp.ArchiveHeight == nil || resp.NextBlock > *resp.ArchiveHeight {
			return data, nil
		}
		q.FromBlock = resp.NextBlock
	}
}

// Height returns the latest block the endpoint has indexed.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	var resp struct {
		Height *uint64 `json:"height"`
	}
	if err := c.do(ctx, http.MethodGet, "/height", nil, &resp); err != nil {
		return 0, err
	}
	if resp.Height == nil {
		return 0, fmt.Errorf("%w: missing height", ErrMalformedResponse)
	}
	return *resp.Height, nil
}

// CheckHealth makes sure the endpoint answers.
func (c *Client) CheckHealth(ctx context.Context) error {
	height, err := c.Height(ctx)
	if err != nil {
		return err
	}
	loghelper.LogUrl(c.Url).WithField("height", height).Debug("HyperSync is reachable")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
