// Package indexer provides access to the network indexer: the external
// collaborator that serves raw contract state snapshots and streams
// state-update notifications. The core owns no wire format here; the
// serialized state blob is passed through opaquely.
package indexer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/types"
)

// StateFetcher retrieves the raw serialized state for a contract.
// Implementations return (nil, nil) when no contract exists at the
// address; that is an expected steady state, not an error.
type StateFetcher interface {
	FetchState(ctx context.Context, addr types.ContractAddress) (*types.ContractState, error)
}

// HTTPClient fetches contract state from an indexer HTTP endpoint.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	log     *logging.Logger
}

var _ StateFetcher = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the given indexer base URL.
func NewHTTPClient(baseURL string, timeout time.Duration, log *logging.Logger) *HTTPClient {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.WithComponent("indexer"),
	}
}

// stateResponse is the indexer's snapshot payload.
type stateResponse struct {
	RawState    string `json:"rawState"`
	BlockHeight uint64 `json:"blockHeight"`
	Timestamp   int64  `json:"timestamp"`
}

// FetchState retrieves the latest state snapshot for a contract.
func (c *HTTPClient) FetchState(ctx context.Context, addr types.ContractAddress) (*types.ContractState, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/contracts/%s/state", c.baseURL, addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building state request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.log.Debug("no contract at address",
			logging.Contract(addr.String()),
			logging.Duration(time.Since(start)))
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStateBytes))
	if err != nil {
		return nil, fmt.Errorf("reading state response: %w", err)
	}

	var sr stateResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("decoding state response: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(sr.RawState)
	if err != nil {
		return nil, fmt.Errorf("decoding raw state: %w", err)
	}

	c.log.Debug("fetched contract state",
		logging.Contract(addr.String()),
		logging.Height(sr.BlockHeight),
		logging.Size(len(raw)),
		logging.Duration(time.Since(start)))

	return &types.ContractState{
		Address:     addr,
		RawState:    raw,
		BlockHeight: sr.BlockHeight,
		Timestamp:   sr.Timestamp,
	}, nil
}

// maxStateBytes bounds a single snapshot response.
const maxStateBytes = 64 << 20
