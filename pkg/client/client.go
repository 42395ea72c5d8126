package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/corescale/pkg/api"
	"github.com/cuemby/corescale/pkg/instancemanager"
	"github.com/cuemby/corescale/pkg/types"
)

// Client is a thin HTTP client for a single Instance Manager node's
// pkg/api surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new Client pointed at addr (e.g. "localhost:8080").
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetState calls GET /v1/instances.
func (c *Client) GetState() ([]*types.Instance, int64, error) {
	resp, err := c.http.Get(c.baseURL + "/v1/instances")
	if err != nil {
		return nil, 0, fmt.Errorf("client: get instances: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("client: get instances: status %d", resp.StatusCode)
	}

	var body api.GetStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("client: decode response: %w", err)
	}
	return body.Instances, body.Version, nil
}

// Update calls POST /v1/instances/updates.
func (c *Client) Update(expectedVersion int64, batch instancemanager.Batch) (int64, error) {
	reqBody, err := json.Marshal(api.UpdateRequest{ExpectedVersion: expectedVersion, Batch: batch})
	if err != nil {
		return 0, fmt.Errorf("client: marshal request: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+"/v1/instances/updates", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("client: post update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("client: post update: status %d", resp.StatusCode)
	}

	var body api.UpdateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("client: decode response: %w", err)
	}
	return body.Version, nil
}
