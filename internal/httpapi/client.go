package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ports"
	"github.com/bft-labs/dcaledger/pkg/dcaledger"
)

// Client calls a running API server.
type Client struct {
	baseURL string
	http    ports.HTTPClient
}

// NewClient creates a client for the server at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(baseURL string, httpClient ports.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Health returns the server health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/v1/health", nil, &out)
	return out, err
}

// Info returns the ledger summary.
func (c *Client) Info(ctx context.Context) (dcaledger.Info, error) {
	var out dcaledger.Info
	err := c.do(ctx, http.MethodGet, "/v1/ledger", nil, &out)
	return out, err
}

// Allocation returns allocation id with its balances.
func (c *Client) Allocation(ctx context.Context, id uint64) (AllocationResponse, error) {
	var out AllocationResponse
	err := c.do(ctx, http.MethodGet, "/v1/allocations/"+strconv.FormatUint(id, 10), nil, &out)
	return out, err
}

// Enter creates an allocation.
func (c *Client) Enter(ctx context.Context, req EnterRequest) (domain.EnterEvent, error) {
	var out domain.EnterEvent
	err := c.do(ctx, http.MethodPost, "/v1/enter", req, &out)
	return out, err
}

// Execute triggers an execution.
func (c *Client) Execute(ctx context.Context) (domain.ExecuteEvent, error) {
	var out domain.ExecuteEvent
	err := c.do(ctx, http.MethodPost, "/v1/execute", struct{}{}, &out)
	return out, err
}

// Exit retires an allocation.
func (c *Client) Exit(ctx context.Context, req ExitRequest) (domain.ExitEvent, error) {
	var out domain.ExitEvent
	err := c.do(ctx, http.MethodPost, "/v1/exit", req, &out)
	return out, err
}

// Mint credits sandbox tokens and returns the recipient's holdings.
func (c *Client) Mint(ctx context.Context, req MintRequest) (dcaledger.Holdings, error) {
	var out dcaledger.Holdings
	err := c.do(ctx, http.MethodPost, "/v1/mint", req, &out)
	return out, err
}

// Holdings returns the sandbox token balances of owner.
func (c *Client) Holdings(ctx context.Context, owner domain.Address) (dcaledger.Holdings, error) {
	var out dcaledger.Holdings
	err := c.do(ctx, http.MethodGet, "/v1/balances/"+url.PathEscape(string(owner)), nil, &out)
	return out, err
}

// Events pages the event journal.
func (c *Client) Events(ctx context.Context, after int64, limit int) (EventsResponse, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out EventsResponse
	err := c.do(ctx, http.MethodGet, "/v1/events?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "internal", Message: strings.TrimSpace(string(data))}
		var er ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Code != "" {
			apiErr.Code = er.Code
			apiErr.Message = er.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
