package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ports"
	"github.com/bft-labs/dcaledger/pkg/log"
)

const swapEndpoint = "/v1/swap"

// SwapQuoteRequest is the body posted to the quoting service.
// Amounts are decimal strings in whole units of their asset.
type SwapQuoteRequest struct {
	Sell    string `json:"sell"`
	Buy     string `json:"buy"`
	Amount  string `json:"amount"`
	Account string `json:"account"`
}

// SwapQuoteResponse is the body returned by the quoting service.
type SwapQuoteResponse struct {
	Bought string `json:"bought"`
}

// HTTPConfig configures an HTTP venue.
type HTTPConfig struct {
	// Address is the reserve holder used for settlement
	Address domain.Address

	// BaseURL of the quoting service, e.g. "http://localhost:9000"
	BaseURL string

	// AuthKey is sent as a bearer token when set
	AuthKey string

	// RequestsPerSecond limits outgoing quote requests; 0 disables limiting
	RequestsPerSecond float64
}

// HTTP is a venue that obtains the output amount from a remote quoting
// service and settles against its local reserves.
type HTTP struct {
	cfg     HTTPConfig
	client  ports.HTTPClient
	limiter *rate.Limiter
	logger  ports.Logger
}

// NewHTTP creates an HTTP venue.
func NewHTTP(cfg HTTPConfig, client ports.HTTPClient, logger ports.Logger) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("venue: base URL is required")
	}
	if cfg.Address.IsZero() {
		cfg.Address = DefaultAddress
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &HTTP{cfg: cfg, client: client, limiter: limiter, logger: logger}, nil
}

// Address returns the reserve holder and spender identity of the venue.
func (v *HTTP) Address() domain.Address { return v.cfg.Address }

// Swap requests a quote for req and settles it.
func (v *HTTP) Swap(ctx context.Context, req ports.SwapRequest) (domain.Amount, error) {
	if req.Sell == nil || req.Buy == nil {
		return domain.Amount{}, fmt.Errorf("%w: missing asset", ErrPairMismatch)
	}
	out, err := v.quote(ctx, req)
	if err != nil {
		return domain.Amount{}, err
	}
	if err := settle(ctx, v.cfg.Address, req, out); err != nil {
		return domain.Amount{}, err
	}
	v.logger.Debug("swap settled",
		log.String("sell", req.Sell.Symbol()),
		log.String("buy", req.Buy.Symbol()),
		log.Stringer("amount", req.Amount),
		log.Stringer("bought", out),
	)
	return out, nil
}

func (v *HTTP) quote(ctx context.Context, req ports.SwapRequest) (domain.Amount, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return domain.Amount{}, fmt.Errorf("rate limit: %w", err)
	}

	payload, err := json.Marshal(SwapQuoteRequest{
		Sell:    req.Sell.Symbol(),
		Buy:     req.Buy.Symbol(),
		Amount:  req.Amount.FormatUnits(req.Sell.Decimals()),
		Account: string(req.Account),
	})
	if err != nil {
		return domain.Amount{}, fmt.Errorf("marshal quote request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.BaseURL+swapEndpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.Amount{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if v.cfg.AuthKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+v.cfg.AuthKey)
	}

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Amount{}, fmt.Errorf("venue returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var quote SwapQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return domain.Amount{}, fmt.Errorf("decode quote: %w", err)
	}
	out, err := domain.ParseUnits(quote.Bought, req.Buy.Decimals())
	if err != nil {
		return domain.Amount{}, fmt.Errorf("quote: %w", err)
	}
	return out, nil
}
