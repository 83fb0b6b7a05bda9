package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/dcaledger/internal/adapters/token"
	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ports"
)

func TestHTTPVenueSwap(t *testing.T) {
	ctx := context.Background()

	var got SwapQuoteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, swapEndpoint, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(SwapQuoteResponse{Bought: "150.5"})
	}))
	defer server.Close()

	sell := token.New("Sell", "SELL", 18)
	buy := token.New("Buy", "BUY", 18)
	v, err := NewHTTP(HTTPConfig{BaseURL: server.URL + "/", AuthKey: "secret", RequestsPerSecond: 100}, server.Client(), nil)
	require.NoError(t, err)

	amount := domain.MustParseUnits("100", 18)
	require.NoError(t, sell.Mint(ctx, user, amount))
	require.NoError(t, sell.Approve(ctx, user, v.Address(), amount))
	require.NoError(t, buy.Mint(ctx, v.Address(), domain.MustParseUnits("1000", 18)))

	out, err := v.Swap(ctx, ports.SwapRequest{Account: user, Sell: sell, Buy: buy, Amount: amount})
	require.NoError(t, err)
	assert.Equal(t, domain.MustParseUnits("150.5", 18), out)

	assert.Equal(t, SwapQuoteRequest{Sell: "SELL", Buy: "BUY", Amount: "100", Account: "user"}, got)

	bal, _ := buy.BalanceOf(ctx, user)
	assert.Equal(t, out, bal)
}

func TestHTTPVenueServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no liquidity", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sell := token.New("Sell", "SELL", 18)
	buy := token.New("Buy", "BUY", 18)
	v, err := NewHTTP(HTTPConfig{BaseURL: server.URL}, server.Client(), nil)
	require.NoError(t, err)

	_, err = v.Swap(context.Background(), ports.SwapRequest{Account: user, Sell: sell, Buy: buy, Amount: domain.NewAmount(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "no liquidity")
}

func TestNewHTTPRequiresBaseURL(t *testing.T) {
	_, err := NewHTTP(HTTPConfig{}, nil, nil)
	assert.Error(t, err)
}
