// Package cmc provides the CoinMarketCap quote feed.
// All symbols for a pass go out in a single batched request.
package cmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Quote is the latest market data for one symbol. Price is nil when the
// provider returned no price for the configured convert currency.
type Quote struct {
	Symbol     string
	Name       string
	Slug       string
	ExternalID int64
	DateAdded  *time.Time
	Price      *decimal.Decimal
}

type quoteResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string][]struct {
		ID        int64      `json:"id"`
		Name      string     `json:"name"`
		Symbol    string     `json:"symbol"`
		Slug      string     `json:"slug"`
		DateAdded *time.Time `json:"date_added"`
		Quote     map[string]struct {
			Price *float64 `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

// Client fetches latest quotes from CoinMarketCap
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	convert    string
}

// NewClient creates a new CMC client
func NewClient(apiKey, baseURL, convert string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		convert:    strings.ToUpper(convert),
	}
}

// GetLatestQuotes fetches the latest quote for every symbol in one request.
// The returned map is keyed by upper-cased symbol.
func (c *Client) GetLatestQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return map[string]Quote{}, nil
	}

	params := url.Values{}
	params.Set("symbol", strings.Join(symbols, ","))
	params.Set("convert", c.convert)
	endpoint := c.baseURL + "/v2/cryptocurrency/quotes/latest?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote request returned status %d", resp.StatusCode)
	}

	var data quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("quote response parse failed: %w", err)
	}
	if data.Status.ErrorCode != 0 {
		return nil, fmt.Errorf("quote request rejected: %s", data.Status.ErrorMessage)
	}

	quotes := make(map[string]Quote, len(data.Data))
	for symbol, entries := range data.Data {
		if len(entries) == 0 {
			continue
		}
		// CMC can return several listings per ticker; the first is the
		// highest ranked one.
		entry := entries[0]
		quote := Quote{
			Symbol:     entry.Symbol,
			Name:       entry.Name,
			Slug:       entry.Slug,
			ExternalID: entry.ID,
			DateAdded:  entry.DateAdded,
		}
		if converted, ok := entry.Quote[c.convert]; ok && converted.Price != nil {
			price := decimal.NewFromFloat(*converted.Price)
			quote.Price = &price
		} else {
			log.Debug().Str("symbol", symbol).Str("convert", c.convert).Msg("quote missing price")
		}
		quotes[strings.ToUpper(symbol)] = quote
	}

	log.Debug().Int("requested", len(symbols)).Int("returned", len(quotes)).Msg("fetched latest quotes")
	return quotes, nil
}
