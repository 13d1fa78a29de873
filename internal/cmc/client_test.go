package cmc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quotesBody = `{
	"status": {"error_code": 0, "error_message": null},
	"data": {
		"BTC": [{
			"id": 1,
			"name": "Bitcoin",
			"symbol": "BTC",
			"slug": "bitcoin",
			"date_added": "2013-04-28T00:00:00.000Z",
			"quote": {"USD": {"price": 67123.45}}
		}],
		"BAT": [{
			"id": 1697,
			"name": "Basic Attention Token",
			"symbol": "BAT",
			"slug": "basic-attention-token",
			"quote": {"USD": {"price": null}}
		}]
	}
}`

func TestGetLatestQuotes(t *testing.T) {
	var gotPath, gotKey, gotSymbols, gotConvert string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-CMC_PRO_API_KEY")
		gotSymbols = r.URL.Query().Get("symbol")
		gotConvert = r.URL.Query().Get("convert")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(quotesBody))
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "usd")
	quotes, err := client.GetLatestQuotes(context.Background(), []string{"BTC", "BAT"})
	require.NoError(t, err)

	assert.Equal(t, "/v2/cryptocurrency/quotes/latest", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "BTC,BAT", gotSymbols)
	assert.Equal(t, "USD", gotConvert)

	btc, ok := quotes["BTC"]
	require.True(t, ok)
	assert.Equal(t, "Bitcoin", btc.Name)
	assert.Equal(t, "bitcoin", btc.Slug)
	assert.Equal(t, int64(1), btc.ExternalID)
	require.NotNil(t, btc.Price)
	assert.True(t, decimal.NewFromFloat(67123.45).Equal(*btc.Price))
	require.NotNil(t, btc.DateAdded)

	// a null price is returned as a quote without one, not an error
	bat, ok := quotes["BAT"]
	require.True(t, ok)
	assert.Nil(t, bat.Price)
}

func TestGetLatestQuotesEmptyBatch(t *testing.T) {
	client := NewClient("test-key", "http://unused", "USD")
	quotes, err := client.GetLatestQuotes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestGetLatestQuotesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "USD")
	_, err := client.GetLatestQuotes(context.Background(), []string{"BTC"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestGetLatestQuotesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": {"error_code": 1001, "error_message": "API key invalid"}, "data": {}}`))
	}))
	defer server.Close()

	client := NewClient("bad-key", server.URL, "USD")
	_, err := client.GetLatestQuotes(context.Background(), []string{"BTC"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key invalid")
}
