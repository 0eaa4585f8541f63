package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testOptions(baseURL string) Options {
	return Options{
		BaseURL:           baseURL,
		VsCurrency:        "inr",
		BatchSize:         50,
		Timeout:           time.Second,
		RequestsPerSecond: 1000,
		UserAgent:         "test",
	}
}

func marketRows(ids []string) []map[string]any {
	rows := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, map[string]any{
			"id":            id,
			"name":          strings.ToUpper(id[:1]) + id[1:],
			"symbol":        id[:3],
			"current_price": 100.0,
			"price_change_percentage_1h_in_currency":  1.5,
			"price_change_percentage_24h_in_currency": -2.5,
		})
	}
	return rows
}

func TestGetPricesBatchCap(t *testing.T) {
	var mu sync.Mutex
	var batchSizes []int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		mu.Lock()
		batchSizes = append(batchSizes, len(ids))
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(marketRows(ids))
	}))
	defer srv.Close()

	ids := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		ids = append(ids, fmt.Sprintf("coin-%03d", i))
	}

	c := NewClient(testOptions(srv.URL), zerolog.Nop())
	result, err := c.GetPrices(context.Background(), ids)
	if err != nil {
		t.Fatalf("GetPrices failed: %v", err)
	}

	if len(batchSizes) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batchSizes))
	}
	if batchSizes[0] != 50 || batchSizes[1] != 50 || batchSizes[2] != 20 {
		t.Fatalf("unexpected batch sizes: %v", batchSizes)
	}
	if len(result) != 120 {
		t.Fatalf("expected 120 prices, got %d", len(result))
	}
}

func TestGetPricesRateLimitShortCircuit(t *testing.T) {
	var mu sync.Mutex
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()

		if n >= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		_ = json.NewEncoder(w).Encode(marketRows(ids))
	}))
	defer srv.Close()

	ids := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		ids = append(ids, fmt.Sprintf("coin-%03d", i))
	}

	c := NewClient(testOptions(srv.URL), zerolog.Nop())
	result, err := c.GetPrices(context.Background(), ids)
	if err != nil {
		t.Fatalf("rate limit must not surface as an error: %v", err)
	}

	if requests != 2 {
		t.Fatalf("expected exactly 2 requests (no batch after 429), got %d", requests)
	}
	if len(result) != 50 {
		t.Fatalf("expected only batch 1's 50 results, got %d", len(result))
	}
}

func TestGetPricesSkipsFailedBatch(t *testing.T) {
	var mu sync.Mutex
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()

		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		_ = json.NewEncoder(w).Encode(marketRows(ids))
	}))
	defer srv.Close()

	ids := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		ids = append(ids, fmt.Sprintf("coin-%03d", i))
	}

	c := NewClient(testOptions(srv.URL), zerolog.Nop())
	result, err := c.GetPrices(context.Background(), ids)
	if err != nil {
		t.Fatalf("single failed batch must not surface as an error: %v", err)
	}

	if requests != 2 {
		t.Fatalf("expected 2 requests, got %d", requests)
	}
	if len(result) != 10 {
		t.Fatalf("expected batch 2's 10 results, got %d", len(result))
	}
}

func TestGetPricesNormalisesIDs(t *testing.T) {
	var gotIDs string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query().Get("ids")
		ids := strings.Split(gotIDs, ",")
		_ = json.NewEncoder(w).Encode(marketRows(ids))
	}))
	defer srv.Close()

	c := NewClient(testOptions(srv.URL), zerolog.Nop())
	result, err := c.GetPrices(context.Background(), []string{"Bitcoin", "bitcoin", " ETHEREUM ", ""})
	if err != nil {
		t.Fatalf("GetPrices failed: %v", err)
	}

	if gotIDs != "bitcoin,ethereum" {
		t.Fatalf("expected deduplicated lowercase ids, got %q", gotIDs)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result))
	}
	if !result["bitcoin"].Change24h.IsNegative() {
		t.Fatalf("expected negative 24h change, got %s", result["bitcoin"].Change24h)
	}
}

func TestGetPricesEmptyInput(t *testing.T) {
	c := NewClient(testOptions("http://unused"), zerolog.Nop())
	result, err := c.GetPrices(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty input must not error: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(result))
	}
}

func TestSearchCoin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") != "sol" {
			t.Fatalf("unexpected query %q", r.URL.Query().Get("query"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"coins": []map[string]string{{"id": "solana"}, {"id": "solend"}},
		})
	}))
	defer srv.Close()

	c := NewClient(testOptions(srv.URL), zerolog.Nop())
	id, err := c.SearchCoin(context.Background(), "sol")
	if err != nil {
		t.Fatalf("SearchCoin failed: %v", err)
	}
	if id != "solana" {
		t.Fatalf("expected first match solana, got %q", id)
	}
}

func TestSearchCoinNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"coins": []any{}})
	}))
	defer srv.Close()

	c := NewClient(testOptions(srv.URL), zerolog.Nop())
	if _, err := c.SearchCoin(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for empty search result")
	}
}
