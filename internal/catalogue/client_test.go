package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://api.example.com/", "test-key")

		if c.baseURL != "https://api.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.example.com")
		}
		if c.appKey != "test-key" {
			t.Errorf("appKey = %q, want %q", c.appKey, "test-key")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.retryBackoff != time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, time.Second)
		}
		if c.limiter == nil {
			t.Error("limiter should not be nil")
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with timeout option", func(t *testing.T) {
		c := NewClient("https://api.example.com", "", WithTimeout(5*time.Second))
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
	})

	t.Run("with retries option", func(t *testing.T) {
		c := NewClient("https://api.example.com", "", WithRetries(5, 2*time.Second))
		if c.maxRetries != 5 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 5)
		}
		if c.retryBackoff != 2*time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 2*time.Second)
		}
	})

	t.Run("with rate limit option", func(t *testing.T) {
		c := NewClient("https://api.example.com", "", WithRateLimit(5, 10))
		if c.limiter.Limit() != rate.Limit(5) {
			t.Errorf("limit = %v, want %v", c.limiter.Limit(), rate.Limit(5))
		}
		if c.limiter.Burst() != 10 {
			t.Errorf("burst = %d, want %d", c.limiter.Burst(), 10)
		}
	})

	t.Run("with logger option", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://api.example.com", "", WithLogger(logger))
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://api.example.com", "", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	t.Run("Error method", func(t *testing.T) {
		err := &APIError{
			StatusCode: 404,
			Message:    "Not Found",
			Body:       []byte(`{"error": "market not found"}`),
		}
		expected := "exchange api error 404: Not Found"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		tests := []struct {
			code     int
			expected bool
		}{
			{500, true},
			{502, true},
			{503, true},
			{504, true},
			{429, true},
			{400, false},
			{401, false},
			{403, false},
			{404, false},
			{200, false},
			{499, false},
		}

		for _, tt := range tests {
			err := &APIError{StatusCode: tt.code}
			if got := err.IsRetryable(); got != tt.expected {
				t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
			}
		}
	})
}

// TestDoRequest tests the HTTP request functionality.
func TestDoRequest(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want %q", r.Header.Get("Accept"), "application/json")
			}
			if r.Header.Get("X-Application") != "test-key" {
				t.Errorf("X-Application header = %q, want %q", r.Header.Get("X-Application"), "test-key")
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-key")
		body, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q, want %q", string(body), `{"status": "ok"}`)
		}
	})

	t.Run("request without app key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Application") != "" {
				t.Errorf("X-Application header should be empty, got %q", r.Header.Get("X-Application"))
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("4xx error returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "not found"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}

		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 404 {
			t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, 404)
		}
		if !strings.Contains(string(apiErr.Body), "not found") {
			t.Errorf("Body should contain 'not found', got %q", string(apiErr.Body))
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		_, err := c.doRequest(ctx, http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "context canceled") {
			t.Errorf("error should contain 'context canceled', got %v", err)
		}
	})
}

// TestDoWithRetry tests the retry logic.
func TestDoWithRetry(t *testing.T) {
	t.Run("succeeds on first try", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		body, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q, want %q", string(body), `{"ok": true}`)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`error`))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("retries on 429 and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&attempts, 1)
			if n == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`rate limited`))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`bad request`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`error`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(2, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error should contain 'max retries exceeded', got %v", err)
		}
		// 1 initial + 2 retries = 3 attempts
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})
}

// TestListMarkets tests fetching a catalogue page.
func TestListMarkets(t *testing.T) {
	t.Run("basic request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/markets" {
				t.Errorf("path = %q, want %q", r.URL.Path, "/markets")
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(MarketsResponse{
				Markets: []APIMarket{
					{MarketID: "1.111", Name: "Match Odds"},
					{MarketID: "1.222", Name: "R4 1200m Hcap"},
				},
				Cursor: "",
			})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		resp, err := c.ListMarkets(context.Background(), ListMarketsOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(resp.Markets) != 2 {
			t.Errorf("len(Markets) = %d, want 2", len(resp.Markets))
		}
		if resp.Markets[0].MarketID != "1.111" {
			t.Errorf("Markets[0].MarketID = %q, want %q", resp.Markets[0].MarketID, "1.111")
		}
	})

	t.Run("with options", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("eventTypeIds") != "7" {
				t.Errorf("eventTypeIds = %q, want %q", q.Get("eventTypeIds"), "7")
			}
			if q.Get("marketTypes") != "WIN,PLACE" {
				t.Errorf("marketTypes = %q, want %q", q.Get("marketTypes"), "WIN,PLACE")
			}
			if q.Get("countryCodes") != "AU,NZ" {
				t.Errorf("countryCodes = %q, want %q", q.Get("countryCodes"), "AU,NZ")
			}
			if q.Get("marketIds") != "1.111,1.222" {
				t.Errorf("marketIds = %q, want %q", q.Get("marketIds"), "1.111,1.222")
			}
			if q.Get("startTimeTo") != "2025-09-01T12:30:00Z" {
				t.Errorf("startTimeTo = %q, want %q", q.Get("startTimeTo"), "2025-09-01T12:30:00Z")
			}
			if q.Get("limit") != "100" {
				t.Errorf("limit = %q, want %q", q.Get("limit"), "100")
			}
			if q.Get("cursor") != "cursor123" {
				t.Errorf("cursor = %q, want %q", q.Get("cursor"), "cursor123")
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(MarketsResponse{Markets: []APIMarket{}, Cursor: ""})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.ListMarkets(context.Background(), ListMarketsOptions{
			EventTypeIDs: []string{"7"},
			MarketTypes:  []string{"WIN", "PLACE"},
			CountryCodes: []string{"AU", "NZ"},
			MarketIDs:    []string{"1.111", "1.222"},
			StartTimeTo:  time.Date(2025, 9, 1, 12, 30, 0, 0, time.UTC),
			Limit:        100,
			Cursor:       "cursor123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("zero options send no filter params", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.URL.Query()) != 0 {
				t.Errorf("query = %v, want empty", r.URL.Query())
			}
			json.NewEncoder(w).Encode(MarketsResponse{})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.ListMarkets(context.Background(), ListMarketsOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

// TestListAllMarkets tests pagination through the full catalogue.
func TestListAllMarkets(t *testing.T) {
	t.Run("single page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("limit") != "1000" {
				t.Errorf("limit = %q, want %q", r.URL.Query().Get("limit"), "1000")
			}
			json.NewEncoder(w).Encode(MarketsResponse{
				Markets: []APIMarket{{MarketID: "1.111"}, {MarketID: "1.222"}},
				Cursor:  "",
			})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		markets, err := c.ListAllMarkets(context.Background(), ListMarketsOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(markets) != 2 {
			t.Errorf("len(markets) = %d, want 2", len(markets))
		}
	})

	t.Run("multiple pages", func(t *testing.T) {
		var requestCount int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count := atomic.AddInt32(&requestCount, 1)
			cursor := r.URL.Query().Get("cursor")

			switch {
			case count == 1 && cursor == "":
				json.NewEncoder(w).Encode(MarketsResponse{
					Markets: []APIMarket{{MarketID: "1.111"}, {MarketID: "1.222"}},
					Cursor:  "page2",
				})
			case count == 2 && cursor == "page2":
				json.NewEncoder(w).Encode(MarketsResponse{
					Markets: []APIMarket{{MarketID: "1.333"}},
					Cursor:  "page3",
				})
			case count == 3 && cursor == "page3":
				json.NewEncoder(w).Encode(MarketsResponse{
					Markets: []APIMarket{{MarketID: "1.444"}},
					Cursor:  "",
				})
			default:
				t.Errorf("unexpected request: count=%d cursor=%q", count, cursor)
			}
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		markets, err := c.ListAllMarkets(context.Background(), ListMarketsOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(markets) != 4 {
			t.Errorf("len(markets) = %d, want 4", len(markets))
		}
		if requestCount != 3 {
			t.Errorf("requestCount = %d, want 3", requestCount)
		}
	})

	t.Run("error mid-pagination", func(t *testing.T) {
		var requestCount int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&requestCount, 1) == 1 {
				json.NewEncoder(w).Encode(MarketsResponse{
					Markets: []APIMarket{{MarketID: "1.111"}},
					Cursor:  "page2",
				})
				return
			}
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(0, time.Millisecond))
		_, err := c.ListAllMarkets(context.Background(), ListMarketsOptions{})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

// TestGetMarketBook tests fetching a single market's order book.
func TestGetMarketBook(t *testing.T) {
	t.Run("successful fetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/markets/1.234567890/book" {
				t.Errorf("path = %q, want %q", r.URL.Path, "/markets/1.234567890/book")
			}
			json.NewEncoder(w).Encode(MarketBookResponse{
				MarketID:     "1.234567890",
				Status:       "OPEN",
				TotalMatched: 15032.5,
				Runners: []APIRunnerBook{
					{
						SelectionID: 47972,
						Status:      "ACTIVE",
						BackPrices:  []APIPriceSize{{3.5, 120}, {3.45, 80}},
						LayPrices:   []APIPriceSize{{3.55, 60}},
					},
				},
			})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		book, err := c.GetMarketBook(context.Background(), "1.234567890")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if book.Status != "OPEN" {
			t.Errorf("Status = %q, want %q", book.Status, "OPEN")
		}
		if len(book.Runners) != 1 {
			t.Fatalf("len(Runners) = %d, want 1", len(book.Runners))
		}
		if len(book.Runners[0].BackPrices) != 2 {
			t.Errorf("len(BackPrices) = %d, want 2", len(book.Runners[0].BackPrices))
		}
		if book.Runners[0].BackPrices[0][0] != 3.5 {
			t.Errorf("best back price = %v, want 3.5", book.Runners[0].BackPrices[0][0])
		}
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "market not found"})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(0, time.Millisecond))
		_, err := c.GetMarketBook(context.Background(), "1.999")
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError in wrapped error, got %T: %v", err, err)
		}
		if apiErr.StatusCode != 404 {
			t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
		}
	})
}

// TestJSONUnmarshalErrors tests error handling for invalid JSON.
func TestJSONUnmarshalErrors(t *testing.T) {
	t.Run("invalid JSON response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`not valid json`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.ListMarkets(context.Background(), ListMarketsOptions{})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "unmarshal") {
			t.Errorf("error should contain 'unmarshal', got %v", err)
		}
	})
}
