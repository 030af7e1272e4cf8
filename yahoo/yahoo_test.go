package yahoo

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/etnz/wealthmind"
	"go.uber.org/zap"
)

const chartTCS = `{
  "chart": {
    "result": [{
      "meta": {
        "currency": "INR",
        "symbol": "TCS.BO",
        "longName": "Tata Consultancy Services Limited",
        "regularMarketPrice": 3315.5,
        "chartPreviousClose": 3289.0
      },
      "timestamp": [1741000000]
    }],
    "error": null
  }
}`

const chartNotFound = `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`

const searchINF = `{
  "quotes": [
    {"symbol": "INFY.BO", "shortname": "INFOSYS LTD.", "longname": "Infosys Limited", "exchange": "BSE", "quoteType": "EQUITY"},
    {"symbol": "INFY", "shortname": "Infosys Limited", "exchange": "NYQ", "quoteType": "EQUITY"}
  ]
}`

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v8/finance/chart/TCS.BO":
			w.Write([]byte(chartTCS))
		case "/v8/finance/chart/EMPTY.BO":
			w.Write([]byte(chartNotFound))
		case "/v8/finance/chart/DOWN.BO":
			http.Error(w, "boom", http.StatusBadGateway)
		case "/v1/finance/search":
			if r.URL.Query().Get("q") != "inf" {
				t.Errorf("search query = %q", r.URL.Query().Get("q"))
			}
			w.Write([]byte(searchINF))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return &Client{BaseURL: srv.URL, HTTP: srv.Client(), Log: zap.NewNop()}
}

func TestClient_Quote(t *testing.T) {
	c := newTestClient(t)
	q, err := c.Quote(context.Background(), "TCS.BO")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if q.Price != 3315.5 || q.Currency != "INR" || q.Name != "Tata Consultancy Services Limited" {
		t.Errorf("Quote() = %+v", q)
	}
	if math.Abs(q.Change-26.5) > 1e-9 {
		t.Errorf("Change = %v, want 26.5", q.Change)
	}
	if got := q.Classified().RiskLevel; got != wealthmind.Low {
		t.Errorf("RiskLevel = %v, want Low", got)
	}
}

func TestClient_QuoteErrors(t *testing.T) {
	c := newTestClient(t)
	testCases := []struct {
		symbol   string
		notFound bool
	}{
		{"EMPTY.BO", true},
		{"MISSING.BO", true},
		{"DOWN.BO", false},
	}
	for _, tc := range testCases {
		t.Run(tc.symbol, func(t *testing.T) {
			_, err := c.Quote(context.Background(), tc.symbol)
			if err == nil {
				t.Fatal("Quote() succeeded, want an error")
			}
			if got := errors.Is(err, wealthmind.ErrSymbolNotFound); got != tc.notFound {
				t.Errorf("errors.Is(%v, ErrSymbolNotFound) = %v, want %v", err, got, tc.notFound)
			}
		})
	}
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t)
	got, err := c.Search(context.Background(), "inf")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() = %v, want 2 results", got)
	}
	if got[0].Symbol != "INFY.BO" || got[0].Name != "Infosys Limited" || got[0].Exchange != "BSE" {
		t.Errorf("Search()[0] = %+v", got[0])
	}
	if got[1].Name != "Infosys Limited" {
		t.Errorf("Search()[1].Name = %q, want the short name as fallback", got[1].Name)
	}
}
