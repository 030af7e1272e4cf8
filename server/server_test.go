package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/etnz/wealthmind"
	"github.com/etnz/wealthmind/auth"
	"github.com/etnz/wealthmind/ledger"
	"github.com/etnz/wealthmind/market"
	"github.com/etnz/wealthmind/orders"
	"github.com/etnz/wealthmind/portfolio"
)

func init() { gin.SetMode(gin.TestMode) }

// newTestServer returns a server on an in-memory ledger, quoting TCS.BO at
// 3500 and INFY.BO at 1500.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	catalog := market.NewCatalogOf([]market.Listing{
		{Stock: wealthmind.Stock{Symbol: "TCS.BO", Name: "Tata Consultancy Services Limited"}, BasePrice: 3500, BaseChangePercent: 0.8},
		{Stock: wealthmind.Stock{Symbol: "INFY.BO", Name: "Infosys Limited"}, BasePrice: 1500, BaseChangePercent: -1.5},
	}, nil)
	cache, err := market.NewCache(catalog, market.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cache.Close)

	store := ledger.NewMemory()
	a := auth.New(store, auth.BcryptHasher{Cost: bcrypt.MinCost}, auth.NewJWTSigner("secret", time.Hour), wealthmind.M(100000, "INR"), nil)
	return New(a, cache, orders.New(store, cache), portfolio.New(store, cache, nil), nil, "*")
}

// do serves a request and decodes the JSON answer into out, when not nil.
func do(t *testing.T, s *Server, method, path, token string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: invalid JSON %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w
}

var alice = auth.RegisterRequest{Name: "Alice", Email: "a@x.com", Phone: "9876543210", Password: "s3cret!"}

// register returns the token of a new account.
func register(t *testing.T, s *Server) string {
	t.Helper()
	var res struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		User    struct {
			Email   string  `json:"email"`
			Balance float64 `json:"balance"`
		} `json:"user"`
	}
	w := do(t, s, http.MethodPost, "/api/auth/register", "", alice, &res)
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", w.Code, w.Body)
	}
	if !res.Success || res.Token == "" || res.User.Email != "a@x.com" || res.User.Balance != 100000 {
		t.Fatalf("register = %+v", res)
	}
	return res.Token
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)
	var res map[string]any
	if w := do(t, s, http.MethodGet, "/api/health", "", nil, &res); w.Code != http.StatusOK || res["status"] != "OK" {
		t.Errorf("GET /api/health = %d %v", w.Code, res)
	}
	if w := do(t, s, http.MethodGet, "/", "", nil, &res); w.Code != http.StatusOK || res["message"] != "WealthMind API is running" {
		t.Errorf("GET / = %d %v", w.Code, res)
	}
	if w := do(t, s, http.MethodGet, "/api/nowhere", "", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("GET /api/nowhere = %d, want 404", w.Code)
	}
}

func TestServer_Auth(t *testing.T) {
	s := newTestServer(t)
	register(t, s)

	var dup apiError
	if w := do(t, s, http.MethodPost, "/api/auth/register", "", alice, &dup); w.Code != http.StatusBadRequest || !strings.Contains(dup.Message, "already exists") {
		t.Errorf("duplicate register = %d %+v", w.Code, dup)
	}

	missing := alice
	missing.Email = "b@x.com"
	missing.Name = ""
	if w := do(t, s, http.MethodPost, "/api/auth/register", "", missing, nil); w.Code != http.StatusBadRequest {
		t.Errorf("register without name = %d, want 400", w.Code)
	}

	var login sessionResponse
	if w := do(t, s, http.MethodPost, "/api/auth/login", "", loginRequest{"a@x.com", alice.Password}, &login); w.Code != http.StatusOK || login.Token == "" {
		t.Errorf("login = %d %+v", w.Code, login)
	}
	for _, r := range []loginRequest{{"a@x.com", "wrong"}, {"nobody@x.com", alice.Password}} {
		if w := do(t, s, http.MethodPost, "/api/auth/login", "", r, nil); w.Code != http.StatusUnauthorized {
			t.Errorf("login(%q, %q) = %d, want 401", r.Email, r.Password, w.Code)
		}
	}
}

func TestServer_Unauthenticated(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/portfolio", "/api/portfolio/stats", "/api/user/profile", "/api/orders/history"} {
		if w := do(t, s, http.MethodGet, path, "", nil, nil); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, w.Code)
		}
		if w := do(t, s, http.MethodGet, path, "not.a.token", nil, nil); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s with a bad token = %d, want 401", path, w.Code)
		}
	}
	if w := do(t, s, http.MethodPost, "/api/orders/buy", "", orderRequest{Symbol: "TCS.BO", Quantity: 1}, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/orders/buy without token = %d, want 401", w.Code)
	}
}

func TestServer_Market(t *testing.T) {
	s := newTestServer(t)

	var q struct {
		Symbol    string  `json:"symbol"`
		Price     float64 `json:"price"`
		Change    float64 `json:"change"`
		RiskLevel string  `json:"riskLevel"`
	}
	if w := do(t, s, http.MethodGet, "/api/market/yahoo/TCS.BO", "", nil, &q); w.Code != http.StatusOK || q.Price != 3500 || q.Change != 28 || q.RiskLevel != "Low" {
		t.Errorf("GET yahoo/TCS.BO = %d %+v", w.Code, q)
	}
	if w := do(t, s, http.MethodGet, "/api/market/yahoo/NOPE.BO", "", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("GET yahoo/NOPE.BO = %d, want 404", w.Code)
	}

	var quotes []map[string]any
	w := do(t, s, http.MethodGet, "/api/market/stocks?symbols=TCS.BO,NOPE.BO,INFY.BO", "", nil, &quotes)
	if w.Code != http.StatusOK || len(quotes) != 2 || w.Header().Get(omittedHeader) != "1" {
		t.Errorf("GET stocks = %d %v omitted %q", w.Code, quotes, w.Header().Get(omittedHeader))
	}
	if w := do(t, s, http.MethodGet, "/api/market/stocks", "", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("GET stocks without symbols = %d, want 400", w.Code)
	}

	var found []wealthmind.Stock
	if w := do(t, s, http.MethodGet, "/api/market/search/infosys", "", nil, &found); w.Code != http.StatusOK || len(found) != 1 || found[0].Symbol != "INFY.BO" {
		t.Errorf("GET search/infosys = %d %v", w.Code, found)
	}
	var none []wealthmind.Stock
	if w := do(t, s, http.MethodGet, "/api/market/search/zzz", "", nil, &none); w.Code != http.StatusOK || none == nil || len(none) != 0 {
		t.Errorf("GET search/zzz = %d %v, want an empty array", w.Code, none)
	}
	if w := do(t, s, http.MethodGet, "/api/market/health", "", nil, nil); w.Code != http.StatusOK {
		t.Errorf("GET market/health = %d", w.Code)
	}
}

func TestServer_Trading(t *testing.T) {
	s := newTestServer(t)
	token := register(t, s)

	var bought orderResponse
	w := do(t, s, http.MethodPost, "/api/orders/buy", token, orderRequest{Symbol: "TCS.BO", Quantity: 10, Price: wealthmind.M(3500, "")}, &bought)
	if w.Code != http.StatusOK || !bought.Success || bought.OrderID == "" {
		t.Fatalf("buy = %d %s", w.Code, w.Body)
	}

	var rejected apiError
	w = do(t, s, http.MethodPost, "/api/orders/sell", token, orderRequest{Symbol: "TCS.BO", Quantity: 20}, &rejected)
	if w.Code != http.StatusBadRequest || rejected.Code != "insufficient_holdings" {
		t.Errorf("oversell = %d %+v", w.Code, rejected)
	}
	w = do(t, s, http.MethodPost, "/api/orders/buy", token, orderRequest{Symbol: "TCS.BO", Quantity: 0}, &rejected)
	if w.Code != http.StatusBadRequest || rejected.Code != "validation" {
		t.Errorf("buy 0 = %d %+v", w.Code, rejected)
	}
	w = do(t, s, http.MethodPost, "/api/orders/buy", token, orderRequest{Symbol: "TCS.BO", Quantity: 100}, &rejected)
	if w.Code != http.StatusBadRequest || rejected.Code != "insufficient_funds" {
		t.Errorf("overbuy = %d %+v", w.Code, rejected)
	}

	var p struct {
		TotalValue  float64 `json:"totalValue"`
		CashBalance float64 `json:"cashBalance"`
		Stocks      []struct {
			Symbol       string  `json:"symbol"`
			Quantity     int64   `json:"quantity"`
			CurrentPrice float64 `json:"currentPrice"`
			Value        float64 `json:"value"`
		} `json:"stocks"`
	}
	if w := do(t, s, http.MethodGet, "/api/portfolio", token, nil, &p); w.Code != http.StatusOK {
		t.Fatalf("portfolio = %d %s", w.Code, w.Body)
	}
	if p.CashBalance != 65000 || p.TotalValue != 100000 || len(p.Stocks) != 1 || p.Stocks[0].Quantity != 10 || p.Stocks[0].Value != 35000 {
		t.Errorf("portfolio = %+v", p)
	}

	var stats struct {
		CurrentValue float64 `json:"currentValue"`
		ProfitLoss   float64 `json:"profitLoss"`
	}
	if w := do(t, s, http.MethodGet, "/api/portfolio/stats", token, nil, &stats); w.Code != http.StatusOK || stats.CurrentValue != 35000 || stats.ProfitLoss != 0 {
		t.Errorf("stats = %d %+v", w.Code, stats)
	}

	var profile struct {
		Email          string  `json:"email"`
		PortfolioValue float64 `json:"portfolioValue"`
	}
	if w := do(t, s, http.MethodGet, "/api/user/profile", token, nil, &profile); w.Code != http.StatusOK || profile.PortfolioValue != 100000 || profile.Email != "a@x.com" {
		t.Errorf("profile = %d %+v", w.Code, profile)
	}

	var history struct {
		Count  int `json:"count"`
		Total  int `json:"total"`
		Pages  int `json:"pages"`
		Orders []struct {
			ID       string `json:"id"`
			Quantity int64  `json:"quantity"`
		} `json:"orders"`
	}
	if w := do(t, s, http.MethodGet, "/api/orders/history?limit=10&page=1", token, nil, &history); w.Code != http.StatusOK {
		t.Fatalf("history = %d %s", w.Code, w.Body)
	}
	if history.Count != 1 || history.Total != 1 || history.Pages != 1 || history.Orders[0].ID != bought.OrderID {
		t.Errorf("history = %+v", history)
	}
}

func TestServer_CORS(t *testing.T) {
	s := newTestServer(t)
	r := httptest.NewRequest(http.MethodOptions, "/api/orders/buy", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", w.Code, w.Header())
	}
}

func TestStatus(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{wealthmind.ErrInvalidQuantity, http.StatusBadRequest},
		{wealthmind.ErrEmailExists, http.StatusBadRequest},
		{wealthmind.ErrTokenExpired, http.StatusUnauthorized},
		{wealthmind.ErrSymbolNotFound, http.StatusNotFound},
		{wealthmind.ErrInsufficientFunds, http.StatusBadRequest},
		{wealthmind.ErrInsufficientHoldings, http.StatusBadRequest},
		{wealthmind.ErrQuoteUnavailable, http.StatusServiceUnavailable},
		{wealthmind.ErrConflict, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			if got := status(wealthmind.KindOf(tc.err)); got != tc.want {
				t.Errorf("status(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
