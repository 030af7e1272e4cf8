package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"github.com/etnz/wealthmind"
	"github.com/etnz/wealthmind/auth"
	"github.com/etnz/wealthmind/ledger"
	"github.com/etnz/wealthmind/orders"
	"github.com/etnz/wealthmind/portfolio"
)

// omittedHeader carries the number of symbols missing from a batch quote answer.
const omittedHeader = "X-Omitted-Count"

// maxBatchSymbols caps the symbols of a batch quote request.
const maxBatchSymbols = 50

type sessionResponse struct {
	Success bool               `json:"success"`
	Token   string             `json:"token"`
	User    wealthmind.Account `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type orderRequest struct {
	Symbol   string           `json:"symbol"`
	Quantity int64            `json:"quantity"`
	Price    wealthmind.Money `json:"price"`
}

type orderResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	OrderID string           `json:"orderId"`
	Order   wealthmind.Order `json:"order"`
}

type historyResponse struct {
	Success bool               `json:"success"`
	Count   int                `json:"count"`
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	Pages   int                `json:"pages"`
	Orders  []wealthmind.Order `json:"orders"`
}

// --- Handlers ---

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC()})
}

func (s *Server) register(c *gin.Context) {
	var r auth.RegisterRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		s.badRequest(c, "register", "invalid request body")
		return
	}
	session, err := s.Auth.Register(c.Request.Context(), r)
	if err != nil {
		s.fail(c, "register", err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{Success: true, Token: session.Token, User: session.Account})
}

func (s *Server) login(c *gin.Context) {
	var r loginRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		s.badRequest(c, "login", "invalid request body")
		return
	}
	session, err := s.Auth.Login(c.Request.Context(), r.Email, r.Password)
	if err != nil {
		s.fail(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Success: true, Token: session.Token, User: session.Account})
}

func (s *Server) quote(c *gin.Context) {
	q, err := s.Market.GetQuote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		s.fail(c, "quote", err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) quotes(c *gin.Context) {
	var symbols []string
	for _, sym := range strings.Split(c.Query("symbols"), ",") {
		if sym = strings.TrimSpace(sym); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		s.badRequest(c, "quotes", "symbols parameter is required")
		return
	}
	if len(symbols) > maxBatchSymbols {
		s.badRequest(c, "quotes", "at most "+strconv.Itoa(maxBatchSymbols)+" symbols per request")
		return
	}
	quotes, omitted := s.Market.GetQuotes(c.Request.Context(), symbols)
	if quotes == nil {
		quotes = []wealthmind.Quote{}
	}
	c.Header(omittedHeader, strconv.Itoa(omitted))
	c.JSON(http.StatusOK, quotes)
}

func (s *Server) search(c *gin.Context) {
	stocks, err := s.Market.Search(c.Request.Context(), c.Param("query"))
	if err != nil {
		s.fail(c, "search", err)
		return
	}
	if stocks == nil {
		stocks = []wealthmind.Stock{}
	}
	c.JSON(http.StatusOK, stocks)
}

func (s *Server) marketHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Market API is working",
		"timestamp": time.Now().UTC(),
		"cache":     s.Market.Stats(),
	})
}

func (s *Server) placeOrder(side wealthmind.Side) gin.HandlerFunc {
	where := "order." + side.String()
	return func(c *gin.Context) {
		var r orderRequest
		if err := c.ShouldBindJSON(&r); err != nil {
			s.badRequest(c, where, "invalid symbol, quantity or price")
			return
		}
		order, err := s.Orders.PlaceOrder(c.Request.Context(), orders.Request{
			AccountID: accountID(c),
			Symbol:    r.Symbol,
			Side:      side,
			Quantity:  r.Quantity,
			Price:     r.Price,
		})
		if err != nil {
			s.fail(c, where, err)
			return
		}
		c.JSON(http.StatusOK, orderResponse{
			Success: true,
			Message: "order executed",
			OrderID: order.ID,
			Order:   order,
		})
	}
}

func (s *Server) orderHistory(c *gin.Context) {
	page := ledger.Page{
		Limit:  parseInt(c.Query("limit")),
		Number: parseInt(c.Query("page")),
	}.Normalize()
	list, total, err := s.Orders.History(c.Request.Context(), accountID(c), page)
	if err != nil {
		s.fail(c, "history", err)
		return
	}
	if list == nil {
		list = []wealthmind.Order{}
	}
	c.JSON(http.StatusOK, historyResponse{
		Success: true,
		Count:   len(list),
		Total:   total,
		Page:    page.Number,
		Pages:   (total + page.Limit - 1) / page.Limit,
		Orders:  list,
	})
}

func (s *Server) portfolio(c *gin.Context) {
	p, err := s.Portfolio.Portfolio(c.Request.Context(), accountID(c))
	if err != nil {
		s.fail(c, "portfolio", err)
		return
	}
	c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		portfolio.Portfolio
	}{true, p})
}

func (s *Server) portfolioStats(c *gin.Context) {
	st, err := s.Portfolio.Stats(c.Request.Context(), accountID(c))
	if err != nil {
		s.fail(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		portfolio.Stats
	}{true, st})
}

func (s *Server) profile(c *gin.Context) {
	p, err := s.Portfolio.Profile(c.Request.Context(), accountID(c))
	if err != nil {
		s.fail(c, "profile", err)
		return
	}
	c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		portfolio.Profile
	}{true, p})
}

// parseInt returns the integer in v, or 0 when v is empty or invalid.
func parseInt(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}
