// Package server exposes the WealthMind services over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/etnz/wealthmind"
	"github.com/etnz/wealthmind/auth"
	"github.com/etnz/wealthmind/market"
	"github.com/etnz/wealthmind/orders"
	"github.com/etnz/wealthmind/portfolio"
)

// Market is the market data served by the API.
type Market interface {
	GetQuote(ctx context.Context, symbol string) (wealthmind.Quote, error)
	GetQuotes(ctx context.Context, symbols []string) ([]wealthmind.Quote, int)
	Search(ctx context.Context, query string) ([]wealthmind.Stock, error)
	Stats() market.Stats
}

// Server routes the /api requests to the services.
type Server struct {
	R         *gin.Engine
	Auth      *auth.Service
	Market    Market
	Orders    *orders.Engine
	Portfolio *portfolio.Engine
	Logger    *zap.Logger
}

type apiError struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// accountKey is the gin context key of the authenticated account id.
const accountKey = "accountID"

// New wires the router, the services and the middleware.
func New(authService *auth.Service, m Market, o *orders.Engine, p *portfolio.Engine, logger *zap.Logger, corsOrigin string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := gin.New()
	s := &Server{
		R:         g,
		Auth:      authService,
		Market:    m,
		Orders:    o,
		Portfolio: p,
		Logger:    logger,
	}

	g.Use(s.logRequests)
	g.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic", zap.Any("recovered", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{Code: "internal", Message: "internal server error"})
	}))
	g.Use(cors(corsOrigin))

	g.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "WealthMind API is running"}) })
	g.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apiError{Code: wealthmind.KindNotFound.String(), Message: "route not found"})
	})

	api := g.Group("/api")
	api.GET("/health", s.health)

	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)

	mk := api.Group("/market")
	mk.GET("/yahoo/:symbol", s.quote)
	mk.GET("/stocks", s.quotes)
	mk.GET("/search/:query", s.search)
	mk.GET("/health", s.marketHealth)

	private := api.Group("", s.authenticate)
	private.POST("/orders/buy", s.placeOrder(wealthmind.Buy))
	private.POST("/orders/sell", s.placeOrder(wealthmind.Sell))
	private.GET("/orders/history", s.orderHistory)
	private.GET("/portfolio", s.portfolio)
	private.GET("/portfolio/stats", s.portfolioStats)
	private.GET("/user/profile", s.profile)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.R.ServeHTTP(w, r) }

// --- Middleware ---

func (s *Server) logRequests(cn *gin.Context) {
	start := time.Now()
	cn.Next()
	s.Logger.Info("http_request",
		zap.String("method", cn.Request.Method),
		zap.String("path", cn.Request.URL.Path),
		zap.Int("status", cn.Writer.Status()),
		zap.String("ip", cn.ClientIP()),
		zap.Duration("latency", time.Since(start)),
	)
}

func cors(origin string) gin.HandlerFunc {
	return func(cn *gin.Context) {
		h := cn.Writer.Header()
		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Expose-Headers", omittedHeader)
		h.Set("Access-Control-Max-Age", "86400")
		if origin == "*" {
			h.Set("Access-Control-Allow-Origin", "*")
		} else if o := cn.GetHeader("Origin"); o != "" && o == origin {
			h.Set("Access-Control-Allow-Origin", origin)
		}
		if cn.Request.Method == http.MethodOptions {
			cn.AbortWithStatus(http.StatusNoContent)
			return
		}
		cn.Next()
	}
}

// authenticate resolves the bearer token to an account id, or aborts with 401.
func (s *Server) authenticate(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		s.fail(c, "authenticate", wealthmind.Errorf(wealthmind.ErrTokenMalformed, "missing bearer token"))
		return
	}
	id, err := s.Auth.Validate(token)
	if err != nil {
		s.fail(c, "authenticate", err)
		return
	}
	c.Set(accountKey, id)
	c.Next()
}

func accountID(c *gin.Context) string { return c.GetString(accountKey) }

// --- Errors ---

// status returns the HTTP status of an error kind.
func status(k wealthmind.Kind) int {
	switch k {
	case wealthmind.KindValidation, wealthmind.KindConflict,
		wealthmind.KindInsufficientFunds, wealthmind.KindInsufficientHoldings:
		return http.StatusBadRequest
	case wealthmind.KindAuth:
		return http.StatusUnauthorized
	case wealthmind.KindNotFound:
		return http.StatusNotFound
	case wealthmind.KindQuoteUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail aborts the request with the JSON error matching err. Internal errors
// are logged and hidden from the client.
func (s *Server) fail(c *gin.Context, where string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.Logger.Debug("request abandoned", zap.String("where", where), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, apiError{Code: "cancelled", Message: "request cancelled"})
		return
	}
	kind := wealthmind.KindOf(err)
	msg := err.Error()
	if kind == wealthmind.KindInternal {
		s.Logger.Error("internal_error", zap.String("where", where), zap.Error(err))
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status(kind), apiError{Code: kind.String(), Message: msg})
}

func (s *Server) badRequest(c *gin.Context, where, msg string) {
	s.fail(c, where, wealthmind.Errorf(wealthmind.ErrValidation, "%s", msg))
}
