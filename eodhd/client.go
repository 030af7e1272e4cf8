// Package eodhd is a market.Provider for the EOD Historical Data API.
//
// Symbols are exchanged in the Yahoo convention used by the rest of the
// service (TCS.BO), and translated to EODHD tickers (TCS.BSE) on the wire.
package eodhd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/etnz/wealthmind"
	"go.uber.org/zap"
)

// DefaultBaseURL is the EODHD API root.
const DefaultBaseURL = "https://eodhd.com/api"

// Client queries the EODHD API.
type Client struct {
	apiKey  string
	baseURL string
	live    *http.Client // real time quotes, never cached
	daily   *http.Client // searches, cached on disk for the day
	log     *zap.Logger
}

// New returns a Client authenticated with apiKey.
func New(apiKey string, log *zap.Logger) *Client {
	return NewWithBase(apiKey, DefaultBaseURL, http.DefaultTransport, log)
}

// NewWithBase returns a Client on another API root and transport.
func NewWithBase(apiKey, baseURL string, transport http.RoundTripper, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		live:    &http.Client{Transport: transport},
		daily:   newDailyCachingClient(transport, os.TempDir(), log),
		log:     log,
	}
}

// exchange suffixes, service convention -> EODHD exchange code.
var suffixes = map[string]string{
	"BO": "BSE",
	"NS": "NSE",
}

// Ticker converts a symbol to its EODHD ticker: "TCS.BO" -> "TCS.BSE".
// Symbols without a known suffix are passed as is.
func Ticker(symbol string) string {
	code, suffix, ok := strings.Cut(symbol, ".")
	if !ok {
		return symbol
	}
	if exchange, ok := suffixes[suffix]; ok {
		return code + "." + exchange
	}
	return symbol
}

// Symbol converts an EODHD code and exchange back to a symbol: ("TCS", "BSE") -> "TCS.BO".
func Symbol(code, exchange string) string {
	for suffix, ex := range suffixes {
		if ex == exchange {
			return code + "." + suffix
		}
	}
	return code + "." + exchange
}

// Quote implements market.Provider using the real-time (delayed) endpoint.
func (c *Client) Quote(ctx context.Context, symbol string) (wealthmind.Quote, error) {
	// https://eodhd.com/api/real-time/TCS.BSE?api_token=demo&fmt=json
	// {"code":"TCS.BSE","timestamp":1741000000,"gmtoffset":0,"open":3290,"high":3320.4,
	//  "low":3281.1,"close":3315.5,"volume":21345,"previousClose":3289,"change":26.5,"change_p":0.8057}
	addr := fmt.Sprintf("%s/real-time/%s?fmt=json&api_token=%s", c.baseURL, url.PathEscape(Ticker(symbol)), url.QueryEscape(c.apiKey))
	var content struct {
		Code          string `json:"code"`
		Close         number `json:"close"`
		PreviousClose number `json:"previousClose"`
		Change        number `json:"change"`
		ChangeP       number `json:"change_p"`
	}
	if err := jwget(ctx, c.live, addr, &content); err != nil {
		return wealthmind.Quote{}, fmt.Errorf("error retrieving %q: %w", symbol, err)
	}
	if !content.Close.valid {
		// unknown tickers are answered with a 200 and "NA" values.
		return wealthmind.Quote{}, wealthmind.Errorf(wealthmind.ErrSymbolNotFound, "%q has no price", symbol)
	}
	q := wealthmind.Quote{Symbol: symbol, Price: content.Close.value}
	switch {
	case content.Change.valid:
		q.Change = content.Change.value
	case content.PreviousClose.valid:
		q.Change = q.Price - content.PreviousClose.value
	}
	if content.ChangeP.valid {
		q.ChangePercent = content.ChangeP.value
	}
	return q, nil
}
