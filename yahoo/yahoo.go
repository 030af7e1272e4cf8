// Package yahoo is a market.Provider for the Yahoo Finance public endpoints.
package yahoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/wealthmind"
	"go.uber.org/zap"
)

// DefaultBaseURL is the Yahoo Finance query host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Client fetches quotes and searches symbols on Yahoo Finance.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     *zap.Logger
}

// New returns a Client on the public Yahoo Finance host.
func New(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{BaseURL: DefaultBaseURL, HTTP: new(http.Client), Log: log}
}

// jwget performs an HTTP GET request and unmarshals the JSON body in data.
func (c *Client) jwget(ctx context.Context, addr string, data any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	// Yahoo rejects requests without a user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; wealthmind)")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.Log.Debug("yahoo", zap.String("path", req.URL.Path), zap.Int("status", resp.StatusCode))
	if resp.StatusCode == http.StatusNotFound {
		return wealthmind.Errorf(wealthmind.ErrSymbolNotFound, "GET %s", req.URL.Path)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cannot http GET %v%v: %v", req.URL.Host, req.URL.Path, resp.Status)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return err
	}
	return json.Unmarshal(buf.Bytes(), data)
}

// get evaluates a JSON path on obj. jsonpath is never clear about whether it
// returns a list of one answer or the answer itself: keep the first one.
func get(path string, obj any) (any, error) {
	v, err := jsonpath.Get(path, obj)
	if err != nil {
		return nil, err
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil, fmt.Errorf("%s: no match", path)
		}
		v = list[0]
	}
	return v, nil
}

func getFloat(path string, obj any) (float64, error) {
	v, err := get(path, obj)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%s: not a number: %v", path, v)
	}
	return f, nil
}

func getString(path string, obj any) string {
	v, err := get(path, obj)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

const (
	pathPrice         = "$.chart.result[0].meta.regularMarketPrice"
	pathPreviousClose = "$.chart.result[0].meta.chartPreviousClose"
	pathCurrency      = "$.chart.result[0].meta.currency"
	pathName          = "$.chart.result[0].meta.longName"
	pathShortName     = "$.chart.result[0].meta.shortName"
)

// Quote implements market.Provider using the chart endpoint.
func (c *Client) Quote(ctx context.Context, symbol string) (wealthmind.Quote, error) {
	addr := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", c.BaseURL, url.PathEscape(symbol))
	var jobj any
	if err := c.jwget(ctx, addr, &jobj); err != nil {
		return wealthmind.Quote{}, fmt.Errorf("error retrieving %q: %w", symbol, err)
	}
	if result, err := get("$.chart.result", jobj); err != nil || result == nil {
		return wealthmind.Quote{}, wealthmind.Errorf(wealthmind.ErrSymbolNotFound, "%q", symbol)
	}
	price, err := getFloat(pathPrice, jobj)
	if err != nil {
		return wealthmind.Quote{}, fmt.Errorf("error parsing %q: %w", symbol, err)
	}
	q := wealthmind.Quote{
		Symbol:   symbol,
		Price:    price,
		Currency: getString(pathCurrency, jobj),
		Name:     getString(pathName, jobj),
	}
	if q.Name == "" {
		q.Name = getString(pathShortName, jobj)
	}
	if prev, err := getFloat(pathPreviousClose, jobj); err == nil && prev > 0 {
		q.Change = price - prev
		q.ChangePercent = q.Change / prev * 100
	}
	return q, nil
}

// Search implements market.Provider.
func (c *Client) Search(ctx context.Context, query string) ([]wealthmind.Stock, error) {
	addr := fmt.Sprintf("%s/v1/finance/search?q=%s&quotesCount=20&newsCount=0", c.BaseURL, url.QueryEscape(query))
	var content struct {
		Quotes []struct {
			Symbol    string `json:"symbol"`
			ShortName string `json:"shortname"`
			LongName  string `json:"longname"`
			Exchange  string `json:"exchange"`
			QuoteType string `json:"quoteType"`
		} `json:"quotes"`
	}
	if err := c.jwget(ctx, addr, &content); err != nil {
		return nil, err
	}
	res := make([]wealthmind.Stock, 0, len(content.Quotes))
	for _, q := range content.Quotes {
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		res = append(res, wealthmind.Stock{
			Symbol:   strings.ToUpper(q.Symbol),
			Name:     name,
			Exchange: q.Exchange,
			Type:     q.QuoteType,
		})
	}
	return res, nil
}
