package eodhd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/etnz/wealthmind"
)

// SearchResult matches the structure of a single item in the EODHD search API response.
type SearchResult struct {
	Code              string  `json:"Code"`
	Exchange          string  `json:"Exchange"`
	Name              string  `json:"Name"`
	Type              string  `json:"Type"`
	Country           string  `json:"Country"`
	Currency          string  `json:"Currency"`
	ISIN              string  `json:"ISIN"`
	PreviousClose     float64 `json:"previousClose"`
	PreviousCloseDate string  `json:"previousCloseDate"`
}

// Stock returns the result as a stock descriptor.
func (r SearchResult) Stock() wealthmind.Stock {
	return wealthmind.Stock{
		Symbol:   Symbol(r.Code, r.Exchange),
		Name:     r.Name,
		Exchange: r.Exchange,
		Type:     r.Type,
		Currency: r.Currency,
	}
}

// SearchResults searches for securities via EOD Historical Data API.
func (c *Client) SearchResults(ctx context.Context, searchTerm string) ([]SearchResult, error) {
	apiURL := fmt.Sprintf("%s/search/%s?api_token=%s&fmt=json", c.baseURL, url.PathEscape(searchTerm), url.QueryEscape(c.apiKey))

	results := make([]SearchResult, 0)
	if err := jwget(ctx, c.daily, apiURL, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Search implements market.Provider.
func (c *Client) Search(ctx context.Context, query string) ([]wealthmind.Stock, error) {
	results, err := c.SearchResults(ctx, query)
	if err != nil {
		return nil, err
	}
	res := make([]wealthmind.Stock, 0, len(results))
	for _, r := range results {
		res = append(res, r.Stock())
	}
	return res, nil
}
