package market

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/etnz/wealthmind"
)

// Listing is a catalog entry: a stock and its reference price.
type Listing struct {
	wealthmind.Stock
	BasePrice         float64
	BaseChangePercent float64
}

// bse is the built-in catalog of large caps listed on the Bombay Stock Exchange.
var bse = []Listing{
	{wealthmind.Stock{Symbol: "RELIANCE.BO", Name: "Reliance Industries Limited", Sector: "Energy"}, 2456.75, 1.2},
	{wealthmind.Stock{Symbol: "TCS.BO", Name: "Tata Consultancy Services Limited", Sector: "Information Technology"}, 3315.50, 0.8},
	{wealthmind.Stock{Symbol: "HDFCBANK.BO", Name: "HDFC Bank Limited", Sector: "Banking"}, 1432.25, -0.3},
	{wealthmind.Stock{Symbol: "INFY.BO", Name: "Infosys Limited", Sector: "Information Technology"}, 1520.80, 1.5},
	{wealthmind.Stock{Symbol: "HINDUNILVR.BO", Name: "Hindustan Unilever Limited", Sector: "FMCG"}, 2450.60, 0.5},
	{wealthmind.Stock{Symbol: "ICICIBANK.BO", Name: "ICICI Bank Limited", Sector: "Banking"}, 915.45, 0.9},
	{wealthmind.Stock{Symbol: "KOTAKBANK.BO", Name: "Kotak Mahindra Bank Limited", Sector: "Banking"}, 1675.30, -0.2},
	{wealthmind.Stock{Symbol: "SBIN.BO", Name: "State Bank of India", Sector: "Banking"}, 565.75, 1.1},
	{wealthmind.Stock{Symbol: "BHARTIARTL.BO", Name: "Bharti Airtel Limited", Sector: "Telecom"}, 815.20, 0.7},
	{wealthmind.Stock{Symbol: "ITC.BO", Name: "ITC Limited", Sector: "FMCG"}, 425.50, 0.3},
	{wealthmind.Stock{Symbol: "LT.BO", Name: "Larsen & Toubro Limited", Sector: "Infrastructure"}, 3215.80, 2.1},
	{wealthmind.Stock{Symbol: "AXISBANK.BO", Name: "Axis Bank Limited", Sector: "Banking"}, 985.60, 0.6},
	{wealthmind.Stock{Symbol: "ASIANPAINT.BO", Name: "Asian Paints Limited", Sector: "FMCG"}, 2980.45, -0.4},
	{wealthmind.Stock{Symbol: "MARUTI.BO", Name: "Maruti Suzuki India Limited", Sector: "Automobile"}, 9850.75, 1.8},
	{wealthmind.Stock{Symbol: "SUNPHARMA.BO", Name: "Sun Pharmaceutical Industries Limited", Sector: "Pharmaceuticals"}, 1125.30, 0.4},
	{wealthmind.Stock{Symbol: "TITAN.BO", Name: "Titan Company Limited", Sector: "Consumer Goods"}, 3325.90, 2.3},
	{wealthmind.Stock{Symbol: "ULTRACEMCO.BO", Name: "UltraTech Cement Limited", Sector: "Cement"}, 8450.25, 0.9},
	{wealthmind.Stock{Symbol: "NESTLEIND.BO", Name: "Nestle India Limited", Sector: "FMCG"}, 2245.60, 0.2},
	{wealthmind.Stock{Symbol: "BAJFINANCE.BO", Name: "Bajaj Finance Limited", Sector: "Finance"}, 6450.75, 1.7},
	{wealthmind.Stock{Symbol: "WIPRO.BO", Name: "Wipro Limited", Sector: "Information Technology"}, 415.80, -0.5},
}

// Catalog is a Provider serving a fixed list of stocks at their reference
// price. It works offline and is the default provider.
type Catalog struct {
	listings map[string]Listing
	order    []string // symbols in catalog order

	mu   sync.Mutex // guards rand
	rand *rand.Rand
}

// NewCatalog returns the built-in BSE catalog. When r is not nil, the daily
// change of each quote varies randomly by up to ±0.4 point around its
// reference, as a live market would.
func NewCatalog(r *rand.Rand) *Catalog {
	return NewCatalogOf(bse, r)
}

// NewCatalogOf returns a catalog of listings.
func NewCatalogOf(listings []Listing, r *rand.Rand) *Catalog {
	c := &Catalog{listings: make(map[string]Listing, len(listings)), rand: r}
	for _, l := range listings {
		l.Exchange = "BSE"
		l.Type = "EQUITY"
		l.Currency = wealthmind.DefaultCurrency
		c.listings[l.Symbol] = l
		c.order = append(c.order, l.Symbol)
	}
	return c
}

// Listings returns the catalog content in catalog order.
func (c *Catalog) Listings() []Listing {
	res := make([]Listing, 0, len(c.order))
	for _, s := range c.order {
		res = append(res, c.listings[s])
	}
	return res
}

func (c *Catalog) variation() float64 {
	if c.rand == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return (c.rand.Float64() - 0.5) * 0.8
}

// Quote implements Provider.
func (c *Catalog) Quote(ctx context.Context, symbol string) (wealthmind.Quote, error) {
	if err := ctx.Err(); err != nil {
		return wealthmind.Quote{}, err
	}
	l, ok := c.listings[wealthmind.NormalizeSymbol(symbol)]
	if !ok {
		return wealthmind.Quote{}, wealthmind.Errorf(wealthmind.ErrSymbolNotFound, "%q is not in the catalog", symbol)
	}
	pct := l.BaseChangePercent + c.variation()
	return wealthmind.Quote{
		Symbol:        l.Symbol,
		Name:          l.Name,
		Price:         l.BasePrice,
		Change:        l.BasePrice * pct / 100,
		ChangePercent: pct,
		Currency:      l.Currency,
	}, nil
}

// Search implements Provider: it matches the query against symbols and
// names, case-insensitively.
func (c *Catalog) Search(ctx context.Context, query string) ([]wealthmind.Stock, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	res := make([]wealthmind.Stock, 0)
	if q == "" {
		return res, nil
	}
	for _, s := range c.order {
		l := c.listings[s]
		if strings.Contains(strings.ToLower(l.Symbol), q) || strings.Contains(strings.ToLower(l.Name), q) {
			res = append(res, l.Stock)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Symbol < res[j].Symbol })
	return res, nil
}
