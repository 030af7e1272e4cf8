// Package renderer renders market and portfolio views as markdown.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/etnz/wealthmind"
	"github.com/etnz/wealthmind/portfolio"
)

//go:embed templates/*.md
var templates embed.FS

// Quotes is the data of the quotes template.
type Quotes struct {
	Quotes  []wealthmind.Quote
	Omitted int // symbols that could not be quoted
}

// Search is the data of the search template.
type Search struct {
	Query  string
	Stocks []wealthmind.Stock
}

// Portfolio is the data of the portfolio template.
type Portfolio struct {
	Owner     string
	Portfolio portfolio.Portfolio
	Stats     portfolio.Stats
}

// History is the data of the history template.
type History struct {
	Owner  string
	Orders []wealthmind.Order // newest first
	Total  int
}

// RenderQuotes renders a quote table.
func RenderQuotes(q *Quotes) string {
	return renderTemplate("quotes", "quotes.md", nil, q)
}

// RenderSearch renders search results.
func RenderSearch(s *Search) string {
	return renderTemplate("search", "search.md", nil, s)
}

// RenderPortfolio renders the valuation of an account.
func RenderPortfolio(p *Portfolio) string {
	partials := map[string]string{
		"portfolio_summary":   "portfolio_summary.md",
		"portfolio_positions": "portfolio_positions.md",
	}
	return renderTemplate("portfolio", "portfolio.md", partials, p)
}

// RenderHistory renders a page of an order history.
func RenderHistory(h *History) string {
	return renderTemplate("history", "history.md", nil, h)
}

// renderTemplate renders a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, "templates/"+mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		content, err := fs.ReadFile(templates, "templates/"+file)
		if err != nil {
			return fmt.Sprintf("error reading partial template %q: %v", file, err)
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
