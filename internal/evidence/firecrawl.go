package evidence

import (
	"context"
	"strings"

	"github.com/sells-group/lead-qualifier/pkg/firecrawl"
)

// FirecrawlSearcher searches via Firecrawl's search endpoint.
type FirecrawlSearcher struct {
	client    firecrawl.Client
	limit     int
	perScrape float64
	cost      CostRecorder
}

// NewFirecrawlSearcher creates a FirecrawlSearcher returning up to limit
// results.
func NewFirecrawlSearcher(client firecrawl.Client, limit int, perScrape float64, cost CostRecorder) *FirecrawlSearcher {
	if cost == nil {
		cost = noCost{}
	}
	if limit <= 0 {
		limit = 3
	}
	return &FirecrawlSearcher{client: client, limit: limit, perScrape: perScrape, cost: cost}
}

func (f *FirecrawlSearcher) Name() string { return "firecrawl" }

func (f *FirecrawlSearcher) Search(ctx context.Context, query string) ([]Snippet, error) {
	resp, err := f.client.Search(ctx, firecrawl.SearchRequest{Query: query, Limit: f.limit, Location: "Norway"})
	f.cost.AddCost(f.perScrape)
	if err != nil {
		return nil, err
	}

	out := make([]Snippet, 0, len(resp.Data))
	for _, d := range resp.Data {
		title := d.Title
		if title == "" {
			title = d.Metadata.Title
		}
		text := d.Description
		if text == "" {
			text = d.Markdown
		}
		out = append(out, Snippet{
			Title:   title,
			URL:     d.URL,
			Snippet: truncate(strings.TrimSpace(text), snippetLen),
			Source:  "firecrawl",
		})
	}
	return out, nil
}

// FirecrawlReader scrapes a page to markdown via Firecrawl.
type FirecrawlReader struct {
	client    firecrawl.Client
	perScrape float64
	cost      CostRecorder
}

// NewFirecrawlReader creates a FirecrawlReader.
func NewFirecrawlReader(client firecrawl.Client, perScrape float64, cost CostRecorder) *FirecrawlReader {
	if cost == nil {
		cost = noCost{}
	}
	return &FirecrawlReader{client: client, perScrape: perScrape, cost: cost}
}

func (f *FirecrawlReader) Name() string { return "firecrawl" }

func (f *FirecrawlReader) Read(ctx context.Context, url string) (string, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{URL: url, OnlyMainContent: true})
	f.cost.AddCost(f.perScrape)
	if err != nil {
		return "", err
	}
	return resp.Data.Markdown, nil
}
