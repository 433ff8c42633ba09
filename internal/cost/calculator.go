// Package cost estimates the USD cost of collaborator calls made during a
// qualification run.
package cost

import (
	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/pkg/anthropic"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic  map[string]ModelRate
	Jina       JinaRate
	Perplexity PerplexityRate
	Firecrawl  FirecrawlRate
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64
	Output        float64
	CacheWriteMul float64
	CacheReadMul  float64
}

// JinaRate holds Jina flat per-call pricing.
type JinaRate struct {
	PerSearch float64
	PerRead   float64
}

// PerplexityRate holds Perplexity pricing.
type PerplexityRate struct {
	PerQuery float64
}

// FirecrawlRate holds Firecrawl pricing.
type FirecrawlRate struct {
	PerScrape float64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// FromConfig builds rates from the pricing section. Models without a
// configured rate use the built-in table.
func FromConfig(p config.PricingConfig) Rates {
	r := DefaultRates()
	for model, mp := range p.Anthropic {
		r.Anthropic[model] = ModelRate{
			Input:         mp.Input,
			Output:        mp.Output,
			CacheWriteMul: mp.CacheWriteMul,
			CacheReadMul:  mp.CacheReadMul,
		}
	}
	if p.Jina.PerSearch > 0 {
		r.Jina.PerSearch = p.Jina.PerSearch
	}
	if p.Jina.PerRead > 0 {
		r.Jina.PerRead = p.Jina.PerRead
	}
	if p.Perplexity.PerQuery > 0 {
		r.Perplexity.PerQuery = p.Perplexity.PerQuery
	}
	if p.Firecrawl.PerScrape > 0 {
		r.Firecrawl.PerScrape = p.Firecrawl.PerScrape
	}
	return r
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Message computes the cost of a Messages API response.
func (c *Calculator) Message(model string, u anthropic.TokenUsage) float64 {
	return c.Claude(model, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens)
}

// JinaSearch returns the flat cost per Jina search.
func (c *Calculator) JinaSearch() float64 {
	return c.rates.Jina.PerSearch
}

// JinaRead returns the flat cost per Jina Reader fetch.
func (c *Calculator) JinaRead() float64 {
	return c.rates.Jina.PerRead
}

// PerplexityQuery returns the flat cost per Perplexity query.
func (c *Calculator) PerplexityQuery() float64 {
	return c.rates.Perplexity.PerQuery
}

// FirecrawlScrape returns the cost of one Firecrawl scrape or search.
func (c *Calculator) FirecrawlScrape() float64 {
	return c.rates.Firecrawl.PerScrape
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 1.00, Output: 5.00,
				CacheWriteMul: 2.0, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 2.0, CacheReadMul: 0.1,
			},
		},
		Jina:       JinaRate{PerSearch: 0.002, PerRead: 0.001},
		Perplexity: PerplexityRate{PerQuery: 0.005},
		Firecrawl:  FirecrawlRate{PerScrape: 0.0063},
	}
}
