package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/pkg/anthropic"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku": {
				Input: 1.00, Output: 5.00,
				CacheWriteMul: 2.0, CacheReadMul: 0.1,
			},
			"sonnet": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 2.0, CacheReadMul: 0.1,
			},
		},
		Jina:       JinaRate{PerSearch: 0.002, PerRead: 0.001},
		Perplexity: PerplexityRate{PerQuery: 0.005},
		Firecrawl:  FirecrawlRate{PerScrape: 0.0063},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name       string
		model      string
		input      int64
		output     int64
		cacheWrite int64
		cacheRead  int64
		want       float64
	}{
		{
			name: "haiku simple", model: "haiku",
			input: 1000000, output: 100000,
			want: 1.00 + 0.50,
		},
		{
			name: "sonnet with cache read", model: "sonnet",
			input: 0, output: 0, cacheRead: 1000000,
			want: 0.30,
		},
		{
			name: "sonnet with cache write", model: "sonnet",
			cacheWrite: 1000000,
			want:       6.00,
		},
		{
			name: "unknown model", model: "gpt",
			input: 1000000,
			want:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.Claude(tt.model, tt.input, tt.output, tt.cacheWrite, tt.cacheRead)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())
	got := calc.Message("haiku", anthropic.TokenUsage{InputTokens: 2000000, OutputTokens: 200000})
	assert.InDelta(t, 3.0, got, 1e-9)
}

func TestFlatRates(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())
	assert.InDelta(t, 0.002, calc.JinaSearch(), 1e-12)
	assert.InDelta(t, 0.001, calc.JinaRead(), 1e-12)
	assert.InDelta(t, 0.005, calc.PerplexityQuery(), 1e-12)
	assert.InDelta(t, 0.0063, calc.FirecrawlScrape(), 1e-12)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	r := FromConfig(config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"custom-model": {Input: 2, Output: 8},
		},
		Perplexity: config.PerplexityPricing{PerQuery: 0.01},
	})

	assert.Contains(t, r.Anthropic, "custom-model")
	assert.Contains(t, r.Anthropic, "claude-sonnet-4-5-20250929")
	assert.InDelta(t, 0.01, r.Perplexity.PerQuery, 1e-12)
	// Unset values keep the built-in rates.
	assert.InDelta(t, 0.002, r.Jina.PerSearch, 1e-12)
}
