package evidence

import (
	"context"
	"strings"

	"github.com/sells-group/lead-qualifier/pkg/perplexity"
)

const perplexityPrompt = `You research Norwegian companies for an executive search firm.
Summarize in at most 5 sentences what recent public sources say about the
situation below. Stick to facts with dates. If nothing relevant is found,
answer exactly "NONE".`

// PerplexitySearcher asks Perplexity for a sourced summary and returns it
// as one snippet followed by its cited sources.
type PerplexitySearcher struct {
	client   perplexity.Client
	perQuery float64
	cost     CostRecorder
}

// NewPerplexitySearcher creates a PerplexitySearcher.
func NewPerplexitySearcher(client perplexity.Client, perQuery float64, cost CostRecorder) *PerplexitySearcher {
	if cost == nil {
		cost = noCost{}
	}
	return &PerplexitySearcher{client: client, perQuery: perQuery, cost: cost}
}

func (p *PerplexitySearcher) Name() string { return "perplexity" }

func (p *PerplexitySearcher) Search(ctx context.Context, query string) ([]Snippet, error) {
	maxTokens := 400
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: perplexityPrompt},
			{Role: "user", Content: query},
		},
		MaxTokens:           &maxTokens,
		SearchRecencyFilter: "month",
	})
	p.cost.AddCost(p.perQuery)
	if err != nil {
		return nil, err
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" || strings.EqualFold(answer, "NONE") {
		return nil, nil
	}

	summary := Snippet{Title: "Perplexity summary", Snippet: truncate(answer, snippetLen*2), Source: "perplexity"}
	out := []Snippet{summary}
	for _, r := range resp.SearchResults {
		out = append(out, Snippet{Title: r.Title, URL: r.URL, Snippet: r.Date, Source: "perplexity"})
	}
	if len(resp.SearchResults) == 0 {
		for _, u := range resp.Citations {
			out = append(out, Snippet{Title: "citation", URL: u, Source: "perplexity"})
		}
	}
	if len(out) > 1 {
		out[0].URL = out[1].URL
	}
	return out, nil
}
