// Package evidence fetches supplemental web evidence about a company event:
// search snippets from a chain of providers and, optionally, the text of the
// top result page.
package evidence

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/budget"
	"github.com/sells-group/lead-qualifier/internal/model"
)

// Snippet is one search hit.
type Snippet struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Snippet, error)
	Name() string
}

// Reader fetches the text of a page.
type Reader interface {
	Read(ctx context.Context, url string) (string, error)
	Name() string
}

// CostRecorder accumulates the estimated USD cost of provider calls.
type CostRecorder interface {
	AddCost(usd float64)
}

// Meter reserves ops from the run budget.
type Meter interface {
	TryConsume(kind string) bool
}

type noCost struct{}

func (noCost) AddCost(float64) {}

var triggerTerms = map[model.Trigger]string{
	model.TriggerLeadershipChange:      "ny daglig leder fratrer CEO",
	model.TriggerRestructuring:         "restrukturering refinansiering",
	model.TriggerMergersAcquisitions:   "oppkjøp fusjon",
	model.TriggerStrategicReview:       "strategisk gjennomgang",
	model.TriggerOperationalCrisis:     "driftsproblemer krise",
	model.TriggerRegulatoryLegal:       "granskning tilsyn søksmål",
	model.TriggerCostProgram:           "kostnadskutt nedbemanning",
	model.TriggerHiringSignal:          "søker leder stilling",
	model.TriggerOwnershipGovernance:   "styre eierskifte",
	model.TriggerTransformationProgram: "omstilling transformasjon",
}

// Query builds the search query for a company and trigger.
func Query(company string, trigger model.Trigger) string {
	q := fmt.Sprintf("%q", strings.TrimSpace(company))
	if terms, ok := triggerTerms[trigger]; ok {
		q += " " + terms
	} else if trigger != "" {
		q += " " + string(trigger)
	}
	return q
}

// Format renders snippets as an evidence block for a case.
func Format(snippets []Snippet) string {
	parts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		text := strings.TrimSpace(s.Snippet)
		if text == "" && s.Title == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[evidence:%s] %s: %s (%s)", s.Source, s.Title, text, s.URL))
	}
	return strings.Join(parts, "\n")
}

// Chain tries searchers in priority order and returns the first non-empty
// result.
type Chain struct {
	searchers []Searcher
	meter     Meter
}

// NewChain creates a Chain. Nil searchers are skipped.
func NewChain(searchers ...Searcher) *Chain {
	c := &Chain{}
	for _, s := range searchers {
		if s != nil {
			c.searchers = append(c.searchers, s)
		}
	}
	return c
}

// Name lists the chained providers.
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.searchers))
	for _, s := range c.searchers {
		names = append(names, s.Name())
	}
	return strings.Join(names, ">")
}

// Len returns the number of providers in the chain.
func (c *Chain) Len() int { return len(c.searchers) }

// Metered charges every fallback search to m. The caller pays for the first
// provider; each later provider costs one more search op, and the chain
// stops falling through when m refuses.
func (c *Chain) Metered(m Meter) *Chain {
	c.meter = m
	return c
}

// Search returns the first provider's non-empty result. An all-empty chain
// returns no snippets and no error; an error is returned only when every
// attempted provider failed.
func (c *Chain) Search(ctx context.Context, query string) ([]Snippet, error) {
	var lastErr error
	attempts, failures := 0, 0
	for i, s := range c.searchers {
		if i > 0 && c.meter != nil && !c.meter.TryConsume(budget.KindSearch) {
			zap.L().Debug("evidence: budget exhausted, no further fallback",
				zap.String("searcher", s.Name()),
				zap.String("query", query),
			)
			break
		}
		attempts++
		out, err := s.Search(ctx, query)
		if err != nil {
			zap.L().Debug("evidence: searcher failed, trying next",
				zap.String("searcher", s.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
			lastErr = err
			failures++
			continue
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	if failures > 0 && failures == attempts {
		return nil, eris.Wrap(lastErr, "evidence: all searchers failed")
	}
	return nil, nil
}

// ReadChain tries readers in order and returns the first usable page text.
type ReadChain struct {
	readers []Reader
	meter   Meter
}

// NewReadChain creates a ReadChain. Nil readers are skipped.
func NewReadChain(readers ...Reader) *ReadChain {
	c := &ReadChain{}
	for _, r := range readers {
		if r != nil {
			c.readers = append(c.readers, r)
		}
	}
	return c
}

// Name lists the chained readers.
func (c *ReadChain) Name() string {
	names := make([]string, 0, len(c.readers))
	for _, r := range c.readers {
		names = append(names, r.Name())
	}
	return strings.Join(names, ">")
}

// Len returns the number of readers in the chain.
func (c *ReadChain) Len() int { return len(c.readers) }

// Metered charges every fallback read to m as a scrape op, the same way
// Chain.Metered charges searches.
func (c *ReadChain) Metered(m Meter) *ReadChain {
	c.meter = m
	return c
}

// Read returns the first reader's text.
func (c *ReadChain) Read(ctx context.Context, url string) (string, error) {
	var lastErr error
	for i, r := range c.readers {
		if i > 0 && c.meter != nil && !c.meter.TryConsume(budget.KindScrape) {
			zap.L().Debug("evidence: budget exhausted, no further fallback",
				zap.String("reader", r.Name()),
				zap.String("url", url),
			)
			break
		}
		text, err := r.Read(ctx, url)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err != nil {
			zap.L().Debug("evidence: reader failed, trying next",
				zap.String("reader", r.Name()),
				zap.String("url", url),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", eris.Wrap(lastErr, "evidence: all readers failed")
	}
	return "", eris.Errorf("evidence: no content for %s", url)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
