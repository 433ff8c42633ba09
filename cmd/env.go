package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/budget"
	"github.com/sells-group/lead-qualifier/internal/calibrate"
	"github.com/sells-group/lead-qualifier/internal/classify"
	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/internal/cost"
	"github.com/sells-group/lead-qualifier/internal/evidence"
	"github.com/sells-group/lead-qualifier/internal/metrics"
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/publish"
	"github.com/sells-group/lead-qualifier/internal/qualify"
	"github.com/sells-group/lead-qualifier/internal/resilience"
	"github.com/sells-group/lead-qualifier/internal/scoring"
	"github.com/sells-group/lead-qualifier/internal/store"
	"github.com/sells-group/lead-qualifier/internal/verify"
	"github.com/sells-group/lead-qualifier/pkg/anthropic"
	"github.com/sells-group/lead-qualifier/pkg/brreg"
	"github.com/sells-group/lead-qualifier/pkg/firecrawl"
	"github.com/sells-group/lead-qualifier/pkg/jina"
	"github.com/sells-group/lead-qualifier/pkg/notion"
	"github.com/sells-group/lead-qualifier/pkg/perplexity"
)

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// clients holds the long-lived API clients shared by every run.
type clients struct {
	anthropic  anthropic.Client
	jina       jina.Client
	perplexity perplexity.Client
	firecrawl  firecrawl.Client
	notion     notion.Client
	calc       *cost.Calculator
}

// newClients builds a client for every provider with a configured key.
func newClients(c *config.Config) *clients {
	retry := resilience.FromConfig(c.Retry)
	out := &clients{
		anthropic: anthropic.NewClient(c.Anthropic.Key, anthropic.WithMaxRetries(c.Retry.MaxAttempts)),
		calc:      cost.NewCalculator(cost.FromConfig(c.Pricing)),
	}
	if c.Jina.Key != "" {
		out.jina = jina.NewClient(c.Jina.Key,
			jina.WithBaseURL(c.Jina.BaseURL),
			jina.WithSearchBaseURL(c.Jina.SearchBaseURL),
			jina.WithRetry(retry),
		)
	}
	if c.Perplexity.Key != "" {
		out.perplexity = perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
			perplexity.WithRetry(retry),
		)
	}
	if c.Firecrawl.Key != "" {
		out.firecrawl = firecrawl.NewClient(c.Firecrawl.Key,
			firecrawl.WithBaseURL(c.Firecrawl.BaseURL),
			firecrawl.WithRetry(retry),
		)
	}
	if c.Notion.Token != "" {
		out.notion = notion.NewClient(c.Notion.Token)
	}
	return out
}

// collaborators returns the per-run factory. Every metered client records
// its cost into the run's budget.
func collaborators(c *config.Config, cl *clients, st store.Store) qualify.Factory {
	return func(b *budget.Budget, mode model.Mode) qualify.Collaborators {
		metered := classify.WithCost(cl.calc, b)
		out := qualify.Collaborators{
			Classifier: classify.NewScorer(cl.anthropic, c.Anthropic.ScoringModel, metered, classify.WithMaxTokens(c.Anthropic.MaxTokens)),
			Assessor:   classify.NewQuality(cl.anthropic, c.Anthropic.QualityModel, metered),
			WhyNow:     classify.NewWhyNow(cl.anthropic, c.Anthropic.QualityModel, metered),
		}

		var searchers []evidence.Searcher
		var readers []evidence.Reader
		if cl.jina != nil {
			searchers = append(searchers, evidence.NewJinaSearcher(cl.jina, c.Qualify.SearchResults, cl.calc.JinaSearch(), b))
			readers = append(readers, evidence.NewJinaReader(cl.jina, cl.calc.JinaRead(), b))
		}
		if cl.perplexity != nil {
			searchers = append(searchers, evidence.NewPerplexitySearcher(cl.perplexity, cl.calc.PerplexityQuery(), b))
		}
		if cl.firecrawl != nil {
			searchers = append(searchers, evidence.NewFirecrawlSearcher(cl.firecrawl, c.Qualify.SearchResults, cl.calc.FirecrawlScrape(), b))
			readers = append(readers, evidence.NewFirecrawlReader(cl.firecrawl, cl.calc.FirecrawlScrape(), b))
		}
		if len(searchers) > 0 {
			out.Searcher = evidence.NewChain(searchers...).Metered(b)
		}
		if len(readers) > 0 {
			out.Reader = evidence.NewReadChain(readers...).Metered(b)
		}

		if c.Qualify.Publish && cl.notion != nil {
			out.Publisher = publish.New(cl.notion, c.Notion.CaseDB, st, mode)
		}
		return out
	}
}

// newOracle builds the register oracle backed by the store's profile cache.
func newOracle(c *config.Config, st store.Store) *verify.Oracle {
	client := brreg.NewClient(
		brreg.WithBaseURL(c.Registry.BaseURL),
		brreg.WithRateLimit(c.Registry.RateLimit),
		brreg.WithRetry(resilience.FromConfig(c.Retry)),
	)
	return verify.NewOracle(client,
		verify.WithCache(st),
		verify.WithTTL(time.Duration(c.Registry.CacheTTLHours)*time.Hour),
		verify.WithConcurrency(c.Registry.Concurrency),
		verify.WithWavePause(time.Duration(c.Registry.WavePauseMs)*time.Millisecond),
		verify.WithSearchSize(c.Registry.NameSearchResult),
	)
}

// buildQualifier wires a Qualifier from the loaded config.
func buildQualifier(c *config.Config, st store.Store, m *metrics.Manager) *qualify.Qualifier {
	deps := qualify.Deps{
		Store:    st,
		Resolver: newOracle(c, st),
		Rules:    verify.RulesFromConfig(c.Registry),
		Weights:  scoring.NewStore(c.Weights.Path),
		Build:    collaborators(c, newClients(c), st),
		Metrics:  m,
	}
	return qualify.New(c.Qualify, deps, qualify.WithLogger(zap.L().With(zap.String("component", "qualify"))))
}

// buildCalibrator wires a Calibrator from the loaded config.
func buildCalibrator(c *config.Config, st store.Store) *calibrate.Calibrator {
	return calibrate.New(st, scoring.NewStore(c.Weights.Path), calibrate.ConfigFrom(c.Calibrate))
}
