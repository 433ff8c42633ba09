// Package escalate gathers supplemental evidence for cases whose confidence
// sits just under the qualification threshold and re-scores them.
package escalate

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-qualifier/internal/budget"
	"github.com/sells-group/lead-qualifier/internal/evidence"
	"github.com/sells-group/lead-qualifier/internal/scoring"
)

const (
	defaultConcurrency = 5
	maxPageChars       = 2000
)

// Result reports what escalation did.
type Result struct {
	// Band holds every case that was inside the escalation band.
	Band []*scoring.Case
	// Searched counts evidence searches made.
	Searched int
	// Read counts result pages fetched.
	Read int
	// Rescored cases went through the second classifier pass.
	Rescored []*scoring.Case
	Errors   []error
}

// Escalator runs the evidence pass.
type Escalator struct {
	searcher    evidence.Searcher
	reader      evidence.Reader
	engine      *scoring.Engine
	budget      *budget.Budget
	floor       float64
	threshold   float64
	concurrency int
	log         *zap.Logger
}

// Option configures an Escalator.
type Option func(*Escalator)

// WithReader fetches the top result page of each search as extra evidence.
// Each read costs one scrape op.
func WithReader(r evidence.Reader) Option {
	return func(e *Escalator) { e.reader = r }
}

// WithConcurrency caps concurrent searches.
func WithConcurrency(n int) Option {
	return func(e *Escalator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets the escalator logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Escalator) { e.log = l }
}

// New creates an Escalator for the band [floor, threshold). A nil searcher
// disables escalation.
func New(searcher evidence.Searcher, engine *scoring.Engine, b *budget.Budget, floor, threshold float64, opts ...Option) *Escalator {
	if b == nil {
		b = budget.Unlimited()
	}
	e := &Escalator{
		searcher:    searcher,
		engine:      engine,
		budget:      b,
		floor:       floor,
		threshold:   threshold,
		concurrency: defaultConcurrency,
		log:         zap.L(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// InBand reports whether c should be escalated.
func (e *Escalator) InBand(c *scoring.Case) bool {
	conf := c.Confidence()
	return conf >= e.floor && conf < e.threshold
}

// Run searches for evidence on every band case the budget allows, appends
// the snippets to the case evidence, and re-scores the cases that gained
// evidence in one classifier pass. Cases outside the band, cases the budget
// could not cover, and cases the second pass could not afford keep their
// first-pass scores.
func (e *Escalator) Run(ctx context.Context, cases []*scoring.Case) Result {
	var res Result
	for _, c := range cases {
		if e.InBand(c) {
			res.Band = append(res.Band, c)
		}
	}
	if e.searcher == nil || len(res.Band) == 0 {
		return res
	}

	// Closest to the threshold first, so a short budget goes where a
	// rescore is most likely to flip the outcome.
	band := make([]*scoring.Case, len(res.Band))
	copy(band, res.Band)
	sort.SliceStable(band, func(i, j int) bool { return band[i].Confidence() > band[j].Confidence() })

	var (
		mu       sync.Mutex
		enriched []*scoring.Case
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, c := range band {
		if !e.budget.TryConsume(budget.KindSearch) {
			e.log.Info("escalate: budget exhausted, remaining cases keep first-pass scores",
				zap.String("reason", e.budget.StopReason()))
			break
		}
		res.Searched++
		g.Go(func() error {
			added, read, err := e.gather(gctx, c)
			mu.Lock()
			defer mu.Unlock()
			res.Read += read
			if err != nil {
				res.Errors = append(res.Errors, err)
			}
			if added {
				enriched = append(enriched, c)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(enriched) == 0 {
		return res
	}

	// Restore band order so classifier chunks are deterministic.
	order := make(map[*scoring.Case]int, len(band))
	for i, c := range band {
		order[c] = i
	}
	sort.Slice(enriched, func(i, j int) bool { return order[enriched[i]] < order[enriched[j]] })

	scored := e.engine.Score(ctx, enriched)
	res.Errors = append(res.Errors, scored.Errors...)
	for _, c := range scored.Scored {
		c.Escalated = true
	}
	res.Rescored = scored.Scored

	e.log.Info("escalate: band rescored",
		zap.Int("band", len(res.Band)),
		zap.Int("searched", res.Searched),
		zap.Int("rescored", len(res.Rescored)),
		zap.Int("unaffordable", len(scored.Unaffordable)),
	)
	return res
}

// gather runs one search (already paid for) and an optional page read, and
// appends what it found to the case evidence.
func (e *Escalator) gather(ctx context.Context, c *scoring.Case) (bool, int, error) {
	snippets, err := e.searcher.Search(ctx, evidence.Query(c.CompanyName, c.Trigger))
	if err != nil {
		e.log.Warn("escalate: evidence search failed",
			zap.String("company", c.CompanyName), zap.Error(err))
		return false, 0, eris.Wrapf(err, "escalate: search %s", c.CompanyName)
	}
	if len(snippets) == 0 {
		return false, 0, nil
	}

	block := evidence.Format(snippets)
	reads := 0
	if e.reader != nil && snippets[0].URL != "" && e.budget.TryConsume(budget.KindScrape) {
		reads = 1
		text, err := e.reader.Read(ctx, snippets[0].URL)
		if err != nil {
			e.log.Debug("escalate: page read failed", zap.String("url", snippets[0].URL), zap.Error(err))
		} else {
			block += "\n[evidence:page] " + truncate(text, maxPageChars)
		}
	}

	if block == "" {
		return false, reads, nil
	}
	if c.Evidence != "" {
		c.Evidence += "\n---\n"
	}
	c.Evidence += block
	return true, reads, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
