// Package gate turns scored cases into final outcomes: threshold, dedup
// against published leads, the per-mode output cap, and the semantic
// quality filter.
package gate

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/budget"
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/scoring"
)

// Verdict is the quality classifier's view of one case.
type Verdict struct {
	OrgNumber        string `json:"org_number"`
	CompanyName      string `json:"company_name"`
	Score            int    `json:"quality_score"`
	SituationSummary string `json:"situation_analysis"`
	Rationale        string `json:"strategic_rationale"`
	RejectionReason  string `json:"rejection_reason"`
}

// Assessor scores the narrative quality of a batch of cases in one call.
type Assessor interface {
	Assess(ctx context.Context, cases []*scoring.Case) ([]Verdict, error)
}

// Config holds the gate thresholds.
type Config struct {
	Threshold     float64
	QualityCutoff int
	Cap           int
}

// ConfigForMode returns the gate config for a run mode.
func ConfigForMode(mode model.Mode, threshold float64, cutoff, productionCap, testCap int) Config {
	c := Config{Threshold: threshold, QualityCutoff: cutoff, Cap: testCap}
	if mode == model.ModeProduction {
		c.Cap = productionCap
	}
	return c
}

// Decision is the outcome for one case.
type Decision struct {
	Case    *scoring.Case
	Status  model.CaseStatus
	Reason  string
	Verdict *Verdict
}

// Outcome is the result of one gate pass.
type Outcome struct {
	Qualified []Decision
	Dropped   []Decision
	// Deferred cases passed the threshold but the quality pass could not be
	// afforded; they are not finalized.
	Deferred []*scoring.Case
	Errors   []error
}

// Gate applies the qualification rules.
type Gate struct {
	cfg      Config
	assessor Assessor
	budget   *budget.Budget
	log      *zap.Logger
}

// New creates a Gate. A nil assessor skips the quality filter.
func New(cfg Config, assessor Assessor, b *budget.Budget) *Gate {
	if b == nil {
		b = budget.Unlimited()
	}
	return &Gate{cfg: cfg, assessor: assessor, budget: b, log: zap.L()}
}

// Apply runs the gate. prior holds the dedup keys of leads qualified in
// earlier runs; it is not modified.
func (g *Gate) Apply(ctx context.Context, cases []*scoring.Case, prior map[model.DedupKey]bool) Outcome {
	var out Outcome

	var passing []*scoring.Case
	for _, c := range cases {
		if c.Confidence() < g.cfg.Threshold {
			out.Dropped = append(out.Dropped, Decision{Case: c, Status: model.CaseStatusDropped, Reason: model.ReasonBelowThreshold})
			continue
		}
		passing = append(passing, c)
	}

	// Highest confidence first, so dedup within the run keeps the
	// strongest case for a key.
	sort.SliceStable(passing, func(i, j int) bool { return passing[i].Confidence() > passing[j].Confidence() })

	seen := make(map[model.DedupKey]bool, len(passing))
	var unique []*scoring.Case
	for _, c := range passing {
		k := c.Key()
		if k.OrgNumber != "" && (prior[k] || seen[k]) {
			out.Dropped = append(out.Dropped, Decision{Case: c, Status: model.CaseStatusDropped, Reason: model.ReasonDuplicate})
			continue
		}
		seen[k] = true
		unique = append(unique, c)
	}

	if g.assessor != nil && len(unique) > 0 && !g.budget.TryConsume(budget.KindQuality) {
		g.log.Info("gate: quality pass unaffordable, deferring cases",
			zap.Int("deferred", len(unique)),
			zap.String("reason", g.budget.StopReason()),
		)
		out.Deferred = unique
		return out
	}

	capped := unique
	if g.cfg.Cap > 0 && len(unique) > g.cfg.Cap {
		capped = unique[:g.cfg.Cap]
		for _, c := range unique[g.cfg.Cap:] {
			out.Dropped = append(out.Dropped, Decision{Case: c, Status: model.CaseStatusDropped, Reason: model.ReasonOverCap})
		}
	}

	if g.assessor == nil || len(capped) == 0 {
		for _, c := range capped {
			out.Qualified = append(out.Qualified, Decision{Case: c, Status: model.CaseStatusQualified})
		}
		return out
	}

	verdicts, err := g.assessor.Assess(ctx, capped)
	if err != nil {
		g.log.Warn("gate: quality classifier failed, keeping cases", zap.Error(err))
		out.Errors = append(out.Errors, eris.Wrap(err, "gate: quality pass"))
	}
	matched := scoring.Match(capped, verdicts, func(v Verdict) (string, string) { return v.OrgNumber, v.CompanyName })

	for _, c := range capped {
		d := Decision{Case: c, Status: model.CaseStatusQualified}
		if v, ok := matched[c]; ok {
			d.Verdict = &v
			if v.Score < g.cfg.QualityCutoff {
				d.Status = model.CaseStatusDropped
				d.Reason = model.ReasonLowQuality
				if v.RejectionReason != "" {
					d.Reason += ": " + v.RejectionReason
				}
			}
		}
		if d.Status == model.CaseStatusQualified {
			out.Qualified = append(out.Qualified, d)
		} else {
			out.Dropped = append(out.Dropped, d)
		}
	}
	return out
}
