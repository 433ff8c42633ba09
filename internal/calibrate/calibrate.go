// Package calibrate nudges the per-source priors from graded feedback.
package calibrate

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/scoring"
)

// Clamp ranges of the adjusted priors.
const (
	MinEW = 0.1
	MaxEW = 1.0
	MinR  = 0.1
	MaxR  = 0.9
)

// Actions recorded per source.
const (
	ActionRaise = "raise"
	ActionLower = "lower"
	ActionKeep  = "keep"
)

// FeedbackStore is the slice of the store the calibrator needs.
type FeedbackStore interface {
	UnconsumedFeedback(ctx context.Context, limit int) ([]model.FeedbackGrade, error)
	MarkFeedbackConsumed(ctx context.Context, ids []string, at time.Time) error
}

// Config holds the calibration thresholds.
type Config struct {
	MinItems      int
	MinGroupSize  int
	RaiseRatio    float64
	LowerRatio    float64
	Step          float64
	FeedbackLimit int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{MinItems: 10, MinGroupSize: 3, RaiseRatio: 0.6, LowerRatio: 0.5, Step: 0.05, FeedbackLimit: 500}
}

// ConfigFrom converts the calibrate config section, keeping defaults for
// unset fields.
func ConfigFrom(c config.CalibrateConfig) Config {
	out := DefaultConfig()
	if c.MinItems > 0 {
		out.MinItems = c.MinItems
	}
	if c.MinGroupSize > 0 {
		out.MinGroupSize = c.MinGroupSize
	}
	if c.RaiseRatio > 0 {
		out.RaiseRatio = c.RaiseRatio
	}
	if c.LowerRatio > 0 {
		out.LowerRatio = c.LowerRatio
	}
	if c.Step > 0 {
		out.Step = c.Step
	}
	if c.FeedbackLimit > 0 {
		out.FeedbackLimit = c.FeedbackLimit
	}
	return out
}

// Stats summarizes the grades of one source type.
type Stats struct {
	SourceType  string   `json:"source_type"`
	Total       int      `json:"total"`
	Relevant    int      `json:"relevant"`
	Partial     int      `json:"partial"`
	Irrelevant  int      `json:"irrelevant"`
	Relevance   float64  `json:"relevance"`
	Irrelevance float64  `json:"irrelevance"`
	IDs         []string `json:"-"`
}

// Compute groups grades by source type, sorted by source type.
func Compute(grades []model.FeedbackGrade) []Stats {
	by := make(map[string]*Stats)
	for _, g := range grades {
		st := g.SourceType
		if st == "" {
			st = model.SourceDefault
		}
		s, ok := by[st]
		if !ok {
			s = &Stats{SourceType: st}
			by[st] = s
		}
		s.Total++
		s.IDs = append(s.IDs, g.ID)
		switch g.Grade {
		case model.GradeRelevant:
			s.Relevant++
		case model.GradePartial:
			s.Partial++
		case model.GradeIrrelevant:
			s.Irrelevant++
		}
	}

	out := make([]Stats, 0, len(by))
	for _, s := range by {
		s.Relevance = (float64(s.Relevant) + 0.5*float64(s.Partial)) / float64(s.Total)
		s.Irrelevance = float64(s.Irrelevant) / float64(s.Total)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceType < out[j].SourceType })
	return out
}

// Change records the adjustment of one source row.
type Change struct {
	SourceType string        `json:"source_type"`
	Action     string        `json:"action"`
	Before     scoring.Prior `json:"before"`
	After      scoring.Prior `json:"after"`
}

// Adjust returns a copy of w with every eligible group's row adjusted.
// Groups under the minimum size are skipped and produce no change entry.
func Adjust(w *scoring.Weights, stats []Stats, cfg Config) (*scoring.Weights, []Change) {
	out := w.Clone()
	var changes []Change
	for _, s := range stats {
		if s.Total < cfg.MinGroupSize {
			continue
		}
		before := w.Prior(s.SourceType)
		after := before
		action := ActionKeep
		switch {
		case s.Relevance > cfg.RaiseRatio:
			action = ActionRaise
			after.E0 = clamp(before.E0*(1+cfg.Step), MinEW, MaxEW)
			after.W0 = clamp(before.W0*(1+cfg.Step), MinEW, MaxEW)
		case s.Irrelevance > cfg.LowerRatio:
			action = ActionLower
			after.E0 = clamp(before.E0*(1-cfg.Step), MinEW, MaxEW)
			after.W0 = clamp(before.W0*(1-cfg.Step), MinEW, MaxEW)
			after.R0 = clamp(before.R0*(1+cfg.Step), MinR, MaxR)
		}
		if action != ActionKeep {
			out.Sources[s.SourceType] = after
		}
		changes = append(changes, Change{SourceType: s.SourceType, Action: action, Before: before, After: after})
	}
	return out, changes
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Result reports one calibration pass.
type Result struct {
	Ran        bool     `json:"ran"`
	Reason     string   `json:"reason,omitempty"`
	Items      int      `json:"items"`
	Consumed   int      `json:"consumed"`
	Stats      []Stats  `json:"stats"`
	Changes    []Change `json:"changes"`
	OldVersion string   `json:"old_version"`
	NewVersion string   `json:"new_version"`
}

// Calibrator runs calibration passes against a weights file and a
// feedback store.
type Calibrator struct {
	store   FeedbackStore
	weights *scoring.Store
	cfg     Config
	now     func() time.Time
	log     *zap.Logger
}

// New creates a Calibrator.
func New(store FeedbackStore, weights *scoring.Store, cfg Config) *Calibrator {
	return &Calibrator{store: store, weights: weights, cfg: cfg, now: time.Now, log: zap.L()}
}

// Run performs one pass. Without force it does nothing until enough new
// grades have arrived. Only grades of evaluated groups are consumed; grades
// of groups under the minimum size stay for a later pass.
func (c *Calibrator) Run(ctx context.Context, force bool) (*Result, error) {
	unlock, err := c.weights.Lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	grades, err := c.store.UnconsumedFeedback(ctx, c.cfg.FeedbackLimit)
	if err != nil {
		return nil, eris.Wrap(err, "calibrate: load feedback")
	}
	res := &Result{Items: len(grades)}

	if len(grades) == 0 || (!force && len(grades) < c.cfg.MinItems) {
		res.Reason = "not enough new feedback"
		c.log.Info("calibrate: skipped",
			zap.Int("items", len(grades)),
			zap.Int("min_items", c.cfg.MinItems),
		)
		return res, nil
	}

	current := c.weights.Load()
	res.OldVersion = current.Version
	res.Stats = Compute(grades)

	next, changes := Adjust(current, res.Stats, c.cfg)
	res.Changes = changes
	if err := c.weights.Save(next); err != nil {
		return nil, eris.Wrap(err, "calibrate: save weights")
	}
	res.NewVersion = next.Version
	res.Ran = true

	var consumed []string
	for _, s := range res.Stats {
		if s.Total >= c.cfg.MinGroupSize {
			consumed = append(consumed, s.IDs...)
		}
	}
	if len(consumed) > 0 {
		if err := c.store.MarkFeedbackConsumed(ctx, consumed, c.now().UTC()); err != nil {
			return nil, eris.Wrap(err, "calibrate: mark feedback consumed")
		}
	}
	res.Consumed = len(consumed)

	for _, ch := range changes {
		c.log.Info("calibrate: source adjusted",
			zap.String("source_type", ch.SourceType),
			zap.String("action", ch.Action),
			zap.Float64("e0", ch.After.E0),
			zap.Float64("w0", ch.After.W0),
			zap.Float64("r0", ch.After.R0),
		)
	}
	c.log.Info("calibrate: complete",
		zap.Int("items", res.Items),
		zap.Int("consumed", res.Consumed),
		zap.String("old_version", res.OldVersion),
		zap.String("new_version", res.NewVersion),
	)
	return res, nil
}
