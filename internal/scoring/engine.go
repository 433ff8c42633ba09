package scoring

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/budget"
	"github.com/sells-group/lead-qualifier/internal/model"
)

// DefaultChunkSize is the number of cases sent in one classifier call.
const DefaultChunkSize = 25

// Assessment is the classifier's view of one case. Nil dimensions keep the
// case's current value.
type Assessment struct {
	OrgNumber   string   `json:"org_number"`
	CompanyName string   `json:"company_name"`
	E           *float64 `json:"E"`
	W           *float64 `json:"W"`
	R           *float64 `json:"R"`
	Reasoning   string   `json:"reasoning"`
}

// Classifier scores a batch of cases in one call. Partial answers are fine:
// cases without a matching assessment keep their scores.
type Classifier interface {
	Score(ctx context.Context, cases []*Case, examples []model.FeedbackGrade) ([]Assessment, error)
}

// Result reports the outcome of a scoring pass.
type Result struct {
	// Scored cases carry classifier scores, or priors if the call failed.
	Scored []*Case
	// Unaffordable cases were not sent because the budget ran out.
	Unaffordable []*Case
	Errors       []error
}

// Engine computes E/W/V/R for cases.
type Engine struct {
	weights   *Weights
	cls       Classifier
	budget    *budget.Budget
	chunkSize int
	examples  []model.FeedbackGrade
	log       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithChunkSize sets the classifier chunk size.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithExamples sets recent graded examples passed to the classifier.
func WithExamples(ex []model.FeedbackGrade) Option {
	return func(e *Engine) { e.examples = ex }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates a scoring engine. cls may be nil, in which case cases
// keep their priors and no ops are spent.
func NewEngine(w *Weights, cls Classifier, b *budget.Budget, opts ...Option) *Engine {
	if w == nil {
		w = Defaults()
	}
	if b == nil {
		b = budget.Unlimited()
	}
	e := &Engine{
		weights:   w,
		cls:       cls,
		budget:    b,
		chunkSize: DefaultChunkSize,
		log:       zap.L(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Weights returns the snapshot the engine scores with.
func (e *Engine) Weights() *Weights { return e.weights }

// Prime sets prior scores from the primary source's row and the group's
// corroboration boost.
func (e *Engine) Prime(c *Case) {
	p := e.weights.Prior(c.Group.SourceType())
	c.Scores = model.Scores{
		E: math.Min(1, p.E0+c.Group.Boost),
		W: math.Min(1, p.W0+c.Group.Boost),
		V: c.Verification.V,
		R: p.R0,
	}
}

// Score sends cases to the classifier in chunks. Each chunk reserves one
// op first; once a reservation is refused, that chunk and every later one
// are returned as unaffordable. A failed call keeps the chunk's scores.
func (e *Engine) Score(ctx context.Context, cases []*Case) Result {
	var res Result
	if e.cls == nil {
		res.Scored = cases
		return res
	}

	for start := 0; start < len(cases); start += e.chunkSize {
		end := min(start+e.chunkSize, len(cases))
		chunk := cases[start:end]

		if ctx.Err() != nil || !e.budget.TryConsume(budget.KindClassify) {
			res.Unaffordable = append(res.Unaffordable, cases[start:]...)
			e.log.Info("scoring: budget exhausted, leaving cases unscored",
				zap.Int("unscored", len(cases)-start),
				zap.String("reason", e.budget.StopReason()),
			)
			break
		}

		out, err := e.cls.Score(ctx, chunk, e.examples)
		if err != nil {
			e.log.Warn("scoring: classifier failed, keeping priors",
				zap.Int("chunk_size", len(chunk)), zap.Error(err))
			res.Errors = append(res.Errors, eris.Wrap(err, "scoring: classify chunk"))
		} else {
			Apply(chunk, out)
		}
		res.Scored = append(res.Scored, chunk...)
	}
	return res
}

// Apply maps assessments back onto cases and returns how many matched.
func Apply(cases []*Case, out []Assessment) int {
	matched := Match(cases, out, func(a Assessment) (string, string) { return a.OrgNumber, a.CompanyName })
	for c, a := range matched {
		if a.E != nil {
			c.Scores.E = clamp(*a.E)
		}
		if a.W != nil {
			c.Scores.W = clamp(*a.W)
		}
		if a.R != nil {
			c.Scores.R = clamp(*a.R)
		}
		if a.Reasoning != "" {
			c.Reasoning = a.Reasoning
		}
	}
	return len(matched)
}

// Match pairs classifier items with cases, by org number first and exact
// company name second. The first item for a key wins.
func Match[T any](cases []*Case, items []T, key func(T) (org, name string)) map[*Case]T {
	byOrg := make(map[string]int, len(items))
	byName := make(map[string]int, len(items))
	for i, it := range items {
		org, name := key(it)
		if org = model.NormalizeOrgNumber(org); org != "" {
			if _, ok := byOrg[org]; !ok {
				byOrg[org] = i
			}
		}
		if name != "" {
			if _, ok := byName[name]; !ok {
				byName[name] = i
			}
		}
	}

	out := make(map[*Case]T, len(cases))
	for _, c := range cases {
		i, ok := -1, false
		if org := model.NormalizeOrgNumber(c.OrgNumber); org != "" {
			i, ok = byOrg[org]
		}
		if !ok {
			i, ok = byName[c.CompanyName]
		}
		if ok {
			out[c] = items[i]
		}
	}
	return out
}

func clamp(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
