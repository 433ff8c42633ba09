// Package qualify runs one qualification batch: it groups unprocessed
// seeds, verifies them against the register, scores, escalates and gates
// the survivors, and persists the outcome as case files.
package qualify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/budget"
	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/internal/corroborate"
	"github.com/sells-group/lead-qualifier/internal/escalate"
	"github.com/sells-group/lead-qualifier/internal/evidence"
	"github.com/sells-group/lead-qualifier/internal/gate"
	"github.com/sells-group/lead-qualifier/internal/metrics"
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/publish"
	"github.com/sells-group/lead-qualifier/internal/scoring"
	"github.com/sells-group/lead-qualifier/internal/store"
	"github.com/sells-group/lead-qualifier/internal/verify"
)

// Resolver verifies company groups against the register.
type Resolver interface {
	Resolve(ctx context.Context, groups []*corroborate.Group, rules verify.Rules) ([]verify.Resolution, []error)
}

// WhyNowWriter writes the why-now paragraph of qualified cases in one call.
type WhyNowWriter interface {
	Write(ctx context.Context, cases []*scoring.Case) (map[*scoring.Case]string, error)
}

// Publisher pushes qualified case files to the publication target.
type Publisher interface {
	Publish(ctx context.Context, cfs []model.CaseFile) publish.Result
}

// Collaborators are the metered services of one run. Any of them may be
// nil, which disables that stage.
type Collaborators struct {
	Classifier scoring.Classifier
	Searcher   evidence.Searcher
	Reader     evidence.Reader
	Assessor   gate.Assessor
	WhyNow     WhyNowWriter
	Publisher  Publisher
}

// Factory builds the collaborators of a run. Cost-reporting clients record
// into b, the run's budget.
type Factory func(b *budget.Budget, mode model.Mode) Collaborators

// Deps are the long-lived dependencies of a Qualifier.
type Deps struct {
	Store    store.Store
	Resolver Resolver
	Rules    verify.Rules
	Weights  *scoring.Store
	Build    Factory
	Metrics  *metrics.Manager
}

// Report is the outcome of one run.
type Report struct {
	Run       model.Run
	CaseFiles []model.CaseFile
	Errors    []error
}

// Qualifier runs qualification batches.
type Qualifier struct {
	cfg  config.QualifyConfig
	deps Deps
	now  func() time.Time
	log  *zap.Logger
}

// Option configures a Qualifier.
type Option func(*Qualifier)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Qualifier) { q.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Qualifier) { q.log = l }
}

// New creates a Qualifier.
func New(cfg config.QualifyConfig, deps Deps, opts ...Option) *Qualifier {
	if deps.Build == nil {
		deps.Build = func(*budget.Budget, model.Mode) Collaborators { return Collaborators{} }
	}
	q := &Qualifier{cfg: cfg, deps: deps, now: time.Now, log: zap.L()}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Begin takes the weights lock and records a new run. The returned run
// func performs the batch and releases the lock; it must be called exactly
// once. Begin lets callers hand out the run id before the batch completes.
func (q *Qualifier) Begin(ctx context.Context, mode model.Mode) (*model.Run, func(context.Context) (*Report, error), error) {
	unlock, err := q.deps.Weights.Lock()
	if err != nil {
		return nil, nil, err
	}
	weights := q.deps.Weights.Load()

	run, err := q.deps.Store.CreateRun(ctx, mode, weights.Version)
	if err != nil {
		unlock()
		return nil, nil, eris.Wrap(err, "qualify: create run")
	}

	exec := func(ctx context.Context) (*Report, error) {
		defer unlock()
		return q.execute(ctx, run, weights)
	}
	return run, exec, nil
}

// Run performs one qualification batch in the given mode. Only failing to
// read the seed backlog is returned as an error; every other failure is
// collected in the report.
func (q *Qualifier) Run(ctx context.Context, mode model.Mode) (*Report, error) {
	_, exec, err := q.Begin(ctx, mode)
	if err != nil {
		return nil, err
	}
	return exec(ctx)
}

// batch carries the state of one run between phases.
type batch struct {
	run      *model.Run
	mode     model.Mode
	budget   *budget.Budget
	collab   Collaborators
	log      *zap.Logger
	files    []model.CaseFile
	handled  []string
	errors   []error
	deferred int
}

func (b *batch) fail(errs ...error) {
	for _, err := range errs {
		if err != nil {
			b.errors = append(b.errors, err)
		}
	}
}

// finalize records the case's outcome and marks its seeds handled.
func (b *batch) finalize(cf model.CaseFile, g *corroborate.Group) {
	b.files = append(b.files, cf)
	b.handled = append(b.handled, g.SeedIDs()...)
}

func (q *Qualifier) execute(ctx context.Context, run *model.Run, weights *scoring.Weights) (*Report, error) {
	start := q.now()
	log := q.log.With(zap.String("run_id", run.ID), zap.String("mode", string(run.Mode)))
	log.Info("qualify: starting run", zap.String("weights_version", weights.Version))

	b := &batch{
		run:    run,
		mode:   run.Mode,
		budget: budget.New(q.cfg.OpsLimit, q.cfg.Timeout()),
		log:    log,
	}
	b.collab = q.deps.Build(b.budget, run.Mode)

	seeds, err := q.deps.Store.UnprocessedSeeds(ctx, q.cfg.SeedLimit)
	if err != nil {
		err = eris.Wrap(err, "qualify: load seeds")
		run.Status = model.RunStatusFailed
		run.ErrorCount = 1
		q.finish(ctx, b, start)
		return nil, err
	}
	run.SeedsLoaded = len(seeds)

	if len(seeds) > 0 {
		q.process(ctx, b, seeds, weights)
	} else {
		log.Info("qualify: no unprocessed seeds")
	}

	run.Status = model.RunStatusComplete
	if b.budget.StopReason() != "" || ctx.Err() != nil {
		run.Status = model.RunStatusPartial
		run.StopReason = b.budget.StopReason()
		if run.StopReason == "" {
			run.StopReason = ctx.Err().Error()
		}
	}
	run.ErrorCount = len(b.errors)
	q.finish(ctx, b, start)

	return &Report{Run: *run, CaseFiles: b.files, Errors: b.errors}, nil
}

func (q *Qualifier) process(ctx context.Context, b *batch, seeds []model.Seed, weights *scoring.Weights) {
	groups := phase(b.log, "group", func() []*corroborate.Group { return corroborate.GroupSeeds(seeds) })
	b.run.Groups = len(groups)

	var examples []model.FeedbackGrade
	if q.cfg.FeedbackExamples > 0 {
		ex, err := q.deps.Store.RecentFeedback(ctx, q.cfg.FeedbackExamples)
		if err != nil {
			b.log.Warn("qualify: load feedback examples", zap.Error(err))
		}
		examples = ex
	}
	engine := scoring.NewEngine(weights, b.collab.Classifier, b.budget,
		scoring.WithChunkSize(q.cfg.ClassifierChunkSize),
		scoring.WithExamples(examples),
		scoring.WithLogger(b.log),
	)

	// Verify. Rejected groups are final before any op is spent on them.
	resolutions, errs := phase(b.log, "verify", func() resolved {
		r, e := q.deps.Resolver.Resolve(ctx, groups, q.deps.Rules)
		return resolved{r, e}
	}).split()
	b.fail(errs...)

	var candidates []*scoring.Case
	for _, r := range resolutions {
		c := scoring.NewCase(r.Group, r.Profile, r.Verification)
		if r.Verification.Rejected() {
			c.Scores.V = r.Verification.V
			b.finalize(q.dropped(c, b.run.ID, r.Verification.Reason, nil), r.Group)
			continue
		}
		engine.Prime(c)
		candidates = append(candidates, c)
	}

	// Score. Unaffordable cases are left untouched for the next run.
	scored := phase(b.log, "score", func() scoring.Result { return engine.Score(ctx, candidates) })
	b.fail(scored.Errors...)
	if n := len(scored.Unaffordable); n > 0 {
		b.deferred += n
	}

	// Escalate boundary cases.
	if b.collab.Searcher != nil && len(scored.Scored) > 0 {
		esc := escalate.New(b.collab.Searcher, engine, b.budget, q.cfg.EscalationFloor, q.cfg.Threshold,
			escalate.WithReader(b.collab.Reader),
			escalate.WithConcurrency(q.cfg.SearchConcurrency),
			escalate.WithLogger(b.log),
		)
		er := phase(b.log, "escalate", func() escalate.Result { return esc.Run(ctx, scored.Scored) })
		b.fail(er.Errors...)
	}

	// Gate.
	prior, err := q.deps.Store.QualifiedKeys(ctx)
	if err != nil {
		b.log.Warn("qualify: load qualified keys", zap.Error(err))
		b.fail(eris.Wrap(err, "qualify: load qualified keys"))
	}
	g := gate.New(gate.ConfigForMode(b.mode, q.cfg.Threshold, q.cfg.QualityCutoff, q.cfg.ProductionCap, q.cfg.TestCap),
		b.collab.Assessor, b.budget)
	out := phase(b.log, "gate", func() gate.Outcome { return g.Apply(ctx, scored.Scored, prior) })
	b.fail(out.Errors...)
	b.deferred += len(out.Deferred)

	whyNow := q.whyNow(ctx, b, out.Qualified)

	now := q.now().UTC()
	for _, d := range out.Qualified {
		cf := d.Case.CaseFile(b.run.ID, now)
		cf.Status = model.CaseStatusQualified
		cf.QualifiedAt = &now
		cf.WhyNow = whyNow[d.Case]
		if cf.WhyNow == "" {
			cf.WhyNow = d.Case.Reasoning
		}
		applyVerdict(&cf, d.Verdict)
		b.finalize(cf, d.Case.Group)
	}
	for _, d := range out.Dropped {
		b.finalize(q.dropped(d.Case, b.run.ID, d.Reason, d.Verdict), d.Case.Group)
	}

	q.persist(ctx, b)
}

func (q *Qualifier) dropped(c *scoring.Case, runID, reason string, v *gate.Verdict) model.CaseFile {
	cf := c.CaseFile(runID, q.now().UTC())
	cf.Status = model.CaseStatusDropped
	cf.DropReason = reason
	applyVerdict(&cf, v)
	return cf
}

func applyVerdict(cf *model.CaseFile, v *gate.Verdict) {
	if v == nil {
		return
	}
	score := v.Score
	cf.QualityScore = &score
	cf.SituationSummary = v.SituationSummary
	cf.Rationale = v.Rationale
}

// whyNow spends one op on the why-now pass. Cases without an answer fall
// back to their reasoning.
func (q *Qualifier) whyNow(ctx context.Context, b *batch, qualified []gate.Decision) map[*scoring.Case]string {
	if b.collab.WhyNow == nil || len(qualified) == 0 {
		return nil
	}
	if !b.budget.TryConsume(budget.KindWhyNow) {
		b.log.Info("qualify: why-now pass unaffordable, using reasoning", zap.String("reason", b.budget.StopReason()))
		return nil
	}
	cases := make([]*scoring.Case, len(qualified))
	for i, d := range qualified {
		cases[i] = d.Case
	}
	out, err := b.collab.WhyNow.Write(ctx, cases)
	if err != nil {
		b.log.Warn("qualify: why-now pass failed", zap.Error(err))
		b.fail(eris.Wrap(err, "qualify: why-now"))
		return nil
	}
	return out
}

// persist writes case files, then marks their seeds processed, then
// publishes. Seeds stay unprocessed when their case files could not be
// written.
func (q *Qualifier) persist(ctx context.Context, b *batch) {
	if len(b.files) == 0 {
		return
	}
	if err := q.deps.Store.SaveCaseFiles(ctx, b.files); err != nil {
		b.log.Error("qualify: save case files", zap.Int("case_files", len(b.files)), zap.Error(err))
		b.fail(eris.Wrap(err, "qualify: save case files"))
		b.files = nil
		b.handled = nil
		return
	}
	if err := q.deps.Store.MarkSeedsProcessed(ctx, b.handled); err != nil {
		b.log.Error("qualify: mark seeds processed", zap.Int("seeds", len(b.handled)), zap.Error(err))
		b.fail(eris.Wrap(err, "qualify: mark seeds processed"))
	} else {
		b.run.SeedsHandled = len(b.handled)
	}

	for _, cf := range b.files {
		switch cf.Status {
		case model.CaseStatusQualified:
			b.run.Qualified++
		case model.CaseStatusDropped:
			b.run.Dropped++
		}
	}

	if b.collab.Publisher != nil && b.run.Qualified > 0 {
		res := phase(b.log, "publish", func() publish.Result { return b.collab.Publisher.Publish(ctx, b.files) })
		b.fail(res.Errors...)
		b.log.Info("qualify: published", zap.Int("published", res.Published), zap.Int("failed", len(res.Errors)))
	}
}

// finish closes the run log entry. It runs detached from ctx so a cancelled
// run is still recorded.
func (q *Qualifier) finish(ctx context.Context, b *batch, start time.Time) {
	run := b.run
	end := q.now().UTC()
	run.CompletedAt = &end
	run.Deferred = b.deferred
	run.OpsUsed = b.budget.Used()
	run.OpsByKind = b.budget.Counts()
	run.CostUSD = b.budget.CostUSD()

	if err := q.deps.Store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		b.log.Error("qualify: finish run", zap.Error(err))
	}
	q.deps.Metrics.ObserveRun(run)
	q.deps.Metrics.ObserveCases(b.files)

	b.log.Info("qualify: run finished",
		zap.String("status", string(run.Status)),
		zap.Int("seeds", run.SeedsLoaded),
		zap.Int("handled", run.SeedsHandled),
		zap.Int("groups", run.Groups),
		zap.Int("qualified", run.Qualified),
		zap.Int("dropped", run.Dropped),
		zap.Int("deferred", run.Deferred),
		zap.Int("ops", run.OpsUsed),
		zap.Float64("cost_usd", run.CostUSD),
		zap.Int("errors", run.ErrorCount),
		zap.String("stop_reason", run.StopReason),
		zap.Duration("elapsed", end.Sub(start)),
	)
}

type resolved struct {
	res  []verify.Resolution
	errs []error
}

func (r resolved) split() ([]verify.Resolution, []error) { return r.res, r.errs }

// phase times fn and logs its completion.
func phase[T any](log *zap.Logger, name string, fn func() T) T {
	start := time.Now()
	out := fn()
	log.Info("qualify: phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return out
}
