// Package store persists seeds, case files, feedback, the registry cache and
// the run log. SQLite serves local runs; Postgres serves the server.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/internal/model"
)

// WriteChunk is the most records written in one call.
const WriteChunk = 10

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// CaseFilter specifies criteria for listing case files.
type CaseFilter struct {
	Status model.CaseStatus `json:"status,omitempty"`
	RunID  string           `json:"run_id,omitempty"`
	Limit  int              `json:"limit,omitempty"`
}

// Store defines the persistence interface of the qualifier.
type Store interface {
	// Seeds
	InsertSeeds(ctx context.Context, seeds []model.Seed) (int, error)
	UnprocessedSeeds(ctx context.Context, limit int) ([]model.Seed, error)
	MarkSeedsProcessed(ctx context.Context, ids []string) error

	// Case files
	SaveCaseFiles(ctx context.Context, cfs []model.CaseFile) error
	ListCaseFiles(ctx context.Context, filter CaseFilter) ([]model.CaseFile, error)
	GetCaseFile(ctx context.Context, id string) (*model.CaseFile, error)
	QualifiedKeys(ctx context.Context) (map[model.DedupKey]bool, error)
	SetNotionPage(ctx context.Context, caseID, pageID string) error

	// Feedback
	SaveFeedback(ctx context.Context, caseID string, grade model.Grade) (*model.FeedbackGrade, error)
	UnconsumedFeedback(ctx context.Context, limit int) ([]model.FeedbackGrade, error)
	RecentFeedback(ctx context.Context, limit int) ([]model.FeedbackGrade, error)
	MarkFeedbackConsumed(ctx context.Context, ids []string, at time.Time) error
	LastCalibration(ctx context.Context) (*time.Time, error)

	// Registry cache
	GetCachedProfile(ctx context.Context, key string) (*model.RegistryProfile, error)
	SetCachedProfile(ctx context.Context, key string, p *model.RegistryProfile, ttl time.Duration) error

	// Runs
	CreateRun(ctx context.Context, mode model.Mode, weightsVersion string) (*model.Run, error)
	FinishRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by the config's driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "":
		s, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// chunks splits n items into [start, end) windows of at most size.
func chunks(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
