package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-qualifier/internal/db"
	"github.com/sells-group/lead-qualifier/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS seeds (
	id           TEXT PRIMARY KEY,
	company_name TEXT NOT NULL DEFAULT '',
	org_number   TEXT NOT NULL DEFAULT '',
	source_type  TEXT NOT NULL DEFAULT '',
	source_url   TEXT NOT NULL DEFAULT '',
	trigger_type TEXT NOT NULL DEFAULT '',
	excerpt      TEXT NOT NULL DEFAULT '',
	raw_content  TEXT NOT NULL DEFAULT '',
	collected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed    BOOLEAN NOT NULL DEFAULT false,
	processed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS case_files (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	company_name   TEXT NOT NULL,
	org_number     TEXT NOT NULL DEFAULT '',
	trigger_type   TEXT NOT NULL,
	role           TEXT NOT NULL,
	source_type    TEXT NOT NULL,
	status         TEXT NOT NULL,
	drop_reason    TEXT NOT NULL DEFAULT '',
	confidence     DOUBLE PRECISION NOT NULL,
	stars          INTEGER NOT NULL,
	notion_page_id TEXT NOT NULL DEFAULT '',
	data           JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	qualified_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS feedback (
	id           TEXT PRIMARY KEY,
	case_file_id TEXT NOT NULL UNIQUE,
	company_name TEXT NOT NULL DEFAULT '',
	trigger_type TEXT NOT NULL DEFAULT '',
	source_type  TEXT NOT NULL,
	grade        TEXT NOT NULL,
	graded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feedback_consumed (
	feedback_id TEXT PRIMARY KEY,
	consumed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS registry_cache (
	cache_key  TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	mode            TEXT NOT NULL,
	status          TEXT NOT NULL,
	weights_version TEXT NOT NULL DEFAULT '',
	data            JSONB NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_seeds_unprocessed ON seeds(collected_at) WHERE NOT processed;
CREATE INDEX IF NOT EXISTS idx_case_files_status ON case_files(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_case_files_run ON case_files(run_id);
CREATE INDEX IF NOT EXISTS idx_case_files_key ON case_files(org_number, trigger_type, role) WHERE status = 'qualified';
CREATE INDEX IF NOT EXISTS idx_feedback_graded_at ON feedback(graded_at);
CREATE INDEX IF NOT EXISTS idx_registry_cache_expires_at ON registry_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// --- Seeds ---

var seedColumns = []string{"id", "company_name", "org_number", "source_type", "source_url", "trigger_type", "excerpt", "raw_content", "collected_at"}

// InsertSeeds bulk-inserts seeds, skipping ids already present.
func (s *PostgresStore) InsertSeeds(ctx context.Context, seeds []model.Seed) (int, error) {
	rows := make([][]any, 0, len(seeds))
	for _, sd := range seeds {
		sd = normalizeSeed(sd, s.clock())
		rows = append(rows, []any{sd.ID, sd.CompanyName, sd.OrgNumber, sd.SourceType, sd.SourceURL,
			string(sd.Trigger), sd.Excerpt, sd.RawContent, sd.CollectedAt})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "seeds",
		Columns:      seedColumns,
		ConflictKeys: []string{"id"},
		SkipExisting: true,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert seeds")
	}
	return int(n), nil
}

func (s *PostgresStore) UnprocessedSeeds(ctx context.Context, limit int) ([]model.Seed, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_name, org_number, source_type, source_url, trigger_type, excerpt, raw_content, collected_at
		 FROM seeds WHERE NOT processed ORDER BY collected_at ASC, id ASC LIMIT $1`,
		limitOr(limit, 100),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: unprocessed seeds")
	}
	defer rows.Close()

	var out []model.Seed
	for rows.Next() {
		var sd model.Seed
		var trigger string
		if err := rows.Scan(&sd.ID, &sd.CompanyName, &sd.OrgNumber, &sd.SourceType, &sd.SourceURL,
			&trigger, &sd.Excerpt, &sd.RawContent, &sd.CollectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan seed")
		}
		sd.Trigger = model.Trigger(trigger)
		out = append(out, sd)
	}
	return out, eris.Wrap(rows.Err(), "postgres: unprocessed seeds iterate")
}

func (s *PostgresStore) MarkSeedsProcessed(ctx context.Context, ids []string) error {
	now := s.clock().UTC()
	for _, w := range chunks(len(ids), WriteChunk) {
		_, err := s.pool.Exec(ctx,
			`UPDATE seeds SET processed = true, processed_at = $1 WHERE id = ANY($2)`,
			now, ids[w[0]:w[1]],
		)
		if err != nil {
			return eris.Wrap(err, "postgres: mark seeds processed")
		}
	}
	return nil
}

// --- Case files ---

var caseFileColumnList = []string{
	"id", "run_id", "company_name", "org_number", "trigger_type", "role", "source_type", "status", "drop_reason",
	"confidence", "stars", "notion_page_id", "data", "created_at", "qualified_at",
}

// SaveCaseFiles upserts case files in chunks, assigning ids to new ones in
// place.
func (s *PostgresStore) SaveCaseFiles(ctx context.Context, cfs []model.CaseFile) error {
	for _, w := range chunks(len(cfs), WriteChunk) {
		rows := make([][]any, 0, w[1]-w[0])
		for i := w[0]; i < w[1]; i++ {
			row, err := caseFileRow(&cfs[i], s.clock())
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
			Table:        "case_files",
			Columns:      caseFileColumnList,
			ConflictKeys: []string{"id"},
			UpdateCols:   []string{"status", "drop_reason", "confidence", "stars", "notion_page_id", "data", "qualified_at"},
		}, rows); err != nil {
			return eris.Wrap(err, "postgres: save case files")
		}
	}
	return nil
}

func (s *PostgresStore) ListCaseFiles(ctx context.Context, filter CaseFilter) ([]model.CaseFile, error) {
	query := `SELECT data, notion_page_id FROM case_files WHERE ($1 = '' OR status = $1) AND ($2 = '' OR run_id = $2)
		ORDER BY created_at DESC, confidence DESC LIMIT $3`
	rows, err := s.pool.Query(ctx, query, string(filter.Status), filter.RunID, limitOr(filter.Limit, 100))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list case files")
	}
	defer rows.Close()

	var out []model.CaseFile
	for rows.Next() {
		var data []byte
		var pageID string
		if err := rows.Scan(&data, &pageID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan case file")
		}
		cf, err := decodeCaseFile(data, pageID)
		if err != nil {
			return nil, err
		}
		out = append(out, *cf)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list case files iterate")
}

func (s *PostgresStore) GetCaseFile(ctx context.Context, id string) (*model.CaseFile, error) {
	var data []byte
	var pageID string
	err := s.pool.QueryRow(ctx, `SELECT data, notion_page_id FROM case_files WHERE id = $1`, id).Scan(&data, &pageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get case file %s", id)
	}
	return decodeCaseFile(data, pageID)
}

func (s *PostgresStore) QualifiedKeys(ctx context.Context) (map[model.DedupKey]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT org_number, trigger_type, role FROM case_files WHERE status = $1 AND org_number <> ''`,
		string(model.CaseStatusQualified),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: qualified keys")
	}
	defer rows.Close()

	out := make(map[model.DedupKey]bool)
	for rows.Next() {
		var org, trigger, role string
		if err := rows.Scan(&org, &trigger, &role); err != nil {
			return nil, eris.Wrap(err, "postgres: scan qualified key")
		}
		out[model.DedupKey{OrgNumber: org, Trigger: model.Trigger(trigger), Role: model.Role(role)}] = true
	}
	return out, eris.Wrap(rows.Err(), "postgres: qualified keys iterate")
}

func (s *PostgresStore) SetNotionPage(ctx context.Context, caseID, pageID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE case_files SET notion_page_id = $1 WHERE id = $2`, pageID, caseID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set notion page %s", caseID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Feedback ---

// SaveFeedback records a grade for a case file. A changed grade replaces the
// row under a new id; a repeated grade is a no-op.
func (s *PostgresStore) SaveFeedback(ctx context.Context, caseID string, grade model.Grade) (*model.FeedbackGrade, error) {
	cf, err := s.GetCaseFile(ctx, caseID)
	if err != nil {
		return nil, err
	}
	fb := newFeedback(cf, grade, s.clock())

	row := s.pool.QueryRow(ctx, `INSERT INTO feedback
		(id, case_file_id, company_name, trigger_type, source_type, grade, graded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (case_file_id) DO UPDATE SET
			id = EXCLUDED.id, grade = EXCLUDED.grade, graded_at = EXCLUDED.graded_at
		WHERE feedback.grade <> EXCLUDED.grade
		RETURNING `+feedbackColumns,
		fb.ID, fb.CaseFileID, fb.CompanyName, string(fb.Trigger), fb.SourceType, string(fb.Grade), fb.GradedAt,
	)
	saved, err := scanPgFeedback(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Same grade as before: nothing was written.
		row = s.pool.QueryRow(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE case_file_id = $1`, caseID)
		saved, err = scanPgFeedback(row)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: save feedback %s", caseID)
	}
	return saved, nil
}

func (s *PostgresStore) UnconsumedFeedback(ctx context.Context, limit int) ([]model.FeedbackGrade, error) {
	return s.queryFeedback(ctx, `SELECT `+feedbackColumns+` FROM feedback f
		WHERE NOT EXISTS (SELECT 1 FROM feedback_consumed c WHERE c.feedback_id = f.id)
		ORDER BY graded_at ASC LIMIT $1`, limitOr(limit, 500))
}

func (s *PostgresStore) RecentFeedback(ctx context.Context, limit int) ([]model.FeedbackGrade, error) {
	return s.queryFeedback(ctx, `SELECT `+feedbackColumns+` FROM feedback ORDER BY graded_at DESC LIMIT $1`, limitOr(limit, 5))
}

func (s *PostgresStore) queryFeedback(ctx context.Context, query string, args ...any) ([]model.FeedbackGrade, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query feedback")
	}
	defer rows.Close()

	var out []model.FeedbackGrade
	for rows.Next() {
		fb, err := scanPgFeedback(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		out = append(out, *fb)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query feedback iterate")
}

// MarkFeedbackConsumed copies the consumed ids in chunks. Callers only pass
// ids read as unconsumed under the weights lock.
func (s *PostgresStore) MarkFeedbackConsumed(ctx context.Context, ids []string, at time.Time) error {
	for _, w := range chunks(len(ids), WriteChunk) {
		rows := make([][]any, 0, w[1]-w[0])
		for _, id := range ids[w[0]:w[1]] {
			rows = append(rows, []any{id, at.UTC()})
		}
		if _, err := db.CopyFrom(ctx, s.pool, "feedback_consumed", []string{"feedback_id", "consumed_at"}, rows); err != nil {
			return eris.Wrap(err, "postgres: mark feedback consumed")
		}
	}
	return nil
}

func (s *PostgresStore) LastCalibration(ctx context.Context) (*time.Time, error) {
	var last *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(consumed_at) FROM feedback_consumed`).Scan(&last); err != nil {
		return nil, eris.Wrap(err, "postgres: last calibration")
	}
	return last, nil
}

// --- Registry cache ---

func (s *PostgresStore) GetCachedProfile(ctx context.Context, key string) (*model.RegistryProfile, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM registry_cache WHERE cache_key = $1 AND expires_at > $2`,
		key, s.clock().UTC(),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached profile")
	}
	var p model.RegistryProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached profile")
	}
	return &p, nil
}

func (s *PostgresStore) SetCachedProfile(ctx context.Context, key string, p *model.RegistryProfile, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	now := s.clock().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO registry_cache (cache_key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cache_key) DO UPDATE SET data = EXCLUDED.data, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		key, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached profile")
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, mode model.Mode, weightsVersion string) (*model.Run, error) {
	run := newRun(mode, weightsVersion, s.clock())
	data, err := json.Marshal(run)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, mode, status, weights_version, data, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, string(run.Mode), string(run.Status), run.WeightsVer, data, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.Run) error {
	if run.CompletedAt == nil {
		now := s.clock().UTC()
		run.CompletedAt = &now
	}
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, data = $2, completed_at = $3 WHERE id = $4`,
		string(run.Status), data, *run.CompletedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM runs ORDER BY started_at DESC LIMIT $1`, limitOr(limit, 20))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		var r model.Run
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgFeedback(row pgx.Row) (*model.FeedbackGrade, error) {
	var fb model.FeedbackGrade
	var trigger, grade string
	if err := row.Scan(&fb.ID, &fb.CaseFileID, &fb.CompanyName, &trigger, &fb.SourceType, &grade, &fb.GradedAt); err != nil {
		return nil, err
	}
	fb.Trigger = model.Trigger(trigger)
	fb.Grade = model.Grade(grade)
	return &fb, nil
}
