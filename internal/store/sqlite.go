package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS seeds (
	id           TEXT PRIMARY KEY,
	company_name TEXT NOT NULL DEFAULT '',
	org_number   TEXT NOT NULL DEFAULT '',
	source_type  TEXT NOT NULL DEFAULT '',
	source_url   TEXT NOT NULL DEFAULT '',
	trigger_type TEXT NOT NULL DEFAULT '',
	excerpt      TEXT NOT NULL DEFAULT '',
	raw_content  TEXT NOT NULL DEFAULT '',
	collected_at DATETIME NOT NULL,
	processed    INTEGER NOT NULL DEFAULT 0,
	processed_at DATETIME
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
	confidence     REAL NOT NULL,
	stars          INTEGER NOT NULL,
	notion_page_id TEXT NOT NULL DEFAULT '',
	data           TEXT NOT NULL,
	created_at     DATETIME NOT NULL,
	qualified_at   DATETIME
);

CREATE TABLE IF NOT EXISTS feedback (
	id           TEXT PRIMARY KEY,
	case_file_id TEXT NOT NULL UNIQUE,
	company_name TEXT NOT NULL DEFAULT '',
	trigger_type TEXT NOT NULL DEFAULT '',
	source_type  TEXT NOT NULL,
	grade        TEXT NOT NULL,
	graded_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback_consumed (
	feedback_id TEXT PRIMARY KEY,
	consumed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS registry_cache (
	cache_key  TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	mode            TEXT NOT NULL,
	status          TEXT NOT NULL,
	weights_version TEXT NOT NULL DEFAULT '',
	data            TEXT NOT NULL,
	started_at      DATETIME NOT NULL,
	completed_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_seeds_unprocessed ON seeds(processed, collected_at);
CREATE INDEX IF NOT EXISTS idx_case_files_status ON case_files(status, created_at);
CREATE INDEX IF NOT EXISTS idx_case_files_run ON case_files(run_id);
CREATE INDEX IF NOT EXISTS idx_case_files_key ON case_files(org_number, trigger_type, role);
CREATE INDEX IF NOT EXISTS idx_feedback_graded_at ON feedback(graded_at);
CREATE INDEX IF NOT EXISTS idx_registry_cache_expires_at ON registry_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Seeds ---

func (s *SQLiteStore) InsertSeeds(ctx context.Context, seeds []model.Seed) (int, error) {
	if len(seeds) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert seeds")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO seeds
		(id, company_name, org_number, source_type, source_url, trigger_type, excerpt, raw_content, collected_at, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert seeds")
	}
	defer stmt.Close() //nolint:errcheck

	inserted := 0
	for _, sd := range seeds {
		sd = normalizeSeed(sd, s.now())
		res, err := stmt.ExecContext(ctx, sd.ID, sd.CompanyName, sd.OrgNumber, sd.SourceType, sd.SourceURL,
			string(sd.Trigger), sd.Excerpt, sd.RawContent, sd.CollectedAt)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert seed %s", sd.ID)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert seeds")
	}
	return inserted, nil
}

func (s *SQLiteStore) UnprocessedSeeds(ctx context.Context, limit int) ([]model.Seed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_name, org_number, source_type, source_url, trigger_type, excerpt, raw_content, collected_at
		 FROM seeds WHERE processed = 0 ORDER BY collected_at ASC, id ASC LIMIT ?`,
		limitOr(limit, 100),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: unprocessed seeds")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Seed
	for rows.Next() {
		var sd model.Seed
		var trigger string
		if err := rows.Scan(&sd.ID, &sd.CompanyName, &sd.OrgNumber, &sd.SourceType, &sd.SourceURL,
			&trigger, &sd.Excerpt, &sd.RawContent, &sd.CollectedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan seed")
		}
		sd.Trigger = model.Trigger(trigger)
		out = append(out, sd)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: unprocessed seeds iterate")
}

func (s *SQLiteStore) MarkSeedsProcessed(ctx context.Context, ids []string) error {
	now := s.now().UTC()
	for _, w := range chunks(len(ids), WriteChunk) {
		part := ids[w[0]:w[1]]
		args := make([]any, 0, len(part)+1)
		args = append(args, now)
		for _, id := range part {
			args = append(args, id)
		}
		_, err := s.db.ExecContext(ctx,
			`UPDATE seeds SET processed = 1, processed_at = ? WHERE id IN (`+placeholders(len(part))+`)`,
			args...,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: mark seeds processed")
		}
	}
	return nil
}

// --- Case files ---

// SaveCaseFiles upserts case files, assigning ids to new ones in place.
func (s *SQLiteStore) SaveCaseFiles(ctx context.Context, cfs []model.CaseFile) error {
	for _, w := range chunks(len(cfs), WriteChunk) {
		if err := s.saveCaseChunk(ctx, cfs[w[0]:w[1]]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) saveCaseChunk(ctx context.Context, cfs []model.CaseFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save case files")
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range cfs {
		row, err := caseFileRow(&cfs[i], s.now())
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO case_files
			(id, run_id, company_name, org_number, trigger_type, role, source_type, status, drop_reason,
			 confidence, stars, notion_page_id, data, created_at, qualified_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status, drop_reason = excluded.drop_reason,
				confidence = excluded.confidence, stars = excluded.stars,
				notion_page_id = excluded.notion_page_id, data = excluded.data,
				qualified_at = excluded.qualified_at`,
			row...,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save case file %s", cfs[i].ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit case files")
}

const caseFileColumns = `data, notion_page_id`

func (s *SQLiteStore) ListCaseFiles(ctx context.Context, filter CaseFilter) ([]model.CaseFile, error) {
	query := `SELECT ` + caseFileColumns + ` FROM case_files WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	query += ` ORDER BY created_at DESC, confidence DESC LIMIT ?`
	args = append(args, limitOr(filter.Limit, 100))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list case files")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CaseFile
	for rows.Next() {
		cf, err := scanCaseFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cf)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list case files iterate")
}

func (s *SQLiteStore) GetCaseFile(ctx context.Context, id string) (*model.CaseFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+caseFileColumns+` FROM case_files WHERE id = ?`, id)
	cf, err := scanCaseFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cf, err
}

func (s *SQLiteStore) QualifiedKeys(ctx context.Context) (map[model.DedupKey]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT org_number, trigger_type, role FROM case_files WHERE status = ? AND org_number <> ''`,
		string(model.CaseStatusQualified),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: qualified keys")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[model.DedupKey]bool)
	for rows.Next() {
		var org, trigger, role string
		if err := rows.Scan(&org, &trigger, &role); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan qualified key")
		}
		out[model.DedupKey{OrgNumber: org, Trigger: model.Trigger(trigger), Role: model.Role(role)}] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: qualified keys iterate")
}

func (s *SQLiteStore) SetNotionPage(ctx context.Context, caseID, pageID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE case_files SET notion_page_id = ? WHERE id = ?`, pageID, caseID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set notion page %s", caseID)
	}
	return checkRowsAffected(res)
}

// --- Feedback ---

// SaveFeedback records a grade for a case file. Regrading with a different
// grade replaces the row under a new id, so it counts again at the next
// calibration; repeating the same grade is a no-op.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, caseID string, grade model.Grade) (*model.FeedbackGrade, error) {
	cf, err := s.GetCaseFile(ctx, caseID)
	if err != nil {
		return nil, err
	}
	fb := newFeedback(cf, grade, s.now())

	_, err = s.db.ExecContext(ctx, `INSERT INTO feedback
		(id, case_file_id, company_name, trigger_type, source_type, grade, graded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_file_id) DO UPDATE SET
			id = excluded.id, grade = excluded.grade, graded_at = excluded.graded_at
		WHERE feedback.grade <> excluded.grade`,
		fb.ID, fb.CaseFileID, fb.CompanyName, string(fb.Trigger), fb.SourceType, string(fb.Grade), fb.GradedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: save feedback %s", caseID)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE case_file_id = ?`, caseID)
	return scanFeedback(row)
}

const feedbackColumns = `id, case_file_id, company_name, trigger_type, source_type, grade, graded_at`

func (s *SQLiteStore) UnconsumedFeedback(ctx context.Context, limit int) ([]model.FeedbackGrade, error) {
	return s.queryFeedback(ctx, `SELECT `+feedbackColumns+` FROM feedback f
		WHERE NOT EXISTS (SELECT 1 FROM feedback_consumed c WHERE c.feedback_id = f.id)
		ORDER BY graded_at ASC LIMIT ?`, limitOr(limit, 500))
}

func (s *SQLiteStore) RecentFeedback(ctx context.Context, limit int) ([]model.FeedbackGrade, error) {
	return s.queryFeedback(ctx, `SELECT `+feedbackColumns+` FROM feedback ORDER BY graded_at DESC LIMIT ?`, limitOr(limit, 5))
}

func (s *SQLiteStore) queryFeedback(ctx context.Context, query string, args ...any) ([]model.FeedbackGrade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query feedback")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FeedbackGrade
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fb)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query feedback iterate")
}

func (s *SQLiteStore) MarkFeedbackConsumed(ctx context.Context, ids []string, at time.Time) error {
	for _, w := range chunks(len(ids), WriteChunk) {
		part := ids[w[0]:w[1]]
		args := make([]any, 0, 2*len(part))
		values := make([]string, len(part))
		for i, id := range part {
			values[i] = "(?, ?)"
			args = append(args, id, at.UTC())
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO feedback_consumed (feedback_id, consumed_at) VALUES `+strings.Join(values, ", "),
			args...,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: mark feedback consumed")
		}
	}
	return nil
}

func (s *SQLiteStore) LastCalibration(ctx context.Context) (*time.Time, error) {
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(consumed_at) FROM feedback_consumed`).Scan(&last)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last calibration")
	}
	if !last.Valid || last.String == "" {
		return nil, nil
	}
	t, err := parseSQLiteTime(last.String)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse last calibration")
	}
	return &t, nil
}

// --- Registry cache ---

func (s *SQLiteStore) GetCachedProfile(ctx context.Context, key string) (*model.RegistryProfile, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM registry_cache WHERE cache_key = ? AND expires_at > ?`,
		key, s.now().UTC(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached profile")
	}
	var p model.RegistryProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached profile")
	}
	return &p, nil
}

func (s *SQLiteStore) SetCachedProfile(ctx context.Context, key string, p *model.RegistryProfile, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}
	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO registry_cache (cache_key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, string(data), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached profile")
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, mode model.Mode, weightsVersion string) (*model.Run, error) {
	run := newRun(mode, weightsVersion, s.now())
	data, err := json.Marshal(run)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, status, weights_version, data, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Mode), string(run.Status), run.WeightsVer, string(data), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	if run.CompletedAt == nil {
		now := s.now().UTC()
		run.CompletedAt = &now
	}
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, data = ?, completed_at = ? WHERE id = ?`,
		string(run.Status), string(data), *run.CompletedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM runs ORDER BY started_at DESC LIMIT ?`, limitOr(limit, 20))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Run
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		var r model.Run
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCaseFile(row scannable) (*model.CaseFile, error) {
	var data, pageID string
	if err := row.Scan(&data, &pageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan case file")
	}
	return decodeCaseFile([]byte(data), pageID)
}

func scanFeedback(row scannable) (*model.FeedbackGrade, error) {
	var fb model.FeedbackGrade
	var trigger, grade string
	if err := row.Scan(&fb.ID, &fb.CaseFileID, &fb.CompanyName, &trigger, &fb.SourceType, &grade, &fb.GradedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan feedback")
	}
	fb.Trigger = model.Trigger(trigger)
	fb.Grade = model.Grade(grade)
	return &fb, nil
}

// parseSQLiteTime parses the text form aggregates return for DATETIME
// columns.
func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized time %q", s)
}

// shared row builders

func normalizeSeed(sd model.Seed, now time.Time) model.Seed {
	if sd.ID == "" {
		sd.ID = uuid.New().String()
	}
	sd.OrgNumber = sd.NormalizedOrgNumber()
	if sd.CollectedAt.IsZero() {
		sd.CollectedAt = now
	}
	sd.CollectedAt = sd.CollectedAt.UTC()
	return sd
}

// caseFileRow assigns an id when missing and returns the insert arguments
// in case_files column order.
func caseFileRow(cf *model.CaseFile, now time.Time) ([]any, error) {
	if cf.ID == "" {
		cf.ID = uuid.New().String()
	}
	if cf.CreatedAt.IsZero() {
		cf.CreatedAt = now.UTC()
	}
	if cf.Status == model.CaseStatusQualified && cf.QualifiedAt == nil {
		t := cf.CreatedAt
		cf.QualifiedAt = &t
	}
	data, err := json.Marshal(cf)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal case file")
	}
	var qualifiedAt any
	if cf.QualifiedAt != nil {
		qualifiedAt = cf.QualifiedAt.UTC()
	}
	return []any{
		cf.ID, cf.RunID, cf.CompanyName, model.NormalizeOrgNumber(cf.OrgNumber), string(cf.Trigger),
		string(cf.SuggestedRole), cf.SourceType, string(cf.Status), cf.DropReason,
		cf.Confidence, cf.Stars, cf.NotionPageID, data, cf.CreatedAt.UTC(), qualifiedAt,
	}, nil
}

func decodeCaseFile(data []byte, pageID string) (*model.CaseFile, error) {
	var cf model.CaseFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal case file")
	}
	if pageID != "" {
		cf.NotionPageID = pageID
	}
	return &cf, nil
}

func newFeedback(cf *model.CaseFile, grade model.Grade, now time.Time) model.FeedbackGrade {
	return model.FeedbackGrade{
		ID:          uuid.New().String(),
		CaseFileID:  cf.ID,
		CompanyName: cf.CompanyName,
		Trigger:     cf.Trigger,
		SourceType:  cf.SourceType,
		Grade:       grade,
		GradedAt:    now.UTC(),
	}
}

func newRun(mode model.Mode, weightsVersion string, now time.Time) *model.Run {
	return &model.Run{
		ID:         uuid.New().String(),
		Mode:       mode,
		Status:     model.RunStatusRunning,
		WeightsVer: weightsVersion,
		StartedAt:  now.UTC(),
	}
}
