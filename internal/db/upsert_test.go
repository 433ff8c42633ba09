package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "case_files",
		Columns:      []string{"id", "company_name"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "case_files",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "case_files",
		Columns: []string{"id", "company_name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_seeds"}, []string{"id", "company_name"}).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "seeds",
		Columns:      []string{"id", "company_name"},
		ConflictKeys: []string{"id"},
		SkipExisting: true,
	}, [][]any{{"s1", "Acme AS"}, {"s2", "Beta ASA"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_seeds"}, []string{"id"}).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "seeds",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"s1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for seeds")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      UpsertConfig
		expected string
	}{
		{
			name: "update non-key columns",
			cfg: UpsertConfig{
				Table:        "case_files",
				Columns:      []string{"id", "status"},
				ConflictKeys: []string{"id"},
			},
			expected: `INSERT INTO "case_files" ("id", "status") SELECT "id", "status" FROM "_tmp" ON CONFLICT ("id") DO UPDATE SET "status" = EXCLUDED."status"`,
		},
		{
			name: "skip existing",
			cfg: UpsertConfig{
				Table:        "seeds",
				Columns:      []string{"id", "company_name"},
				ConflictKeys: []string{"id"},
				SkipExisting: true,
			},
			expected: `INSERT INTO "seeds" ("id", "company_name") SELECT "id", "company_name" FROM "_tmp" ON CONFLICT ("id") DO NOTHING`,
		},
		{
			name: "only key columns",
			cfg: UpsertConfig{
				Table:        "feedback_consumed",
				Columns:      []string{"feedback_id"},
				ConflictKeys: []string{"feedback_id"},
			},
			expected: `INSERT INTO "feedback_consumed" ("feedback_id") SELECT "feedback_id" FROM "_tmp" ON CONFLICT ("feedback_id") DO NOTHING`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, upsertSQL(tt.cfg, "_tmp"))
		})
	}
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"seeds", `"seeds"`},
		{"public.case_files", `"public"."case_files"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "trigger", "role"`, quoteAndJoin([]string{"id", "trigger", "role"}))
}
