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

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "seeds", []string{"id", "company_name"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"feedback_consumed"}, []string{"feedback_id", "consumed_at"}).WillReturnResult(3)

	rows := [][]any{{"f1", "t"}, {"f2", "t"}, {"f3", "t"}}
	n, err := CopyFrom(context.Background(), mock, "feedback_consumed", []string{"feedback_id", "consumed_at"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"seeds"}, []string{"id"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "seeds", []string{"id"}, [][]any{{"s1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO seeds")
	assert.NoError(t, mock.ExpectationsWereMet())
}
