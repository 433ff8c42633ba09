package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-qualifier/internal/config"
)

func TestChunks(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
		want [][2]int
	}{
		{"empty", 0, 10, nil},
		{"under one chunk", 3, 10, [][2]int{{0, 3}}},
		{"exact", 10, 10, [][2]int{{0, 10}}},
		{"remainder", 23, 10, [][2]int{{0, 10}, {10, 20}, {20, 23}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunks(tt.n, tt.size))
		})
	}
}

func TestLimitOr(t *testing.T) {
	assert.Equal(t, 5, limitOr(0, 5))
	assert.Equal(t, 5, limitOr(-1, 5))
	assert.Equal(t, 7, limitOr(7, 5))
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "leads.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrations are idempotent")
	assert.NoError(t, s.Ping(ctx))

	_, ok := s.(*SQLiteStore)
	assert.True(t, ok)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown driver "mysql"`)
}

func TestOpen_PostgresBadURL(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", DatabaseURL: "://not a url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: parse config")
}
