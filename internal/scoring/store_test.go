package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-qualifier/internal/model"
)

func TestStore_LoadMissingUsesDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "weights.yaml"))
	w := s.Load()
	assert.Equal(t, Defaults().Sources, w.Sources)
}

func TestStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	s := NewStore(path)

	w := Defaults()
	w.Sources[model.SourceE24] = Prior{E0: 0.63, W0: 0.42, R0: 0.20}
	require.NoError(t, s.Save(w))
	assert.False(t, w.UpdatedAt.IsZero())

	loaded := s.Load()
	assert.Equal(t, w.Sources, loaded.Sources)
	assert.Equal(t, w.Version, loaded.Version)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version:")
	assert.Contains(t, string(data), "sources:")

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestStore_LoadCorruptUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources: [this is: not a map"), 0o644))

	w := NewStore(path).Load()
	assert.Equal(t, Defaults().Sources, w.Sources)
}

func TestStore_LoadOutOfRangeUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	body := "sources:\n  e24:\n    e0: 1.7\n    w0: 0.4\n    r0: 0.2\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	w := NewStore(path).Load()
	assert.Equal(t, 0.60, w.Prior(model.SourceE24).E0)
}

func TestStore_LockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")

	unlock, err := NewStore(path).Lock()
	require.NoError(t, err)

	_, err = NewStore(path).Lock()
	assert.ErrorIs(t, err, ErrLocked)

	unlock()

	unlock2, err := NewStore(path).Lock()
	require.NoError(t, err)
	unlock2()
}
