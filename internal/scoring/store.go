package scoring

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrLocked is returned when another process holds the weights lock.
var ErrLocked = eris.New("scoring: weights store is locked by another process")

// Store reads and writes the weights YAML file. A sibling ".lock" file
// serializes qualification runs and calibration across processes.
type Store struct {
	path string
}

// NewStore creates a store for the weights file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the weights file path.
func (s *Store) Path() string { return s.path }

// Lock takes the cross-process lock without blocking. The returned func
// releases it. Each call opens its own lock file handle, so two holders in
// one process also exclude each other.
func (s *Store) Lock() (func(), error) {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "scoring: create weights dir")
		}
	}
	lock := flock.New(s.path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, eris.Wrap(err, "scoring: acquire weights lock")
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			zap.L().Warn("scoring: release weights lock", zap.Error(err))
		}
	}, nil
}

// Load reads the weights file. A missing, unreadable or corrupt file yields
// the defaults; only the corrupt and unreadable cases are logged.
func (s *Store) Load() *Weights {
	w, err := s.read()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("scoring: weights unreadable, using defaults",
				zap.String("path", s.path), zap.Error(err))
		}
		return Defaults()
	}
	return w
}

func (s *Store) read() (*Weights, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var w Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, eris.Wrap(err, "scoring: parse weights")
	}
	if len(w.Sources) == 0 {
		return nil, eris.New("scoring: weights file has no sources")
	}
	for st, p := range w.Sources {
		if !validPrior(p) {
			return nil, eris.Errorf("scoring: prior for %q out of range", st)
		}
	}
	w.Version = ComputeVersion(w.Sources)
	return &w, nil
}

func validPrior(p Prior) bool {
	in := func(v float64) bool { return v >= 0 && v <= 1 }
	return in(p.E0) && in(p.W0) && in(p.R0)
}

// Save writes w atomically: a temp file in the same directory is renamed
// over the target. Version and UpdatedAt are set on w.
func (s *Store) Save(w *Weights) error {
	w.Version = ComputeVersion(w.Sources)
	w.UpdatedAt = time.Now().UTC()

	data, err := yaml.Marshal(w)
	if err != nil {
		return eris.Wrap(err, "scoring: marshal weights")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "scoring: create temp weights file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "scoring: write temp weights file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "scoring: sync temp weights file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "scoring: close temp weights file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return eris.Wrap(err, "scoring: rename weights file")
	}
	return nil
}
