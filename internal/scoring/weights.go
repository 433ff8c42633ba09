// Package scoring holds the per-source prior weights and the scoring engine
// that turns company groups into E/W/V/R cases.
package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// Prior is the per-source starting point for evidence, will and risk.
type Prior struct {
	E0 float64 `yaml:"e0" json:"e0"`
	W0 float64 `yaml:"w0" json:"w0"`
	R0 float64 `yaml:"r0" json:"r0"`
}

// Weights is the versioned source prior table. A loaded Weights value is
// never mutated during a run; the calibrator works on a Clone.
type Weights struct {
	Version   string           `yaml:"version" json:"version"`
	UpdatedAt time.Time        `yaml:"updated_at" json:"updated_at"`
	Sources   map[string]Prior `yaml:"sources" json:"sources"`
}

var defaultPriors = map[string]Prior{
	model.SourceBronnysund:            {E0: 0.80, W0: 0.70, R0: 0.10},
	model.SourceBrregStatusUpdate:     {E0: 0.85, W0: 0.75, R0: 0.10},
	model.SourceRegistryStatus:        {E0: 0.85, W0: 0.75, R0: 0.10},
	model.SourceBrregRoleChange:       {E0: 0.80, W0: 0.70, R0: 0.15},
	model.SourceBrregKunngjoringer:    {E0: 0.70, W0: 0.60, R0: 0.10},
	model.SourceNewsweb:               {E0: 0.70, W0: 0.60, R0: 0.10},
	model.SourceMynewsdesk:            {E0: 0.60, W0: 0.50, R0: 0.20},
	model.SourceDNRSS:                 {E0: 0.60, W0: 0.40, R0: 0.20},
	model.SourceE24:                   {E0: 0.60, W0: 0.40, R0: 0.20},
	model.SourceFinansavisen:          {E0: 0.60, W0: 0.40, R0: 0.20},
	model.SourceNTB:                   {E0: 0.50, W0: 0.40, R0: 0.30},
	model.SourceNewsWire:              {E0: 0.50, W0: 0.40, R0: 0.30},
	model.SourceFinn:                  {E0: 0.30, W0: 0.30, R0: 0.50},
	model.SourceLinkedInExecMove:      {E0: 0.50, W0: 0.50, R0: 0.30},
	model.SourceLinkedInCompanySignal: {E0: 0.40, W0: 0.40, R0: 0.40},
	model.SourceDefault:               {E0: 0.40, W0: 0.40, R0: 0.30},
}

// Defaults returns a fresh copy of the built-in prior table.
func Defaults() *Weights {
	w := &Weights{Sources: make(map[string]Prior, len(defaultPriors))}
	for k, v := range defaultPriors {
		w.Sources[k] = v
	}
	w.Version = ComputeVersion(w.Sources)
	return w
}

// Prior returns the row for sourceType, falling back to the table's default
// row and then to the built-in default.
func (w *Weights) Prior(sourceType string) Prior {
	if w != nil {
		if p, ok := w.Sources[sourceType]; ok {
			return p
		}
		if p, ok := w.Sources[model.SourceDefault]; ok {
			return p
		}
	}
	return defaultPriors[model.SourceDefault]
}

// Clone returns a deep copy.
func (w *Weights) Clone() *Weights {
	c := &Weights{Version: w.Version, UpdatedAt: w.UpdatedAt, Sources: make(map[string]Prior, len(w.Sources))}
	for k, v := range w.Sources {
		c.Sources[k] = v
	}
	return c
}

// SourceTypes returns the table's source types in sorted order.
func (w *Weights) SourceTypes() []string {
	out := make([]string, 0, len(w.Sources))
	for k := range w.Sources {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ComputeVersion hashes the table. encoding/json sorts map keys, so equal
// tables always hash equally.
func ComputeVersion(sources map[string]Prior) string {
	b, err := json.Marshal(sources)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}
