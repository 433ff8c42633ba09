package corroborate

import "github.com/sells-group/lead-qualifier/internal/model"

// independence holds how credible and independent each source type is.
// Official registry sources rank highest, generic wire and job sources lowest.
var independence = map[string]float64{
	model.SourceBronnysund:            1.0,
	model.SourceBrregStatusUpdate:     1.0,
	model.SourceRegistryStatus:        1.0,
	model.SourceBrregRoleChange:       0.9,
	model.SourceBrregKunngjoringer:    0.8,
	model.SourceDNRSS:                 0.8,
	model.SourceE24:                   0.8,
	model.SourceFinansavisen:          0.7,
	model.SourceNewsweb:               0.7,
	model.SourceNTB:                   0.6,
	model.SourceNewsWire:              0.6,
	model.SourceLinkedInExecMove:      0.6,
	model.SourceLinkedInCompanySignal: 0.5,
	model.SourceFinn:                  0.3,
	model.SourceDefault:               0.4,
}

// Boost bounds.
const (
	MaxBoost      = 0.15
	boostPerPoint = 0.05
)

// Independence returns the independence weight of a source type, falling
// back to the default row.
func Independence(sourceType string) float64 {
	if w, ok := independence[sourceType]; ok {
		return w
	}
	return independence[model.SourceDefault]
}

// Boost computes the corroboration boost for a set of distinct source types:
// clamp(0, 0.15, (sum of independence weights - 1) * 0.05).
func Boost(sourceTypes []string) float64 {
	seen := make(map[string]bool, len(sourceTypes))
	sum := 0.0
	for _, st := range sourceTypes {
		if seen[st] {
			continue
		}
		seen[st] = true
		sum += Independence(st)
	}
	b := (sum - 1) * boostPerPoint
	if b < 0 {
		return 0
	}
	if b > MaxBoost {
		return MaxBoost
	}
	return b
}
