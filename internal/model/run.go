package model

import "time"

// RunStatus represents the current state of a qualification run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// Mode selects output cap and result rendering.
type Mode string

const (
	ModeProduction Mode = "production"
	ModeTest       Mode = "test"
)

// ParseMode defaults anything other than "production" to test mode.
func ParseMode(s string) Mode {
	if s == string(ModeProduction) {
		return ModeProduction
	}
	return ModeTest
}

// Run is the log entry of one qualification run.
type Run struct {
	ID           string         `json:"id"`
	Mode         Mode           `json:"mode"`
	Status       RunStatus      `json:"status"`
	WeightsVer   string         `json:"weights_version"`
	SeedsLoaded  int            `json:"seeds_loaded"`
	SeedsHandled int            `json:"seeds_handled"`
	Groups       int            `json:"groups"`
	Qualified    int            `json:"qualified"`
	Dropped      int            `json:"dropped"`
	Deferred     int            `json:"deferred"`
	OpsUsed      int            `json:"ops_used"`
	OpsByKind    map[string]int `json:"ops_by_kind,omitempty"`
	CostUSD      float64        `json:"cost_usd"`
	ErrorCount   int            `json:"error_count"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}
