package model

import (
	"math"
	"time"
)

// CaseStatus is the terminal outcome of a case.
type CaseStatus string

const (
	CaseStatusQualified CaseStatus = "qualified"
	CaseStatusDropped   CaseStatus = "dropped"
)

// Drop reasons recorded on dropped case files.
const (
	ReasonNotFound            = "registry_not_found"
	ReasonOutsideRegion       = "outside_target_region"
	ReasonExcludedForm        = "excluded_legal_form"
	ReasonExcludedFormAndSize = "excluded_legal_form_below_employee_threshold"
	ReasonTooFewEmployees     = "below_employee_threshold"
	ReasonBelowThreshold      = "below_confidence_threshold"
	ReasonDuplicate           = "duplicate_lead"
	ReasonOverCap             = "over_output_cap"
	ReasonLowQuality          = "low_quality_narrative"
)

// Star thresholds on composite confidence.
const (
	ThreeStarMin = 0.70
	TwoStarMin   = 0.60
	OneStarMin   = 0.50
)

// Composite computes C = (E + W + V + (1-R)) / 4 clamped to [0, 1].
func Composite(e, w, v, r float64) float64 {
	return clamp01((clamp01(e) + clamp01(w) + clamp01(v) + (1 - clamp01(r))) / 4)
}

// Stars maps composite confidence to a 0-3 star rating.
func Stars(c float64) int {
	switch {
	case c >= ThreeStarMin:
		return 3
	case c >= TwoStarMin:
		return 2
	case c >= OneStarMin:
		return 1
	default:
		return 0
	}
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// Scores holds the four scoring dimensions of a case.
type Scores struct {
	E float64 `json:"E"`
	W float64 `json:"W"`
	V float64 `json:"V"`
	R float64 `json:"R"`
}

// C returns the composite confidence of the scores.
func (s Scores) C() float64 {
	return Composite(s.E, s.W, s.V, s.R)
}

// Stars returns the star rating of the scores.
func (s Scores) Stars() int {
	return Stars(s.C())
}

// CaseFile is the persisted outcome of one company group in one run.
type CaseFile struct {
	ID               string     `json:"id"`
	RunID            string     `json:"run_id"`
	CompanyName      string     `json:"company_name"`
	OrgNumber        string     `json:"org_number"`
	Trigger          Trigger    `json:"trigger_hypothesis"`
	SuggestedRole    Role       `json:"suggested_role"`
	SourceType       string     `json:"source_type"`
	SourceTypes      []string   `json:"source_types"`
	SeedIDs          []string   `json:"seed_ids"`
	Scores           Scores     `json:"scores"`
	Confidence       float64    `json:"confidence"`
	Stars            int        `json:"stars"`
	Boost            float64    `json:"corroboration_boost"`
	Status           CaseStatus `json:"status"`
	DropReason       string     `json:"drop_reason,omitempty"`
	Reasoning        string     `json:"reasoning,omitempty"`
	WhyNow           string     `json:"why_now_text,omitempty"`
	QualityScore     *int       `json:"quality_score,omitempty"`
	SituationSummary string     `json:"situation_analysis,omitempty"`
	Rationale        string     `json:"strategic_rationale,omitempty"`
	Escalated        bool       `json:"escalated"`
	InTargetRegion   bool       `json:"in_target_region"`
	HasOperations    bool       `json:"has_operations"`
	NotionPageID     string     `json:"notion_page_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	QualifiedAt      *time.Time `json:"qualified_at,omitempty"`
}

// DedupKey identifies a published situation for anti-repetition.
type DedupKey struct {
	OrgNumber string
	Trigger   Trigger
	Role      Role
}

// Key returns the dedup key of the case file.
func (c CaseFile) Key() DedupKey {
	return DedupKey{OrgNumber: NormalizeOrgNumber(c.OrgNumber), Trigger: c.Trigger, Role: c.SuggestedRole}
}
