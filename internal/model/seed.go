package model

import (
	"strings"
	"time"
)

// Trigger is the detected event category of a seed.
type Trigger string

const (
	TriggerLeadershipChange      Trigger = "LeadershipChange"
	TriggerRestructuring         Trigger = "Restructuring"
	TriggerMergersAcquisitions   Trigger = "MergersAcquisitions"
	TriggerStrategicReview       Trigger = "StrategicReview"
	TriggerOperationalCrisis     Trigger = "OperationalCrisis"
	TriggerRegulatoryLegal       Trigger = "RegulatoryLegal"
	TriggerCostProgram           Trigger = "CostProgram"
	TriggerHiringSignal          Trigger = "HiringSignal"
	TriggerOwnershipGovernance   Trigger = "OwnershipGovernance"
	TriggerTransformationProgram Trigger = "TransformationProgram"
)

// Triggers lists every known trigger category.
var Triggers = []Trigger{
	TriggerLeadershipChange,
	TriggerRestructuring,
	TriggerMergersAcquisitions,
	TriggerStrategicReview,
	TriggerOperationalCrisis,
	TriggerRegulatoryLegal,
	TriggerCostProgram,
	TriggerHiringSignal,
	TriggerOwnershipGovernance,
	TriggerTransformationProgram,
}

// Role is the interim executive role suggested for a case.
type Role string

const (
	RoleCEO Role = "CEO"
	RoleCFO Role = "CFO"
	RoleCOO Role = "COO"
)

var triggerRoles = map[Trigger]Role{
	TriggerLeadershipChange:      RoleCEO,
	TriggerMergersAcquisitions:   RoleCEO,
	TriggerStrategicReview:       RoleCEO,
	TriggerRegulatoryLegal:       RoleCEO,
	TriggerHiringSignal:          RoleCEO,
	TriggerRestructuring:         RoleCFO,
	TriggerCostProgram:           RoleCFO,
	TriggerOwnershipGovernance:   RoleCFO,
	TriggerOperationalCrisis:     RoleCOO,
	TriggerTransformationProgram: RoleCOO,
}

// RoleForTrigger maps a trigger to the suggested interim role. Unknown
// triggers map to CEO.
func RoleForTrigger(t Trigger) Role {
	if r, ok := triggerRoles[t]; ok {
		return r
	}
	return RoleCEO
}

// ParseTrigger normalizes a free-form trigger label. Empty input yields
// LeadershipChange; unknown labels are kept verbatim.
func ParseTrigger(s string) Trigger {
	s = strings.TrimSpace(s)
	if s == "" {
		return TriggerLeadershipChange
	}
	for _, t := range Triggers {
		if strings.EqualFold(string(t), s) {
			return t
		}
	}
	return Trigger(s)
}

// Known source types. Collectors may emit others; those fall back to the
// default weight rows.
const (
	SourceBronnysund            = "bronnysund"
	SourceBrregStatusUpdate     = "brreg_status_update"
	SourceRegistryStatus        = "registry_status"
	SourceBrregRoleChange       = "brreg_role_change"
	SourceBrregKunngjoringer    = "brreg_kunngjoringer"
	SourceNewsweb               = "newsweb"
	SourceMynewsdesk            = "mynewsdesk"
	SourceDNRSS                 = "dn_rss"
	SourceE24                   = "e24"
	SourceFinansavisen          = "finansavisen"
	SourceNTB                   = "ntb"
	SourceNewsWire              = "news_wire"
	SourceFinn                  = "finn"
	SourceLinkedInExecMove      = "linkedin_exec_move"
	SourceLinkedInCompanySignal = "linkedin_company_signal"
	SourceDefault               = "default"
)

// Seed is a single raw signal about a possible company event.
type Seed struct {
	ID          string    `json:"id"`
	CompanyName string    `json:"company_name"`
	OrgNumber   string    `json:"org_number,omitempty"`
	SourceType  string    `json:"source_type"`
	SourceURL   string    `json:"source_url,omitempty"`
	Trigger     Trigger   `json:"trigger_detected"`
	Excerpt     string    `json:"excerpt,omitempty"`
	RawContent  string    `json:"raw_content,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
	Processed   bool      `json:"processed"`
}

// Body returns the richest text available for the seed.
func (s Seed) Body() string {
	if s.RawContent != "" {
		return s.RawContent
	}
	return s.Excerpt
}

// NormalizedOrgNumber strips whitespace from the registry identifier.
func (s Seed) NormalizedOrgNumber() string {
	return NormalizeOrgNumber(s.OrgNumber)
}

// NormalizeOrgNumber removes all whitespace from a registry identifier.
func NormalizeOrgNumber(id string) string {
	return strings.Join(strings.Fields(id), "")
}
