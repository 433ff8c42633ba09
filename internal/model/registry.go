package model

// RegistryProfile is the registry's answer for one company.
type RegistryProfile struct {
	OrgNumber         string `json:"org_number"`
	Name              string `json:"name"`
	LocationCode      string `json:"location_code"`
	PostalCode        string `json:"postal_code,omitempty"`
	Municipality      string `json:"municipality,omitempty"`
	Employees         int    `json:"employees"`
	LegalForm         string `json:"legal_form"`
	LegalFormName     string `json:"legal_form_name,omitempty"`
	IndustryCode      string `json:"industry_code,omitempty"`
	IndustryName      string `json:"industry_name,omitempty"`
	Bankrupt          bool   `json:"bankrupt"`
	UnderLiquidation  bool   `json:"under_liquidation"`
	ForcedDissolution bool   `json:"forced_dissolution"`
	ParentOrgNumber   string `json:"parent_org_number,omitempty"`
}

// Distressed reports whether any distress flag is set.
func (p *RegistryProfile) Distressed() bool {
	return p.Bankrupt || p.UnderLiquidation || p.ForcedDissolution
}

// Verification is the outcome of the registry rules for one group.
type Verification struct {
	V           float64 `json:"V"`
	LocationOK  bool    `json:"location_ok"`
	OperatingOK bool    `json:"operating_ok"`
	HardStop    bool    `json:"hard_stop"`
	Excluded    bool    `json:"excluded"`
	Reason      string  `json:"reason,omitempty"`
	Detail      string  `json:"detail,omitempty"`
}

// Rejected reports whether the group must be dropped before scoring.
func (v Verification) Rejected() bool {
	return v.HardStop || v.Excluded
}
