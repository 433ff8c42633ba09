package verify

import (
	"fmt"
	"strings"

	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/internal/model"
)

// Rules are the register checks applied to each group's profile.
type Rules struct {
	TargetRegions   map[string]bool
	ExcludedForms   map[string]bool
	MinEmployees    int
	HoldingIndustry string
}

// DefaultRules targets postal prefixes 00-25 and 30-39, excludes sole
// proprietorships and partnerships, and requires 30 employees.
func DefaultRules() Rules {
	regions := make([]string, 0, 36)
	for i := 0; i <= 25; i++ {
		regions = append(regions, fmt.Sprintf("%02d", i))
	}
	for i := 30; i <= 39; i++ {
		regions = append(regions, fmt.Sprintf("%02d", i))
	}
	return NewRules(regions, []string{"ENK", "DA", "ANS"}, 30, "64.200")
}

// NewRules builds rules from lists.
func NewRules(regions, excludedForms []string, minEmployees int, holdingIndustry string) Rules {
	r := Rules{
		TargetRegions:   make(map[string]bool, len(regions)),
		ExcludedForms:   make(map[string]bool, len(excludedForms)),
		MinEmployees:    minEmployees,
		HoldingIndustry: holdingIndustry,
	}
	for _, code := range regions {
		r.TargetRegions[strings.TrimSpace(code)] = true
	}
	for _, f := range excludedForms {
		r.ExcludedForms[strings.ToUpper(strings.TrimSpace(f))] = true
	}
	return r
}

// RulesFromConfig builds rules from the registry config section.
func RulesFromConfig(c config.RegistryConfig) Rules {
	d := DefaultRules()
	if len(c.TargetRegions) == 0 && len(c.ExcludedForms) == 0 && c.MinEmployees == 0 && c.HoldingIndustry == "" {
		return d
	}
	r := NewRules(c.TargetRegions, c.ExcludedForms, c.MinEmployees, c.HoldingIndustry)
	if len(c.TargetRegions) == 0 {
		r.TargetRegions = d.TargetRegions
	}
	if r.HoldingIndustry == "" {
		r.HoldingIndustry = d.HoldingIndustry
	}
	return r
}

// HasOperations reports whether the unit looks like an operating business:
// it has employees or is not a pure holding company, and it is not being
// wound up.
func (r Rules) HasOperations(p *model.RegistryProfile) bool {
	active := p.Employees > 0 || p.IndustryCode != r.HoldingIndustry
	return active && !p.UnderLiquidation && !p.ForcedDissolution
}

// Verify applies the rules in order: existence and location are hard stops,
// the operating signal is recorded, then legal form and size exclude. An
// excluded form that is also below the employee threshold reports both. An
// employee count of 0 means unknown and never excludes.
func (r Rules) Verify(p *model.RegistryProfile) model.Verification {
	if p == nil {
		return model.Verification{HardStop: true, Reason: model.ReasonNotFound}
	}

	var v model.Verification
	v.LocationOK = r.TargetRegions[p.LocationCode]
	if !v.LocationOK {
		v.HardStop = true
		v.Reason = model.ReasonOutsideRegion
		v.Detail = fmt.Sprintf("location code %q", p.LocationCode)
		return v
	}
	v.V = 1
	v.OperatingOK = r.HasOperations(p)

	excludedForm := r.ExcludedForms[strings.ToUpper(p.LegalForm)]
	small := p.Employees > 0 && p.Employees < r.MinEmployees
	switch {
	case excludedForm && small:
		v.Excluded = true
		v.Reason = model.ReasonExcludedFormAndSize
		v.Detail = fmt.Sprintf("legal form %s; %d employees, below threshold %d", p.LegalForm, p.Employees, r.MinEmployees)
	case excludedForm:
		v.Excluded = true
		v.Reason = model.ReasonExcludedForm
		v.Detail = "legal form " + p.LegalForm
	case small:
		v.Excluded = true
		v.Reason = model.ReasonTooFewEmployees
		v.Detail = fmt.Sprintf("%d employees, below threshold %d", p.Employees, r.MinEmployees)
	}
	return v
}
