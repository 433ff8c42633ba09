package scoring

import (
	"time"

	"github.com/sells-group/lead-qualifier/internal/corroborate"
	"github.com/sells-group/lead-qualifier/internal/model"
)

// Case is one company group moving through a qualification run.
type Case struct {
	Group        *corroborate.Group
	Profile      *model.RegistryProfile
	Verification model.Verification
	CompanyName  string
	OrgNumber    string
	Trigger      model.Trigger
	Role         model.Role
	Content      string
	// Evidence holds supplemental web evidence gathered by escalation. It is
	// kept apart from Content so the seed text truncation never drops it.
	Evidence  string
	Scores    model.Scores
	Reasoning string
	Escalated bool
}

// NewCase builds a case from a group and its registry outcome. The resolved
// registry org number wins over a missing seed identifier.
func NewCase(g *corroborate.Group, profile *model.RegistryProfile, v model.Verification) *Case {
	c := &Case{
		Group:        g,
		Profile:      profile,
		Verification: v,
		CompanyName:  g.Name,
		OrgNumber:    g.OrgNumber,
		Trigger:      g.Trigger(),
		Content:      g.Content,
	}
	if profile != nil {
		if c.OrgNumber == "" {
			c.OrgNumber = profile.OrgNumber
		}
		if c.CompanyName == "" {
			c.CompanyName = profile.Name
		}
	}
	if c.CompanyName == "" {
		c.CompanyName = "Unknown"
	}
	c.Role = model.RoleForTrigger(c.Trigger)
	return c
}

// Confidence returns the composite C of the current scores.
func (c *Case) Confidence() float64 {
	return c.Scores.C()
}

// Key returns the dedup key of the case.
func (c *Case) Key() model.DedupKey {
	return model.DedupKey{OrgNumber: model.NormalizeOrgNumber(c.OrgNumber), Trigger: c.Trigger, Role: c.Role}
}

// CaseFile renders the case as a case file without a status.
func (c *Case) CaseFile(runID string, now time.Time) model.CaseFile {
	cf := model.CaseFile{
		RunID:          runID,
		CompanyName:    c.CompanyName,
		OrgNumber:      model.NormalizeOrgNumber(c.OrgNumber),
		Trigger:        c.Trigger,
		SuggestedRole:  c.Role,
		SourceType:     c.Group.SourceType(),
		SourceTypes:    c.Group.SourceTypes,
		SeedIDs:        c.Group.SeedIDs(),
		Scores:         c.Scores,
		Confidence:     c.Confidence(),
		Stars:          c.Scores.Stars(),
		Boost:          c.Group.Boost,
		Reasoning:      c.Reasoning,
		Escalated:      c.Escalated,
		InTargetRegion: c.Verification.LocationOK,
		HasOperations:  c.Verification.OperatingOK,
		CreatedAt:      now,
	}
	return cf
}
