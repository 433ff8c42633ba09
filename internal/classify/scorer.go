package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/scoring"
	"github.com/sells-group/lead-qualifier/pkg/anthropic"
)

const (
	scoringContentLen  = 600
	scoringEvidenceLen = 1500
)

const scoringSystem = `You are a B2B lead qualification system for a Norwegian interim management firm.
The firm places temporary executives (CEO/daglig leder, CFO, COO) in companies facing crises, leadership gaps or major transitions.

Score each case on three dimensions from 0.0 to 1.0:
- E (evidence strength): how reliable and specific is the signal? Official registry data and several independent sources raise E. A vague news mention lowers it.
- W (need): how likely is the company to need interim leadership right now? An active crisis with a leadership gap is high W. A routine change or an already filled role is low W.
- R (risk): the risk of a false positive, bad timing or an unsuitable lead. A company already in liquidation is high R. Several confirming sources lower R.

Assessment guidance:
- Bankruptcy or restructuring with 30+ employees and no CEO: high W.
- A role change where a successor is already appointed: low W.
- Restructuring with ongoing operations: high W.
- Job postings without crisis context: low W.

Respond ONLY with valid JSON:
{"cases":[{"org_number":"9 digits","company_name":"...","E":0.75,"W":0.60,"R":0.20,"reasoning":"one sentence on the interim fit"}]}`

// Scorer assigns E, W and R to a batch of cases.
type Scorer struct {
	caller
}

// NewScorer creates a Scorer on the given model.
func NewScorer(client anthropic.Client, model string, opts ...Option) *Scorer {
	return &Scorer{caller: newCaller(client, model, 0.2, opts)}
}

type scoringReply struct {
	Cases []scoring.Assessment `json:"cases"`
}

// Score implements scoring.Classifier.
func (s *Scorer) Score(ctx context.Context, cases []*scoring.Case, examples []model.FeedbackGrade) ([]scoring.Assessment, error) {
	if len(cases) == 0 {
		return nil, nil
	}
	var reply scoringReply
	if err := s.call(ctx, "score", scoringSystem, scoringPrompt(cases, examples), &reply); err != nil {
		return nil, err
	}
	return reply.Cases, nil
}

func scoringPrompt(cases []*scoring.Case, examples []model.FeedbackGrade) string {
	var sb strings.Builder
	if len(examples) > 0 {
		sb.WriteString("Recent graded leads, for calibration:\n")
		for _, ex := range examples {
			fmt.Fprintf(&sb, "- %s (%s, %s): %s\n", orUnknown(ex.CompanyName), orUnknown(string(ex.Trigger)), ex.SourceType, ex.Grade)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("CASES TO SCORE:\n")
	for i, c := range cases {
		if i > 0 {
			sb.WriteString("---\n")
		}
		fmt.Fprintf(&sb, "Case %d:\n", i+1)
		fmt.Fprintf(&sb, "- Company: %s\n", c.CompanyName)
		fmt.Fprintf(&sb, "- Org.nr: %s\n", orUnknown(c.OrgNumber))
		fmt.Fprintf(&sb, "- Source: %s\n", c.Group.SourceType())
		fmt.Fprintf(&sb, "- Sources corroborating: %d\n", max(1, len(c.Group.SourceTypes)))
		fmt.Fprintf(&sb, "- Trigger(s): %s\n", triggers(c))
		fmt.Fprintf(&sb, "- Content: %s\n", truncate(c.Content, scoringContentLen))
		if c.Evidence != "" {
			fmt.Fprintf(&sb, "- Supplemental evidence: %s\n", truncate(c.Evidence, scoringEvidenceLen))
		}
		verified := "No"
		if c.Verification.V >= 1 {
			verified = "Yes"
		}
		fmt.Fprintf(&sb, "- Registry verified: %s\n", verified)
		if p := c.Profile; p != nil {
			fmt.Fprintf(&sb, "- Industry: %s\n", orUnknown(p.IndustryName))
			emp := "Unknown"
			if p.Employees > 0 {
				emp = fmt.Sprint(p.Employees)
			}
			fmt.Fprintf(&sb, "- Employees: %s\n", emp)
			fmt.Fprintf(&sb, "- Company type: %s\n", orUnknown(p.LegalFormName))
			fmt.Fprintf(&sb, "- Location: %s\n", orUnknown(p.Municipality))
			if p.Distressed() {
				fmt.Fprintf(&sb, "- Distress: %s\n", distress(p))
			}
		}
	}
	return sb.String()
}

func distress(p *model.RegistryProfile) string {
	var flags []string
	if p.Bankrupt {
		flags = append(flags, "bankrupt")
	}
	if p.UnderLiquidation {
		flags = append(flags, "under liquidation")
	}
	if p.ForcedDissolution {
		flags = append(flags, "forced dissolution")
	}
	return strings.Join(flags, ", ")
}

func triggers(c *scoring.Case) string {
	if len(c.Group.Triggers) == 0 {
		return string(c.Trigger)
	}
	parts := make([]string, len(c.Group.Triggers))
	for i, t := range c.Group.Triggers {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
