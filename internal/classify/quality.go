package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/lead-qualifier/internal/gate"
	"github.com/sells-group/lead-qualifier/internal/scoring"
	"github.com/sells-group/lead-qualifier/pkg/anthropic"
)

const qualityContentLen = 1200

const qualitySystem = `You review leads for a Norwegian interim management firm before they reach a partner.
For each case write a short situation analysis and a strategic rationale for an interim placement, in Norwegian.
Then rate the narrative quality from 0 to 100: is there a concrete, current situation at a named company that an interim executive could act on?
Score below 60 when the material is generic, outdated, about the wrong company or lacks a leadership angle, and give the rejection reason in one short sentence.

Respond ONLY with valid JSON:
{"cases":[{"org_number":"...","company_name":"...","quality_score":75,"situation_analysis":"...","strategic_rationale":"...","rejection_reason":""}]}`

// Quality rates the narrative quality of qualified cases.
type Quality struct {
	caller
}

// NewQuality creates a quality assessor on the given model.
func NewQuality(client anthropic.Client, model string, opts ...Option) *Quality {
	return &Quality{caller: newCaller(client, model, 0.2, opts)}
}

type qualityReply struct {
	Cases []gate.Verdict `json:"cases"`
}

// Assess implements gate.Assessor.
func (q *Quality) Assess(ctx context.Context, cases []*scoring.Case) ([]gate.Verdict, error) {
	if len(cases) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	for i, c := range cases {
		fmt.Fprintf(&sb, "Case %d (%s, org.nr %s):\n", i+1, c.CompanyName, orUnknown(c.OrgNumber))
		fmt.Fprintf(&sb, "- Trigger: %s, suggested role: %s\n", c.Trigger, c.Role)
		fmt.Fprintf(&sb, "- Scores: E=%.2f W=%.2f V=%.2f R=%.2f\n", c.Scores.E, c.Scores.W, c.Scores.V, c.Scores.R)
		if c.Reasoning != "" {
			fmt.Fprintf(&sb, "- Scoring note: %s\n", c.Reasoning)
		}
		fmt.Fprintf(&sb, "- Content: %s\n", truncate(c.Content, qualityContentLen))
		if c.Evidence != "" {
			fmt.Fprintf(&sb, "- Supplemental evidence: %s\n", truncate(c.Evidence, qualityContentLen))
		}
		sb.WriteString("\n")
	}

	var reply qualityReply
	if err := q.call(ctx, "quality", qualitySystem, sb.String(), &reply); err != nil {
		return nil, err
	}
	return reply.Cases, nil
}
