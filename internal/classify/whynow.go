package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/lead-qualifier/internal/scoring"
	"github.com/sells-group/lead-qualifier/pkg/anthropic"
)

const whyNowContentLen = 300

const whyNowSystem = `You write "why now" messages for a Norwegian interim management firm.
Each message is 2-3 sentences in Norwegian, professional, and names the concrete trigger and why an interim executive is relevant now.

Respond ONLY with valid JSON:
{"why_now":[{"org_number":"...","company_name":"...","message":"..."}]}`

// WhyNow writes the short why-now paragraph of qualified cases.
type WhyNow struct {
	caller
}

// NewWhyNow creates a why-now writer on the given model.
func NewWhyNow(client anthropic.Client, model string, opts ...Option) *WhyNow {
	return &WhyNow{caller: newCaller(client, model, 0.7, opts)}
}

type whyNowItem struct {
	OrgNumber   string `json:"org_number"`
	CompanyName string `json:"company_name"`
	Message     string `json:"message"`
}

type whyNowReply struct {
	WhyNow []whyNowItem `json:"why_now"`
}

// Write returns the why-now text of each case it got an answer for.
func (w *WhyNow) Write(ctx context.Context, cases []*scoring.Case) (map[*scoring.Case]string, error) {
	if len(cases) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	for i, c := range cases {
		fmt.Fprintf(&sb, "Case %d (%s, org.nr %s):\n", i+1, c.CompanyName, orUnknown(c.OrgNumber))
		fmt.Fprintf(&sb, "- Trigger: %s, role: %s\n", c.Trigger, c.Role)
		fmt.Fprintf(&sb, "- Content: %s\n", truncate(c.Content, whyNowContentLen))
		fmt.Fprintf(&sb, "- E=%.2f, W=%.2f\n\n", c.Scores.E, c.Scores.W)
	}

	var reply whyNowReply
	if err := w.call(ctx, "why-now", whyNowSystem, sb.String(), &reply); err != nil {
		return nil, err
	}

	matched := scoring.Match(cases, reply.WhyNow, func(it whyNowItem) (string, string) { return it.OrgNumber, it.CompanyName })
	out := make(map[*scoring.Case]string, len(matched))
	for c, it := range matched {
		if msg := strings.TrimSpace(it.Message); msg != "" {
			out[c] = msg
		}
	}
	return out, nil
}
