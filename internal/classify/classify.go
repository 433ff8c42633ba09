// Package classify holds the LLM-backed classifiers of a qualification run:
// the E/W/R scorer, the narrative quality assessor and the why-now writer.
// Each makes exactly one Messages call per batch.
package classify

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-qualifier/internal/cost"
	"github.com/sells-group/lead-qualifier/pkg/anthropic"
)

// CostRecorder accumulates the estimated USD cost of calls.
type CostRecorder interface {
	AddCost(usd float64)
}

type noCost struct{}

func (noCost) AddCost(float64) {}

// Option configures a classifier.
type Option func(*caller)

// WithCost records the cost of every call, priced by calc.
func WithCost(calc *cost.Calculator, rec CostRecorder) Option {
	return func(c *caller) {
		c.calc = calc
		if rec != nil {
			c.cost = rec
		}
	}
}

// WithMaxTokens overrides the output token cap.
func WithMaxTokens(n int64) Option {
	return func(c *caller) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

type caller struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	calc        *cost.Calculator
	cost        CostRecorder
}

func newCaller(client anthropic.Client, model string, temperature float64, opts []Option) caller {
	c := caller{
		client:      client,
		model:       model,
		maxTokens:   4096,
		temperature: temperature,
		cost:        noCost{},
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// call sends one message with a cached system prompt and decodes the JSON
// object in the reply into out.
func (c *caller) call(ctx context.Context, op, system, user string, out any) error {
	temp := c.temperature
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(system),
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return eris.Wrapf(err, "classify: %s", op)
	}
	if c.calc != nil {
		c.cost.AddCost(c.calc.Message(c.model, resp.Usage))
	}

	raw, err := anthropic.ExtractJSON(resp.Text())
	if err != nil {
		return eris.Wrapf(err, "classify: %s: parse reply", op)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return eris.Wrapf(err, "classify: %s: decode reply", op)
	}
	return nil
}

// truncate cuts s to at most n runes, marking the cut.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
