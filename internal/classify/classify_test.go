package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-qualifier/internal/budget"
	"github.com/sells-group/lead-qualifier/internal/corroborate"
	"github.com/sells-group/lead-qualifier/internal/cost"
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/scoring"
	"github.com/sells-group/lead-qualifier/pkg/anthropic"
	"github.com/sells-group/lead-qualifier/pkg/anthropic/mocks"
)

const testModel = "claude-haiku-4-5-20251001"

func reply(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:      "msg_1",
		Model:   testModel,
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 1_000_000, OutputTokens: 200_000},
	}
}

func newCase(org, name string) *scoring.Case {
	g := &corroborate.Group{
		Key:         "org:" + org,
		OrgNumber:   org,
		Name:        name,
		Primary:     model.Seed{CompanyName: name, OrgNumber: org, SourceType: model.SourceRegistryStatus, Trigger: model.TriggerRestructuring},
		SourceTypes: []string{model.SourceRegistryStatus, model.SourceNewsWire},
		Triggers:    []model.Trigger{model.TriggerRestructuring, model.TriggerLeadershipChange},
		Content:     "[registry_status]: " + name + " starts restructuring",
	}
	g.Seeds = []model.Seed{g.Primary}
	profile := &model.RegistryProfile{OrgNumber: org, Name: name, Employees: 120, IndustryName: "Shipping", LegalFormName: "Aksjeselskap", Municipality: "OSLO"}
	c := scoring.NewCase(g, profile, model.Verification{V: 1, LocationOK: true, OperatingOK: true})
	c.Scores = model.Scores{E: 0.6, W: 0.5, V: 1, R: 0.3}
	return c
}

func TestScorer_Score(t *testing.T) {
	client := mocks.NewMockClient(t)
	b := budget.Unlimited()
	calc := cost.NewCalculator(cost.DefaultRates())

	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		user := req.Messages[0].Content
		return req.Model == testModel &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			strings.Contains(user, "Company: Acme AS") &&
			strings.Contains(user, "Sources corroborating: 2") &&
			strings.Contains(user, "Trigger(s): Restructuring, LeadershipChange") &&
			strings.Contains(user, "Employees: 120") &&
			strings.Contains(user, "Registry verified: Yes") &&
			strings.Contains(user, "Old Co (CostProgram, news_wire): Irrelevant")
	})).Return(reply("```json\n{\"cases\":[{\"org_number\":\"900000001\",\"E\":0.8,\"W\":0.7,\"R\":0.1,\"reasoning\":\"CEO gone\"}]}\n```"), nil).Once()

	s := NewScorer(client, testModel, WithCost(calc, b))
	out, err := s.Score(context.Background(), []*scoring.Case{newCase("900000001", "Acme AS")}, []model.FeedbackGrade{
		{CompanyName: "Old Co", Trigger: model.TriggerCostProgram, SourceType: model.SourceNewsWire, Grade: model.GradeIrrelevant},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "900000001", out[0].OrgNumber)
	require.NotNil(t, out[0].E)
	assert.InDelta(t, 0.8, *out[0].E, 1e-9)
	assert.Equal(t, "CEO gone", out[0].Reasoning)

	// 1M input at $1 plus 0.2M output at $5.
	assert.InDelta(t, 2.0, b.CostUSD(), 1e-9)
}

func TestScorer_EmptyBatchMakesNoCall(t *testing.T) {
	client := mocks.NewMockClient(t)
	out, err := NewScorer(client, testModel).Score(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestScorer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		resp    *anthropic.MessageResponse
		err     error
		wantMsg string
	}{
		{"api error", nil, errors.New("overloaded"), "classify: score"},
		{"no json", reply("sorry, I cannot help"), nil, "parse reply"},
		{"bad json", reply(`{"cases": [ {"E": "high"} ]}`), nil, "decode reply"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mocks.NewMockClient(t)
			client.On("CreateMessage", mock.Anything, mock.Anything).Return(tt.resp, tt.err).Once()

			_, err := NewScorer(client, testModel).Score(context.Background(), []*scoring.Case{newCase("900000001", "Acme AS")}, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestScorer_PartialReplyAppliesToMatchedCases(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(reply(`{"cases":[{"company_name":"Beta AS","W":0.9}]}`), nil).Once()

	a, b := newCase("900000001", "Alpha AS"), newCase("900000002", "Beta AS")
	out, err := NewScorer(client, testModel).Score(context.Background(), []*scoring.Case{a, b}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, scoring.Apply([]*scoring.Case{a, b}, out))
	assert.InDelta(t, 0.5, a.Scores.W, 1e-9)
	assert.InDelta(t, 0.9, b.Scores.W, 1e-9)
}

func TestQuality_Assess(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		user := req.Messages[0].Content
		return strings.Contains(user, "Case 1 (Acme AS, org.nr 900000001)") &&
			strings.Contains(user, "suggested role: CFO") &&
			strings.Contains(user, "E=0.60 W=0.50 V=1.00 R=0.30")
	})).Return(reply(`{"cases":[{"org_number":"900000001","company_name":"Acme AS","quality_score":45,"situation_analysis":"Refinansiering","strategic_rationale":"Interim CFO","rejection_reason":"outdated"}]}`), nil).Once()

	out, err := NewQuality(client, testModel).Assess(context.Background(), []*scoring.Case{newCase("900000001", "Acme AS")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 45, out[0].Score)
	assert.Equal(t, "Refinansiering", out[0].SituationSummary)
	assert.Equal(t, "Interim CFO", out[0].Rationale)
	assert.Equal(t, "outdated", out[0].RejectionReason)
}

func TestWhyNow_Write(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Temperature != nil && *req.Temperature == 0.7
	})).Return(reply(`{"why_now":[
		{"org_number":"900 000 001","message":"  Selskapet har mistet sin CFO midt i en refinansiering.  "},
		{"company_name":"Beta AS","message":""},
		{"company_name":"Ghost AS","message":"unmatched"}
	]}`), nil).Once()

	a, b := newCase("900000001", "Alpha AS"), newCase("900000002", "Beta AS")
	out, err := NewWhyNow(client, testModel).Write(context.Background(), []*scoring.Case{a, b})
	require.NoError(t, err)
	assert.Equal(t, map[*scoring.Case]string{a: "Selskapet har mistet sin CFO midt i en refinansiering."}, out)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("  abc  ", 5))
	assert.Equal(t, "æøå...", truncate("æøåæøå", 3))
}

func TestScoringPrompt_RegistryContext(t *testing.T) {
	healthy := newCase("923456789", "Fjord Logistikk AS")
	distressed := newCase("987654321", "Nordlys Energi AS")
	distressed.Profile.Bankrupt = true
	distressed.Profile.ForcedDissolution = true
	distressed.Profile.Employees = 0

	prompt := scoringPrompt([]*scoring.Case{healthy, distressed}, []model.FeedbackGrade{
		{CompanyName: "Havbruk AS", Trigger: model.TriggerRestructuring, SourceType: model.SourceE24, Grade: model.GradeRelevant},
	})

	assert.Contains(t, prompt, "- Havbruk AS (Restructuring, e24): Relevant")
	assert.Contains(t, prompt, "- Employees: 120")
	assert.Contains(t, prompt, "- Employees: Unknown")
	assert.Contains(t, prompt, "- Distress: bankrupt, forced dissolution")
	assert.Equal(t, 1, strings.Count(prompt, "- Distress:"))
}

func TestScoringPrompt_EvidenceSurvivesLongContent(t *testing.T) {
	c := newCase("923456789", "Fjord Logistikk AS")
	c.Content = strings.Repeat("[news_wire]: Fjord Logistikk AS reviews its fleet strategy. ", 20)
	c.Evidence = "[evidence:jina] Fjord Logistikk AS: CFO resigns with immediate effect (https://e24.no/fjord)"

	prompt := scoringPrompt([]*scoring.Case{c}, nil)

	assert.Contains(t, prompt, "- Supplemental evidence: [evidence:jina] Fjord Logistikk AS: CFO resigns with immediate effect")
	assert.Contains(t, prompt, "...\n- Supplemental evidence:")

	plain := newCase("987654321", "Nordlys Energi AS")
	assert.NotContains(t, scoringPrompt([]*scoring.Case{plain}, nil), "Supplemental evidence")
}
