package corroborate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-qualifier/internal/model"
)

func seed(id, name, org, source string, trigger model.Trigger) model.Seed {
	return model.Seed{
		ID:          id,
		CompanyName: name,
		OrgNumber:   org,
		SourceType:  source,
		Trigger:     trigger,
		Excerpt:     "excerpt " + id,
	}
}

func TestBoost_Bounds(t *testing.T) {
	assert.Equal(t, 0.0, Boost(nil))
	assert.Equal(t, 0.0, Boost([]string{model.SourceRegistryStatus}))
	assert.Equal(t, 0.0, Boost([]string{model.SourceFinn}))
	assert.InDelta(t, 0.03, Boost([]string{model.SourceRegistryStatus, model.SourceNewsWire}), 1e-9)
	assert.InDelta(t, 0.05, Boost([]string{model.SourceBronnysund, model.SourceBrregStatusUpdate}), 1e-9)

	all := []string{
		model.SourceBronnysund, model.SourceBrregStatusUpdate, model.SourceBrregRoleChange,
		model.SourceBrregKunngjoringer, model.SourceDNRSS, model.SourceE24, model.SourceNTB,
	}
	assert.Equal(t, MaxBoost, Boost(all))
}

func TestBoost_DuplicatesIgnored(t *testing.T) {
	assert.Equal(t, Boost([]string{model.SourceE24}), Boost([]string{model.SourceE24, model.SourceE24}))
}

func TestBoost_MonotoneInDistinctSources(t *testing.T) {
	sources := []string{
		model.SourceFinn, model.SourceNTB, model.SourceE24, model.SourceDNRSS,
		model.SourceBronnysund, model.SourceBrregRoleChange, model.SourceNewsweb,
		"unknown_source",
	}
	prev := 0.0
	for i := range sources {
		b := Boost(sources[:i+1])
		assert.GreaterOrEqual(t, b, prev)
		assert.GreaterOrEqual(t, b, 0.0)
		assert.LessOrEqual(t, b, MaxBoost)
		prev = b
	}
}

func TestIndependence_Default(t *testing.T) {
	assert.Equal(t, 0.4, Independence("something_new"))
	assert.Equal(t, 1.0, Independence(model.SourceBronnysund))
}

func TestGroupSeeds_ByOrgNumber(t *testing.T) {
	groups := GroupSeeds([]model.Seed{
		seed("s1", "Fjord Shipping AS", "923 609 016", model.SourceE24, model.TriggerRestructuring),
		seed("s2", "Fjord Shipping ASA", "923609016", model.SourceBronnysund, model.TriggerLeadershipChange),
		seed("s3", "Bergen Bygg AS", "987654321", model.SourceNTB, model.TriggerCostProgram),
	})

	require.Len(t, groups, 2)
	g := groups[0]
	assert.Equal(t, "org:923609016", g.Key)
	assert.Equal(t, "923609016", g.OrgNumber)
	assert.Equal(t, "s2", g.Primary.ID, "highest independence seed is canonical")
	assert.Equal(t, "Fjord Shipping ASA", g.Name)
	assert.Equal(t, []string{model.SourceE24, model.SourceBronnysund}, g.SourceTypes)
	assert.Equal(t, []model.Trigger{model.TriggerRestructuring, model.TriggerLeadershipChange}, g.Triggers)
	assert.Equal(t, model.TriggerLeadershipChange, g.Trigger())
	assert.Equal(t, []string{"s1", "s2"}, g.SeedIDs())
	assert.InDelta(t, 0.04, g.Boost, 1e-9)
	assert.Equal(t, "[e24]: excerpt s1\n---\n[bronnysund]: excerpt s2", g.Content)
}

func TestGroupSeeds_FuzzyNameJoinsOrgGroup(t *testing.T) {
	groups := GroupSeeds([]model.Seed{
		seed("b", "Fjord Shipping", "", model.SourceNewsWire, model.TriggerRestructuring),
		seed("a", "Fjord Shipping AS", "923609016", model.SourceRegistryStatus, model.TriggerRestructuring),
	})

	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, "923609016", g.OrgNumber)
	assert.Equal(t, "a", g.Primary.ID)
	assert.Len(t, g.Seeds, 2)
	assert.Greater(t, g.Boost, 0.0)
}

func TestGroupSeeds_UnmatchedBecomeNameGroups(t *testing.T) {
	groups := GroupSeeds([]model.Seed{
		seed("1", "Nordlys Energi AS", "", model.SourceDNRSS, model.TriggerStrategicReview),
		seed("2", "Nordlys Energi", "", model.SourceE24, model.TriggerStrategicReview),
		seed("3", "Helt Annet Firma", "", model.SourceFinn, model.TriggerHiringSignal),
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "name:nordlysenergi", groups[0].Key)
	assert.Len(t, groups[0].Seeds, 2)
	assert.Equal(t, "", groups[0].OrgNumber)
	assert.Equal(t, "name:heltannetfirma", groups[1].Key)
	assert.Equal(t, 0.0, groups[1].Boost)
}

func TestGroupSeeds_ShortNamesDoNotOverMerge(t *testing.T) {
	groups := GroupSeeds([]model.Seed{
		seed("1", "ABC AS", "", model.SourceE24, ""),
		seed("2", "ABCD Eiendom", "", model.SourceE24, ""),
	})
	assert.Len(t, groups, 2)
}

func TestGroupSeeds_NamelessSeedKeptAlone(t *testing.T) {
	groups := GroupSeeds([]model.Seed{
		seed("1", "", "", model.SourceFinn, ""),
		seed("2", "", "", model.SourceFinn, ""),
	})
	require.Len(t, groups, 2)
	assert.Equal(t, model.TriggerLeadershipChange, groups[0].Trigger())
	assert.Equal(t, model.SourceFinn, groups[0].SourceType())
}

func TestGroupSeeds_EverySeedInExactlyOneGroup(t *testing.T) {
	seeds := []model.Seed{
		seed("1", "Fjord Shipping AS", "923609016", model.SourceBronnysund, ""),
		seed("2", "Fjord Shipping", "", model.SourceNTB, ""),
		seed("3", "Bergen Bygg", "", model.SourceE24, ""),
		seed("4", "Bergen Bygg Holding", "", model.SourceFinn, ""),
		seed("5", "", "", model.SourceFinn, ""),
		seed("6", "Oslo Tech", "12345", model.SourceDNRSS, ""),
	}
	groups := GroupSeeds(seeds)

	seen := make(map[string]int)
	for _, g := range groups {
		for _, s := range g.Seeds {
			seen[s.ID]++
		}
	}
	require.Len(t, seen, len(seeds))
	for id, n := range seen {
		assert.Equal(t, 1, n, "seed %s", id)
	}
}

func TestGroupSeeds_Idempotent(t *testing.T) {
	seeds := []model.Seed{
		seed("1", "Fjord Shipping AS", "923609016", model.SourceBronnysund, model.TriggerRestructuring),
		seed("2", "Fjord Shipping", "", model.SourceNTB, model.TriggerRestructuring),
		seed("3", "Bergen Bygg", "", model.SourceE24, model.TriggerCostProgram),
		seed("4", "Bergen Bygg Holding", "", model.SourceFinn, model.TriggerHiringSignal),
	}
	first := GroupSeeds(seeds)
	second := GroupSeeds(seeds)
	assert.Equal(t, first, second)
}

func TestGroupSeeds_UnknownSourceUsesDefault(t *testing.T) {
	groups := GroupSeeds([]model.Seed{seed("1", "Fjord Shipping", "", "", "")})
	require.Len(t, groups, 1)
	assert.Equal(t, []string{model.SourceDefault}, groups[0].SourceTypes)
	assert.Equal(t, model.SourceDefault, groups[0].SourceType())
}
