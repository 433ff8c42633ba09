// Package corroborate clusters raw seeds by company identity and derives a
// corroboration boost for each cluster.
package corroborate

import (
	"fmt"
	"strings"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// minOrgNumberLen is the shortest identifier treated as usable.
const minOrgNumberLen = 9

// contentSeparator joins per-seed content in the merged text.
const contentSeparator = "\n---\n"

// Group is a set of seeds believed to describe one company in one run.
type Group struct {
	Key         string          `json:"key"`
	OrgNumber   string          `json:"org_number"`
	Name        string          `json:"name"`
	Seeds       []model.Seed    `json:"seeds"`
	SourceTypes []string        `json:"source_types"`
	Triggers    []model.Trigger `json:"triggers"`
	Boost       float64         `json:"corroboration_boost"`
	Content     string          `json:"merged_content"`
	Primary     model.Seed      `json:"primary_seed"`

	normName string
}

// SeedIDs returns the ids of all member seeds.
func (g *Group) SeedIDs() []string {
	ids := make([]string, 0, len(g.Seeds))
	for _, s := range g.Seeds {
		if s.ID != "" {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Trigger returns the trigger hypothesis of the group, taken from the
// primary seed.
func (g *Group) Trigger() model.Trigger {
	return model.ParseTrigger(string(g.Primary.Trigger))
}

// SourceType returns the source type of the primary seed.
func (g *Group) SourceType() string {
	if g.Primary.SourceType == "" {
		return model.SourceDefault
	}
	return g.Primary.SourceType
}

func (g *Group) add(s model.Seed) {
	if len(g.Seeds) == 0 || Independence(s.SourceType) > Independence(g.Primary.SourceType) {
		g.Primary = s
		if n := NormalizeName(s.CompanyName); n != "" {
			g.normName = n
		}
	}
	if g.normName == "" {
		g.normName = NormalizeName(s.CompanyName)
	}
	g.Seeds = append(g.Seeds, s)
}

func (g *Group) finish() {
	g.SourceTypes = g.SourceTypes[:0]
	g.Triggers = g.Triggers[:0]
	seenSource := make(map[string]bool)
	seenTrigger := make(map[model.Trigger]bool)
	parts := make([]string, 0, len(g.Seeds))

	for _, s := range g.Seeds {
		st := s.SourceType
		if st == "" {
			st = model.SourceDefault
		}
		if !seenSource[st] {
			seenSource[st] = true
			g.SourceTypes = append(g.SourceTypes, st)
		}
		if s.Trigger != "" && !seenTrigger[s.Trigger] {
			seenTrigger[s.Trigger] = true
			g.Triggers = append(g.Triggers, s.Trigger)
		}
		parts = append(parts, "["+st+"]: "+s.Body())
	}

	g.Boost = Boost(g.SourceTypes)
	g.Content = strings.Join(parts, contentSeparator)
	g.Name = g.Primary.CompanyName
	if id := g.Primary.NormalizedOrgNumber(); len(id) >= minOrgNumberLen {
		g.OrgNumber = id
	}
}

// GroupSeeds partitions a batch of seeds into company groups. Seeds with a
// usable registry identifier are grouped by exact identifier; the rest are
// matched by normalized name against existing groups and otherwise become
// singleton groups keyed by normalized name. The result is a pure function
// of the input order and content.
func GroupSeeds(seeds []model.Seed) []*Group {
	var groups []*Group
	byKey := make(map[string]*Group)

	get := func(key string) *Group {
		g, ok := byKey[key]
		if !ok {
			g = &Group{Key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		return g
	}

	var unmatched []model.Seed
	for _, s := range seeds {
		id := s.NormalizedOrgNumber()
		if len(id) >= minOrgNumberLen {
			g := get("org:" + id)
			g.OrgNumber = id
			g.add(s)
			continue
		}
		unmatched = append(unmatched, s)
	}

	for i, s := range unmatched {
		name := NormalizeName(s.CompanyName)
		if name == "" {
			// Nothing to match on; keep the seed as its own group.
			get(fmt.Sprintf("seed:%d:%s", i, s.ID)).add(s)
			continue
		}

		var match *Group
		for _, g := range groups {
			if normalizedMatch(name, g.normName) {
				match = g
				break
			}
		}
		if match == nil {
			match = get("name:" + name)
		}
		match.add(s)
	}

	for _, g := range groups {
		orgKey := g.OrgNumber
		g.finish()
		if g.OrgNumber == "" {
			g.OrgNumber = orgKey
		}
	}
	return groups
}
