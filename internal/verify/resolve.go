package verify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/corroborate"
	"github.com/sells-group/lead-qualifier/internal/model"
)

// Resolution is the register outcome for one group.
type Resolution struct {
	Group        *corroborate.Group
	Profile      *model.RegistryProfile
	Verification model.Verification
}

// Resolve looks up every group's canonical org number in one batch, falls
// back to a name search for groups without a number or a hit, and applies
// rules. Lookup failures are returned as errors and the group is treated as
// not found.
func (o *Oracle) Resolve(ctx context.Context, groups []*corroborate.Group, rules Rules) ([]Resolution, []error) {
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		if g.OrgNumber != "" {
			ids = append(ids, g.OrgNumber)
		}
	}
	byID, errs := o.batchLookup(ctx, ids)

	out := make([]Resolution, len(groups))
	var misses []int
	for i, g := range groups {
		out[i].Group = g
		if p := byID[model.NormalizeOrgNumber(g.OrgNumber)]; p != nil {
			out[i].Profile = p
			continue
		}
		misses = append(misses, i)
	}

	if len(misses) > 0 {
		names := make([]string, 0, len(misses))
		idxByName := make(map[string][]int)
		for _, i := range misses {
			n := groups[i].Name
			if _, ok := idxByName[n]; !ok {
				names = append(names, n)
			}
			idxByName[n] = append(idxByName[n], i)
		}

		var mu sync.Mutex
		errs = append(errs, o.waves(ctx, names, func(ctx context.Context, name string) error {
			p, err := o.SearchByName(ctx, name)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, i := range idxByName[name] {
				out[i].Profile = p
			}
			mu.Unlock()
			return nil
		})...)
	}

	for i := range out {
		out[i].Verification = rules.Verify(out[i].Profile)
	}

	o.log.Info("verify: groups resolved",
		zap.Int("groups", len(groups)),
		zap.Int("by_org_number", len(groups)-len(misses)),
		zap.Int("by_name", len(misses)),
		zap.Int("errors", len(errs)),
	)
	return out, errs
}
