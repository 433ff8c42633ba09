package verify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/internal/corroborate"
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/pkg/brreg"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRegistry struct {
	mu       sync.Mutex
	units    map[string]*brreg.Unit
	subUnits map[string]*brreg.Unit
	search   map[string][]brreg.Unit
	fail     map[string]error
	calls    map[string]int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		units:    make(map[string]*brreg.Unit),
		subUnits: make(map[string]*brreg.Unit),
		search:   make(map[string][]brreg.Unit),
		fail:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeRegistry) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeRegistry) GetUnit(_ context.Context, id string) (*brreg.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["unit:"+id]++
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	u, ok := f.units[id]
	if !ok {
		return nil, brreg.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRegistry) GetSubUnit(_ context.Context, id string) (*brreg.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["sub:"+id]++
	u, ok := f.subUnits[id]
	if !ok {
		return nil, brreg.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRegistry) SearchByName(_ context.Context, name string, size int) ([]brreg.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["search:"+name]++
	units := f.search[name]
	if len(units) > size {
		units = units[:size]
	}
	return units, nil
}

func intp(n int) *int { return &n }

func unit(id, name, postal, form string, employees int) *brreg.Unit {
	return &brreg.Unit{
		OrgNumber:       id,
		Name:            name,
		LegalForm:       brreg.Code{Code: form},
		BusinessAddress: &brreg.Address{PostalCode: postal, Municipality: "OSLO"},
		Employees:       intp(employees),
		Industry:        &brreg.Code{Code: "70.220"},
	}
}

func newTestOracle(reg brreg.Client, opts ...Option) *Oracle {
	opts = append([]Option{WithWavePause(0)}, opts...)
	return NewOracle(reg, opts...)
}

func TestLookup_MainUnit(t *testing.T) {
	reg := newFakeRegistry()
	reg.units["923609016"] = unit("923609016", "ACME AS", "0150", "AS", 120)
	o := newTestOracle(reg)

	p, err := o.Lookup(context.Background(), "923 609 016")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "923609016", p.OrgNumber)
	assert.Equal(t, "01", p.LocationCode)
	assert.Equal(t, 120, p.Employees)

	// Second lookup is served from memory.
	_, err = o.Lookup(context.Background(), "923609016")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.count("unit:923609016"))
}

func TestLookup_SubUnitInheritsParentAddress(t *testing.T) {
	reg := newFakeRegistry()
	reg.units["923609016"] = unit("923609016", "ACME AS", "3015", "AS", 300)
	reg.subUnits["974760673"] = &brreg.Unit{
		OrgNumber:       "974760673",
		Name:            "ACME AVD DRAMMEN",
		ParentOrgNumber: "923609016",
		Employees:       intp(45),
	}
	o := newTestOracle(reg)

	p, err := o.Lookup(context.Background(), "974760673")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "30", p.LocationCode)
	assert.Equal(t, "923609016", p.ParentOrgNumber)
	assert.Equal(t, 1, reg.count("sub:974760673"))
}

func TestLookup_NotFoundIsCached(t *testing.T) {
	reg := newFakeRegistry()
	o := newTestOracle(reg)

	p, err := o.Lookup(context.Background(), "999999999")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = o.Lookup(context.Background(), "999999999")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 1, reg.count("unit:999999999"))
	assert.Equal(t, 1, reg.count("sub:999999999"))
}

func TestLookup_TTLExpiry(t *testing.T) {
	reg := newFakeRegistry()
	reg.units["923609016"] = unit("923609016", "ACME AS", "0150", "AS", 120)
	o := newTestOracle(reg, WithTTL(time.Hour))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	_, err := o.Lookup(context.Background(), "923609016")
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	_, err = o.Lookup(context.Background(), "923609016")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.count("unit:923609016"))
}

func TestLookup_ErrorIsNotCached(t *testing.T) {
	reg := newFakeRegistry()
	reg.fail["923609016"] = assert.AnError
	o := newTestOracle(reg)

	_, err := o.Lookup(context.Background(), "923609016")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify: lookup 923609016")

	delete(reg.fail, "923609016")
	reg.units["923609016"] = unit("923609016", "ACME AS", "0150", "AS", 120)
	p, err := o.Lookup(context.Background(), "923609016")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestSearchByName_PrefersActiveUnit(t *testing.T) {
	reg := newFakeRegistry()
	liquidating := *unit("911111111", "FJORD SHIPPING AS", "5003", "AS", 40)
	liquidating.UnderLiquidation = true
	reg.search["Fjord Shipping"] = []brreg.Unit{
		liquidating,
		*unit("922222222", "FJORD SHIPPING HOLDING AS", "0150", "AS", 80),
	}
	o := newTestOracle(reg)

	p, err := o.SearchByName(context.Background(), "Fjord Shipping")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "922222222", p.OrgNumber)

	// Cached under the resolved org number as well.
	p2, err := o.Lookup(context.Background(), "922222222")
	require.NoError(t, err)
	assert.Equal(t, p, p2)
	assert.Equal(t, 0, reg.count("unit:922222222"))
}

func TestSearchByName_AllLiquidatingTakesFirst(t *testing.T) {
	reg := newFakeRegistry()
	a := *unit("911111111", "A AS", "0150", "AS", 40)
	a.UnderLiquidation = true
	b := *unit("922222222", "A HOLDING AS", "0150", "AS", 40)
	b.ForcedDissolution = true
	reg.search["A"] = []brreg.Unit{a, b}
	o := newTestOracle(reg)

	p, err := o.SearchByName(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "911111111", p.OrgNumber)
}

func TestSearchByName_Empty(t *testing.T) {
	o := newTestOracle(newFakeRegistry())

	p, err := o.SearchByName(context.Background(), "Ukjent Selskap")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = o.SearchByName(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestBatchLookup_Waves(t *testing.T) {
	reg := newFakeRegistry()
	var ids []string
	for i := 0; i < 12; i++ {
		id := "9000000" + string(rune('1'+i/10)) + string(rune('0'+i%10))
		reg.units[id] = unit(id, "CO "+id, "0150", "AS", 50)
		ids = append(ids, id)
	}
	ids = append(ids, ids[0], "")
	reg.fail[ids[3]] = assert.AnError

	o := NewOracle(reg, WithConcurrency(5), WithWavePause(time.Millisecond))
	got := o.BatchLookup(context.Background(), ids)

	assert.Len(t, got, 11)
	assert.NotContains(t, got, ids[3])
	assert.Equal(t, 1, reg.count("unit:"+ids[0]))
}

func TestBatchLookup_Cancelled(t *testing.T) {
	reg := newFakeRegistry()
	ids := []string{"900000001", "900000002", "900000003"}
	for _, id := range ids {
		reg.units[id] = unit(id, "CO", "0150", "AS", 50)
	}
	o := NewOracle(reg, WithConcurrency(1), WithWavePause(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, errs := o.batchLookup(ctx, ids)
	assert.Len(t, got, 1)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "cancelled")
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetCachedProfile(ctx context.Context, key string) (*model.RegistryProfile, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RegistryProfile), args.Error(1)
}

func (m *mockCache) SetCachedProfile(ctx context.Context, key string, p *model.RegistryProfile, ttl time.Duration) error {
	return m.Called(ctx, key, p, ttl).Error(0)
}

func TestLookup_PersistentCache(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	reg.units["923609016"] = unit("923609016", "ACME AS", "0150", "AS", 120)

	cache := new(mockCache)
	cached := &model.RegistryProfile{OrgNumber: "911111111", Name: "CACHED AS", LocationCode: "02"}
	cache.On("GetCachedProfile", ctx, "org:911111111").Return(cached, nil).Once()
	cache.On("GetCachedProfile", ctx, "org:923609016").Return(nil, nil).Once()
	cache.On("SetCachedProfile", ctx, "org:923609016", mock.AnythingOfType("*model.RegistryProfile"), 24*time.Hour).
		Return(nil).Once()

	o := newTestOracle(reg, WithCache(cache))

	p, err := o.Lookup(ctx, "911111111")
	require.NoError(t, err)
	assert.Equal(t, "CACHED AS", p.Name)
	assert.Equal(t, 0, reg.count("unit:911111111"))

	p, err = o.Lookup(ctx, "923609016")
	require.NoError(t, err)
	assert.Equal(t, "ACME AS", p.Name)
	cache.AssertExpectations(t)
}

func TestProfileFromUnit(t *testing.T) {
	assert.Nil(t, ProfileFromUnit(nil))

	u := &brreg.Unit{
		OrgNumber: "923609016",
		Name:      "NOADDR AS",
		LegalForm: brreg.Code{Code: "as", Description: "Aksjeselskap"},
		Industry:  &brreg.Code{Code: "64.200", Description: "Holdingselskaper"},
	}
	p := ProfileFromUnit(u)
	assert.Equal(t, "AS", p.LegalForm)
	assert.Equal(t, 0, p.Employees)
	assert.Empty(t, p.LocationCode)
	assert.Equal(t, "64.200", p.IndustryCode)
}

func TestRules_Verify(t *testing.T) {
	rules := DefaultRules()

	base := func() *model.RegistryProfile {
		return &model.RegistryProfile{
			OrgNumber: "923609016", LocationCode: "01", LegalForm: "AS",
			Employees: 120, IndustryCode: "70.220",
		}
	}

	tests := []struct {
		name      string
		mutate    func(p *model.RegistryProfile) *model.RegistryProfile
		hardStop  bool
		excluded  bool
		reason    string
		v         float64
		operating bool
	}{
		{"ok", func(p *model.RegistryProfile) *model.RegistryProfile { return p }, false, false, "", 1, true},
		{"not found", func(*model.RegistryProfile) *model.RegistryProfile { return nil }, true, false, model.ReasonNotFound, 0, false},
		{"outside region", func(p *model.RegistryProfile) *model.RegistryProfile { p.LocationCode = "50"; return p }, true, false, model.ReasonOutsideRegion, 0, false},
		{"prefix 26 outside", func(p *model.RegistryProfile) *model.RegistryProfile { p.LocationCode = "26"; return p }, true, false, model.ReasonOutsideRegion, 0, false},
		{"prefix 39 inside", func(p *model.RegistryProfile) *model.RegistryProfile { p.LocationCode = "39"; return p }, false, false, "", 1, true},
		{"no location", func(p *model.RegistryProfile) *model.RegistryProfile { p.LocationCode = ""; return p }, true, false, model.ReasonOutsideRegion, 0, false},
		{"ENK excluded", func(p *model.RegistryProfile) *model.RegistryProfile { p.LegalForm = "ENK"; return p }, false, true, model.ReasonExcludedForm, 1, true},
		{"small ENK reports form and employee threshold", func(p *model.RegistryProfile) *model.RegistryProfile { p.LegalForm = "ENK"; p.Employees = 5; return p }, false, true, model.ReasonExcludedFormAndSize, 1, true},
		{"large DA excluded by form", func(p *model.RegistryProfile) *model.RegistryProfile { p.LegalForm = "DA"; p.Employees = 45; return p }, false, true, model.ReasonExcludedForm, 1, true},
		{"ANS lowercase excluded", func(p *model.RegistryProfile) *model.RegistryProfile { p.LegalForm = "ans"; return p }, false, true, model.ReasonExcludedForm, 1, true},
		{"too few employees", func(p *model.RegistryProfile) *model.RegistryProfile { p.Employees = 12; return p }, false, true, model.ReasonTooFewEmployees, 1, true},
		{"29 employees excluded", func(p *model.RegistryProfile) *model.RegistryProfile { p.Employees = 29; return p }, false, true, model.ReasonTooFewEmployees, 1, true},
		{"30 employees kept", func(p *model.RegistryProfile) *model.RegistryProfile { p.Employees = 30; return p }, false, false, "", 1, true},
		{"zero employees is unknown", func(p *model.RegistryProfile) *model.RegistryProfile { p.Employees = 0; return p }, false, false, "", 1, true},
		{"holding without employees", func(p *model.RegistryProfile) *model.RegistryProfile {
			p.Employees = 0
			p.IndustryCode = "64.200"
			return p
		}, false, false, "", 1, false},
		{"under liquidation", func(p *model.RegistryProfile) *model.RegistryProfile { p.UnderLiquidation = true; return p }, false, false, "", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := rules.Verify(tt.mutate(base()))
			assert.Equal(t, tt.hardStop, v.HardStop)
			assert.Equal(t, tt.excluded, v.Excluded)
			assert.Equal(t, tt.reason, v.Reason)
			assert.InDelta(t, tt.v, v.V, 1e-9)
			assert.Equal(t, tt.operating, v.OperatingOK)
			assert.Equal(t, tt.hardStop || tt.excluded, v.Rejected())
		})
	}
}

func TestRulesFromConfig(t *testing.T) {
	t.Run("empty uses defaults", func(t *testing.T) {
		r := RulesFromConfig(configRegistry(nil, nil, 0))
		assert.Len(t, r.TargetRegions, 36)
		assert.True(t, r.ExcludedForms["DA"])
		assert.Equal(t, 30, r.MinEmployees)
		assert.Equal(t, "64.200", r.HoldingIndustry)
	})
	t.Run("overrides", func(t *testing.T) {
		r := RulesFromConfig(configRegistry([]string{"01"}, []string{"as"}, 10))
		assert.Len(t, r.TargetRegions, 1)
		assert.True(t, r.ExcludedForms["AS"])
		assert.Equal(t, 10, r.MinEmployees)
	})
}

func TestResolve(t *testing.T) {
	reg := newFakeRegistry()
	reg.units["923609016"] = unit("923609016", "NORDIC STEEL AS", "0150", "AS", 200)
	reg.units["933333333"] = unit("933333333", "WESTCOAST AS", "5003", "AS", 200)
	reg.search["Small Shop"] = []brreg.Unit{*unit("944444444", "SMALL SHOP DA", "0150", "DA", 4)}

	groups := corroborate.GroupSeeds([]model.Seed{
		{ID: "s1", CompanyName: "Nordic Steel AS", OrgNumber: "923609016", SourceType: model.SourceRegistryStatus},
		{ID: "s2", CompanyName: "Westcoast", OrgNumber: "933333333", SourceType: model.SourceNewsWire},
		{ID: "s3", CompanyName: "Small Shop", SourceType: model.SourceNewsWire},
		{ID: "s4", CompanyName: "Ghost Company", SourceType: model.SourceNewsWire},
	})
	require.Len(t, groups, 4)

	o := newTestOracle(reg)
	res, errs := o.Resolve(context.Background(), groups, DefaultRules())
	assert.Empty(t, errs)
	require.Len(t, res, 4)

	assert.False(t, res[0].Verification.Rejected())
	assert.InDelta(t, 1.0, res[0].Verification.V, 1e-9)

	assert.Equal(t, model.ReasonOutsideRegion, res[1].Verification.Reason)

	require.NotNil(t, res[2].Profile)
	assert.Equal(t, "944444444", res[2].Profile.OrgNumber)
	assert.Equal(t, model.ReasonExcludedFormAndSize, res[2].Verification.Reason)
	assert.Equal(t, "legal form DA; 4 employees, below threshold 30", res[2].Verification.Detail)

	assert.Nil(t, res[3].Profile)
	assert.Equal(t, model.ReasonNotFound, res[3].Verification.Reason)
}

func TestResolve_LookupErrorFallsBackToName(t *testing.T) {
	reg := newFakeRegistry()
	reg.fail["923609016"] = assert.AnError
	reg.search["Nordic Steel AS"] = []brreg.Unit{*unit("923609016", "NORDIC STEEL AS", "0150", "AS", 200)}

	groups := corroborate.GroupSeeds([]model.Seed{
		{ID: "s1", CompanyName: "Nordic Steel AS", OrgNumber: "923609016", SourceType: model.SourceRegistryStatus},
	})

	res, errs := newTestOracle(reg).Resolve(context.Background(), groups, DefaultRules())
	require.Len(t, errs, 1)
	require.Len(t, res, 1)
	require.NotNil(t, res[0].Profile)
	assert.False(t, res[0].Verification.Rejected())
}

func configRegistry(regions, forms []string, minEmp int) config.RegistryConfig {
	return config.RegistryConfig{TargetRegions: regions, ExcludedForms: forms, MinEmployees: minEmp}
}
