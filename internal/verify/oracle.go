// Package verify resolves company groups against the business register and
// applies the location, legal-form and size rules that gate scoring.
package verify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/pkg/brreg"
)

// Defaults for fan-out and caching.
const (
	DefaultConcurrency = 5
	DefaultWavePause   = 100 * time.Millisecond
	DefaultTTL         = 24 * time.Hour
	DefaultSearchSize  = 5
)

// Cache persists register profiles across runs. Get returns nil for a miss
// or an expired entry.
type Cache interface {
	GetCachedProfile(ctx context.Context, key string) (*model.RegistryProfile, error)
	SetCachedProfile(ctx context.Context, key string, p *model.RegistryProfile, ttl time.Duration) error
}

type entry struct {
	profile *model.RegistryProfile
	expires time.Time
}

// Oracle looks up register profiles by org number or name. Results,
// including misses, are cached in memory for the TTL; hits are also written
// to the optional persistent cache.
type Oracle struct {
	client      brreg.Client
	cache       Cache
	ttl         time.Duration
	concurrency int
	pause       time.Duration
	searchSize  int
	now         func() time.Time
	log         *zap.Logger

	mu  sync.Mutex
	mem map[string]entry
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithCache sets the persistent profile cache.
func WithCache(c Cache) Option {
	return func(o *Oracle) { o.cache = c }
}

// WithTTL sets the cache TTL.
func WithTTL(d time.Duration) Option {
	return func(o *Oracle) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithConcurrency sets the wave size for batch lookups.
func WithConcurrency(n int) Option {
	return func(o *Oracle) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithWavePause sets the pause between lookup waves.
func WithWavePause(d time.Duration) Option {
	return func(o *Oracle) {
		if d >= 0 {
			o.pause = d
		}
	}
}

// WithSearchSize sets how many name-search hits are considered.
func WithSearchSize(n int) Option {
	return func(o *Oracle) {
		if n > 0 {
			o.searchSize = n
		}
	}
}

// WithLogger sets the oracle logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Oracle) { o.log = l }
}

// NewOracle creates an Oracle over a register client.
func NewOracle(client brreg.Client, opts ...Option) *Oracle {
	o := &Oracle{
		client:      client,
		ttl:         DefaultTTL,
		concurrency: DefaultConcurrency,
		pause:       DefaultWavePause,
		searchSize:  DefaultSearchSize,
		now:         time.Now,
		log:         zap.L(),
		mem:         make(map[string]entry),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func orgKey(id string) string    { return "org:" + id }
func nameKey(name string) string { return "name:" + strings.ToLower(strings.TrimSpace(name)) }

// cached returns the profile for key and whether the key was present.
func (o *Oracle) cached(ctx context.Context, key string) (*model.RegistryProfile, bool) {
	o.mu.Lock()
	e, ok := o.mem[key]
	o.mu.Unlock()
	if ok && o.now().Before(e.expires) {
		return e.profile, true
	}

	if o.cache == nil {
		return nil, false
	}
	p, err := o.cache.GetCachedProfile(ctx, key)
	if err != nil {
		o.log.Warn("verify: cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if p == nil {
		return nil, false
	}
	o.remember(key, p)
	return p, true
}

func (o *Oracle) remember(key string, p *model.RegistryProfile) {
	o.mu.Lock()
	o.mem[key] = entry{profile: p, expires: o.now().Add(o.ttl)}
	o.mu.Unlock()
}

func (o *Oracle) store(ctx context.Context, p *model.RegistryProfile, keys ...string) {
	for _, k := range keys {
		o.remember(k, p)
		if o.cache == nil || p == nil {
			continue
		}
		if err := o.cache.SetCachedProfile(ctx, k, p, o.ttl); err != nil {
			o.log.Warn("verify: cache write failed", zap.String("key", k), zap.Error(err))
		}
	}
}

// Lookup resolves one org number. It returns nil, nil when the register has
// no such unit. Main units are tried first, then sub-units; a sub-unit with
// no address inherits its parent's.
func (o *Oracle) Lookup(ctx context.Context, orgNumber string) (*model.RegistryProfile, error) {
	id := model.NormalizeOrgNumber(orgNumber)
	if id == "" {
		return nil, nil
	}
	if p, ok := o.cached(ctx, orgKey(id)); ok {
		return p, nil
	}

	unit, err := o.client.GetUnit(ctx, id)
	if eris.Is(err, brreg.ErrNotFound) {
		unit, err = o.client.GetSubUnit(ctx, id)
		if err == nil {
			o.inheritAddress(ctx, unit)
		}
	}
	if eris.Is(err, brreg.ErrNotFound) {
		o.store(ctx, nil, orgKey(id))
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "verify: lookup %s", id)
	}

	p := ProfileFromUnit(unit)
	o.store(ctx, p, orgKey(id))
	return p, nil
}

func (o *Oracle) inheritAddress(ctx context.Context, unit *brreg.Unit) {
	if a := unit.Address(); a != nil && a.PostalCode != "" {
		return
	}
	if unit.ParentOrgNumber == "" {
		return
	}
	parent, err := o.client.GetUnit(ctx, unit.ParentOrgNumber)
	if err != nil {
		o.log.Debug("verify: parent unit lookup failed",
			zap.String("org_number", unit.OrgNumber),
			zap.String("parent", unit.ParentOrgNumber),
			zap.Error(err),
		)
		return
	}
	unit.LocationAddress = parent.Address()
}

// SearchByName resolves a company name to the first hit that is not being
// wound up, or the first hit when all are. The result is cached under both
// the name and the resolved org number.
func (o *Oracle) SearchByName(ctx context.Context, name string) (*model.RegistryProfile, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	if p, ok := o.cached(ctx, nameKey(name)); ok {
		return p, nil
	}

	units, err := o.client.SearchByName(ctx, name, o.searchSize)
	if err != nil {
		return nil, eris.Wrapf(err, "verify: search %q", name)
	}
	if len(units) == 0 {
		o.store(ctx, nil, nameKey(name))
		return nil, nil
	}

	pick := &units[0]
	for i := range units {
		if !units[i].UnderLiquidation && !units[i].ForcedDissolution {
			pick = &units[i]
			break
		}
	}

	p := ProfileFromUnit(pick)
	o.store(ctx, p, nameKey(name), orgKey(p.OrgNumber))
	return p, nil
}

// BatchLookup resolves org numbers in waves of bounded concurrency. Failed
// and missing lookups are absent from the result.
func (o *Oracle) BatchLookup(ctx context.Context, ids []string) map[string]*model.RegistryProfile {
	out, errs := o.batchLookup(ctx, ids)
	for _, err := range errs {
		o.log.Warn("verify: lookup failed", zap.Error(err))
	}
	return out
}

func (o *Oracle) batchLookup(ctx context.Context, ids []string) (map[string]*model.RegistryProfile, []error) {
	seen := make(map[string]bool, len(ids))
	var unique []string
	for _, id := range ids {
		id = model.NormalizeOrgNumber(id)
		if id != "" && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	var mu sync.Mutex
	out := make(map[string]*model.RegistryProfile, len(unique))
	errs := o.waves(ctx, unique, func(ctx context.Context, id string) error {
		p, err := o.Lookup(ctx, id)
		if err != nil {
			return err
		}
		if p != nil {
			mu.Lock()
			out[id] = p
			mu.Unlock()
		}
		return nil
	})
	return out, errs
}

// waves runs fn over keys, at most o.concurrency at a time, pausing between
// waves. Errors are collected, never short-circuiting other keys.
func (o *Oracle) waves(ctx context.Context, keys []string, fn func(context.Context, string) error) []error {
	var (
		mu   sync.Mutex
		errs []error
	)
	for start := 0; start < len(keys); start += o.concurrency {
		if start > 0 && o.pause > 0 {
			select {
			case <-ctx.Done():
				return append(errs, eris.Wrap(ctx.Err(), "verify: lookups cancelled"))
			case <-time.After(o.pause):
			}
		}

		end := min(start+o.concurrency, len(keys))
		var g errgroup.Group
		for _, key := range keys[start:end] {
			g.Go(func() error {
				if err := fn(ctx, key); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return errs
}

// ProfileFromUnit maps a register unit to a profile. The location code is
// the two-digit postal prefix; an unreported employee count becomes 0.
func ProfileFromUnit(u *brreg.Unit) *model.RegistryProfile {
	if u == nil {
		return nil
	}
	p := &model.RegistryProfile{
		OrgNumber:         model.NormalizeOrgNumber(u.OrgNumber),
		Name:              u.Name,
		LegalForm:         strings.ToUpper(u.LegalForm.Code),
		LegalFormName:     u.LegalForm.Description,
		Bankrupt:          u.Bankrupt,
		UnderLiquidation:  u.UnderLiquidation,
		ForcedDissolution: u.ForcedDissolution,
		ParentOrgNumber:   u.ParentOrgNumber,
	}
	if u.Employees != nil {
		p.Employees = *u.Employees
	}
	if u.Industry != nil {
		p.IndustryCode = u.Industry.Code
		p.IndustryName = u.Industry.Description
	}
	if a := u.Address(); a != nil {
		p.PostalCode = strings.TrimSpace(a.PostalCode)
		p.Municipality = a.Municipality
		if len(p.PostalCode) >= 2 {
			p.LocationCode = p.PostalCode[:2]
		}
	}
	return p
}
