// Package budget tracks the ops and wall-clock budget of a qualification run.
// Every classifier, search and scrape call reserves one op before it is made.
package budget

import (
	"sync"
	"time"
)

// Op kinds.
const (
	KindClassify = "classify"
	KindSearch   = "search"
	KindScrape   = "scrape"
	KindQuality  = "quality"
	KindWhyNow   = "why_now"
)

// Stop reasons reported when a reservation is refused.
const (
	ReasonOps      = "ops_budget_exhausted"
	ReasonDeadline = "wall_clock_exhausted"
)

// Budget is safe for concurrent use.
type Budget struct {
	mu       sync.Mutex
	limit    int // 0 = unlimited
	used     int
	byKind   map[string]int
	deadline time.Time // zero = none
	costUSD  float64
	stop     string
	now      func() time.Time
}

// New creates a budget with an ops limit and a wall-clock timeout measured
// from now. A zero limit or timeout disables that dimension.
func New(limit int, timeout time.Duration) *Budget {
	b := &Budget{
		limit:  limit,
		byKind: make(map[string]int),
		now:    time.Now,
	}
	if timeout > 0 {
		b.deadline = b.now().Add(timeout)
	}
	return b
}

// Unlimited returns a budget that never refuses.
func Unlimited() *Budget {
	return New(0, 0)
}

// Reserve takes n ops of kind. It takes all or nothing and reports whether
// the reservation succeeded. A refused reservation records the stop reason.
func (b *Budget) Reserve(kind string, n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.deadline.IsZero() && !b.now().Before(b.deadline) {
		b.setStop(ReasonDeadline)
		return false
	}
	if b.limit > 0 && b.used+n > b.limit {
		b.setStop(ReasonOps)
		return false
	}
	b.used += n
	b.byKind[kind] += n
	return true
}

// TryConsume reserves a single op.
func (b *Budget) TryConsume(kind string) bool {
	return b.Reserve(kind, 1)
}

// Exhausted reports whether no further op can be reserved.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.deadline.IsZero() && !b.now().Before(b.deadline) {
		return true
	}
	return b.limit > 0 && b.used >= b.limit
}

func (b *Budget) setStop(reason string) {
	if b.stop == "" {
		b.stop = reason
	}
}

// StopReason returns why the first reservation was refused, or "".
func (b *Budget) StopReason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stop
}

// Used returns the total ops reserved.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Remaining returns the ops left, or -1 when unlimited.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit <= 0 {
		return -1
	}
	return b.limit - b.used
}

// Counts returns a copy of the ops reserved per kind.
func (b *Budget) Counts() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.byKind))
	for k, v := range b.byKind {
		out[k] = v
	}
	return out
}

// AddCost accumulates the estimated USD cost of calls made under the budget.
func (b *Budget) AddCost(usd float64) {
	b.mu.Lock()
	b.costUSD += usd
	b.mu.Unlock()
}

// CostUSD returns the accumulated cost.
func (b *Budget) CostUSD() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.costUSD
}
