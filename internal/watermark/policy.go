package watermark

import (
	"context"
	"time"
)

// Policy resolves the incremental window start for one run. Resolution
// order: an explicit run-level override applies uniformly to every table; a
// force-full run yields no window even when a watermark is stored; otherwise
// the stored watermark, reduced by the safety margin, is used.
type Policy struct {
	store     *Store
	override  *time.Time
	forceFull bool
	margin    time.Duration
}

func NewPolicy(store *Store, margin time.Duration) *Policy {
	return &Policy{
		store:  store,
		margin: margin,
	}
}

// WithOverride returns a policy that short-circuits every lookup to the
// given timestamp.
func (p *Policy) WithOverride(t time.Time) *Policy {
	cp := *p
	cp.override = &t
	return &cp
}

// WithForceFull returns a policy that ignores stored watermarks entirely.
func (p *Policy) WithForceFull() *Policy {
	cp := *p
	cp.forceFull = true
	return &cp
}

// LastUpdate returns the window start for the table, or nil when the run
// should extract the full dataset.
func (p *Policy) LastUpdate(ctx context.Context, table string) (*time.Time, error) {
	if p.override != nil {
		t := *p.override
		return &t, nil
	}
	if p.forceFull {
		return nil, nil
	}
	stored, err := p.store.LastUpdate(ctx, table)
	if err != nil || stored == nil {
		return nil, err
	}
	t := stored.Add(-p.margin)
	return &t, nil
}

// Store exposes the underlying store for the load phase's watermark write.
func (p *Policy) Store() *Store {
	return p.store
}
