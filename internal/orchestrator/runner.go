package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NeCTAR-RC/reporting-pollster/internal/clock"
	"github.com/NeCTAR-RC/reporting-pollster/internal/config"
	"github.com/NeCTAR-RC/reporting-pollster/internal/entity"
	"github.com/NeCTAR-RC/reporting-pollster/internal/observability/metrics"
	"github.com/NeCTAR-RC/reporting-pollster/internal/runcache"
	"github.com/NeCTAR-RC/reporting-pollster/internal/source"
	"github.com/NeCTAR-RC/reporting-pollster/internal/target"
	"github.com/NeCTAR-RC/reporting-pollster/internal/watermark"
	"go.uber.org/zap"
)

// Options selects what one update run covers and how its incremental
// windows are resolved.
type Options struct {
	// DryRun logs the queries each entity would run without touching the
	// reporting database.
	DryRun bool
	// ForceUpdate ignores stored watermarks; every entity re-extracts its
	// full dataset and a fresh watermark is written.
	ForceUpdate bool

	// Tables limits the run to the named tables. Empty means all.
	Tables []string

	// LastUpdated pins every entity's window start to an absolute point,
	// overriding stored watermarks. The relative flags below do the same
	// anchored to the run start; the first one set wins.
	LastUpdated *time.Time
	LastDay     bool
	LastWeek    bool
	LastMonth   bool
}

// overrideWindow resolves the explicit window start, if any was requested.
func (o Options) overrideWindow(now time.Time) *time.Time {
	if o.LastUpdated != nil {
		t := *o.LastUpdated
		return &t
	}
	var since time.Duration
	switch {
	case o.LastDay:
		since = 24 * time.Hour
	case o.LastWeek:
		since = 7 * 24 * time.Hour
	case o.LastMonth:
		since = 30 * 24 * time.Hour
	default:
		return nil
	}
	t := now.Add(-since)
	return &t
}

// Result is the outcome of one entity pipeline within a run.
type Result struct {
	Table   string
	Rows    int
	Timings entity.Timings
	Err     error
}

// Runner drives one update run: it resolves which tables to process and in
// what order, then runs each entity pipeline to completion sequentially. A
// failing entity is reported and skipped; the rest of the run continues, so
// one broken source never stalls the whole reporting feed.
type Runner struct {
	cfg     config.Config
	source  source.Gateway
	compute source.ComputeClient
	target  *target.Gateway
	clock   clock.Clock
	cache   *runcache.Cache
	log     *zap.Logger
}

func NewRunner(
	cfg config.Config,
	src source.Gateway,
	compute source.ComputeClient,
	tgt *target.Gateway,
	clk clock.Clock,
	log *zap.Logger,
) *Runner {
	return &Runner{
		cfg:     cfg,
		source:  src,
		compute: compute,
		target:  tgt,
		clock:   clk,
		cache:   runcache.New(),
		log:     log.Named("orchestrator"),
	}
}

// Run executes one update run. Unknown table names fail before any entity
// is processed. The returned error is non-nil when any entity failed; the
// per-entity outcomes are always returned.
func (r *Runner) Run(ctx context.Context, opts Options) ([]Result, error) {
	tables := opts.Tables
	if len(tables) == 0 {
		tables = entity.Tables()
	}
	for _, t := range tables {
		if _, err := entity.Lookup(t); err != nil {
			return nil, err
		}
	}
	order, err := orderTables(tables)
	if err != nil {
		return nil, err
	}

	m := metrics.Pollster()
	m.IncRun()
	wallStart := time.Now()
	runStart := r.clock.Now()

	r.cache.Reset()

	policy := watermark.NewPolicy(
		watermark.NewStore(r.target.DB(), r.log),
		r.cfg.WatermarkMargin,
	)
	if override := opts.overrideWindow(runStart); override != nil {
		policy = policy.WithOverride(*override)
		r.log.Info("window override in effect", zap.Time("last_update", *override))
	} else if opts.ForceUpdate {
		policy = policy.WithForceFull()
	}

	rc := &entity.RunContext{
		Source:      r.source,
		Compute:     r.compute,
		Target:      r.target,
		Watermarks:  policy,
		Cache:       r.cache,
		Clock:       r.clock,
		Log:         r.log,
		Schemas:     r.cfg.Schemas,
		DryRun:      opts.DryRun,
		ForceUpdate: opts.ForceUpdate,
		RunStart:    runStart,
	}

	r.log.Info("starting run",
		zap.Strings("tables", order),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("force_update", opts.ForceUpdate),
		zap.Time("run_start", runStart),
	)

	results := make([]Result, 0, len(order))
	failed := 0
	for _, table := range order {
		pipeline, err := entity.NewPipeline(table, rc)
		if err != nil {
			return results, err
		}
		err = pipeline.Process(ctx)

		timings := pipeline.Timings()
		m.ObservePhase(table, metrics.PhaseExtract, timings.Extract)
		m.ObservePhase(table, metrics.PhaseTransform, timings.Transform)
		m.ObservePhase(table, metrics.PhaseLoad, timings.Load)

		if err != nil {
			failed++
			m.IncEntityError(table)
			r.log.Error("entity failed", zap.String("table", table), zap.Error(err))
		} else {
			m.AddRowsLoaded(table, pipeline.Rows())
			r.log.Info("entity processed",
				zap.String("table", table),
				zap.Int("rows", pipeline.Rows()),
				zap.Duration("extract", timings.Extract),
				zap.Duration("transform", timings.Transform),
				zap.Duration("load", timings.Load),
			)
		}
		results = append(results, Result{
			Table:   table,
			Rows:    pipeline.Rows(),
			Timings: timings,
			Err:     err,
		})
	}

	m.ObserveRunDuration(time.Since(wallStart))
	r.log.Info("run complete",
		zap.Int("tables", len(order)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(wallStart)),
	)

	if failed > 0 {
		return results, fmt.Errorf("%d of %d entities failed", failed, len(order))
	}
	return results, nil
}

// orderTables produces a deterministic processing order for the selected
// tables: a topological sort over each descriptor's After edges, breaking
// ties alphabetically. Dependencies outside the selection impose no order;
// the consuming entity falls back to whatever it does without the derived
// data.
func orderTables(tables []string) ([]string, error) {
	selected := make(map[string]bool, len(tables))
	for _, t := range tables {
		selected[t] = true
	}

	indegree := make(map[string]int, len(selected))
	dependents := make(map[string][]string, len(selected))
	for t := range selected {
		indegree[t] = 0
	}
	for t := range selected {
		d, err := entity.Lookup(t)
		if err != nil {
			return nil, err
		}
		for _, dep := range d.After {
			if !selected[dep] {
				continue
			}
			indegree[t]++
			dependents[dep] = append(dependents[dep], t)
		}
	}

	ready := make([]string, 0, len(selected))
	for t, n := range indegree {
		if n == 0 {
			ready = append(ready, t)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(selected))
	for len(ready) > 0 {
		t := ready[0]
		ready = ready[1:]
		order = append(order, t)

		released := make([]string, 0, len(dependents[t]))
		for _, dep := range dependents[t] {
			indegree[dep]--
			if indegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			sort.Strings(ready)
		}
	}
	if len(order) != len(selected) {
		return nil, fmt.Errorf("dependency cycle among tables %v", tables)
	}
	return order, nil
}
