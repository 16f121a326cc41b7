package entity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Timings records the elapsed wall time of each pipeline phase.
type Timings struct {
	Extract   time.Duration
	Transform time.Duration
	Load      time.Duration
}

// Pipeline is one entity's extract → transform → load state machine, run to
// completion by the orchestrator.
type Pipeline interface {
	Table() string
	Process(ctx context.Context) error
	Timings() Timings
	Rows() int
}

// phases is the per-entity behavior behind Process.
type phases interface {
	extract(ctx context.Context) error
	transform() error
	load(ctx context.Context) error
}

// base carries the machinery shared by all entity pipelines: two-stage query
// templating, the extract decision table, the load/watermark coupling and
// per-phase timing.
type base struct {
	rc   *RunContext
	desc Descriptor
	log  *zap.Logger

	timings Timings
	rows    int
	// window is the resolved incremental window start for this entity, nil
	// for a full extract.
	window *time.Time
}

func newBase(rc *RunContext, desc Descriptor) base {
	return base{
		rc:   rc,
		desc: desc,
		log:  rc.Log.Named("entity." + desc.Table),
	}
}

func (b *base) Table() string    { return b.desc.Table }
func (b *base) Timings() Timings { return b.timings }
func (b *base) Rows() int        { return b.rows }

// query compiles a named query template: schema identifiers ({nova},
// {keystone}, ...) are substituted here, while all values stay as named
// parameters bound at execution time.
func (b *base) query(name string) (string, error) {
	tmpl, ok := b.desc.Queries[name]
	if !ok {
		return "", fmt.Errorf("entity %s: no query %q", b.desc.Table, name)
	}
	return expandSchemas(tmpl, b.rc.Schemas), nil
}

func expandSchemas(query string, schemas map[string]string) string {
	pairs := make([]string, 0, len(schemas)*2)
	for name, actual := range schemas {
		pairs = append(pairs, "{"+name+"}", actual)
	}
	return strings.NewReplacer(pairs...).Replace(query)
}

// resolveWindow asks the watermark policy for this entity's incremental
// window start. A force-update run always takes the unfiltered path.
func (b *base) resolveWindow(ctx context.Context) (*time.Time, error) {
	if b.rc.ForceUpdate {
		return nil, nil
	}
	return b.rc.Watermarks.LastUpdate(ctx, b.desc.Table)
}

// extractWindowed implements the extract decision table: (dry-run?,
// has-window?) selects one of four behaviors. Dry-run only logs the query
// that would run.
func (b *base) extractWindowed(ctx context.Context) ([]record.Record, error) {
	window, err := b.resolveWindow(ctx)
	if err != nil {
		return nil, err
	}
	b.window = window

	if window == nil {
		query, err := b.query("query")
		if err != nil {
			return nil, err
		}
		if b.rc.DryRun {
			b.log.Info("extracting (dry run)", zap.String("query", query))
			return nil, nil
		}
		b.log.Info("extracting")
		return b.rc.Source.Query(ctx, query, nil)
	}

	query, err := b.query("query_last_update")
	if err != nil {
		return nil, err
	}
	if b.rc.DryRun {
		b.log.Info("extracting since last update (dry run)",
			zap.String("query", query),
			zap.Time("last_update", *window),
		)
		return nil, nil
	}
	b.log.Info("extracting since last update", zap.Time("last_update", *window))
	return b.rc.Source.Query(ctx, query, map[string]any{"last_update": *window})
}

// extractFull runs the unfiltered query for entities with no meaningful
// incremental window.
func (b *base) extractFull(ctx context.Context) ([]record.Record, error) {
	query, err := b.query("query")
	if err != nil {
		return nil, err
	}
	if b.rc.DryRun {
		b.log.Info("extracting (dry run)", zap.String("query", query))
		return nil, nil
	}
	b.log.Info("extracting")
	return b.rc.Source.Query(ctx, query, nil)
}

// sideQuery runs an auxiliary extract query with no window.
func (b *base) sideQuery(ctx context.Context, name string) ([]record.Record, error) {
	query, err := b.query(name)
	if err != nil {
		return nil, err
	}
	if b.rc.DryRun {
		b.log.Debug("side query (dry run)", zap.String("query", query))
		return nil, nil
	}
	return b.rc.Source.Query(ctx, query, nil)
}

// loadReplace upserts the batch and advances this entity's watermark as one
// unit. An empty incremental batch is valid and still advances the
// watermark; under dry-run nothing is written.
func (b *base) loadReplace(ctx context.Context, rows []record.Record) error {
	query, err := b.query("update")
	if err != nil {
		return err
	}
	if b.rc.DryRun {
		b.log.Info("loading (dry run)", zap.String("query", query))
		return nil
	}
	b.log.Info("loading", zap.Int("rows", len(rows)))
	err = b.rc.Target.Transaction(ctx, func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := b.rc.Target.UpsertMany(ctx, tx, query, rows); err != nil {
				return err
			}
		}
		return b.rc.Watermarks.Store().SetLastUpdate(ctx, tx, b.desc.Table, b.rc.RunStart)
	})
	if err != nil {
		return err
	}
	b.rows += len(rows)
	return nil
}

// loadExtra upserts rows for an auxiliary table with its own watermark, in
// its own transaction. Used for side tables fed by the same pipeline.
func (b *base) loadExtra(ctx context.Context, queryName, table string, rows []record.Record) error {
	query, err := b.query(queryName)
	if err != nil {
		return err
	}
	if b.rc.DryRun {
		b.log.Info("loading (dry run)",
			zap.String("table", table),
			zap.String("query", query),
		)
		return nil
	}
	b.log.Info("loading", zap.String("table", table), zap.Int("rows", len(rows)))
	err = b.rc.Target.Transaction(ctx, func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := b.rc.Target.UpsertMany(ctx, tx, query, rows); err != nil {
				return err
			}
		}
		return b.rc.Watermarks.Store().SetLastUpdate(ctx, tx, table, b.rc.RunStart)
	})
	if err != nil {
		return err
	}
	b.rows += len(rows)
	return nil
}

// runPhases drives extract → transform → load in order, recording elapsed
// time per phase. Failures are not retried; the error propagates to the
// orchestrator.
func (b *base) runPhases(ctx context.Context, p phases) error {
	b.log.Debug("processing")

	start := time.Now()
	if err := p.extract(ctx); err != nil {
		return fmt.Errorf("%s extract: %w", b.desc.Table, err)
	}
	b.timings.Extract = time.Since(start)

	start = time.Now()
	if err := p.transform(); err != nil {
		return fmt.Errorf("%s transform: %w", b.desc.Table, err)
	}
	b.timings.Transform = time.Since(start)

	start = time.Now()
	if err := p.load(ctx); err != nil {
		return fmt.Errorf("%s load: %w", b.desc.Table, err)
	}
	b.timings.Load = time.Since(start)

	b.log.Debug("processed",
		zap.Duration("extract", b.timings.Extract),
		zap.Duration("transform", b.timings.Transform),
		zap.Duration("load", b.timings.Load),
	)
	return nil
}
