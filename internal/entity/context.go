package entity

import (
	"time"

	"github.com/NeCTAR-RC/reporting-pollster/internal/clock"
	"github.com/NeCTAR-RC/reporting-pollster/internal/runcache"
	"github.com/NeCTAR-RC/reporting-pollster/internal/source"
	"github.com/NeCTAR-RC/reporting-pollster/internal/target"
	"github.com/NeCTAR-RC/reporting-pollster/internal/watermark"
	"go.uber.org/zap"
)

// RunContext carries the shared collaborators for one run. It is built by
// the orchestrator at run start and threaded explicitly through every
// pipeline; nothing here outlives the run.
type RunContext struct {
	Source     source.Gateway
	Compute    source.ComputeClient
	Target     *target.Gateway
	Watermarks *watermark.Policy
	Cache      *runcache.Cache
	Clock      clock.Clock
	Log        *zap.Logger

	// Schemas maps logical schema names to the actual remote database
	// names; substituted into query templates at compile time.
	Schemas map[string]string

	// DryRun logs the queries that would run without touching the
	// destination or the watermarks.
	DryRun bool
	// ForceUpdate ignores stored watermarks and re-extracts everything.
	ForceUpdate bool

	// RunStart anchors every watermark written during this run.
	RunStart time.Time
}
