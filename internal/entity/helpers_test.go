package entity

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/NeCTAR-RC/reporting-pollster/internal/clock"
	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
	"github.com/NeCTAR-RC/reporting-pollster/internal/runcache"
	"github.com/NeCTAR-RC/reporting-pollster/internal/source"
	"github.com/NeCTAR-RC/reporting-pollster/internal/target"
	"github.com/NeCTAR-RC/reporting-pollster/internal/watermark"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testDDL = []string{
	`CREATE TABLE metadata (
		table_name TEXT PRIMARY KEY,
		last_update DATETIME NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE aggregate (
		id TEXT PRIMARY KEY, availability_zone TEXT, name TEXT,
		created DATETIME, deleted DATETIME, active BOOLEAN
	)`,
	`CREATE TABLE aggregate_host (
		id TEXT, availability_zone TEXT, host TEXT,
		PRIMARY KEY (id, host)
	)`,
	`CREATE TABLE hypervisor (
		id TEXT PRIMARY KEY, availability_zone TEXT, host TEXT,
		hostname TEXT, ip_address TEXT, cpus INTEGER, memory INTEGER,
		local_storage INTEGER, last_seen DATETIME
	)`,
	`CREATE TABLE project (
		id TEXT PRIMARY KEY, display_name TEXT, organisation TEXT,
		description TEXT, enabled BOOLEAN, personal BOOLEAN,
		has_instances BOOLEAN, quota_instances INTEGER,
		quota_vcpus INTEGER, quota_memory INTEGER,
		quota_volume_total INTEGER, quota_snapshot INTEGER,
		quota_volume_count INTEGER
	)`,
	`CREATE TABLE user (
		id TEXT PRIMARY KEY, name TEXT, email TEXT,
		default_project TEXT, enabled BOOLEAN
	)`,
	`CREATE TABLE role (
		role TEXT, user TEXT, project TEXT,
		PRIMARY KEY (role, user, project)
	)`,
	`CREATE TABLE flavour (
		id INTEGER PRIMARY KEY, uuid TEXT, name TEXT, vcpus INTEGER,
		memory INTEGER, root INTEGER, ephemeral INTEGER,
		public BOOLEAN, active BOOLEAN
	)`,
	`CREATE TABLE instance (
		id TEXT PRIMARY KEY, project_id TEXT, name TEXT, vcpus INTEGER,
		memory INTEGER, root INTEGER, ephemeral INTEGER, flavour TEXT,
		created_by TEXT, created DATETIME, deleted DATETIME,
		active BOOLEAN, hypervisor TEXT, availability_zone TEXT,
		cell_name TEXT
	)`,
	`CREATE TABLE volume (
		id TEXT PRIMARY KEY, project_id TEXT, display_name TEXT,
		size INTEGER, created DATETIME, deleted DATETIME,
		attached BOOLEAN, instance_uuid TEXT, availability_zone TEXT,
		active BOOLEAN
	)`,
	`CREATE TABLE image (
		id TEXT PRIMARY KEY, project_id TEXT, name TEXT, size INTEGER,
		status TEXT, public BOOLEAN, created DATETIME, deleted DATETIME,
		active BOOLEAN
	)`,
	`CREATE TABLE allocation (
		id INTEGER PRIMARY KEY, project_id TEXT, project_name TEXT,
		contact_email TEXT, approver_email TEXT, chief_investigator TEXT,
		status TEXT, start_date DATE, end_date DATE,
		modified_time DATETIME, field_of_research_1 TEXT,
		for_percentage_1 INTEGER, field_of_research_2 TEXT,
		for_percentage_2 INTEGER, field_of_research_3 TEXT,
		for_percentage_3 INTEGER, funding_national INTEGER,
		funding_node TEXT
	)`,
	`CREATE TABLE historical_usage (
		day DATE PRIMARY KEY, vcpus INTEGER, memory INTEGER,
		local_storage INTEGER
	)`,
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	for _, ddl := range testDDL {
		require.NoError(t, conn.Exec(ddl).Error)
	}
	return conn
}

// stubSource replays canned rows per query and records what was asked.
type stubSource struct {
	rows    map[string][]record.Record
	err     error
	queries []string
	params  []map[string]any
}

func (s *stubSource) Query(_ context.Context, query string, params map[string]any) ([]record.Record, error) {
	s.queries = append(s.queries, query)
	s.params = append(s.params, params)
	if s.err != nil {
		return nil, s.err
	}
	for needle, rows := range s.rows {
		if needle == "" || strings.Contains(query, needle) {
			return rows, nil
		}
	}
	return nil, nil
}

type stubCompute struct {
	aggregates  []source.Aggregate
	hypervisors []source.Hypervisor
	err         error
}

func (s *stubCompute) ListAggregates(context.Context) ([]source.Aggregate, error) {
	return s.aggregates, s.err
}

func (s *stubCompute) ListHypervisors(context.Context) ([]source.Hypervisor, error) {
	return s.hypervisors, s.err
}

type runContextOption func(*RunContext)

func withDryRun() runContextOption {
	return func(rc *RunContext) { rc.DryRun = true }
}

func withForceUpdate() runContextOption {
	return func(rc *RunContext) { rc.ForceUpdate = true }
}

func withCompute(c source.ComputeClient) runContextOption {
	return func(rc *RunContext) { rc.Compute = c }
}

func newTestRunContext(t *testing.T, src source.Gateway, now time.Time, opts ...runContextOption) (*RunContext, *gorm.DB) {
	t.Helper()
	conn := newTestDB(t)
	log := zap.NewNop()
	tgt := target.NewGateway(conn, log)
	store := watermark.NewStore(conn, log)
	clk := clock.NewFakeClock(now)

	rc := &RunContext{
		Source:     src,
		Compute:    &stubCompute{},
		Target:     tgt,
		Watermarks: watermark.NewPolicy(store, 10*time.Minute),
		Cache:      runcache.New(),
		Clock:      clk,
		Log:        log,
		Schemas: map[string]string{
			"keystone":     "keystone",
			"nova":         "nova",
			"cinder":       "cinder",
			"glance":       "glance",
			"rcshibboleth": "rcshibboleth",
			"dashboard":    "dashboard",
		},
		RunStart: clk.Now(),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc, conn
}
