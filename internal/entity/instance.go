package entity

import (
	"context"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
	"github.com/NeCTAR-RC/reporting-pollster/internal/runcache"
)

// instanceDescriptor syncs nova instances. The same extract feeds two
// derived outputs: the daily historical usage table, and the project →
// has-instances map consumed by the project pipeline later in the run.
func instanceDescriptor() Descriptor {
	return Descriptor{
		Table: "instance",
		Queries: map[string]string{
			"query": "select project_id, uuid as id, display_name as name, vcpus, " +
				"memory_mb as memory, root_gb as root, ephemeral_gb as ephemeral, " +
				"instance_type_id as flavour, user_id as created_by, " +
				"created_at as created, deleted_at as deleted, " +
				"if(deleted <> 0, false, true) as active, " +
				"host as hypervisor, availability_zone, cell_name " +
				"from {nova}.instances order by created_at",
			"query_last_update": "select project_id, uuid as id, display_name as name, vcpus, " +
				"memory_mb as memory, root_gb as root, ephemeral_gb as ephemeral, " +
				"instance_type_id as flavour, user_id as created_by, " +
				"created_at as created, deleted_at as deleted, " +
				"if(deleted <> 0, false, true) as active, " +
				"host as hypervisor, availability_zone, cell_name " +
				"from {nova}.instances " +
				"where ifnull(deleted_at, now()) > @last_update " +
				"or updated_at > @last_update " +
				"order by created_at",
			"update": "replace into instance " +
				"(project_id, id, name, vcpus, memory, root, ephemeral, flavour, " +
				"created_by, created, deleted, active, hypervisor, " +
				"availability_zone, cell_name) " +
				"values (@project_id, @id, @name, @vcpus, @memory, @root, " +
				"@ephemeral, @flavour, @created_by, @created, @deleted, " +
				"@active, @hypervisor, @availability_zone, @cell_name)",
			"hist_agg": "replace into historical_usage " +
				"(day, vcpus, memory, local_storage) " +
				"values (@day, @vcpus, @memory, @local_storage)",
		},
		New: func(rc *RunContext) Pipeline { return newInstance(rc) },
	}
}

type Instance struct {
	base
	dbData   []record.Record
	data     []record.Record
	histData []record.Record
}

func newInstance(rc *RunContext) *Instance {
	return &Instance{base: newBase(rc, instanceDescriptor())}
}

func newInstanceRecord() record.Record {
	return record.Record{
		"project_id":        nil,
		"id":                nil,
		"name":              nil,
		"vcpus":             nil,
		"memory":            nil,
		"root":              nil,
		"ephemeral":         nil,
		"flavour":           nil,
		"created_by":        nil,
		"created":           nil,
		"deleted":           nil,
		"active":            nil,
		"hypervisor":        nil,
		"availability_zone": nil,
		"cell_name":         nil,
	}
}

func (i *Instance) Process(ctx context.Context) error { return i.runPhases(ctx, i) }

func (i *Instance) extract(ctx context.Context) error {
	rows, err := i.extractWindowed(ctx)
	if err != nil {
		return err
	}
	i.dbData = rows
	return nil
}

func (i *Instance) transform() error {
	hasInstances := make(map[string]bool)
	i.data = make([]record.Record, 0, len(i.dbData))
	for _, row := range i.dbData {
		i.data = append(i.data, record.Merge(newInstanceRecord(), row))
		if pid := record.String(row["project_id"]); pid != "" {
			hasInstances[pid] = true
		}
	}
	i.rc.Cache.Publish(runcache.KeyHasInstance, hasInstances)

	i.histData = historicalUsage(i.dbData, i.window, i.rc.Clock.Now())
	return nil
}

func (i *Instance) load(ctx context.Context) error {
	if err := i.loadReplace(ctx, i.data); err != nil {
		return err
	}
	return i.loadExtra(ctx, "hist_agg", "historical_usage", i.histData)
}
