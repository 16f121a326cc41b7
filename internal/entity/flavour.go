package entity

import (
	"context"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
)

// flavourDescriptor syncs instance types. Soft-deleted rows with a null
// deleted_at are clamped to now so they are not spuriously excluded from an
// incremental window.
func flavourDescriptor() Descriptor {
	return Descriptor{
		Table: "flavour",
		Queries: map[string]string{
			"query": "select id, flavorid as uuid, name, vcpus, memory_mb as memory, " +
				"root_gb as root, ephemeral_gb as ephemeral, is_public as public, " +
				"not deleted as active " +
				"from {nova}.instance_types",
			"query_last_update": "select id, flavorid as uuid, name, vcpus, memory_mb as memory, " +
				"root_gb as root, ephemeral_gb as ephemeral, is_public as public, " +
				"not deleted as active " +
				"from {nova}.instance_types " +
				"where ifnull(deleted_at, now()) > @last_update " +
				"or updated_at > @last_update",
			"update": "replace into flavour " +
				"(id, uuid, name, vcpus, memory, root, ephemeral, public, active) " +
				"values (@id, @uuid, @name, @vcpus, @memory, " +
				"@root, @ephemeral, @public, @active)",
		},
		New: func(rc *RunContext) Pipeline { return newFlavour(rc) },
	}
}

type Flavour struct {
	base
	dbData []record.Record
	data   []record.Record
}

func newFlavour(rc *RunContext) *Flavour {
	return &Flavour{base: newBase(rc, flavourDescriptor())}
}

func newFlavourRecord() record.Record {
	return record.Record{
		"id":        nil,
		"uuid":      nil,
		"name":      nil,
		"vcpus":     nil,
		"memory":    nil,
		"root":      nil,
		"ephemeral": nil,
		"public":    nil,
		"active":    nil,
	}
}

func (f *Flavour) Process(ctx context.Context) error { return f.runPhases(ctx, f) }

func (f *Flavour) extract(ctx context.Context) error {
	rows, err := f.extractWindowed(ctx)
	if err != nil {
		return err
	}
	f.dbData = rows
	return nil
}

func (f *Flavour) transform() error {
	f.data = make([]record.Record, 0, len(f.dbData))
	for _, row := range f.dbData {
		f.data = append(f.data, record.Merge(newFlavourRecord(), row))
	}
	return nil
}

func (f *Flavour) load(ctx context.Context) error {
	return f.loadReplace(ctx, f.data)
}
