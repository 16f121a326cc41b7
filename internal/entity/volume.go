package entity

import (
	"context"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
)

// volumeDescriptor syncs volumes with their live attachment, if any.
func volumeDescriptor() Descriptor {
	return Descriptor{
		Table: "volume",
		Queries: map[string]string{
			"query": "select distinct v.id, v.project_id, v.display_name, v.size, " +
				"v.created_at as created, v.deleted_at as deleted, " +
				"if(v.attach_status='attached',true,false) as attached, " +
				"a.instance_uuid, v.availability_zone, not v.deleted as active " +
				"from {cinder}.volumes as v left join " +
				"{cinder}.volume_attachment as a " +
				"on v.id = a.volume_id and a.deleted = 0",
			"query_last_update": "select distinct v.id, v.project_id, v.display_name, v.size, " +
				"v.created_at as created, v.deleted_at as deleted, " +
				"if(v.attach_status='attached',true,false) as attached, " +
				"a.instance_uuid, v.availability_zone, not v.deleted as active " +
				"from {cinder}.volumes as v left join " +
				"{cinder}.volume_attachment as a " +
				"on v.id = a.volume_id and a.deleted = 0 " +
				"where ifnull(v.deleted_at, now()) > @last_update " +
				"or v.updated_at > @last_update",
			"update": "replace into volume " +
				"(id, project_id, display_name, size, created, deleted, attached, " +
				"instance_uuid, availability_zone, active) " +
				"values (@id, @project_id, @display_name, @size, " +
				"@created, @deleted, @attached, @instance_uuid, " +
				"@availability_zone, @active)",
		},
		New: func(rc *RunContext) Pipeline { return newVolume(rc) },
	}
}

type Volume struct {
	base
	dbData []record.Record
	data   []record.Record
}

func newVolume(rc *RunContext) *Volume {
	return &Volume{base: newBase(rc, volumeDescriptor())}
}

func newVolumeRecord() record.Record {
	return record.Record{
		"id":                nil,
		"project_id":        nil,
		"display_name":      nil,
		"size":              nil,
		"created":           nil,
		"deleted":           nil,
		"attached":          nil,
		"instance_uuid":     nil,
		"availability_zone": nil,
		"active":            nil,
	}
}

func (v *Volume) Process(ctx context.Context) error { return v.runPhases(ctx, v) }

func (v *Volume) extract(ctx context.Context) error {
	rows, err := v.extractWindowed(ctx)
	if err != nil {
		return err
	}
	v.dbData = rows
	return nil
}

func (v *Volume) transform() error {
	v.data = make([]record.Record, 0, len(v.dbData))
	for _, row := range v.dbData {
		v.data = append(v.data, record.Merge(newVolumeRecord(), row))
	}
	return nil
}

func (v *Volume) load(ctx context.Context) error {
	return v.loadReplace(ctx, v.data)
}
