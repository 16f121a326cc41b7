package entity

import (
	"context"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
)

// imageDescriptor syncs glance images.
func imageDescriptor() Descriptor {
	return Descriptor{
		Table: "image",
		Queries: map[string]string{
			"query": "select id, owner as project_id, name, size, status, " +
				"is_public as public, created_at as created, " +
				"deleted_at as deleted, not deleted as active " +
				"from {glance}.images",
			"query_last_update": "select id, owner as project_id, name, size, status, " +
				"is_public as public, created_at as created, " +
				"deleted_at as deleted, not deleted as active " +
				"from {glance}.images " +
				"where ifnull(deleted_at, now()) > @last_update " +
				"or updated_at > @last_update",
			"update": "replace into image " +
				"(id, project_id, name, size, status, public, created, deleted, " +
				"active) values (@id, @project_id, @name, @size, " +
				"@status, @public, @created, @deleted, @active)",
		},
		New: func(rc *RunContext) Pipeline { return newImage(rc) },
	}
}

type Image struct {
	base
	dbData []record.Record
	data   []record.Record
}

func newImage(rc *RunContext) *Image {
	return &Image{base: newBase(rc, imageDescriptor())}
}

func newImageRecord() record.Record {
	return record.Record{
		"id":         nil,
		"project_id": nil,
		"name":       nil,
		"size":       nil,
		"status":     nil,
		"public":     nil,
		"created":    nil,
		"deleted":    nil,
		"active":     nil,
	}
}

func (i *Image) Process(ctx context.Context) error { return i.runPhases(ctx, i) }

func (i *Image) extract(ctx context.Context) error {
	rows, err := i.extractWindowed(ctx)
	if err != nil {
		return err
	}
	i.dbData = rows
	return nil
}

func (i *Image) transform() error {
	i.data = make([]record.Record, 0, len(i.dbData))
	for _, row := range i.dbData {
		i.data = append(i.data, record.Merge(newImageRecord(), row))
	}
	return nil
}

func (i *Image) load(ctx context.Context) error {
	return i.loadReplace(ctx, i.data)
}
