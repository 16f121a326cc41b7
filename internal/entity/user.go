package entity

import (
	"context"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
)

// userDescriptor syncs keystone users joined with their federated identity
// details. The join has no usable update timestamps, so users are always a
// full sync.
func userDescriptor() Descriptor {
	return Descriptor{
		Table: "user",
		Queries: map[string]string{
			"query": "select ku.id as id, ru.displayname as name, ru.email as email, " +
				"ku.default_project_id as default_project, ku.enabled as enabled " +
				"from {keystone}.user as ku join {rcshibboleth}.user as ru " +
				"on ku.id = ru.user_id",
			"update": "replace into user " +
				"(id, name, email, default_project, enabled) " +
				"values (@id, @name, @email, @default_project, @enabled)",
		},
		New: func(rc *RunContext) Pipeline { return newUser(rc) },
	}
}

type User struct {
	base
	dbData []record.Record
	data   []record.Record
}

func newUser(rc *RunContext) *User {
	return &User{base: newBase(rc, userDescriptor())}
}

func newUserRecord() record.Record {
	return record.Record{
		"id":              nil,
		"name":            nil,
		"email":           nil,
		"default_project": nil,
		"enabled":         nil,
	}
}

func (u *User) Process(ctx context.Context) error { return u.runPhases(ctx, u) }

func (u *User) extract(ctx context.Context) error {
	rows, err := u.extractFull(ctx)
	if err != nil {
		return err
	}
	u.dbData = rows
	return nil
}

func (u *User) transform() error {
	u.data = make([]record.Record, 0, len(u.dbData))
	for _, row := range u.dbData {
		u.data = append(u.data, record.Merge(newUserRecord(), row))
	}
	return nil
}

func (u *User) load(ctx context.Context) error {
	return u.loadReplace(ctx, u.data)
}
