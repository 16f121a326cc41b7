package entity

import (
	"context"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
)

// roleDescriptor syncs the user/project role assignments, filtered to the
// relations whose user and project both still exist. Always a full sync.
func roleDescriptor() Descriptor {
	return Descriptor{
		Table: "role",
		Queries: map[string]string{
			"query": "select kr.name as role, ka.actor_id as user, " +
				"ka.target_id as project " +
				"from {keystone}.assignment as ka join {keystone}.role as kr " +
				"on ka.role_id = kr.id " +
				"where ka.type = 'UserProject' " +
				"and exists(select * from {keystone}.user ku " +
				"where ku.id = ka.actor_id) " +
				"and exists(select * from {keystone}.project kp " +
				"where kp.id = ka.target_id)",
			"update": "replace into role " +
				"(role, user, project) " +
				"values (@role, @user, @project)",
		},
		New: func(rc *RunContext) Pipeline { return newRole(rc) },
	}
}

type Role struct {
	base
	dbData []record.Record
	data   []record.Record
}

func newRole(rc *RunContext) *Role {
	return &Role{base: newBase(rc, roleDescriptor())}
}

func newRoleRecord() record.Record {
	return record.Record{
		"role":    nil,
		"user":    nil,
		"project": nil,
	}
}

func (r *Role) Process(ctx context.Context) error { return r.runPhases(ctx, r) }

func (r *Role) extract(ctx context.Context) error {
	rows, err := r.extractFull(ctx)
	if err != nil {
		return err
	}
	r.dbData = rows
	return nil
}

func (r *Role) transform() error {
	r.data = make([]record.Record, 0, len(r.dbData))
	for _, row := range r.dbData {
		r.data = append(r.data, record.Merge(newRoleRecord(), row))
	}
	return nil
}

func (r *Role) load(ctx context.Context) error {
	return r.loadReplace(ctx, r.data)
}
