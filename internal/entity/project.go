package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
	"github.com/NeCTAR-RC/reporting-pollster/internal/runcache"
)

// projectDescriptor syncs keystone projects with their quota columns, the
// organisation resolved from the tenant manager's identity attributes, and a
// has-instances shortcut column derived by the instance pipeline earlier in
// the run.
func projectDescriptor() Descriptor {
	return Descriptor{
		Table: "project",
		After: []string{"instance"},
		Queries: map[string]string{
			"query": "select distinct kp.id as id, kp.name as display_name, " +
				"kp.description as description, kp.enabled as enabled, " +
				"kp.name like 'pt-%' as personal, " +
				"false as has_instances, " +
				"i.hard_limit as quota_instances, c.hard_limit as quota_vcpus, " +
				"r.hard_limit as quota_memory, " +
				"g.total_limit as quota_volume_total, " +
				"s.total_limit as quota_snapshots, " +
				"v.total_limit as quota_volume_count " +
				"from {keystone}.project as kp left outer join " +
				"( select * from {nova}.quotas where deleted = 0 " +
				"and resource = 'ram' ) " +
				"as r on kp.id = r.project_id left outer join " +
				"( select * from {nova}.quotas where deleted = 0 " +
				"and resource = 'instances' ) " +
				"as i on kp.id = i.project_id left outer join " +
				"( select * from {nova}.quotas where deleted = 0 " +
				"and resource = 'cores' ) " +
				"as c on kp.id = c.project_id left outer join " +
				"( select project_id, " +
				"sum(if(hard_limit>=0,hard_limit,0)) as total_limit " +
				"from {cinder}.quotas where deleted = 0 " +
				"and resource like 'gigabytes%' " +
				"group by project_id ) " +
				"as g on kp.id = g.project_id left outer join " +
				"( select project_id, " +
				"sum(if(hard_limit>=0,hard_limit,0)) as total_limit " +
				"from {cinder}.quotas where deleted = 0 " +
				"and resource like 'volumes%' " +
				"group by project_id ) " +
				"as v on kp.id = v.project_id left outer join " +
				"( select project_id, " +
				"sum(if(hard_limit>=0,hard_limit,0)) as total_limit " +
				"from {cinder}.quotas where deleted = 0 " +
				"and resource like 'snapshots%' " +
				"group by project_id ) " +
				"as s on kp.id = s.project_id",
			"update": "replace into project " +
				"(id, display_name, organisation, description, enabled, personal, " +
				"has_instances, quota_instances, quota_vcpus, quota_memory, " +
				"quota_volume_total, quota_snapshot, quota_volume_count) " +
				"values (@id, @display_name, @organisation, " +
				"@description, @enabled, @personal, @has_instances, " +
				"@quota_instances, @quota_vcpus, @quota_memory, " +
				"@quota_volume_total, @quota_snapshots, " +
				"@quota_volume_count)",
			"tenant_owner": "select ka.target_id as tenant, ka.actor_id as user, " +
				"rc.shibboleth_attributes as shib_attr " +
				"from {keystone}.assignment as ka join {rcshibboleth}.user as rc " +
				"on ka.actor_id = rc.user_id " +
				"where ka.type = 'UserProject' and ka.role_id = " +
				"(select id from {keystone}.role where name = 'TenantManager')",
			"tenant_member": "select ka.target_id as tenant, ka.actor_id as user, " +
				"rc.shibboleth_attributes as shib_attr " +
				"from {keystone}.assignment as ka join {rcshibboleth}.user as rc " +
				"on ka.actor_id = rc.user_id " +
				"where ka.type = 'UserProject' and ka.role_id = " +
				"(select id from {keystone}.role where name = 'Member')",
		},
		New: func(rc *RunContext) Pipeline { return newProject(rc) },
	}
}

type Project struct {
	base
	dbData       []record.Record
	ownerData    []record.Record
	memberData   []record.Record
	hasInstances map[string]bool
	data         []record.Record
}

func newProject(rc *RunContext) *Project {
	return &Project{
		base:         newBase(rc, projectDescriptor()),
		hasInstances: make(map[string]bool),
	}
}

func newProjectRecord() record.Record {
	return record.Record{
		"id":                 nil,
		"display_name":       nil,
		"organisation":       nil,
		"description":        nil,
		"enabled":            nil,
		"personal":           nil,
		"has_instances":      false,
		"quota_instances":    nil,
		"quota_vcpus":        nil,
		"quota_memory":       nil,
		"quota_volume_total": nil,
		"quota_volume_count": nil,
		"quota_snapshots":    nil,
	}
}

func (p *Project) Process(ctx context.Context) error { return p.runPhases(ctx, p) }

func (p *Project) extract(ctx context.Context) error {
	rows, err := p.extractFull(ctx)
	if err != nil {
		return err
	}
	p.dbData = rows

	if p.ownerData, err = p.sideQuery(ctx, "tenant_owner"); err != nil {
		return err
	}
	if p.memberData, err = p.sideQuery(ctx, "tenant_member"); err != nil {
		return err
	}

	cached, err := p.rc.Cache.Fetch(runcache.KeyHasInstance)
	if err != nil {
		if !errors.Is(err, runcache.ErrNotFound) {
			return err
		}
		// instance pipeline did not run; the has_instances column only gets
		// refreshed alongside an instance sync
		return nil
	}
	p.hasInstances = cached.(map[string]bool)
	return nil
}

func (p *Project) transform() error {
	owners, err := tenantAttrIndex(p.ownerData)
	if err != nil {
		return err
	}
	members, err := tenantAttrIndex(p.memberData)
	if err != nil {
		return err
	}

	p.data = make([]record.Record, 0, len(p.dbData))
	for _, tenant := range p.dbData {
		t := record.Merge(newProjectRecord(), tenant)
		id := record.String(tenant["id"])

		// personal trials have no TenantManager; a Member record is the next
		// best source of organisation data, and failing both the
		// organisation stays null - never invented
		attrs, ok := owners[id]
		if !ok {
			attrs, ok = members[id]
		}
		if ok {
			t["organisation"] = resolveOrganisation(attrs)
		}

		if p.hasInstances[id] {
			t["has_instances"] = true
		}
		p.data = append(p.data, t)
	}
	return nil
}

func (p *Project) load(ctx context.Context) error {
	return p.loadReplace(ctx, p.data)
}

// tenantAttrIndex converts the raw role result set into an attribute bag
// per tenant id. The shibboleth attributes column holds a JSON object.
func tenantAttrIndex(rows []record.Record) (map[string]map[string]string, error) {
	index := make(map[string]map[string]string, len(rows))
	for _, row := range rows {
		attrs := make(map[string]string)
		raw := record.String(row["shib_attr"])
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
				return nil, fmt.Errorf("tenant %s: malformed attributes: %w",
					record.String(row["tenant"]), err)
			}
		}
		index[record.String(row["tenant"])] = attrs
	}
	return index, nil
}

// resolveOrganisation picks the best organisation attribute from an identity
// attribute bag. Keys are scanned in sorted order with the last match
// winning, so 'organisation' overrides 'homeorganisation'; the substring
// match also picks up the 'orginisation' misspelling some identity
// providers ship, while the 'type' exclusion skips homeorganisationtype and
// friends. When nothing matches, the mail domain stands in.
func resolveOrganisation(attrs map[string]string) any {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var org string
	for _, k := range keys {
		if (strings.Contains(k, "organi") || strings.Contains(k, "orgini")) &&
			!strings.Contains(k, "type") {
			org = attrs[k]
		}
	}
	if org == "" {
		if mail := attrs["mail"]; strings.Contains(mail, "@") {
			org = strings.SplitN(mail, "@", 2)[1]
		}
	}
	if org == "" {
		return nil
	}
	return org
}
