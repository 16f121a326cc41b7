package entity

import (
	"context"
	"sort"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
	"go.uber.org/zap"
)

// allocationDescriptor syncs approved allocation requests from the dashboard
// database. The source table has no uniqueness on project_id, so the
// transform de-duplicates against the allocation id keystone recorded on the
// project.
func allocationDescriptor() Descriptor {
	return Descriptor{
		Table: "allocation",
		Queries: map[string]string{
			"query": "select ra.id, project_id, project_name, " +
				"contact_email, approver_email, " +
				"ci.email as chief_investigator, status, start_date, end_date, " +
				"modified_time, " +
				"field_of_research_1, for_percentage_1, " +
				"field_of_research_2, for_percentage_2, " +
				"field_of_research_3, for_percentage_3, " +
				"funding_national_percent as funding_national, " +
				"funding_node " +
				"from {dashboard}.rcallocation_allocationrequest as ra " +
				"left join {dashboard}.rcallocation_chiefinvestigator as ci " +
				"on ra.id = ci.allocation_id " +
				"where parent_request_id is null and status in ('A', 'X', 'J') " +
				"order by modified_time",
			"query_last_update": "select ra.id, project_id, project_name, " +
				"contact_email, approver_email, " +
				"ci.email as chief_investigator, status, start_date, end_date, " +
				"modified_time, " +
				"field_of_research_1, for_percentage_1, " +
				"field_of_research_2, for_percentage_2, " +
				"field_of_research_3, for_percentage_3, " +
				"funding_national_percent as funding_national, " +
				"funding_node " +
				"from {dashboard}.rcallocation_allocationrequest as ra " +
				"left join {dashboard}.rcallocation_chiefinvestigator as ci " +
				"on ra.id = ci.allocation_id " +
				"where parent_request_id is null and status in ('A', 'X', 'J') " +
				"and modified_time >= @last_update " +
				"order by modified_time",
			"update": "replace into allocation " +
				"(id, project_id, project_name, contact_email, approver_email, " +
				"chief_investigator, status, start_date, end_date, " +
				"modified_time, " +
				"field_of_research_1, for_percentage_1, " +
				"field_of_research_2, for_percentage_2, " +
				"field_of_research_3, for_percentage_3, " +
				"funding_national, funding_node) " +
				"values (@id, @project_id, @project_name, " +
				"@contact_email, @approver_email, @chief_investigator, " +
				"@status, @start_date, @end_date, @modified_time, " +
				"@field_of_research_1, @for_percentage_1, " +
				"@field_of_research_2, @for_percentage_2, " +
				"@field_of_research_3, @for_percentage_3, " +
				"@funding_national, @funding_node)",
			// keystone stores the allocation id inside the project's extra JSON
			// blob; picking it apart with string functions avoids requiring JSON
			// support on the remote server
			"tenant_allocation_id": "select id as project_id, " +
				"replace(replace(substring(extra, " +
				"locate('allocation_id', extra)+16, 5), " +
				"'\"', ''), '}}', '') as allocation_id " +
				"from {keystone}.project where name not like 'pt-%' " +
				"and extra like '%allocation_id%'",
		},
		New: func(rc *RunContext) Pipeline { return newAllocation(rc) },
	}
}

type Allocation struct {
	base
	dbData     []record.Record
	tenantData []record.Record
	data       []record.Record
}

func newAllocation(rc *RunContext) *Allocation {
	return &Allocation{base: newBase(rc, allocationDescriptor())}
}

func (a *Allocation) Process(ctx context.Context) error { return a.runPhases(ctx, a) }

func (a *Allocation) extract(ctx context.Context) error {
	rows, err := a.extractWindowed(ctx)
	if err != nil {
		return err
	}
	a.dbData = rows

	a.tenantData, err = a.sideQuery(ctx, "tenant_allocation_id")
	return err
}

// transform keeps one allocation per project. The extract is ordered by
// modified_time, and the first record seen for a project wins unless
// keystone names a specific allocation id for that project, in which case
// that record replaces it. Records with no project at all are passed through
// untouched, after the de-duplicated ones in project id order, so repeated
// runs over the same input produce the same batch.
func (a *Allocation) transform() error {
	projectAlloc := make(map[string]int64, len(a.tenantData))
	for _, t := range a.tenantData {
		projectAlloc[record.String(t["project_id"])] = record.Int64(t["allocation_id"])
	}
	allocsByID := make(map[int64]record.Record, len(a.dbData))
	for _, alloc := range a.dbData {
		allocsByID[record.Int64(alloc["id"])] = alloc
	}

	perProject := make(map[string]record.Record)
	var nullTenant []record.Record
	for _, alloc := range a.dbData {
		projectID := record.String(alloc["project_id"])
		if projectID == "" {
			r := alloc.Clone()
			r["project_id"] = nil
			nullTenant = append(nullTenant, r)
			continue
		}
		if _, seen := perProject[projectID]; !seen {
			perProject[projectID] = alloc.Clone()
			continue
		}
		// duplicate project id; keystone arbitrates
		if id, ok := projectAlloc[projectID]; ok {
			if winner, ok := allocsByID[id]; ok {
				perProject[projectID] = winner.Clone()
				continue
			}
		}
		a.log.Warn("bogus allocation for project, keeping first seen",
			zap.Int64("allocation_id", record.Int64(alloc["id"])),
			zap.String("project_id", projectID),
		)
	}

	projects := make([]string, 0, len(perProject))
	for p := range perProject {
		projects = append(projects, p)
	}
	sort.Strings(projects)

	a.data = make([]record.Record, 0, len(perProject)+len(nullTenant))
	for _, p := range projects {
		a.data = append(a.data, perProject[p])
	}
	a.data = append(a.data, nullTenant...)
	return nil
}

func (a *Allocation) load(ctx context.Context) error {
	return a.loadReplace(ctx, a.data)
}
