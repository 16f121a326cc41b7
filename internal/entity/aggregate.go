package entity

import (
	"context"
	"strings"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
	"github.com/NeCTAR-RC/reporting-pollster/internal/runcache"
	"github.com/NeCTAR-RC/reporting-pollster/internal/source"
)

// aggregateDescriptor syncs host aggregates from the compute API. This
// pipeline is the canonical source of the host → availability-zone mapping,
// which it publishes for the hypervisor pipeline to consume.
func aggregateDescriptor() Descriptor {
	return Descriptor{
		Table: "aggregate",
		Queries: map[string]string{
			"update": "replace into aggregate (id, availability_zone, name, created, " +
				"deleted, active) values (@id, @availability_zone, " +
				"@name, @created, @deleted, @active)",
			"aggregate_host": "replace into aggregate_host (id, availability_zone, host) " +
				"values (@id, @availability_zone, @host)",
		},
		New: func(rc *RunContext) Pipeline { return newAggregate(rc) },
	}
}

type AggregateEntity struct {
	base
	apiData  []source.Aggregate
	aggData  []record.Record
	hostData []record.Record
	hostAZ   map[string]string
}

func newAggregate(rc *RunContext) *AggregateEntity {
	return &AggregateEntity{
		base:   newBase(rc, aggregateDescriptor()),
		hostAZ: make(map[string]string),
	}
}

func newAggRecord() record.Record {
	return record.Record{
		"id":                nil,
		"availability_zone": nil,
		"name":              nil,
		"created":           nil,
		"deleted":           nil,
		"active":            nil,
	}
}

func newAggHostRecord() record.Record {
	return record.Record{
		"id":                nil,
		"availability_zone": nil,
		"host":              nil,
	}
}

func (a *AggregateEntity) Process(ctx context.Context) error { return a.runPhases(ctx, a) }

func (a *AggregateEntity) extract(ctx context.Context) error {
	if a.rc.DryRun {
		a.log.Info("extracting API data (dry run)")
		return nil
	}
	listings, err := a.rc.Compute.ListAggregates(ctx)
	if err != nil {
		return err
	}
	a.apiData = listings
	return nil
}

func (a *AggregateEntity) transform() error {
	// Two pieces of data come out of the one API listing: the aggregate
	// itself and its host membership. Newton and above use a globally unique
	// integer id; older cells used a routed "cell!az@id" form where the
	// availability_zone field actually carried the cell name.
	a.aggData = make([]record.Record, 0, len(a.apiData))
	a.hostData = nil
	for _, listing := range a.apiData {
		id := listing.ID
		az := listing.AvailabilityZone
		if prefix, local, routed := parseRoutedID(id); routed {
			// for aggregates the routing prefix after the cell is the AZ
			az = prefix
			id = local
		}

		agg := newAggRecord()
		agg["id"] = id
		agg["availability_zone"] = az
		agg["name"] = listing.Name
		agg["created"] = listing.CreatedAt
		agg["deleted"] = listing.DeletedAt
		agg["active"] = !listing.Deleted
		a.aggData = append(a.aggData, agg)

		for _, host := range listing.Hosts {
			hname := shortHostname(host)
			h := newAggHostRecord()
			h["id"] = id
			h["availability_zone"] = az
			h["host"] = hname
			a.hostData = append(a.hostData, h)

			a.hostAZ[hname] = az
		}
	}
	a.rc.Cache.Publish(runcache.KeyHypervisorAZ, a.hostAZ)
	return nil
}

func (a *AggregateEntity) load(ctx context.Context) error {
	if err := a.loadReplace(ctx, a.aggData); err != nil {
		return err
	}
	// Hosts can belong to more than one aggregate; the membership table gets
	// its own watermark. There is a window where the hypervisor table and
	// this mapping can drift within a run; the alternative is one giant
	// transaction across entities, which is worse.
	return a.loadExtra(ctx, "aggregate_host", "aggregate_host", a.hostData)
}

// parseRoutedID splits a legacy routed id of the form "cell!prefix@local".
// Current deployments use plain ids, which pass through unrouted.
func parseRoutedID(id string) (prefix, local string, routed bool) {
	bang := strings.SplitN(id, "!", 2)
	if len(bang) != 2 {
		return "", id, false
	}
	at := strings.SplitN(bang[1], "@", 2)
	if len(at) != 2 {
		return "", id, false
	}
	return at[0], at[1], true
}

// shortHostname trims a FQDN to the host part, which is the key nova uses
// in the host aggregate relationship.
func shortHostname(host string) string {
	return strings.SplitN(host, ".", 2)[0]
}
