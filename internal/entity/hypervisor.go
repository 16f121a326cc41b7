package entity

import (
	"context"
	"errors"
	"strconv"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
	"github.com/NeCTAR-RC/reporting-pollster/internal/runcache"
	"github.com/NeCTAR-RC/reporting-pollster/internal/source"
)

// hypervisorDescriptor syncs compute nodes from the compute API. The listing
// itself carries no availability zone; that comes from the host → AZ map the
// aggregate pipeline published earlier in the run, falling back to the cell
// name for historical consistency.
func hypervisorDescriptor() Descriptor {
	return Descriptor{
		Table: "hypervisor",
		After: []string{"aggregate"},
		Queries: map[string]string{
			"update": "replace into hypervisor " +
				"(id, availability_zone, host, hostname, ip_address, cpus, " +
				"memory, local_storage, last_seen) " +
				"values (@id, @availability_zone, @host, @hostname, " +
				"@ip_address, @cpus, @memory, @local_storage, null)",
		},
		New: func(rc *RunContext) Pipeline { return newHypervisor(rc) },
	}
}

type Hypervisor struct {
	base
	apiData []source.Hypervisor
	hostAZ  map[string]string
	data    []record.Record
}

func newHypervisor(rc *RunContext) *Hypervisor {
	return &Hypervisor{
		base:   newBase(rc, hypervisorDescriptor()),
		hostAZ: make(map[string]string),
	}
}

func newHypervisorRecord() record.Record {
	return record.Record{
		"id":                nil,
		"availability_zone": nil,
		"host":              nil,
		"hostname":          nil,
		"ip_address":        nil,
		"cpus":              nil,
		"memory":            nil,
		"local_storage":     nil,
	}
}

func (h *Hypervisor) Process(ctx context.Context) error { return h.runPhases(ctx, h) }

func (h *Hypervisor) extract(ctx context.Context) error {
	if h.rc.DryRun {
		h.log.Info("extracting API data (dry run)")
	} else {
		listings, err := h.rc.Compute.ListHypervisors(ctx)
		if err != nil {
			return err
		}
		h.apiData = listings
	}

	cached, err := h.rc.Cache.Fetch(runcache.KeyHypervisorAZ)
	if err != nil {
		if !errors.Is(err, runcache.ErrNotFound) {
			return err
		}
		// aggregate pipeline did not run this time; fall back to cell names
		return nil
	}
	h.hostAZ = cached.(map[string]string)
	return nil
}

func (h *Hypervisor) transform() error {
	h.data = make([]record.Record, 0, len(h.apiData))
	for _, hv := range h.apiData {
		cell, id, _ := parseRoutedID(hv.ID)
		hname := shortHostname(hv.Hostname)
		az, ok := h.hostAZ[hname]
		if !ok {
			// the cell name keeps some historical consistency when the host
			// is in no aggregate
			az = cell
		}

		r := newHypervisorRecord()
		r["id"] = hypervisorID(id)
		r["availability_zone"] = az
		r["host"] = hname
		r["hostname"] = hv.Hostname
		r["ip_address"] = hv.HostIP
		r["cpus"] = hv.VCPUs
		r["memory"] = hv.MemoryMB
		r["local_storage"] = hv.LocalGB
		h.data = append(h.data, r)
	}
	return nil
}

func (h *Hypervisor) load(ctx context.Context) error {
	return h.loadReplace(ctx, h.data)
}

func hypervisorID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
