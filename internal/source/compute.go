package source

import (
	"context"
	"time"
)

// Aggregate is one host aggregate as listed by the compute API. The ID keeps
// its wire form: a plain integer for current deployments, or the legacy
// "cell!az@id" routing form for pre-Newton cells.
type Aggregate struct {
	ID               string
	AvailabilityZone string
	Name             string
	CreatedAt        *time.Time
	DeletedAt        *time.Time
	Deleted          bool
	Hosts            []string
}

// Hypervisor is one compute node as listed by the compute API.
type Hypervisor struct {
	ID       string
	Hostname string
	HostIP   string
	VCPUs    int64
	MemoryMB int64
	LocalGB  int64
}

// ComputeClient lists resources from the compute API. The hypervisor listing
// does not carry availability-zone information; that is derived from the
// aggregate listing instead.
type ComputeClient interface {
	ListAggregates(ctx context.Context) ([]Aggregate, error)
	ListHypervisors(ctx context.Context) ([]Hypervisor, error)
}
