package entity

import (
	"errors"
	"fmt"
	"sort"
)

var ErrTableNotFound = errors.New("table not found")

// Descriptor is the static description of one entity type: its destination
// table, the tables that must be processed before it in a run, its query
// templates and its pipeline factory. Exactly one descriptor exists per
// table name.
type Descriptor struct {
	Table string
	// After lists tables whose pipelines publish derived data this entity
	// consumes; the orchestrator orders the run accordingly.
	After   []string
	Queries map[string]string
	New     func(*RunContext) Pipeline
}

var registry = buildRegistry(
	aggregateDescriptor(),
	hypervisorDescriptor(),
	projectDescriptor(),
	userDescriptor(),
	roleDescriptor(),
	flavourDescriptor(),
	instanceDescriptor(),
	volumeDescriptor(),
	imageDescriptor(),
	allocationDescriptor(),
)

func buildRegistry(descriptors ...Descriptor) map[string]Descriptor {
	m := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if _, dup := m[d.Table]; dup {
			panic(fmt.Sprintf("duplicate entity descriptor for table %s", d.Table))
		}
		m[d.Table] = d
	}
	return m
}

// Lookup returns the descriptor for a table name; unknown names are a
// checked error, surfaced before any entity runs.
func Lookup(table string) (Descriptor, error) {
	d, ok := registry[table]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return d, nil
}

// NewPipeline instantiates the pipeline for a table within the given run.
func NewPipeline(table string, rc *RunContext) (Pipeline, error) {
	d, err := Lookup(table)
	if err != nil {
		return nil, err
	}
	return d.New(rc), nil
}

// Tables returns all registered table names, sorted.
func Tables() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
