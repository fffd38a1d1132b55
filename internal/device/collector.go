package device

import "context"

// Collector produces a fresh Snapshot. Implementations may be slow (several
// syscalls, a WMI query, a round trip to a companion app) and may fail.
type Collector interface {
	Collect(ctx context.Context) (Snapshot, error)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(ctx context.Context) (Snapshot, error)

// Collect calls f(ctx).
func (f CollectorFunc) Collect(ctx context.Context) (Snapshot, error) { return f(ctx) }
