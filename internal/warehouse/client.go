package warehouse

import "context"

// InspectOptions controls how much of a table is fetched.
type InspectOptions struct {
	// SkipPartitions disables the partition enumeration and latest-partition
	// scan, trading completeness for speed. PartitionStatus.HasData and
	// Latest are then left absent.
	SkipPartitions bool
}

// Client is the read-only view of a warehouse project. All operations honor
// the context deadline; none mutate warehouse state.
type Client interface {
	// ListTables returns every table name currently visible in the project,
	// in listing order. An empty project yields an empty slice, not an error.
	ListTables(ctx context.Context) ([]string, error)

	// TableSize returns the current byte size of one table. It is the cheap
	// probe used by the incremental differ. Returns ErrTableNotFound if the
	// table no longer exists.
	TableSize(ctx context.Context, name string) (int64, error)

	// Inspect fetches the full metadata for one table: schema, size and
	// timestamps, plus partition status unless opts.SkipPartitions is set.
	Inspect(ctx context.Context, name string, opts InspectOptions) (*TableMetadata, error)

	// PartitionStatus re-scans partition freshness for one table. It is
	// invoked even for tables the differ decided not to re-inspect, since
	// new partitions can appear without changing aggregate size.
	PartitionStatus(ctx context.Context, name string) (*PartitionStatus, error)

	// Close releases the underlying connections.
	Close() error
}
