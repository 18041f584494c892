// Package warehouse defines the metadata model and the read-only client
// contract for a MaxCompute (ODPS) warehouse project.
package warehouse

import "time"

// TableMetadata is one table's complete metadata as captured during a crawl.
// It is created whole on inspection and replaced whole on re-inspection;
// nothing mutates an existing instance.
type TableMetadata struct {
	Name          string           `json:"name"`
	Comment       string           `json:"comment,omitempty"`
	SizeBytes     int64            `json:"size"`
	CreateTime    time.Time        `json:"create_time"`
	LastModified  time.Time        `json:"last_modified_time"`
	IsVirtualView bool             `json:"is_virtual_view,omitempty"`
	LifecycleDays int64            `json:"lifecycle,omitempty"`
	Columns       []ColumnMetadata `json:"columns"`
	Partitions    PartitionStatus  `json:"partition_status"`
}

// ColumnMetadata describes one column. Immutable once attached to a
// TableMetadata.
type ColumnMetadata struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Comment  string `json:"comment,omitempty"`
	Nullable bool   `json:"is_nullable"`
}

// PartitionStatus captures partition freshness for a table. HasData and
// Latest are nil (absent, not false) when the partition scan was skipped.
type PartitionStatus struct {
	IsPartitioned  bool             `json:"is_partitioned"`
	PartitionCount int              `json:"partition_count"`
	HasData        *bool            `json:"has_data,omitempty"`
	Latest         *LatestPartition `json:"latest_partition,omitempty"`
}

// LatestPartition is the most recent partition holding at least one record.
type LatestPartition struct {
	Name        string `json:"name"`
	SizeBytes   int64  `json:"size"`
	RecordCount int64  `json:"record_count"`
}

// ColumnCount returns the number of columns.
func (t *TableMetadata) ColumnCount() int { return len(t.Columns) }

// Clone returns a deep copy, so a prior snapshot's entry can be carried into
// a new snapshot and have its partition status replaced without aliasing.
func (t *TableMetadata) Clone() *TableMetadata {
	if t == nil {
		return nil
	}
	out := *t
	out.Columns = make([]ColumnMetadata, len(t.Columns))
	copy(out.Columns, t.Columns)
	if t.Partitions.HasData != nil {
		v := *t.Partitions.HasData
		out.Partitions.HasData = &v
	}
	if t.Partitions.Latest != nil {
		v := *t.Partitions.Latest
		out.Partitions.Latest = &v
	}
	return &out
}

// Bool returns a pointer to b, for filling PartitionStatus.HasData.
func Bool(b bool) *bool { return &b }
