package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCloneIsDeep(t *testing.T) {
	orig := &TableMetadata{
		Name:      "orders",
		SizeBytes: 100,
		Columns: []ColumnMetadata{
			{Name: "id", Type: "bigint"},
		},
		Partitions: PartitionStatus{
			IsPartitioned:  true,
			PartitionCount: 2,
			HasData:        Bool(true),
			Latest:         &LatestPartition{Name: "ds=1", RecordCount: 5},
		},
	}

	clone := orig.Clone()
	clone.Columns[0].Name = "changed"
	*clone.Partitions.HasData = false
	clone.Partitions.Latest.RecordCount = 99

	if orig.Columns[0].Name != "id" {
		t.Error("clone shares column slice with original")
	}
	if !*orig.Partitions.HasData {
		t.Error("clone shares HasData pointer with original")
	}
	if orig.Partitions.Latest.RecordCount != 5 {
		t.Error("clone shares Latest pointer with original")
	}
}

func TestCloneNil(t *testing.T) {
	var md *TableMetadata
	if md.Clone() != nil {
		t.Error("nil Clone should be nil")
	}
}

func TestErrorClassification(t *testing.T) {
	transient := &TransientFetchError{Table: "t", Op: "fetch size", Err: errors.New("boom")}
	if !IsTransient(transient) {
		t.Error("TransientFetchError should be transient")
	}
	if IsTransient(ErrTableNotFound) {
		t.Error("ErrTableNotFound should not be transient")
	}

	if !IsNotFound(ErrTableNotFound) {
		t.Error("IsNotFound(ErrTableNotFound) = false")
	}

	timeout := &TransientFetchError{Table: "t", Op: "x", Err: context.DeadlineExceeded}
	if !IsTimeout(timeout) {
		t.Error("wrapped deadline should classify as timeout")
	}
	if IsTimeout(transient) {
		t.Error("plain transient should not classify as timeout")
	}
}

func TestConnectivityErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &ConnectivityError{Endpoint: "host:443", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("ConnectivityError should unwrap to its cause")
	}
}

func TestColumnCount(t *testing.T) {
	md := &TableMetadata{
		Columns:      []ColumnMetadata{{Name: "a"}, {Name: "b"}},
		LastModified: time.Now(),
	}
	if md.ColumnCount() != 2 {
		t.Errorf("ColumnCount = %d, want 2", md.ColumnCount())
	}
}
