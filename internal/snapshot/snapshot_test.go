package snapshot

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hyz2023/odps-crawler/internal/warehouse"
)

func table(name string, size int64, cols ...string) *warehouse.TableMetadata {
	md := &warehouse.TableMetadata{Name: name, SizeBytes: size}
	for _, c := range cols {
		md.Columns = append(md.Columns, warehouse.ColumnMetadata{Name: c, Type: "string"})
	}
	return md
}

func TestNeedsInspection(t *testing.T) {
	tests := []struct {
		name  string
		prior *warehouse.TableMetadata
		size  int64
		want  bool
	}{
		{"no prior record", nil, 100, true},
		{"size unchanged", table("a", 100), 100, false},
		{"size grew", table("a", 100), 101, true},
		{"size shrank", table("a", 100), 99, true},
		{"zero size unchanged", table("a", 0), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsInspection(tt.prior, tt.size); got != tt.want {
				t.Errorf("NeedsInspection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSnapshotAddRejectsDuplicates(t *testing.T) {
	s := New("proj", time.Now())
	if err := s.Add(table("orders", 10)); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := s.Add(table("orders", 20)); err == nil {
		t.Fatal("expected duplicate add to fail")
	}
	if s.TableCount != 1 {
		t.Errorf("TableCount = %d, want 1", s.TableCount)
	}
}

func TestSnapshotLookup(t *testing.T) {
	s := New("proj", time.Now())
	s.Add(table("orders", 10))

	if got := s.Lookup("orders"); got == nil || got.Name != "orders" {
		t.Errorf("Lookup(orders) = %v", got)
	}
	if got := s.Lookup("missing"); got != nil {
		t.Errorf("Lookup(missing) = %v, want nil", got)
	}
	var nilSnap *Snapshot
	if got := nilSnap.Lookup("orders"); got != nil {
		t.Errorf("nil snapshot Lookup = %v, want nil", got)
	}
}

func TestCrawlTimeFormat(t *testing.T) {
	at := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	s := New("proj", at)
	if s.CrawlTime != "20260828_153000" {
		t.Errorf("CrawlTime = %q", s.CrawlTime)
	}
}

func TestFlattenOrder(t *testing.T) {
	s := New("proj", time.Now())
	s.Add(table("zebra", 1, "z1", "z2"))
	s.Add(table("alpha", 1, "a2", "a1")) // declared order, not alphabetical

	rows := Flatten(s)
	want := []struct{ table, col string }{
		{"alpha", "a2"},
		{"alpha", "a1"},
		{"zebra", "z1"},
		{"zebra", "z2"},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, w := range want {
		if rows[i].TableName != w.table || rows[i].ColumnName != w.col {
			t.Errorf("row %d = %s.%s, want %s.%s",
				i, rows[i].TableName, rows[i].ColumnName, w.table, w.col)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	rows := []ColumnRow{
		{TableName: "t", ColumnName: "c", ColumnType: "bigint", Comment: "id, primary", IsNullable: false},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != "table_name,column_name,column_type,comment,is_nullable" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != `t,c,bigint,"id, primary",false` {
		t.Errorf("row = %q", lines[1])
	}
}

func TestSummarize(t *testing.T) {
	s := New("proj", time.Now())
	wide := table("wide", 1, "c1", "c2", "c3")
	wide.Partitions = warehouse.PartitionStatus{
		IsPartitioned:  true,
		PartitionCount: 4,
		Latest:         &warehouse.LatestPartition{Name: "ds=20260827", SizeBytes: 42, RecordCount: 7},
	}
	s.Add(wide)
	s.Add(table("narrow", 1, "c1"))
	s.AddFailed("broken", ReasonTimeout)

	sum := Summarize(s)
	if sum.TotalTables != 2 {
		t.Errorf("TotalTables = %d, want 2", sum.TotalTables)
	}
	if sum.TotalColumns != 4 {
		t.Errorf("TotalColumns = %d, want 4", sum.TotalColumns)
	}
	if sum.PartitionedTables != 1 {
		t.Errorf("PartitionedTables = %d, want 1", sum.PartitionedTables)
	}
	if len(sum.FailedTables) != 1 || sum.FailedTables[0].Reason != ReasonTimeout {
		t.Errorf("FailedTables = %v", sum.FailedTables)
	}
	if len(sum.TopTablesByColumns) != 2 || sum.TopTablesByColumns[0].Table != "wide" {
		t.Errorf("TopTablesByColumns = %v", sum.TopTablesByColumns)
	}
	if len(sum.LatestPartitions) != 1 || sum.LatestPartitions[0].Partition != "ds=20260827" {
		t.Errorf("LatestPartitions = %v", sum.LatestPartitions)
	}
}

func TestSummarizeTopTablesCapped(t *testing.T) {
	s := New("proj", time.Now())
	for i := 0; i < TopTables+5; i++ {
		name := string(rune('a'+i)) + "_table"
		cols := make([]string, i+1)
		for j := range cols {
			cols[j] = "c"
		}
		s.Add(table(name, 1, cols...))
	}

	sum := Summarize(s)
	if len(sum.TopTablesByColumns) != TopTables {
		t.Fatalf("got %d top tables, want %d", len(sum.TopTablesByColumns), TopTables)
	}
	// Widest first.
	for i := 1; i < len(sum.TopTablesByColumns); i++ {
		if sum.TopTablesByColumns[i].Columns > sum.TopTablesByColumns[i-1].Columns {
			t.Errorf("top tables not sorted at %d: %v", i, sum.TopTablesByColumns)
		}
	}
}
