package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndGauges(t *testing.T) {
	m := Init("crawler_test")

	m.IncInspected("proj")
	m.IncInspected("proj")
	m.IncSkipped("proj", "timeout")
	m.SetProgress("proj", 3, 10)
	m.SetTablesPerMinute(12.5)

	if got := testutil.ToFloat64(m.TablesInspected.WithLabelValues("proj")); got != 2 {
		t.Errorf("inspected = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TablesSkipped.WithLabelValues("proj", "timeout")); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TablesProcessed.WithLabelValues("proj")); got != 3 {
		t.Errorf("processed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.TablesTotal.WithLabelValues("proj")); got != 10 {
		t.Errorf("total = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.TablesPerMinute); got != 12.5 {
		t.Errorf("tables per minute = %v, want 12.5", got)
	}

	if Get() != m {
		t.Error("Get should return the instance registered by Init")
	}
}
