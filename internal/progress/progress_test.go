package progress

import (
	"testing"
	"time"
)

// fakeClock advances only when told to.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(interval time.Duration) (*Tracker, *fakeClock, *[]Status) {
	clock := &fakeClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	var emitted []Status
	tr := NewTracker(interval, func(st Status) { emitted = append(emitted, st) })
	tr.now = func() time.Time { return clock.now }
	return tr, clock, &emitted
}

func TestIntervalGating(t *testing.T) {
	tr, clock, emitted := newTestTracker(30 * time.Second)

	// Rapid observations inside one interval stay quiet.
	for i := 1; i <= 5; i++ {
		tr.Observe(i, 100, "t")
		clock.advance(time.Second)
	}
	if len(*emitted) != 0 {
		t.Fatalf("emitted %d statuses within the interval, want 0", len(*emitted))
	}

	clock.advance(30 * time.Second)
	tr.Observe(6, 100, "t6")
	if len(*emitted) != 1 {
		t.Fatalf("emitted %d statuses after interval, want 1", len(*emitted))
	}

	// The gate re-arms after each emission.
	tr.Observe(7, 100, "t7")
	if len(*emitted) != 1 {
		t.Errorf("gate did not re-arm: %d emissions", len(*emitted))
	}
}

func TestFinalObservationAlwaysEmits(t *testing.T) {
	tr, clock, emitted := newTestTracker(30 * time.Second)

	tr.Observe(1, 2, "a")
	clock.advance(time.Second)
	tr.Observe(2, 2, "b") // completes the run within the interval
	if len(*emitted) != 1 {
		t.Fatalf("final observation emitted %d times, want 1", len(*emitted))
	}
	st := (*emitted)[0]
	if st.Processed != 2 || st.Total != 2 {
		t.Errorf("final status = %+v", st)
	}
	if st.Percent() != 100 {
		t.Errorf("Percent = %v, want 100", st.Percent())
	}
}

func TestStatusEstimates(t *testing.T) {
	tr, clock, emitted := newTestTracker(time.Second)

	tr.Observe(0, 100, "warmup")
	clock.advance(time.Minute) // 60s for 10 tables
	tr.Observe(10, 100, "t10")

	if len(*emitted) == 0 {
		t.Fatal("no status emitted")
	}
	st := (*emitted)[len(*emitted)-1]
	if st.PerMinute < 9.9 || st.PerMinute > 10.1 {
		t.Errorf("PerMinute = %v, want ~10", st.PerMinute)
	}
	// 90 tables left at 6s each.
	if st.Remaining != 9*time.Minute {
		t.Errorf("Remaining = %v, want 9m", st.Remaining)
	}
}

func TestPercentEmptyTotal(t *testing.T) {
	st := Status{Processed: 0, Total: 0}
	if st.Percent() != 100 {
		t.Errorf("Percent with zero total = %v, want 100", st.Percent())
	}
}

func TestMultiFansOut(t *testing.T) {
	var a, b int
	emit := Multi(func(Status) { a++ }, nil, func(Status) { b++ })
	emit(Status{})
	if a != 1 || b != 1 {
		t.Errorf("Multi delivered a=%d b=%d, want 1/1", a, b)
	}
}
