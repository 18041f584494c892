// Package progress emits periodic status lines for long crawls. Emission is
// interval-gated so a fast run over a small project stays quiet, while a
// multi-hour crawl reports steadily without flooding the log.
package progress

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pterm/pterm"
)

// Status is one progress observation.
type Status struct {
	Processed int
	Total     int
	Current   string // table most recently finished
	Elapsed   time.Duration
	Remaining time.Duration // estimate; zero when no rate is available yet
	PerMinute float64
}

// Percent returns completion in the range 0-100.
func (s Status) Percent() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Processed) / float64(s.Total) * 100
}

// Tracker gates emissions to at most one per interval, plus a final one when
// the last table completes. Not safe for concurrent use; the crawl funnels
// observations through a single goroutine.
type Tracker struct {
	Interval time.Duration
	Emit     func(Status)

	now      func() time.Time // injectable clock
	started  time.Time
	lastEmit time.Time
}

// NewTracker creates a tracker that starts counting at the first observation.
func NewTracker(interval time.Duration, emit func(Status)) *Tracker {
	return &Tracker{
		Interval: interval,
		Emit:     emit,
		now:      time.Now,
	}
}

// Observe records one finished table and emits a status line if the interval
// has elapsed or the run just completed. The remaining-time estimate assumes
// tables cost roughly the same; a handful of huge tables will skew it.
func (t *Tracker) Observe(processed, total int, current string) {
	now := t.now()
	if t.started.IsZero() {
		t.started = now
		t.lastEmit = now
	}

	final := total > 0 && processed >= total
	if !final && now.Sub(t.lastEmit) < t.Interval {
		return
	}
	t.lastEmit = now

	elapsed := now.Sub(t.started)
	st := Status{
		Processed: processed,
		Total:     total,
		Current:   current,
		Elapsed:   elapsed.Round(time.Second),
	}
	if processed > 0 && elapsed > 0 {
		perTable := elapsed / time.Duration(processed)
		st.Remaining = (perTable * time.Duration(total-processed)).Round(time.Second)
		st.PerMinute = float64(processed) / elapsed.Minutes()
	}

	if t.Emit != nil {
		t.Emit(st)
	}
}

// SlogEmitter reports progress through the structured logger.
func SlogEmitter(log *slog.Logger) func(Status) {
	return func(st Status) {
		log.Info("crawl progress",
			"processed", st.Processed,
			"total", st.Total,
			"percent", fmt.Sprintf("%.1f", st.Percent()),
			"table", st.Current,
			"elapsed", st.Elapsed.String(),
			"eta", st.Remaining.String(),
			"tables_per_minute", fmt.Sprintf("%.1f", st.PerMinute),
		)
	}
}

// TermEmitter reports progress as a console line for interactive runs.
func TermEmitter() func(Status) {
	return func(st Status) {
		pterm.Info.Printfln("[%s] %d/%d tables (%.1f%%) · %s · eta %s · %.1f tables/min",
			st.Elapsed, st.Processed, st.Total, st.Percent(), st.Current, st.Remaining, st.PerMinute)
	}
}

// Multi fans one observation out to several emitters.
func Multi(emitters ...func(Status)) func(Status) {
	return func(st Status) {
		for _, e := range emitters {
			if e != nil {
				e(st)
			}
		}
	}
}
