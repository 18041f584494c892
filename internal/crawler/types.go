// Package crawler runs one metadata crawl end to end: list the project's
// tables, decide per table between a full inspection and a cheap reuse of the
// prior record, and publish the finalized snapshot.
package crawler

import (
	"time"

	"github.com/hyz2023/odps-crawler/internal/snapshot"
	"github.com/hyz2023/odps-crawler/internal/storage"
	"github.com/hyz2023/odps-crawler/internal/warehouse"
)

// State is the crawl lifecycle phase.
type State string

const (
	StateStarted       State = "STARTED"
	StateListing       State = "LISTING"
	StateInspecting    State = "INSPECTING"
	StateCheckpointing State = "CHECKPOINTING"
	StateFinalizing    State = "FINALIZING"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
	StateCancelled     State = "CANCELLED"
)

// Counts is the per-run outcome tally. Inspected + SkippedUnchanged +
// SkippedErrored always equals Total once the run finishes.
type Counts struct {
	Inspected        int
	SkippedUnchanged int
	SkippedErrored   int
	Total            int
}

// Result is what one crawl run produced.
type Result struct {
	RunID     string
	State     State
	Counts    Counts
	Snapshot  *snapshot.Snapshot
	Artifacts *storage.Artifacts
	Duration  time.Duration
}

// tableResult is one table's outcome, flowing from a worker to the aggregator.
type tableResult struct {
	name      string
	md        *warehouse.TableMetadata // nil when skipped-errored
	reason    string                   // skip reason, "" when md is set
	unchanged bool                     // md reused from the prior snapshot
	aborted   bool                     // fetch failed only because the run was cancelled
}
