package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hyz2023/odps-crawler/internal/checkpoint"
	"github.com/hyz2023/odps-crawler/internal/logging"
	"github.com/hyz2023/odps-crawler/internal/metrics"
	"github.com/hyz2023/odps-crawler/internal/progress"
	"github.com/hyz2023/odps-crawler/internal/snapshot"
	"github.com/hyz2023/odps-crawler/internal/storage"
	"github.com/hyz2023/odps-crawler/internal/warehouse"
)

// SnapshotStore is the slice of the storage layer the session needs.
type SnapshotStore interface {
	ReadLatest(ctx context.Context) (*snapshot.Snapshot, error)
	Finalize(ctx context.Context, snap *snapshot.Snapshot) (*storage.Artifacts, error)
}

// Options tunes one crawl run.
type Options struct {
	Project         string
	Full            bool // inspect every table, ignoring the prior snapshot
	SkipPartitions  bool
	Concurrency     int
	CheckpointEvery int // tables between checkpoint saves
	Retry           RetryPolicy
}

// Session drives one crawl run through its lifecycle. Create one per run.
type Session struct {
	client  warehouse.Client
	store   SnapshotStore
	ckpt    checkpoint.Manager
	tracker *progress.Tracker
	opts    Options
	retry   RetryPolicy
	log     *slog.Logger
	state   State
	now     func() time.Time
}

// NewSession wires a crawl run. Zero-valued options fall back to defaults:
// one worker, checkpoint every 50 tables, one retry.
func NewSession(client warehouse.Client, store SnapshotStore, ckpt checkpoint.Manager, tracker *progress.Tracker, opts Options) *Session {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 50
	}
	retry := opts.Retry
	if retry.Attempts < 1 {
		retry = DefaultRetry
	}
	return &Session{
		client:  client,
		store:   store,
		ckpt:    ckpt,
		tracker: tracker,
		opts:    opts,
		retry:   retry,
		log:     logging.Component("crawler").With("project", opts.Project),
		state:   StateStarted,
		now:     time.Now,
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State { return s.state }

func (s *Session) setState(st State) {
	s.state = st
	s.log.Debug("state change", "state", string(st))
}

// Run executes the crawl. Per-table failures are recorded in the snapshot and
// never fail the run; only listing, finalizing, or cancellation do.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	start := s.now()
	runID := uuid.New().String()
	log := s.log.With("run_id", runID)
	res := &Result{RunID: runID, State: StateStarted}

	log.Info("crawl started", "full", s.opts.Full, "skip_partitions", s.opts.SkipPartitions,
		"concurrency", s.opts.Concurrency)

	s.setState(StateListing)
	names, err := s.client.ListTables(ctx)
	if err != nil {
		s.setState(StateFailed)
		res.State = StateFailed
		res.Duration = s.now().Sub(start)
		return res, fmt.Errorf("list tables: %w", err)
	}
	log.Info("tables listed", "count", len(names))

	prior := s.loadPrior(ctx, log)

	snap := snapshot.New(s.opts.Project, s.now())
	counts := Counts{Total: len(names)}
	res.Snapshot = snap

	s.setState(StateInspecting)
	processed := 0
	for tr := range s.fanOut(ctx, names, prior) {
		if tr.aborted {
			continue
		}
		processed++

		switch {
		case tr.md != nil && tr.unchanged:
			counts.SkippedUnchanged++
			if m := metrics.Get(); m != nil {
				m.IncSkipped(s.opts.Project, "unchanged")
			}
			if err := snap.Add(tr.md); err != nil {
				log.Warn("dropping duplicate listing entry", "table", tr.name)
			}
		case tr.md != nil:
			counts.Inspected++
			if err := snap.Add(tr.md); err != nil {
				log.Warn("dropping duplicate listing entry", "table", tr.name)
			}
		default:
			counts.SkippedErrored++
			snap.AddFailed(tr.name, tr.reason)
		}

		if s.tracker != nil {
			s.tracker.Observe(processed, len(names), tr.name)
		}
		if m := metrics.Get(); m != nil {
			m.SetProgress(s.opts.Project, float64(processed), float64(len(names)))
		}

		if processed%s.opts.CheckpointEvery == 0 && processed < len(names) {
			s.saveCheckpoint(ctx, log, runID, snap, processed, len(names))
			s.setState(StateInspecting)
		}
	}
	res.Counts = counts

	if err := ctx.Err(); err != nil {
		// Flush what we have so the next run resumes instead of restarting.
		s.saveCheckpoint(context.WithoutCancel(ctx), log, runID, snap, processed, len(names))
		s.setState(StateCancelled)
		res.State = StateCancelled
		res.Duration = s.now().Sub(start)
		log.Warn("crawl cancelled", "processed", processed, "total", len(names))
		return res, fmt.Errorf("crawl cancelled: %w", err)
	}

	s.setState(StateFinalizing)
	finStart := s.now()
	art, err := s.store.Finalize(ctx, snap)
	if err != nil {
		if m := metrics.Get(); m != nil {
			m.IncStorageErrors(s.opts.Project, "snapshot")
		}
		s.setState(StateFailed)
		res.State = StateFailed
		res.Duration = s.now().Sub(start)
		return res, err
	}
	if m := metrics.Get(); m != nil {
		m.ObserveFinalizeDuration(s.opts.Project, s.now().Sub(finStart).Seconds())
	}
	res.Artifacts = art

	if err := s.ckpt.Clear(ctx, s.opts.Project); err != nil {
		log.Warn("failed to clear checkpoint", "error", err)
	}

	s.setState(StateDone)
	res.State = StateDone
	res.Duration = s.now().Sub(start)
	log.Info("crawl finished",
		"inspected", counts.Inspected,
		"skipped_unchanged", counts.SkippedUnchanged,
		"skipped_errored", counts.SkippedErrored,
		"total", counts.Total,
		"duration", res.Duration.Round(time.Second).String(),
	)
	return res, nil
}

// loadPrior assembles the prior records the differ compares against: the
// latest published snapshot, overlaid with anything a newer interrupted run
// already inspected (its checkpoint).
func (s *Session) loadPrior(ctx context.Context, log *slog.Logger) map[string]*warehouse.TableMetadata {
	if s.opts.Full {
		return nil
	}

	prior := make(map[string]*warehouse.TableMetadata)

	latest, err := s.store.ReadLatest(ctx)
	switch {
	case err == nil:
		for name, md := range latest.Tables {
			prior[name] = md
		}
		log.Info("prior snapshot loaded", "crawl_time", latest.CrawlTime, "tables", len(latest.Tables))
	case errors.Is(err, storage.ErrNoSnapshot):
		log.Info("no prior snapshot, crawling everything")
	default:
		log.Warn("prior snapshot unreadable, crawling everything", "error", err)
	}

	cp, err := s.ckpt.Load(ctx, s.opts.Project)
	switch {
	case err == nil:
		if cp.Project == s.opts.Project {
			for name, md := range cp.Processed {
				prior[name] = md
			}
			log.Info("resuming from checkpoint", "run_id", cp.RunID,
				"processed", cp.ProcessedCount, "total", cp.TotalCount,
				"saved_at", cp.UpdatedAt)
		}
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
	default:
		log.Warn("checkpoint unreadable, ignoring", "error", err)
	}

	if len(prior) == 0 {
		return nil
	}
	return prior
}

func (s *Session) saveCheckpoint(ctx context.Context, log *slog.Logger, runID string, snap *snapshot.Snapshot, processed, total int) {
	s.setState(StateCheckpointing)
	cp := &checkpoint.Checkpoint{
		RunID:          runID,
		Project:        s.opts.Project,
		Processed:      snap.Tables,
		Errored:        snap.Failed,
		ProcessedCount: processed,
		TotalCount:     total,
		UpdatedAt:      s.now().UTC(),
	}
	if err := s.ckpt.Save(ctx, cp); err != nil {
		// The crawl can finish without checkpoints; it just can't resume.
		log.Warn("checkpoint save failed", "error", err)
		if m := metrics.Get(); m != nil {
			m.IncCheckpointErrors(s.opts.Project)
		}
		return
	}
	log.Debug("checkpoint saved", "processed", processed, "total", total)
}

// processTable decides one table's fate: full inspection, reuse of the prior
// record with refreshed partition status, or a skip with a reason.
func (s *Session) processTable(ctx context.Context, log *slog.Logger, name string, prior *warehouse.TableMetadata) tableResult {
	opts := warehouse.InspectOptions{SkipPartitions: s.opts.SkipPartitions}

	if prior == nil {
		return s.inspect(ctx, log, name, opts)
	}

	var size int64
	err := s.retry.Do(ctx, log, s.opts.Project, "fetch size", func() error {
		var err error
		size, err = s.client.TableSize(ctx, name)
		return err
	})
	if err != nil {
		return s.skip(ctx, log, name, "fetch size", err)
	}

	if snapshot.NeedsInspection(prior, size) {
		return s.inspect(ctx, log, name, opts)
	}

	md := prior.Clone()
	md.SizeBytes = size

	// Unchanged size says nothing about partitions: a same-sized table can
	// have gained an empty partition, and freshness must reflect this run.
	if !s.opts.SkipPartitions {
		var ps *warehouse.PartitionStatus
		err := s.retry.Do(ctx, log, s.opts.Project, "fetch partitions", func() error {
			var err error
			ps, err = s.client.PartitionStatus(ctx, name)
			return err
		})
		if err != nil {
			if aborted(ctx, err) {
				return tableResult{name: name, aborted: true}
			}
			log.Warn("partition refresh failed, keeping prior status", "table", name, "error", err)
		} else {
			ps.IsPartitioned = ps.IsPartitioned || md.Partitions.IsPartitioned
			md.Partitions = *ps
		}
	}

	return tableResult{name: name, md: md, unchanged: true}
}

func (s *Session) inspect(ctx context.Context, log *slog.Logger, name string, opts warehouse.InspectOptions) tableResult {
	start := time.Now()
	var md *warehouse.TableMetadata
	err := s.retry.Do(ctx, log, s.opts.Project, "inspect", func() error {
		var err error
		md, err = s.client.Inspect(ctx, name, opts)
		return err
	})
	if err != nil {
		return s.skip(ctx, log, name, "inspect", err)
	}

	if m := metrics.Get(); m != nil {
		m.IncInspected(s.opts.Project)
		m.ObserveInspectDuration(s.opts.Project, time.Since(start).Seconds())
	}
	return tableResult{name: name, md: md}
}

// skip classifies a table-level failure into a reason code. The table is
// recorded and the crawl moves on.
func (s *Session) skip(ctx context.Context, log *slog.Logger, name, op string, err error) tableResult {
	if aborted(ctx, err) {
		return tableResult{name: name, aborted: true}
	}

	reason := reasonFor(err)
	log.Warn("table skipped", "table", name, "op", op, "reason", reason, "error", err)
	if m := metrics.Get(); m != nil {
		m.IncSkipped(s.opts.Project, reason)
		m.IncWarehouseErrors(s.opts.Project, op)
	}
	return tableResult{name: name, reason: reason}
}

// aborted tells a failure caused by run cancellation apart from a genuine
// table error; cancelled fetches must not pollute the failed-tables list.
func aborted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded)
}

func reasonFor(err error) string {
	switch {
	case warehouse.IsNotFound(err):
		return snapshot.ReasonNotFound
	case warehouse.IsTimeout(err):
		return snapshot.ReasonTimeout
	default:
		return snapshot.ReasonFetchFailed
	}
}
