// Package snapshot holds the point-in-time capture of a project's table
// metadata, the size-diff decision for incremental crawls, and the derived
// views written next to the full snapshot.
package snapshot

import (
	"fmt"
	"time"

	"github.com/hyz2023/odps-crawler/internal/warehouse"
)

// TimeFormat names snapshot artifacts: metadata_20260828_153000.json.
const TimeFormat = "20060102_150405"

// Reason codes for tables recorded as skipped-errored.
const (
	ReasonNotFound    = "not_found"
	ReasonTimeout     = "timeout"
	ReasonFetchFailed = "fetch_failed"
)

// SkippedTable records one table the crawl could not inspect.
type SkippedTable struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Snapshot is one complete crawl result. Table name keys are unique by
// construction; insertion order is irrelevant. Once finalized it is never
// modified.
type Snapshot struct {
	Project     string                              `json:"project"`
	CrawlTime   string                              `json:"crawl_time"`
	GeneratedAt time.Time                           `json:"generated_at"`
	TableCount  int                                 `json:"table_count"`
	Failed      []SkippedTable                      `json:"failed_tables"`
	Tables      map[string]*warehouse.TableMetadata `json:"tables"`
}

// New returns an empty snapshot stamped at now.
func New(project string, now time.Time) *Snapshot {
	return &Snapshot{
		Project:     project,
		CrawlTime:   now.UTC().Format(TimeFormat),
		GeneratedAt: now.UTC(),
		Failed:      []SkippedTable{},
		Tables:      make(map[string]*warehouse.TableMetadata),
	}
}

// Add attaches one table's metadata. A duplicate name violates the
// uniqueness invariant and is rejected.
func (s *Snapshot) Add(md *warehouse.TableMetadata) error {
	if _, ok := s.Tables[md.Name]; ok {
		return fmt.Errorf("duplicate table %q in snapshot", md.Name)
	}
	s.Tables[md.Name] = md
	s.TableCount = len(s.Tables)
	return nil
}

// AddFailed records a table that was listed but could not be inspected.
func (s *Snapshot) AddFailed(name, reason string) {
	s.Failed = append(s.Failed, SkippedTable{Name: name, Reason: reason})
}

// Lookup returns the recorded metadata for a table, or nil.
func (s *Snapshot) Lookup(name string) *warehouse.TableMetadata {
	if s == nil {
		return nil
	}
	return s.Tables[name]
}

// NeedsInspection is the incremental differ: re-inspect when there is no
// prior record, or when the freshly probed size differs from the prior one
// by any nonzero amount. Byte size is a cheap change proxy; it under-detects
// in-place rewrites that keep the size constant. Partition freshness is
// re-checked independently of this decision.
func NeedsInspection(prior *warehouse.TableMetadata, currentSize int64) bool {
	if prior == nil {
		return true
	}
	return prior.SizeBytes != currentSize
}
