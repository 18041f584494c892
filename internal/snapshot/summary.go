package snapshot

import (
	"sort"

	"github.com/hyz2023/odps-crawler/internal/warehouse"
)

// Summary is the run statistics artifact, recomputable from the snapshot.
type Summary struct {
	Project            string             `json:"project"`
	CrawlTime          string             `json:"crawl_time"`
	TotalTables        int                `json:"total_tables"`
	TotalColumns       int                `json:"total_columns"`
	PartitionedTables  int                `json:"partitioned_tables"`
	FailedTables       []SkippedTable     `json:"failed_tables"`
	TopTablesByColumns []TableColumnCount `json:"top_tables_by_columns"`
	LatestPartitions   []PartitionSample  `json:"latest_partitions_sample"`
}

// TableColumnCount pairs a table with its column count.
type TableColumnCount struct {
	Table   string `json:"table"`
	Columns int    `json:"columns"`
}

// PartitionSample is one entry of the latest-partition sample.
type PartitionSample struct {
	Table       string `json:"table"`
	Partition   string `json:"partition"`
	SizeBytes   int64  `json:"size"`
	RecordCount int64  `json:"record_count"`
}

// Default sample sizes, matching the crawler's published artifacts.
const (
	TopTables        = 10
	PartitionSamples = 10
)

// Summarize derives the summary artifact from a snapshot.
func Summarize(s *Snapshot) *Summary {
	sum := &Summary{
		Project:      s.Project,
		CrawlTime:    s.CrawlTime,
		TotalTables:  len(s.Tables),
		FailedTables: s.Failed,
	}

	counts := make([]TableColumnCount, 0, len(s.Tables))
	var withLatest []*warehouse.TableMetadata
	for name, md := range s.Tables {
		sum.TotalColumns += md.ColumnCount()
		if md.Partitions.IsPartitioned {
			sum.PartitionedTables++
		}
		counts = append(counts, TableColumnCount{Table: name, Columns: md.ColumnCount()})
		if md.Partitions.Latest != nil {
			withLatest = append(withLatest, md)
		}
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Columns != counts[j].Columns {
			return counts[i].Columns > counts[j].Columns
		}
		return counts[i].Table < counts[j].Table
	})
	if len(counts) > TopTables {
		counts = counts[:TopTables]
	}
	sum.TopTablesByColumns = counts

	sort.Slice(withLatest, func(i, j int) bool { return withLatest[i].Name < withLatest[j].Name })
	if len(withLatest) > PartitionSamples {
		withLatest = withLatest[:PartitionSamples]
	}
	for _, md := range withLatest {
		lp := md.Partitions.Latest
		sum.LatestPartitions = append(sum.LatestPartitions, PartitionSample{
			Table:       md.Name,
			Partition:   lp.Name,
			SizeBytes:   lp.SizeBytes,
			RecordCount: lp.RecordCount,
		})
	}
	return sum
}
