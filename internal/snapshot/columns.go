package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"
)

// ColumnRow is one row of the flattened per-column listing, a pure derived
// view of the snapshot.
type ColumnRow struct {
	TableName  string `parquet:"table_name"`
	ColumnName string `parquet:"column_name"`
	ColumnType string `parquet:"column_type"`
	Comment    string `parquet:"comment"`
	IsNullable bool   `parquet:"is_nullable"`
}

var columnsHeader = []string{"table_name", "column_name", "column_type", "comment", "is_nullable"}

// Flatten produces the per-column listing, tables in name order and columns
// in their declared order.
func Flatten(s *Snapshot) []ColumnRow {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []ColumnRow
	for _, name := range names {
		for _, col := range s.Tables[name].Columns {
			rows = append(rows, ColumnRow{
				TableName:  name,
				ColumnName: col.Name,
				ColumnType: col.Type,
				Comment:    col.Comment,
				IsNullable: col.Nullable,
			})
		}
	}
	return rows
}

// WriteCSV renders the column listing as CSV with a header row.
func WriteCSV(w io.Writer, rows []ColumnRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columnsHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.TableName, r.ColumnName, r.ColumnType, r.Comment, fmt.Sprintf("%t", r.IsNullable)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteParquet renders the column listing as a Parquet file.
func WriteParquet(w io.Writer, rows []ColumnRow) error {
	pw := parquet.NewGenericWriter[ColumnRow](w)
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			return err
		}
	}
	return pw.Close()
}
