// Package aggregate reconciles search results, listing details and derived
// custom fields into one normalized listing record per id.
package aggregate

import (
	"github.com/ajitpratap0/thor/pkg/models"
)

// Table names one of the source tables a mapping can read from.
type Table int

const (
	// SearchTable holds the deduplicated search results
	SearchTable Table = iota
	// DetailTable holds the flattened listing details
	DetailTable
	// CustomTable holds the per-site derived columns
	CustomTable
)

// String returns the table name used in logs.
func (t Table) String() string {
	switch t {
	case SearchTable:
		return "results"
	case DetailTable:
		return "details"
	case CustomTable:
		return "custom"
	default:
		return "unknown"
	}
}

// Tables are the source tables of one run. A missing entry reads as empty.
type Tables map[Table]*models.Table

type sourceKind int

const (
	sourceNull sourceKind = iota
	sourceLiteral
	sourceColumn
)

// Source says where a normalized column gets its value.
type Source struct {
	kind   sourceKind
	value  interface{}
	table  Table
	column string
}

// Null yields nil for every row.
func Null() Source {
	return Source{kind: sourceNull}
}

// Literal yields v unchanged for every row.
func Literal(v interface{}) Source {
	return Source{kind: sourceLiteral, value: v}
}

// From reads column from the first row of table whose id matches.
func From(table Table, column string) Source {
	return Source{kind: sourceColumn, table: table, column: column}
}

func (s Source) resolve(id string, tables Tables) interface{} {
	switch s.kind {
	case sourceLiteral:
		return s.value
	case sourceColumn:
		v, _ := tables[s.table].Lookup(id, s.column)
		return v
	default:
		return nil
	}
}

// Field is one output column.
type Field struct {
	Name   string
	Source Source
}

// Mapping is the ordered column list of a normalized listing.
type Mapping []Field

// Columns returns the column names in mapping order.
func (m Mapping) Columns() []string {
	cols := make([]string, len(m))
	for i, f := range m {
		cols[i] = f.Name
	}
	return cols
}

// IDColumn is always set to the id being aggregated, whatever its source.
const IDColumn = "id"

// sourceID returns the id value as the source tables hold it, searching
// results, then details, then custom rows. The join key is the fallback.
func sourceID(id string, tables Tables) interface{} {
	for _, t := range []Table{SearchTable, DetailTable, CustomTable} {
		if v, ok := tables[t].Lookup(id, IDColumn); ok && v != nil {
			return v
		}
	}
	return id
}

// Aggregate builds one record per id with exactly the mapping's columns.
// Missing tables, rows and columns produce nil values.
func Aggregate(ids []string, tables Tables, mapping Mapping) []models.Record {
	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		rec := make(models.Record, len(mapping))
		for _, f := range mapping {
			if f.Name == IDColumn {
				rec[IDColumn] = sourceID(id, tables)
				continue
			}
			rec[f.Name] = f.Source.resolve(id, tables)
		}
		out = append(out, rec)
	}
	return out
}
