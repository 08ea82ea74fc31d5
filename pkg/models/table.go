package models

// Table is a set of rows indexed by an identity column. A nil *Table is a
// valid empty table.
type Table struct {
	rows    []Record
	index   map[string]int
	columns map[string]struct{}
}

// NewTable indexes rows by Key(row[key]). When several rows share a key,
// lookups return the first.
func NewTable(rows []Record, key string) *Table {
	t := &Table{
		rows:    rows,
		index:   make(map[string]int, len(rows)),
		columns: make(map[string]struct{}),
	}
	for i, row := range rows {
		for col := range row {
			t.columns[col] = struct{}{}
		}
		k := Key(row[key])
		if k == "" {
			continue
		}
		if _, seen := t.index[k]; !seen {
			t.index[k] = i
		}
	}
	return t
}

// Row returns the first row whose key is id.
func (t *Table) Row(id string) (Record, bool) {
	if t == nil {
		return nil, false
	}
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return t.rows[i], true
}

// Lookup returns column of the first row whose key is id.
func (t *Table) Lookup(id, column string) (interface{}, bool) {
	row, ok := t.Row(id)
	if !ok {
		return nil, false
	}
	v, ok := row[column]
	return v, ok
}

// HasColumn reports whether any row carries column.
func (t *Table) HasColumn(column string) bool {
	if t == nil {
		return false
	}
	_, ok := t.columns[column]
	return ok
}

// Rows returns the table rows in insertion order.
func (t *Table) Rows() []Record {
	if t == nil {
		return nil
	}
	return t.rows
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}
