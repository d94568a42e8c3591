package postgres

// Record is an ordered, name-addressable row. Column order follows the
// result set; lookups by name are case-sensitive and resolve to the first
// column with that name.
type Record struct {
	columns []string
	values  []any
	index   map[string]int
}

// NewRecord builds a Record from parallel column and value slices. The
// slices are retained, not copied.
func NewRecord(columns []string, values []any) Record {
	index := make(map[string]int, len(columns))

	for i, col := range columns {
		if _, ok := index[col]; !ok {
			index[col] = i
		}
	}

	return Record{columns: columns, values: values, index: index}
}

// Columns returns the column names in result-set order.
func (r Record) Columns() []string {
	return r.columns
}

// Values returns the column values in result-set order.
func (r Record) Values() []any {
	return r.values
}

// Len returns the number of columns.
func (r Record) Len() int {
	return len(r.columns)
}

// Get returns the value of the named column and whether the column exists.
func (r Record) Get(column string) (any, bool) {
	i, ok := r.index[column]
	if !ok {
		return nil, false
	}

	return r.values[i], true
}

// At returns the value at position i.
func (r Record) At(i int) any {
	return r.values[i]
}

// Map returns the record as a column-to-value map. Duplicate column names
// keep the first occurrence.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.columns))

	for col, i := range r.index {
		m[col] = r.values[i]
	}

	return m
}
