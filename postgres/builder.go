package postgres

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Condition is a single comparison applied to a column.
type Condition struct {
	Op    string
	Value any
}

// FilterGroup maps column names to conditions. Conditions within a group
// are AND-combined; columns render in sorted order so output is
// deterministic.
type FilterGroup map[string]Condition

// Filters is an ordered list of filter groups. Groups are OR-combined.
type Filters []FilterGroup

// Eq is shorthand for an equality condition.
func Eq(value any) Condition {
	return Condition{Op: "=", Value: value}
}

var allowedOperators = map[string]struct{}{
	"=": {}, "!=": {}, "<>": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
	"like": {}, "ilike": {}, "in": {}, "is": {}, "is not": {},
}

// BuildWhere renders filters as a disjunction of parenthesized
// conjunctions, e.g. `(a > $1 and b = $2) or (c = $3)`. Placeholders are
// numbered from start and the returned args align positionally with them.
// Empty filters render an empty clause; a group with no conditions is an
// error.
func BuildWhere(filters Filters, start int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	if start < 1 {
		start = 1
	}

	var (
		groups = make([]string, 0, len(filters))
		args   []any
		next   = start
	)

	for _, group := range filters {
		if len(group) == 0 {
			return "", nil, ErrEmptyFilterGroup
		}

		columns := make([]string, 0, len(group))
		for col := range group {
			columns = append(columns, col)
		}

		sort.Strings(columns)

		terms := make([]string, 0, len(columns))

		for _, col := range columns {
			term, termArgs, err := renderCondition(col, group[col], next)
			if err != nil {
				return "", nil, err
			}

			terms = append(terms, term)
			args = append(args, termArgs...)
			next += len(termArgs)
		}

		groups = append(groups, "("+strings.Join(terms, " and ")+")")
	}

	return strings.Join(groups, " or "), args, nil
}

func renderCondition(column string, cond Condition, next int) (string, []any, error) {
	op := strings.ToLower(strings.TrimSpace(cond.Op))

	if _, ok := allowedOperators[op]; !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownOperator, cond.Op)
	}

	switch op {
	case "in":
		elems, ok := sliceElements(cond.Value)
		if !ok || len(elems) == 0 {
			return "", nil, fmt.Errorf("%w: operator \"in\" requires a non-empty slice, got %T", ErrUnknownOperator, cond.Value)
		}

		placeholders := make([]string, len(elems))
		for i := range elems {
			placeholders[i] = "$" + strconv.Itoa(next+i)
		}

		return column + " in (" + strings.Join(placeholders, ", ") + ")", elems, nil
	case "is", "is not":
		literal, err := nullableLiteral(cond.Value)
		if err != nil {
			return "", nil, fmt.Errorf("operator %q: %w", op, err)
		}

		return column + " " + op + " " + literal, nil, nil
	default:
		return column + " " + op + " $" + strconv.Itoa(next), []any{cond.Value}, nil
	}
}

// sliceElements flattens a slice value into []any.
func sliceElements(value any) ([]any, bool) {
	if elems, ok := value.([]any); ok {
		return elems, true
	}

	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}

	elems := make([]any, rv.Len())
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}

	return elems, true
}

// nullableLiteral renders the restricted value set accepted by is / is not.
func nullableLiteral(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "null", nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("value must be nil or bool, got %T", value)
	}
}

// sortedColumns returns the keys of values in sorted order.
func sortedColumns(values map[string]any) []string {
	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}

	sort.Strings(columns)

	return columns
}

func placeholderList(start, n int) []string {
	placeholders := make([]string, n)
	for i := range placeholders {
		placeholders[i] = "$" + strconv.Itoa(start+i)
	}

	return placeholders
}

// BuildInsert renders a single-row insert returning the inserted row.
// Columns render in sorted order.
func BuildInsert(table string, values map[string]any) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, ErrEmptyValues
	}

	columns := sortedColumns(values)

	args := make([]any, len(columns))
	for i, col := range columns {
		args[i] = values[col]
	}

	query := "insert into " + table +
		" (" + strings.Join(columns, ", ") + ")" +
		" values (" + strings.Join(placeholderList(1, len(columns)), ", ") + ")" +
		" returning *;"

	return query, args, nil
}

// BuildBulkInsert renders a single multi-row parameterized insert. Every
// record must carry the same key set as the first.
func BuildBulkInsert(table string, records []map[string]any) (string, []any, error) {
	if len(records) == 0 {
		return "", nil, ErrNoRecords
	}

	if len(records[0]) == 0 {
		return "", nil, ErrEmptyValues
	}

	columns := sortedColumns(records[0])

	var (
		rows = make([]string, 0, len(records))
		args = make([]any, 0, len(records)*len(columns))
		next = 1
	)

	for i, record := range records {
		if len(record) != len(columns) {
			return "", nil, fmt.Errorf("%w: record %d", ErrMismatchedColumns, i)
		}

		for _, col := range columns {
			value, ok := record[col]
			if !ok {
				return "", nil, fmt.Errorf("%w: record %d is missing %q", ErrMismatchedColumns, i, col)
			}

			args = append(args, value)
		}

		rows = append(rows, "("+strings.Join(placeholderList(next, len(columns)), ", ")+")")
		next += len(columns)
	}

	query := "insert into " + table +
		" (" + strings.Join(columns, ", ") + ")" +
		" values " + strings.Join(rows, ", ") +
		" returning *;"

	return query, args, nil
}

// BuildUpdate renders a multi-column update over the rows matched by
// filters, returning the updated rows.
func BuildUpdate(table string, values map[string]any, filters Filters) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, ErrEmptyValues
	}

	if len(filters) == 0 {
		return "", nil, ErrMissingFilters
	}

	columns := sortedColumns(values)

	args := make([]any, len(columns))
	for i, col := range columns {
		args[i] = values[col]
	}

	where, whereArgs, err := BuildWhere(filters, len(columns)+1)
	if err != nil {
		return "", nil, err
	}

	query := "update " + table +
		" set (" + strings.Join(columns, ", ") + ")" +
		" = (" + strings.Join(placeholderList(1, len(columns)), ", ") + ")" +
		" where " + where +
		" returning *;"

	return query, append(args, whereArgs...), nil
}

// SelectOptions shapes a BuildSelect query. Zero-value Columns select all
// columns; Limit defaults to 100.
type SelectOptions struct {
	Columns []string
	Filters Filters
	OrderBy string
	Limit   int
	Offset  int
}

const defaultSelectLimit = 100

// BuildSelect renders a select with optional filters, ordering and paging.
func BuildSelect(table string, opts SelectOptions) (string, []any, error) {
	projection := "*"
	if len(opts.Columns) > 0 {
		projection = strings.Join(opts.Columns, ", ")
	}

	var b strings.Builder

	b.WriteString("select " + projection + " from " + table)

	where, args, err := BuildWhere(opts.Filters, 1)
	if err != nil {
		return "", nil, err
	}

	if where != "" {
		b.WriteString(" where " + where)
	}

	if opts.OrderBy != "" {
		b.WriteString(" order by " + opts.OrderBy)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSelectLimit
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	b.WriteString(" limit " + strconv.Itoa(limit))
	b.WriteString(" offset " + strconv.Itoa(offset))
	b.WriteString(";")

	return b.String(), args, nil
}

// BuildDelete renders a delete over the rows matched by filters. Filters
// are mandatory so an unfiltered delete cannot be rendered by accident.
func BuildDelete(table string, filters Filters) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, ErrMissingFilters
	}

	where, args, err := BuildWhere(filters, 1)
	if err != nil {
		return "", nil, err
	}

	return "delete from " + table + " where " + where + ";", args, nil
}

// BuildCount renders a row count with optional filters.
func BuildCount(table string, filters Filters) (string, []any, error) {
	where, args, err := BuildWhere(filters, 1)
	if err != nil {
		return "", nil, err
	}

	query := "select count(*) from " + table
	if where != "" {
		query += " where " + where
	}

	return query + ";", args, nil
}
