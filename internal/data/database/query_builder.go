// Package database builds portable SQL for the repositories and opens the embedded store.
package database

import (
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ConditionType is the operator of a WHERE term. In takes a slice of any
// element type; an empty slice drops the term.
type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	GreaterThan        ConditionType = ">"
	LessThan           ConditionType = "<"
	LessThanOrEqual    ConditionType = "<="
	GreaterThanOrEqual ConditionType = ">="
	In                 ConditionType = "IN"
	Custom             ConditionType = "CUSTOM"
)

// unbounded marks an unset Limit or Offset.
const unbounded = -1

// maxRows stands in for "no limit" when only an offset is set: SQLite wants a
// LIMIT before OFFSET and Postgres rejects LIMIT -1.
const maxRows int64 = 1 << 62

// Condition is one AND-ed term of a WHERE clause.
type Condition struct {
	Field string
	Type  ConditionType
	Value any
	raw   string
}

// WhereCond compares a column against a bound value.
func WhereCond(field string, condType ConditionType, value any) Condition {
	if condType == Custom {
		//nolint:forbidigo // raw SQL must go through WhereRawCond
		panic("database: use WhereRawCond for Custom conditions")
	}
	return Condition{Field: field, Type: condType, Value: value}
}

// WhereRawCond adds a raw SQL fragment using ? placeholders.
func WhereRawCond(rawQuery string, params ...any) Condition {
	return Condition{Type: Custom, raw: rawQuery, Value: params}
}

// render returns the SQL fragment and its arguments. An empty fragment means
// the term is dropped.
func (c Condition) render() (string, []any) {
	switch c.Type {
	case Custom:
		params, _ := c.Value.([]any)
		return c.raw, params
	case In:
		rv := reflect.ValueOf(c.Value)
		if rv.Kind() != reflect.Slice || rv.Len() == 0 {
			return "", nil
		}
		args := make([]any, rv.Len())
		for i := range args {
			args[i] = rv.Index(i).Interface()
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		return quote(c.Field) + " IN (" + marks + ")", args
	default:
		return quote(c.Field) + " " + string(c.Type) + " ?", []any{c.Value}
	}
}

type orderTerm struct {
	column string
	dir    string
}

// ListQueryOptions describes a single-table SELECT.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	Limit      int
	Offset     int
	order      []orderTerm
}

// ListQueryOption mutates ListQueryOptions.
type ListQueryOption func(*ListQueryOptions)

// NewListQueryOptions selects every column of table with no paging.
func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	o := &ListQueryOptions{Table: table, Limit: unbounded, Offset: unbounded}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = append(o.Conditions, cond) }
}

// WithOrderBy appends a sort key; later keys break ties of earlier ones. A
// direction other than ASC or DESC is left out.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) { o.order = append(o.order, orderTerm{column: column, dir: direction}) }
}

// WithLimit ignores negative values. Zero is a valid limit.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset ignores negative values.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly selects COUNT(*) and drops ordering and paging.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) { o.CountOnly = true }
}

// quote double-quotes an identifier, which both SQLite and Postgres accept.
func quote(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

// BuildListQuery renders o with ? placeholders. Callers rebind them for
// their dialect.
//
//	query, args := BuildListQuery(NewListQueryOptions("jobs",
//		WithColumns("id", "status"),
//		WithCondition(WhereCond("app_id", Equal, "shop.example.com")),
//		WithOrderBy("created_at", "DESC"),
//		WithLimit(10),
//	))
func BuildListQuery(o *ListQueryOptions) (string, []any) {
	if o == nil {
		return "", nil
	}

	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	switch {
	case o.CountOnly:
		b.WriteString("COUNT(*)")
	case len(o.Columns) == 0:
		b.WriteString("*")
	default:
		for i, col := range o.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quote(col))
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(quote(o.Table))

	sep := " WHERE "
	for _, c := range o.Conditions {
		frag, cargs := c.render()
		if frag == "" {
			continue
		}
		b.WriteString(sep)
		b.WriteString(frag)
		args = append(args, cargs...)
		sep = " AND "
	}
	if o.CountOnly {
		return b.String(), args
	}

	sep = " ORDER BY "
	for _, t := range o.order {
		b.WriteString(sep)
		b.WriteString(quote(t.column))
		if dir := strings.ToUpper(t.dir); dir == "ASC" || dir == "DESC" {
			b.WriteString(" " + dir)
		}
		sep = ", "
	}

	switch {
	case o.Limit != unbounded:
		b.WriteString(" LIMIT ?")
		args = append(args, o.Limit)
	case o.Offset != unbounded:
		b.WriteString(" LIMIT ?")
		args = append(args, maxRows)
	}
	if o.Offset != unbounded {
		b.WriteString(" OFFSET ?")
		args = append(args, o.Offset)
	}
	return b.String(), args
}
