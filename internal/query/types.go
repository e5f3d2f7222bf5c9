// Package query compiles declarative filters over the ops table into
// parameterized SQL.
//
// The filter language is deliberately small: equality predicates,
// NULL checks, and conjunction. Every compiled statement carries a
// deterministic ORDER BY and never interpolates values, so the same
// filter against the same database always returns the same rows in
// the same order.
package query

// Predicate is a filter condition over ops columns.
//
// This is a sealed interface: only types in this package implement it.
// The marker method pattern enables exhaustive type switches in the
// compiler.
type Predicate interface {
	predicateNode()
}

// Equals matches rows where a column equals a literal value.
//
// Value must be a string, int, int64, or bool. The compiler
// parameterizes the value; it is never interpolated into the SQL.
type Equals struct {
	Column string
	Value  any
}

func (Equals) predicateNode() {}

// IsNull matches rows where a column is NULL. Integrated ops clear
// validation_stage, so IsNull{"validation_stage"} selects them.
type IsNull struct {
	Column string
}

func (IsNull) predicateNode() {}

// NotNull matches rows where a column is set.
type NotNull struct {
	Column string
}

func (NotNull) predicateNode() {}

// And is a conjunction of predicates. An empty Predicates slice is
// vacuously true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Filter describes one query over the ops table.
type Filter struct {
	// Columns is the explicit selection. SELECT * is not supported;
	// callers name every column they read.
	Columns []string

	// Where filters rows. Nil means no filter.
	Where Predicate

	// Limit caps the row count. Zero means no limit.
	Limit int
}
