package query

import (
	"fmt"
	"strings"
)

// Compile converts a filter to parameterized SQL over the ops table.
// Returns (sql, params, error).
//
// Every statement orders by (seq, hash) so results are deterministic:
// seq reflects arrival order and hash breaks ties between ops that
// arrived in the same batch.
func Compile(f Filter) (string, []any, error) {
	if err := Validate(f); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(f.Columns, ", "))
	b.WriteString(" FROM ops")

	var params []any
	if f.Where != nil {
		whereSQL, whereParams, err := compilePredicate(f.Where)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(whereSQL)
		params = whereParams
	}

	b.WriteString(" ORDER BY seq ASC, hash ASC")

	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, f.Limit)
	}

	return b.String(), params, nil
}

// compilePredicate compiles a predicate to a WHERE fragment.
// Values are always passed as ? placeholders, never interpolated.
func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case Equals:
		return pred.Column + " = ?", []any{pred.Value}, nil
	case IsNull:
		return pred.Column + " IS NULL", nil, nil
	case NotNull:
		return pred.Column + " IS NOT NULL", nil, nil
	case And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		var parts []string
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type %T", p)
	}
}
