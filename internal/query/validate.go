package query

import "fmt"

// opsColumns is the set of queryable columns. Matches the ops table
// schema in internal/store.
var opsColumns = map[string]bool{
	"hash":              true,
	"type":              true,
	"action":            true,
	"dependency":        true,
	"origin":            true,
	"seq":               true,
	"validation_status": true,
	"validation_stage":  true,
	"when_integrated":   true,
}

// Validate checks a filter before compilation.
//
// Rules:
//   - at least one selected column, all from the ops schema
//   - predicate columns from the ops schema
//   - Equals values limited to string, int, int64, bool
//   - no negative limit
func Validate(f Filter) error {
	if len(f.Columns) == 0 {
		return fmt.Errorf("filter selects no columns")
	}
	for _, col := range f.Columns {
		if !opsColumns[col] {
			return fmt.Errorf("unknown column %q", col)
		}
	}
	if f.Limit < 0 {
		return fmt.Errorf("negative limit %d", f.Limit)
	}
	return validatePredicate(f.Where)
}

func validatePredicate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Equals:
		if !opsColumns[pred.Column] {
			return fmt.Errorf("unknown column %q in equals predicate", pred.Column)
		}
		switch pred.Value.(type) {
		case string, int, int64, bool:
			return nil
		default:
			return fmt.Errorf("unsupported value type %T for column %q", pred.Value, pred.Column)
		}
	case IsNull:
		if !opsColumns[pred.Column] {
			return fmt.Errorf("unknown column %q in is-null predicate", pred.Column)
		}
		return nil
	case NotNull:
		if !opsColumns[pred.Column] {
			return fmt.Errorf("unknown column %q in not-null predicate", pred.Column)
		}
		return nil
	case And:
		for _, sub := range pred.Predicates {
			if sub == nil {
				return fmt.Errorf("nil predicate inside conjunction")
			}
			if err := validatePredicate(sub); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported predicate type %T", p)
	}
}
