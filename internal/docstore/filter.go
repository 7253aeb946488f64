package docstore

import (
	"strings"
	"time"
)

// Op is a filter comparison operator.
type Op int

const (
	// OpEq matches documents whose field equals the value.
	OpEq Op = iota
	// OpIn matches documents whose field is one of the values.
	OpIn
	// OpNotIn matches documents whose field is none of the values.
	OpNotIn
)

// Cond is a single field condition. Field supports dot paths into nested
// objects ("source.name").
type Cond struct {
	Field  string
	Op     Op
	Value  any
	Values []any
}

// Filter is the conjunction of its conditions. A nil Filter matches everything.
type Filter []Cond

// Eq builds an equality condition.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: OpEq, Value: value}
}

// In builds a set-membership condition.
func In(field string, values ...any) Cond {
	return Cond{Field: field, Op: OpIn, Values: values}
}

// NotIn builds a set-exclusion condition.
func NotIn(field string, values ...any) Cond {
	return Cond{Field: field, Op: OpNotIn, Values: values}
}

// Strings converts a string slice into filter values for In/NotIn.
func Strings(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// matches reports whether doc satisfies every condition.
func (f Filter) matches(doc Document) bool {
	for _, c := range f {
		got := lookupPath(map[string]any(doc), c.Field)
		switch c.Op {
		case OpEq:
			if !valueEqual(got, c.Value) {
				return false
			}
		case OpIn:
			if !valueIn(got, c.Values) {
				return false
			}
		case OpNotIn:
			if valueIn(got, c.Values) {
				return false
			}
		}
	}
	return true
}

// lookupPath walks a dot path through nested JSON objects.
func lookupPath(m map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[p]
		if !ok {
			return nil
		}
	}
	return cur
}

// normalize folds Go numeric types into float64 so values compare the same
// way before and after a JSON round trip.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func valueEqual(a, b any) bool {
	na, nb := normalize(a), normalize(b)
	if na == nil && nb == nil {
		return true
	}
	switch x := na.(type) {
	case float64:
		y, ok := nb.(float64)
		return ok && x == y
	case string:
		y, ok := nb.(string)
		return ok && x == y
	case bool:
		y, ok := nb.(bool)
		return ok && x == y
	default:
		return false
	}
}

func valueIn(v any, values []any) bool {
	for _, candidate := range values {
		if valueEqual(v, candidate) {
			return true
		}
	}
	return false
}

// valueLess orders field values for sorting. Timestamps are stored as RFC3339
// strings and compared as times so varying fractional-second precision does
// not break the order.
func valueLess(a, b any) bool {
	na, nb := normalize(a), normalize(b)
	switch x := na.(type) {
	case float64:
		y, ok := nb.(float64)
		return ok && x < y
	case string:
		y, ok := nb.(string)
		if !ok {
			return false
		}
		if ta, err := time.Parse(time.RFC3339Nano, x); err == nil {
			if tb, err := time.Parse(time.RFC3339Nano, y); err == nil {
				return ta.Before(tb)
			}
		}
		return x < y
	default:
		return false
	}
}
