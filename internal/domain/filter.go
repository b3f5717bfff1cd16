package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Operator is a filter comparison operator.
type Operator string

// Filter operators.
const (
	OpEquals       Operator = "EQUALS"
	OpNotEquals    Operator = "NOT_EQUALS"
	OpGreaterThan  Operator = "GREATER_THAN"
	OpLessThan     Operator = "LESS_THAN"
	OpGreaterEqual Operator = "GREATER_EQUAL"
	OpLessEqual    Operator = "LESS_EQUAL"
	OpBetween      Operator = "BETWEEN"
	OpIn           Operator = "IN"
	OpNotIn        Operator = "NOT_IN"
	OpContains     Operator = "CONTAINS"
	OpStartsWith   Operator = "STARTS_WITH"
	OpEndsWith     Operator = "ENDS_WITH"
	OpRegex        Operator = "REGEX"
)

// IsValid checks if the operator is one of the supported values.
func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpGreaterEqual,
		OpLessEqual, OpBetween, OpIn, OpNotIn, OpContains, OpStartsWith,
		OpEndsWith, OpRegex:
		return true
	}
	return false
}

// FilterCondition is a single metadata predicate. The field name it applies to
// is the key of SearchRequest.Filters.
type FilterCondition struct {
	Operator Operator
	// Value is the comparison operand. For IN/NOT_IN it must be a collection.
	Value any
	// Second is the inclusive upper bound for BETWEEN.
	Second any

	re *regexp.Regexp
}

// Validate checks the condition before query execution. field names the
// metadata field for error context. REGEX patterns are compiled here and
// cached for matching.
func (c *FilterCondition) Validate(field string) error {
	if !c.Operator.IsValid() {
		return fmt.Errorf("field %q: unknown operator %q: %w", field, c.Operator, ErrInvalidFilter)
	}

	switch c.Operator {
	case OpIn, OpNotIn:
		if _, ok := toValueList(c.Value); !ok {
			return fmt.Errorf("field %q: %s requires a collection value: %w", field, c.Operator, ErrInvalidFilter)
		}
	case OpBetween:
		if c.Value == nil || c.Second == nil {
			return fmt.Errorf("field %q: BETWEEN requires both bounds: %w", field, ErrInvalidFilter)
		}
	case OpRegex:
		pattern, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("field %q: REGEX requires a string pattern: %w", field, ErrInvalidFilter)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("field %q: bad pattern: %v: %w", field, err, ErrInvalidFilter)
		}
		c.re = re
	default:
		if c.Value == nil {
			return fmt.Errorf("field %q: %s requires a value: %w", field, c.Operator, ErrInvalidFilter)
		}
	}
	return nil
}

// Matches evaluates the condition against a field value.
// A nil field value never matches, for every operator.
func (c *FilterCondition) Matches(fieldValue any) bool {
	if fieldValue == nil {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return equalValues(fieldValue, c.Value)
	case OpNotEquals:
		return !equalValues(fieldValue, c.Value)
	case OpGreaterThan:
		return compareValues(fieldValue, c.Value) > 0
	case OpLessThan:
		return compareValues(fieldValue, c.Value) < 0
	case OpGreaterEqual:
		return compareValues(fieldValue, c.Value) >= 0
	case OpLessEqual:
		return compareValues(fieldValue, c.Value) <= 0
	case OpBetween:
		// Inclusive on both ends; compareValues falls back to canonical
		// string ordering when the sides are not mutually numeric.
		return compareValues(fieldValue, c.Value) >= 0 &&
			compareValues(fieldValue, c.Second) <= 0
	case OpIn:
		return inList(fieldValue, c.Value)
	case OpNotIn:
		return !inList(fieldValue, c.Value)
	case OpContains:
		return containsValue(fieldValue, c.Value)
	case OpStartsWith:
		return strings.HasPrefix(canonical(fieldValue), canonical(c.Value))
	case OpEndsWith:
		return strings.HasSuffix(canonical(fieldValue), canonical(c.Value))
	case OpRegex:
		re := c.re
		if re == nil {
			pattern, ok := c.Value.(string)
			if !ok {
				return false
			}
			var err error
			re, err = regexp.Compile(pattern)
			if err != nil {
				return false
			}
		}
		return re.MatchString(canonical(fieldValue))
	}
	return false
}

// equalValues compares numerically when both sides are numeric,
// element-wise for array fields, else by canonical string.
func equalValues(fieldValue, condValue any) bool {
	if fv, ok := toFloat(fieldValue); ok {
		if cv, ok := toFloat(condValue); ok {
			return fv == cv
		}
	}
	if arr, ok := toStringSlice(fieldValue); ok {
		want, ok := toStringSlice(condValue)
		if !ok {
			return false
		}
		if len(arr) != len(want) {
			return false
		}
		for i := range arr {
			if arr[i] != want[i] {
				return false
			}
		}
		return true
	}
	return canonical(fieldValue) == canonical(condValue)
}

// compareValues orders numerically when both sides are numeric,
// else lexicographically by canonical string.
func compareValues(fieldValue, condValue any) int {
	if fv, ok := toFloat(fieldValue); ok {
		if cv, ok := toFloat(condValue); ok {
			switch {
			case fv < cv:
				return -1
			case fv > cv:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(canonical(fieldValue), canonical(condValue))
}

// inList reports whether the field value (or any of its elements for array
// fields) appears in the condition's collection.
func inList(fieldValue, condValue any) bool {
	list, ok := toValueList(condValue)
	if !ok {
		return false
	}
	if arr, isArr := toStringSlice(fieldValue); isArr {
		for _, el := range arr {
			for _, want := range list {
				if equalValues(el, want) {
					return true
				}
			}
		}
		return false
	}
	for _, want := range list {
		if equalValues(fieldValue, want) {
			return true
		}
	}
	return false
}

// containsValue is membership for array fields and substring for strings.
func containsValue(fieldValue, condValue any) bool {
	if arr, ok := toStringSlice(fieldValue); ok {
		want := canonical(condValue)
		for _, el := range arr {
			if el == want {
				return true
			}
		}
		return false
	}
	return strings.Contains(canonical(fieldValue), canonical(condValue))
}

// toFloat coerces supported numeric types to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toValueList coerces supported collection types to a []any.
func toValueList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(list))
		for i, f := range list {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

func toStringSlice(v any) ([]string, bool) {
	switch arr := v.(type) {
	case []string:
		return arr, true
	case []any:
		out := make([]string, len(arr))
		for i, el := range arr {
			out[i] = canonical(el)
		}
		return out, true
	default:
		return nil, false
	}
}

// canonical renders a value in its filterable string form.
func canonical(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case []string:
		return strings.Join(s, ",")
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

// CanonicalFieldValue renders a field value the way the metadata index keys it.
func CanonicalFieldValue(v any) string { return canonical(v) }

// NumericValue reports v as a float64 when it carries a numeric type.
func NumericValue(v any) (float64, bool) { return toFloat(v) }

// CompareFieldValues orders two field values numerically when both are
// numeric, else lexicographically by canonical form.
func CompareFieldValues(a, b any) int { return compareValues(a, b) }
