// Package matcher evaluates search condition trees against entities held in
// memory. It implements the same semantics the Postgres repository compiles
// into SQL.
package matcher

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/pkg/search"
)

// Matcher is safe for concurrent use. Compiled LIKE and search-criteria
// patterns are cached for the lifetime of the Matcher.
type Matcher struct {
	patterns sync.Map
}

func New() *Matcher {
	return &Matcher{}
}

// MatchEntity applies every part of the search: type, property tree,
// classification tree and search criteria. Paging and ordering are ignored.
func (m *Matcher) MatchEntity(entity domain.EntityDetail, s domain.EntitySearch) (bool, error) {
	if s.TypeName != "" && entity.TypeName != s.TypeName {
		return false, nil
	}
	if s.SearchProperties != nil {
		ok, err := m.MatchProperties(entity.Properties, *s.SearchProperties)
		if err != nil || !ok {
			return false, err
		}
	}
	if s.SearchClassifications != nil {
		ok, err := m.MatchClassifications(entity.Classifications, *s.SearchClassifications)
		if err != nil || !ok {
			return false, err
		}
	}
	if s.SearchCriteria != "" {
		return m.matchCriteria(entity.Properties, s.SearchCriteria)
	}
	return true, nil
}

// MatchProperties evaluates a property tree against a property bag.
func (m *Matcher) MatchProperties(props map[string]any, sp search.SearchProperties) (bool, error) {
	return sp.MatchCriteria().CombineLazy(sp.Len(), func(i int) (bool, error) {
		return m.MatchCondition(props, sp.Condition(i))
	})
}

// MatchCondition evaluates one condition, recursing into nested trees.
func (m *Matcher) MatchCondition(props map[string]any, c search.PropertyCondition) (bool, error) {
	if nested, ok := c.NestedConditions(); ok {
		return m.MatchProperties(props, nested)
	}
	if !c.IsLeaf() {
		return false, &search.InvalidConditionError{Reason: "condition has neither a property test nor nested conditions"}
	}
	actual, present := props[c.Property()]
	operand, _ := c.Value()
	return m.test(actual, present, c.Operator(), operand)
}

// MatchClassifications evaluates a classification tree against the
// classifications attached to an entity.
func (m *Matcher) MatchClassifications(classifications []domain.Classification, sc search.SearchClassifications) (bool, error) {
	return sc.MatchCriteria().CombineLazy(sc.Len(), func(i int) (bool, error) {
		return m.matchClassification(classifications, sc.Condition(i))
	})
}

func (m *Matcher) matchClassification(classifications []domain.Classification, cc search.ClassificationCondition) (bool, error) {
	props, scoped := cc.MatchProperties()
	for _, c := range classifications {
		if c.Name != cc.Name() {
			continue
		}
		if !scoped {
			return true, nil
		}
		ok, err := m.MatchProperties(c.Properties, props)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (m *Matcher) test(actual any, present bool, op search.PropertyComparisonOperator, operand search.PropertyValue) (bool, error) {
	isNull := !present || actual == nil
	switch op {
	case search.OperatorIsNull:
		return isNull, nil
	case search.OperatorNotNull:
		return !isNull, nil
	}
	if isNull {
		return false, nil
	}

	switch op {
	case search.OperatorEQ:
		return equalValue(actual, operand), nil
	case search.OperatorNEQ:
		return !equalValue(actual, operand), nil
	case search.OperatorIn:
		for _, element := range operand.Elements() {
			if equalValue(actual, element) {
				return true, nil
			}
		}
		return false, nil
	case search.OperatorLike:
		s, ok := actual.(string)
		if !ok {
			return false, nil
		}
		re, err := m.pattern(operand.Interface().(string))
		if err != nil {
			return false, &search.InvalidConditionError{Reason: "operator LIKE requires a valid regular expression", Err: err}
		}
		return re.MatchString(s), nil
	case search.OperatorLT, search.OperatorLTE, search.OperatorGT, search.OperatorGTE:
		cmp, ok := compareValue(actual, operand)
		if !ok {
			return false, nil
		}
		switch op {
		case search.OperatorLT:
			return cmp < 0, nil
		case search.OperatorLTE:
			return cmp <= 0, nil
		case search.OperatorGT:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	}
	return false, &search.InvalidConditionError{Reason: fmt.Sprintf("unknown comparison operator %q", op)}
}

func (m *Matcher) matchCriteria(props map[string]any, criteria string) (bool, error) {
	re, err := m.pattern(criteria)
	if err != nil {
		return false, fmt.Errorf("invalid search criteria: %w", err)
	}
	for _, value := range props {
		if s, ok := value.(string); ok && re.MatchString(s) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) pattern(expr string) (*regexp.Regexp, error) {
	if cached, ok := m.patterns.Load(expr); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(search.AnchoredPattern(expr))
	if err != nil {
		return nil, err
	}
	m.patterns.Store(expr, re)
	return re, nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func equalValue(actual any, operand search.PropertyValue) bool {
	switch operand.Type() {
	case search.TypeString, search.TypeEnum:
		s, ok := actual.(string)
		return ok && s == operand.Interface().(string)
	case search.TypeBoolean:
		b, ok := actual.(bool)
		return ok && b == operand.Interface().(bool)
	case search.TypeLong, search.TypeDouble, search.TypeDate:
		cmp, ok := compareValue(actual, operand)
		return ok && cmp == 0
	}
	return false
}

// compareValue orders actual against operand. ok is false when the two
// cannot be compared.
func compareValue(actual any, operand search.PropertyValue) (int, bool) {
	switch operand.Type() {
	case search.TypeString:
		s, ok := actual.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(s, operand.Interface().(string)), true
	case search.TypeLong, search.TypeDouble:
		if !isNumber(actual) {
			return 0, false
		}
		if operand.Type() == search.TypeLong && isInteger(actual) {
			return compareInteger(actual, operand.Interface().(int64))
		}
		a, err := cast.ToFloat64E(actual)
		if err != nil {
			return 0, false
		}
		b, _ := cast.ToFloat64E(operand.Interface())
		return compareFloat(a, b), true
	case search.TypeDate:
		ms, ok := toMillis(actual)
		if !ok {
			return 0, false
		}
		want := operand.Interface().(int64)
		switch {
		case ms < want:
			return -1, true
		case ms > want:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// compareInteger orders integers exactly. Converting both sides to float64
// would merge distinct values above 2^53.
func compareInteger(actual any, want int64) (int, bool) {
	if u, ok := actual.(uint64); ok && u > math.MaxInt64 {
		return 1, true
	}
	if u, ok := actual.(uint); ok && uint64(u) > math.MaxInt64 {
		return 1, true
	}
	a, err := cast.ToInt64E(actual)
	if err != nil {
		return 0, false
	}
	switch {
	case a < want:
		return -1, true
	case a > want:
		return 1, true
	}
	return 0, true
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// toMillis reads a stored date: epoch milliseconds, floored when fractional,
// or an RFC 3339 timestamp with an explicit offset. search_date_millis in the
// migrations applies the same rules.
func toMillis(v any) (int64, bool) {
	if isInteger(v) {
		ms, err := cast.ToInt64E(v)
		return ms, err == nil
	}
	switch t := v.(type) {
	case float32, float64:
		f, err := cast.ToFloat64E(t)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(math.Floor(f)), true
	case time.Time:
		return t.UnixMilli(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return 0, false
		}
		return parsed.UnixMilli(), true
	}
	return 0, false
}
