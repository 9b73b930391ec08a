package search

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PropertyComparisonOperator is the comparison applied by a leaf condition.
type PropertyComparisonOperator string

const (
	OperatorEQ      PropertyComparisonOperator = "EQ"
	OperatorNEQ     PropertyComparisonOperator = "NEQ"
	OperatorLT      PropertyComparisonOperator = "LT"
	OperatorLTE     PropertyComparisonOperator = "LTE"
	OperatorGT      PropertyComparisonOperator = "GT"
	OperatorGTE     PropertyComparisonOperator = "GTE"
	OperatorIn      PropertyComparisonOperator = "IN"
	OperatorLike    PropertyComparisonOperator = "LIKE"
	OperatorIsNull  PropertyComparisonOperator = "IS_NULL"
	OperatorNotNull PropertyComparisonOperator = "NOT_NULL"
)

var operators = map[PropertyComparisonOperator]struct{}{
	OperatorEQ: {}, OperatorNEQ: {},
	OperatorLT: {}, OperatorLTE: {}, OperatorGT: {}, OperatorGTE: {},
	OperatorIn: {}, OperatorLike: {},
	OperatorIsNull: {}, OperatorNotNull: {},
}

// ParseOperator accepts the operator name in any case.
func ParseOperator(name string) (PropertyComparisonOperator, error) {
	op := PropertyComparisonOperator(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := operators[op]; !ok {
		return "", &InvalidConditionError{Reason: fmt.Sprintf("unknown comparison operator %q", name)}
	}
	return op, nil
}

// IsOrdering reports whether the operator compares by order rather than equality.
func (o PropertyComparisonOperator) IsOrdering() bool {
	switch o {
	case OperatorLT, OperatorLTE, OperatorGT, OperatorGTE:
		return true
	}
	return false
}

// TakesValue reports whether a leaf with this operator must carry a value.
func (o PropertyComparisonOperator) TakesValue() bool {
	return o != OperatorIsNull && o != OperatorNotNull
}

func (o *PropertyComparisonOperator) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return &InvalidConditionError{Reason: "operator must be a string", Err: err}
	}
	op, err := ParseOperator(raw)
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// checkValue enforces the operator/value pairing rules for a leaf.
func (o PropertyComparisonOperator) checkValue(value *PropertyValue) error {
	if !o.TakesValue() {
		if value != nil {
			return &InvalidConditionError{Reason: fmt.Sprintf("operator %s does not take a value", o)}
		}
		return nil
	}
	if value == nil {
		return &InvalidConditionError{Reason: fmt.Sprintf("operator %s requires a value", o)}
	}
	if !value.finite() {
		return &InvalidConditionError{Reason: fmt.Sprintf("operator %s requires a finite number", o)}
	}
	switch o {
	case OperatorIn:
		if value.Type() != TypeArray {
			return &InvalidConditionError{Reason: "operator IN requires an array value"}
		}
	case OperatorLike:
		if value.Type() != TypeString {
			return &InvalidConditionError{Reason: "operator LIKE requires a string value"}
		}
		if _, err := value.Pattern(); err != nil {
			return &InvalidConditionError{Reason: "operator LIKE requires a valid regular expression", Err: err}
		}
	case OperatorEQ, OperatorNEQ:
		if value.Type() == TypeArray {
			return &InvalidConditionError{Reason: fmt.Sprintf("operator %s does not accept an array value", o)}
		}
	default:
		switch value.Type() {
		case TypeString, TypeLong, TypeDouble, TypeDate:
		default:
			return &InvalidConditionError{Reason: fmt.Sprintf("operator %s cannot order %s values", o, value.Type())}
		}
	}
	return nil
}
