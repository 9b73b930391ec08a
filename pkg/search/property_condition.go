package search

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PropertyCondition is either a leaf test of one property or a nested
// SearchProperties sub-tree. The zero value is neither and fails validation.
//
// None of the types in this package have mutators, so accessors may return
// values that share structure with the receiver.
type PropertyCondition struct {
	leaf   *propertyTest
	nested *SearchProperties
}

type propertyTest struct {
	property string
	operator PropertyComparisonOperator
	value    *PropertyValue
}

// NewLeafCondition builds a condition testing one property. value must be nil
// for IS_NULL and NOT_NULL and non-nil for every other operator.
func NewLeafCondition(property string, operator PropertyComparisonOperator, value *PropertyValue) (PropertyCondition, error) {
	if strings.TrimSpace(property) == "" {
		return PropertyCondition{}, &InvalidConditionError{Reason: "property name is required"}
	}
	if _, ok := operators[operator]; !ok {
		return PropertyCondition{}, &InvalidConditionError{Reason: fmt.Sprintf("unknown comparison operator %q", operator)}
	}
	if err := operator.checkValue(value); err != nil {
		return PropertyCondition{}, err
	}
	test := &propertyTest{property: property, operator: operator}
	if value != nil {
		v := value.Clone()
		test.value = &v
	}
	return PropertyCondition{leaf: test}, nil
}

// NewNestedCondition wraps a sub-tree. The sub-tree is copied.
func NewNestedCondition(nested SearchProperties) PropertyCondition {
	n := nested.Clone()
	return PropertyCondition{nested: &n}
}

func (c PropertyCondition) IsLeaf() bool   { return c.leaf != nil }
func (c PropertyCondition) IsNested() bool { return c.nested != nil }

func (c PropertyCondition) Property() string {
	if c.leaf == nil {
		return ""
	}
	return c.leaf.property
}

func (c PropertyCondition) Operator() PropertyComparisonOperator {
	if c.leaf == nil {
		return ""
	}
	return c.leaf.operator
}

// Value returns the leaf operand, or false when there is none.
func (c PropertyCondition) Value() (PropertyValue, bool) {
	if c.leaf == nil || c.leaf.value == nil {
		return PropertyValue{}, false
	}
	return *c.leaf.value, true
}

// NestedConditions returns the sub-tree, or false for a leaf.
func (c PropertyCondition) NestedConditions() (SearchProperties, bool) {
	if c.nested == nil {
		return SearchProperties{}, false
	}
	return *c.nested, true
}

// Validate checks the condition and everything below it.
func (c PropertyCondition) Validate() error {
	switch {
	case c.leaf != nil && c.nested != nil:
		return &InvalidConditionError{Reason: "condition has both a property test and nested conditions"}
	case c.leaf != nil:
		if strings.TrimSpace(c.leaf.property) == "" {
			return &InvalidConditionError{Reason: "property name is required"}
		}
		return c.leaf.operator.checkValue(c.leaf.value)
	case c.nested != nil:
		if err := c.nested.Validate(); err != nil {
			return within("nestedConditions", err)
		}
		return nil
	}
	return &InvalidConditionError{Reason: "condition has neither a property test nor nested conditions"}
}

// Depth is 1 for a leaf, and one more than the nested tree's depth otherwise.
func (c PropertyCondition) Depth() int {
	if c.nested != nil {
		return 1 + c.nested.Depth()
	}
	return 1
}

func (c PropertyCondition) Equal(other PropertyCondition) bool {
	if c.IsLeaf() != other.IsLeaf() || c.IsNested() != other.IsNested() {
		return false
	}
	if c.leaf != nil {
		a, b := c.leaf, other.leaf
		if a.property != b.property || a.operator != b.operator {
			return false
		}
		if (a.value == nil) != (b.value == nil) {
			return false
		}
		if a.value != nil && !a.value.Equal(*b.value) {
			return false
		}
	}
	if c.nested != nil && !c.nested.Equal(*other.nested) {
		return false
	}
	return true
}

func (c PropertyCondition) Clone() PropertyCondition {
	var out PropertyCondition
	if c.leaf != nil {
		test := *c.leaf
		if c.leaf.value != nil {
			v := c.leaf.value.Clone()
			test.value = &v
		}
		out.leaf = &test
	}
	if c.nested != nil {
		n := c.nested.Clone()
		out.nested = &n
	}
	return out
}

func (c PropertyCondition) String() string {
	switch {
	case c.nested != nil:
		return c.nested.String()
	case c.leaf != nil:
		if c.leaf.value == nil {
			return c.leaf.property + " " + string(c.leaf.operator)
		}
		return c.leaf.property + " " + string(c.leaf.operator) + " " + c.leaf.value.String()
	}
	return "<empty>"
}

type propertyConditionJSON struct {
	Class            string                     `json:"class,omitempty"`
	Property         string                     `json:"property,omitempty"`
	Operator         PropertyComparisonOperator `json:"operator,omitempty"`
	Value            *PropertyValue             `json:"value,omitempty"`
	NestedConditions *SearchProperties          `json:"nestedConditions,omitempty"`
}

func (c PropertyCondition) MarshalJSON() ([]byte, error) {
	out := propertyConditionJSON{Class: "PropertyCondition"}
	if c.leaf != nil {
		out.Property = c.leaf.property
		out.Operator = c.leaf.operator
		out.Value = c.leaf.value
	}
	out.NestedConditions = c.nested
	return json.Marshal(out)
}

func (c *PropertyCondition) UnmarshalJSON(data []byte) error {
	var in struct {
		Property         string                     `json:"property"`
		Operator         PropertyComparisonOperator `json:"operator"`
		Value            *PropertyValue             `json:"value"`
		NestedConditions json.RawMessage            `json:"nestedConditions"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	hasLeaf := in.Property != "" || in.Operator != "" || in.Value != nil
	hasNested := len(in.NestedConditions) > 0 && string(in.NestedConditions) != "null"
	switch {
	case hasLeaf && hasNested:
		return &InvalidConditionError{Reason: "condition has both a property test and nested conditions"}
	case hasNested:
		var nested SearchProperties
		if err := json.Unmarshal(in.NestedConditions, &nested); err != nil {
			return within("nestedConditions", err)
		}
		*c = PropertyCondition{nested: &nested}
		return nil
	case hasLeaf:
		if in.Operator == "" {
			return &InvalidConditionError{Reason: "operator is required"}
		}
		leaf, err := NewLeafCondition(in.Property, in.Operator, in.Value)
		if err != nil {
			return err
		}
		*c = leaf
		return nil
	}
	return &InvalidConditionError{Reason: "condition has neither a property test nor nested conditions"}
}
