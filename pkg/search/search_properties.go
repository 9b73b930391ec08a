package search

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SearchProperties combines an ordered list of property conditions with a
// MatchCriteria. Values are immutable once built.
type SearchProperties struct {
	matchCriteria MatchCriteria
	conditions    []PropertyCondition
}

// NewSearchProperties copies conds into a new tree. An empty criteria is ALL.
func NewSearchProperties(criteria MatchCriteria, conds ...PropertyCondition) SearchProperties {
	return SearchProperties{
		matchCriteria: criteria.normalized(),
		conditions:    cloneConditions(conds),
	}
}

func (s SearchProperties) MatchCriteria() MatchCriteria { return s.matchCriteria.normalized() }

// Conditions returns a copy of the child conditions in order.
func (s SearchProperties) Conditions() []PropertyCondition {
	return cloneConditions(s.conditions)
}

func (s SearchProperties) Len() int { return len(s.conditions) }

// Condition returns the i'th child without copying it.
func (s SearchProperties) Condition(i int) PropertyCondition { return s.conditions[i] }

func (s SearchProperties) Validate() error {
	if _, err := ParseMatchCriteria(string(s.matchCriteria)); err != nil {
		return err
	}
	for i, c := range s.conditions {
		if err := c.Validate(); err != nil {
			return within(fmt.Sprintf("conditions[%d]", i), err)
		}
	}
	return nil
}

// Depth counts the levels of SearchProperties in the tree, starting at 1.
func (s SearchProperties) Depth() int {
	deepest := 0
	for _, c := range s.conditions {
		if c.IsNested() {
			if d := c.Depth() - 1; d > deepest {
				deepest = d
			}
		}
	}
	return 1 + deepest
}

func (s SearchProperties) Equal(other SearchProperties) bool {
	if s.MatchCriteria() != other.MatchCriteria() || len(s.conditions) != len(other.conditions) {
		return false
	}
	for i := range s.conditions {
		if !s.conditions[i].Equal(other.conditions[i]) {
			return false
		}
	}
	return true
}

func (s SearchProperties) Clone() SearchProperties {
	return SearchProperties{matchCriteria: s.MatchCriteria(), conditions: cloneConditions(s.conditions)}
}

// String renders the tree as e.g. ALL(name EQ "Alice", age GT 30).
func (s SearchProperties) String() string {
	parts := make([]string, len(s.conditions))
	for i, c := range s.conditions {
		parts[i] = c.String()
	}
	return string(s.MatchCriteria()) + "(" + strings.Join(parts, ", ") + ")"
}

// Fingerprint is a stable hash of the tree's canonical JSON form.
func (s SearchProperties) Fingerprint() string {
	return fingerprint(s)
}

func cloneConditions(conds []PropertyCondition) []PropertyCondition {
	out := make([]PropertyCondition, len(conds))
	for i, c := range conds {
		out[i] = c.Clone()
	}
	return out
}

type searchPropertiesJSON struct {
	Class         string            `json:"class,omitempty"`
	MatchCriteria MatchCriteria     `json:"matchCriteria"`
	Conditions    []json.RawMessage `json:"conditions"`
}

func (s SearchProperties) MarshalJSON() ([]byte, error) {
	conds := s.conditions
	if conds == nil {
		conds = []PropertyCondition{}
	}
	return json.Marshal(struct {
		Class         string              `json:"class"`
		MatchCriteria MatchCriteria       `json:"matchCriteria"`
		Conditions    []PropertyCondition `json:"conditions"`
	}{"SearchProperties", s.MatchCriteria(), conds})
}

func (s *SearchProperties) UnmarshalJSON(data []byte) error {
	var in searchPropertiesJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	conds := make([]PropertyCondition, len(in.Conditions))
	for i, raw := range in.Conditions {
		if err := json.Unmarshal(raw, &conds[i]); err != nil {
			return within(fmt.Sprintf("conditions[%d]", i), err)
		}
	}
	*s = SearchProperties{matchCriteria: in.MatchCriteria.normalized(), conditions: conds}
	return nil
}

// PropertiesBuilder assembles a SearchProperties tree. The first construction
// error is kept and returned by Build.
type PropertiesBuilder struct {
	criteria   MatchCriteria
	conditions []PropertyCondition
	err        error
}

func NewPropertiesBuilder(criteria MatchCriteria) *PropertiesBuilder {
	return &PropertiesBuilder{criteria: criteria}
}

// Where adds a leaf test. value may be a PropertyValue, a plain Go value, or
// nil for IS_NULL and NOT_NULL.
func (b *PropertiesBuilder) Where(property string, operator PropertyComparisonOperator, value any) *PropertiesBuilder {
	if b.err != nil {
		return b
	}
	var operand *PropertyValue
	if value != nil {
		pv, err := ValueOf(value)
		if err != nil {
			b.err = within(fmt.Sprintf("conditions[%d]", len(b.conditions)), &InvalidConditionError{Reason: "unsupported value", Err: err})
			return b
		}
		operand = &pv
	}
	cond, err := NewLeafCondition(property, operator, operand)
	if err != nil {
		b.err = within(fmt.Sprintf("conditions[%d]", len(b.conditions)), err)
		return b
	}
	b.conditions = append(b.conditions, cond)
	return b
}

// Nested adds a sub-tree.
func (b *PropertiesBuilder) Nested(nested SearchProperties) *PropertiesBuilder {
	if b.err == nil {
		b.conditions = append(b.conditions, NewNestedCondition(nested))
	}
	return b
}

func (b *PropertiesBuilder) Build() (SearchProperties, error) {
	if b.err != nil {
		return SearchProperties{}, b.err
	}
	return NewSearchProperties(b.criteria, b.conditions...), nil
}
