package search

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ClassificationCondition matches entities carrying the named classification,
// optionally constrained by conditions on the classification's own properties.
type ClassificationCondition struct {
	name            string
	matchProperties *SearchProperties
}

// NewClassificationCondition copies matchProperties when it is non-nil.
func NewClassificationCondition(name string, matchProperties *SearchProperties) (ClassificationCondition, error) {
	if strings.TrimSpace(name) == "" {
		return ClassificationCondition{}, &InvalidConditionError{Reason: "classification name is required"}
	}
	cond := ClassificationCondition{name: name}
	if matchProperties != nil {
		mp := matchProperties.Clone()
		cond.matchProperties = &mp
	}
	return cond, nil
}

func (c ClassificationCondition) Name() string { return c.name }

// MatchProperties returns the property tree scoped to the classification, or
// false when the condition only tests for presence.
func (c ClassificationCondition) MatchProperties() (SearchProperties, bool) {
	if c.matchProperties == nil {
		return SearchProperties{}, false
	}
	return *c.matchProperties, true
}

func (c ClassificationCondition) Validate() error {
	if strings.TrimSpace(c.name) == "" {
		return &InvalidConditionError{Reason: "classification name is required"}
	}
	if c.matchProperties != nil {
		if err := c.matchProperties.Validate(); err != nil {
			return within("matchProperties", err)
		}
	}
	return nil
}

func (c ClassificationCondition) Depth() int {
	if c.matchProperties == nil {
		return 1
	}
	return 1 + c.matchProperties.Depth()
}

func (c ClassificationCondition) Equal(other ClassificationCondition) bool {
	if c.name != other.name || (c.matchProperties == nil) != (other.matchProperties == nil) {
		return false
	}
	return c.matchProperties == nil || c.matchProperties.Equal(*other.matchProperties)
}

func (c ClassificationCondition) Clone() ClassificationCondition {
	out := ClassificationCondition{name: c.name}
	if c.matchProperties != nil {
		mp := c.matchProperties.Clone()
		out.matchProperties = &mp
	}
	return out
}

func (c ClassificationCondition) String() string {
	if c.matchProperties == nil {
		return c.name
	}
	return c.name + "[" + c.matchProperties.String() + "]"
}

type classificationConditionJSON struct {
	Class           string            `json:"class,omitempty"`
	Name            string            `json:"name"`
	MatchProperties *SearchProperties `json:"matchProperties,omitempty"`
}

func (c ClassificationCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(classificationConditionJSON{
		Class:           "ClassificationCondition",
		Name:            c.name,
		MatchProperties: c.matchProperties,
	})
}

func (c *ClassificationCondition) UnmarshalJSON(data []byte) error {
	var in classificationConditionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Name) == "" {
		return &InvalidConditionError{Reason: "classification name is required"}
	}
	*c = ClassificationCondition{name: in.Name, matchProperties: in.MatchProperties}
	return nil
}

// SearchClassifications combines classification conditions with a MatchCriteria.
type SearchClassifications struct {
	matchCriteria MatchCriteria
	conditions    []ClassificationCondition
}

func NewSearchClassifications(criteria MatchCriteria, conds ...ClassificationCondition) SearchClassifications {
	out := SearchClassifications{matchCriteria: criteria.normalized(), conditions: make([]ClassificationCondition, len(conds))}
	for i, c := range conds {
		out.conditions[i] = c.Clone()
	}
	return out
}

func (s SearchClassifications) MatchCriteria() MatchCriteria { return s.matchCriteria.normalized() }

func (s SearchClassifications) Conditions() []ClassificationCondition {
	return s.Clone().conditions
}

func (s SearchClassifications) Len() int { return len(s.conditions) }

func (s SearchClassifications) Condition(i int) ClassificationCondition { return s.conditions[i] }

func (s SearchClassifications) Validate() error {
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

func (s SearchClassifications) Depth() int {
	deepest := 0
	for _, c := range s.conditions {
		if d := c.Depth(); d > deepest {
			deepest = d
		}
	}
	return 1 + deepest
}

func (s SearchClassifications) Equal(other SearchClassifications) bool {
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

func (s SearchClassifications) Clone() SearchClassifications {
	return NewSearchClassifications(s.MatchCriteria(), s.conditions...)
}

func (s SearchClassifications) String() string {
	parts := make([]string, len(s.conditions))
	for i, c := range s.conditions {
		parts[i] = c.String()
	}
	return string(s.MatchCriteria()) + "(" + strings.Join(parts, ", ") + ")"
}

func (s SearchClassifications) Fingerprint() string {
	return fingerprint(s)
}

func (s SearchClassifications) MarshalJSON() ([]byte, error) {
	conds := s.conditions
	if conds == nil {
		conds = []ClassificationCondition{}
	}
	return json.Marshal(struct {
		Class         string                    `json:"class"`
		MatchCriteria MatchCriteria             `json:"matchCriteria"`
		Conditions    []ClassificationCondition `json:"conditions"`
	}{"SearchClassifications", s.MatchCriteria(), conds})
}

func (s *SearchClassifications) UnmarshalJSON(data []byte) error {
	var in searchPropertiesJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	conds := make([]ClassificationCondition, len(in.Conditions))
	for i, raw := range in.Conditions {
		if err := json.Unmarshal(raw, &conds[i]); err != nil {
			return within(fmt.Sprintf("conditions[%d]", i), err)
		}
	}
	*s = SearchClassifications{matchCriteria: in.MatchCriteria.normalized(), conditions: conds}
	return nil
}
