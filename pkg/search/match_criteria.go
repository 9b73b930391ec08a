package search

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MatchCriteria combines the results of a list of conditions.
type MatchCriteria string

const (
	MatchAll  MatchCriteria = "ALL"
	MatchAny  MatchCriteria = "ANY"
	MatchNone MatchCriteria = "NONE"
)

// ParseMatchCriteria accepts the upper or lower case name. An empty name is ALL.
func ParseMatchCriteria(name string) (MatchCriteria, error) {
	switch MatchCriteria(strings.ToUpper(strings.TrimSpace(name))) {
	case "", MatchAll:
		return MatchAll, nil
	case MatchAny:
		return MatchAny, nil
	case MatchNone:
		return MatchNone, nil
	}
	return "", &InvalidConditionError{Reason: fmt.Sprintf("unknown match criteria %q", name)}
}

func (m MatchCriteria) normalized() MatchCriteria {
	if m == "" {
		return MatchAll
	}
	return m
}

// Combine applies the criteria to already evaluated child results.
// ALL and NONE hold over an empty list, ANY does not.
func (m MatchCriteria) Combine(results []bool) bool {
	switch m.normalized() {
	case MatchAny:
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	case MatchNone:
		for _, r := range results {
			if r {
				return false
			}
		}
		return true
	default:
		for _, r := range results {
			if !r {
				return false
			}
		}
		return true
	}
}

// CombineLazy is Combine with short-circuiting. eval is called in order and
// stops as soon as the outcome is known.
func (m MatchCriteria) CombineLazy(n int, eval func(i int) (bool, error)) (bool, error) {
	criteria := m.normalized()
	for i := 0; i < n; i++ {
		ok, err := eval(i)
		if err != nil {
			return false, err
		}
		switch {
		case criteria == MatchAll && !ok:
			return false, nil
		case criteria == MatchAny && ok:
			return true, nil
		case criteria == MatchNone && ok:
			return false, nil
		}
	}
	return criteria != MatchAny, nil
}

func (m MatchCriteria) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(m.normalized()))
}

func (m *MatchCriteria) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return &InvalidConditionError{Reason: "matchCriteria must be a string", Err: err}
	}
	name := ""
	if raw != nil {
		name = *raw
	}
	parsed, err := ParseMatchCriteria(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
