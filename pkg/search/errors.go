package search

import "strings"

// InvalidConditionError reports a malformed condition tree. Path locates the
// offending node relative to the root, e.g. "conditions[1].nestedConditions".
type InvalidConditionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *InvalidConditionError) Error() string {
	var b strings.Builder
	b.WriteString("invalid condition")
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *InvalidConditionError) Unwrap() error {
	return e.Err
}

// within prefixes the error path with the location of the parent node.
func within(prefix string, err error) error {
	ice, ok := err.(*InvalidConditionError)
	if !ok {
		return &InvalidConditionError{Path: prefix, Reason: "invalid node", Err: err}
	}
	path := prefix
	if ice.Path != "" {
		if strings.HasPrefix(ice.Path, "[") {
			path = prefix + ice.Path
		} else {
			path = prefix + "." + ice.Path
		}
	}
	return &InvalidConditionError{Path: path, Reason: ice.Reason, Err: ice.Err}
}
