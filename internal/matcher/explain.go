package matcher

import (
	"strings"

	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/pkg/search"
)

// Trace records how each node of a condition tree evaluated. Children keep
// the order of the conditions they came from.
type Trace struct {
	Node     string  `json:"node"`
	Matched  bool    `json:"matched"`
	Children []Trace `json:"children,omitempty"`
}

// String renders the trace one node per line, indented by depth.
func (t Trace) String() string {
	var b strings.Builder
	t.write(&b, 0)
	return strings.TrimRight(b.String(), "\n")
}

func (t Trace) write(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	if t.Matched {
		b.WriteString("[+] ")
	} else {
		b.WriteString("[-] ")
	}
	b.WriteString(t.Node)
	b.WriteByte('\n')
	for _, child := range t.Children {
		child.write(b, depth+1)
	}
}

// Explain evaluates every node without short-circuiting and returns the
// full trace for an entity.
func (m *Matcher) Explain(entity domain.EntityDetail, s domain.EntitySearch) (Trace, error) {
	root := Trace{Node: "ALL"}
	results := make([]bool, 0, 4)

	typeTrace := Trace{Node: "typeName = " + s.TypeName, Matched: s.TypeName == "" || s.TypeName == entity.TypeName}
	if s.TypeName == "" {
		typeTrace.Node = "typeName = *"
	}
	root.Children = append(root.Children, typeTrace)
	results = append(results, typeTrace.Matched)

	if s.SearchProperties != nil {
		child, err := m.explainProperties(entity.Properties, *s.SearchProperties)
		if err != nil {
			return Trace{}, err
		}
		child.Node = "properties " + child.Node
		root.Children = append(root.Children, child)
		results = append(results, child.Matched)
	}
	if s.SearchClassifications != nil {
		child, err := m.explainClassifications(entity.Classifications, *s.SearchClassifications)
		if err != nil {
			return Trace{}, err
		}
		root.Children = append(root.Children, child)
		results = append(results, child.Matched)
	}
	if s.SearchCriteria != "" {
		ok, err := m.matchCriteria(entity.Properties, s.SearchCriteria)
		if err != nil {
			return Trace{}, err
		}
		root.Children = append(root.Children, Trace{Node: "searchCriteria ~ " + s.SearchCriteria, Matched: ok})
		results = append(results, ok)
	}

	root.Matched = search.MatchAll.Combine(results)
	return root, nil
}

func (m *Matcher) explainProperties(props map[string]any, sp search.SearchProperties) (Trace, error) {
	trace := Trace{Node: string(sp.MatchCriteria())}
	results := make([]bool, sp.Len())
	for i := 0; i < sp.Len(); i++ {
		c := sp.Condition(i)
		var child Trace
		if nested, ok := c.NestedConditions(); ok {
			var err error
			child, err = m.explainProperties(props, nested)
			if err != nil {
				return Trace{}, err
			}
		} else {
			ok, err := m.MatchCondition(props, c)
			if err != nil {
				return Trace{}, err
			}
			child = Trace{Node: c.String(), Matched: ok}
		}
		results[i] = child.Matched
		trace.Children = append(trace.Children, child)
	}
	trace.Matched = sp.MatchCriteria().Combine(results)
	return trace, nil
}

func (m *Matcher) explainClassifications(classifications []domain.Classification, sc search.SearchClassifications) (Trace, error) {
	trace := Trace{Node: "classifications " + string(sc.MatchCriteria())}
	results := make([]bool, sc.Len())
	for i := 0; i < sc.Len(); i++ {
		cc := sc.Condition(i)
		ok, err := m.matchClassification(classifications, cc)
		if err != nil {
			return Trace{}, err
		}
		child := Trace{Node: cc.String(), Matched: ok}
		if props, scoped := cc.MatchProperties(); scoped {
			nested, found, err := m.explainScoped(classifications, cc.Name(), props)
			if err != nil {
				return Trace{}, err
			}
			if found {
				child.Node = cc.Name()
				child.Children = []Trace{nested}
			}
		}
		results[i] = ok
		trace.Children = append(trace.Children, child)
	}
	trace.Matched = sc.MatchCriteria().Combine(results)
	return trace, nil
}

// explainScoped traces the first classification of that name whose
// properties match, the same one matchClassification accepts. When none
// matches, the first classification of that name is traced.
func (m *Matcher) explainScoped(classifications []domain.Classification, name string, props search.SearchProperties) (Trace, bool, error) {
	var (
		first Trace
		found bool
	)
	for _, c := range classifications {
		if c.Name != name {
			continue
		}
		nested, err := m.explainProperties(c.Properties, props)
		if err != nil {
			return Trace{}, false, err
		}
		if nested.Matched {
			return nested, true, nil
		}
		if !found {
			first, found = nested, true
		}
	}
	return first, found, nil
}
