package domain

import (
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/odpi/egeria-sub244/pkg/search"
)

// EntitySearch represents a find-entities request.
type EntitySearch struct {
	// TypeName restricts results to one entity type; empty matches every type.
	TypeName              string                        `json:"typeName,omitempty"`
	SearchProperties      *search.SearchProperties      `json:"searchProperties,omitempty"`
	SearchClassifications *search.SearchClassifications `json:"searchClassifications,omitempty"`
	// SearchCriteria is a regular expression matched against every string property.
	SearchCriteria     string          `json:"searchCriteria,omitempty"`
	SequencingProperty string          `json:"sequencingProperty,omitempty"`
	SequencingOrder    SequencingOrder `json:"sequencingOrder,omitempty"`
	FromElement        int             `json:"fromElement"`
	PageSize           int             `json:"pageSize"`
}

// Depth is the deepest condition tree carried by the search.
func (s EntitySearch) Depth() int {
	depth := 0
	if s.SearchProperties != nil {
		depth = s.SearchProperties.Depth()
	}
	if s.SearchClassifications != nil {
		if d := s.SearchClassifications.Depth(); d > depth {
			depth = d
		}
	}
	return depth
}

// Explain renders the conditions in a stable, human readable form.
func (s EntitySearch) Explain() string {
	out := "type=" + s.TypeName
	if s.TypeName == "" {
		out = "type=*"
	}
	if s.SearchProperties != nil {
		out += " properties=" + s.SearchProperties.String()
	}
	if s.SearchClassifications != nil {
		out += " classifications=" + s.SearchClassifications.String()
	}
	if s.SearchCriteria != "" {
		out += " criteria=" + s.SearchCriteria
	}
	return out
}

// Fingerprint identifies the filtering part of the search. Paging and
// ordering are excluded so plans can be shared between pages.
func (s EntitySearch) Fingerprint() string {
	h := murmur3.New128()
	parts := []string{s.TypeName, s.SearchCriteria, "", ""}
	if s.SearchProperties != nil {
		parts[2] = s.SearchProperties.Fingerprint()
	}
	if s.SearchClassifications != nil {
		parts[3] = s.SearchClassifications.Fingerprint()
	}
	for _, part := range parts {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	hi, lo := h.Sum128()
	return fmt.Sprintf("%016x%016x", hi, lo)
}
