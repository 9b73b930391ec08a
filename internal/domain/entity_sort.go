package domain

import (
	"fmt"
	"strings"
)

// SequencingOrder selects how search results are ordered.
type SequencingOrder string

const (
	SequencingAny                SequencingOrder = "ANY"
	SequencingGUID               SequencingOrder = "GUID"
	SequencingCreationRecent     SequencingOrder = "CREATION_DATE_RECENT"
	SequencingCreationOldest     SequencingOrder = "CREATION_DATE_OLDEST"
	SequencingLastUpdateRecent   SequencingOrder = "LAST_UPDATE_RECENT"
	SequencingLastUpdateOldest   SequencingOrder = "LAST_UPDATE_OLDEST"
	SequencingPropertyAscending  SequencingOrder = "PROPERTY_ASCENDING"
	SequencingPropertyDescending SequencingOrder = "PROPERTY_DESCENDING"
)

// ParseSequencingOrder accepts any case; empty means ANY.
func ParseSequencingOrder(raw string) (SequencingOrder, error) {
	order := SequencingOrder(strings.ToUpper(strings.TrimSpace(raw)))
	switch order {
	case "":
		return SequencingAny, nil
	case SequencingAny, SequencingGUID, SequencingCreationRecent, SequencingCreationOldest,
		SequencingLastUpdateRecent, SequencingLastUpdateOldest,
		SequencingPropertyAscending, SequencingPropertyDescending:
		return order, nil
	}
	return "", fmt.Errorf("unknown sequencing order %q", raw)
}

// NeedsProperty reports whether the order sorts on a named property.
func (o SequencingOrder) NeedsProperty() bool {
	return o == SequencingPropertyAscending || o == SequencingPropertyDescending
}
