package repository

import (
	"bytes"
	"sort"
	"strings"

	"github.com/odpi/egeria-sub244/internal/domain"
)

// sortEntities orders entities the way the Postgres repository's ORDER BY
// does. Ties always fall back to the entity id.
func sortEntities(entities []domain.EntityDetail, order domain.SequencingOrder, property string) {
	byID := func(i, j int) bool {
		return bytes.Compare(entities[i].ID[:], entities[j].ID[:]) < 0
	}

	var less func(i, j int) bool
	switch order {
	case domain.SequencingCreationRecent:
		less = func(i, j int) bool {
			if !entities[i].CreatedAt.Equal(entities[j].CreatedAt) {
				return entities[i].CreatedAt.After(entities[j].CreatedAt)
			}
			return byID(i, j)
		}
	case domain.SequencingCreationOldest:
		less = func(i, j int) bool {
			if !entities[i].CreatedAt.Equal(entities[j].CreatedAt) {
				return entities[i].CreatedAt.Before(entities[j].CreatedAt)
			}
			return byID(i, j)
		}
	case domain.SequencingLastUpdateRecent:
		less = func(i, j int) bool {
			if !entities[i].UpdatedAt.Equal(entities[j].UpdatedAt) {
				return entities[i].UpdatedAt.After(entities[j].UpdatedAt)
			}
			return byID(i, j)
		}
	case domain.SequencingLastUpdateOldest:
		less = func(i, j int) bool {
			if !entities[i].UpdatedAt.Equal(entities[j].UpdatedAt) {
				return entities[i].UpdatedAt.Before(entities[j].UpdatedAt)
			}
			return byID(i, j)
		}
	case domain.SequencingPropertyAscending, domain.SequencingPropertyDescending:
		descending := order == domain.SequencingPropertyDescending
		less = func(i, j int) bool {
			a, aok := entities[i].Properties[property]
			b, bok := entities[j].Properties[property]
			// Missing properties sort last in both directions.
			if aok != bok {
				return aok
			}
			if aok {
				if c := compareJSON(a, b); c != 0 {
					if descending {
						return c > 0
					}
					return c < 0
				}
			}
			return byID(i, j)
		}
	default:
		less = byID
	}
	sort.SliceStable(entities, less)
}

// jsonRank follows the jsonb type ordering:
// null < string < number < boolean < array < object.
func jsonRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 1
	case float64, float32, int, int32, int64:
		return 2
	case bool:
		return 3
	case []any:
		return 4
	case map[string]any:
		return 5
	}
	return 6
}

func compareJSON(a, b any) int {
	ra, rb := jsonRank(a), jsonRank(b)
	if ra != rb {
		return compareInts(int64(ra), int64(rb))
	}
	switch ra {
	case 1:
		return strings.Compare(a.(string), b.(string))
	case 2:
		ia, aInt := toInt(a)
		ib, bInt := toInt(b)
		if aInt && bInt {
			return compareInts(ia, ib)
		}
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	case 3:
		ba, bb := a.(bool), b.(bool)
		if ba != bb {
			if !ba {
				return -1
			}
			return 1
		}
	case 4:
		return compareArrays(a.([]any), b.([]any))
	case 5:
		return compareObjects(a.(map[string]any), b.(map[string]any))
	}
	return 0
}

// compareArrays orders longer arrays after shorter ones, then element by element.
func compareArrays(a, b []any) int {
	if len(a) != len(b) {
		return compareInts(int64(len(a)), int64(len(b)))
	}
	for i := range a {
		if c := compareJSON(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// compareObjects orders by pair count, then walks the pairs in jsonb key
// order (shorter keys first, then bytewise), comparing key then value.
func compareObjects(a, b map[string]any) int {
	if len(a) != len(b) {
		return compareInts(int64(len(a)), int64(len(b)))
	}
	ka, kb := jsonbKeys(a), jsonbKeys(b)
	for i := range ka {
		if c := compareJSONBKeys(ka[i], kb[i]); c != 0 {
			return c
		}
		if c := compareJSON(a[ka[i]], b[kb[i]]); c != 0 {
			return c
		}
	}
	return 0
}

func jsonbKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return compareJSONBKeys(keys[i], keys[j]) < 0 })
	return keys
}

func compareJSONBKeys(a, b string) int {
	if len(a) != len(b) {
		return compareInts(int64(len(a)), int64(len(b)))
	}
	return strings.Compare(a, b)
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// pageEntities applies FromElement and PageSize. A PageSize of zero returns
// everything after FromElement.
func pageEntities(entities []domain.EntityDetail, fromElement, pageSize int) []domain.EntityDetail {
	if fromElement < 0 {
		fromElement = 0
	}
	if fromElement >= len(entities) {
		return []domain.EntityDetail{}
	}
	end := len(entities)
	if pageSize > 0 && fromElement+pageSize < end {
		end = fromElement + pageSize
	}
	return entities[fromElement:end]
}
