package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odpi/egeria-sub244/pkg/search"
)

func TestEntityDetailWithHelpersDoNotMutate(t *testing.T) {
	original := NewEntityDetail("Person", map[string]any{"name": "Alice"},
		Classification{Name: "Confidentiality", Properties: map[string]any{"level": "High"}})

	renamed := original.WithProperty("name", "Alicia")
	assert.Equal(t, "Alice", original.Properties["name"])
	assert.Equal(t, "Alicia", renamed.Properties["name"])

	dropped := original.WithoutProperty("name")
	assert.NotContains(t, dropped.Properties, "name")
	assert.Contains(t, original.Properties, "name")

	replaced := original.WithClassification(Classification{Name: "Confidentiality", Properties: map[string]any{"level": "Low"}})
	require.Len(t, replaced.Classifications, 1)
	assert.Equal(t, "Low", replaced.Classifications[0].Properties["level"])
	assert.Equal(t, "High", original.Classifications[0].Properties["level"])

	added := original.WithClassification(Classification{Name: "Retention"})
	assert.Len(t, added.Classifications, 2)

	removed := original.WithoutClassification("Confidentiality")
	assert.Empty(t, removed.Classifications)
	_, ok := original.Classification("Confidentiality")
	assert.True(t, ok)
}

func TestEntityDetailJSONBRoundTrip(t *testing.T) {
	entity := NewEntityDetail("Person", map[string]any{"name": "Alice", "age": float64(42)},
		Classification{Name: "Retention"})

	props, err := entity.GetPropertiesAsJSONB()
	require.NoError(t, err)
	decodedProps, err := FromJSONBProperties(props)
	require.NoError(t, err)
	assert.Equal(t, entity.Properties, decodedProps)

	classifications, err := entity.GetClassificationsAsJSONB()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Retention"}]`, string(classifications))
	decoded, err := FromJSONBClassifications(classifications)
	require.NoError(t, err)
	assert.Equal(t, "Retention", decoded[0].Name)

	empty, err := EntityDetail{}.GetClassificationsAsJSONB()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestParseSequencingOrder(t *testing.T) {
	order, err := ParseSequencingOrder("")
	require.NoError(t, err)
	assert.Equal(t, SequencingAny, order)

	order, err = ParseSequencingOrder("property_descending")
	require.NoError(t, err)
	assert.Equal(t, SequencingPropertyDescending, order)
	assert.True(t, order.NeedsProperty())

	_, err = ParseSequencingOrder("sideways")
	assert.Error(t, err)
}

func TestEntitySearchFingerprintIgnoresPaging(t *testing.T) {
	var s EntitySearch
	require.NoError(t, json.Unmarshal([]byte(`{
		"typeName": "Person",
		"searchProperties": {"matchCriteria": "ANY", "conditions": [
			{"property": "name", "operator": "EQ", "value": {"type": "string", "value": "Alice"}},
			{"nestedConditions": {"conditions": [{"property": "age", "operator": "GT", "value": 30}]}}
		]},
		"fromElement": 0,
		"pageSize": 10
	}`), &s))

	assert.Equal(t, 2, s.Depth())
	assert.Equal(t, `type=Person properties=ANY(name EQ "Alice", ALL(age GT 30))`, s.Explain())

	next := s
	next.FromElement = 10
	next.SequencingOrder = SequencingGUID
	assert.Equal(t, s.Fingerprint(), next.Fingerprint())

	other := s
	other.TypeName = "Asset"
	assert.NotEqual(t, s.Fingerprint(), other.Fingerprint())

	props, err := search.NewPropertiesBuilder(search.MatchAll).Build()
	require.NoError(t, err)
	other.SearchProperties = &props
	assert.Equal(t, 1, other.Depth())
}
