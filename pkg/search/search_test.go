package search

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aliceOver30(t *testing.T) SearchProperties {
	t.Helper()
	props, err := NewPropertiesBuilder(MatchAll).
		Where("name", OperatorEQ, "Alice").
		Where("age", OperatorGT, 30).
		Build()
	require.NoError(t, err)
	return props
}

func deepTree(t *testing.T, depth int) SearchProperties {
	t.Helper()
	tree, err := NewPropertiesBuilder(MatchAny).Where("leaf", OperatorEQ, int64(depth)).Build()
	require.NoError(t, err)
	for level := depth - 1; level > 0; level-- {
		tree, err = NewPropertiesBuilder(MatchAll).
			Where("level", OperatorGTE, int64(level)).
			Nested(tree).
			Build()
		require.NoError(t, err)
	}
	return tree
}

func TestSearchPropertiesJSONRoundTrip(t *testing.T) {
	props := aliceOver30(t)

	data, err := json.Marshal(props)
	require.NoError(t, err)

	var decoded SearchProperties
	require.NoError(t, json.Unmarshal(data, &decoded))

	if diff := cmp.Diff(props, decoded); diff != "" {
		t.Fatalf("round trip changed the tree (-want +got):\n%s", diff)
	}
	assert.Equal(t, `ALL(name EQ "Alice", age GT 30)`, decoded.String())
	assert.Equal(t, props.Fingerprint(), decoded.Fingerprint())
}

func TestSearchPropertiesRoundTripDeepTree(t *testing.T) {
	tree := deepTree(t, 5)
	assert.Equal(t, 5, tree.Depth())

	data, err := json.Marshal(tree)
	require.NoError(t, err)

	var decoded SearchProperties
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, tree.Equal(decoded))
	assert.NoError(t, decoded.Validate())
}

func TestSearchPropertiesCloneIsEqualAndIndependent(t *testing.T) {
	props := deepTree(t, 3)
	clone := props.Clone()
	assert.True(t, props.Equal(clone))

	conds := clone.Conditions()
	conds[0] = NewNestedCondition(NewSearchProperties(MatchNone))
	assert.True(t, props.Equal(clone), "mutating the returned slice must not change the tree")
}

func TestSearchPropertiesEqualityIsStructural(t *testing.T) {
	a := aliceOver30(t)
	b := aliceOver30(t)
	assert.True(t, a.Equal(b))

	reordered, err := NewPropertiesBuilder(MatchAll).
		Where("age", OperatorGT, 30).
		Where("name", OperatorEQ, "Alice").
		Build()
	require.NoError(t, err)
	assert.False(t, a.Equal(reordered))

	otherCriteria := NewSearchProperties(MatchAny, a.Conditions()...)
	assert.False(t, a.Equal(otherCriteria))

	doubleAge, err := NewPropertiesBuilder(MatchAll).
		Where("name", OperatorEQ, "Alice").
		Where("age", OperatorGT, 30.0).
		Build()
	require.NoError(t, err)
	assert.False(t, a.Equal(doubleAge), "long and double operands differ")
	assert.NotEqual(t, a.Fingerprint(), doubleAge.Fingerprint())
}

func TestMatchCriteriaDefaultsToAll(t *testing.T) {
	var props SearchProperties
	require.NoError(t, json.Unmarshal([]byte(`{"conditions":[{"property":"name","operator":"EQ","value":"Alice"}]}`), &props))
	assert.Equal(t, MatchAll, props.MatchCriteria())
	assert.Equal(t, MatchAll, NewSearchProperties("").MatchCriteria())
}

func TestMatchCriteriaRejectsUnknownName(t *testing.T) {
	var props SearchProperties
	err := json.Unmarshal([]byte(`{"matchCriteria":"SOME","conditions":[]}`), &props)
	var ice *InvalidConditionError
	require.ErrorAs(t, err, &ice)
}

func TestMatchCriteriaCombineVacuousCases(t *testing.T) {
	assert.True(t, MatchAll.Combine(nil))
	assert.False(t, MatchAny.Combine(nil))
	assert.True(t, MatchNone.Combine(nil))

	for _, c := range []MatchCriteria{MatchAll, MatchAny, MatchNone} {
		got, err := c.CombineLazy(0, func(int) (bool, error) { return false, errors.New("not called") })
		require.NoError(t, err)
		assert.Equal(t, c.Combine(nil), got, string(c))
	}
}

func TestMatchCriteriaCombine(t *testing.T) {
	cases := []struct {
		criteria MatchCriteria
		results  []bool
		want     bool
	}{
		{MatchAll, []bool{true, true}, true},
		{MatchAll, []bool{true, false}, false},
		{MatchAny, []bool{false, true}, true},
		{MatchAny, []bool{false, false}, false},
		{MatchNone, []bool{false, false}, true},
		{MatchNone, []bool{false, true}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.criteria.Combine(tc.results), "%s %v", tc.criteria, tc.results)

		calls := 0
		lazy, err := tc.criteria.CombineLazy(len(tc.results), func(i int) (bool, error) {
			calls++
			return tc.results[i], nil
		})
		require.NoError(t, err)
		assert.Equal(t, tc.want, lazy)
		assert.LessOrEqual(t, calls, len(tc.results))
	}
}

func TestPropertyConditionRejectsBothLeafAndNested(t *testing.T) {
	var cond PropertyCondition
	err := json.Unmarshal([]byte(`{
		"property": "name", "operator": "EQ", "value": "Alice",
		"nestedConditions": {"matchCriteria": "ALL", "conditions": []}
	}`), &cond)

	var ice *InvalidConditionError
	require.ErrorAs(t, err, &ice)
	assert.Contains(t, ice.Reason, "both")
}

func TestPropertyConditionRejectsEmpty(t *testing.T) {
	var cond PropertyCondition
	err := json.Unmarshal([]byte(`{"class":"PropertyCondition"}`), &cond)
	var ice *InvalidConditionError
	require.ErrorAs(t, err, &ice)

	assert.Error(t, PropertyCondition{}.Validate())
}

func TestInvalidConditionErrorCarriesPath(t *testing.T) {
	var props SearchProperties
	err := json.Unmarshal([]byte(`{
		"matchCriteria": "ANY",
		"conditions": [
			{"property": "a", "operator": "EQ", "value": 1},
			{"nestedConditions": {"conditions": [
				{"property": "b", "operator": "IS_NULL", "value": 3}
			]}}
		]
	}`), &props)

	var ice *InvalidConditionError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, "conditions[1].nestedConditions.conditions[0]", ice.Path)
}

func TestNewLeafConditionOperatorRules(t *testing.T) {
	str := StringValue("x")
	arr := ArrayValue(StringValue("a"), StringValue("b"))
	flag := BoolValue(true)
	badRegex := StringValue("(")
	nan := DoubleValue(math.NaN())
	inf := DoubleValue(math.Inf(1))
	infInArray := ArrayValue(DoubleValue(1), DoubleValue(math.Inf(-1)))

	cases := []struct {
		name    string
		op      PropertyComparisonOperator
		value   *PropertyValue
		wantErr bool
	}{
		{"eq string", OperatorEQ, &str, false},
		{"eq needs value", OperatorEQ, nil, true},
		{"eq rejects array", OperatorEQ, &arr, true},
		{"in needs array", OperatorIn, &str, true},
		{"in array", OperatorIn, &arr, false},
		{"like string", OperatorLike, &str, false},
		{"like bad regex", OperatorLike, &badRegex, true},
		{"gt boolean", OperatorGT, &flag, true},
		{"eq NaN", OperatorEQ, &nan, true},
		{"gte infinity", OperatorGTE, &inf, true},
		{"in with infinite element", OperatorIn, &infInArray, true},
		{"is null without value", OperatorIsNull, nil, false},
		{"not null with value", OperatorNotNull, &str, true},
		{"unknown operator", PropertyComparisonOperator("ABOUT"), &str, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLeafCondition("p", tc.op, tc.value)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := NewLeafCondition("  ", OperatorEQ, &str)
	assert.Error(t, err)
}

func TestClassificationConditionOmitsAbsentMatchProperties(t *testing.T) {
	bare, err := NewClassificationCondition("Confidentiality", nil)
	require.NoError(t, err)
	data, err := json.Marshal(bare)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "matchProperties")

	level, err := NewPropertiesBuilder(MatchAll).Where("level", OperatorEQ, "High").Build()
	require.NoError(t, err)
	withProps, err := NewClassificationCondition("Confidentiality", &level)
	require.NoError(t, err)
	data, err = json.Marshal(withProps)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"matchProperties"`)

	var decoded ClassificationCondition
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, withProps.Equal(decoded))
	assert.False(t, bare.Equal(decoded))
	assert.Equal(t, `Confidentiality[ALL(level EQ "High")]`, decoded.String())
}

func TestSearchClassificationsRoundTrip(t *testing.T) {
	level, err := NewPropertiesBuilder(MatchAll).Where("level", OperatorGTE, 3).Build()
	require.NoError(t, err)
	conf, err := NewClassificationCondition("Confidentiality", &level)
	require.NoError(t, err)
	retention, err := NewClassificationCondition("Retention", nil)
	require.NoError(t, err)

	classifications := NewSearchClassifications(MatchAny, conf, retention)
	data, err := json.Marshal(classifications)
	require.NoError(t, err)

	var decoded SearchClassifications
	require.NoError(t, json.Unmarshal(data, &decoded))
	if diff := cmp.Diff(classifications, decoded); diff != "" {
		t.Fatalf("round trip changed the tree (-want +got):\n%s", diff)
	}
	assert.True(t, classifications.Equal(classifications.Clone()))
	assert.Equal(t, 3, classifications.Depth())
}

func TestSearchClassificationsRejectsBlankName(t *testing.T) {
	var decoded SearchClassifications
	err := json.Unmarshal([]byte(`{"matchCriteria":"ALL","conditions":[{"name":"  "}]}`), &decoded)
	var ice *InvalidConditionError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, "conditions[0]", ice.Path)
}

func TestUnknownFieldsAreIgnored(t *testing.T) {
	var props SearchProperties
	require.NoError(t, json.Unmarshal([]byte(`{
		"class": "SearchProperties",
		"headerVersion": 1,
		"matchCriteria": "NONE",
		"conditions": [{"class": "PropertyCondition", "property": "x", "operator": "NOT_NULL", "extra": true}]
	}`), &props))
	assert.Equal(t, MatchNone, props.MatchCriteria())
	assert.Equal(t, "NONE(x NOT_NULL)", props.String())
}

func TestPropertyValueDecoding(t *testing.T) {
	cases := []struct {
		in   string
		want PropertyValue
	}{
		{`"Alice"`, StringValue("Alice")},
		{`30`, LongValue(30)},
		{`2.5`, DoubleValue(2.5)},
		{`true`, BoolValue(true)},
		{`["a", 1]`, ArrayValue(StringValue("a"), LongValue(1))},
		{`{"type":"double","value":30}`, DoubleValue(30)},
		{`{"type":"enum","value":"HIGH"}`, EnumValue("HIGH")},
		{`{"type":"date","value":"2024-03-01T12:00:00Z"}`, DateValue(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))},
		{`{"type":"date","value":1709294400000}`, DateValue(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))},
		{`{"type":"array","elements":[{"type":"long","value":7}]}`, ArrayValue(LongValue(7))},
	}
	for _, tc := range cases {
		var got PropertyValue
		require.NoError(t, json.Unmarshal([]byte(tc.in), &got), tc.in)
		assert.True(t, tc.want.Equal(got), "%s decoded to %s", tc.in, got)

		data, err := json.Marshal(got)
		require.NoError(t, err)
		var again PropertyValue
		require.NoError(t, json.Unmarshal(data, &again))
		assert.True(t, got.Equal(again), "%s did not survive re-encoding", tc.in)
	}

	for _, bad := range []string{`{"type":"long","value":"x"}`, `{"type":"long","value":1.5}`, `{"a":1}`, `{"type":"colour","value":"red"}`} {
		var got PropertyValue
		assert.Error(t, json.Unmarshal([]byte(bad), &got), bad)
	}
}

func TestBuilderRejectsNonFiniteDoubles(t *testing.T) {
	_, err := NewPropertiesBuilder(MatchAll).Where("score", OperatorGTE, math.Inf(1)).Build()
	var ice *InvalidConditionError
	require.ErrorAs(t, err, &ice)

	_, err = NewPropertiesBuilder(MatchAll).Where("score", OperatorEQ, math.NaN()).Build()
	require.ErrorAs(t, err, &ice)
}

type unencodableTree struct{ explain string }

func (u unencodableTree) MarshalJSON() ([]byte, error) { return nil, errors.New("cannot encode") }
func (u unencodableTree) String() string { return u.explain }

func TestFingerprintFallsBackToExplainForm(t *testing.T) {
	a := fingerprint(unencodableTree{"ALL(score GTE +Inf)"})
	b := fingerprint(unencodableTree{"ALL(score GTE -Inf)"})

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, NewSearchProperties(MatchAll).Fingerprint())
}
