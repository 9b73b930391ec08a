package repository

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/pkg/search"
)

func buildProps(t *testing.T, b *search.PropertiesBuilder) *search.SearchProperties {
	t.Helper()
	props, err := b.Build()
	require.NoError(t, err)
	return &props
}

func TestCompileSearchEmptyMatchesEverything(t *testing.T) {
	plan, err := compileSearch(domain.EntitySearch{})
	require.NoError(t, err)
	assert.Equal(t, "TRUE", plan.where)
	assert.Empty(t, plan.args)
}

func TestCompileSearchTypeAndLeaves(t *testing.T) {
	plan, err := compileSearch(domain.EntitySearch{
		TypeName: "Person",
		SearchProperties: buildProps(t, search.NewPropertiesBuilder(search.MatchAll).
			Where("name", search.OperatorEQ, "Alice").
			Where("age", search.OperatorGT, 30)),
	})
	require.NoError(t, err)

	want := "e.type_name = $1 AND (" +
		"COALESCE((e.properties -> $2::text) = to_jsonb($3::text), FALSE) AND " +
		"(CASE WHEN jsonb_typeof((e.properties -> $4::text)) = 'number' THEN (e.properties ->> $4::text)::numeric > $5::numeric ELSE FALSE END))"
	assert.Equal(t, want, plan.where)
	assert.Equal(t, []any{"Person", "name", "Alice", "age", int64(30)}, plan.args)
}

func TestCompileSearchVacuousCombinators(t *testing.T) {
	cases := map[search.MatchCriteria]string{
		search.MatchAll:  "TRUE",
		search.MatchAny:  "FALSE",
		search.MatchNone: "TRUE",
	}
	for criteria, want := range cases {
		t.Run(string(criteria), func(t *testing.T) {
			props := search.NewSearchProperties(criteria)
			plan, err := compileSearch(domain.EntitySearch{SearchProperties: &props})
			require.NoError(t, err)
			assert.Equal(t, want, plan.where)
		})
	}
}

func TestCompileSearchOperators(t *testing.T) {
	cases := []struct {
		name     string
		op       search.PropertyComparisonOperator
		value    any
		contains string
	}{
		{"is null", search.OperatorIsNull, nil, "((e.properties -> $1::text) IS NULL OR jsonb_typeof((e.properties -> $1::text)) = 'null')"},
		{"not null", search.OperatorNotNull, nil, "IS NOT NULL AND jsonb_typeof((e.properties -> $1::text)) <> 'null')"},
		{"neq", search.OperatorNEQ, "x", "IS NOT NULL AND jsonb_typeof((e.properties -> $1::text)) <> 'null' AND NOT COALESCE("},
		{"in", search.OperatorIn, []any{"a", int64(2)}, " OR (CASE WHEN jsonb_typeof"},
		{"like", search.OperatorLike, "Al.*", "(e.properties ->> $1::text) ~ $2::text"},
		{"string order", search.OperatorLTE, "m", `COLLATE "C" <= $2::text`},
		{"bool", search.OperatorEQ, true, "to_jsonb($2::boolean)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := compileSearch(domain.EntitySearch{
				SearchProperties: buildProps(t, search.NewPropertiesBuilder(search.MatchAll).Where("p", tc.op, tc.value)),
			})
			require.NoError(t, err)
			assert.Contains(t, plan.where, tc.contains)
		})
	}
}

func TestCompileSearchLikeIsAnchored(t *testing.T) {
	plan, err := compileSearch(domain.EntitySearch{
		SearchProperties: buildProps(t, search.NewPropertiesBuilder(search.MatchAll).Where("name", search.OperatorLike, "Al.*")),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"name", search.AnchoredPattern("Al.*")}, plan.args)
}

func TestCompileSearchEmptyInIsFalse(t *testing.T) {
	empty := search.ArrayValue()
	cond, err := search.NewLeafCondition("tags", search.OperatorIn, &empty)
	require.NoError(t, err)
	props := search.NewSearchProperties(search.MatchAll, cond)

	plan, err := compileSearch(domain.EntitySearch{SearchProperties: &props})
	require.NoError(t, err)
	assert.Equal(t, "(FALSE)", plan.where)
}

func TestCompileSearchNestedTree(t *testing.T) {
	level3 := buildProps(t, search.NewPropertiesBuilder(search.MatchNone).Where("d", search.OperatorEQ, "deep"))
	level2 := buildProps(t, search.NewPropertiesBuilder(search.MatchAny).
		Where("c", search.OperatorEQ, true).
		Nested(*level3))
	root := buildProps(t, search.NewPropertiesBuilder(search.MatchAll).
		Where("a", search.OperatorEQ, "x").
		Nested(*level2))

	plan, err := compileSearch(domain.EntitySearch{SearchProperties: root})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plan.where, "(COALESCE("))
	assert.Contains(t, plan.where, " OR NOT (COALESCE(")
	assert.Equal(t, strings.Count(plan.where, "("), strings.Count(plan.where, ")"))
	assert.Len(t, plan.args, 6)
	for i := range plan.args {
		assert.Contains(t, plan.where, fmt.Sprintf("$%d::", i+1))
	}
}

func TestCompileSearchClassifications(t *testing.T) {
	level := buildProps(t, search.NewPropertiesBuilder(search.MatchAll).Where("level", search.OperatorEQ, "High"))
	confidentiality, err := search.NewClassificationCondition("Confidentiality", level)
	require.NoError(t, err)
	retention, err := search.NewClassificationCondition("Retention", nil)
	require.NoError(t, err)
	classifications := search.NewSearchClassifications(search.MatchAny, confidentiality, retention)

	plan, err := compileSearch(domain.EntitySearch{SearchClassifications: &classifications})
	require.NoError(t, err)

	want := "(EXISTS (SELECT 1 FROM jsonb_array_elements(e.classifications) AS c1(doc) WHERE c1.doc ->> 'name' = $1::text AND " +
		"(COALESCE((COALESCE(c1.doc -> 'properties', '{}'::jsonb) -> $2::text) = to_jsonb($3::text), FALSE))) OR " +
		"EXISTS (SELECT 1 FROM jsonb_array_elements(e.classifications) AS c2(doc) WHERE c2.doc ->> 'name' = $4::text))"
	assert.Equal(t, want, plan.where)
	assert.Equal(t, []any{"Confidentiality", "level", "High", "Retention"}, plan.args)
}

func TestCompileSearchCriteria(t *testing.T) {
	plan, err := compileSearch(domain.EntitySearch{SearchCriteria: "Ali.*"})
	require.NoError(t, err)
	assert.Contains(t, plan.where, "jsonb_each(e.properties)")
	assert.Equal(t, []any{search.AnchoredPattern("Ali.*")}, plan.args)
}

func TestOrderClause(t *testing.T) {
	var args []any
	assert.Equal(t, "ORDER BY e.id", orderClause(domain.SequencingAny, "", &args))
	assert.Equal(t, "ORDER BY e.created_at DESC, e.id", orderClause(domain.SequencingCreationRecent, "", &args))
	assert.Empty(t, args)

	args = []any{"x"}
	assert.Equal(t, "ORDER BY (e.properties -> $2::text) DESC NULLS LAST, e.id",
		orderClause(domain.SequencingPropertyDescending, "name", &args))
	assert.Equal(t, []any{"x", "name"}, args)
}

func TestPageQueryLeavesPlanUntouched(t *testing.T) {
	plan := compiledPlan{where: "e.type_name = $1", args: []any{"Person"}}
	query, args := pageQuery(plan, domain.EntitySearch{
		SequencingOrder:    domain.SequencingPropertyAscending,
		SequencingProperty: "name",
		FromElement:        20,
		PageSize:           10,
	})

	assert.Equal(t, "SELECT "+entityColumns+" FROM entities e WHERE e.type_name = $1 "+
		"ORDER BY (e.properties -> $2::text) ASC NULLS LAST, e.id LIMIT $3 OFFSET $4", query)
	assert.Equal(t, []any{"Person", "name", 10, 20}, args)
	assert.Equal(t, []any{"Person"}, plan.args)
}
