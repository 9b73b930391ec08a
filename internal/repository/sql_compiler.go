package repository

import (
	"fmt"
	"strings"

	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/pkg/search"
)

// compiledPlan is the WHERE clause for a search and its positional args.
// It depends only on the filtering part of the search, so it is cached by
// EntitySearch.Fingerprint and shared between pages.
type compiledPlan struct {
	where string
	args  []any
}

type sqlBuilder struct {
	args    []any
	aliases int
}

func newSQLBuilder() *sqlBuilder {
	return &sqlBuilder{args: make([]any, 0)}
}

func (b *sqlBuilder) addArg(value any) int {
	b.args = append(b.args, value)
	return len(b.args)
}

func (b *sqlBuilder) placeholder(idx int) string {
	return fmt.Sprintf("$%d", idx)
}

func (b *sqlBuilder) arg(value any) string {
	return b.placeholder(b.addArg(value))
}

func (b *sqlBuilder) nextAlias() string {
	b.aliases++
	return fmt.Sprintf("c%d", b.aliases)
}

// compileSearch translates the filtering part of a search into SQL over the
// entities table aliased as e.
func compileSearch(s domain.EntitySearch) (compiledPlan, error) {
	builder := newSQLBuilder()
	clauses := []string{}

	if s.TypeName != "" {
		clauses = append(clauses, "e.type_name = "+builder.arg(s.TypeName))
	}
	if s.SearchProperties != nil {
		expr, err := builder.properties("e.properties", *s.SearchProperties)
		if err != nil {
			return compiledPlan{}, err
		}
		clauses = append(clauses, expr)
	}
	if s.SearchClassifications != nil {
		expr, err := builder.classifications("e.classifications", *s.SearchClassifications)
		if err != nil {
			return compiledPlan{}, err
		}
		clauses = append(clauses, expr)
	}
	if s.SearchCriteria != "" {
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_each(e.properties) AS p(key, value) "+
				"WHERE jsonb_typeof(p.value) = 'string' AND (p.value #>> '{}') ~ %s::text)",
			builder.arg(search.AnchoredPattern(s.SearchCriteria))))
	}

	if len(clauses) == 0 {
		return compiledPlan{where: "TRUE", args: builder.args}, nil
	}
	return compiledPlan{where: strings.Join(clauses, " AND "), args: builder.args}, nil
}

// combine joins child expressions. Every child is non-NULL, so NOT is safe.
func combine(criteria search.MatchCriteria, exprs []string) string {
	switch criteria {
	case search.MatchAny:
		if len(exprs) == 0 {
			return "FALSE"
		}
		return "(" + strings.Join(exprs, " OR ") + ")"
	case search.MatchNone:
		if len(exprs) == 0 {
			return "TRUE"
		}
		return "NOT (" + strings.Join(exprs, " OR ") + ")"
	default:
		if len(exprs) == 0 {
			return "TRUE"
		}
		return "(" + strings.Join(exprs, " AND ") + ")"
	}
}

func (b *sqlBuilder) properties(doc string, sp search.SearchProperties) (string, error) {
	exprs := make([]string, 0, sp.Len())
	for i := 0; i < sp.Len(); i++ {
		expr, err := b.condition(doc, sp.Condition(i))
		if err != nil {
			return "", err
		}
		exprs = append(exprs, expr)
	}
	return combine(sp.MatchCriteria(), exprs), nil
}

func (b *sqlBuilder) condition(doc string, c search.PropertyCondition) (string, error) {
	if nested, ok := c.NestedConditions(); ok {
		return b.properties(doc, nested)
	}
	if !c.IsLeaf() {
		return "", &search.InvalidConditionError{Reason: "condition has neither a property test nor nested conditions"}
	}

	key := b.arg(c.Property()) + "::text"
	field := fmt.Sprintf("(%s -> %s)", doc, key)
	text := fmt.Sprintf("(%s ->> %s)", doc, key)
	operand, _ := c.Value()

	switch op := c.Operator(); op {
	case search.OperatorIsNull:
		return fmt.Sprintf("(%s IS NULL OR jsonb_typeof(%s) = 'null')", field, field), nil
	case search.OperatorNotNull:
		return fmt.Sprintf("(%s IS NOT NULL AND jsonb_typeof(%s) <> 'null')", field, field), nil
	case search.OperatorEQ:
		return b.equals(field, text, operand), nil
	case search.OperatorNEQ:
		return fmt.Sprintf("(%s IS NOT NULL AND jsonb_typeof(%s) <> 'null' AND NOT %s)", field, field, b.equals(field, text, operand)), nil
	case search.OperatorIn:
		elements := operand.Elements()
		exprs := make([]string, len(elements))
		for i, element := range elements {
			exprs[i] = b.equals(field, text, element)
		}
		return combine(search.MatchAny, exprs), nil
	case search.OperatorLike:
		pattern, _ := operand.Interface().(string)
		return fmt.Sprintf("(CASE WHEN jsonb_typeof(%s) = 'string' THEN %s ~ %s::text ELSE FALSE END)",
			field, text, b.arg(search.AnchoredPattern(pattern))), nil
	case search.OperatorLT, search.OperatorLTE, search.OperatorGT, search.OperatorGTE:
		return b.ordering(field, text, sqlOperator(op), operand)
	default:
		return "", &search.InvalidConditionError{Reason: fmt.Sprintf("unknown comparison operator %q", op)}
	}
}

// equals never yields NULL.
func (b *sqlBuilder) equals(field, text string, operand search.PropertyValue) string {
	switch operand.Type() {
	case search.TypeString, search.TypeEnum:
		return fmt.Sprintf("COALESCE(%s = to_jsonb(%s::text), FALSE)", field, b.arg(operand.Interface()))
	case search.TypeBoolean:
		return fmt.Sprintf("COALESCE(%s = to_jsonb(%s::boolean), FALSE)", field, b.arg(operand.Interface()))
	case search.TypeLong, search.TypeDouble:
		return fmt.Sprintf("(CASE WHEN jsonb_typeof(%s) = 'number' THEN %s::numeric = %s::numeric ELSE FALSE END)",
			field, text, b.arg(operand.Interface()))
	case search.TypeDate:
		return fmt.Sprintf("COALESCE(search_date_millis(%s) = %s::numeric, FALSE)", field, b.arg(operand.Interface()))
	}
	return "FALSE"
}

func (b *sqlBuilder) ordering(field, text, op string, operand search.PropertyValue) (string, error) {
	switch operand.Type() {
	case search.TypeString:
		return fmt.Sprintf("(CASE WHEN jsonb_typeof(%s) = 'string' THEN %s COLLATE \"C\" %s %s::text ELSE FALSE END)",
			field, text, op, b.arg(operand.Interface())), nil
	case search.TypeLong, search.TypeDouble:
		return fmt.Sprintf("(CASE WHEN jsonb_typeof(%s) = 'number' THEN %s::numeric %s %s::numeric ELSE FALSE END)",
			field, text, op, b.arg(operand.Interface())), nil
	case search.TypeDate:
		return fmt.Sprintf("COALESCE(search_date_millis(%s) %s %s::numeric, FALSE)", field, op, b.arg(operand.Interface())), nil
	}
	return "", &search.InvalidConditionError{Reason: fmt.Sprintf("cannot order %s values", operand.Type())}
}

func sqlOperator(op search.PropertyComparisonOperator) string {
	switch op {
	case search.OperatorLT:
		return "<"
	case search.OperatorLTE:
		return "<="
	case search.OperatorGT:
		return ">"
	default:
		return ">="
	}
}

func (b *sqlBuilder) classifications(column string, sc search.SearchClassifications) (string, error) {
	exprs := make([]string, 0, sc.Len())
	for i := 0; i < sc.Len(); i++ {
		cc := sc.Condition(i)
		alias := b.nextAlias()
		where := fmt.Sprintf("%s.doc ->> 'name' = %s::text", alias, b.arg(cc.Name()))
		if props, scoped := cc.MatchProperties(); scoped {
			doc := fmt.Sprintf("COALESCE(%s.doc -> 'properties', '{}'::jsonb)", alias)
			expr, err := b.properties(doc, props)
			if err != nil {
				return "", err
			}
			where += " AND " + expr
		}
		exprs = append(exprs, fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements(%s) AS %s(doc) WHERE %s)", column, alias, where))
	}
	return combine(sc.MatchCriteria(), exprs), nil
}

// orderClause renders ORDER BY for the sequencing options. A property
// sort adds its key as the next positional argument. jsonb compares
// strings with the database collation, while the in-memory store compares
// bytes, so the two agree on string order only under the "C" collation.
func orderClause(order domain.SequencingOrder, property string, args *[]any) string {
	switch order {
	case domain.SequencingCreationRecent:
		return "ORDER BY e.created_at DESC, e.id"
	case domain.SequencingCreationOldest:
		return "ORDER BY e.created_at ASC, e.id"
	case domain.SequencingLastUpdateRecent:
		return "ORDER BY e.updated_at DESC, e.id"
	case domain.SequencingLastUpdateOldest:
		return "ORDER BY e.updated_at ASC, e.id"
	case domain.SequencingPropertyAscending, domain.SequencingPropertyDescending:
		*args = append(*args, property)
		direction := "ASC"
		if order == domain.SequencingPropertyDescending {
			direction = "DESC"
		}
		return fmt.Sprintf("ORDER BY (e.properties -> $%d::text) %s NULLS LAST, e.id", len(*args), direction)
	}
	return "ORDER BY e.id"
}
