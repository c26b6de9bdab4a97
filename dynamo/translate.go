package dynamo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/efroese/sparsemapcontent/store"
)

// pkAttr is the native partition key attribute. It holds RowHash of the
// triple and is never part of an update expression: DynamoDB forbids
// mutating key attributes through SET.
const pkAttr = "pk"

// EscapeFieldName makes a property name safe to persist as a document
// attribute. "%" is escaped first so the substitution cannot collide with
// any legal property name, then "." and a leading "$".
func EscapeFieldName(name string) string {
	name = strings.ReplaceAll(name, "%", "%25")
	name = strings.ReplaceAll(name, ".", "%2E")
	if strings.HasPrefix(name, "$") {
		name = "%24" + name[1:]
	}
	return name
}

// UnescapeFieldName reverses EscapeFieldName.
func UnescapeFieldName(name string) string {
	if strings.HasPrefix(name, "%24") {
		name = "$" + name[3:]
	}
	name = strings.ReplaceAll(name, "%2E", ".")
	name = strings.ReplaceAll(name, "%25", "%")
	return name
}

// toAttr converts a legal property value to a DynamoDB attribute value.
// Scalars go through the SDK marshaller; arrays are built by hand so that
// element validation stays exhaustive.
func toAttr(v any) (types.AttributeValue, error) {
	switch v := v.(type) {
	case string, bool, int, int32, int64, float64:
		return attributevalue.Marshal(v)
	case []string:
		members := make([]types.AttributeValue, len(v))
		for i, s := range v {
			members[i] = &types.AttributeValueMemberS{Value: s}
		}
		return &types.AttributeValueMemberL{Value: members}, nil
	case []any:
		members := make([]types.AttributeValue, len(v))
		for i, e := range v {
			m, err := toAttr(e)
			if err != nil {
				return nil, err
			}
			members[i] = m
		}
		return &types.AttributeValueMemberL{Value: members}, nil
	default:
		return nil, fmt.Errorf("%w: %T", store.ErrInvalidValue, v)
	}
}

// fromAttr converts a DynamoDB attribute value back to a property value.
// Numbers come back as int64 when integral, float64 otherwise. Lists of
// strings round-trip as []string.
func fromAttr(av types.AttributeValue) any {
	switch av := av.(type) {
	case *types.AttributeValueMemberS:
		return av.Value
	case *types.AttributeValueMemberBOOL:
		return av.Value
	case *types.AttributeValueMemberN:
		if i, err := strconv.ParseInt(av.Value, 10, 64); err == nil {
			return i
		}
		f, _ := strconv.ParseFloat(av.Value, 64)
		return f
	case *types.AttributeValueMemberL:
		allStrings := true
		out := make([]any, 0, len(av.Value))
		for _, m := range av.Value {
			e := fromAttr(m)
			if _, ok := e.(string); !ok {
				allStrings = false
			}
			out = append(out, e)
		}
		if allStrings {
			ss := make([]string, len(out))
			for i, e := range out {
				ss[i] = e.(string)
			}
			return ss
		}
		return out
	default:
		return nil
	}
}

// buildUpdate partitions the value map into SET and REMOVE clauses and
// renders a single update expression. The removal sentinel becomes a
// native unset; nil values are skipped; an empty clause is omitted
// entirely. The logical key is always written to KeyField; the native key
// attribute never appears in the expression.
func buildUpdate(key string, values store.Properties) (string, map[string]string, map[string]types.AttributeValue, error) {
	names := map[string]string{}
	attrValues := map[string]types.AttributeValue{}

	var setClauses []string
	var removeNames []string

	fields := make([]string, 0, len(values))
	for k := range values {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	i := 0
	for _, k := range fields {
		v := values[k]
		if k == pkAttr || k == store.KeyField || v == nil {
			continue
		}
		nameKey := fmt.Sprintf("#a%d", i)
		names[nameKey] = EscapeFieldName(k)
		i++

		if store.IsRemove(v) {
			removeNames = append(removeNames, nameKey)
			continue
		}
		av, err := toAttr(v)
		if err != nil {
			return "", nil, nil, fmt.Errorf("property %q: %w", k, err)
		}
		valueKey := fmt.Sprintf(":v%d", len(attrValues))
		attrValues[valueKey] = av
		setClauses = append(setClauses, nameKey+" = "+valueKey)
	}

	names["#key"] = store.KeyField
	attrValues[":key"] = &types.AttributeValueMemberS{Value: key}
	setClauses = append(setClauses, "#key = :key")

	expr := "SET " + strings.Join(setClauses, ", ")
	if len(removeNames) > 0 {
		expr += " REMOVE " + strings.Join(removeNames, ", ")
	}
	return expr, names, attrValues, nil
}

// translatedQuery is a predicate map rendered to native query inputs.
type translatedQuery struct {
	filter string
	names  map[string]string
	values map[string]types.AttributeValue

	// sortField requests client-side ascending sort on a property.
	sortField string

	// countOnly selects the count fast path.
	countOnly bool

	// parentHash is set when the predicate is a single equality on
	// ParentHashField, which can be served from the parent-hash index.
	parentHash string
}

// buildFilter translates a predicate map. Scalar values become equality
// clauses, array values become all-of containment, and orset groups become
// disjunctions of per-value equality. Control keys are stripped.
func buildFilter(query store.Query) (*translatedQuery, error) {
	tq := &translatedQuery{
		names:     map[string]string{},
		values:    map[string]types.AttributeValue{},
		countOnly: store.IsCountQuery(query),
	}
	if s, ok := query[store.QuerySort].(string); ok {
		tq.sortField = s
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	n := 0
	nextName := func(field string) string {
		nameKey := fmt.Sprintf("#f%d", n)
		n++
		tq.names[nameKey] = EscapeFieldName(field)
		return nameKey
	}
	nextValue := func(av types.AttributeValue) string {
		valueKey := fmt.Sprintf(":q%d", len(tq.values))
		tq.values[valueKey] = av
		return valueKey
	}

	for _, k := range keys {
		if store.IsControlKey(k) {
			continue
		}
		v := query[k]

		if store.IsOrSetKey(k) {
			group, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: disjunction group %q", store.ErrInvalidValue, k)
			}
			for field, raw := range group {
				alternatives := store.AsStringSlice(raw)
				nameKey := nextName(field)
				var ors []string
				for _, alt := range alternatives {
					ors = append(ors, nameKey+" = "+nextValue(&types.AttributeValueMemberS{Value: alt}))
				}
				if len(ors) > 0 {
					clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
				}
			}
			continue
		}

		switch v := v.(type) {
		case []string:
			nameKey := nextName(k)
			for _, member := range v {
				clauses = append(clauses, "contains("+nameKey+", "+nextValue(&types.AttributeValueMemberS{Value: member})+")")
			}
		case []any:
			nameKey := nextName(k)
			for _, member := range v {
				av, err := toAttr(member)
				if err != nil {
					return nil, fmt.Errorf("predicate %q: %w", k, err)
				}
				clauses = append(clauses, "contains("+nameKey+", "+nextValue(av)+")")
			}
		default:
			av, err := toAttr(v)
			if err != nil {
				return nil, fmt.Errorf("predicate %q: %w", k, err)
			}
			clauses = append(clauses, nextName(k)+" = "+nextValue(av))
		}
	}

	tq.filter = strings.Join(clauses, " AND ")

	if len(clauses) == 1 {
		if hash, ok := query[store.ParentHashField].(string); ok {
			tq.parentHash = hash
		}
	}
	return tq, nil
}

// fromItem converts a native document into a row: the native key attribute
// is dropped, attribute names are unescaped, and the logical key is read
// from KeyField.
func fromItem(item map[string]types.AttributeValue) store.Row {
	props := make(store.Properties, len(item))
	var key string
	for k, av := range item {
		if k == pkAttr {
			continue
		}
		v := fromAttr(av)
		name := UnescapeFieldName(k)
		if name == store.KeyField {
			key, _ = v.(string)
		}
		props[name] = v
	}
	return store.Row{Key: key, Properties: props}
}
