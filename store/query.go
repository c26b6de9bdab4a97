package store

import "strings"

// Query is a predicate map passed to Client.Find. Keys are property names
// or the reserved control keys below. A scalar value means equality, an
// array value means "the row's array property contains all of these", and a
// key carrying the OrSetPrefix holds a disjunction group (see OrSet).
type Query map[string]any

const (
	// QuerySort requests ascending sort on the named property. It is
	// stripped from the predicate before translation.
	QuerySort = "_q_sort"

	// QueryStatementSet selects an alternate statement set. The only
	// recognized value is StatementCountEstimate.
	QueryStatementSet = "_q_statementset"

	// QueryRawResults asks for unfiltered raw results; recognized and
	// stripped for compatibility with callers of the original system.
	QueryRawResults = "_q_rawresults"

	// StatementCountEstimate requests the count-only fast path: Find
	// returns exactly one synthetic row carrying the count.
	StatementCountEstimate = "countestimate"

	// OrSetPrefix tags a predicate key as a disjunction group.
	OrSetPrefix = "orset"

	// CountField is the property name carrying the count in the synthetic
	// row returned by the count fast path.
	CountField = "count"
)

// OrSet builds a disjunction-group predicate value: the named field must
// equal one of the given values. Add it to a Query under a key starting
// with OrSetPrefix ("orset0", "orset1", ...).
func OrSet(field string, values ...string) map[string]any {
	return map[string]any{field: values}
}

// IsControlKey reports whether k is one of the reserved query control keys.
func IsControlKey(k string) bool {
	switch k {
	case QuerySort, QueryStatementSet, QueryRawResults:
		return true
	}
	return false
}

// IsOrSetKey reports whether k tags a disjunction group.
func IsOrSetKey(k string) bool {
	return strings.HasPrefix(k, OrSetPrefix)
}

// IsCountQuery reports whether q requests the count-only fast path.
func IsCountQuery(q Query) bool {
	v, ok := q[QueryStatementSet].(string)
	return ok && v == StatementCountEstimate
}
