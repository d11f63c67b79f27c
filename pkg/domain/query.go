package domain

import (
	"fmt"
	"strings"
)

// Operator is a query rule operator.
type Operator string

const (
	OperatorEq Operator = "EQUALS"
	OperatorOr Operator = "OR"
)

// QueryRule is one element of a query: an equality predicate or a disjunction marker.
type QueryRule struct {
	Operator Operator
	Field    string
	Value    any
}

// Query is a disjunction of equality predicates, built the way the merge
// engine looks up existing ids: Eq(a, v1).Or().Eq(a, v2)...
type Query struct {
	Rules []QueryRule
}

// NewQuery returns an empty query. An empty query matches every row.
func NewQuery() *Query { return &Query{} }

// Eq appends an equality predicate.
func (q *Query) Eq(field string, value any) *Query {
	q.Rules = append(q.Rules, QueryRule{Operator: OperatorEq, Field: field, Value: value})
	return q
}

// Or appends a disjunction marker between two predicates.
func (q *Query) Or() *Query {
	q.Rules = append(q.Rules, QueryRule{Operator: OperatorOr})
	return q
}

// Disjuncts returns the number of equality predicates.
func (q *Query) Disjuncts() int {
	if q == nil {
		return 0
	}
	n := 0
	for _, r := range q.Rules {
		if r.Operator == OperatorEq {
			n++
		}
	}
	return n
}

// Empty reports whether the query has no predicates.
func (q *Query) Empty() bool { return q.Disjuncts() == 0 }

// Predicates returns the equality rules.
func (q *Query) Predicates() []QueryRule {
	if q == nil {
		return nil
	}
	out := make([]QueryRule, 0, len(q.Rules))
	for _, r := range q.Rules {
		if r.Operator == OperatorEq {
			out = append(out, r)
		}
	}
	return out
}

// Matches evaluates the disjunction against a row. Values compare through
// EncodeKey so numeric widths do not matter.
func (q *Query) Matches(e Entity) bool {
	preds := q.Predicates()
	if len(preds) == 0 {
		return true
	}
	for _, p := range preds {
		if valuesEqual(e[p.Field], p.Value) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ka, errA := EncodeKey(a)
	kb, errB := EncodeKey(b)
	if errA != nil || errB != nil {
		return false
	}
	return ka == kb
}

func (q *Query) String() string {
	if q == nil {
		return ""
	}
	var b strings.Builder
	for _, r := range q.Rules {
		switch r.Operator {
		case OperatorEq:
			fmt.Fprintf(&b, "(%s = %v)", r.Field, r.Value)
		case OperatorOr:
			b.WriteString(" OR ")
		}
	}
	return b.String()
}
