// Package filter models record filters as a small tagged tree and converts
// them to and from the prefix-notation list format understood by the remote
// platform ("domains": [field, op, value] triples joined by "&", "|", "!").
//
// An empty filter (nil Predicate) selects every record of a collection.
package filter

import (
	"fmt"

	"github.com/wasilibs/go-re2"
)

// Operator is a comparison operator accepted inside an Atom.
type Operator string

const (
	Eq       Operator = "="
	Ne       Operator = "!="
	Gt       Operator = ">"
	Lt       Operator = "<"
	Ge       Operator = ">="
	Le       Operator = "<="
	Like     Operator = "like"
	ILike    Operator = "ilike"
	NotLike  Operator = "not like"
	NotILike Operator = "not ilike"
	In       Operator = "in"
	NotIn    Operator = "not in"
	EqLike   Operator = "=like"
	EqILike  Operator = "=ilike"
)

// Prefix combinators of the wire format.
const (
	opAnd = "&"
	opOr  = "|"
	opNot = "!"
)

var operators = map[Operator]bool{
	Eq: true, Ne: true, Gt: true, Lt: true, Ge: true, Le: true,
	Like: true, ILike: true, NotLike: true, NotILike: true,
	In: true, NotIn: true, EqLike: true, EqILike: true,
}

var fieldPattern = re2.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Predicate is one node of a filter tree: Atom, And, Or or Not.
type Predicate interface {
	appendWire(dst []any) []any
}

// Atom compares a single field with a value.
type Atom struct {
	Field string
	Op    Operator
	Value any
}

// And matches records satisfying every term. An empty And matches everything.
type And []Predicate

// Or matches records satisfying at least one term. An empty Or matches nothing.
type Or []Predicate

// Not negates its inner predicate.
type Not struct {
	Inner Predicate
}

// Where is a shorthand for building an Atom.
func Where(field string, op Operator, value any) Atom {
	return Atom{Field: field, Op: op, Value: value}
}

// All returns the empty filter.
func All() Predicate {
	return nil
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	return operators[op]
}

func (a Atom) appendWire(dst []any) []any {
	return append(dst, []any{a.Field, string(a.Op), a.Value})
}

func (a And) appendWire(dst []any) []any {
	switch len(a) {
	case 0:
		return append(dst, trueLeaf())
	case 1:
		return appendTerm(dst, a[0])
	}
	for i := 0; i < len(a)-1; i++ {
		dst = append(dst, opAnd)
	}
	for _, term := range a {
		dst = appendTerm(dst, term)
	}
	return dst
}

func (o Or) appendWire(dst []any) []any {
	switch len(o) {
	case 0:
		return append(dst, falseLeaf())
	case 1:
		return appendTerm(dst, o[0])
	}
	for i := 0; i < len(o)-1; i++ {
		dst = append(dst, opOr)
	}
	for _, term := range o {
		dst = appendTerm(dst, term)
	}
	return dst
}

func (n Not) appendWire(dst []any) []any {
	return appendTerm(append(dst, opNot), n.Inner)
}

func appendTerm(dst []any, p Predicate) []any {
	if p == nil {
		return append(dst, trueLeaf())
	}
	return p.appendWire(dst)
}

// trueLeaf and falseLeaf are the constant leaves the platform evaluates
// without touching any field.
func trueLeaf() []any  { return []any{1, "=", 1} }
func falseLeaf() []any { return []any{0, "=", 1} }

// Wire converts a predicate to its wire representation. A nil predicate or an
// empty top-level And yields an empty list.
func Wire(p Predicate) []any {
	if p == nil {
		return []any{}
	}
	if a, ok := p.(And); ok && len(a) == 0 {
		return []any{}
	}
	return p.appendWire(make([]any, 0, 4))
}

// Validate checks field names, operators and operand shapes of the whole tree.
func Validate(p Predicate) error {
	switch v := p.(type) {
	case nil:
		return nil
	case Atom:
		return validateAtom(v)
	case And:
		for i, term := range v {
			if err := Validate(term); err != nil {
				return fmt.Errorf("and[%d]: %w", i, err)
			}
		}
	case Or:
		for i, term := range v {
			if err := Validate(term); err != nil {
				return fmt.Errorf("or[%d]: %w", i, err)
			}
		}
	case Not:
		if v.Inner == nil {
			return fmt.Errorf("not: missing operand")
		}
		return Validate(v.Inner)
	default:
		return fmt.Errorf("unsupported predicate %T", p)
	}
	return nil
}

func validateAtom(a Atom) error {
	if !fieldPattern.MatchString(a.Field) {
		return fmt.Errorf("invalid field name %q", a.Field)
	}
	if !a.Op.Valid() {
		return fmt.Errorf("invalid operator %q for field %s", a.Op, a.Field)
	}
	if a.Op == In || a.Op == NotIn {
		switch a.Value.(type) {
		case []any, []int64, []int, []string:
		default:
			return fmt.Errorf("operator %q on field %s requires a list value, got %T", a.Op, a.Field, a.Value)
		}
	}
	return nil
}
