package filter

import (
	"encoding/json"
	"fmt"
)

// Parse converts a wire-format list back into a predicate tree. Consecutive
// top-level terms are joined with an implicit And, as the platform does.
func Parse(raw []any) (Predicate, error) {
	p := &parser{items: raw}
	var terms And
	for p.pos < len(p.items) {
		term, err := p.term()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	switch len(terms) {
	case 0:
		return nil, nil
	case 1:
		return terms[0], nil
	default:
		return terms, nil
	}
}

// ParseJSON decodes a JSON encoded wire-format list.
func ParseJSON(data []byte) (Predicate, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode filter: %w", err)
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

type parser struct {
	items []any
	pos   int
}

func (p *parser) term() (Predicate, error) {
	if p.pos >= len(p.items) {
		return nil, fmt.Errorf("unexpected end of filter at position %d", p.pos)
	}
	item := p.items[p.pos]
	p.pos++

	switch v := item.(type) {
	case string:
		switch v {
		case opAnd, opOr:
			left, err := p.term()
			if err != nil {
				return nil, err
			}
			right, err := p.term()
			if err != nil {
				return nil, err
			}
			if v == opAnd {
				return joinAnd(left, right), nil
			}
			return joinOr(left, right), nil
		case opNot:
			inner, err := p.term()
			if err != nil {
				return nil, err
			}
			return Not{Inner: inner}, nil
		default:
			return nil, fmt.Errorf("unknown combinator %q at position %d", v, p.pos-1)
		}
	case []any:
		if len(v) != 3 {
			return nil, fmt.Errorf("condition at position %d must have 3 elements, got %d", p.pos-1, len(v))
		}
		if leaf, ok := constantLeaf(v); ok {
			return leaf, nil
		}
		field, ok := v[0].(string)
		if !ok {
			return nil, fmt.Errorf("condition at position %d: field must be a string, got %T", p.pos-1, v[0])
		}
		op, ok := v[1].(string)
		if !ok {
			return nil, fmt.Errorf("condition at position %d: operator must be a string, got %T", p.pos-1, v[1])
		}
		return Atom{Field: field, Op: Operator(op), Value: v[2]}, nil
	default:
		return nil, fmt.Errorf("unexpected element %T at position %d", item, p.pos-1)
	}
}

// constantLeaf recognizes the [1, "=", 1] and [0, "=", 1] leaves produced
// for empty nested combinators.
func constantLeaf(v []any) (Predicate, bool) {
	left, ok := number(v[0])
	if !ok || v[1] != "=" {
		return nil, false
	}
	right, ok := number(v[2])
	if !ok {
		return nil, false
	}
	if left == right {
		return And{}, true
	}
	return Or{}, true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// joinAnd flattens nested binary "&" chains into one And node.
func joinAnd(left, right Predicate) And {
	var out And
	if l, ok := left.(And); ok {
		out = append(out, l...)
	} else {
		out = append(out, left)
	}
	return append(out, right)
}

func joinOr(left, right Predicate) Or {
	var out Or
	if l, ok := left.(Or); ok {
		out = append(out, l...)
	} else {
		out = append(out, left)
	}
	return append(out, right)
}
