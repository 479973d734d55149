package odootest

import (
	"fmt"
	"strings"

	"github.com/aatumaykin/odoosweep/internal/filter"
)

// Match evaluates p against a stored record the way the platform does for
// the operators the engines use. Missing fields compare as false.
func Match(p filter.Predicate, rec map[string]any) bool {
	switch v := p.(type) {
	case nil:
		return true
	case filter.Atom:
		return matchAtom(v, rec)
	case filter.And:
		for _, term := range v {
			if !Match(term, rec) {
				return false
			}
		}
		return true
	case filter.Or:
		for _, term := range v {
			if Match(term, rec) {
				return true
			}
		}
		return false
	case filter.Not:
		return !Match(v.Inner, rec)
	}
	return false
}

func matchAtom(a filter.Atom, rec map[string]any) bool {
	got, present := rec[a.Field]
	if !present {
		got = false
	}

	switch a.Op {
	case filter.Eq:
		return equal(got, a.Value)
	case filter.Ne:
		return !equal(got, a.Value)
	case filter.Gt, filter.Lt, filter.Ge, filter.Le:
		if isFalse(got) {
			return false
		}
		c, ok := compare(got, a.Value)
		if !ok {
			return false
		}
		switch a.Op {
		case filter.Gt:
			return c > 0
		case filter.Lt:
			return c < 0
		case filter.Ge:
			return c >= 0
		default:
			return c <= 0
		}
	case filter.Like:
		return like(got, "%"+fmt.Sprint(a.Value)+"%", false)
	case filter.ILike:
		return like(got, "%"+fmt.Sprint(a.Value)+"%", true)
	case filter.NotLike:
		return !like(got, "%"+fmt.Sprint(a.Value)+"%", false)
	case filter.NotILike:
		return !like(got, "%"+fmt.Sprint(a.Value)+"%", true)
	case filter.EqLike:
		return like(got, fmt.Sprint(a.Value), false)
	case filter.EqILike:
		return like(got, fmt.Sprint(a.Value), true)
	case filter.In:
		return inList(got, a.Value)
	case filter.NotIn:
		return !inList(got, a.Value)
	}
	return false
}

func isFalse(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	}
	return false
}

func equal(got, want any) bool {
	if isFalse(want) {
		return isFalse(got)
	}
	if b, ok := want.(bool); ok {
		g, isBool := got.(bool)
		return isBool && g == b
	}
	if c, ok := compare(got, want); ok {
		return c == 0
	}
	return false
}

// compare orders numbers numerically and everything else as strings, which
// is how date and datetime literals order on the server.
func compare(got, want any) (int, bool) {
	if g, ok := toFloat(got); ok {
		w, ok := toFloat(want)
		if !ok {
			return 0, false
		}
		switch {
		case g < w:
			return -1, true
		case g > w:
			return 1, true
		}
		return 0, true
	}

	g, ok := got.(string)
	if !ok {
		return 0, false
	}
	w, ok := want.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(g, w), true
}

func inList(got, list any) bool {
	var items []any
	switch l := list.(type) {
	case []any:
		items = l
	case []string:
		for _, s := range l {
			items = append(items, s)
		}
	case []int64:
		for _, n := range l {
			items = append(items, n)
		}
	case []int:
		for _, n := range l {
			items = append(items, n)
		}
	}
	for _, item := range items {
		if equal(got, item) {
			return true
		}
	}
	return false
}

// like implements SQL LIKE with % and _ wildcards.
func like(got any, pattern string, fold bool) bool {
	s, ok := got.(string)
	if !ok {
		return false
	}
	if fold {
		s = strings.ToLower(s)
		pattern = strings.ToLower(pattern)
	}
	return likeMatch([]rune(s), []rune(pattern))
}

func likeMatch(s, p []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '%':
			for len(p) > 0 && p[0] == '%' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeMatch(s[i:], p) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
		}
		s, p = s[1:], p[1:]
	}
	return len(s) == 0
}
