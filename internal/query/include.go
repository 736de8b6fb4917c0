package query

import (
	"fmt"

	language "github.com/hanpama/compositegraph/internal/language"
)

// Included evaluates the @skip and @include directives of dirs against
// variables. Other directives are ignored.
func Included(dirs language.DirectiveList, variables map[string]any) (bool, error) {
	for _, d := range dirs {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		arg := d.Arguments.ForName("if")
		if arg == nil || arg.Value == nil {
			return false, fmt.Errorf("query: @%s without if argument", d.Name)
		}
		v, err := arg.Value.Value(variables)
		if err != nil {
			return false, fmt.Errorf("query: @%s: %w", d.Name, err)
		}
		cond, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("query: @%s: if is %T, want Boolean", d.Name, v)
		}
		if cond == (d.Name == "skip") {
			return false, nil
		}
	}
	return true, nil
}

// RootIncluded reports whether a *Root or *Mutation is part of the response
// for variables: its conditions and its own directives must all allow it.
func RootIncluded(n Node, variables map[string]any) (bool, error) {
	var conditions, directives language.DirectiveList
	switch n := n.(type) {
	case *Root:
		conditions, directives = n.Conditions, n.Directives
	case *Mutation:
		conditions, directives = n.Conditions, n.Directives
	default:
		return true, nil
	}
	if ok, err := Included(conditions, variables); !ok || err != nil {
		return false, err
	}
	return Included(directives, variables)
}

// Conditional reports whether a *Root or *Mutation may be left out of a
// response by @skip or @include.
func Conditional(n Node) bool {
	switch n := n.(type) {
	case *Root:
		return hasInclusion(n.Conditions) || hasInclusion(n.Directives)
	case *Mutation:
		return hasInclusion(n.Conditions) || hasInclusion(n.Directives)
	}
	return false
}

func hasInclusion(dirs language.DirectiveList) bool {
	return dirs.ForName("skip") != nil || dirs.ForName("include") != nil
}
