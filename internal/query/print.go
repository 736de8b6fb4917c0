package query

import (
	"fmt"
	"sort"
	"strings"

	language "github.com/hanpama/compositegraph/internal/language"
)

// Document renders a Root or Mutation node as a single-operation document.
// Only the variable definitions referenced by the tree are declared.
func Document(n Node) (*language.QueryDocument, error) {
	var (
		opType     language.Operation
		name       string
		field      *language.Field
		variables  language.VariableDefinitionList
		selections []Node
	)
	switch r := n.(type) {
	case *Root:
		opType, name, variables, selections = language.Query, r.OperationName, r.Variables, r.Selections
		field = &language.Field{Alias: r.ResponseKey(), Name: r.FieldName, Arguments: r.Arguments, Directives: r.Directives}
	case *Mutation:
		opType, name, variables, selections = language.Mutation, r.OperationName, r.Variables, r.Selections
		field = &language.Field{Alias: r.ResponseKey(), Name: r.FieldName, Arguments: r.Arguments, Directives: r.Directives}
	default:
		return nil, fmt.Errorf("%w: cannot print %s node as a document", ErrUnsupportedOperation, n.Kind())
	}
	field.SelectionSet = selectionSet(selections)

	used := ReferencedVariables([]Node{n})
	var defs language.VariableDefinitionList
	for _, def := range variables {
		if _, ok := used[def.Variable]; ok {
			defs = append(defs, def)
		}
	}
	op := &language.OperationDefinition{
		Operation:           opType,
		Name:                name,
		VariableDefinitions: defs,
		SelectionSet:        language.SelectionSet{field},
	}
	return &language.QueryDocument{Operations: []*language.OperationDefinition{op}}, nil
}

// Print renders a Root or Mutation node as GraphQL text.
func Print(n Node) (string, error) {
	doc, err := Document(n)
	if err != nil {
		return "", err
	}
	return language.FormatQuery(doc), nil
}

func selectionSet(nodes []Node) language.SelectionSet {
	if len(nodes) == 0 {
		return nil
	}
	out := make(language.SelectionSet, 0, len(nodes))
	for _, n := range nodes {
		switch n := n.(type) {
		case *Field:
			out = append(out, &language.Field{
				Alias:        n.ResponseKey(),
				Name:         n.Name,
				Arguments:    n.Arguments,
				Directives:   n.Directives,
				SelectionSet: selectionSet(n.Selections),
			})
		case *Fragment:
			out = append(out, &language.InlineFragment{
				TypeCondition: n.TypeCondition,
				Directives:    n.Directives,
				SelectionSet:  selectionSet(n.Selections),
			})
		}
	}
	return out
}

// ReferencedVariables returns the names of variables used by arguments and
// directives anywhere in nodes.
func ReferencedVariables(nodes []Node) map[string]struct{} {
	out := map[string]struct{}{}
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			switch n := n.(type) {
			case *Root:
				collectArgs(n.Arguments, out)
				collectDirectives(n.Directives, out)
			case *Mutation:
				collectArgs(n.Arguments, out)
				collectDirectives(n.Directives, out)
			case *Field:
				collectArgs(n.Arguments, out)
				collectDirectives(n.Directives, out)
			case *Fragment:
				collectDirectives(n.Directives, out)
			}
			walk(n.Children())
		}
	}
	walk(nodes)
	return out
}

func collectDirectives(dirs language.DirectiveList, out map[string]struct{}) {
	for _, d := range dirs {
		collectArgs(d.Arguments, out)
	}
}

func collectArgs(args language.ArgumentList, out map[string]struct{}) {
	for _, a := range args {
		collectValue(a.Value, out)
	}
}

func collectValue(v *language.Value, out map[string]struct{}) {
	if v == nil {
		return
	}
	if v.Kind == language.Variable {
		out[v.Raw] = struct{}{}
		return
	}
	for _, child := range v.Children {
		collectValue(child.Value, out)
	}
}

// Outline renders a node as compact single-line GraphQL-like text, e.g.
// `viewer{id name drafts(first:$first){edges{node{text}}}}`. Generated fields
// are prefixed with `+`.
func Outline(n Node) string {
	var b strings.Builder
	outline(&b, n)
	return b.String()
}

func outline(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Root:
		writeName(b, n.Alias, n.FieldName)
		writeArgs(b, n.Arguments)
	case *Mutation:
		b.WriteString("mutation ")
		writeName(b, n.Alias, n.FieldName)
		writeArgs(b, n.Arguments)
	case *Field:
		if n.Generated {
			b.WriteByte('+')
		}
		writeName(b, n.Alias, n.Name)
		writeArgs(b, n.Arguments)
	case *Fragment:
		b.WriteString("...on ")
		b.WriteString(n.TypeCondition)
	}
	children := n.Children()
	if len(children) == 0 {
		return
	}
	b.WriteByte('{')
	for i, c := range children {
		if i > 0 {
			b.WriteByte(' ')
		}
		outline(b, c)
	}
	b.WriteByte('}')
}

func writeName(b *strings.Builder, alias, name string) {
	if alias != "" && alias != name {
		b.WriteString(alias)
		b.WriteByte(':')
	}
	b.WriteString(name)
}

func writeArgs(b *strings.Builder, args language.ArgumentList) {
	if len(args) == 0 {
		return
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Name + ":" + a.Value.String()
	}
	sort.Strings(parts)
	b.WriteByte('(')
	b.WriteString(strings.Join(parts, ","))
	b.WriteByte(')')
}
