package query

import (
	"errors"
	"fmt"

	language "github.com/hanpama/compositegraph/internal/language"
)

var (
	// ErrUnsupportedOperation is returned for operations the composite layer
	// does not route, such as subscriptions.
	ErrUnsupportedOperation = errors.New("query: unsupported operation")
	// ErrOperationNotFound is returned when no operation matches the request.
	ErrOperationNotFound = errors.New("query: operation not found")
)

// Operation is a client operation broken into one node per root field.
type Operation struct {
	Name      string
	Type      language.Operation
	Variables language.VariableDefinitionList
	// Roots holds *Root nodes for queries and *Mutation nodes for mutations,
	// in document order.
	Roots []Node
}

// Parse parses and validates source against schema and converts the selected
// operation.
func Parse(schema *language.Schema, source, operationName string) (*Operation, error) {
	doc, err := language.LoadQuery(schema, source)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc, operationName)
}

// FromDocument converts the named operation of a validated document. An empty
// operationName selects the only operation of the document.
func FromDocument(doc *language.QueryDocument, operationName string) (*Operation, error) {
	var def *language.OperationDefinition
	if operationName == "" && len(doc.Operations) == 1 {
		def = doc.Operations[0]
	} else {
		def = doc.Operations.ForName(operationName)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: %q", ErrOperationNotFound, operationName)
	}
	if def.Operation != language.Query && def.Operation != language.Mutation {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, def.Operation)
	}

	c := converter{doc: doc}
	fields, err := c.rootFields(def.SelectionSet, nil)
	if err != nil {
		return nil, err
	}
	op := &Operation{Name: def.Name, Type: def.Operation, Variables: def.VariableDefinitions}
	for _, rf := range fields {
		f := rf.field
		children, err := c.selectionSet(f.SelectionSet, fieldType(f))
		if err != nil {
			return nil, err
		}
		if def.Operation == language.Mutation {
			op.Roots = append(op.Roots, &Mutation{
				OperationName: def.Name,
				FieldName:     f.Name,
				Alias:         alias(f),
				Arguments:     f.Arguments,
				Directives:    f.Directives,
				Conditions:    rf.conditions,
				TypeName:      fieldType(f),
				Variables:     def.VariableDefinitions,
				Selections:    children,
			})
			continue
		}
		op.Roots = append(op.Roots, &Root{
			OperationName: def.Name,
			FieldName:     f.Name,
			Alias:         alias(f),
			Arguments:     f.Arguments,
			Directives:    f.Directives,
			Conditions:    rf.conditions,
			TypeName:      fieldType(f),
			Variables:     def.VariableDefinitions,
			Selections:    children,
		})
	}
	return op, nil
}

// ResponseKeys returns the response key of every root, in order.
func (o *Operation) ResponseKeys() []string {
	keys := make([]string, 0, len(o.Roots))
	for _, n := range o.Roots {
		switch r := n.(type) {
		case *Root:
			keys = append(keys, r.ResponseKey())
		case *Mutation:
			keys = append(keys, r.ResponseKey())
		}
	}
	return keys
}

type converter struct {
	doc *language.QueryDocument
}

type rootField struct {
	field      *language.Field
	conditions language.DirectiveList
}

// rootFields flattens fragments spread directly on the root type. The
// directives of the fragments a field is nested in become its conditions.
func (c converter) rootFields(set language.SelectionSet, conditions language.DirectiveList) ([]rootField, error) {
	var out []rootField
	for _, sel := range set {
		switch s := sel.(type) {
		case *language.Field:
			out = append(out, rootField{field: s, conditions: conditions})
		case *language.InlineFragment:
			nested, err := c.rootFields(s.SelectionSet, withConditions(conditions, s.Directives))
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		case *language.FragmentSpread:
			def, err := c.fragment(s)
			if err != nil {
				return nil, err
			}
			nested, err := c.rootFields(def.SelectionSet, withConditions(conditions, s.Directives))
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		default:
			return nil, fmt.Errorf("query: unexpected selection %T", sel)
		}
	}
	return out, nil
}

func withConditions(conditions, dirs language.DirectiveList) language.DirectiveList {
	if len(dirs) == 0 {
		return conditions
	}
	out := make(language.DirectiveList, 0, len(conditions)+len(dirs))
	return append(append(out, conditions...), dirs...)
}

func (c converter) selectionSet(set language.SelectionSet, parentType string) ([]Node, error) {
	if len(set) == 0 {
		return nil, nil
	}
	out := make([]Node, 0, len(set))
	for _, sel := range set {
		switch s := sel.(type) {
		case *language.Field:
			children, err := c.selectionSet(s.SelectionSet, fieldType(s))
			if err != nil {
				return nil, err
			}
			out = append(out, &Field{
				Name:       s.Name,
				Alias:      alias(s),
				Arguments:  s.Arguments,
				Directives: s.Directives,
				TypeName:   fieldType(s),
				Selections: children,
			})
		case *language.InlineFragment:
			cond := s.TypeCondition
			if cond == "" {
				cond = parentType
			}
			children, err := c.selectionSet(s.SelectionSet, cond)
			if err != nil {
				return nil, err
			}
			out = append(out, &Fragment{TypeCondition: cond, Directives: s.Directives, Selections: children})
		case *language.FragmentSpread:
			def, err := c.fragment(s)
			if err != nil {
				return nil, err
			}
			children, err := c.selectionSet(def.SelectionSet, def.TypeCondition)
			if err != nil {
				return nil, err
			}
			out = append(out, &Fragment{TypeCondition: def.TypeCondition, Directives: s.Directives, Selections: children})
		default:
			return nil, fmt.Errorf("query: unexpected selection %T", sel)
		}
	}
	return out, nil
}

func (c converter) fragment(s *language.FragmentSpread) (*language.FragmentDefinition, error) {
	if s.Definition != nil {
		return s.Definition, nil
	}
	if def := c.doc.Fragments.ForName(s.Name); def != nil {
		return def, nil
	}
	return nil, fmt.Errorf("query: undefined fragment %q", s.Name)
}

func alias(f *language.Field) string {
	if f.Alias == f.Name {
		return ""
	}
	return f.Alias
}

func fieldType(f *language.Field) string {
	if f.Definition != nil && f.Definition.Type != nil {
		return f.Definition.Type.Name()
	}
	if f.Name == "__typename" {
		return "String"
	}
	return ""
}
