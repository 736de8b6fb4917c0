// Package query is the polymorphic query tree consumed by the composite
// pipeline. A client operation becomes one Root (or Mutation) node per root
// field; selections below it are Field and Fragment nodes.
//
// Nodes are immutable once built. WithChildren is the only way to derive a
// node with a different selection, and it always returns a new node.
package query

import (
	language "github.com/hanpama/compositegraph/internal/language"
)

// Kind discriminates the closed set of node variants.
type Kind int

const (
	KindRoot Kind = iota + 1
	KindField
	KindFragment
	KindMutation
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindField:
		return "field"
	case KindFragment:
		return "fragment"
	case KindMutation:
		return "mutation"
	}
	return "unknown"
}

// Node is implemented by *Root, *Field, *Fragment and *Mutation only.
type Node interface {
	Kind() Kind
	// DeclaredType is the named type of the selection: the field's return type
	// or the fragment's type condition.
	DeclaredType() string
	Children() []Node
	// WithChildren returns a copy of the node whose selections are children.
	WithChildren(children []Node) Node

	sealed()
}

// Root is a query rooted at a single field of the query type.
type Root struct {
	OperationName string
	FieldName     string
	Alias         string
	Arguments     language.ArgumentList
	Directives    language.DirectiveList
	// Conditions are the directives of the root-level fragments the field was
	// selected through. They are evaluated by Included and never printed.
	Conditions    language.DirectiveList
	TypeName      string
	// Variables are the variable definitions of the originating operation.
	Variables     language.VariableDefinitionList
	Selections    []Node
}

// Mutation is a mutation rooted at a single field of the mutation type.
type Mutation struct {
	OperationName string
	FieldName     string
	Alias         string
	Arguments     language.ArgumentList
	Directives    language.DirectiveList
	Conditions    language.DirectiveList
	TypeName      string
	Variables     language.VariableDefinitionList
	Selections    []Node
}

// Field is a field selection.
type Field struct {
	Name       string
	Alias      string
	Arguments  language.ArgumentList
	Directives language.DirectiveList
	TypeName   string
	// Generated marks fields added by the pipeline rather than requested by
	// the client. They are fetched but never returned to the client.
	Generated  bool
	Selections []Node
}

// Fragment is a type-conditional selection. Named fragment spreads are
// inlined into fragments when a document is converted.
type Fragment struct {
	TypeCondition string
	Directives    language.DirectiveList
	Selections    []Node
}

func (*Root) sealed()     {}
func (*Mutation) sealed() {}
func (*Field) sealed()    {}
func (*Fragment) sealed() {}

func (*Root) Kind() Kind     { return KindRoot }
func (*Mutation) Kind() Kind { return KindMutation }
func (*Field) Kind() Kind    { return KindField }
func (*Fragment) Kind() Kind { return KindFragment }

func (r *Root) DeclaredType() string     { return r.TypeName }
func (m *Mutation) DeclaredType() string { return m.TypeName }
func (f *Field) DeclaredType() string    { return f.TypeName }
func (f *Fragment) DeclaredType() string { return f.TypeCondition }

func (r *Root) Children() []Node     { return r.Selections }
func (m *Mutation) Children() []Node { return m.Selections }
func (f *Field) Children() []Node    { return f.Selections }
func (f *Fragment) Children() []Node { return f.Selections }

func (r *Root) WithChildren(children []Node) Node {
	cp := *r
	cp.Selections = cloneList(children)
	return &cp
}

func (m *Mutation) WithChildren(children []Node) Node {
	cp := *m
	cp.Selections = cloneList(children)
	return &cp
}

func (f *Field) WithChildren(children []Node) Node {
	cp := *f
	cp.Selections = cloneList(children)
	return &cp
}

func (f *Fragment) WithChildren(children []Node) Node {
	cp := *f
	cp.Selections = cloneList(children)
	return &cp
}

func cloneList(children []Node) []Node {
	if children == nil {
		return nil
	}
	out := make([]Node, len(children))
	copy(out, children)
	return out
}

// ResponseKey is the key the field's value is serialized under.
func (f *Field) ResponseKey() string { return responseKey(f.Alias, f.Name) }

func (r *Root) ResponseKey() string     { return responseKey(r.Alias, r.FieldName) }
func (m *Mutation) ResponseKey() string { return responseKey(m.Alias, m.FieldName) }

func responseKey(alias, name string) string {
	if alias != "" {
		return alias
	}
	return name
}

// IsLeaf reports whether the field has no sub-selections.
func (f *Field) IsLeaf() bool { return len(f.Selections) == 0 }

// IDAlias is the response key of a generated id field when the client
// serializes another field under `id`.
const IDAlias = "__id"

// NewField returns a generated leaf field. Generated fields are requested
// from a backend for bookkeeping and stripped from client responses.
func NewField(name, typeName string) *Field {
	return &Field{Name: name, TypeName: typeName, Generated: true}
}

// NewAliasedField is NewField serialized under alias.
func NewAliasedField(alias, name, typeName string) *Field {
	return &Field{Name: name, Alias: alias, TypeName: typeName, Generated: true}
}

// HasResponseKey reports whether a field named key is directly among nodes
// and serialized under its own name.
func HasResponseKey(nodes []Node, key string) bool { return Selects(nodes, key, key) }

// Selects reports whether a field named name is directly among nodes under
// key. Fields inside fragments do not count: their type condition may not
// match at runtime.
func Selects(nodes []Node, key, name string) bool {
	for _, n := range nodes {
		if f, ok := n.(*Field); ok && f.ResponseKey() == key && f.Name == name {
			return true
		}
	}
	return false
}

// KeyInUse reports whether any field among nodes, fragments included, is
// serialized under key.
func KeyInUse(nodes []Node, key string) bool {
	for _, n := range nodes {
		switch n := n.(type) {
		case *Field:
			if n.ResponseKey() == key {
				return true
			}
		case *Fragment:
			if KeyInUse(n.Selections, key) {
				return true
			}
		}
	}
	return false
}
