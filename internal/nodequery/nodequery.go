// Package nodequery builds the node(id) queries used to re-enter a schema
// at an object discovered in another schema's response.
package nodequery

import (
	language "github.com/hanpama/compositegraph/internal/language"
	query "github.com/hanpama/compositegraph/internal/query"
)

const (
	// NodeIDVariable is the variable the object identifier is bound to.
	NodeIDVariable = "__nodeID"
	// OperationName names every node query.
	OperationName = "Dependent"
	// Field is the response key the object is returned under.
	Field = "node"
)

// Build returns
//
//	query Dependent($__nodeID: ID!) {
//	  node(id: $__nodeID) { id __typename ... on <typeName> { <children> } }
//	}
//
// id and __typename are generated fields. The id is serialized under idKey,
// the key the object's id has in the response it is merged into. defs are the
// variable definitions of the originating request; the ones children
// reference are carried over.
func Build(typeName string, children []query.Node, defs language.VariableDefinitionList, idKey string) *query.Root {
	id := query.NewField("id", "ID")
	if idKey != "" && idKey != "id" {
		id = query.NewAliasedField(idKey, "id", "ID")
	}
	used := query.ReferencedVariables(children)
	vars := language.VariableDefinitionList{{
		Variable: NodeIDVariable,
		Type:     language.NonNullNamedType("ID"),
	}}
	for _, def := range defs {
		if def.Variable == NodeIDVariable {
			continue
		}
		if _, ok := used[def.Variable]; ok {
			vars = append(vars, def)
		}
	}
	return &query.Root{
		OperationName: OperationName,
		FieldName:     Field,
		Arguments: language.ArgumentList{{
			Name:  "id",
			Value: &language.Value{Kind: language.Variable, Raw: NodeIDVariable},
		}},
		TypeName:  "Node",
		Variables: vars,
		Selections: []query.Node{
			id,
			query.NewField("__typename", "String"),
			&query.Fragment{TypeCondition: typeName, Selections: children},
		},
	}
}

// Variables returns a copy of base with the identifier bound.
func Variables(base map[string]any, id any) map[string]any {
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[NodeIDVariable] = id
	return out
}

// Object returns the node object of a node query response.
func Object(data map[string]any) (map[string]any, bool) {
	obj, ok := data[Field].(map[string]any)
	return obj, ok
}
