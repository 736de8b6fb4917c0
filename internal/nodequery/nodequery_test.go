package nodequery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	language "github.com/hanpama/compositegraph/internal/language"
	query "github.com/hanpama/compositegraph/internal/query"
)

const testSDL = `
interface Node { id: ID! }
type Query { node(id: ID!): Node viewer: User }
type User implements Node { id: ID! name: String drafts(first: Int): [Draft] }
type Draft implements Node { id: ID! text: String }
`

func TestBuild_CanonicalShape(t *testing.T) {
	children := []query.Node{&query.Field{Name: "name", TypeName: "String"}}
	root := Build("User", children, nil, "id")

	require.Equal(t, `node(id:$__nodeID){+id +__typename ...on User{name}}`, query.Outline(root))
	require.Equal(t, OperationName, root.OperationName)
	require.Equal(t, Field, root.ResponseKey())
}

func TestBuild_AliasedID(t *testing.T) {
	children := []query.Node{&query.Field{Name: "draftCount", TypeName: "Int"}}
	root := Build("User", children, nil, query.IDAlias)
	require.Equal(t, `node(id:$__nodeID){+__id:id +__typename ...on User{draftCount}}`, query.Outline(root))
}

func TestBuild_CarriesReferencedVariables(t *testing.T) {
	schema, err := language.LoadSchema(&language.Source{Name: "test.graphql", Input: testSDL})
	require.NoError(t, err)
	op, err := query.Parse(schema, `
		query App($first: Int, $unused: String) {
			viewer { drafts(first: $first) { text } }
		}`, "")
	require.NoError(t, err)
	viewer := op.Roots[0].(*query.Root)

	root := Build("User", viewer.Selections, op.Variables, "")
	text, err := query.Print(root)
	require.NoError(t, err)
	require.True(t, strings.Contains(text, "$__nodeID: ID!"), text)
	require.True(t, strings.Contains(text, "$first: Int"), text)
	require.False(t, strings.Contains(text, "$unused"), text)

	reparsed, err := query.Parse(schema, text, OperationName)
	require.NoError(t, err)
	require.Equal(t, `node(id:$__nodeID){id __typename ...on User{drafts(first:$first){text}}}`, query.Outline(reparsed.Roots[0]))
}

func TestVariables_CopiesBase(t *testing.T) {
	base := map[string]any{"first": 2}
	got := Variables(base, "VXNlcjox")
	require.Equal(t, map[string]any{"first": 2, NodeIDVariable: "VXNlcjox"}, got)
	require.NotContains(t, base, NodeIDVariable)
}

func TestObject(t *testing.T) {
	obj, ok := Object(map[string]any{"node": map[string]any{"id": "1"}})
	require.True(t, ok)
	require.Equal(t, "1", obj["id"])

	_, ok = Object(map[string]any{"node": nil})
	require.False(t, ok)
}
