package extensions

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const serverSDL = `
interface Node { id: ID! }
type Query {
  viewer: User
  node(id: ID!): Node
}
type User implements Node {
  id: ID!
  name: String
  age: Int
  gender: String
}
`

const localSDL = `
interface Node { id: ID! }
type Query { node(id: ID!): Node }
type Mutation { introduceDraft(text: String!): Draft }
type User implements Node {
  id: ID!
  drafts: [Draft]
  draftCount: Int
}
type Draft implements Node {
  id: ID!
  text: String
  author: User
}
`

func TestMerge_DerivesOwnershipTable(t *testing.T) {
	c, err := Merge([]Source{
		{Name: "server", SDL: serverSDL},
		{Name: "local", SDL: localSDL},
	}, Options{QueryType: "Query", MutationType: "Mutation"})
	require.NoError(t, err)

	want := Table{
		"Query":    {"viewer": "server"},
		"Mutation": {"introduceDraft": "local"},
		"User":     {"name": "server", "age": "server", "gender": "server", "drafts": "local", "draftCount": "local"},
		"Draft":    {"text": "local", "author": "local"},
	}
	if diff := cmp.Diff(want, c.Config.Extensions); diff != "" {
		t.Fatalf("extensions mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "Query", c.Config.QueryType)
	require.Equal(t, []string{"local", "server"}, c.Config.Extensions.Schemas())

	user := c.Schema.Types["User"]
	require.NotNil(t, user)
	var names []string
	for _, f := range user.Fields {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"id", "name", "age", "gender", "drafts", "draftCount"}, names)
	require.NotNil(t, c.Schema.Query.Fields.ForName("node"))
	require.NotNil(t, c.Schema.Mutation)
	require.Equal(t, "Mutation", c.Schema.Mutation.Name)
}

func TestMerge_RenamesRootTypes(t *testing.T) {
	a := `
schema { query: ServerQuery }
type ServerQuery { hello: String }
`
	b := `type Query { world: String }`
	c, err := Merge([]Source{{Name: "a", SDL: a}, {Name: "b", SDL: b}}, Options{QueryType: "Root"})
	require.NoError(t, err)
	require.Equal(t, "Root", c.Schema.Query.Name)
	require.Nil(t, c.Schema.Types["ServerQuery"])

	schema, ok := c.Config.RootSchema("hello")
	require.True(t, ok)
	require.Equal(t, "a", schema)
	schema, ok = c.Config.RootSchema("world")
	require.True(t, ok)
	require.Equal(t, "b", schema)
}

func TestMerge_SharedTypesMustMatch(t *testing.T) {
	a := `type Query { a: Point } type Point { x: Int y: Int }`
	same := `type Query { b: Point } type Point { y: Int x: Int }`
	_, err := Merge([]Source{{Name: "a", SDL: a}, {Name: "b", SDL: same}}, Options{QueryType: "Query"})
	require.NoError(t, err)

	different := `type Query { b: Point } type Point { x: Float }`
	_, err = Merge([]Source{{Name: "a", SDL: a}, {Name: "b", SDL: different}}, Options{QueryType: "Query"})
	require.True(t, errors.Is(err, ErrInvalidExtension), "got %v", err)
	require.Contains(t, err.Error(), "multiple schemas with type Point")
}

func TestMerge_Conflicts(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{
			name: "root field claimed twice",
			a:    `type Query { viewer: String }`,
			b:    `type Query { viewer: String }`,
			want: "type Query with field viewer in multiple schemas",
		},
		{
			name: "node field claimed twice",
			a:    `interface Node { id: ID! } type Query { node(id: ID!): Node } type User implements Node { id: ID! name: String }`,
			b:    `interface Node { id: ID! } type Query { node(id: ID!): Node } type User implements Node { id: ID! name: String }`,
			want: "type User with field name in multiple schemas",
		},
		{
			name: "kinds differ",
			a:    `type Query { a: Thing } type Thing { x: Int }`,
			b:    `type Query { b: Thing } input Thing { x: Int }`,
			want: "type Thing with non-matching kinds",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Merge([]Source{{Name: "a", SDL: tc.a}, {Name: "b", SDL: tc.b}}, Options{QueryType: "Query"})
			require.ErrorIs(t, err, ErrInvalidExtension)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestMerge_Options(t *testing.T) {
	_, err := Merge([]Source{{Name: "a", SDL: `type Query { a: Int }`}}, Options{})
	require.ErrorIs(t, err, ErrInvalidOptions)

	_, err = Merge(nil, Options{QueryType: "Query"})
	require.ErrorIs(t, err, ErrInvalidOptions)

	_, err = Merge([]Source{{SDL: `type Query { a: Int }`}}, Options{QueryType: "Query"})
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestMerge_IgnoresMutationsWithoutMutationType(t *testing.T) {
	c, err := Merge([]Source{{Name: "local", SDL: localSDL}}, Options{QueryType: "Query"})
	require.NoError(t, err)
	require.Nil(t, c.Schema.Mutation)
	_, ok := c.Config.MutationSchema("introduceDraft")
	require.False(t, ok)
}

func TestConfig_Check(t *testing.T) {
	c, err := Merge([]Source{
		{Name: "server", SDL: serverSDL + "type Point { x: Int } extend type Query { origin: Point }"},
		{Name: "local", SDL: localSDL},
	}, Options{QueryType: "Query", MutationType: "Mutation"})
	require.NoError(t, err)
	require.NoError(t, c.Config.Check(c.Schema))

	tests := []struct {
		name  string
		table Table
		want  string
	}{
		{name: "type without id", table: Table{"Point": {"x": "local"}}, want: "type Point is extended but has no id field"},
		{name: "unknown type", table: Table{"Nope": {"x": "local"}}, want: "type Nope is not in the composite schema"},
		{name: "unknown field", table: Table{"User": {"nope": "local"}}, want: "type User has no field nope"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{QueryType: "Query", MutationType: "Mutation", Extensions: tc.table}
			err := cfg.Check(c.Schema)
			require.ErrorIs(t, err, ErrInvalidExtension)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestMerge_FoldsTypeExtensions(t *testing.T) {
	sdl := `
type Query { a: Int }
extend type Query { b: Int }
`
	c, err := Merge([]Source{{Name: "x", SDL: sdl}}, Options{QueryType: "Query"})
	require.NoError(t, err)
	schema, ok := c.Config.RootSchema("b")
	require.True(t, ok)
	require.Equal(t, "x", schema)
}
