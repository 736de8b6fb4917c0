package split

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	extensions "github.com/hanpama/compositegraph/internal/extensions"
	language "github.com/hanpama/compositegraph/internal/language"
	network "github.com/hanpama/compositegraph/internal/network"
	query "github.com/hanpama/compositegraph/internal/query"
)

const compositeSDL = `
interface Node { id: ID! }
type Query {
  viewer: User
  node(id: ID!): Node
  drafts: [Draft]
}
type Mutation {
  introduceDraft(text: String!): Draft
  renameUser(id: ID!, name: String!): User
}
type User implements Node {
  id: ID!
  name: String
  age: Int
  gender: String
  drafts(first: Int): [Draft]
  draftCount: Int
}
type Draft implements Node {
  id: ID!
  text: String
  author: User
}
`

func testConfig() *extensions.Config {
	return &extensions.Config{
		QueryType:    "Query",
		MutationType: "Mutation",
		Extensions: extensions.Table{
			"Query":    {"viewer": "server", "drafts": "local"},
			"Mutation": {"introduceDraft": "local", "renameUser": "server"},
			"User":     {"name": "server", "age": "server", "gender": "server", "drafts": "local", "draftCount": "local"},
			"Draft":    {"text": "local", "author": "local"},
		},
	}
}

func parseRequest(t *testing.T, src string) *network.Request {
	t.Helper()
	schema, err := language.LoadSchema(&language.Source{Name: "composite.graphql", Input: compositeSDL})
	require.NoError(t, err)
	op, err := query.Parse(schema, src, "")
	require.NoError(t, err)
	require.Len(t, op.Roots, 1)
	return network.NewRequest(op.Roots[0], nil)
}

type depView struct {
	Path       string
	IDKey      string
	Type       string
	Schema     string
	Children   []string
	Dependents []depView
}

type queryView struct {
	Query      string
	Schema     string
	Dependents []depView
}

func viewDeps(deps []DependentSpec) []depView {
	var out []depView
	for _, d := range deps {
		var children []string
		for _, c := range d.Fragment.Children {
			children = append(children, query.Outline(c))
		}
		idKey := d.Key()
		if idKey == "id" {
			idKey = ""
		}
		out = append(out, depView{
			Path:       d.Path.String(),
			IDKey:      idKey,
			Type:       d.Fragment.Type,
			Schema:     d.Fragment.Schema,
			Children:   children,
			Dependents: viewDeps(d.Fragment.Dependents),
		})
	}
	return out
}

func view(cr *CompositeRequest) []queryView {
	var out []queryView
	for _, q := range cr.Queries {
		out = append(out, queryView{Query: query.Outline(q.Query), Schema: q.Schema, Dependents: viewDeps(q.Dependents)})
	}
	if m := cr.Mutation; m != nil {
		out = append(out, queryView{Query: query.Outline(m.Query), Schema: m.Schema, Dependents: viewDeps(m.Dependents)})
	}
	return out
}

func TestSplit_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []queryView
	}{
		{
			name:  "single schema passthrough",
			query: `{ viewer { name age } }`,
			want:  []queryView{{Query: "viewer{name age}", Schema: "server"}},
		},
		{
			name:  "cross schema traversal",
			query: `{ viewer { name drafts { text author { name } } } }`,
			want: []queryView{{
				Query:  "viewer{name +id}",
				Schema: "server",
				Dependents: []depView{{
					Path:     "viewer",
					Type:     "User",
					Schema:   "local",
					Children: []string{"drafts{text author{+id}}"},
					Dependents: []depView{{
						Path:     "drafts.author",
						Type:     "User",
						Schema:   "server",
						Children: []string{"name"},
					}},
				}},
			}},
		},
		{
			name:  "aliases shape dependent paths",
			query: `{ me: viewer { id mine: drafts(first: 2) { text } } }`,
			want: []queryView{{
				Query:  "me:viewer{id}",
				Schema: "server",
				Dependents: []depView{{
					Path:     "me",
					Type:     "User",
					Schema:   "local",
					Children: []string{"mine:drafts(first:2){text}"},
				}},
			}},
		},
		{
			name:  "client alias on id",
			query: `{ viewer { id: name draftCount } }`,
			want: []queryView{{
				Query:  "viewer{id:name +__id:id}",
				Schema: "server",
				Dependents: []depView{{
					Path:     "viewer",
					IDKey:    "__id",
					Type:     "User",
					Schema:   "local",
					Children: []string{"draftCount"},
				}},
			}},
		},
		{
			name:  "fragments are not addressable",
			query: `{ viewer { ... on User { draftCount } } }`,
			want: []queryView{{
				Query:  "viewer{...on User{+id}}",
				Schema: "server",
				Dependents: []depView{{
					Path:     "viewer",
					Type:     "User",
					Schema:   "local",
					Children: []string{"draftCount"},
				}},
			}},
		},
		{
			name:  "node lookup with multiple extensions",
			query: `{ node(id: "VXNlcjox") { id ... on User { age gender draftCount } } }`,
			want: []queryView{
				{Query: `node(id:"VXNlcjox"){id ...on User{age gender}}`, Schema: "server"},
				{Query: `node(id:"VXNlcjox"){id ...on User{draftCount}}`, Schema: "local"},
			},
		},
		{
			name:  "node lookup keeps dependents of each schema",
			query: `{ node(id: "RHJhZnQ6MQ==") { ... on Draft { text author { name } } } }`,
			want: []queryView{{
				Query:  `node(id:"RHJhZnQ6MQ=="){...on Draft{text author{+id}}}`,
				Schema: "local",
				Dependents: []depView{{
					Path:     "node.author",
					Type:     "User",
					Schema:   "server",
					Children: []string{"name"},
				}},
			}},
		},
		{
			name:  "mutation with dependent refetch",
			query: `mutation { introduceDraft(text: "hi") { id text author { name } } }`,
			want: []queryView{{
				Query:  `mutation introduceDraft(text:"hi"){id text author{+id}}`,
				Schema: "local",
				Dependents: []depView{{
					Path:     "introduceDraft.author",
					Type:     "User",
					Schema:   "server",
					Children: []string{"name"},
				}},
			}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cr, err := New(testConfig()).Split(parseRequest(t, tc.query))
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, view(cr)); diff != "" {
				t.Fatalf("split mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplit_Idempotent(t *testing.T) {
	req := parseRequest(t, `{ viewer { name drafts { text author { name age } } } }`)
	s := New(testConfig())
	first, err := s.Split(req)
	require.NoError(t, err)
	second, err := s.Split(req)
	require.NoError(t, err)
	if diff := cmp.Diff(view(first), view(second)); diff != "" {
		t.Fatalf("split is not idempotent (-first +second):\n%s", diff)
	}
	require.Same(t, req, first.Request)
	require.Same(t, req, second.Request)
}

func TestSplit_DoesNotMutateRequest(t *testing.T) {
	req := parseRequest(t, `{ viewer { name drafts { text } } }`)
	before := query.Outline(req.Query())
	_, err := New(testConfig()).Split(req)
	require.NoError(t, err)
	require.Equal(t, before, query.Outline(req.Query()))
}

func TestSplit_DependentPathsAreIndependent(t *testing.T) {
	req := parseRequest(t, `{ viewer { drafts { author { name } } draftCount } }`)
	cr, err := New(testConfig()).Split(req)
	require.NoError(t, err)
	deps := cr.Queries[0].Dependents
	require.Len(t, deps, 1)

	moved := deps[0].WithPrefix(deps[0].Path...)
	require.Equal(t, "viewer.viewer", moved.Path.String())
	require.Equal(t, "viewer", deps[0].Path.String())
}

func TestSplit_ConfigurationErrors(t *testing.T) {
	s := New(testConfig())

	_, err := s.Split(network.NewRequest(&query.Root{FieldName: "ghost", TypeName: "String"}, nil))
	require.ErrorIs(t, err, ErrUnresolvedSchema)
	require.Contains(t, err.Error(), "Query.ghost")

	_, err = s.Split(network.NewRequest(&query.Mutation{FieldName: "nope", TypeName: "User"}, nil))
	require.ErrorIs(t, err, ErrUnresolvedSchema)

	_, err = s.Split(parseRequest(t, `{ node(id: "x") { id __typename } }`))
	require.ErrorIs(t, err, ErrUnresolvedSchema)
}

func TestSplit_NodeLookupFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Extensions["Query"]["node"] = "local"
	cr, err := New(cfg).Split(parseRequest(t, `{ node(id: "x") { id __typename } }`))
	require.NoError(t, err)
	want := []queryView{{Query: `node(id:"x"){id __typename}`, Schema: "local"}}
	if diff := cmp.Diff(want, view(cr)); diff != "" {
		t.Fatalf("split mismatch (-want +got):\n%s", diff)
	}
}

func TestSplit_UnsupportedNodes(t *testing.T) {
	s := New(testConfig())

	_, err := s.Split(network.NewRequest(&query.Field{Name: "viewer"}, nil))
	require.ErrorIs(t, err, ErrUnsupportedNode)

	nested := &query.Root{FieldName: "viewer", TypeName: "User", Selections: []query.Node{
		&query.Root{FieldName: "viewer", TypeName: "User"},
	}}
	_, err = s.Split(network.NewRequest(nested, nil))
	require.ErrorIs(t, err, ErrUnsupportedNode)
}
