package introspection

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	language "github.com/hanpama/compositegraph/internal/language"
	network "github.com/hanpama/compositegraph/internal/network"
	query "github.com/hanpama/compositegraph/internal/query"
)

const petSDL = `
type Query {
  pet(kind: Kind = DOG): Pet
  search(filter: Filter): [Result!]!
  old: String @deprecated(reason: "use pet")
}
enum Kind {
  DOG
  CAT @deprecated
}
input Filter {
  term: String!
  limit: Int = 10
}
union Result = Dog | Cat
interface Pet { name: String }
type Dog implements Pet { name: String }
type Cat implements Pet { name: String }
`

func execute(t *testing.T, base network.Layer, src string) map[string]any {
	t.Helper()
	s, err := language.LoadSchema(&language.Source{Name: "pets.graphql", Input: petSDL})
	require.NoError(t, err)
	op, err := query.Parse(s, src, "")
	require.NoError(t, err)
	data, err := network.Execute(context.Background(), Wrap(base, s), op, nil)
	require.NoError(t, err)
	return data
}

func TestType_FieldsAndTypeRefs(t *testing.T) {
	got := execute(t, network.NewMockLayer(nil, nil), `{
  __type(name: "Query") {
    kind
    name
    fields {
      name
      args { name defaultValue type { name } }
      type { kind name ofType { kind name ofType { kind name ofType { kind name } } } }
    }
  }
}`)
	want := map[string]any{"__type": map[string]any{
		"kind": "OBJECT",
		"name": "Query",
		"fields": []any{
			map[string]any{
				"name": "pet",
				"args": []any{map[string]any{"name": "kind", "defaultValue": "DOG", "type": map[string]any{"name": "Kind"}}},
				"type": map[string]any{"kind": "INTERFACE", "name": "Pet", "ofType": nil},
			},
			map[string]any{
				"name": "search",
				"args": []any{map[string]any{"name": "filter", "defaultValue": nil, "type": map[string]any{"name": "Filter"}}},
				"type": map[string]any{"kind": "NON_NULL", "name": nil, "ofType": map[string]any{
					"kind": "LIST", "name": nil, "ofType": map[string]any{
						"kind": "NON_NULL", "name": nil, "ofType": map[string]any{"kind": "UNION", "name": "Result"},
					},
				}},
			},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("introspection mismatch (-want +got):\n%s", diff)
	}
}

func TestType_Deprecation(t *testing.T) {
	got := execute(t, network.NewMockLayer(nil, nil), `{
  __type(name: "Query") { fields(includeDeprecated: true) { name isDeprecated deprecationReason } }
}`)
	want := map[string]any{"__type": map[string]any{"fields": []any{
		map[string]any{"name": "pet", "isDeprecated": false, "deprecationReason": nil},
		map[string]any{"name": "search", "isDeprecated": false, "deprecationReason": nil},
		map[string]any{"name": "old", "isDeprecated": true, "deprecationReason": "use pet"},
	}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("introspection mismatch (-want +got):\n%s", diff)
	}
}

func TestType_EnumsInputsAndAbstractTypes(t *testing.T) {
	got := execute(t, network.NewMockLayer(nil, nil), `{
  kind: __type(name: "Kind") {
    enumValues { name }
    all: enumValues(includeDeprecated: true) { name isDeprecated deprecationReason }
  }
  filter: __type(name: "Filter") { inputFields { name defaultValue } isOneOf fields { name } }
  result: __type(name: "Result") { possibleTypes { name } fields { name } }
  pet: __type(name: "Pet") { possibleTypes { name } interfaces { name } }
  dog: __type(name: "Dog") { interfaces { name } possibleTypes { name } }
  missing: __type(name: "Nope") { name }
}`)
	want := map[string]any{
		"kind": map[string]any{
			"enumValues": []any{map[string]any{"name": "DOG"}},
			"all": []any{
				map[string]any{"name": "DOG", "isDeprecated": false, "deprecationReason": nil},
				map[string]any{"name": "CAT", "isDeprecated": true, "deprecationReason": "No longer supported"},
			},
		},
		"filter": map[string]any{
			"inputFields": []any{
				map[string]any{"name": "term", "defaultValue": nil},
				map[string]any{"name": "limit", "defaultValue": "10"},
			},
			"isOneOf": false,
			"fields":  nil,
		},
		"result": map[string]any{
			"possibleTypes": []any{map[string]any{"name": "Cat"}, map[string]any{"name": "Dog"}},
			"fields":        nil,
		},
		"pet": map[string]any{
			"possibleTypes": []any{map[string]any{"name": "Cat"}, map[string]any{"name": "Dog"}},
			"interfaces":    []any{},
		},
		"dog": map[string]any{
			"interfaces":    []any{map[string]any{"name": "Pet"}},
			"possibleTypes": nil,
		},
		"missing": nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("introspection mismatch (-want +got):\n%s", diff)
	}
}

func TestSchema(t *testing.T) {
	got := execute(t, network.NewMockLayer(nil, nil), `{
  __schema {
    queryType { name }
    mutationType { name }
    types { name }
    directives { name locations args { name } }
  }
}`)
	s := got["__schema"].(map[string]any)
	require.Equal(t, map[string]any{"name": "Query"}, s["queryType"])
	require.Nil(t, s["mutationType"])

	var names []string
	for _, ty := range s["types"].([]any) {
		names = append(names, ty.(map[string]any)["name"].(string))
	}
	require.IsIncreasing(t, names)
	require.Subset(t, names, []string{"Query", "Pet", "Kind", "Filter", "String", "__Schema", "__Type"})

	var deprecated map[string]any
	for _, d := range s["directives"].([]any) {
		if d.(map[string]any)["name"] == "deprecated" {
			deprecated = d.(map[string]any)
		}
	}
	require.NotNil(t, deprecated)
	require.Contains(t, deprecated["locations"], "FIELD_DEFINITION")
	require.Equal(t, []any{map[string]any{"name": "reason"}}, deprecated["args"])
}

func TestWrap_RoutesOtherFieldsToBase(t *testing.T) {
	base := network.NewMockLayer(network.NewMockDataHandler(map[string]any{
		"pet": map[string]any{"name": "Rex"},
	}), nil)
	got := execute(t, base, `{ __typename pet { name } }`)
	want := map[string]any{"__typename": "Query", "pet": map[string]any{"name": "Rex"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
	calls := base.Calls()
	require.Len(t, calls, 1)
	require.Contains(t, calls[0].Outline, "pet")
}

func TestHandles(t *testing.T) {
	require.True(t, Handles(&query.Root{FieldName: "__schema"}))
	require.True(t, Handles(&query.Root{FieldName: "__type"}))
	require.True(t, Handles(&query.Mutation{FieldName: "__typename"}))
	require.False(t, Handles(&query.Mutation{FieldName: "__schema"}))
	require.False(t, Handles(&query.Root{FieldName: "pet"}))
}
