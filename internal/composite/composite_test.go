package composite

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	demo "github.com/hanpama/compositegraph/internal/demo"
	network "github.com/hanpama/compositegraph/internal/network"
	query "github.com/hanpama/compositegraph/internal/query"
	split "github.com/hanpama/compositegraph/internal/split"
)

type fixture struct {
	store *demo.Store
	layer *Layer
	op    func(src string) *query.Operation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := demo.Composite()
	require.NoError(t, err)
	store := demo.NewStore()
	return &fixture{
		store: store,
		layer: New(&c.Config, demo.Layers(store)),
		op: func(src string) *query.Operation {
			op, err := query.Parse(c.Schema, src, "")
			require.NoError(t, err)
			return op
		},
	}
}

func (f *fixture) execute(t *testing.T, src string, vars map[string]any) map[string]any {
	t.Helper()
	data, err := network.Execute(context.Background(), f.layer, f.op(src), vars)
	require.NoError(t, err)
	return data
}

func TestLayer_KitchenSink(t *testing.T) {
	f := newFixture(t)
	got := f.execute(t, `
		query Kitchen($status: String, $first: Int) {
			viewer {
				totalCount
				todos(status: $status, first: $first) {
					edges { node { id text } }
				}
				... on User {
					drafts(first: $first) {
						edges { node { id text author { name } } }
					}
				}
			}
		}`, map[string]any{"status": "any", "first": 10})

	want := map[string]any{"viewer": map[string]any{
		"totalCount": 2,
		"todos": map[string]any{"edges": []any{
			map[string]any{"node": map[string]any{"id": "VG9kbzow", "text": "Taste JavaScript"}},
			map[string]any{"node": map[string]any{"id": "VG9kbzox", "text": "Buy a unicorn"}},
		}},
		"drafts": map[string]any{"edges": []any{
			map[string]any{"node": map[string]any{"id": "RHJhZnQ6MA==", "text": "This is a draft", "author": map[string]any{"name": "Huey"}}},
			map[string]any{"node": map[string]any{"id": "RHJhZnQ6MQ==", "text": "This is another draft", "author": map[string]any{"name": "Huey"}}},
		}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestLayer_SingleSchemaPassthrough(t *testing.T) {
	f := newFixture(t)
	got := f.execute(t, `{ viewer { name age gender } }`, nil)
	want := map[string]any{"viewer": map[string]any{"name": "Huey", "age": 13, "gender": "male"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestLayer_NodeLookupWithMultipleExtensions(t *testing.T) {
	f := newFixture(t)
	got := f.execute(t, `{ node(id: "VXNlcjox") { id ... on User { age gender draftCount } } }`, nil)
	want := map[string]any{"node": map[string]any{"id": "VXNlcjox", "age": 13, "gender": "male", "draftCount": 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestLayer_MutationWithDependentRefetch(t *testing.T) {
	f := newFixture(t)
	got := f.execute(t, `mutation { introduceDraft(text: "Third draft") { id text author { name } } }`, nil)
	want := map[string]any{"introduceDraft": map[string]any{
		"id": "RHJhZnQ6Mg==", "text": "Third draft", "author": map[string]any{"name": "Huey"},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, f.store.Drafts(f.store.ViewerID()), 3)

	got = f.execute(t, `mutation { renameUser(id: "VXNlcjox", name: "Dewey") { name draftCount } }`, nil)
	want = map[string]any{"renameUser": map[string]any{"name": "Dewey", "draftCount": 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestLayer_MultipleRootFields(t *testing.T) {
	f := newFixture(t)
	got := f.execute(t, `{
		viewer { name }
		draft: node(id: "RHJhZnQ6MA==") { ... on Draft { text author { name } } }
	}`, nil)
	want := map[string]any{
		"viewer": map[string]any{"name": "Huey"},
		"draft":  map[string]any{"text": "This is a draft", "author": map[string]any{"name": "Huey"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestLayer_SplitErrorsRejectRequest(t *testing.T) {
	c, err := demo.Composite()
	require.NoError(t, err)
	cfg := c.Config
	cfg.Extensions = nil
	l := New(&cfg, demo.Layers(demo.NewStore()))

	req := network.NewRequest(&query.Root{FieldName: "viewer", TypeName: "User"}, nil)
	err = l.SendQueries(context.Background(), []*network.Request{req})
	require.ErrorIs(t, err, split.ErrUnresolvedSchema)
	_, waitErr := req.Wait(context.Background())
	require.ErrorIs(t, waitErr, split.ErrUnresolvedSchema)
}

func TestLayer_BackendErrorRejectsRequest(t *testing.T) {
	c, err := demo.Composite()
	require.NoError(t, err)
	boom := errors.New("local is down")
	layers := demo.Layers(demo.NewStore())
	layers["local"] = network.NewMockLayer(network.NewMockErrorHandler(boom), nil)
	l := New(&c.Config, layers)

	op, err := query.Parse(c.Schema, `{ viewer { name draftCount } }`, "")
	require.NoError(t, err)
	_, err = network.Execute(context.Background(), l, op, nil)
	require.ErrorIs(t, err, boom)
}

func TestLayer_Supports(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.layer.Supports())
	require.False(t, f.layer.Supports("defer"))
}
