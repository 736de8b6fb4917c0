package executor

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	language "github.com/hanpama/compositegraph/internal/language"
	query "github.com/hanpama/compositegraph/internal/query"
)

func TestProject(t *testing.T) {
	root := &query.Root{FieldName: "viewer", Alias: "me", TypeName: "User", Selections: []query.Node{
		&query.Field{Name: "name"},
		&query.Field{Name: "nickname"},
		&query.Field{Name: "secret", Directives: language.DirectiveList{{Name: "include"}}},
		&query.Fragment{TypeCondition: "Admin", Selections: []query.Node{&query.Field{Name: "level"}}},
		&query.Field{Name: "drafts", Selections: []query.Node{&query.Field{Name: "text"}}},
		&query.Fragment{TypeCondition: "User", Selections: []query.Node{
			&query.Field{Name: "drafts", Selections: []query.Node{&query.Field{Name: "id"}}},
		}},
		query.NewField("id", "ID"),
	}}
	data := map[string]any{"me": map[string]any{
		"id":         "U1",
		"__typename": "User",
		"name":       "Huey",
		"drafts": []any{
			map[string]any{"id": "D1", "text": "a", "author": map[string]any{"id": "U1"}},
		},
	}}

	want := map[string]any{"me": map[string]any{
		"name":     "Huey",
		"nickname": nil,
		"drafts":   []any{map[string]any{"id": "D1", "text": "a"}},
	}}
	if diff := cmp.Diff(want, Project(data, root)); diff != "" {
		t.Fatalf("projection mismatch (-want +got):\n%s", diff)
	}
}

func TestProject_SkippedRoot(t *testing.T) {
	skip := language.DirectiveList{{Name: "skip", Arguments: language.ArgumentList{{
		Name:  "if",
		Value: &language.Value{Kind: language.BooleanValue, Raw: "true"},
	}}}}
	children := []query.Node{&query.Field{Name: "name"}}

	tests := []struct {
		name string
		root *query.Root
		data map[string]any
		want map[string]any
	}{
		{
			name: "own directive",
			root: &query.Root{FieldName: "viewer", TypeName: "User", Directives: skip, Selections: children},
			data: map[string]any{},
			want: map[string]any{},
		},
		{
			name: "fragment condition",
			root: &query.Root{FieldName: "viewer", TypeName: "User", Conditions: skip, Selections: children},
			data: map[string]any{},
			want: map[string]any{},
		},
		{
			name: "returned anyway",
			root: &query.Root{FieldName: "viewer", TypeName: "User", Directives: skip, Selections: children},
			data: map[string]any{"viewer": map[string]any{"name": "Huey"}},
			want: map[string]any{"viewer": map[string]any{"name": "Huey"}},
		},
		{
			name: "unconditional",
			root: &query.Root{FieldName: "viewer", TypeName: "User", Selections: children},
			data: map[string]any{},
			want: map[string]any{"viewer": nil},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, Project(tc.data, tc.root)); diff != "" {
				t.Fatalf("projection mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProject_NullRoot(t *testing.T) {
	root := &query.Root{FieldName: "viewer", TypeName: "User", Selections: []query.Node{&query.Field{Name: "name"}}}
	got := Project(map[string]any{"viewer": nil}, root)
	if diff := cmp.Diff(map[string]any{"viewer": nil}, got); diff != "" {
		t.Fatalf("projection mismatch (-want +got):\n%s", diff)
	}
}
