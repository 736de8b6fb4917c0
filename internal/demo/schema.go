package demo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	extensions "github.com/hanpama/compositegraph/internal/extensions"
	memlayer "github.com/hanpama/compositegraph/internal/memlayer"
	network "github.com/hanpama/compositegraph/internal/network"
)

const ServerSDL = `interface Node {
  id: ID!
}

type Query {
  viewer: User
  node(id: ID!): Node
}

type Mutation {
  renameUser(id: ID!, name: String!): User
}

type PageInfo {
  hasNextPage: Boolean!
  hasPreviousPage: Boolean!
}

type User implements Node {
  id: ID!
  name: String
  age: Int
  gender: String
  totalCount: Int
  todos(status: String = "any", first: Int): TodoConnection
}

type TodoConnection {
  edges: [TodoEdge]
  pageInfo: PageInfo!
}

type TodoEdge {
  cursor: String!
  node: Todo
}

type Todo implements Node {
  id: ID!
  text: String
  complete: Boolean
}
`

const LocalSDL = `interface Node {
  id: ID!
}

type Query {
  node(id: ID!): Node
}

type Mutation {
  introduceDraft(text: String!): Draft
}

type PageInfo {
  hasNextPage: Boolean!
  hasPreviousPage: Boolean!
}

type User implements Node {
  id: ID!
  drafts(first: Int): DraftConnection
  draftCount: Int
}

type DraftConnection {
  edges: [DraftEdge]
  pageInfo: PageInfo!
}

type DraftEdge {
  cursor: String!
  node: Draft
}

type Draft implements Node {
  id: ID!
  text: String
  author: User
}
`

// Sources returns the SDL of both schemas.
func Sources() []extensions.Source {
	return []extensions.Source{
		{Name: "server", SDL: ServerSDL},
		{Name: "local", SDL: LocalSDL},
	}
}

// Composite merges the demo schemas under Query and Mutation.
func Composite() (*extensions.Composite, error) {
	return extensions.Merge(Sources(), extensions.Options{QueryType: "Query", MutationType: "Mutation"})
}

// Layers returns in-process layers for both schemas over store.
func Layers(store *Store) map[string]network.Layer {
	return map[string]network.Layer{
		"server": memlayer.New("server", ServerSchema(store)),
		"local":  memlayer.New("local", LocalSchema(store)),
	}
}

func typeOf(obj any) string {
	switch obj.(type) {
	case *User:
		return "User"
	case *Todo:
		return "Todo"
	case *Draft:
		return "Draft"
	}
	return ""
}

var implementsNode = map[string][]string{
	"User":  {"Node"},
	"Todo":  {"Node"},
	"Draft": {"Node"},
}

// ServerSchema resolves users and todos.
func ServerSchema(store *Store) memlayer.Schema {
	return memlayer.Schema{
		TypeOf:     typeOf,
		Implements: implementsNode,
		Node: func(ctx context.Context, gid string) (any, error) {
			typeName, id, err := ParseGlobalID(gid)
			if err != nil {
				return nil, err
			}
			switch typeName {
			case "User":
				if u := store.User(id); u != nil {
					return u, nil
				}
			case "Todo":
				if t := store.Todo(id); t != nil {
					return t, nil
				}
			}
			return nil, nil
		},
		Resolvers: map[string]memlayer.Resolver{
			"Query.viewer": func(ctx context.Context, _ any, _ map[string]any) (any, error) {
				return store.Viewer(), nil
			},
			"Mutation.renameUser": func(ctx context.Context, _ any, args map[string]any) (any, error) {
				gid, _ := args["id"].(string)
				name, _ := args["name"].(string)
				_, id, err := ParseGlobalID(gid)
				if err != nil {
					return nil, err
				}
				return store.RenameUser(id, name)
			},
			"User.id":     userID,
			"User.name":   func(ctx context.Context, src any, _ map[string]any) (any, error) { return src.(*User).Name, nil },
			"User.age":    func(ctx context.Context, src any, _ map[string]any) (any, error) { return src.(*User).Age, nil },
			"User.gender": func(ctx context.Context, src any, _ map[string]any) (any, error) { return src.(*User).Gender, nil },
			"User.totalCount": func(ctx context.Context, src any, _ map[string]any) (any, error) {
				return len(store.Todos(src.(*User).ID, "any")), nil
			},
			"User.todos": func(ctx context.Context, src any, args map[string]any) (any, error) {
				status, _ := args["status"].(string)
				if status == "" {
					status = "any"
				}
				todos := store.Todos(src.(*User).ID, status)
				items := make([]any, len(todos))
				for i, t := range todos {
					items[i] = t
				}
				return connection(items, args["first"])
			},
			"Todo.id": func(ctx context.Context, src any, _ map[string]any) (any, error) {
				return GlobalID("Todo", src.(*Todo).ID), nil
			},
			"Todo.text":     func(ctx context.Context, src any, _ map[string]any) (any, error) { return src.(*Todo).Text, nil },
			"Todo.complete": func(ctx context.Context, src any, _ map[string]any) (any, error) { return src.(*Todo).Complete, nil },
		},
	}
}

// LocalSchema resolves drafts and the draft fields of users.
func LocalSchema(store *Store) memlayer.Schema {
	return memlayer.Schema{
		TypeOf:     typeOf,
		Implements: implementsNode,
		Node: func(ctx context.Context, gid string) (any, error) {
			typeName, id, err := ParseGlobalID(gid)
			if err != nil {
				return nil, err
			}
			switch typeName {
			case "User":
				if u := store.User(id); u != nil {
					return u, nil
				}
			case "Draft":
				if d := store.Draft(id); d != nil {
					return d, nil
				}
			}
			return nil, nil
		},
		Resolvers: map[string]memlayer.Resolver{
			"Mutation.introduceDraft": func(ctx context.Context, _ any, args map[string]any) (any, error) {
				text, _ := args["text"].(string)
				return store.AddDraft(text, store.ViewerID()), nil
			},
			"User.id": userID,
			"User.drafts": func(ctx context.Context, src any, args map[string]any) (any, error) {
				drafts := store.Drafts(src.(*User).ID)
				items := make([]any, len(drafts))
				for i, d := range drafts {
					items[i] = d
				}
				return connection(items, args["first"])
			},
			"User.draftCount": func(ctx context.Context, src any, _ map[string]any) (any, error) {
				return len(store.Drafts(src.(*User).ID)), nil
			},
			"Draft.id": func(ctx context.Context, src any, _ map[string]any) (any, error) {
				return GlobalID("Draft", src.(*Draft).ID), nil
			},
			"Draft.text": func(ctx context.Context, src any, _ map[string]any) (any, error) { return src.(*Draft).Text, nil },
			"Draft.author": func(ctx context.Context, src any, _ map[string]any) (any, error) {
				return store.User(src.(*Draft).AuthorID), nil
			},
		},
	}
}

func userID(ctx context.Context, src any, _ map[string]any) (any, error) {
	return GlobalID("User", src.(*User).ID), nil
}

// connection slices items into a Relay connection. Cursors are the opaque
// "arrayconnection:<index>" form of graphql-relay.
func connection(items []any, first any) (map[string]any, error) {
	limit := len(items)
	if first != nil {
		n, err := toInt(first)
		if err != nil {
			return nil, fmt.Errorf("first: %w", err)
		}
		if n < 0 {
			return nil, fmt.Errorf("first must not be negative")
		}
		if n < limit {
			limit = n
		}
	}
	edges := make([]any, limit)
	for i := 0; i < limit; i++ {
		edges[i] = map[string]any{
			"cursor": base64.StdEncoding.EncodeToString([]byte("arrayconnection:" + strconv.Itoa(i))),
			"node":   items[i],
		}
	}
	return map[string]any{
		"edges": edges,
		"pageInfo": map[string]any{
			"hasNextPage":     limit < len(items),
			"hasPreviousPage": false,
		},
	}, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	}
	return 0, fmt.Errorf("not an integer: %v", v)
}
