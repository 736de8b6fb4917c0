// Package memlayer is a network layer that evaluates query trees in process
// against Go resolvers. It serves schemas that live next to the composite
// layer, and stands in for remote backends in tests.
package memlayer

import (
	"context"
	"fmt"
	"reflect"

	language "github.com/hanpama/compositegraph/internal/language"
	network "github.com/hanpama/compositegraph/internal/network"
	query "github.com/hanpama/compositegraph/internal/query"
	response "github.com/hanpama/compositegraph/internal/response"
)

// Resolver produces the value of one field of source.
type Resolver func(ctx context.Context, source any, args map[string]any) (any, error)

// NodeResolver fetches an object by its global id. It returns nil when no
// object has that id.
type NodeResolver func(ctx context.Context, id string) (any, error)

// Schema describes how to evaluate queries.
type Schema struct {
	QueryType    string
	MutationType string
	// Resolvers are keyed "Type.field". Fields without a resolver read the
	// entry of the same name from map sources and are null otherwise.
	Resolvers map[string]Resolver
	// Node answers the node(id) field of the query type unless a resolver
	// is registered for it.
	Node NodeResolver
	// TypeOf returns the concrete type name of an object, or "" to use the
	// declared type. By default it reads "__typename" from map sources.
	TypeOf func(obj any) string
	// Implements lists the interfaces each object type implements.
	Implements map[string][]string
}

// Layer implements network.Layer for one Schema.
type Layer struct {
	name   string
	schema Schema
}

var _ network.Layer = (*Layer)(nil)

// New returns a layer reporting errors under name.
func New(name string, schema Schema) *Layer {
	if schema.QueryType == "" {
		schema.QueryType = "Query"
	}
	if schema.MutationType == "" {
		schema.MutationType = "Mutation"
	}
	if schema.TypeOf == nil {
		schema.TypeOf = func(obj any) string {
			if m, ok := obj.(map[string]any); ok {
				s, _ := m["__typename"].(string)
				return s
			}
			return ""
		}
	}
	return &Layer{name: name, schema: schema}
}

func (l *Layer) SendQueries(ctx context.Context, requests []*network.Request) error {
	for _, req := range requests {
		go l.settle(ctx, req)
	}
	return nil
}

func (l *Layer) SendMutation(ctx context.Context, request *network.Request) error {
	go l.settle(ctx, request)
	return nil
}

func (l *Layer) settle(ctx context.Context, req *network.Request) {
	data, err := l.Evaluate(ctx, req.Query(), req.Variables())
	if err != nil {
		req.Reject(err)
		return
	}
	req.Resolve(network.Response{Data: data})
}

// Evaluate runs root, a *query.Root or *query.Mutation, synchronously.
func (l *Layer) Evaluate(ctx context.Context, root query.Node, vars map[string]any) (map[string]any, error) {
	e := &evaluation{layer: l, vars: vars}
	var (
		parent, field, key string
		args               language.ArgumentList
	)
	switch r := root.(type) {
	case *query.Root:
		parent, field, key, args = l.schema.QueryType, r.FieldName, r.ResponseKey(), r.Arguments
	case *query.Mutation:
		parent, field, key, args = l.schema.MutationType, r.FieldName, r.ResponseKey(), r.Arguments
	default:
		return nil, fmt.Errorf("memlayer: cannot evaluate %T", root)
	}
	argValues, err := e.arguments(args)
	if err != nil {
		return nil, e.fail(response.Keys(key), err)
	}
	var v any
	if resolve, ok := l.schema.Resolvers[parent+"."+field]; ok {
		v, err = resolve(ctx, nil, argValues)
	} else if field == "node" && l.schema.Node != nil {
		id, _ := argValues["id"].(string)
		v, err = l.schema.Node(ctx, id)
	} else {
		err = fmt.Errorf("no resolver for %s.%s", parent, field)
	}
	if err != nil {
		return nil, e.fail(response.Keys(key), err)
	}
	completed, err := e.complete(ctx, root.DeclaredType(), root.Children(), v, response.Keys(key))
	if err != nil {
		return nil, err
	}
	return map[string]any{key: completed}, nil
}

type evaluation struct {
	layer *Layer
	vars  map[string]any
}

func (e *evaluation) fail(path response.Path, err error) error {
	return &network.Error{
		Schema: e.layer.name,
		Errors: language.ErrorList{{Message: fmt.Sprintf("%s: %v", path, err)}},
	}
}

func (e *evaluation) complete(ctx context.Context, declared string, sel []query.Node, v any, path response.Path) (any, error) {
	if v == nil || len(sel) == 0 {
		return v, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			item, err := e.complete(ctx, declared, sel, rv.Index(i).Interface(), path.Append(response.Index(i)))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	}
	typeName := e.layer.schema.TypeOf(v)
	if typeName == "" {
		typeName = declared
	}
	out := map[string]any{}
	if err := e.selections(ctx, typeName, sel, v, out, path); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *evaluation) selections(ctx context.Context, typeName string, sel []query.Node, source any, out map[string]any, path response.Path) error {
	for _, n := range sel {
		switch n := n.(type) {
		case *query.Field:
			ok, err := e.included(n.Directives)
			if err != nil {
				return e.fail(path, err)
			}
			if !ok {
				continue
			}
			key := n.ResponseKey()
			fieldPath := path.Append(response.Key(key))
			v, err := e.resolve(ctx, typeName, n, source)
			if err != nil {
				return e.fail(fieldPath, err)
			}
			completed, err := e.complete(ctx, n.DeclaredType(), n.Selections, v, fieldPath)
			if err != nil {
				return err
			}
			if prev, seen := out[key]; seen {
				completed = response.Merge(prev, completed, nil)
			}
			out[key] = completed
		case *query.Fragment:
			ok, err := e.included(n.Directives)
			if err != nil {
				return e.fail(path, err)
			}
			if !ok || !e.matches(typeName, n.TypeCondition) {
				continue
			}
			if err := e.selections(ctx, typeName, n.Selections, source, out, path); err != nil {
				return err
			}
		default:
			return e.fail(path, fmt.Errorf("unexpected %s node", n.Kind()))
		}
	}
	return nil
}

func (e *evaluation) resolve(ctx context.Context, typeName string, f *query.Field, source any) (any, error) {
	if f.Name == "__typename" {
		return typeName, nil
	}
	args, err := e.arguments(f.Arguments)
	if err != nil {
		return nil, err
	}
	if resolve, ok := e.layer.schema.Resolvers[typeName+"."+f.Name]; ok {
		return resolve(ctx, source, args)
	}
	if m, ok := source.(map[string]any); ok {
		return m[f.Name], nil
	}
	return nil, nil
}

func (e *evaluation) matches(typeName, condition string) bool {
	if typeName == condition {
		return true
	}
	for _, iface := range e.layer.schema.Implements[typeName] {
		if iface == condition {
			return true
		}
	}
	return false
}

func (e *evaluation) arguments(args language.ArgumentList) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, a := range args {
		v, err := a.Value.Value(e.vars)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", a.Name, err)
		}
		out[a.Name] = v
	}
	return out, nil
}

// included evaluates @skip and @include.
func (e *evaluation) included(dirs language.DirectiveList) (bool, error) {
	for _, d := range dirs {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		arg := d.Arguments.ForName("if")
		if arg == nil {
			continue
		}
		v, err := arg.Value.Value(e.vars)
		if err != nil {
			return false, err
		}
		b, _ := v.(bool)
		if d.Name == "skip" && b {
			return false, nil
		}
		if d.Name == "include" && !b {
			return false, nil
		}
	}
	return true, nil
}
