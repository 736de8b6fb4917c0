package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	eventbus "github.com/hanpama/compositegraph/internal/eventbus"
	events "github.com/hanpama/compositegraph/internal/events"
	language "github.com/hanpama/compositegraph/internal/language"
	network "github.com/hanpama/compositegraph/internal/network"
	nodequery "github.com/hanpama/compositegraph/internal/nodequery"
	query "github.com/hanpama/compositegraph/internal/query"
	response "github.com/hanpama/compositegraph/internal/response"
	split "github.com/hanpama/compositegraph/internal/split"
)

// ErrUnknownSchema is returned when no layer is registered for a schema.
var ErrUnknownSchema = errors.New("executor: unknown schema")

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for merge diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

type Executor struct {
	layers map[string]network.Layer
	logger *zap.Logger
	seq    atomic.Uint64
}

// New returns an Executor sending each schema's queries to layers[schema].
func New(layers map[string]network.Layer, opts ...Option) *Executor {
	e := &Executor{layers: make(map[string]network.Layer, len(layers)), logger: zap.NewNop()}
	for name, l := range layers {
		e.layers[name] = l
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute resolves cr and settles cr.Request exactly once. It blocks until
// the request is settled.
func (e *Executor) Execute(ctx context.Context, cr *split.CompositeRequest) {
	r := &run{
		e:    e,
		id:   e.seq.Add(1),
		vars: cr.Request.Variables(),
		defs: variableDefinitions(cr.Request.Query()),
	}
	root := cr.Request.Query()
	start := time.Now()
	eventbus.Publish(ctx, events.CompositeStart{
		ID:        r.id,
		Operation: operationName(root),
		Field:     responseKey(root),
		Mutation:  cr.Mutation != nil,
		Schemas:   schemas(cr),
	})

	data, err := r.execute(ctx, cr)
	if err != nil {
		cr.Request.Reject(err)
	} else {
		cr.Request.Resolve(network.Response{Data: data})
	}

	eventbus.Publish(ctx, events.CompositeFinish{
		ID:       r.id,
		Field:    responseKey(root),
		Err:      err,
		Duration: time.Since(start),
	})
}

// run is the state of one request.
type run struct {
	e    *Executor
	id   uint64
	vars map[string]any
	defs language.VariableDefinitionList
}

type leg struct {
	schema    string
	query     query.Node
	vars      map[string]any
	mutation  bool
	dependent bool
}

func (r *run) execute(ctx context.Context, cr *split.CompositeRequest) (map[string]any, error) {
	var tree any
	if m := cr.Mutation; m != nil {
		var err error
		tree, err = r.resolve(ctx, leg{schema: m.Schema, query: m.Query, vars: r.vars, mutation: true}, m.Dependents)
		if err != nil {
			return nil, err
		}
	} else {
		trees := make([]any, len(cr.Queries))
		g, gctx := errgroup.WithContext(ctx)
		for i, q := range cr.Queries {
			i, q := i, q
			g.Go(func() error {
				t, err := r.resolve(gctx, leg{schema: q.Schema, query: q.Query, vars: r.vars}, q.Dependents)
				if err != nil {
					return err
				}
				trees[i] = t
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		tree = map[string]any{}
		for _, t := range trees {
			tree = response.Merge(tree, t, r.conflict)
		}
	}
	data, _ := tree.(map[string]any)
	return Project(data, cr.Request.Query()), nil
}

// resolve sends l and then resolves deps against its response.
func (r *run) resolve(ctx context.Context, l leg, deps []split.DependentSpec) (any, error) {
	data, err := r.send(ctx, l)
	if err != nil {
		return nil, err
	}
	return r.dependents(ctx, data, deps)
}

type target struct {
	path response.Path
	id   any
	dep  split.DependentSpec
}

func (r *run) dependents(ctx context.Context, tree any, deps []split.DependentSpec) (any, error) {
	var targets []target
	for _, d := range deps {
		for _, t := range response.NodesAtKey(tree, d.Path, d.Key()) {
			targets = append(targets, target{path: t.Path, id: t.ID, dep: d})
		}
	}
	if len(targets) == 0 {
		return tree, nil
	}

	results := make([]map[string]any, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			frag := t.dep.Fragment
			l := leg{
				schema:    frag.Schema,
				query:     nodequery.Build(frag.Type, frag.Children, r.defs, t.dep.Key()),
				vars:      nodequery.Variables(r.vars, t.id),
				dependent: true,
			}
			sub, err := r.resolve(gctx, l, reanchor(frag.Dependents))
			if err != nil {
				return err
			}
			if m, ok := sub.(map[string]any); ok {
				results[i], _ = nodequery.Object(m)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, t := range targets {
		if results[i] == nil {
			continue
		}
		tree = response.MergeAt(tree, t.path, results[i], r.conflict)
	}
	return tree, nil
}

// reanchor moves dependents relative to a fragment under the node field of
// the query that fetches it.
func reanchor(deps []split.DependentSpec) []split.DependentSpec {
	out := make([]split.DependentSpec, len(deps))
	for i, d := range deps {
		out[i] = d.WithPrefix(response.Key(nodequery.Field))
	}
	return out
}

func (r *run) send(ctx context.Context, l leg) (map[string]any, error) {
	layer, ok := r.e.layers[l.schema]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, l.schema)
	}
	id := r.e.seq.Add(1)
	start := time.Now()
	eventbus.Publish(ctx, events.LegStart{
		ID:        id,
		Composite: r.id,
		Schema:    l.schema,
		Query:     query.Outline(l.query),
		Mutation:  l.mutation,
		Dependent: l.dependent,
	})

	req := network.NewRequest(l.query, l.vars)
	var err error
	if l.mutation {
		err = layer.SendMutation(ctx, req)
	} else {
		err = layer.SendQueries(ctx, []*network.Request{req})
	}
	var resp network.Response
	if err == nil {
		resp, err = req.Wait(ctx)
	}

	eventbus.Publish(ctx, events.LegFinish{
		ID:        id,
		Composite: r.id,
		Schema:    l.schema,
		Err:       err,
		Duration:  time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return map[string]any{}, nil
	}
	return resp.Data, nil
}

func (r *run) conflict(path response.Path, prev, next any) {
	if n := len(path); n > 0 && !path[n-1].IsIndex() {
		switch path[n-1].Key() {
		case "id", query.IDAlias, "__typename":
			return
		}
	}
	r.e.logger.Warn("conflicting values while merging responses",
		zap.Uint64("request", r.id),
		zap.Stringer("path", path),
		zap.Any("old", prev),
		zap.Any("new", next),
	)
}

func variableDefinitions(n query.Node) language.VariableDefinitionList {
	switch n := n.(type) {
	case *query.Root:
		return n.Variables
	case *query.Mutation:
		return n.Variables
	}
	return nil
}

func operationName(n query.Node) string {
	switch n := n.(type) {
	case *query.Root:
		return n.OperationName
	case *query.Mutation:
		return n.OperationName
	}
	return ""
}

func responseKey(n query.Node) string {
	switch n := n.(type) {
	case *query.Root:
		return n.ResponseKey()
	case *query.Mutation:
		return n.ResponseKey()
	}
	return ""
}

func schemas(cr *split.CompositeRequest) []string {
	if cr.Mutation != nil {
		return []string{cr.Mutation.Schema}
	}
	out := make([]string, 0, len(cr.Queries))
	for _, q := range cr.Queries {
		out = append(out, q.Schema)
	}
	return out
}
