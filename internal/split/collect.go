package split

import (
	query "github.com/hanpama/compositegraph/internal/query"
	response "github.com/hanpama/compositegraph/internal/response"
)

type bucket struct {
	schema     string
	nodes      []query.Node
	dependents []DependentSpec
}

type collected struct {
	children   []query.Node
	dependents []DependentSpec
}

// group classifies children and groups them by owning schema in encounter
// order.
func group(children []query.Node, sc scope) ([]*bucket, error) {
	var buckets []*bucket
	index := map[string]*bucket{}
	for _, child := range children {
		c, err := classify(child, sc)
		if err != nil {
			return nil, err
		}
		b := index[c.schema]
		if b == nil {
			b = &bucket{schema: c.schema}
			index[c.schema] = b
			buckets = append(buckets, b)
		}
		b.nodes = append(b.nodes, c.node)
		b.dependents = append(b.dependents, c.dependents...)
	}
	return buckets, nil
}

// collect keeps the children owned by the current schema and turns every
// other schema's children into one dependent fetched at the current object.
// When a dependent is produced the current object must expose its id, so a
// generated id field is added unless the client already selects it. If the
// client serializes another field under `id`, the generated one is aliased.
func collect(children []query.Node, sc scope) (collected, error) {
	buckets, err := group(children, sc)
	if err != nil {
		return collected{}, err
	}
	var out collected
	var foreign []int // indexes into out.dependents
	for _, b := range buckets {
		if b.schema == sc.schema {
			out.children = append(out.children, b.nodes...)
			out.dependents = append(out.dependents, b.dependents...)
			continue
		}
		foreign = append(foreign, len(out.dependents))
		out.dependents = append(out.dependents, DependentSpec{
			Path: response.Path{},
			Fragment: SchemaFragment{
				Type:       sc.parentType,
				Schema:     b.schema,
				Children:   b.nodes,
				Dependents: b.dependents,
			},
		})
	}
	if len(foreign) == 0 {
		return out, nil
	}

	idKey := "id"
	switch {
	case query.HasResponseKey(out.children, "id"):
	case query.KeyInUse(out.children, "id"):
		idKey = query.IDAlias
		if !query.Selects(out.children, idKey, "id") {
			out.children = append(out.children, query.NewAliasedField(idKey, "id", "ID"))
		}
	default:
		out.children = append(out.children, query.NewField("id", "ID"))
	}
	for _, i := range foreign {
		out.dependents[i].IDKey = idKey
	}
	return out, nil
}
