package executor

import (
	query "github.com/hanpama/compositegraph/internal/query"
	response "github.com/hanpama/compositegraph/internal/response"
)

// Project returns the part of data selected by root, a *query.Root or
// *query.Mutation. Keys the selection does not name are dropped. A field
// selected outside any fragment and without directives is present in the
// result even when data lacks it, as null. The same holds for root, unless
// @skip or @include may have left it out.
func Project(data map[string]any, root query.Node) map[string]any {
	out := map[string]any{}
	key := responseKey(root)
	if key == "" {
		return out
	}
	v, ok := data[key]
	if !ok && query.Conditional(root) {
		return out
	}
	out[key] = projectValue(v, root.Children())
	return out
}

func projectValue(v any, sel []query.Node) any {
	if len(sel) == 0 {
		return v
	}
	switch response.KindOf(v) {
	case response.Sequence:
		list := v.([]any)
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = projectValue(item, sel)
		}
		return out
	case response.Mapping:
		out := map[string]any{}
		projectObject(v.(map[string]any), sel, out, false)
		return out
	}
	return v
}

func projectObject(obj map[string]any, sel []query.Node, out map[string]any, conditional bool) {
	for _, n := range sel {
		switch n := n.(type) {
		case *query.Field:
			if n.Generated {
				continue
			}
			key := n.ResponseKey()
			v, ok := obj[key]
			if !ok {
				if _, seen := out[key]; !seen && !conditional && len(n.Directives) == 0 {
					out[key] = nil
				}
				continue
			}
			pv := projectValue(v, n.Selections)
			if prev, seen := out[key]; seen && prev != nil {
				out[key] = response.Merge(prev, pv, nil)
			} else {
				out[key] = pv
			}
		case *query.Fragment:
			projectObject(obj, n.Selections, out, true)
		}
	}
}
