// Package executor runs split requests against the network layers of their
// schemas and reassembles one response.
//
// # Overview
//
// A split request holds one or more composite queries (or a single composite
// mutation). Each is a query for one schema together with the dependents to
// resolve against its response. Execution is recursive:
//
//  1. The query is sent to the layer registered for its schema.
//  2. For every dependent, the response is scanned at the dependent's path.
//     List values on the way are expanded, so a path such as
//     viewer.drafts.author yields one target per draft, addressed by
//     viewer.drafts[i].author. Objects without an id are skipped.
//  3. Every target becomes a node(id) query against the dependent's schema.
//     All node queries of a level are launched before any is awaited; their
//     own dependents are resolved the same way, re-anchored under `node`.
//  4. Each node response is deep merged into the parent response at the
//     target's concrete path. Values from the dependent win on collision.
//
// When the sibling queries of a node lookup have all returned, their trees are
// deep merged and projected onto the selection of the original request, which
// drops the fields the splitter generated for its own bookkeeping.
//
// # Failure
//
// Any failing leg fails the whole request: the first error rejects the
// request, the context handed to the remaining legs is cancelled, and results
// arriving afterwards are discarded. There are no partial results and no
// retries.
//
// # Events
//
// CompositeStart/CompositeFinish are published once per request and
// LegStart/LegFinish once per network call, on the event bus carried by the
// context.
package executor
