// Package graph classifies a schema.Model into the navigable relation
// graph the include system is built on.
//
// # Graph Structure
//
// A Graph maps each table name to its relation map, keyed by relation
// name:
//
//	type Graph map[string]map[string]Edge
//
// # Edge Kinds
//
// Every directed relation between two tables is an Edge of kind One or
// Many:
//
//   - belongs-to: child -> parent, kind One, keyed singular(parent)
//   - has-one:    parent -> child with a unique FK, kind One, keyed
//     singular(child)
//   - has-many:   parent -> child, kind Many, keyed plural(child)
//   - many-to-many: parent -> parent through a junction table, kind
//     Many, annotated with the junction
//
// # Junction Detection
//
// A table is classified as a junction when it has exactly two foreign
// keys to two distinct parents and either its primary key equals the
// union of the two foreign-key column sets, or a unique index covers
// that same set. Junctions are flagged on the Model, suppressed from
// the public graph, and replaced by one M:N edge in each direction.
//
// # Relation Keys
//
// Keys derive from target table names: a singularization rule for One
// edges, a pluralization rule for Many edges. When two foreign keys
// would derive the same key inside one source table, later claimants
// get a deterministic "_by_<fk-column>" suffix; the rule is stable
// across runs. Naming sits behind the Namer interface so non-English
// schemas can swap the heuristic out.
//
// # Usage
//
//	g, err := graph.Build(model, graph.DefaultNamer())
//	if err != nil {
//	    return err
//	}
//	for key, edge := range g.Relations("authors") {
//	    // key: "books", edge.Kind: graph.Many, ...
//	}
package graph
