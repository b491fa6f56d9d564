package graph

import (
	"fmt"
	"sort"
)

// Kind is the cardinality of an edge as seen from its source table.
type Kind uint8

const (
	// One means the relation resolves to at most one row (belongs-to,
	// has-one). Attached values are an object or null.
	One Kind = iota + 1
	// Many means the relation resolves to a list (has-many, M:N).
	// Attached values are an array, possibly empty.
	Many
)

// String returns "one" or "many".
func (k Kind) String() string {
	switch k {
	case One:
		return "one"
	case Many:
		return "many"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler for contract output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "one":
		*k = One
	case "many":
		*k = Many
	default:
		return fmt.Errorf("graph: unknown edge kind %q", text)
	}
	return nil
}

// Edge is one directed relation between two tables. The column slices
// describe the join the loader executes:
//
//   - Direct edges (no junction): LocalColumns on From pair with
//     ForeignColumns on To. For a belongs-to edge the local side holds
//     the FK columns; for has-one/has-many the local side holds the
//     referenced key columns and the foreign side holds the FK.
//   - M:N edges: LocalColumns (on From) pair with JunctionLocal, and
//     JunctionForeign pairs with ForeignColumns (on To).
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind Kind   `json:"kind"`

	LocalColumns   []string `json:"localColumns"`
	ForeignColumns []string `json:"foreignColumns"`

	Junction        string   `json:"junction,omitempty"`
	JunctionLocal   []string `json:"junctionLocal,omitempty"`
	JunctionForeign []string `json:"junctionForeign,omitempty"`

	// FK is the constraint that produced the edge; M:N edges record the
	// junction's far-side constraint.
	FK string `json:"fk,omitempty"`
}

// M2M reports whether the edge goes through a junction table.
func (e Edge) M2M() bool {
	return e.Junction != ""
}

// Graph maps table name to relation key to Edge. Junction tables have
// no entry and never appear as an edge endpoint.
type Graph map[string]map[string]Edge

// Relations returns the relation map for a table; nil when the table
// has no edges or is a junction.
func (g Graph) Relations(table string) map[string]Edge {
	return g[table]
}

// Edge returns the edge for a relation key on a table.
func (g Graph) Edge(table, key string) (Edge, bool) {
	e, ok := g[table][key]
	return e, ok
}

// RelationKeys returns a table's relation keys sorted for deterministic
// iteration.
func (g Graph) RelationKeys(table string) []string {
	rels := g[table]
	keys := make([]string, 0, len(rels))
	for k := range rels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tables returns all tables that carry at least one edge, sorted.
func (g Graph) Tables() []string {
	tables := make([]string, 0, len(g))
	for t := range g {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

func (g Graph) add(table, key string, e Edge) {
	if g[table] == nil {
		g[table] = make(map[string]Edge)
	}
	g[table][key] = e
}
