package graph

import (
	"fmt"

	"github.com/syssam/fabrica/schema"
)

// Build classifies every foreign key in the model into graph edges.
// It validates the model first, then runs junction detection as a
// post-pass that sets the Junction flag on the model's tables, and
// finally derives edges with deterministic relation keys. A nil namer
// falls back to DefaultNamer.
//
// Junction tables are suppressed from the returned graph: they carry
// no relation map of their own, and no direct edge points at them.
// Their two foreign keys surface as a pair of many-to-many edges
// between the two parents instead.
func Build(m *schema.Model, namer Namer) (Graph, error) {
	if namer == nil {
		namer = DefaultNamer()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	DetectJunctions(m)

	junction := make(map[string]bool, len(m.Tables))
	for _, t := range m.Tables {
		if t.Junction {
			junction[t.Name] = true
		}
	}

	cands := make(map[string][]candidate, len(m.Tables))
	push := func(src string, c candidate) {
		cands[src] = append(cands[src], c)
	}
	for _, t := range m.Tables {
		if t.Junction {
			a, b := t.ForeignKeys[0], t.ForeignKeys[1]
			if junction[a.RefTable] || junction[b.RefTable] {
				continue
			}
			push(a.RefTable, candidate{
				key:   namer.Pluralize(b.RefTable),
				byCol: b.Columns[0],
				edge: Edge{
					From:            a.RefTable,
					To:              b.RefTable,
					Kind:            Many,
					LocalColumns:    a.RefColumns,
					ForeignColumns:  b.RefColumns,
					Junction:        t.Name,
					JunctionLocal:   a.Columns,
					JunctionForeign: b.Columns,
					FK:              b.Name,
				},
			})
			push(b.RefTable, candidate{
				key:   namer.Pluralize(a.RefTable),
				byCol: a.Columns[0],
				edge: Edge{
					From:            b.RefTable,
					To:              a.RefTable,
					Kind:            Many,
					LocalColumns:    b.RefColumns,
					ForeignColumns:  a.RefColumns,
					Junction:        t.Name,
					JunctionLocal:   b.Columns,
					JunctionForeign: a.Columns,
					FK:              a.Name,
				},
			})
			continue
		}
		for _, fk := range t.ForeignKeys {
			if junction[fk.RefTable] {
				continue
			}
			push(t.Name, candidate{
				key:   namer.Singularize(fk.RefTable),
				byCol: fk.Columns[0],
				edge: Edge{
					From:           t.Name,
					To:             fk.RefTable,
					Kind:           One,
					LocalColumns:   fk.Columns,
					ForeignColumns: fk.RefColumns,
					FK:             fk.Name,
				},
			})
			reverse := Edge{
				From:           fk.RefTable,
				To:             t.Name,
				Kind:           Many,
				LocalColumns:   fk.RefColumns,
				ForeignColumns: fk.Columns,
				FK:             fk.Name,
			}
			key := namer.Pluralize(t.Name)
			if t.UniqueCovers(fk.Columns) {
				reverse.Kind = One
				key = namer.Singularize(t.Name)
			}
			push(fk.RefTable, candidate{key: key, byCol: fk.Columns[0], edge: reverse})
		}
	}

	g := make(Graph, len(m.Tables))
	for _, t := range m.Tables {
		if t.Junction {
			continue
		}
		g[t.Name] = map[string]Edge{}
		for _, c := range cands[t.Name] {
			g.add(t.Name, claim(g[t.Name], c), c.edge)
		}
	}
	return g, nil
}

// DetectJunctions flags every table matching the junction shape:
// exactly two foreign keys to two distinct parents, with a primary
// key or unique index over exactly the union of the two foreign-key
// column sets. Extra payload columns do not disqualify a table.
func DetectJunctions(m *schema.Model) {
	for _, t := range m.Tables {
		t.Junction = isJunction(t)
	}
}

func isJunction(t *schema.Table) bool {
	if len(t.ForeignKeys) != 2 {
		return false
	}
	a, b := t.ForeignKeys[0], t.ForeignKeys[1]
	if a.RefTable == b.RefTable {
		return false
	}
	seen := make(map[string]bool, len(a.Columns)+len(b.Columns))
	union := make([]string, 0, len(a.Columns)+len(b.Columns))
	for _, cols := range [][]string{a.Columns, b.Columns} {
		for _, c := range cols {
			if !seen[c] {
				seen[c] = true
				union = append(union, c)
			}
		}
	}
	return t.UniqueCovers(union)
}

// candidate is an edge waiting for its relation key. Edges are pushed
// in model order, so key assignment is stable across runs.
type candidate struct {
	key   string
	byCol string
	edge  Edge
}

// claim resolves the relation key for c within rels. The first edge
// wanting a key gets it bare; later claimants append _by_<fk-column>,
// then a numeric suffix for pathological overlaps.
func claim(rels map[string]Edge, c candidate) string {
	if _, taken := rels[c.key]; !taken {
		return c.key
	}
	key := c.key + "_by_" + c.byCol
	for i := 2; ; i++ {
		if _, taken := rels[key]; !taken {
			return key
		}
		key = fmt.Sprintf("%s_by_%s_%d", c.key, c.byCol, i)
	}
}
