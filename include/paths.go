package include

import (
	"sort"

	"github.com/syssam/fabrica/graph"
)

// Path is one navigable relation chain from a root table, expressed as
// relation keys in order.
type Path []string

// Paths enumerates every relation path reachable from root, up to
// depth steps long. A step that would revisit a table already on the
// current path is cut, so cyclic schemas terminate for any depth. The
// result is sorted lexicographically and is deterministic for a given
// graph.
func Paths(g graph.Graph, root string, depth int) []Path {
	var out []Path
	walk(g, root, depth, nil, []string{root}, &out)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func walk(g graph.Graph, table string, depth int, prefix Path, onPath []string, out *[]Path) {
	if depth <= 0 {
		return
	}
	for _, key := range g.RelationKeys(table) {
		edge := g[table][key]
		if visited(onPath, edge.To) {
			continue
		}
		p := append(append(Path{}, prefix...), key)
		*out = append(*out, p)
		walk(g, edge.To, depth-1, p, append(onPath, edge.To), out)
	}
}

func visited(onPath []string, table string) bool {
	for _, t := range onPath {
		if t == table {
			return true
		}
	}
	return false
}

func less(a, b Path) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Tree converts a set of paths back into a boolean include spec, used
// by generated ListWith<Rel> client methods to request entire chains.
func Tree(paths []Path) Spec {
	s := Spec{}
	for _, p := range paths {
		cur := s
		for _, key := range p {
			n, ok := cur[key]
			if !ok {
				n = &Node{}
				cur[key] = n
			}
			if n.Include == nil {
				n.Include = Spec{}
			}
			cur = n.Include
		}
	}
	return s
}
