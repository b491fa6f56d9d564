// Package include parses and validates include/expand specifications
// and enumerates relation paths for the emitter.
//
// An include spec is a JSON object mapping relation keys to either the
// literal true (include with defaults) or an options object:
//
//	{ "books": { "orderBy": "title", "limit": 3,
//	             "include": { "tags": true } } }
//
// Parsing enforces the structural rules; relation-key existence is
// checked later against the graph, at load time, because unknown keys
// degrade to empty defaults instead of failing the request.
package include

import (
	"fmt"
	"math"
	"sort"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/filter"
)

// MaxIncludeRows caps the per-edge limit option.
const MaxIncludeRows = 1000

// Node carries the options for one included relation. The zero Node is
// the parsed form of the JSON literal true.
type Node struct {
	Include Spec
	Limit   *int
	Offset  *int
	OrderBy []string
	Order   []string
	Select  []string
	Exclude []string
	Where   *filter.Node
}

// Spec maps relation keys to their include options.
type Spec map[string]*Node

// Depth returns the length of the longest nested include chain. An
// empty spec has depth 0.
func (s Spec) Depth() int {
	max := 0
	for _, n := range s {
		d := 1
		if n != nil {
			d += n.Include.Depth()
		}
		if d > max {
			max = d
		}
	}
	return max
}

// Keys returns the relation keys in sorted order.
func (s Spec) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse builds a Spec from a decoded JSON object and rejects trees
// deeper than maxDepth. A nil input parses to a nil Spec.
func Parse(in map[string]any, maxDepth int) (Spec, error) {
	if in == nil {
		return nil, nil
	}
	s, err := parseSpec(in, "include", maxDepth)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func parseSpec(in map[string]any, path string, depth int) (Spec, error) {
	if depth <= 0 {
		return nil, fabrica.NewIssueError(path, "include tree exceeds the maximum depth")
	}
	s := make(Spec, len(in))
	for key, v := range in {
		kpath := path + "." + key
		switch vv := v.(type) {
		case bool:
			if vv {
				s[key] = &Node{}
			}
		case map[string]any:
			n, err := parseNode(vv, kpath, depth)
			if err != nil {
				return nil, err
			}
			s[key] = n
		default:
			return nil, fabrica.NewIssueError(kpath, "must be true or an options object")
		}
	}
	return s, nil
}

func parseNode(in map[string]any, path string, depth int) (*Node, error) {
	n := &Node{}
	for key, v := range in {
		kpath := path + "." + key
		var err error
		switch key {
		case "include":
			obj, ok := v.(map[string]any)
			if !ok {
				return nil, fabrica.NewIssueError(kpath, "must be an object")
			}
			n.Include, err = parseSpec(obj, kpath, depth-1)
		case "limit":
			n.Limit, err = bounded(v, kpath, MaxIncludeRows)
		case "offset":
			n.Offset, err = bounded(v, kpath, math.MaxInt32)
		case "orderBy":
			n.OrderBy, err = stringList(v, kpath)
		case "order":
			n.Order, err = stringList(v, kpath)
		case "select":
			n.Select, err = stringList(v, kpath)
		case "exclude":
			n.Exclude, err = stringList(v, kpath)
		case "where":
			obj, ok := v.(map[string]any)
			if !ok {
				return nil, fabrica.NewIssueError(kpath, "must be an object")
			}
			n.Where, err = filter.Parse(obj)
		default:
			return nil, fabrica.NewIssueError(kpath, "unknown include option")
		}
		if err != nil {
			return nil, err
		}
	}
	if len(n.Select) > 0 && len(n.Exclude) > 0 {
		return nil, fabrica.NewIssueError(path, "select and exclude are mutually exclusive")
	}
	return n, nil
}

func bounded(v any, path string, max int) (*int, error) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return nil, fabrica.NewIssueError(path, "must be an integer")
	}
	i := int(f)
	if i < 0 {
		return nil, fabrica.NewIssueError(path, "must not be negative")
	}
	if i > max {
		return nil, fabrica.NewIssueError(path, fmt.Sprintf("must not exceed %d", max))
	}
	return &i, nil
}

func stringList(v any, path string) ([]string, error) {
	switch vv := v.(type) {
	case string:
		return []string{vv}, nil
	case []any:
		out := make([]string, len(vv))
		for i, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, fabrica.NewIssueError(fmt.Sprintf("%s[%d]", path, i), "must be a string")
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fabrica.NewIssueError(path, "must be a string or an array of strings")
	}
}
