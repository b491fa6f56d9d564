// Package filter parses and compiles the request predicate language.
//
// A filter is a JSON object mixing column leaves with at most one
// $and/$or group per level:
//
//	{ "name": { "$ilike": "%jane%" },
//	  "$or": [ { "pages": { "$gte": 100 } }, { "pages": null } ] }
//
// Parse builds a tagged tree and rejects unknown operators, malformed
// groups, and over-deep nesting. Compile renders the tree against one
// table into a parameterized SQL fragment: identifiers are quoted and
// checked against the table's column set, values only ever appear as
// bound parameters.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/syssam/fabrica"
)

// Op enumerates the leaf operators of the wire format.
type Op uint8

const (
	OpEq Op = iota + 1
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNin
	OpLike
	OpILike
	OpIs
	OpIsNot
)

var opTokens = map[string]Op{
	"$eq":    OpEq,
	"$ne":    OpNe,
	"$gt":    OpGt,
	"$gte":   OpGte,
	"$lt":    OpLt,
	"$lte":   OpLte,
	"$in":    OpIn,
	"$nin":   OpNin,
	"$like":  OpLike,
	"$ilike": OpILike,
	"$is":    OpIs,
	"$isNot": OpIsNot,
}

var opNames = [...]string{
	OpEq:    "$eq",
	OpNe:    "$ne",
	OpGt:    "$gt",
	OpGte:   "$gte",
	OpLt:    "$lt",
	OpLte:   "$lte",
	OpIn:    "$in",
	OpNin:   "$nin",
	OpLike:  "$like",
	OpILike: "$ilike",
	OpIs:    "$is",
	OpIsNot: "$isNot",
}

// String returns the wire token of the operator.
func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", op)
}

// GroupOp is the logical connective of a group.
type GroupOp uint8

const (
	GroupAnd GroupOp = iota + 1
	GroupOr
)

// String returns the wire token of the connective.
func (op GroupOp) String() string {
	if op == GroupOr {
		return "$or"
	}
	return "$and"
}

// Leaf is a single column predicate.
type Leaf struct {
	Column string
	Op     Op
	Value  any
}

// Group combines child filters with AND or OR. An empty $and matches
// everything, an empty $or matches nothing.
type Group struct {
	Op       GroupOp
	Children []*Node
}

// Node is one level of the filter tree: column leaves joined with an
// implicit AND, plus at most one group.
type Node struct {
	Leaves []Leaf
	Group  *Group
}

// Empty reports whether the node constrains nothing.
func (n *Node) Empty() bool {
	return n == nil || (len(n.Leaves) == 0 && n.Group == nil)
}

// maxGroupDepth caps $and/$or nesting.
const maxGroupDepth = 2

// Parse turns a decoded JSON filter object into a Node. Structural
// rules are enforced here: operator tokens come from the closed set,
// $is/$isNot accept only null, $in/$nin require arrays, groups hold
// objects and nest at most two levels. Column existence and value
// types are checked at compile time, when a table is known.
//
// Keys are processed in sorted order so the compiled SQL is stable for
// identical inputs.
func Parse(in map[string]any) (*Node, error) {
	if in == nil {
		return nil, nil
	}
	return parseNode(in, "", 0)
}

func parseNode(in map[string]any, path string, depth int) (*Node, error) {
	n := &Node{}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := in[k]
		switch {
		case k == "$and" || k == "$or":
			if n.Group != nil {
				return nil, fabrica.NewIssueError(joinPath(path, k), "at most one $and/$or group per level")
			}
			if depth >= maxGroupDepth {
				return nil, fabrica.NewIssueError(joinPath(path, k), "groups nest too deeply")
			}
			g, err := parseGroup(k, v, joinPath(path, k), depth+1)
			if err != nil {
				return nil, err
			}
			n.Group = g
		case strings.HasPrefix(k, "$"):
			return nil, fabrica.NewIssueError(joinPath(path, k), "unknown operator")
		default:
			leaves, err := parseLeaf(k, v, joinPath(path, k))
			if err != nil {
				return nil, err
			}
			n.Leaves = append(n.Leaves, leaves...)
		}
	}
	return n, nil
}

func parseGroup(token string, v any, path string, depth int) (*Group, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fabrica.NewIssueError(path, "group value must be an array")
	}
	op := GroupAnd
	if token == "$or" {
		op = GroupOr
	}
	g := &Group{Op: op, Children: make([]*Node, 0, len(items))}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fabrica.NewIssueError(fmt.Sprintf("%s[%d]", path, i), "group item must be an object")
		}
		child, err := parseNode(obj, fmt.Sprintf("%s[%d]", path, i), depth)
		if err != nil {
			return nil, err
		}
		g.Children = append(g.Children, child)
	}
	return g, nil
}

// parseLeaf expands one column key. A plain value means equality; an
// object must carry operator tokens only, one leaf per token.
func parseLeaf(column string, v any, path string) ([]Leaf, error) {
	obj, isObj := v.(map[string]any)
	if !isObj {
		return []Leaf{{Column: column, Op: OpEq, Value: v}}, nil
	}
	if len(obj) == 0 {
		return nil, fabrica.NewIssueError(path, "empty operator object")
	}
	tokens := make([]string, 0, len(obj))
	for tok := range obj {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	leaves := make([]Leaf, 0, len(tokens))
	for _, tok := range tokens {
		op, ok := opTokens[tok]
		if !ok {
			return nil, fabrica.NewIssueError(path+"."+tok, "unknown operator")
		}
		val := obj[tok]
		switch op {
		case OpIs, OpIsNot:
			if val != nil {
				return nil, fabrica.NewIssueError(path+"."+tok, "operator accepts only null")
			}
		case OpIn, OpNin:
			if _, ok := val.([]any); !ok {
				return nil, fabrica.NewIssueError(path+"."+tok, "operator requires an array")
			}
		}
		leaves = append(leaves, Leaf{Column: column, Op: op, Value: val})
	}
	return leaves, nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
