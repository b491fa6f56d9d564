package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/schema"
)

// Predicate is a compiled SQL fragment with its bound parameters.
// Placeholders are positional and start at the offset handed to
// CompileFrom.
type Predicate struct {
	SQL  string
	Args []any
}

// Compiler compiles filter trees against one table. Enum columns may
// carry an allow-list of labels used to validate bound values.
type Compiler struct {
	table *schema.Table
	enums map[string][]string
}

// NewCompiler returns a compiler for t. enums maps column names to the
// labels accepted for that column; a nil map skips label validation.
func NewCompiler(t *schema.Table, enums map[string][]string) *Compiler {
	return &Compiler{table: t, enums: enums}
}

// Compile renders the tree with placeholders starting at $1. A nil or
// empty node compiles to TRUE with no parameters.
func (c *Compiler) Compile(n *Node) (*Predicate, error) {
	return c.CompileFrom(n, 1)
}

// CompileFrom renders the tree with placeholders starting at $start,
// for callers splicing the predicate into a larger statement.
func (c *Compiler) CompileFrom(n *Node, start int) (*Predicate, error) {
	b := &builder{next: start}
	sql, err := c.node(b, n)
	if err != nil {
		return nil, err
	}
	return &Predicate{SQL: sql, Args: b.args}, nil
}

type builder struct {
	args []any
	next int
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	p := "$" + strconv.Itoa(b.next)
	b.next++
	return p
}

func (c *Compiler) node(b *builder, n *Node) (string, error) {
	if n.Empty() {
		return "TRUE", nil
	}
	parts := make([]string, 0, len(n.Leaves)+1)
	for _, l := range n.Leaves {
		s, err := c.leaf(b, l)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if n.Group != nil {
		s, err := c.group(b, n.Group)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " AND "), nil
}

func (c *Compiler) group(b *builder, g *Group) (string, error) {
	if len(g.Children) == 0 {
		if g.Op == GroupOr {
			return "FALSE", nil
		}
		return "TRUE", nil
	}
	sep := " AND "
	if g.Op == GroupOr {
		sep = " OR "
	}
	parts := make([]string, 0, len(g.Children))
	for _, child := range g.Children {
		s, err := c.node(b, child)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+s+")")
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

var cmpSQL = map[Op]string{
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

func (c *Compiler) leaf(b *builder, l Leaf) (string, error) {
	col, ok := c.table.Column(l.Column)
	if !ok {
		return "", fabrica.NewIssueError(l.Column, "unknown column")
	}
	ident := pq.QuoteIdentifier(col.Name)
	switch l.Op {
	case OpIs:
		return ident + " IS NULL", nil
	case OpIsNot:
		return ident + " IS NOT NULL", nil
	case OpEq:
		if l.Value == nil {
			return ident + " IS NULL", nil
		}
		return c.scalar(b, col, l, ident, "=")
	case OpNe:
		if l.Value == nil {
			return ident + " IS NOT NULL", nil
		}
		return c.scalar(b, col, l, ident, "<>")
	case OpGt, OpGte, OpLt, OpLte:
		if !col.Type.Comparable() {
			return "", fabrica.NewIssueError(leafPath(l), fmt.Sprintf("operator not supported for %s column", col.Type))
		}
		if l.Value == nil {
			return "", fabrica.NewIssueError(leafPath(l), "comparison value must not be null")
		}
		return c.scalar(b, col, l, ident, cmpSQL[l.Op])
	case OpLike, OpILike:
		if !col.Type.Textual() {
			return "", fabrica.NewIssueError(leafPath(l), "operator requires a text column")
		}
		pattern, ok := l.Value.(string)
		if !ok {
			return "", fabrica.NewIssueError(leafPath(l), "pattern must be a string")
		}
		kw := "LIKE"
		if l.Op == OpILike {
			kw = "ILIKE"
		}
		return ident + " " + kw + " " + b.bind(pattern), nil
	case OpIn, OpNin:
		return c.membership(b, col, l, ident)
	}
	return "", fabrica.NewIssueError(leafPath(l), "unknown operator")
}

func (c *Compiler) scalar(b *builder, col *schema.Column, l Leaf, ident, op string) (string, error) {
	v, cast, err := c.bindValue(col, l.Value, leafPath(l))
	if err != nil {
		return "", err
	}
	return ident + " " + op + " " + b.bind(v) + cast, nil
}

// membership renders $in/$nin as a single array parameter. Empty lists
// collapse to constant predicates before any parameter is bound.
func (c *Compiler) membership(b *builder, col *schema.Column, l Leaf, ident string) (string, error) {
	items := l.Value.([]any)
	if len(items) == 0 {
		if l.Op == OpNin {
			return "TRUE", nil
		}
		return "FALSE", nil
	}
	if !col.Type.Comparable() && col.Type != schema.TypeBool {
		return "", fabrica.NewIssueError(leafPath(l), fmt.Sprintf("operator not supported for %s column", col.Type))
	}
	vals := make([]any, len(items))
	for i, item := range items {
		if item == nil {
			return "", fabrica.NewIssueError(leafPath(l), "null is not allowed in the list; use $is")
		}
		v, _, err := c.bindValue(col, item, leafPath(l))
		if err != nil {
			return "", err
		}
		vals[i] = v
	}
	p := b.bind(pq.Array(vals)) + arrayCast(col)
	if l.Op == OpNin {
		return ident + " <> ALL(" + p + ")", nil
	}
	return ident + " = ANY(" + p + ")", nil
}

// bindValue checks a scalar against the column's semantic type and
// returns the driver value plus an optional cast suffix.
func (c *Compiler) bindValue(col *schema.Column, value any, path string) (any, string, error) {
	switch col.Type {
	case schema.TypeUUID:
		s, ok := value.(string)
		if !ok {
			return nil, "", fabrica.NewIssueError(path, "value must be a uuid string")
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, "", fabrica.NewIssueError(path, "value is not a valid uuid")
		}
		return s, "", nil
	case schema.TypeText:
		s, ok := value.(string)
		if !ok {
			return nil, "", fabrica.NewIssueError(path, "value must be a string")
		}
		return s, "", nil
	case schema.TypeEnum:
		s, ok := value.(string)
		if !ok {
			return nil, "", fabrica.NewIssueError(path, "value must be a string")
		}
		if labels := c.enums[col.Name]; len(labels) > 0 && !slices.Contains(labels, s) {
			return nil, "", fabrica.NewIssueError(path, "value must be one of "+strings.Join(labels, ", "))
		}
		return s, "", nil
	case schema.TypeInt:
		f, ok := value.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, "", fabrica.NewIssueError(path, "value must be an integer")
		}
		return int64(f), "", nil
	case schema.TypeFloat, schema.TypeNumeric:
		f, ok := value.(float64)
		if !ok {
			return nil, "", fabrica.NewIssueError(path, "value must be a number")
		}
		return f, "", nil
	case schema.TypeBool:
		v, ok := value.(bool)
		if !ok {
			return nil, "", fabrica.NewIssueError(path, "value must be a boolean")
		}
		return v, "", nil
	case schema.TypeTimestamp, schema.TypeDate:
		s, ok := value.(string)
		if !ok {
			return nil, "", fabrica.NewIssueError(path, "value must be a date/time string")
		}
		return s, "", nil
	case schema.TypeJSON:
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, "", fabrica.NewIssueError(path, "value is not valid json")
		}
		return string(raw), "::jsonb", nil
	default:
		return nil, "", fabrica.NewIssueError(path, fmt.Sprintf("filtering is not supported for %s columns", col.Type))
	}
}

func leafPath(l Leaf) string {
	return l.Column + "." + l.Op.String()
}

var castNames = map[schema.Type]string{
	schema.TypeUUID:      "uuid",
	schema.TypeText:      "text",
	schema.TypeInt:       "bigint",
	schema.TypeFloat:     "double precision",
	schema.TypeNumeric:   "numeric",
	schema.TypeBool:      "boolean",
	schema.TypeTimestamp: "timestamptz",
	schema.TypeDate:      "date",
}

// ArrayCast returns the parameter cast suffix for an array parameter
// bound against the column, e.g. "::uuid[]". The loader uses it for
// batched key lookups; $in/$nin use it internally.
func ArrayCast(col *schema.Column) string {
	return arrayCast(col)
}

// arrayCast returns the parameter cast for $in/$nin so the driver's
// array encoding resolves to the right element type.
func arrayCast(col *schema.Column) string {
	if col.Type == schema.TypeEnum && col.EnumType != "" {
		return "::" + pq.QuoteIdentifier(col.EnumType) + "[]"
	}
	if name, ok := castNames[col.Type]; ok {
		return "::" + name + "[]"
	}
	return ""
}
