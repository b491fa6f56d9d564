package filter

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/schema"
)

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// ParseOrder validates orderBy/order against the table. orderBy is a
// column name or an array of names; order is "asc"/"desc" or an array
// aligned positionally with orderBy. A scalar order applies to every
// column. Unknown columns and columns whose type has no total order
// (json, bytea, arrays, vectors) are rejected.
func ParseOrder(t *schema.Table, orderBy, order any) ([]Order, error) {
	if orderBy == nil {
		if order != nil {
			return nil, fabrica.NewIssueError("order", "order requires orderBy")
		}
		return nil, nil
	}
	cols, err := stringList(orderBy, "orderBy")
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}
	descs, err := directions(order, len(cols))
	if err != nil {
		return nil, err
	}
	out := make([]Order, len(cols))
	for i, name := range cols {
		col, ok := t.Column(name)
		if !ok {
			return nil, fabrica.NewIssueError("orderBy", fmt.Sprintf("unknown column %q", name))
		}
		if !col.Type.Orderable() {
			return nil, fabrica.NewIssueError("orderBy", fmt.Sprintf("cannot order by %s column %q", col.Type, name))
		}
		out[i] = Order{Column: name, Desc: descs[i]}
	}
	return out, nil
}

// OrderSQL renders the ORDER BY column list with quoted identifiers.
// Empty input renders to the empty string.
func OrderSQL(orders []Order) string {
	if len(orders) == 0 {
		return ""
	}
	parts := make([]string, len(orders))
	for i, o := range orders {
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		parts[i] = pq.QuoteIdentifier(o.Column) + dir
	}
	return strings.Join(parts, ", ")
}

func stringList(v any, path string) ([]string, error) {
	switch vv := v.(type) {
	case string:
		return []string{vv}, nil
	case []string:
		return vv, nil
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

func directions(order any, n int) ([]bool, error) {
	descs := make([]bool, n)
	switch ov := order.(type) {
	case nil:
	case string:
		desc, err := direction(ov, "order")
		if err != nil {
			return nil, err
		}
		for i := range descs {
			descs[i] = desc
		}
	case []any:
		if len(ov) != n {
			return nil, fabrica.NewIssueError("order", "order array must align with orderBy")
		}
		for i, item := range ov {
			s, ok := item.(string)
			if !ok {
				return nil, fabrica.NewIssueError(fmt.Sprintf("order[%d]", i), "must be a string")
			}
			desc, err := direction(s, fmt.Sprintf("order[%d]", i))
			if err != nil {
				return nil, err
			}
			descs[i] = desc
		}
	default:
		return nil, fabrica.NewIssueError("order", "must be \"asc\", \"desc\" or an array of those")
	}
	return descs, nil
}

func direction(s, path string) (bool, error) {
	switch s {
	case "asc":
		return false, nil
	case "desc":
		return true, nil
	default:
		return false, fabrica.NewIssueError(path, "must be \"asc\" or \"desc\"")
	}
}
