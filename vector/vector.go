// Package vector extends list queries with similarity search over
// pgvector columns. A request names a vector column, a query vector
// and a metric; the compiled clause projects the distance as the
// _distance column, orders ascending by it, and optionally bounds it
// with a threshold predicate that AND-combines with the row filter.
package vector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/schema"
)

// DistanceColumn is the name of the projected distance in result rows.
const DistanceColumn = "_distance"

// Metric selects the distance operator.
type Metric string

const (
	Cosine Metric = "cosine" // <=>
	L2     Metric = "l2"     // <->
	Inner  Metric = "inner"  // <#> (negated inner product)
)

var operators = map[Metric]string{
	Cosine: "<=>",
	L2:     "<->",
	Inner:  "<#>",
}

// Spec is the wire-level vector search description attached to a list
// request.
type Spec struct {
	Field       string    `json:"field"`
	Query       []float64 `json:"query"`
	Metric      Metric    `json:"metric,omitempty"`
	MaxDistance *float64  `json:"maxDistance,omitempty"`
}

// Clause carries the SQL pieces a list query splices in. The query
// vector is bound once; Projection and Where reference the same
// placeholder.
type Clause struct {
	// Projection is added to the select list and aliases the distance
	// expression as _distance.
	Projection string
	// Where is the threshold predicate, empty when MaxDistance is not
	// set.
	Where string
	// OrderBy orders ascending by the projected distance.
	OrderBy string
	Args    []any
}

// Compile validates the spec against the table and renders the clause
// with placeholders starting at $start. An unset metric defaults to
// cosine.
func Compile(t *schema.Table, s *Spec, start int) (*Clause, error) {
	if s == nil {
		return nil, nil
	}
	col, ok := t.Column(s.Field)
	if !ok {
		return nil, fabrica.NewIssueError("field", fmt.Sprintf("unknown column %q", s.Field))
	}
	if col.Type != schema.TypeVector {
		return nil, fabrica.NewIssueError("field", fmt.Sprintf("column %q is not a vector column", s.Field))
	}
	if len(s.Query) == 0 {
		return nil, fabrica.NewIssueError("query", "query vector must not be empty")
	}
	if col.VectorDim > 0 && len(s.Query) != col.VectorDim {
		return nil, fabrica.NewIssueError("query", fmt.Sprintf("expected %d dimensions, got %d", col.VectorDim, len(s.Query)))
	}
	metric := s.Metric
	if metric == "" {
		metric = Cosine
	}
	op, ok := operators[metric]
	if !ok {
		return nil, fabrica.NewIssueError("metric", `must be "cosine", "l2" or "inner"`)
	}

	expr := fmt.Sprintf("%s %s $%d::vector", pq.QuoteIdentifier(col.Name), op, start)
	c := &Clause{
		Projection: expr + " AS " + DistanceColumn,
		OrderBy:    DistanceColumn + " ASC",
		Args:       []any{Literal(s.Query)},
	}
	if s.MaxDistance != nil {
		c.Where = fmt.Sprintf("(%s) <= $%d", expr, start+1)
		c.Args = append(c.Args, *s.MaxDistance)
	}
	return c, nil
}

// Literal renders a query vector in pgvector's text format, e.g.
// [1,0.5,0].
func Literal(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Parse converts float text emitted by the server back into a slice.
// Vector columns scan as strings; result rows surface them as number
// arrays.
func Parse(s string) ([]float64, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, false
	}
	body := s[1 : len(s)-1]
	if strings.TrimSpace(body) == "" {
		return []float64{}, true
	}
	parts := strings.Split(body, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
