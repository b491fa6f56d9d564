package loader

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"

	dialectsql "github.com/syssam/fabrica/dialect/sql"
	"github.com/syssam/fabrica/filter"
	"github.com/syssam/fabrica/graph"
	"github.com/syssam/fabrica/include"
	"github.com/syssam/fabrica/schema"
)

// Internal columns added by window queries, stripped before stitching.
const (
	rankColumn     = "_rn"
	parentKeyAlias = "_pk"
)

// planKind tags the four edge shapes. belongsTo and hasOne execute
// identically (batch by the local key tuple, index children by the
// foreign tuple, attach at most one); they stay distinct so the
// dispatch reads like the relation model.
type planKind uint8

const (
	belongsTo planKind = iota + 1
	hasOne
	hasMany
	manyToMany
)

type edgePlan struct {
	kind   planKind
	key    string
	edge   graph.Edge
	node   *include.Node
	target *schema.Table

	orders []filter.Order
}

func classify(edge graph.Edge, from *schema.Table) planKind {
	switch {
	case edge.M2M():
		return manyToMany
	case edge.Kind == graph.Many:
		return hasMany
	default:
		// A one edge whose local columns form a foreign key on the
		// source table is a belongs-to; otherwise the unique FK lives
		// on the target and this is a has-one.
		for _, fk := range from.ForeignKeys {
			if fk.Name == edge.FK && fk.RefTable == edge.To {
				return belongsTo
			}
		}
		return hasOne
	}
}

// loadEdge executes one edge for all parents and attaches the results.
// It returns the fetched child rows so the walker can recurse.
func (l *Loader) loadEdge(ctx context.Context, key string, edge graph.Edge, node *include.Node, parents []map[string]any) ([]map[string]any, error) {
	from, ok := l.model.Table(edge.From)
	if !ok {
		return nil, fmt.Errorf("unknown source table %q", edge.From)
	}
	target, ok := l.model.Table(edge.To)
	if !ok {
		return nil, fmt.Errorf("unknown target table %q", edge.To)
	}
	plan := &edgePlan{kind: classify(edge, from), key: key, edge: edge, node: node, target: target}
	if err := plan.prepare(); err != nil {
		return nil, err
	}

	tuples, values := distinctTuples(parents, edge.LocalColumns)
	if len(tuples) == 0 {
		attachEmpty(parents, key, edge.Kind)
		return nil, nil
	}

	if plan.kind == manyToMany {
		return l.loadManyToMany(ctx, plan, parents, tuples, values)
	}
	return l.loadDirect(ctx, plan, parents, tuples, values)
}

// prepare validates the per-edge options against the target table.
func (p *edgePlan) prepare() error {
	if p.node == nil {
		return nil
	}
	var orderBy, order any
	if len(p.node.OrderBy) > 0 {
		orderBy = toAnyList(p.node.OrderBy)
	}
	if len(p.node.Order) > 0 {
		order = toAnyList(p.node.Order)
	}
	orders, err := filter.ParseOrder(p.target, orderBy, order)
	if err != nil {
		return err
	}
	p.orders = orders
	return nil
}

func toAnyList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// paginated reports whether the plan needs the per-parent window.
func (p *edgePlan) paginated() bool {
	if p.node == nil || (p.kind != hasMany && p.kind != manyToMany) {
		return false
	}
	return p.node.Limit != nil || p.node.Offset != nil
}

// orderSQL renders the requested ordering, defaulting to the target
// primary key so attachment order is stable without one.
func (p *edgePlan) orderSQL() string {
	if len(p.orders) > 0 {
		return filter.OrderSQL(p.orders)
	}
	pk := make([]filter.Order, len(p.target.PrimaryKey))
	for i, col := range p.target.PrimaryKey {
		pk[i] = filter.Order{Column: col}
	}
	return filter.OrderSQL(pk)
}

// compileWhere renders the node's filter with parameters starting at
// next. Returns an empty predicate when there is no filter.
func (p *edgePlan) compileWhere(m *schema.Model, next int) (*filter.Predicate, error) {
	if p.node == nil || p.node.Where.Empty() {
		return &filter.Predicate{}, nil
	}
	c := filter.NewCompiler(p.target, enumsFor(m, p.target))
	return c.CompileFrom(p.node.Where, next)
}

func enumsFor(m *schema.Model, t *schema.Table) map[string][]string {
	var enums map[string][]string
	for i := range t.Columns {
		if labels := m.EnumLabels(&t.Columns[i]); len(labels) > 0 {
			if enums == nil {
				enums = make(map[string][]string)
			}
			enums[t.Columns[i].Name] = labels
		}
	}
	return enums
}

// keyPredicate renders the batched membership test for the key tuples.
// Single-column keys bind one array parameter; composite keys expand
// to an OR of per-tuple conjunctions. qual optionally prefixes each
// identifier with a table alias.
func keyPredicate(t *schema.Table, cols []string, tuples [][]any, values []any, qual string, next *int) (string, []any) {
	prefix := ""
	if qual != "" {
		prefix = pq.QuoteIdentifier(qual) + "."
	}
	if len(cols) == 1 {
		col, _ := t.Column(cols[0])
		cast := ""
		if col != nil {
			cast = filter.ArrayCast(col)
		}
		p := "$" + strconv.Itoa(*next)
		*next++
		return prefix + pq.QuoteIdentifier(cols[0]) + " = ANY(" + p + cast + ")", []any{pq.Array(values)}
	}
	var (
		parts = make([]string, 0, len(tuples))
		args  = make([]any, 0, len(tuples)*len(cols))
	)
	for _, tuple := range tuples {
		conj := make([]string, len(cols))
		for i, colName := range cols {
			conj[i] = prefix + pq.QuoteIdentifier(colName) + " = $" + strconv.Itoa(*next)
			*next++
			args = append(args, tuple[i])
		}
		parts = append(parts, "("+strings.Join(conj, " AND ")+")")
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// loadDirect handles belongs-to, has-one and has-many edges with one
// query against the target table.
func (l *Loader) loadDirect(ctx context.Context, p *edgePlan, parents []map[string]any, tuples [][]any, values []any) ([]map[string]any, error) {
	next := 1
	keySQL, keyArgs := keyPredicate(p.target, p.edge.ForeignColumns, tuples, values, "", &next)
	where, err := p.compileWhere(l.model, next)
	if err != nil {
		return nil, err
	}
	next += len(where.Args)

	pred := keySQL
	if where.SQL != "" && where.SQL != "TRUE" {
		pred += " AND (" + where.SQL + ")"
	}
	args := append(keyArgs, where.Args...)

	var query string
	if p.paginated() {
		offset, limit := pageBounds(p.node)
		partition := quoteJoin(p.edge.ForeignColumns, "")
		query = fmt.Sprintf(
			"SELECT * FROM (SELECT *, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS %s FROM %s WHERE %s) AS w WHERE %s > $%d AND %s <= $%d",
			partition, p.orderSQL(), pq.QuoteIdentifier(rankColumn),
			pq.QuoteIdentifier(p.target.Name), pred,
			pq.QuoteIdentifier(rankColumn), next, pq.QuoteIdentifier(rankColumn), next+1,
		)
		args = append(args, offset, offset+limit)
	} else {
		query = fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY %s",
			pq.QuoteIdentifier(p.target.Name), pred, p.orderSQL())
	}

	children, err := l.query(ctx, p.target, query, args)
	if err != nil {
		return nil, err
	}
	stripInternal(children)

	// Index or group children by the foreign tuple and attach.
	if p.kind == hasMany {
		groups := make(map[string][]map[string]any, len(tuples))
		for _, child := range children {
			groups[rowKey(child, p.edge.ForeignColumns)] = append(groups[rowKey(child, p.edge.ForeignColumns)], child)
		}
		for _, parent := range parents {
			k, ok := tupleOf(parent, p.edge.LocalColumns)
			if !ok {
				parent[p.key] = []map[string]any{}
				continue
			}
			g := groups[k]
			if g == nil {
				g = []map[string]any{}
			}
			parent[p.key] = g
		}
	} else {
		index := make(map[string]map[string]any, len(children))
		for _, child := range children {
			k := rowKey(child, p.edge.ForeignColumns)
			if _, dup := index[k]; !dup {
				index[k] = child
			}
		}
		for _, parent := range parents {
			k, ok := tupleOf(parent, p.edge.LocalColumns)
			if !ok {
				parent[p.key] = nil
				continue
			}
			if child, ok := index[k]; ok {
				parent[p.key] = child
			} else {
				parent[p.key] = nil
			}
		}
	}
	return children, nil
}

// loadManyToMany resolves a junction edge. Without pagination it uses
// the two-step form: fetch junction rows for the parents, then fetch
// the distinct targets and stitch through the junction mapping. With a
// per-parent limit it joins junction and (filtered) target in a single
// window query so every parent gets its own slice in one round trip.
func (l *Loader) loadManyToMany(ctx context.Context, p *edgePlan, parents []map[string]any, tuples [][]any, values []any) ([]map[string]any, error) {
	junction, ok := l.model.Table(p.edge.Junction)
	if !ok {
		return nil, fmt.Errorf("unknown junction table %q", p.edge.Junction)
	}
	if p.paginated() {
		return l.loadManyToManyWindow(ctx, p, junction, parents, tuples, values)
	}

	// Step 1: junction rows restricted to the parents' key tuples.
	next := 1
	keySQL, keyArgs := keyPredicate(junction, p.edge.JunctionLocal, tuples, values, "", &next)
	jcols := append(append([]string{}, p.edge.JunctionLocal...), p.edge.JunctionForeign...)
	jquery := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		quoteJoin(jcols, ""), pq.QuoteIdentifier(junction.Name), keySQL)
	jrows, err := l.query(ctx, nil, jquery, keyArgs)
	if err != nil {
		return nil, err
	}
	if len(jrows) == 0 {
		attachEmpty(parents, p.key, graph.Many)
		return nil, nil
	}

	// Step 2: distinct far-side tuples, then the targets themselves.
	farTuples, farValues := distinctTuples(jrows, p.edge.JunctionForeign)
	next = 1
	targetKeySQL, targetKeyArgs := keyPredicate(p.target, p.edge.ForeignColumns, farTuples, farValues, "", &next)
	where, err := p.compileWhere(l.model, next)
	if err != nil {
		return nil, err
	}
	pred := targetKeySQL
	if where.SQL != "" && where.SQL != "TRUE" {
		pred += " AND (" + where.SQL + ")"
	}
	tquery := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY %s",
		pq.QuoteIdentifier(p.target.Name), pred, p.orderSQL())
	children, err := l.query(ctx, p.target, tquery, append(targetKeyArgs, where.Args...))
	if err != nil {
		return nil, err
	}

	// Index targets by key tuple, remembering fetch order so each
	// parent's slice respects the requested ordering.
	type posRow struct {
		pos int
		row map[string]any
	}
	index := make(map[string]posRow, len(children))
	for i, child := range children {
		k := rowKey(child, p.edge.ForeignColumns)
		if _, dup := index[k]; !dup {
			index[k] = posRow{pos: i, row: child}
		}
	}
	junctionGroups := make(map[string][]map[string]any)
	for _, j := range jrows {
		k := rowKey(j, p.edge.JunctionLocal)
		junctionGroups[k] = append(junctionGroups[k], j)
	}
	for _, parent := range parents {
		k, ok := tupleOf(parent, p.edge.LocalColumns)
		if !ok {
			parent[p.key] = []map[string]any{}
			continue
		}
		linked := make([]posRow, 0, len(junctionGroups[k]))
		seen := make(map[int]bool)
		for _, j := range junctionGroups[k] {
			if pr, ok := index[rowKey(j, p.edge.JunctionForeign)]; ok && !seen[pr.pos] {
				seen[pr.pos] = true
				linked = append(linked, pr)
			}
		}
		sort.Slice(linked, func(i, j int) bool { return linked[i].pos < linked[j].pos })
		attached := make([]map[string]any, len(linked))
		for i, pr := range linked {
			attached[i] = pr.row
		}
		parent[p.key] = attached
	}
	return children, nil
}

// loadManyToManyWindow is the paginated M:N form: one statement that
// joins the junction to the (pre-filtered) target and ranks rows per
// parent key.
func (l *Loader) loadManyToManyWindow(ctx context.Context, p *edgePlan, junction *schema.Table, parents []map[string]any, tuples [][]any, values []any) ([]map[string]any, error) {
	next := 1
	keySQL, keyArgs := keyPredicate(junction, p.edge.JunctionLocal, tuples, values, "j", &next)
	where, err := p.compileWhere(l.model, next)
	if err != nil {
		return nil, err
	}
	next += len(where.Args)

	targetSrc := pq.QuoteIdentifier(p.target.Name)
	if where.SQL != "" && where.SQL != "TRUE" {
		targetSrc = "(SELECT * FROM " + targetSrc + " WHERE " + where.SQL + ")"
	}

	joins := make([]string, len(p.edge.JunctionForeign))
	for i, jf := range p.edge.JunctionForeign {
		joins[i] = fmt.Sprintf(`"j".%s = "t".%s`,
			pq.QuoteIdentifier(jf), pq.QuoteIdentifier(p.edge.ForeignColumns[i]))
	}
	aliases := make([]string, len(p.edge.JunctionLocal))
	partition := make([]string, len(p.edge.JunctionLocal))
	for i, jl := range p.edge.JunctionLocal {
		alias := parentKeyAlias + strconv.Itoa(i)
		aliases[i] = fmt.Sprintf(`"j".%s AS %s`, pq.QuoteIdentifier(jl), pq.QuoteIdentifier(alias))
		partition[i] = `"j".` + pq.QuoteIdentifier(jl)
	}

	innerOrder := qualifyOrder(p.orderSQL())

	offset, limit := pageBounds(p.node)
	query := fmt.Sprintf(
		`SELECT * FROM (SELECT "t".*, %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS %s FROM %s AS "j" JOIN %s AS "t" ON %s WHERE %s) AS w WHERE %s > $%d AND %s <= $%d`,
		strings.Join(aliases, ", "), strings.Join(partition, ", "), innerOrder,
		pq.QuoteIdentifier(rankColumn),
		pq.QuoteIdentifier(junction.Name), targetSrc, strings.Join(joins, " AND "),
		keySQL,
		pq.QuoteIdentifier(rankColumn), next, pq.QuoteIdentifier(rankColumn), next+1,
	)
	args := append(keyArgs, where.Args...)
	args = append(args, offset, offset+limit)

	rows, err := l.query(ctx, p.target, query, args)
	if err != nil {
		return nil, err
	}

	aliasCols := make([]string, len(p.edge.JunctionLocal))
	for i := range aliasCols {
		aliasCols[i] = parentKeyAlias + strconv.Itoa(i)
	}
	groups := make(map[string][]map[string]any)
	var children []map[string]any
	for _, row := range rows {
		k := rowKey(row, aliasCols)
		for _, alias := range aliasCols {
			delete(row, alias)
		}
		delete(row, rankColumn)
		groups[k] = append(groups[k], row)
		children = append(children, row)
	}
	for _, parent := range parents {
		k, ok := tupleOf(parent, p.edge.LocalColumns)
		if !ok {
			parent[p.key] = []map[string]any{}
			continue
		}
		g := groups[k]
		if g == nil {
			g = []map[string]any{}
		}
		parent[p.key] = g
	}
	return children, nil
}

// qualifyOrder prefixes each ORDER BY term with the target alias.
func qualifyOrder(orderSQL string) string {
	terms := strings.Split(orderSQL, ", ")
	for i, t := range terms {
		terms[i] = `"t".` + t
	}
	return strings.Join(terms, ", ")
}

func pageBounds(node *include.Node) (offset, limit int) {
	limit = include.MaxIncludeRows
	if node.Limit != nil {
		limit = *node.Limit
	}
	if node.Offset != nil {
		offset = *node.Offset
	}
	return offset, limit
}

// query executes one batched lookup and scans it into maps. Rows are
// normalized against t (vector text to arrays, uuids and timestamps to
// strings) when t is the user-facing target; junction lookups pass nil.
func (l *Loader) query(ctx context.Context, t *schema.Table, query string, args []any) ([]map[string]any, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := dialectsql.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	if t != nil {
		for _, row := range out {
			dialectsql.NormalizeRow(t, row)
		}
	}
	return out, nil
}

// quoteJoin renders a comma-joined quoted identifier list, optionally
// qualified with a table alias.
func quoteJoin(cols []string, qual string) string {
	prefix := ""
	if qual != "" {
		prefix = pq.QuoteIdentifier(qual) + "."
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = prefix + pq.QuoteIdentifier(c)
	}
	return strings.Join(parts, ", ")
}

// stripInternal removes window bookkeeping columns after scanning.
func stripInternal(rows []map[string]any) {
	for _, row := range rows {
		delete(row, rankColumn)
	}
}

// distinctTuples collects the distinct fully non-null key tuples from
// rows, preserving first-seen order. values flattens single-column
// tuples for array binding.
func distinctTuples(rows []map[string]any, cols []string) (tuples [][]any, values []any) {
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		tuple := make([]any, len(cols))
		ok := true
		for i, col := range cols {
			v, present := row[col]
			if !present || v == nil {
				ok = false
				break
			}
			tuple[i] = v
		}
		if !ok {
			continue
		}
		k := rowKey(row, cols)
		if seen[k] {
			continue
		}
		seen[k] = true
		tuples = append(tuples, tuple)
		if len(cols) == 1 {
			values = append(values, tuple[0])
		}
	}
	return tuples, values
}

// tupleOf returns the encoded key tuple of a row, or false when any
// component is null.
func tupleOf(row map[string]any, cols []string) (string, bool) {
	for _, col := range cols {
		if v, present := row[col]; !present || v == nil {
			return "", false
		}
	}
	return rowKey(row, cols), true
}

// rowKey encodes a column tuple as a comparable string. Values on both
// sides of a join come through the same scanner, so the textual form
// is consistent.
func rowKey(row map[string]any, cols []string) string {
	var sb strings.Builder
	for _, col := range cols {
		fmt.Fprintf(&sb, "%v\x1f", row[col])
	}
	return sb.String()
}
