package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/dialect"
	"github.com/syssam/fabrica/filter"
	"github.com/syssam/fabrica/include"
	"github.com/syssam/fabrica/loader"
	"github.com/syssam/fabrica/vector"
)

// listRequest is the POST /v1/{table}/list body.
type listRequest struct {
	Include     map[string]any `json:"include"`
	Where       map[string]any `json:"where"`
	Limit       *int           `json:"limit"`
	Offset      *int           `json:"offset"`
	OrderBy     any            `json:"orderBy"`
	Order       any            `json:"order"`
	Select      []string       `json:"select"`
	Exclude     []string       `json:"exclude"`
	Vector      *vector.Spec   `json:"vector"`
	WithDeleted bool           `json:"withDeleted"`
}

// listResponse is the pagination envelope.
type listResponse struct {
	Data         []map[string]any `json:"data"`
	Total        int              `json:"total"`
	Limit        int              `json:"limit"`
	Offset       int              `json:"offset"`
	HasMore      bool             `json:"hasMore"`
	IncludeError *includeError    `json:"includeError,omitempty"`
}

type includeError struct {
	Relation string `json:"relation"`
	Message  string `json:"message"`
}

// list handles POST /v1/{table}/list.
func (res *Resource) list(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		res.rt.renderError(w, r, fabrica.NewIssueError("body", "unreadable request body"))
		return
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var req listRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		res.rt.renderError(w, r, fabrica.NewIssueError("body", "invalid json object"))
		return
	}

	plan, err := res.planList(&req)
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}

	key := CacheKey{Table: res.table.Name, Body: raw}.String()
	if res.rt.cache != nil {
		if hit, err := res.rt.cache.Get(r.Context(), key); err == nil && hit != nil {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write(hit)
			return
		}
	}

	ctx, db, done, err := res.rt.begin(r, &Request{Table: res.table.Name, Op: OpList})
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	defer done()

	total, err := res.count(ctx, db, plan)
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	rows, err := res.queryRows(ctx, db, plan.dataSQL, plan.dataArgs, "select")
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}

	resp := listResponse{
		Data:    rows,
		Total:   total,
		Limit:   plan.limit,
		Offset:  plan.offset,
		HasMore: plan.offset+len(rows) < total,
	}
	if resp.Data == nil {
		resp.Data = []map[string]any{}
	}

	if len(plan.spec) > 0 && len(rows) > 0 {
		l := loader.New(db, res.rt.model, res.rt.graph,
			loader.WithLogger(res.rt.log),
			loader.WithMaxDepth(res.rt.maxIncludeDepth),
			loader.WithStrict(res.rt.strictIncludes))
		hydrated, stitches, err := l.Load(ctx, res.table.Name, rows, plan.spec)
		if err != nil {
			res.rt.renderError(w, r, err)
			return
		}
		resp.Data = hydrated
		if len(stitches) > 0 {
			resp.IncludeError = &includeError{
				Relation: stitches[0].Relation,
				Message:  "relation could not be loaded",
			}
		}
	}
	res.project(resp.Data, plan.selects, plan.excludes)

	body, err := json.Marshal(resp)
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	// Degraded responses are never cached; a retry may succeed.
	if res.rt.cache != nil && resp.IncludeError == nil {
		if err := res.rt.cache.Set(ctx, key, body, res.rt.cacheTTL); err != nil {
			res.rt.log.WithError(err).Warn("cache store failed")
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(body)
}

// listPlan carries the compiled list query pair.
type listPlan struct {
	countSQL  string
	countArgs []any
	dataSQL   string
	dataArgs  []any

	limit  int
	offset int
	spec   include.Spec

	selects  []string
	excludes []string
}

// planList validates the request and compiles both queries. The
// count ignores limit/offset but honors every predicate, including
// the vector threshold.
func (res *Resource) planList(req *listRequest) (*listPlan, error) {
	t := res.table
	plan := &listPlan{limit: res.rt.defaultLimit}

	if req.Limit != nil {
		switch {
		case *req.Limit < 0:
			return nil, fabrica.NewIssueError("limit", "must not be negative")
		case *req.Limit == 0:
			// keep the default
		case *req.Limit > res.rt.maxLimit:
			plan.limit = res.rt.maxLimit
		default:
			plan.limit = *req.Limit
		}
	}
	if req.Offset != nil {
		if *req.Offset < 0 {
			return nil, fabrica.NewIssueError("offset", "must not be negative")
		}
		plan.offset = *req.Offset
	}
	if len(req.Select) > 0 && len(req.Exclude) > 0 {
		return nil, fabrica.NewIssueError("select", "select and exclude are mutually exclusive")
	}
	for _, name := range append(append([]string{}, req.Select...), req.Exclude...) {
		if !t.HasColumn(name) {
			return nil, fabrica.NewIssueError("select", fmt.Sprintf("unknown column %q", name))
		}
	}
	plan.selects, plan.excludes = req.Select, req.Exclude

	where, err := filter.Parse(req.Where)
	if err != nil {
		return nil, err
	}
	orders, err := filter.ParseOrder(t, req.OrderBy, req.Order)
	if err != nil {
		return nil, err
	}
	if req.Vector != nil && len(orders) > 0 {
		return nil, fabrica.NewIssueError("orderBy", "cannot be combined with vector search")
	}
	plan.spec, err = include.Parse(req.Include, res.rt.maxIncludeDepth)
	if err != nil {
		return nil, err
	}

	withDeleted := req.WithDeleted
	compiler := filter.NewCompiler(t, res.rt.enums[t.Name])

	build := func(projection bool) (string, []any, error) {
		next := 1
		var conds []string
		var args []any

		pred, err := compiler.CompileFrom(where, next)
		if err != nil {
			return "", nil, err
		}
		next += len(pred.Args)
		if pred.SQL != "" && pred.SQL != "TRUE" {
			conds = append(conds, "("+pred.SQL+")")
		}
		args = append(args, pred.Args...)

		if res.softDelete() && !withDeleted {
			conds = append(conds, res.notDeletedCond())
		}

		vclause, err := vector.Compile(t, req.Vector, next)
		if err != nil {
			return "", nil, err
		}
		proj := ""
		if vclause != nil {
			// The count query binds the vector only when the threshold
			// references it.
			if projection {
				proj = ", " + vclause.Projection
				next += len(vclause.Args)
				args = append(args, vclause.Args...)
				if vclause.Where != "" {
					conds = append(conds, vclause.Where)
				}
			} else if vclause.Where != "" {
				next += len(vclause.Args)
				args = append(args, vclause.Args...)
				conds = append(conds, vclause.Where)
			}
		}

		whereSQL := ""
		if len(conds) > 0 {
			whereSQL = " WHERE " + strings.Join(conds, " AND ")
		}
		if !projection {
			return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", pq.QuoteIdentifier(t.Name), whereSQL), args, nil
		}

		orderSQL := res.defaultOrder()
		if vclause != nil {
			orderSQL = vclause.OrderBy
		} else if len(orders) > 0 {
			orderSQL = filter.OrderSQL(orders)
		}
		q := fmt.Sprintf("SELECT *%s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
			proj, pq.QuoteIdentifier(t.Name), whereSQL, orderSQL, next, next+1)
		args = append(args, plan.limit, plan.offset)
		return q, args, nil
	}

	if plan.countSQL, plan.countArgs, err = build(false); err != nil {
		return nil, err
	}
	if plan.dataSQL, plan.dataArgs, err = build(true); err != nil {
		return nil, err
	}
	return plan, nil
}

// defaultOrder keeps pagination stable when the caller orders nothing.
func (res *Resource) defaultOrder() string {
	orders := make([]filter.Order, len(res.table.PrimaryKey))
	for i, col := range res.table.PrimaryKey {
		orders[i] = filter.Order{Column: col}
	}
	return filter.OrderSQL(orders)
}

func (res *Resource) count(ctx context.Context, db dialect.ExecQuerier, plan *listPlan) (int, error) {
	rows, err := db.QueryContext(ctx, plan.countSQL, plan.countArgs...)
	if err != nil {
		return 0, fabrica.NewDatabaseError(res.table.Name, "count", err)
	}
	defer rows.Close()
	total := 0
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, fabrica.NewDatabaseError(res.table.Name, "count", err)
		}
	}
	return total, rows.Err()
}

// project strips unrequested root columns after include stitching, so
// relation keys and _distance survive a select list.
func (res *Resource) project(rows []map[string]any, selects, excludes []string) {
	if len(selects) == 0 && len(excludes) == 0 {
		return
	}
	for _, row := range rows {
		for i := range res.table.Columns {
			name := res.table.Columns[i].Name
			if _, present := row[name]; !present {
				continue
			}
			if len(selects) > 0 {
				if !slices.Contains(selects, name) {
					delete(row, name)
				}
			} else if slices.Contains(excludes, name) {
				delete(row, name)
			}
		}
	}
}
