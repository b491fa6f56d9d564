package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/dialect"
	dialectsql "github.com/syssam/fabrica/dialect/sql"
	"github.com/syssam/fabrica/schema"
	"github.com/syssam/fabrica/vector"
)

// Resource serves the five CRUD endpoints for one table.
type Resource struct {
	rt    *Runtime
	table *schema.Table
}

// Resource returns the handler set for a table. Unknown names panic:
// generated registration code only names tables from its own Model.
func (rt *Runtime) Resource(name string) *Resource {
	t, ok := rt.model.Table(name)
	if !ok {
		panic(fmt.Sprintf("httpapi: unknown table %q", name))
	}
	return &Resource{rt: rt, table: t}
}

// Register mounts the resource's routes on a /v1 router.
func (res *Resource) Register(r chi.Router) {
	base := "/" + res.table.Name
	r.Post(base, res.create)
	r.Post(base+"/list", res.list)
	pk := base
	for i := range res.table.PrimaryKey {
		pk += fmt.Sprintf("/{pk%d}", i)
	}
	r.Get(pk, res.get)
	r.Patch(pk, res.patch)
	r.Delete(pk, res.remove)
}

// softDelete reports whether this table participates in soft deletes.
func (res *Resource) softDelete() bool {
	return res.rt.softDeleteColumn != "" && res.table.HasColumn(res.rt.softDeleteColumn)
}

func (res *Resource) notDeletedCond() string {
	return pq.QuoteIdentifier(res.rt.softDeleteColumn) + " IS NULL"
}

// decodeBody reads a JSON object body. An empty body decodes to an
// empty map.
func decodeBody(r *http.Request) (map[string]any, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fabrica.NewIssueError("body", "unreadable request body")
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fabrica.NewIssueError("body", "invalid json object")
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

// pkPredicate renders the primary key match from the URL segments,
// with placeholders starting at *next. Values that cannot belong to
// the key's type resolve to not-found before any query runs.
func (res *Resource) pkPredicate(r *http.Request, next *int) (string, []any, error) {
	conds := ""
	args := make([]any, 0, len(res.table.PrimaryKey))
	for i, name := range res.table.PrimaryKey {
		raw := chi.URLParam(r, fmt.Sprintf("pk%d", i))
		col, _ := res.table.Column(name)
		v, err := pkValue(col, raw)
		if err != nil {
			return "", nil, fabrica.NewNotFoundErrorWithKey(res.table.Name, raw)
		}
		if i > 0 {
			conds += " AND "
		}
		conds += pq.QuoteIdentifier(name) + " = $" + strconv.Itoa(*next)
		*next++
		args = append(args, v)
	}
	return conds, args, nil
}

func pkValue(col *schema.Column, raw string) (any, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty key segment")
	}
	if col == nil {
		return raw, nil
	}
	switch col.Type {
	case schema.TypeUUID:
		if _, err := uuid.Parse(raw); err != nil {
			return nil, err
		}
		return raw, nil
	case schema.TypeInt:
		return strconv.ParseInt(raw, 10, 64)
	default:
		return raw, nil
	}
}

// driverValue converts a validated JSON value into its driver form.
func driverValue(col *schema.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case schema.TypeArray:
		items, ok := v.([]any)
		if !ok {
			return nil, fabrica.NewIssueError(col.Name, "must be an array")
		}
		return pq.Array(items), nil
	case schema.TypeVector:
		items, ok := v.([]any)
		if !ok {
			return nil, fabrica.NewIssueError(col.Name, "must be an array of numbers")
		}
		floats := make([]float64, len(items))
		for i, item := range items {
			f, ok := item.(float64)
			if !ok {
				return nil, fabrica.NewIssueError(col.Name, "must be an array of numbers")
			}
			floats[i] = f
		}
		return vector.Literal(floats), nil
	case schema.TypeJSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fabrica.NewIssueError(col.Name, "value is not valid json")
		}
		return string(raw), nil
	case schema.TypeInt:
		if f, ok := v.(float64); ok {
			return int64(f), nil
		}
		return v, nil
	default:
		return v, nil
	}
}

// queryRows runs a query and scans+normalizes the result rows.
func (res *Resource) queryRows(ctx context.Context, db dialect.ExecQuerier, query string, args []any, op string) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fabrica.NewDatabaseError(res.table.Name, op, err)
	}
	defer rows.Close()
	out, err := dialectsql.ScanRows(rows)
	if err != nil {
		return nil, fabrica.NewDatabaseError(res.table.Name, op, err)
	}
	for _, row := range out {
		dialectsql.NormalizeRow(res.table, row)
	}
	return out, nil
}

// create handles POST /v1/{table}.
func (res *Resource) create(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	if err := res.rt.schemas[res.table.Name].CheckInsert(body); err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	ctx, db, done, err := res.rt.begin(r, &Request{Table: res.table.Name, Op: OpCreate, Body: body})
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	defer done()

	var (
		cols         []string
		placeholders []string
		args         []any
	)
	for i := range res.table.Columns {
		col := &res.table.Columns[i]
		v, ok := body[col.Name]
		if !ok {
			continue
		}
		dv, err := driverValue(col, v)
		if err != nil {
			res.rt.renderError(w, r, err)
			return
		}
		cols = append(cols, pq.QuoteIdentifier(col.Name))
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)+1))
		args = append(args, dv)
	}
	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", pq.QuoteIdentifier(res.table.Name))
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			pq.QuoteIdentifier(res.table.Name), join(cols), join(placeholders))
	}
	rows, err := res.queryRows(ctx, db, query, args, "insert")
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	if len(rows) == 0 {
		res.rt.renderError(w, r, fabrica.NewDatabaseError(res.table.Name, "insert", fmt.Errorf("no row returned")))
		return
	}
	res.rt.invalidate(ctx, res.table.Name)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rows[0])
}

// get handles GET /v1/{table}/{pk...}.
func (res *Resource) get(w http.ResponseWriter, r *http.Request) {
	next := 1
	pkSQL, pkArgs, err := res.pkPredicate(r, &next)
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	ctx, db, done, err := res.rt.begin(r, &Request{Table: res.table.Name, Op: OpGet})
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	defer done()

	pred := pkSQL
	if res.softDelete() {
		pred += " AND " + res.notDeletedCond()
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT 1", pq.QuoteIdentifier(res.table.Name), pred)
	rows, err := res.queryRows(ctx, db, query, pkArgs, "select")
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	if len(rows) == 0 {
		res.rt.renderError(w, r, fabrica.NewNotFoundError(res.table.Name))
		return
	}
	render.JSON(w, r, rows[0])
}

// patch handles PATCH /v1/{table}/{pk...}. Primary key columns are
// stripped from the body before validation.
func (res *Resource) patch(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	for _, pk := range res.table.PrimaryKey {
		delete(body, pk)
	}
	if len(body) == 0 {
		res.rt.renderError(w, r, fabrica.NewIssueError("body", "no updatable fields remain"))
		return
	}
	if err := res.rt.schemas[res.table.Name].CheckUpdate(body); err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	ctx, db, done, err := res.rt.begin(r, &Request{Table: res.table.Name, Op: OpUpdate, Body: body})
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	defer done()

	var (
		sets []string
		args []any
	)
	for i := range res.table.Columns {
		col := &res.table.Columns[i]
		v, ok := body[col.Name]
		if !ok {
			continue
		}
		dv, err := driverValue(col, v)
		if err != nil {
			res.rt.renderError(w, r, err)
			return
		}
		args = append(args, dv)
		sets = append(sets, pq.QuoteIdentifier(col.Name)+" = $"+strconv.Itoa(len(args)))
	}
	next := len(args) + 1
	pkSQL, pkArgs, err := res.pkPredicate(r, &next)
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	args = append(args, pkArgs...)

	pred := pkSQL
	if res.softDelete() {
		pred += " AND " + res.notDeletedCond()
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *",
		pq.QuoteIdentifier(res.table.Name), join(sets), pred)
	rows, err := res.queryRows(ctx, db, query, args, "update")
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	if len(rows) == 0 {
		res.rt.renderError(w, r, fabrica.NewNotFoundError(res.table.Name))
		return
	}
	res.rt.invalidate(ctx, res.table.Name)
	render.JSON(w, r, rows[0])
}

// remove handles DELETE /v1/{table}/{pk...}: a soft delete when the
// configured deleted-at column exists on the table, a hard delete
// otherwise. Both return the affected row.
func (res *Resource) remove(w http.ResponseWriter, r *http.Request) {
	next := 1
	pkSQL, pkArgs, err := res.pkPredicate(r, &next)
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	ctx, db, done, err := res.rt.begin(r, &Request{Table: res.table.Name, Op: OpDelete})
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	defer done()

	var query string
	if res.softDelete() {
		query = fmt.Sprintf("UPDATE %s SET %s = now() WHERE %s AND %s RETURNING *",
			pq.QuoteIdentifier(res.table.Name),
			pq.QuoteIdentifier(res.rt.softDeleteColumn),
			pkSQL, res.notDeletedCond())
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING *",
			pq.QuoteIdentifier(res.table.Name), pkSQL)
	}
	rows, err := res.queryRows(ctx, db, query, pkArgs, "delete")
	if err != nil {
		res.rt.renderError(w, r, err)
		return
	}
	if len(rows) == 0 {
		res.rt.renderError(w, r, fabrica.NewNotFoundError(res.table.Name))
		return
	}
	res.rt.invalidate(ctx, res.table.Name)
	render.JSON(w, r, rows[0])
}

func join(parts []string) string {
	return strings.Join(parts, ", ")
}
