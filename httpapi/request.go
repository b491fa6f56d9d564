package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/dialect"
	dialectsql "github.com/syssam/fabrica/dialect/sql"
)

// RequestContext is the hook's view of one request. SetVar schedules
// PostgreSQL session variables that every statement in the request
// sees; they are reset before the connection returns to the pool.
type RequestContext struct {
	Ctx     context.Context
	Request *http.Request
	Table   string
	Op      Op

	// Body is the decoded write body for create/update, nil otherwise.
	Body map[string]any

	vars [][2]string
}

// SetVar schedules a session variable, e.g. app.user_id.
func (rc *RequestContext) SetVar(name, value string) {
	rc.vars = append(rc.vars, [2]string{name, value})
}

func (rc *RequestContext) context() context.Context {
	ctx := rc.Ctx
	for _, kv := range rc.vars {
		ctx = dialectsql.WithVar(ctx, kv[0], kv[1])
	}
	return ctx
}

// begin runs the policy chain and the request hook, returning the
// ExecQuerier the handler must use and a cleanup function. With a
// hook configured the request runs on a pinned connection so session
// variables span all of its statements.
func (rt *Runtime) begin(r *http.Request, req *Request) (context.Context, dialect.ExecQuerier, func(), error) {
	ctx := r.Context()
	if err := rt.policy.Eval(ctx, req); err != nil {
		return nil, nil, nil, err
	}
	if rt.hook == nil {
		return ctx, rt.db, func() {}, nil
	}
	conn, err := rt.db.Conn(ctx)
	if err != nil {
		return nil, nil, nil, fabrica.NewDatabaseError(req.Table, "acquire connection", err)
	}
	rc := &RequestContext{Ctx: ctx, Request: r, Table: req.Table, Op: req.Op, Body: req.Body}
	if err := rt.hook(rc); err != nil {
		_ = conn.Close()
		return nil, nil, nil, err
	}
	hasVars := len(rc.vars) > 0
	cleanup := func() {
		if hasVars {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := dialectsql.ResetSession(cctx, conn); err != nil {
				rt.log.WithError(err).Warn("session reset failed")
			}
			cancel()
		}
		_ = conn.Close()
	}
	return rc.context(), dialectsql.Conn{ExecQuerier: conn}, cleanup, nil
}
