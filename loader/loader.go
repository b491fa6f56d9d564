// Package loader hydrates relations onto already-loaded rows. Given a
// root table, its rows and an include spec, it executes one batched
// lookup per edge (two for many-to-many), stitches the children onto
// deep-copied parents, and recurses into nested includes up to the
// configured depth. Parents are never mutated.
package loader

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/dialect"
	"github.com/syssam/fabrica/graph"
	"github.com/syssam/fabrica/include"
	"github.com/syssam/fabrica/schema"
)

// DefaultMaxDepth bounds include recursion when no option overrides it.
const DefaultMaxDepth = 5

// Loader batch-hydrates include specs against one model+graph pair.
// It is safe for concurrent use; all per-request state lives on the
// stack of Load.
type Loader struct {
	db       dialect.ExecQuerier
	model    *schema.Model
	graph    graph.Graph
	log      logrus.FieldLogger
	maxDepth int
	strict   bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for edge degradation warnings.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// WithMaxDepth caps include recursion. Sub-trees past the cap are
// silently ignored.
func WithMaxDepth(depth int) Option {
	return func(l *Loader) {
		if depth > 0 {
			l.maxDepth = depth
		}
	}
}

// WithStrict makes any per-edge failure abort the whole Load instead
// of degrading the edge to its empty default.
func WithStrict(strict bool) Option {
	return func(l *Loader) { l.strict = strict }
}

// New returns a Loader reading through db.
func New(db dialect.ExecQuerier, model *schema.Model, g graph.Graph, opts ...Option) *Loader {
	discard := logrus.New()
	discard.SetLevel(logrus.PanicLevel)
	l := &Loader{db: db, model: model, graph: g, log: discard, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns a copy of parents with every relation named in spec
// attached. In non-strict mode a failing edge degrades to its empty
// default (nil for one, empty slice for many) and is reported in the
// returned stitch list; sibling edges still load. Context cancellation
// always aborts.
func (l *Loader) Load(ctx context.Context, table string, parents []map[string]any, spec include.Spec) ([]map[string]any, []*fabrica.StitchError, error) {
	out := cloneRows(parents)
	var stitches []*fabrica.StitchError
	if err := l.walk(ctx, table, out, spec, l.maxDepth, &stitches); err != nil {
		return nil, nil, err
	}
	return out, stitches, nil
}

func (l *Loader) walk(ctx context.Context, table string, rows []map[string]any, spec include.Spec, depth int, stitches *[]*fabrica.StitchError) error {
	if depth <= 0 || len(spec) == 0 || len(rows) == 0 {
		return nil
	}
	for _, key := range spec.Keys() {
		node := spec[key]
		edge, ok := l.graph.Edge(table, key)
		if !ok {
			l.log.WithFields(logrus.Fields{"table": table, "relation": key}).Warn("unknown relation key, skipping")
			for _, row := range rows {
				row[key] = nil
			}
			continue
		}
		children, err := l.loadEdge(ctx, key, edge, node, rows)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st := fabrica.NewStitchError(table, key, err)
			if l.strict {
				return st
			}
			l.log.WithFields(logrus.Fields{"table": table, "relation": key, "error": err}).Warn("include edge degraded")
			*stitches = append(*stitches, st)
			attachEmpty(rows, key, edge.Kind)
			continue
		}
		if node != nil && len(node.Include) > 0 && len(children) > 0 {
			if err := l.walk(ctx, edge.To, children, node.Include, depth-1, stitches); err != nil {
				return err
			}
		}
		if node != nil {
			l.project(edge.To, children, node)
		}
	}
	return nil
}

// attachEmpty sets the relation to its empty default on every row.
func attachEmpty(rows []map[string]any, key string, kind graph.Kind) {
	for _, row := range rows {
		if kind == graph.Many {
			row[key] = []map[string]any{}
		} else {
			row[key] = nil
		}
	}
}

// project strips unrequested columns from attached child rows. Key
// columns are always fetched for stitching and recursion; they are
// removed here when the caller excluded them.
func (l *Loader) project(table string, rows []map[string]any, node *include.Node) {
	if len(node.Select) == 0 && len(node.Exclude) == 0 {
		return
	}
	keep := func(name string) bool {
		if len(node.Select) > 0 {
			for _, s := range node.Select {
				if s == name {
					return true
				}
			}
			return false
		}
		for _, e := range node.Exclude {
			if e == name {
				return false
			}
		}
		return true
	}
	t, ok := l.model.Table(table)
	if !ok {
		return
	}
	for _, row := range rows {
		for i := range t.Columns {
			name := t.Columns[i].Name
			if _, present := row[name]; present && !keep(name) {
				delete(row, name)
			}
		}
	}
}

// cloneRows deep-copies one level of each row map. Nested values are
// scalars coming off the scanner; attached relations are always fresh
// maps, so one level is enough to keep inputs pristine.
func cloneRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		cp := make(map[string]any, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
