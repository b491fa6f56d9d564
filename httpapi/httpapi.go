// Package httpapi is the runtime half of generated servers: generic
// CRUD and list resources over chi, auth middleware, the contract and
// SDK-pull endpoints, an optional list cache and a privacy-style
// policy chain. Generated code contributes the Model, the Graph and
// the typed surface; everything request-shaped lives here.
package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/contract"
	"github.com/syssam/fabrica/graph"
	"github.com/syssam/fabrica/loader"
	"github.com/syssam/fabrica/schema"
	"github.com/syssam/fabrica/validate"
)

// Hook runs after validation and before the primary query, on the
// same pinned connection the request's statements use. Session
// variables set through dialect/sql's WithVar are visible to every
// statement in the request.
type Hook func(ctx *RequestContext) error

// Runtime carries everything the per-table resources share.
type Runtime struct {
	db      *sql.DB
	model   *schema.Model
	graph   graph.Graph
	schemas map[string]*validate.Schemas
	enums   map[string]map[string][]string

	contract *contract.Contract
	manifest *contract.Manifest

	log logrus.FieldLogger

	defaultLimit     int
	maxLimit         int
	maxIncludeDepth  int
	strictIncludes   bool
	softDeleteColumn string
	debug            bool

	apiKeys      []string
	apiKeyHeader string
	jwt          *JWTConfig
	pullToken    string

	cache    Cache
	cacheTTL time.Duration
	policy   *Policy
	hook     Hook
	cors     *cors.Options
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the request logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(rt *Runtime) {
		if log != nil {
			rt.log = log
		}
	}
}

// WithLimits sets the list default and maximum page sizes.
func WithLimits(def, max int) Option {
	return func(rt *Runtime) {
		if def > 0 {
			rt.defaultLimit = def
		}
		if max > 0 {
			rt.maxLimit = max
		}
	}
}

// WithMaxIncludeDepth caps include trees accepted by list/get.
func WithMaxIncludeDepth(depth int) Option {
	return func(rt *Runtime) {
		if depth > 0 {
			rt.maxIncludeDepth = depth
		}
	}
}

// WithStrictIncludes makes include edge failures abort requests
// instead of degrading to empty defaults.
func WithStrictIncludes(strict bool) Option {
	return func(rt *Runtime) { rt.strictIncludes = strict }
}

// WithSoftDelete names the deleted-at column. Tables carrying it get
// soft deletes and deleted-row exclusion on reads.
func WithSoftDelete(column string) Option {
	return func(rt *Runtime) { rt.softDeleteColumn = column }
}

// WithDebug includes database error detail in 500 bodies.
func WithDebug(debug bool) Option {
	return func(rt *Runtime) { rt.debug = debug }
}

// WithAPIKeys guards /v1 with an API key header check.
func WithAPIKeys(header string, keys ...string) Option {
	return func(rt *Runtime) {
		if header != "" {
			rt.apiKeyHeader = header
		}
		rt.apiKeys = append(rt.apiKeys, keys...)
	}
}

// WithJWT guards /v1 with bearer-token verification.
func WithJWT(cfg JWTConfig) Option {
	return func(rt *Runtime) { rt.jwt = &cfg }
}

// WithPullToken guards the /_psdk endpoints.
func WithPullToken(token string) Option {
	return func(rt *Runtime) { rt.pullToken = token }
}

// WithCache caches list responses until a write on the same table
// invalidates them.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(rt *Runtime) {
		rt.cache = c
		rt.cacheTTL = ttl
	}
}

// WithPolicy installs the request policy chain.
func WithPolicy(p *Policy) Option {
	return func(rt *Runtime) { rt.policy = p }
}

// WithHook installs the per-request hook.
func WithHook(h Hook) Option {
	return func(rt *Runtime) { rt.hook = h }
}

// WithCORS enables the CORS middleware with the given options.
func WithCORS(c cors.Options) Option {
	return func(rt *Runtime) { rt.cors = &c }
}

// WithContract installs the contract document and SDK manifest served
// by the /api and /_psdk endpoints.
func WithContract(c *contract.Contract, m *contract.Manifest) Option {
	return func(rt *Runtime) {
		rt.contract = c
		rt.manifest = m
	}
}

// New builds a Runtime over an open pool. Validation schemas for
// every table are compiled up front so malformed models fail at
// startup, not on first write.
func New(db *sql.DB, m *schema.Model, g graph.Graph, opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		db:      db,
		model:   m,
		graph:   g,
		schemas: make(map[string]*validate.Schemas, len(m.Tables)),
		enums:   make(map[string]map[string][]string, len(m.Tables)),

		log:             logrus.New(),
		defaultLimit:    50,
		maxLimit:        100,
		maxIncludeDepth: loader.DefaultMaxDepth,
		apiKeyHeader:    "X-API-Key",
	}
	for _, opt := range opts {
		opt(rt)
	}
	for _, t := range m.Tables {
		enums := enumColumns(m, t)
		rt.enums[t.Name] = enums
		vs, err := validate.Compile(t, enums)
		if err != nil {
			return nil, err
		}
		rt.schemas[t.Name] = vs
	}
	return rt, nil
}

// Model returns the runtime's schema model.
func (rt *Runtime) Model() *schema.Model { return rt.model }

// Graph returns the runtime's relation graph.
func (rt *Runtime) Graph() graph.Graph { return rt.graph }

// Routes builds the full router: CORS, the /v1 resources behind the
// configured guards, open contract endpoints and the token-guarded
// /_psdk endpoints.
func (rt *Runtime) Routes() chi.Router {
	r := chi.NewRouter()
	if rt.cors != nil {
		r.Use(cors.New(*rt.cors).Handler)
	}
	r.Route("/v1", func(v1 chi.Router) {
		if len(rt.apiKeys) > 0 || rt.jwt != nil {
			v1.Use(rt.authMiddleware)
		}
		for _, t := range rt.model.Tables {
			rt.Resource(t.Name).Register(v1)
		}
	})
	r.Get("/api/contract", rt.handleContractJSON)
	r.Get("/api/contract.json", rt.handleContractJSON)
	r.Get("/api/contract.md", rt.handleContractMarkdown)
	r.Route("/_psdk", func(p chi.Router) {
		p.Use(rt.pullTokenMiddleware)
		p.Get("/sdk/manifest", rt.handleManifest)
		p.Get("/sdk/download", rt.handleDownload)
	})
	return r
}

func enumColumns(m *schema.Model, t *schema.Table) map[string][]string {
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

// renderError maps taxonomy errors onto the HTTP surface.
func (rt *Runtime) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *fabrica.ValidationError
	switch {
	case errors.As(err, &verr):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]any{
			"error":  "validation failed",
			"issues": verr.Issues,
		})
	case fabrica.IsNotFound(err):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, nil)
	case fabrica.IsAuthError(err):
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]any{"error": "unauthorized"})
	case IsDeny(err):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, map[string]any{"error": "forbidden"})
	default:
		rt.log.WithError(err).Error("request failed")
		body := map[string]any{"error": "internal error"}
		if rt.debug {
			body["detail"] = err.Error()
		}
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, body)
	}
}
