// Package contract assembles the machine-readable API contract and the
// SDK manifest from a Model and its relation graph. The contract is
// served at /api/contract and re-rendered as markdown; the manifest
// embeds the generated client files for the pull workflow.
package contract

import (
	"sort"
	"time"

	"github.com/syssam/fabrica/graph"
	"github.com/syssam/fabrica/schema"
)

// Contract summarizes every generated resource. Two runs over the same
// Model differ only in GeneratedAt.
type Contract struct {
	Version     string     `json:"version"`
	GeneratedAt string     `json:"generatedAt"`
	Resources   []Resource `json:"resources"`
}

// Resource is the contract entry for one table.
type Resource struct {
	Table     string     `json:"table"`
	Methods   []Method   `json:"methods"`
	Endpoints []string   `json:"endpoints"`
	Relations []Relation `json:"relations,omitempty"`
}

// Method is one typed client method.
type Method struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
}

// Relation is one edge in the resource's relation summary.
type Relation struct {
	Key    string `json:"key"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Via    string `json:"via,omitempty"`
}

// Build assembles the contract for m and g. Junction tables keep
// their CRUD entries; they just carry no relations and surface as Via
// on many-to-many edges.
func Build(m *schema.Model, g graph.Graph, version string, now time.Time) *Contract {
	c := &Contract{
		Version:     version,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
	for _, t := range m.Tables {
		c.Resources = append(c.Resources, resource(t, g))
	}
	sort.Slice(c.Resources, func(i, j int) bool { return c.Resources[i].Table < c.Resources[j].Table })
	return c
}

func resource(t *schema.Table, g graph.Graph) Resource {
	pkSig := pkSignature(t)
	r := Resource{
		Table: t.Name,
		Methods: []Method{
			{Name: "List", Signature: "List(ctx, req ListRequest) (ListResponse, error)"},
			{Name: "Get", Signature: "Get(ctx, " + pkSig + ") (Row, error)"},
			{Name: "Create", Signature: "Create(ctx, body Insert) (Row, error)"},
			{Name: "Update", Signature: "Update(ctx, " + pkSig + ", body Update) (Row, error)"},
			{Name: "Delete", Signature: "Delete(ctx, " + pkSig + ") (Row, error)"},
		},
		Endpoints: []string{
			"POST /v1/" + t.Name,
			"GET /v1/" + t.Name + "/{" + pkPath(t) + "}",
			"POST /v1/" + t.Name + "/list",
			"PATCH /v1/" + t.Name + "/{" + pkPath(t) + "}",
			"DELETE /v1/" + t.Name + "/{" + pkPath(t) + "}",
		},
	}
	for _, key := range g.RelationKeys(t.Name) {
		e := g[t.Name][key]
		rel := Relation{Key: key, Target: e.To, Via: e.Junction}
		switch {
		case e.M2M():
			rel.Kind = "manyToMany"
		case e.Kind == graph.Many:
			rel.Kind = "many"
		default:
			rel.Kind = "one"
		}
		r.Relations = append(r.Relations, rel)
	}
	return r
}

func pkSignature(t *schema.Table) string {
	if len(t.PrimaryKey) == 1 {
		return t.PrimaryKey[0] + " string"
	}
	s := ""
	for i, col := range t.PrimaryKey {
		if i > 0 {
			s += ", "
		}
		s += col + " string"
	}
	return s
}

func pkPath(t *schema.Table) string {
	s := ""
	for i, col := range t.PrimaryKey {
		if i > 0 {
			s += "}/{"
		}
		s += col
	}
	return s
}
