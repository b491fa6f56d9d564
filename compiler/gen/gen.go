// Package gen emits the generated server and client sources from an
// introspected model. Emission is hermetic: the same model, graph and
// configuration produce byte-identical files, except for the recorded
// generation timestamp. All Go artifacts are built with jennifer and
// rendered gofmt-clean.
package gen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/config"
	"github.com/syssam/fabrica/contract"
	"github.com/syssam/fabrica/graph"
	"github.com/syssam/fabrica/schema"
)

// header is stamped on every generated Go file.
const header = "Code generated by fabrica. DO NOT EDIT."

// Import paths of the runtime packages emitted code depends on.
const (
	pkgSchema   = "github.com/syssam/fabrica/schema"
	pkgGraph    = "github.com/syssam/fabrica/graph"
	pkgValidate = "github.com/syssam/fabrica/validate"
	pkgHTTPAPI  = "github.com/syssam/fabrica/httpapi"
	pkgContract = "github.com/syssam/fabrica/contract"
	pkgChi      = "github.com/go-chi/chi/v5"
)

// ServerPackage is the package name of the emitted server artifacts.
const ServerPackage = "api"

// ClientPackage is the package name of the emitted client SDK.
const ClientPackage = "sdk"

// Output is the full set of emitted files, keyed by path relative to
// the server and client roots.
type Output struct {
	Server map[string][]byte
	Client map[string][]byte
}

// Emitter renders one model into source files.
type Emitter struct {
	model   *schema.Model
	graph   graph.Graph
	cfg     *config.Config
	version string
	now     time.Time
}

// New returns an emitter for the model. now becomes the recorded
// generation timestamp and the only non-deterministic output.
func New(m *schema.Model, g graph.Graph, cfg *config.Config, version string, now time.Time) *Emitter {
	return &Emitter{model: m, graph: g, cfg: cfg, version: version, now: now.UTC().Truncate(time.Second)}
}

// Emit renders every artifact. The client is emitted first so the
// server's manifest.go can embed it.
func (e *Emitter) Emit() (*Output, error) {
	out := &Output{
		Server: make(map[string][]byte),
		Client: make(map[string][]byte),
	}

	clientSrc, err := e.clientFiles()
	if err != nil {
		return nil, err
	}
	for path, src := range clientSrc {
		out.Client[path] = []byte(src)
	}

	serverFiles := map[string]*jen.File{
		"tables.go":   e.tablesFile(),
		"graph.go":    e.graphFile(),
		"schemas.go":  e.schemasFile(),
		"routes.go":   e.routesFile(),
		"types.go":    e.typesFile(),
		"include.go":  e.includeFile(),
		"manifest.go": e.manifestFile(clientSrc),
	}
	for _, t := range e.model.Tables {
		serverFiles["routes_"+t.Name+".go"] = e.tableRoutesFile(t)
	}
	for path, f := range serverFiles {
		src, err := render(f)
		if err != nil {
			return nil, fabrica.NewEmissionError("render", path, err)
		}
		out.Server[path] = src
	}

	c := contract.Build(e.model, e.graph, e.version, e.now)
	cj, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fabrica.NewEmissionError("contract", "contract.json", err)
	}
	out.Server["contract.json"] = append(cj, '\n')
	out.Server["contract.md"] = []byte(c.Markdown())

	return out, nil
}

// newFile starts a server-package file with the generated header.
func (e *Emitter) newFile() *jen.File {
	f := jen.NewFile(ServerPackage)
	f.HeaderComment(header)
	return f
}

func render(f *jen.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// enumColumns collects the enum label sets per table, sorted input for
// deterministic emission.
func (e *Emitter) enumColumns(t *schema.Table) map[string][]string {
	var out map[string][]string
	for i := range t.Columns {
		if labels := e.model.EnumLabels(&t.Columns[i]); len(labels) > 0 {
			if out == nil {
				out = make(map[string][]string)
			}
			out[t.Columns[i].Name] = labels
		}
	}
	return out
}

// override resolves a typeOverrides entry for a column.
func (e *Emitter) override(table string, col *schema.Column) (string, bool) {
	name, ok := e.cfg.TypeOverrides[fmt.Sprintf("%s.%s", table, col.Name)]
	return name, ok
}
