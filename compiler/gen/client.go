package gen

import (
	"go/token"
	"sort"
	"strings"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/fabrica/include"
	"github.com/syssam/fabrica/schema"
)

// clientFiles renders the stdlib-only SDK package. Sources are
// returned as text so the server's manifest.go can embed them.
func (e *Emitter) clientFiles() (map[string]string, error) {
	files := map[string]*jen.File{
		"client.go": e.clientBaseFile(),
		"sdk.go":    e.sdkFile(),
	}
	for _, t := range e.model.Tables {
		name := t.Name + ".go"
		if _, taken := files[name]; taken {
			name = t.Name + "_api.go"
		}
		files[name] = e.tableClientFile(t)
	}

	out := make(map[string]string, len(files))
	for path, f := range files {
		src, err := render(f)
		if err != nil {
			return nil, err
		}
		out[path] = string(src)
	}
	return out, nil
}

func (e *Emitter) newClientFile() *jen.File {
	f := jen.NewFile(ClientPackage)
	f.HeaderComment(header)
	return f
}

// clientBaseFile emits client.go: the shared HTTP client and error
// types. The SDK depends on the standard library only.
func (e *Emitter) clientBaseFile() *jen.File {
	f := e.newClientFile()

	f.Comment("Client is the low-level HTTP client every service shares.")
	f.Type().Id("Client").Struct(
		jen.Id("BaseURL").String(),
		jen.Id("HTTPClient").Op("*").Qual("net/http", "Client"),
		jen.Line(),
		jen.Comment("APIKey is sent in APIKeyHeader when set."),
		jen.Id("APIKey").String(),
		jen.Id("APIKeyHeader").String(),
		jen.Line(),
		jen.Comment("BearerToken is sent as an Authorization bearer token when set."),
		jen.Id("BearerToken").String(),
	)
	f.Line()

	f.Comment("NewClient returns a Client for the server at baseURL.")
	f.Func().Id("NewClient").Params(jen.Id("baseURL").String()).Op("*").Id("Client").Block(
		jen.Return(jen.Op("&").Id("Client").Values(jen.Dict{
			jen.Id("BaseURL"):      jen.Qual("strings", "TrimRight").Call(jen.Id("baseURL"), jen.Lit("/")),
			jen.Id("HTTPClient"):   jen.Qual("net/http", "DefaultClient"),
			jen.Id("APIKeyHeader"): jen.Lit("X-API-Key"),
		})),
	)
	f.Line()

	f.Comment("VectorSpec is the similarity search attached to a list request.")
	f.Comment("Matching rows carry the projected distance as _distance.")
	f.Type().Id("VectorSpec").Struct(
		jen.Id("Field").String().Tag(map[string]string{"json": "field"}),
		jen.Id("Query").Index().Float64().Tag(map[string]string{"json": "query"}),
		jen.Comment("Metric is cosine, l2 or inner; empty defaults to cosine."),
		jen.Id("Metric").String().Tag(map[string]string{"json": "metric,omitempty"}),
		jen.Id("MaxDistance").Op("*").Float64().Tag(map[string]string{"json": "maxDistance,omitempty"}),
	)
	f.Line()

	f.Comment("APIError is a non-2xx response.")
	f.Type().Id("APIError").Struct(
		jen.Id("StatusCode").Int().Tag(map[string]string{"json": "-"}),
		jen.Id("Message").String().Tag(map[string]string{"json": "error"}),
		jen.Id("Issues").Qual("encoding/json", "RawMessage").Tag(map[string]string{"json": "issues,omitempty"}),
	)
	f.Line()

	f.Func().Params(jen.Id("e").Op("*").Id("APIError")).Id("Error").Params().String().Block(
		jen.Return(jen.Qual("fmt", "Sprintf").Call(jen.Lit("api: %d %s"), jen.Id("e").Dot("StatusCode"), jen.Id("e").Dot("Message"))),
	)
	f.Line()

	f.Comment("ErrNotFound reports a 404 for a keyed lookup.")
	f.Var().Id("ErrNotFound").Op("=").Op("&").Id("APIError").Values(jen.Dict{
		jen.Id("StatusCode"): jen.Qual("net/http", "StatusNotFound"),
		jen.Id("Message"):    jen.Lit("not found"),
	})
	f.Line()

	f.Func().Params(jen.Id("c").Op("*").Id("Client")).Id("do").Params(
		jen.Id("ctx").Qual("context", "Context"),
		jen.Id("method").String(),
		jen.Id("path").String(),
		jen.Id("in").Any(),
		jen.Id("out").Any(),
	).Error().Block(
		jen.Var().Id("body").Qual("io", "Reader"),
		jen.If(jen.Id("in").Op("!=").Nil()).Block(
			jen.List(jen.Id("raw"), jen.Id("err")).Op(":=").Qual("encoding/json", "Marshal").Call(jen.Id("in")),
			jen.If(jen.Id("err").Op("!=").Nil()).Block(jen.Return(jen.Id("err"))),
			jen.Id("body").Op("=").Qual("bytes", "NewReader").Call(jen.Id("raw")),
		),
		jen.List(jen.Id("req"), jen.Id("err")).Op(":=").Qual("net/http", "NewRequestWithContext").Call(
			jen.Id("ctx"), jen.Id("method"), jen.Id("c").Dot("BaseURL").Op("+").Id("path"), jen.Id("body"),
		),
		jen.If(jen.Id("err").Op("!=").Nil()).Block(jen.Return(jen.Id("err"))),
		jen.If(jen.Id("in").Op("!=").Nil()).Block(
			jen.Id("req").Dot("Header").Dot("Set").Call(jen.Lit("Content-Type"), jen.Lit("application/json")),
		),
		jen.If(jen.Id("c").Dot("APIKey").Op("!=").Lit("")).Block(
			jen.Id("req").Dot("Header").Dot("Set").Call(jen.Id("c").Dot("APIKeyHeader"), jen.Id("c").Dot("APIKey")),
		),
		jen.If(jen.Id("c").Dot("BearerToken").Op("!=").Lit("")).Block(
			jen.Id("req").Dot("Header").Dot("Set").Call(jen.Lit("Authorization"), jen.Lit("Bearer ").Op("+").Id("c").Dot("BearerToken")),
		),
		jen.Id("hc").Op(":=").Id("c").Dot("HTTPClient"),
		jen.If(jen.Id("hc").Op("==").Nil()).Block(
			jen.Id("hc").Op("=").Qual("net/http", "DefaultClient"),
		),
		jen.List(jen.Id("resp"), jen.Id("err")).Op(":=").Id("hc").Dot("Do").Call(jen.Id("req")),
		jen.If(jen.Id("err").Op("!=").Nil()).Block(jen.Return(jen.Id("err"))),
		jen.Defer().Id("resp").Dot("Body").Dot("Close").Call(),
		jen.List(jen.Id("raw"), jen.Id("err")).Op(":=").Qual("io", "ReadAll").Call(jen.Id("resp").Dot("Body")),
		jen.If(jen.Id("err").Op("!=").Nil()).Block(jen.Return(jen.Id("err"))),
		jen.If(jen.Id("resp").Dot("StatusCode").Op("==").Qual("net/http", "StatusNotFound")).Block(
			jen.Return(jen.Id("ErrNotFound")),
		),
		jen.If(jen.Id("resp").Dot("StatusCode").Op("<").Lit(200).Op("||").Id("resp").Dot("StatusCode").Op(">").Lit(299)).Block(
			jen.Id("apiErr").Op(":=").Op("&").Id("APIError").Values(jen.Dict{jen.Id("StatusCode"): jen.Id("resp").Dot("StatusCode")}),
			jen.If(
				jen.Id("err").Op(":=").Qual("encoding/json", "Unmarshal").Call(jen.Id("raw"), jen.Id("apiErr")),
				jen.Id("err").Op("!=").Nil().Op("||").Id("apiErr").Dot("Message").Op("==").Lit(""),
			).Block(
				jen.Id("apiErr").Dot("Message").Op("=").Qual("net/http", "StatusText").Call(jen.Id("resp").Dot("StatusCode")),
			),
			jen.Return(jen.Id("apiErr")),
		),
		jen.If(jen.Id("out").Op("!=").Nil()).Block(
			jen.Return(jen.Qual("encoding/json", "Unmarshal").Call(jen.Id("raw"), jen.Id("out"))),
		),
		jen.Return(jen.Nil()),
	)
	return f
}

// sdkFile emits sdk.go: the service aggregate.
func (e *Emitter) sdkFile() *jen.File {
	f := e.newClientFile()

	f.Comment("SDK bundles every generated service over one Client.")
	f.Type().Id("SDK").StructFunc(func(g *jen.Group) {
		for _, t := range e.model.Tables {
			g.Id(pluralName(t.Name)).Op("*").Id(pluralName(t.Name) + "Service")
		}
	})
	f.Line()

	f.Comment("NewSDK wires every service over c.")
	f.Func().Id("NewSDK").Params(jen.Id("c").Op("*").Id("Client")).Op("*").Id("SDK").Block(
		jen.Return(jen.Op("&").Id("SDK").ValuesFunc(func(g *jen.Group) {
			d := jen.Dict{}
			for _, t := range e.model.Tables {
				d[jen.Id(pluralName(t.Name))] = jen.Op("&").Id(pluralName(t.Name) + "Service").Values(jen.Dict{
					jen.Id("client"): jen.Id("c"),
				})
			}
			g.Add(jen.Values(d))
		})),
	)
	return f
}

// paramName derives a Go parameter name from a column, steering clear
// of keywords.
func paramName(col string) string {
	name := strings.ReplaceAll(col, "_", "")
	if name == "" || token.IsKeyword(name) {
		name = name + "Arg"
	}
	return name
}

// pkParams builds the typed primary-key parameter list and the path
// expression appending each segment.
func (e *Emitter) pkParams(t *schema.Table) (params []jen.Code, path *jen.Statement) {
	path = jen.Lit("/v1/" + t.Name)
	for _, col := range t.PKColumns() {
		name := paramName(col.Name)
		switch col.Type {
		case schema.TypeInt:
			params = append(params, jen.Id(name).Int64())
			path = path.Op("+").Lit("/").Op("+").Qual("strconv", "FormatInt").Call(jen.Id(name), jen.Lit(10))
		default:
			params = append(params, jen.Id(name).String())
			path = path.Op("+").Lit("/").Op("+").Qual("net/url", "PathEscape").Call(jen.Id(name))
		}
	}
	return params, path
}

// includeLit renders the nested include map for one relation chain.
func includeLit(path include.Path) jen.Code {
	if len(path) == 1 {
		return jen.Map(jen.String()).Any().Values(jen.Dict{jen.Lit(path[0]): jen.True()})
	}
	return jen.Map(jen.String()).Any().Values(jen.Dict{
		jen.Lit(path[0]): jen.Map(jen.String()).Any().Values(jen.Dict{
			jen.Lit("include"): includeLit(path[1:]),
		}),
	})
}

func chainName(path include.Path) string {
	var sb strings.Builder
	for _, key := range path {
		sb.WriteString(exported(key))
	}
	return sb.String()
}

// tableClientFile emits one table's typed service: row structs, CRUD
// methods and the enumerated include-chain helpers.
// clientReserved are identifiers claimed by client.go and sdk.go.
var clientReserved = map[string]bool{"Client": true, "SDK": true, "APIError": true, "VectorSpec": true}

func (e *Emitter) tableClientFile(t *schema.Table) *jen.File {
	f := e.newClientFile()
	row := typeName(t.Name)
	if clientReserved[row] {
		row += "Row"
	}
	svc := pluralName(t.Name) + "Service"
	base := "/v1/" + t.Name
	recv := jen.Id("s").Op("*").Id(svc)

	f.Commentf("%s is one %s row.", row, t.Name)
	f.Type().Id(row).Struct(e.structFields(t, rowField, true)...)
	f.Line()
	f.Commentf("%sInsert is the create body for %s.", row, t.Name)
	f.Type().Id(row + "Insert").Struct(e.structFields(t, insertField, true)...)
	f.Line()
	f.Commentf("%sUpdate is the patch body for %s; absent fields stay untouched.", row, t.Name)
	f.Type().Id(row + "Update").Struct(e.structFields(t, updateField, true)...)
	f.Line()

	f.Commentf("%s accesses the %s endpoints.", svc, t.Name)
	f.Type().Id(svc).Struct(jen.Id("client").Op("*").Id("Client"))
	f.Line()

	f.Commentf("%sListRequest is the list body for %s.", row, t.Name)
	f.Type().Id(row + "ListRequest").Struct(
		jen.Id("Include").Map(jen.String()).Any().Tag(map[string]string{"json": "include,omitempty"}),
		jen.Id("Where").Map(jen.String()).Any().Tag(map[string]string{"json": "where,omitempty"}),
		jen.Id("Limit").Op("*").Int().Tag(map[string]string{"json": "limit,omitempty"}),
		jen.Id("Offset").Op("*").Int().Tag(map[string]string{"json": "offset,omitempty"}),
		jen.Id("OrderBy").Any().Tag(map[string]string{"json": "orderBy,omitempty"}),
		jen.Id("Order").Any().Tag(map[string]string{"json": "order,omitempty"}),
		jen.Id("Select").Index().String().Tag(map[string]string{"json": "select,omitempty"}),
		jen.Id("Exclude").Index().String().Tag(map[string]string{"json": "exclude,omitempty"}),
		jen.Id("Vector").Op("*").Id("VectorSpec").Tag(map[string]string{"json": "vector,omitempty"}),
		jen.Id("WithDeleted").Bool().Tag(map[string]string{"json": "withDeleted,omitempty"}),
	)
	f.Line()

	f.Commentf("%sList is the pagination envelope for %s.", row, t.Name)
	f.Type().Id(row + "List").Struct(
		jen.Id("Data").Index().Qual("encoding/json", "RawMessage").Tag(map[string]string{"json": "data"}),
		jen.Id("Total").Int().Tag(map[string]string{"json": "total"}),
		jen.Id("Limit").Int().Tag(map[string]string{"json": "limit"}),
		jen.Id("Offset").Int().Tag(map[string]string{"json": "offset"}),
		jen.Id("HasMore").Bool().Tag(map[string]string{"json": "hasMore"}),
	)
	f.Line()

	f.Commentf("Rows decodes the page into %s values.", row)
	f.Func().Params(jen.Id("l").Op("*").Id(row + "List")).Id("Rows").Params().Params(jen.Index().Id(row), jen.Error()).Block(
		jen.Id("rows").Op(":=").Make(jen.Index().Id(row), jen.Len(jen.Id("l").Dot("Data"))),
		jen.For(jen.List(jen.Id("i"), jen.Id("raw")).Op(":=").Range().Id("l").Dot("Data")).Block(
			jen.If(
				jen.Id("err").Op(":=").Qual("encoding/json", "Unmarshal").Call(jen.Id("raw"), jen.Op("&").Id("rows").Index(jen.Id("i"))),
				jen.Id("err").Op("!=").Nil(),
			).Block(jen.Return(jen.Nil(), jen.Id("err"))),
		),
		jen.Return(jen.Id("rows"), jen.Nil()),
	)
	f.Line()

	f.Commentf("List lists %s.", t.Name)
	f.Func().Params(recv.Clone()).Id("List").Params(
		jen.Id("ctx").Qual("context", "Context"),
		jen.Id("req").Op("*").Id(row+"ListRequest"),
	).Params(jen.Op("*").Id(row+"List"), jen.Error()).Block(
		jen.If(jen.Id("req").Op("==").Nil()).Block(
			jen.Id("req").Op("=").Op("&").Id(row+"ListRequest").Values(),
		),
		jen.Var().Id("out").Id(row+"List"),
		jen.If(
			jen.Id("err").Op(":=").Id("s").Dot("client").Dot("do").Call(
				jen.Id("ctx"), jen.Qual("net/http", "MethodPost"), jen.Lit(base+"/list"), jen.Id("req"), jen.Op("&").Id("out"),
			),
			jen.Id("err").Op("!=").Nil(),
		).Block(jen.Return(jen.Nil(), jen.Id("err"))),
		jen.Return(jen.Op("&").Id("out"), jen.Nil()),
	)
	f.Line()

	pkParams, pkPath := e.pkParams(t)

	f.Commentf("Get fetches one %s row by primary key.", t.Name)
	f.Func().Params(recv.Clone()).Id("Get").Params(
		append([]jen.Code{jen.Id("ctx").Qual("context", "Context")}, pkParams...)...,
	).Params(jen.Op("*").Id(row), jen.Error()).Block(
		jen.Var().Id("out").Id(row),
		jen.If(
			jen.Id("err").Op(":=").Id("s").Dot("client").Dot("do").Call(
				jen.Id("ctx"), jen.Qual("net/http", "MethodGet"), pkPath.Clone(), jen.Nil(), jen.Op("&").Id("out"),
			),
			jen.Id("err").Op("!=").Nil(),
		).Block(jen.Return(jen.Nil(), jen.Id("err"))),
		jen.Return(jen.Op("&").Id("out"), jen.Nil()),
	)
	f.Line()

	f.Commentf("Create inserts one %s row.", t.Name)
	f.Func().Params(recv.Clone()).Id("Create").Params(
		jen.Id("ctx").Qual("context", "Context"),
		jen.Id("in").Op("*").Id(row+"Insert"),
	).Params(jen.Op("*").Id(row), jen.Error()).Block(
		jen.Var().Id("out").Id(row),
		jen.If(
			jen.Id("err").Op(":=").Id("s").Dot("client").Dot("do").Call(
				jen.Id("ctx"), jen.Qual("net/http", "MethodPost"), jen.Lit(base), jen.Id("in"), jen.Op("&").Id("out"),
			),
			jen.Id("err").Op("!=").Nil(),
		).Block(jen.Return(jen.Nil(), jen.Id("err"))),
		jen.Return(jen.Op("&").Id("out"), jen.Nil()),
	)
	f.Line()

	f.Commentf("Update patches one %s row.", t.Name)
	f.Func().Params(recv.Clone()).Id("Update").Params(
		append(append([]jen.Code{jen.Id("ctx").Qual("context", "Context")}, pkParams...),
			jen.Id("in").Op("*").Id(row+"Update"))...,
	).Params(jen.Op("*").Id(row), jen.Error()).Block(
		jen.Var().Id("out").Id(row),
		jen.If(
			jen.Id("err").Op(":=").Id("s").Dot("client").Dot("do").Call(
				jen.Id("ctx"), jen.Qual("net/http", "MethodPatch"), pkPath.Clone(), jen.Id("in"), jen.Op("&").Id("out"),
			),
			jen.Id("err").Op("!=").Nil(),
		).Block(jen.Return(jen.Nil(), jen.Id("err"))),
		jen.Return(jen.Op("&").Id("out"), jen.Nil()),
	)
	f.Line()

	f.Commentf("Delete removes one %s row and returns it.", t.Name)
	f.Func().Params(recv.Clone()).Id("Delete").Params(
		append([]jen.Code{jen.Id("ctx").Qual("context", "Context")}, pkParams...)...,
	).Params(jen.Op("*").Id(row), jen.Error()).Block(
		jen.Var().Id("out").Id(row),
		jen.If(
			jen.Id("err").Op(":=").Id("s").Dot("client").Dot("do").Call(
				jen.Id("ctx"), jen.Qual("net/http", "MethodDelete"), pkPath.Clone(), jen.Nil(), jen.Op("&").Id("out"),
			),
			jen.Id("err").Op("!=").Nil(),
		).Block(jen.Return(jen.Nil(), jen.Id("err"))),
		jen.Return(jen.Op("&").Id("out"), jen.Nil()),
	)
	f.Line()

	e.chainMethods(f, t, row, recv)
	return f
}

// chainMethods emits ListWith<Chain> and GetWith<Chain> for every
// relation path reachable within includeMethodsDepth.
func (e *Emitter) chainMethods(f *jen.File, t *schema.Table, row string, recv *jen.Statement) {
	paths := include.Paths(e.graph, t.Name, e.cfg.IncludeMethodsDepth)
	sort.Slice(paths, func(i, j int) bool { return chainName(paths[i]) < chainName(paths[j]) })

	for _, path := range paths {
		suffix := chainName(path)
		chain := strings.Join(path, ".")

		f.Commentf("ListWith%s lists %s with the %s chain attached.", suffix, t.Name, chain)
		f.Func().Params(recv.Clone()).Id("ListWith"+suffix).Params(
			jen.Id("ctx").Qual("context", "Context"),
			jen.Id("req").Op("*").Id(row+"ListRequest"),
		).Params(jen.Op("*").Id(row+"List"), jen.Error()).Block(
			jen.If(jen.Id("req").Op("==").Nil()).Block(
				jen.Id("req").Op("=").Op("&").Id(row+"ListRequest").Values(),
			),
			jen.Id("req").Dot("Include").Op("=").Add(includeLit(path)),
			jen.Return(jen.Id("s").Dot("List").Call(jen.Id("ctx"), jen.Id("req"))),
		)
		f.Line()

		pkWhere := jen.Dict{}
		getParams := []jen.Code{jen.Id("ctx").Qual("context", "Context")}
		for _, col := range t.PKColumns() {
			name := paramName(col.Name)
			if col.Type == schema.TypeInt {
				getParams = append(getParams, jen.Id(name).Int64())
			} else {
				getParams = append(getParams, jen.Id(name).String())
			}
			pkWhere[jen.Lit(col.Name)] = jen.Id(name)
		}

		f.Commentf("GetWith%s fetches one %s row by primary key with the %s chain attached.", suffix, t.Name, chain)
		f.Func().Params(recv.Clone()).Id("GetWith"+suffix).Params(getParams...).Params(
			jen.Qual("encoding/json", "RawMessage"), jen.Error(),
		).Block(
			jen.Id("limit").Op(":=").Lit(1),
			jen.List(jen.Id("page"), jen.Id("err")).Op(":=").Id("s").Dot("List").Call(
				jen.Id("ctx"),
				jen.Op("&").Id(row+"ListRequest").Values(jen.Dict{
					jen.Id("Include"): includeLit(path),
					jen.Id("Where"):   jen.Map(jen.String()).Any().Values(pkWhere),
					jen.Id("Limit"):   jen.Op("&").Id("limit"),
				}),
			),
			jen.If(jen.Id("err").Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Id("err"))),
			jen.If(jen.Len(jen.Id("page").Dot("Data")).Op("==").Lit(0)).Block(
				jen.Return(jen.Nil(), jen.Id("ErrNotFound")),
			),
			jen.Return(jen.Id("page").Dot("Data").Index(jen.Lit(0)), jen.Nil()),
		)
		f.Line()
	}
}
