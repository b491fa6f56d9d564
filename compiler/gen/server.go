package gen

import (
	"github.com/dave/jennifer/jen"

	"github.com/syssam/fabrica/graph"
	"github.com/syssam/fabrica/schema"
)

// tablesFile emits tables.go: the frozen schema.Model literal.
func (e *Emitter) tablesFile() *jen.File {
	f := e.newFile()

	tables := make([]jen.Code, len(e.model.Tables))
	for i, t := range e.model.Tables {
		tables[i] = tableLit(t)
	}
	enums := make([]jen.Code, len(e.model.Enums))
	for i, en := range e.model.Enums {
		enums[i] = jen.Values(jen.Dict{
			jen.Id("Name"):   jen.Lit(en.Name),
			jen.Id("Labels"): stringSlice(en.Labels),
		})
	}

	modelDict := jen.Dict{
		jen.Id("Schema"): jen.Lit(e.model.Schema),
		jen.Id("Tables"): jen.Index().Op("*").Qual(pkgSchema, "Table").Values(tables...),
	}
	if len(enums) > 0 {
		modelDict[jen.Id("Enums")] = jen.Index().Op("*").Qual(pkgSchema, "Enum").Values(enums...)
	}

	f.Comment("Model returns the database model this server was generated from.")
	f.Func().Id("Model").Params().Op("*").Qual(pkgSchema, "Model").Block(
		jen.Return(jen.Op("&").Qual(pkgSchema, "Model").Values(modelDict)),
	)
	return f
}

func tableLit(t *schema.Table) jen.Code {
	cols := make([]jen.Code, len(t.Columns))
	for i := range t.Columns {
		cols[i] = columnLit(&t.Columns[i])
	}
	d := jen.Dict{
		jen.Id("Name"):       jen.Lit(t.Name),
		jen.Id("Columns"):    jen.Index().Qual(pkgSchema, "Column").Values(cols...),
		jen.Id("PrimaryKey"): stringSlice(t.PrimaryKey),
	}
	if len(t.Uniques) > 0 {
		idx := make([]jen.Code, len(t.Uniques))
		for i, u := range t.Uniques {
			idx[i] = jen.Values(jen.Dict{
				jen.Id("Name"):    jen.Lit(u.Name),
				jen.Id("Columns"): stringSlice(u.Columns),
			})
		}
		d[jen.Id("Uniques")] = jen.Index().Qual(pkgSchema, "Index").Values(idx...)
	}
	if len(t.ForeignKeys) > 0 {
		fks := make([]jen.Code, len(t.ForeignKeys))
		for i, fk := range t.ForeignKeys {
			fd := jen.Dict{
				jen.Id("Name"):       jen.Lit(fk.Name),
				jen.Id("Columns"):    stringSlice(fk.Columns),
				jen.Id("RefTable"):   jen.Lit(fk.RefTable),
				jen.Id("RefColumns"): stringSlice(fk.RefColumns),
			}
			if fk.OnDelete != "" {
				fd[jen.Id("OnDelete")] = jen.Lit(fk.OnDelete)
			}
			if fk.OnUpdate != "" {
				fd[jen.Id("OnUpdate")] = jen.Lit(fk.OnUpdate)
			}
			fks[i] = jen.Values(fd)
		}
		d[jen.Id("ForeignKeys")] = jen.Index().Qual(pkgSchema, "ForeignKey").Values(fks...)
	}
	if t.Junction {
		d[jen.Id("Junction")] = jen.True()
	}
	return jen.Values(d)
}

func columnLit(c *schema.Column) jen.Code {
	d := jen.Dict{
		jen.Id("Name"):     jen.Lit(c.Name),
		jen.Id("Type"):     typeConst(c.Type),
		jen.Id("DataType"): jen.Lit(c.DataType),
		jen.Id("Position"): jen.Lit(c.Position),
	}
	if c.Elem != schema.TypeUnknown {
		d[jen.Id("Elem")] = typeConst(c.Elem)
	}
	if c.EnumType != "" {
		d[jen.Id("EnumType")] = jen.Lit(c.EnumType)
	}
	if c.VectorDim > 0 {
		d[jen.Id("VectorDim")] = jen.Lit(c.VectorDim)
	}
	if c.Nullable {
		d[jen.Id("Nullable")] = jen.True()
	}
	if c.HasDefault {
		d[jen.Id("HasDefault")] = jen.True()
	}
	return jen.Values(d)
}

var typeConstNames = map[schema.Type]string{
	schema.TypeUUID:      "TypeUUID",
	schema.TypeText:      "TypeText",
	schema.TypeInt:       "TypeInt",
	schema.TypeFloat:     "TypeFloat",
	schema.TypeNumeric:   "TypeNumeric",
	schema.TypeBool:      "TypeBool",
	schema.TypeTimestamp: "TypeTimestamp",
	schema.TypeDate:      "TypeDate",
	schema.TypeJSON:      "TypeJSON",
	schema.TypeBytes:     "TypeBytes",
	schema.TypeEnum:      "TypeEnum",
	schema.TypeArray:     "TypeArray",
	schema.TypeVector:    "TypeVector",
}

func typeConst(t schema.Type) jen.Code {
	if name, ok := typeConstNames[t]; ok {
		return jen.Qual(pkgSchema, name)
	}
	return jen.Qual(pkgSchema, "TypeUnknown")
}

func stringSlice(ss []string) jen.Code {
	lits := make([]jen.Code, len(ss))
	for i, s := range ss {
		lits[i] = jen.Lit(s)
	}
	return jen.Index().String().Values(lits...)
}

// graphFile emits graph.go: the classified relation graph literal.
func (e *Emitter) graphFile() *jen.File {
	f := e.newFile()

	outer := jen.Dict{}
	for _, table := range e.graph.Tables() {
		inner := jen.Dict{}
		for _, key := range e.graph.RelationKeys(table) {
			edge, _ := e.graph.Edge(table, key)
			inner[jen.Lit(key)] = edgeLit(edge)
		}
		outer[jen.Lit(table)] = jen.Values(inner)
	}

	f.Comment("Graph returns the relation graph classified at generation time.")
	f.Func().Id("Graph").Params().Qual(pkgGraph, "Graph").Block(
		jen.Return(jen.Qual(pkgGraph, "Graph").Values(outer)),
	)
	return f
}

func edgeLit(edge graph.Edge) jen.Code {
	kind := "One"
	if edge.Kind == graph.Many {
		kind = "Many"
	}
	d := jen.Dict{
		jen.Id("From"):           jen.Lit(edge.From),
		jen.Id("To"):             jen.Lit(edge.To),
		jen.Id("Kind"):           jen.Qual(pkgGraph, kind),
		jen.Id("LocalColumns"):   stringSlice(edge.LocalColumns),
		jen.Id("ForeignColumns"): stringSlice(edge.ForeignColumns),
	}
	if edge.Junction != "" {
		d[jen.Id("Junction")] = jen.Lit(edge.Junction)
		d[jen.Id("JunctionLocal")] = stringSlice(edge.JunctionLocal)
		d[jen.Id("JunctionForeign")] = stringSlice(edge.JunctionForeign)
	}
	if edge.FK != "" {
		d[jen.Id("FK")] = jen.Lit(edge.FK)
	}
	return jen.Qual(pkgGraph, "Edge").Values(d)
}

// schemasFile emits schemas.go: enum label sets and the compiled
// write-validation schema accessor.
func (e *Emitter) schemasFile() *jen.File {
	f := e.newFile()

	enumDict := jen.Dict{}
	for _, t := range e.model.Tables {
		enums := e.enumColumns(t)
		if len(enums) == 0 {
			continue
		}
		cols := jen.Dict{}
		for name, labels := range enums {
			cols[jen.Lit(name)] = stringSlice(labels)
		}
		enumDict[jen.Lit(t.Name)] = jen.Values(cols)
	}

	f.Comment("enumLabels maps table to enum column label sets, in catalog order.")
	f.Var().Id("enumLabels").Op("=").Map(jen.String()).Map(jen.String()).Index().String().Values(enumDict)
	f.Line()

	f.Comment("Schemas compiles the insert/update validation schemas for every table.")
	f.Func().Id("Schemas").Params().Params(
		jen.Map(jen.String()).Op("*").Qual(pkgValidate, "Schemas"),
		jen.Error(),
	).Block(
		jen.Id("m").Op(":=").Id("Model").Call(),
		jen.Id("out").Op(":=").Make(jen.Map(jen.String()).Op("*").Qual(pkgValidate, "Schemas"), jen.Len(jen.Id("m").Dot("Tables"))),
		jen.For(jen.List(jen.Id("_"), jen.Id("t")).Op(":=").Range().Id("m").Dot("Tables")).Block(
			jen.List(jen.Id("vs"), jen.Id("err")).Op(":=").Qual(pkgValidate, "Compile").Call(jen.Id("t"), jen.Id("enumLabels").Index(jen.Id("t").Dot("Name"))),
			jen.If(jen.Id("err").Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Id("err"))),
			jen.Id("out").Index(jen.Id("t").Dot("Name")).Op("=").Id("vs"),
		),
		jen.Return(jen.Id("out"), jen.Nil()),
	)
	return f
}
