package gen

import (
	"github.com/dave/jennifer/jen"

	"github.com/syssam/fabrica/schema"
)

// goType maps a column onto its wire-faithful Go type. uuids, enums,
// numerics and bytea travel as strings; timestamps follow the dateType
// setting. Overrides apply to jsonb columns in the server package only,
// since the named type must live next to the generated code.
func (e *Emitter) goType(table string, c *schema.Column, client bool) *jen.Statement {
	switch c.Type {
	case schema.TypeInt:
		return jen.Int64()
	case schema.TypeFloat:
		return jen.Float64()
	case schema.TypeBool:
		return jen.Bool()
	case schema.TypeTimestamp, schema.TypeDate:
		if e.cfg.DateType == "time" {
			return jen.Qual("time", "Time")
		}
		return jen.String()
	case schema.TypeJSON:
		if !client {
			if name, ok := e.override(table, c); ok {
				return jen.Id(name)
			}
		}
		return jen.Qual("encoding/json", "RawMessage")
	case schema.TypeArray:
		elem := schema.Column{Name: c.Name, Type: c.Elem}
		return jen.Index().Add(e.goType(table, &elem, client))
	case schema.TypeVector:
		return jen.Index().Float64()
	case schema.TypeUUID, schema.TypeText, schema.TypeEnum, schema.TypeNumeric, schema.TypeBytes:
		return jen.String()
	default:
		return jen.Any()
	}
}

// nilable reports whether the mapped Go type already distinguishes
// absent from zero, so struct fields skip the extra pointer.
func nilable(c *schema.Column) bool {
	switch c.Type {
	case schema.TypeJSON, schema.TypeArray, schema.TypeVector:
		return true
	}
	return false
}

type fieldMode uint8

const (
	rowField    fieldMode = iota // nullable columns are pointers
	insertField                  // optional columns are pointers + omitempty
	updateField                  // every column is a pointer + omitempty
)

func (e *Emitter) structFields(t *schema.Table, mode fieldMode, client bool) []jen.Code {
	fields := make([]jen.Code, 0, len(t.Columns))
	for i := range t.Columns {
		c := &t.Columns[i]
		typ := e.goType(t.Name, c, client)
		tag := c.Name

		pointer := false
		switch mode {
		case rowField:
			pointer = c.Nullable
			if c.Nullable {
				tag += ",omitempty"
			}
		case insertField:
			pointer = !c.Required()
			if pointer {
				tag += ",omitempty"
			}
		case updateField:
			pointer = true
			tag += ",omitempty"
		}
		if nilable(c) {
			pointer = false
		}

		field := jen.Id(exported(c.Name))
		if pointer {
			field.Op("*")
		}
		fields = append(fields, field.Add(typ).Tag(map[string]string{"json": tag}))
	}
	return fields
}

// typesFile emits types.go: per-table Row, Insert and Update structs.
func (e *Emitter) typesFile() *jen.File {
	f := e.newFile()
	for _, t := range e.model.Tables {
		name := typeName(t.Name)

		f.Commentf("%s is one %s row.", name, t.Name)
		f.Type().Id(name).Struct(e.structFields(t, rowField, false)...)
		f.Line()

		f.Commentf("%sInsert is the create body for %s.", name, t.Name)
		f.Type().Id(name + "Insert").Struct(e.structFields(t, insertField, false)...)
		f.Line()

		f.Commentf("%sUpdate is the patch body for %s; absent fields stay untouched.", name, t.Name)
		f.Type().Id(name + "Update").Struct(e.structFields(t, updateField, false)...)
		f.Line()
	}
	return f
}

// includeFile emits include.go: per-table relation selector structs.
// Pointer references keep cyclic schemas finite; the runtime enforces
// the depth cap on the decoded spec.
func (e *Emitter) includeFile() *jen.File {
	f := e.newFile()
	for _, t := range e.model.Tables {
		if t.Junction {
			continue
		}
		name := pluralName(t.Name) + "Include"
		f.Commentf("%s selects relations to attach to %s rows.", name, t.Name)
		f.Type().Id(name).StructFunc(func(g *jen.Group) {
			for _, key := range e.graph.RelationKeys(t.Name) {
				edge, _ := e.graph.Edge(t.Name, key)
				g.Id(exported(key)).Op("*").Id(pluralName(edge.To) + "Include").Tag(map[string]string{"json": key + ",omitempty"})
			}
		})
		f.Line()
	}
	return f
}
