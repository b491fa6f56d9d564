// Package validate builds JSON Schemas for table writes and checks
// request bodies against them. Insert schemas require every column
// that has neither a default nor a null option; update schemas make
// everything optional. Both reject unknown properties so typos fail
// loudly instead of silently dropping data.
package validate

import (
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/schema"
)

// ForInsert builds the insert-body schema for t. enums maps column
// names to their accepted labels.
func ForInsert(t *schema.Table, enums map[string][]string) *jsonschema.Schema {
	s := base(t, enums)
	var required []string
	for i := range t.Columns {
		if t.Columns[i].Required() {
			required = append(required, t.Columns[i].Name)
		}
	}
	sort.Strings(required)
	s.Required = required
	return s
}

// ForUpdate builds the patch-body schema for t: the same properties
// with nothing required. Primary key columns are stripped by the
// handler before validation, so they stay in the schema.
func ForUpdate(t *schema.Table, enums map[string][]string) *jsonschema.Schema {
	return base(t, enums)
}

func base(t *schema.Table, enums map[string][]string) *jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(t.Columns))
	for i := range t.Columns {
		col := &t.Columns[i]
		props[col.Name] = columnSchema(col, enums[col.Name])
	}
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

// columnSchema maps one column to its value schema. Nullable columns
// widen to a type union with null.
func columnSchema(col *schema.Column, labels []string) *jsonschema.Schema {
	var s *jsonschema.Schema
	switch col.Type {
	case schema.TypeUUID:
		s = &jsonschema.Schema{Type: "string", Format: "uuid"}
	case schema.TypeText:
		s = &jsonschema.Schema{Type: "string"}
	case schema.TypeEnum:
		vals := make([]any, len(labels))
		for i, l := range labels {
			vals[i] = l
		}
		s = &jsonschema.Schema{Type: "string", Enum: vals}
	case schema.TypeInt:
		s = &jsonschema.Schema{Type: "integer"}
	case schema.TypeFloat, schema.TypeNumeric:
		s = &jsonschema.Schema{Type: "number"}
	case schema.TypeBool:
		s = &jsonschema.Schema{Type: "boolean"}
	case schema.TypeTimestamp:
		s = &jsonschema.Schema{Type: "string", Format: "date-time"}
	case schema.TypeDate:
		s = &jsonschema.Schema{Type: "string", Format: "date"}
	case schema.TypeBytes:
		s = &jsonschema.Schema{Type: "string"}
	case schema.TypeArray:
		s = &jsonschema.Schema{Type: "array", Items: elemSchema(col.Elem)}
	case schema.TypeVector:
		s = &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "number"}}
		if col.VectorDim > 0 {
			s.MinItems = jsonschema.Ptr(col.VectorDim)
			s.MaxItems = jsonschema.Ptr(col.VectorDim)
		}
	case schema.TypeJSON:
		// Any JSON value; shape overrides apply in the emitted types,
		// not at the validation boundary.
		s = &jsonschema.Schema{}
	default:
		s = &jsonschema.Schema{}
	}
	if col.Nullable && s.Type != "" {
		s.Types = []string{s.Type, "null"}
		s.Type = ""
	}
	return s
}

func elemSchema(elem schema.Type) *jsonschema.Schema {
	switch elem {
	case schema.TypeText, schema.TypeUUID:
		return &jsonschema.Schema{Type: "string"}
	case schema.TypeInt:
		return &jsonschema.Schema{Type: "integer"}
	case schema.TypeFloat, schema.TypeNumeric:
		return &jsonschema.Schema{Type: "number"}
	case schema.TypeBool:
		return &jsonschema.Schema{Type: "boolean"}
	default:
		return &jsonschema.Schema{}
	}
}

// Schemas holds the resolved write schemas for one table.
type Schemas struct {
	table  *schema.Table
	insert *jsonschema.Resolved
	update *jsonschema.Resolved
}

// Compile builds and resolves both write schemas for t.
func Compile(t *schema.Table, enums map[string][]string) (*Schemas, error) {
	ins, err := ForInsert(t, enums).Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve insert schema for %q: %w", t.Name, err)
	}
	upd, err := ForUpdate(t, enums).Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve update schema for %q: %w", t.Name, err)
	}
	return &Schemas{table: t, insert: ins, update: upd}, nil
}

// CheckInsert validates a create body. Returns a ValidationError with
// one issue per problem, or nil.
func (s *Schemas) CheckInsert(body map[string]any) error {
	return s.check(s.insert, body, true)
}

// CheckUpdate validates a patch body (primary key columns already
// stripped by the caller).
func (s *Schemas) CheckUpdate(body map[string]any) error {
	return s.check(s.update, body, false)
}

// check reports unknown properties and missing required columns with
// per-column paths, then defers the value checks to the resolved
// schema.
func (s *Schemas) check(rs *jsonschema.Resolved, body map[string]any, insert bool) error {
	verr := &fabrica.ValidationError{}
	for _, name := range sortedKeys(body) {
		if _, ok := s.table.Column(name); !ok {
			verr.Append(name, "unknown column")
		}
	}
	if insert {
		for i := range s.table.Columns {
			col := &s.table.Columns[i]
			if !col.Required() {
				continue
			}
			if v, ok := body[col.Name]; !ok || v == nil {
				verr.Append(col.Name, "is required")
			}
		}
	}
	if !verr.Empty() {
		return verr
	}
	if err := rs.Validate(body); err != nil {
		verr.Append("", err.Error())
		return verr
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
