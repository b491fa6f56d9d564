// Package schema defines the normalized database model produced by
// introspection and consumed read-only by the classifier, the emitter,
// and the runtime. A Model is frozen after construction; nothing in this
// package mutates one once built.
package schema

import (
	"fmt"
	"sort"

	"github.com/syssam/fabrica"
)

// Type is the semantic type of a column, collapsed from the catalog's
// storage types into the categories the filter compiler and emitter
// care about.
type Type uint8

// Column semantic types.
const (
	TypeUnknown Type = iota
	TypeUUID
	TypeText
	TypeInt
	TypeFloat
	TypeNumeric
	TypeBool
	TypeTimestamp
	TypeDate
	TypeJSON
	TypeBytes
	TypeEnum
	TypeArray
	TypeVector
)

var typeNames = [...]string{
	TypeUnknown:   "unknown",
	TypeUUID:      "uuid",
	TypeText:      "text",
	TypeInt:       "integer",
	TypeFloat:     "float",
	TypeNumeric:   "numeric",
	TypeBool:      "boolean",
	TypeTimestamp: "timestamp",
	TypeDate:      "date",
	TypeJSON:      "json",
	TypeBytes:     "bytea",
	TypeEnum:      "enum",
	TypeArray:     "array",
	TypeVector:    "vector",
}

// String returns the lowercase name of the type.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler so Types render as names
// in JSON output.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	for i, name := range typeNames {
		if name == string(text) {
			*t = Type(i)
			return nil
		}
	}
	return fmt.Errorf("schema: unknown column type %q", text)
}

// Comparable reports whether range operators ($gt, $gte, $lt, $lte)
// apply to the type.
func (t Type) Comparable() bool {
	switch t {
	case TypeUUID, TypeText, TypeInt, TypeFloat, TypeNumeric, TypeTimestamp, TypeDate, TypeEnum:
		return true
	}
	return false
}

// Orderable reports whether ORDER BY on a column of this type is
// accepted. Booleans order fine; json, bytea, arrays and vectors are
// rejected at validation time.
func (t Type) Orderable() bool {
	return t.Comparable() || t == TypeBool
}

// Textual reports whether pattern operators ($like, $ilike) apply.
func (t Type) Textual() bool {
	return t == TypeText
}

// Column describes one table column in catalog ordinal order.
type Column struct {
	Name       string `json:"name"`
	Type       Type   `json:"type"`
	DataType   string `json:"dataType"`            // raw catalog type name, e.g. "timestamptz"
	Elem       Type   `json:"elem,omitempty"`      // element type when Type is array
	EnumType   string `json:"enumType,omitempty"`  // referenced enum type name
	VectorDim  int    `json:"vectorDim,omitempty"` // declared dimension, 0 when unspecified
	Nullable   bool   `json:"nullable"`
	HasDefault bool   `json:"hasDefault"`
	Position   int    `json:"position"` // catalog ordinal, 1-based
}

// Required reports whether an insert must provide a value: the column is
// neither nullable nor covered by a database default.
func (c *Column) Required() bool {
	return !c.Nullable && !c.HasDefault
}

// ForeignKey describes one foreign-key constraint. Columns and
// RefColumns are pairwise ordered by constraint ordinal.
type ForeignKey struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	RefTable   string   `json:"refTable"`
	RefColumns []string `json:"refColumns"`
	OnDelete   string   `json:"onDelete,omitempty"`
	OnUpdate   string   `json:"onUpdate,omitempty"`
}

// Index describes a unique index; Columns preserve index key order.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// Table describes one relation in the target schema.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  []string     `json:"primaryKey"`
	Uniques     []Index      `json:"uniques,omitempty"`
	ForeignKeys []ForeignKey `json:"foreignKeys,omitempty"`

	// Junction is set by the classifier post-pass when the table's only
	// role is associating two parents. Junction tables keep their CRUD
	// endpoints but are suppressed from the public relation graph.
	Junction bool `json:"junction,omitempty"`
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PKColumns returns the primary-key columns in key order.
func (t *Table) PKColumns() []*Column {
	cols := make([]*Column, 0, len(t.PrimaryKey))
	for _, name := range t.PrimaryKey {
		if c, ok := t.Column(name); ok {
			cols = append(cols, c)
		}
	}
	return cols
}

// UniqueCovers reports whether the given column set equals the primary
// key or any unique index as a set. Used to decide one-vs-many reverse
// edges and junction detection.
func (t *Table) UniqueCovers(cols []string) bool {
	if sameColumnSet(t.PrimaryKey, cols) {
		return true
	}
	for _, idx := range t.Uniques {
		if sameColumnSet(idx.Columns, cols) {
			return true
		}
	}
	return false
}

func sameColumnSet(a, b []string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// Enum describes a PostgreSQL enum type. Label order is the catalog
// sort order and is preserved.
type Enum struct {
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}

// HasLabel reports whether the label belongs to the enum.
func (e *Enum) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Model is the normalized description of one database schema. Tables
// and Enums are sorted by name; within a table, columns keep their
// catalog ordinal positions.
type Model struct {
	Schema string   `json:"schema"`
	Tables []*Table `json:"tables"`
	Enums  []*Enum  `json:"enums,omitempty"`
}

// Table returns the named table.
func (m *Model) Table(name string) (*Table, bool) {
	for _, t := range m.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Enum returns the named enum type.
func (m *Model) Enum(name string) (*Enum, bool) {
	for _, e := range m.Enums {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// EnumLabels returns the labels for a column's enum type, or nil when
// the column is not an enum reference.
func (m *Model) EnumLabels(c *Column) []string {
	if c.Type != TypeEnum || c.EnumType == "" {
		return nil
	}
	if e, ok := m.Enum(c.EnumType); ok {
		return e.Labels
	}
	return nil
}

// Sort orders tables and enums by name and re-sorts nothing else;
// column, key and index orders are catalog-defined and left alone.
func (m *Model) Sort() {
	sort.Slice(m.Tables, func(i, j int) bool { return m.Tables[i].Name < m.Tables[j].Name })
	sort.Slice(m.Enums, func(i, j int) bool { return m.Enums[i].Name < m.Enums[j].Name })
}

// Validate checks the structural invariants the classifier and emitter
// rely on: key and index columns exist, foreign-key arities match, and
// foreign-key column tuples type-match their referenced columns.
func (m *Model) Validate() error {
	for _, t := range m.Tables {
		for _, name := range t.PrimaryKey {
			if !t.HasColumn(name) {
				return fabrica.NewClassificationError(t.Name, fmt.Sprintf("primary key column %q does not exist", name))
			}
		}
		for _, idx := range t.Uniques {
			for _, name := range idx.Columns {
				if !t.HasColumn(name) {
					return fabrica.NewClassificationError(t.Name, fmt.Sprintf("unique index %q column %q does not exist", idx.Name, name))
				}
			}
		}
		for _, fk := range t.ForeignKeys {
			if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.RefColumns) {
				return fabrica.NewClassificationError(t.Name, fmt.Sprintf("foreign key %q column count mismatch (%d -> %d)", fk.Name, len(fk.Columns), len(fk.RefColumns)))
			}
			ref, ok := m.Table(fk.RefTable)
			if !ok {
				return fabrica.NewClassificationError(t.Name, fmt.Sprintf("foreign key %q references unknown table %q", fk.Name, fk.RefTable))
			}
			for i, name := range fk.Columns {
				from, ok := t.Column(name)
				if !ok {
					return fabrica.NewClassificationError(t.Name, fmt.Sprintf("foreign key %q column %q does not exist", fk.Name, name))
				}
				to, ok := ref.Column(fk.RefColumns[i])
				if !ok {
					return fabrica.NewClassificationError(t.Name, fmt.Sprintf("foreign key %q references unknown column %s.%q", fk.Name, fk.RefTable, fk.RefColumns[i]))
				}
				if from.Type != to.Type {
					return fabrica.NewClassificationError(t.Name, fmt.Sprintf("foreign key %q type mismatch: %s.%s is %s, %s.%s is %s",
						fk.Name, t.Name, from.Name, from.Type, ref.Name, to.Name, to.Type))
				}
			}
		}
	}
	return nil
}
