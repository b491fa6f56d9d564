package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/schema"
)

func bookstore() *schema.Model {
	return &schema.Model{
		Schema: "public",
		Tables: []*schema.Table{
			{
				Name: "authors",
				Columns: []schema.Column{
					{Name: "id", Type: schema.TypeUUID, DataType: "uuid", HasDefault: true, Position: 1},
					{Name: "name", Type: schema.TypeText, DataType: "text", Position: 2},
					{Name: "bio", Type: schema.TypeText, DataType: "text", Nullable: true, Position: 3},
				},
				PrimaryKey: []string{"id"},
			},
			{
				Name: "book_tags",
				Columns: []schema.Column{
					{Name: "book_id", Type: schema.TypeUUID, DataType: "uuid", Position: 1},
					{Name: "tag_id", Type: schema.TypeUUID, DataType: "uuid", Position: 2},
				},
				PrimaryKey: []string{"book_id", "tag_id"},
				ForeignKeys: []schema.ForeignKey{
					{Name: "book_tags_book_id_fkey", Columns: []string{"book_id"}, RefTable: "books", RefColumns: []string{"id"}},
					{Name: "book_tags_tag_id_fkey", Columns: []string{"tag_id"}, RefTable: "tags", RefColumns: []string{"id"}},
				},
			},
			{
				Name: "books",
				Columns: []schema.Column{
					{Name: "id", Type: schema.TypeUUID, DataType: "uuid", HasDefault: true, Position: 1},
					{Name: "author_id", Type: schema.TypeUUID, DataType: "uuid", Position: 2},
					{Name: "title", Type: schema.TypeText, DataType: "text", Position: 3},
					{Name: "pages", Type: schema.TypeInt, DataType: "int4", Nullable: true, Position: 4},
					{Name: "metadata", Type: schema.TypeJSON, DataType: "jsonb", Nullable: true, Position: 5},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []schema.ForeignKey{
					{Name: "books_author_id_fkey", Columns: []string{"author_id"}, RefTable: "authors", RefColumns: []string{"id"}},
				},
			},
			{
				Name: "tags",
				Columns: []schema.Column{
					{Name: "id", Type: schema.TypeUUID, DataType: "uuid", HasDefault: true, Position: 1},
					{Name: "name", Type: schema.TypeText, DataType: "text", Position: 2},
				},
				PrimaryKey: []string{"id"},
				Uniques:    []schema.Index{{Name: "tags_name_key", Columns: []string{"name"}}},
			},
		},
	}
}

func TestTypeCategories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ        schema.Type
		comparable bool
		orderable  bool
		textual    bool
	}{
		{schema.TypeUUID, true, true, false},
		{schema.TypeText, true, true, true},
		{schema.TypeInt, true, true, false},
		{schema.TypeFloat, true, true, false},
		{schema.TypeNumeric, true, true, false},
		{schema.TypeBool, false, true, false},
		{schema.TypeTimestamp, true, true, false},
		{schema.TypeDate, true, true, false},
		{schema.TypeJSON, false, false, false},
		{schema.TypeBytes, false, false, false},
		{schema.TypeEnum, true, true, false},
		{schema.TypeArray, false, false, false},
		{schema.TypeVector, false, false, false},
		{schema.TypeUnknown, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.comparable, tt.typ.Comparable())
			assert.Equal(t, tt.orderable, tt.typ.Orderable())
			assert.Equal(t, tt.textual, tt.typ.Textual())
		})
	}
}

func TestTypeTextRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(schema.TypeTimestamp)
	require.NoError(t, err)
	assert.Equal(t, `"timestamp"`, string(data))

	var typ schema.Type
	require.NoError(t, json.Unmarshal([]byte(`"vector"`), &typ))
	assert.Equal(t, schema.TypeVector, typ)

	assert.Error(t, json.Unmarshal([]byte(`"varchar2"`), &typ))
}

func TestTableHelpers(t *testing.T) {
	t.Parallel()

	m := bookstore()
	books, ok := m.Table("books")
	require.True(t, ok)

	t.Run("Column", func(t *testing.T) {
		c, ok := books.Column("title")
		require.True(t, ok)
		assert.Equal(t, schema.TypeText, c.Type)

		_, ok = books.Column("missing")
		assert.False(t, ok)
	})

	t.Run("ColumnNames", func(t *testing.T) {
		assert.Equal(t, []string{"id", "author_id", "title", "pages", "metadata"}, books.ColumnNames())
	})

	t.Run("PKColumns", func(t *testing.T) {
		junction, ok := m.Table("book_tags")
		require.True(t, ok)
		pk := junction.PKColumns()
		require.Len(t, pk, 2)
		assert.Equal(t, "book_id", pk[0].Name)
		assert.Equal(t, "tag_id", pk[1].Name)
	})

	t.Run("Required", func(t *testing.T) {
		title, _ := books.Column("title")
		assert.True(t, title.Required())

		id, _ := books.Column("id")
		assert.False(t, id.Required(), "default-backed column is not required")

		pages, _ := books.Column("pages")
		assert.False(t, pages.Required(), "nullable column is not required")
	})
}

func TestUniqueCovers(t *testing.T) {
	t.Parallel()

	m := bookstore()
	junction, _ := m.Table("book_tags")
	tags, _ := m.Table("tags")

	assert.True(t, junction.UniqueCovers([]string{"book_id", "tag_id"}), "primary key covers")
	assert.True(t, junction.UniqueCovers([]string{"tag_id", "book_id"}), "set equality, order free")
	assert.False(t, junction.UniqueCovers([]string{"book_id"}))

	assert.True(t, tags.UniqueCovers([]string{"name"}), "unique index covers")
	assert.False(t, tags.UniqueCovers(nil))
}

func TestModelLookups(t *testing.T) {
	t.Parallel()

	m := &schema.Model{
		Schema: "public",
		Tables: []*schema.Table{{
			Name: "posts",
			Columns: []schema.Column{
				{Name: "id", Type: schema.TypeInt, Position: 1},
				{Name: "mood", Type: schema.TypeEnum, EnumType: "mood", Position: 2},
			},
			PrimaryKey: []string{"id"},
		}},
		Enums: []*schema.Enum{{Name: "mood", Labels: []string{"happy", "sad"}}},
	}

	e, ok := m.Enum("mood")
	require.True(t, ok)
	assert.True(t, e.HasLabel("happy"))
	assert.False(t, e.HasLabel("angry"))

	posts, _ := m.Table("posts")
	mood, _ := posts.Column("mood")
	assert.Equal(t, []string{"happy", "sad"}, m.EnumLabels(mood))

	id, _ := posts.Column("id")
	assert.Nil(t, m.EnumLabels(id))
}

func TestModelSort(t *testing.T) {
	t.Parallel()

	m := &schema.Model{
		Tables: []*schema.Table{{Name: "zebras"}, {Name: "apples"}},
		Enums:  []*schema.Enum{{Name: "z_enum"}, {Name: "a_enum"}},
	}
	m.Sort()
	assert.Equal(t, "apples", m.Tables[0].Name)
	assert.Equal(t, "zebras", m.Tables[1].Name)
	assert.Equal(t, "a_enum", m.Enums[0].Name)
}

func TestModelValidate(t *testing.T) {
	t.Parallel()

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, bookstore().Validate())
	})

	t.Run("MissingPKColumn", func(t *testing.T) {
		m := bookstore()
		authors, _ := m.Table("authors")
		authors.PrimaryKey = []string{"nope"}
		err := m.Validate()
		require.Error(t, err)
		assert.True(t, fabrica.IsClassificationError(err))
		assert.Contains(t, err.Error(), `"nope"`)
	})

	t.Run("FKArityMismatch", func(t *testing.T) {
		m := bookstore()
		books, _ := m.Table("books")
		books.ForeignKeys[0].RefColumns = []string{"id", "name"}
		err := m.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "column count mismatch")
	})

	t.Run("FKUnknownTable", func(t *testing.T) {
		m := bookstore()
		books, _ := m.Table("books")
		books.ForeignKeys[0].RefTable = "ghosts"
		err := m.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown table "ghosts"`)
	})

	t.Run("FKTypeMismatch", func(t *testing.T) {
		m := bookstore()
		books, _ := m.Table("books")
		c, _ := books.Column("author_id")
		c.Type = schema.TypeInt
		err := m.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "type mismatch")
	})

	t.Run("UniqueIndexUnknownColumn", func(t *testing.T) {
		m := bookstore()
		tags, _ := m.Table("tags")
		tags.Uniques[0].Columns = []string{"label"}
		err := m.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"label"`)
	})
}
