package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/graph"
	"github.com/syssam/fabrica/schema"
)

func col(name string, typ schema.Type) schema.Column {
	return schema.Column{Name: name, Type: typ}
}

func tbl(t *testing.T, m *schema.Model, name string) *schema.Table {
	t.Helper()
	table, ok := m.Table(name)
	require.True(t, ok)
	return table
}

func bookstoreModel() *schema.Model {
	return &schema.Model{
		Schema: "public",
		Tables: []*schema.Table{
			{
				Name:       "authors",
				Columns:    []schema.Column{col("id", schema.TypeUUID), col("name", schema.TypeText)},
				PrimaryKey: []string{"id"},
			},
			{
				Name: "book_tags",
				Columns: []schema.Column{
					col("book_id", schema.TypeUUID),
					col("tag_id", schema.TypeUUID),
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
					col("id", schema.TypeUUID),
					col("author_id", schema.TypeUUID),
					col("title", schema.TypeText),
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []schema.ForeignKey{
					{Name: "books_author_id_fkey", Columns: []string{"author_id"}, RefTable: "authors", RefColumns: []string{"id"}},
				},
			},
			{
				Name:       "tags",
				Columns:    []schema.Column{col("id", schema.TypeUUID), col("name", schema.TypeText)},
				PrimaryKey: []string{"id"},
				Uniques:    []schema.Index{{Columns: []string{"name"}}},
			},
		},
	}
}

func TestBuildBookstore(t *testing.T) {
	m := bookstoreModel()
	g, err := graph.Build(m, nil)
	require.NoError(t, err)

	assert.True(t, tbl(t, m, "book_tags").Junction)
	assert.False(t, tbl(t, m, "books").Junction)

	assert.Equal(t, []string{"authors", "books", "tags"}, g.Tables())
	assert.Nil(t, g.Relations("book_tags"))

	t.Run("BelongsTo", func(t *testing.T) {
		e, ok := g.Edge("books", "author")
		require.True(t, ok)
		assert.Equal(t, graph.Edge{
			From:           "books",
			To:             "authors",
			Kind:           graph.One,
			LocalColumns:   []string{"author_id"},
			ForeignColumns: []string{"id"},
			FK:             "books_author_id_fkey",
		}, e)
	})

	t.Run("HasMany", func(t *testing.T) {
		e, ok := g.Edge("authors", "books")
		require.True(t, ok)
		assert.Equal(t, graph.Edge{
			From:           "authors",
			To:             "books",
			Kind:           graph.Many,
			LocalColumns:   []string{"id"},
			ForeignColumns: []string{"author_id"},
			FK:             "books_author_id_fkey",
		}, e)
		assert.False(t, e.M2M())
	})

	t.Run("ManyToMany", func(t *testing.T) {
		e, ok := g.Edge("books", "tags")
		require.True(t, ok)
		assert.True(t, e.M2M())
		assert.Equal(t, graph.Edge{
			From:            "books",
			To:              "tags",
			Kind:            graph.Many,
			LocalColumns:    []string{"id"},
			ForeignColumns:  []string{"id"},
			Junction:        "book_tags",
			JunctionLocal:   []string{"book_id"},
			JunctionForeign: []string{"tag_id"},
			FK:              "book_tags_tag_id_fkey",
		}, e)

		back, ok := g.Edge("tags", "books")
		require.True(t, ok)
		assert.Equal(t, []string{"tag_id"}, back.JunctionLocal)
		assert.Equal(t, []string{"book_id"}, back.JunctionForeign)
		assert.Equal(t, "book_tags_book_id_fkey", back.FK)
	})

	assert.Equal(t, []string{"author", "tags"}, g.RelationKeys("books"))
	assert.Equal(t, []string{"books"}, g.RelationKeys("authors"))
	assert.Equal(t, []string{"books"}, g.RelationKeys("tags"))
}

func TestBuildHasOne(t *testing.T) {
	m := &schema.Model{
		Schema: "public",
		Tables: []*schema.Table{
			{
				Name:       "profiles",
				Columns:    []schema.Column{col("user_id", schema.TypeUUID), col("bio", schema.TypeText)},
				PrimaryKey: []string{"user_id"},
				ForeignKeys: []schema.ForeignKey{
					{Name: "profiles_user_id_fkey", Columns: []string{"user_id"}, RefTable: "users", RefColumns: []string{"id"}},
				},
			},
			{
				Name:       "users",
				Columns:    []schema.Column{col("id", schema.TypeUUID), col("email", schema.TypeText)},
				PrimaryKey: []string{"id"},
			},
		},
	}
	g, err := graph.Build(m, nil)
	require.NoError(t, err)

	e, ok := g.Edge("users", "profile")
	require.True(t, ok, "unique FK should key the reverse edge singular")
	assert.Equal(t, graph.One, e.Kind)
	assert.Equal(t, []string{"id"}, e.LocalColumns)
	assert.Equal(t, []string{"user_id"}, e.ForeignColumns)

	back, ok := g.Edge("profiles", "user")
	require.True(t, ok)
	assert.Equal(t, graph.One, back.Kind)
}

func TestBuildDisambiguation(t *testing.T) {
	m := &schema.Model{
		Schema: "public",
		Tables: []*schema.Table{
			{
				Name:       "authors",
				Columns:    []schema.Column{col("id", schema.TypeUUID), col("name", schema.TypeText)},
				PrimaryKey: []string{"id"},
			},
			{
				Name: "books",
				Columns: []schema.Column{
					col("id", schema.TypeUUID),
					col("author_id", schema.TypeUUID),
					col("editor_id", schema.TypeUUID),
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []schema.ForeignKey{
					{Name: "books_author_id_fkey", Columns: []string{"author_id"}, RefTable: "authors", RefColumns: []string{"id"}},
					{Name: "books_editor_id_fkey", Columns: []string{"editor_id"}, RefTable: "authors", RefColumns: []string{"id"}},
				},
			},
		},
	}
	g, err := graph.Build(m, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"author", "author_by_editor_id"}, g.RelationKeys("books"))
	assert.Equal(t, []string{"books", "books_by_editor_id"}, g.RelationKeys("authors"))

	first, _ := g.Edge("books", "author")
	assert.Equal(t, []string{"author_id"}, first.LocalColumns)
	second, _ := g.Edge("books", "author_by_editor_id")
	assert.Equal(t, []string{"editor_id"}, second.LocalColumns)

	rev, _ := g.Edge("authors", "books_by_editor_id")
	assert.Equal(t, []string{"editor_id"}, rev.ForeignColumns)
}

func TestBuildSelfReferential(t *testing.T) {
	m := &schema.Model{
		Schema: "public",
		Tables: []*schema.Table{
			{
				Name: "employees",
				Columns: []schema.Column{
					col("id", schema.TypeUUID),
					{Name: "manager_id", Type: schema.TypeUUID, Nullable: true},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []schema.ForeignKey{
					{Name: "employees_manager_id_fkey", Columns: []string{"manager_id"}, RefTable: "employees", RefColumns: []string{"id"}},
				},
			},
		},
	}
	g, err := graph.Build(m, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"employee", "employees"}, g.RelationKeys("employees"))

	up, _ := g.Edge("employees", "employee")
	assert.Equal(t, graph.One, up.Kind)
	assert.Equal(t, []string{"manager_id"}, up.LocalColumns)

	down, _ := g.Edge("employees", "employees")
	assert.Equal(t, graph.Many, down.Kind)
	assert.Equal(t, []string{"manager_id"}, down.ForeignColumns)
}

func TestBuildSelfReferentialUnique(t *testing.T) {
	m := &schema.Model{
		Schema: "public",
		Tables: []*schema.Table{
			{
				Name: "members",
				Columns: []schema.Column{
					col("id", schema.TypeUUID),
					{Name: "spouse_id", Type: schema.TypeUUID, Nullable: true},
				},
				PrimaryKey: []string{"id"},
				Uniques:    []schema.Index{{Columns: []string{"spouse_id"}}},
				ForeignKeys: []schema.ForeignKey{
					{Name: "members_spouse_id_fkey", Columns: []string{"spouse_id"}, RefTable: "members", RefColumns: []string{"id"}},
				},
			},
		},
	}
	g, err := graph.Build(m, nil)
	require.NoError(t, err)

	// Both directions are one edges and want the singular key; the
	// reverse edge takes the suffixed form.
	assert.Equal(t, []string{"member", "member_by_spouse_id"}, g.RelationKeys("members"))

	rev, _ := g.Edge("members", "member_by_spouse_id")
	assert.Equal(t, graph.One, rev.Kind)
	assert.Equal(t, []string{"id"}, rev.LocalColumns)
	assert.Equal(t, []string{"spouse_id"}, rev.ForeignColumns)
}

func TestBuildSelfPairIsNotJunction(t *testing.T) {
	m := &schema.Model{
		Schema: "public",
		Tables: []*schema.Table{
			{
				Name: "friendships",
				Columns: []schema.Column{
					col("user_id", schema.TypeUUID),
					col("friend_id", schema.TypeUUID),
				},
				PrimaryKey: []string{"user_id", "friend_id"},
				ForeignKeys: []schema.ForeignKey{
					{Name: "friendships_user_id_fkey", Columns: []string{"user_id"}, RefTable: "users", RefColumns: []string{"id"}},
					{Name: "friendships_friend_id_fkey", Columns: []string{"friend_id"}, RefTable: "users", RefColumns: []string{"id"}},
				},
			},
			{
				Name:       "users",
				Columns:    []schema.Column{col("id", schema.TypeUUID)},
				PrimaryKey: []string{"id"},
			},
		},
	}
	g, err := graph.Build(m, nil)
	require.NoError(t, err)

	assert.False(t, tbl(t, m, "friendships").Junction, "two FKs to the same parent is not a junction")
	assert.Equal(t, []string{"friendships", "friendships_by_friend_id"}, g.RelationKeys("users"))
	assert.Equal(t, []string{"user", "user_by_friend_id"}, g.RelationKeys("friendships"))
}

func TestBuildJunctionWithPayload(t *testing.T) {
	m := bookstoreModel()
	bt := tbl(t, m, "book_tags")
	bt.Columns = append(bt.Columns, schema.Column{Name: "linked_at", Type: schema.TypeTimestamp, HasDefault: true})

	_, err := graph.Build(m, nil)
	require.NoError(t, err)
	assert.True(t, bt.Junction, "payload columns do not disqualify a junction")
}

func TestBuildJunctionByUniqueIndex(t *testing.T) {
	m := bookstoreModel()
	bt := tbl(t, m, "book_tags")
	bt.Columns = append([]schema.Column{{Name: "id", Type: schema.TypeInt, HasDefault: true}}, bt.Columns...)
	bt.PrimaryKey = []string{"id"}
	bt.Uniques = []schema.Index{{Columns: []string{"book_id", "tag_id"}}}

	g, err := graph.Build(m, nil)
	require.NoError(t, err)
	assert.True(t, bt.Junction)
	_, ok := g.Edge("books", "tags")
	assert.True(t, ok)
}

func TestBuildInvalidModel(t *testing.T) {
	m := bookstoreModel()
	m.Tables[2].ForeignKeys[0].RefTable = "ghosts"

	_, err := graph.Build(m, nil)
	require.Error(t, err)
	assert.True(t, fabrica.IsClassificationError(err))
}

func TestEdgeKindText(t *testing.T) {
	b, err := graph.Many.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "many", string(b))

	var k graph.Kind
	require.NoError(t, k.UnmarshalText([]byte("one")))
	assert.Equal(t, graph.One, k)
	assert.Error(t, k.UnmarshalText([]byte("most")))
}
