package filter_test

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/filter"
	"github.com/syssam/fabrica/schema"
)

func booksTable() *schema.Table {
	return &schema.Table{
		Name: "books",
		Columns: []schema.Column{
			{Name: "id", Type: schema.TypeUUID},
			{Name: "title", Type: schema.TypeText},
			{Name: "pages", Type: schema.TypeInt, Nullable: true},
			{Name: "price", Type: schema.TypeFloat, Nullable: true},
			{Name: "in_print", Type: schema.TypeBool},
			{Name: "published_at", Type: schema.TypeTimestamp, Nullable: true},
			{Name: "metadata", Type: schema.TypeJSON, Nullable: true},
			{Name: "status", Type: schema.TypeEnum, EnumType: "book_status"},
		},
		PrimaryKey: []string{"id"},
	}
}

func compile(t *testing.T, in map[string]any) (*filter.Predicate, error) {
	t.Helper()
	n, err := filter.Parse(in)
	require.NoError(t, err)
	c := filter.NewCompiler(booksTable(), map[string][]string{"status": {"draft", "published"}})
	return c.Compile(n)
}

func mustCompile(t *testing.T, in map[string]any) *filter.Predicate {
	t.Helper()
	p, err := compile(t, in)
	require.NoError(t, err)
	return p
}

func TestCompileEquality(t *testing.T) {
	p := mustCompile(t, map[string]any{"title": "P&P"})
	assert.Equal(t, `"title" = $1`, p.SQL)
	assert.Equal(t, []any{"P&P"}, p.Args)

	t.Run("InjectionProbe", func(t *testing.T) {
		probe := "Robert'); DROP TABLE authors;--"
		p := mustCompile(t, map[string]any{"title": probe})
		assert.Equal(t, `"title" = $1`, p.SQL)
		assert.Equal(t, []any{probe}, p.Args)
		assert.NotContains(t, p.SQL, "DROP")
	})

	t.Run("NullRewrites", func(t *testing.T) {
		direct := mustCompile(t, map[string]any{"pages": nil})
		viaIs := mustCompile(t, map[string]any{"pages": map[string]any{"$is": nil}})
		assert.Equal(t, `"pages" IS NULL`, direct.SQL)
		assert.Equal(t, direct.SQL, viaIs.SQL)
		assert.Empty(t, direct.Args)

		viaNe := mustCompile(t, map[string]any{"pages": map[string]any{"$ne": nil}})
		viaIsNot := mustCompile(t, map[string]any{"pages": map[string]any{"$isNot": nil}})
		assert.Equal(t, `"pages" IS NOT NULL`, viaNe.SQL)
		assert.Equal(t, viaNe.SQL, viaIsNot.SQL)
	})
}

func TestCompileComparisons(t *testing.T) {
	p := mustCompile(t, map[string]any{"pages": map[string]any{"$gte": float64(100), "$lte": float64(200)}})
	assert.Equal(t, `"pages" >= $1 AND "pages" <= $2`, p.SQL)
	assert.Equal(t, []any{int64(100), int64(200)}, p.Args)

	t.Run("ParameterOffset", func(t *testing.T) {
		n, err := filter.Parse(map[string]any{"pages": map[string]any{"$gt": float64(10)}})
		require.NoError(t, err)
		c := filter.NewCompiler(booksTable(), nil)
		p, err := c.CompileFrom(n, 5)
		require.NoError(t, err)
		assert.Equal(t, `"pages" > $5`, p.SQL)
		assert.Equal(t, []any{int64(10)}, p.Args)
	})

	t.Run("RejectsNonComparable", func(t *testing.T) {
		_, err := compile(t, map[string]any{"in_print": map[string]any{"$gt": true}})
		require.Error(t, err)
		assert.True(t, fabrica.IsValidationError(err))

		_, err = compile(t, map[string]any{"metadata": map[string]any{"$lt": float64(1)}})
		require.Error(t, err)
	})

	t.Run("RejectsFractionOnInt", func(t *testing.T) {
		_, err := compile(t, map[string]any{"pages": map[string]any{"$gt": 1.5}})
		require.Error(t, err)
		assert.ErrorContains(t, err, "integer")
	})
}

func TestCompileMembership(t *testing.T) {
	p := mustCompile(t, map[string]any{"title": map[string]any{"$in": []any{"a", "b"}}})
	assert.Equal(t, `"title" = ANY($1::text[])`, p.SQL)
	assert.Equal(t, []any{pq.Array([]any{"a", "b"})}, p.Args)

	t.Run("EmptyLists", func(t *testing.T) {
		p := mustCompile(t, map[string]any{"title": map[string]any{"$in": []any{}}})
		assert.Equal(t, "FALSE", p.SQL)
		assert.Empty(t, p.Args)

		p = mustCompile(t, map[string]any{"title": map[string]any{"$nin": []any{}}})
		assert.Equal(t, "TRUE", p.SQL)
		assert.Empty(t, p.Args)
	})

	t.Run("NotIn", func(t *testing.T) {
		p := mustCompile(t, map[string]any{"title": map[string]any{"$nin": []any{"a"}}})
		assert.Equal(t, `"title" <> ALL($1::text[])`, p.SQL)
	})

	t.Run("EnumCast", func(t *testing.T) {
		p := mustCompile(t, map[string]any{"status": map[string]any{"$in": []any{"draft"}}})
		assert.Equal(t, `"status" = ANY($1::"book_status"[])`, p.SQL)
	})

	t.Run("EnumLabelAllowList", func(t *testing.T) {
		_, err := compile(t, map[string]any{"status": "archived"})
		require.Error(t, err)
		assert.ErrorContains(t, err, "one of")
	})

	t.Run("NullElement", func(t *testing.T) {
		_, err := compile(t, map[string]any{"title": map[string]any{"$in": []any{nil}}})
		require.Error(t, err)
		assert.ErrorContains(t, err, "$is")
	})

	t.Run("JSONRejected", func(t *testing.T) {
		_, err := compile(t, map[string]any{"metadata": map[string]any{"$in": []any{float64(1)}}})
		require.Error(t, err)
	})
}

func TestCompileLike(t *testing.T) {
	p := mustCompile(t, map[string]any{"title": map[string]any{"$ilike": "%jane%"}})
	assert.Equal(t, `"title" ILIKE $1`, p.SQL)
	assert.Equal(t, []any{"%jane%"}, p.Args)

	_, err := compile(t, map[string]any{"pages": map[string]any{"$like": "100"}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "text column")
}

func TestCompileGroups(t *testing.T) {
	t.Run("EmptyAndMatchesAll", func(t *testing.T) {
		p := mustCompile(t, map[string]any{"$and": []any{}})
		assert.Equal(t, "TRUE", p.SQL)
	})

	t.Run("EmptyOrMatchesNone", func(t *testing.T) {
		p := mustCompile(t, map[string]any{"$or": []any{}})
		assert.Equal(t, "FALSE", p.SQL)
	})

	t.Run("OrOfPatterns", func(t *testing.T) {
		p := mustCompile(t, map[string]any{"$or": []any{
			map[string]any{"title": map[string]any{"$ilike": "%a%"}},
			map[string]any{"title": map[string]any{"$ilike": "%b%"}},
		}})
		assert.Equal(t, `(("title" ILIKE $1) OR ("title" ILIKE $2))`, p.SQL)
		assert.Equal(t, []any{"%a%", "%b%"}, p.Args)
	})

	t.Run("RootMixesLeavesAndGroup", func(t *testing.T) {
		p := mustCompile(t, map[string]any{
			"in_print": true,
			"$or": []any{
				map[string]any{"pages": map[string]any{"$gt": float64(100)}},
				map[string]any{"pages": nil},
			},
		})
		assert.Equal(t, `"in_print" = $1 AND (("pages" > $2) OR ("pages" IS NULL))`, p.SQL)
		assert.Equal(t, []any{true, int64(100)}, p.Args)
	})

	t.Run("DepthTwoAllowed", func(t *testing.T) {
		_, err := compile(t, map[string]any{"$or": []any{
			map[string]any{"$and": []any{map[string]any{"title": "x"}}},
		}})
		assert.NoError(t, err)
	})

	t.Run("DepthThreeRejected", func(t *testing.T) {
		_, err := filter.Parse(map[string]any{"$or": []any{
			map[string]any{"$and": []any{
				map[string]any{"$or": []any{map[string]any{"title": "x"}}},
			}},
		}})
		require.Error(t, err)
		assert.ErrorContains(t, err, "deep")
	})
}

func TestParseErrors(t *testing.T) {
	cases := map[string]map[string]any{
		"UnknownOperator":    {"title": map[string]any{"$fuzzy": "x"}},
		"UnknownGroupToken":  {"$not": []any{}},
		"TwoGroups":          {"$and": []any{}, "$or": []any{}},
		"GroupNotArray":      {"$and": "x"},
		"GroupItemNotObject": {"$and": []any{"x"}},
		"IsNonNull":          {"title": map[string]any{"$is": "x"}},
		"InNotArray":         {"title": map[string]any{"$in": "x"}},
		"EmptyOperatorObj":   {"title": map[string]any{}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := filter.Parse(in)
			require.Error(t, err)
			assert.True(t, fabrica.IsValidationError(err))
		})
	}
}

func TestCompileUnknownColumn(t *testing.T) {
	_, err := compile(t, map[string]any{"ghost": float64(1)})
	require.Error(t, err)
	var verr *fabrica.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Issues, 1)
	assert.Equal(t, "ghost", verr.Issues[0].Path)
	assert.Equal(t, "unknown column", verr.Issues[0].Message)
}

func TestCompileValueTypes(t *testing.T) {
	t.Run("UUIDValidated", func(t *testing.T) {
		_, err := compile(t, map[string]any{"id": "not-a-uuid"})
		require.Error(t, err)

		p := mustCompile(t, map[string]any{"id": "0c7ee5b8-5dd7-45ae-9a6c-4b782cbcbf3f"})
		assert.Equal(t, `"id" = $1`, p.SQL)
	})

	t.Run("JSONEquality", func(t *testing.T) {
		p := mustCompile(t, map[string]any{"metadata": map[string]any{"$eq": map[string]any{"a": float64(1)}}})
		assert.Equal(t, `"metadata" = $1::jsonb`, p.SQL)
		assert.Equal(t, []any{`{"a":1}`}, p.Args)
	})

	t.Run("BoolMismatch", func(t *testing.T) {
		_, err := compile(t, map[string]any{"in_print": "yes"})
		require.Error(t, err)
		assert.ErrorContains(t, err, "boolean")
	})
}

func TestCompileDeterministicOrder(t *testing.T) {
	in := map[string]any{"title": "x", "pages": float64(1), "in_print": true}
	want := `"in_print" = $1 AND "pages" = $2 AND "title" = $3`
	for range 5 {
		p := mustCompile(t, in)
		assert.Equal(t, want, p.SQL)
	}
}

func TestCompileNilFilter(t *testing.T) {
	c := filter.NewCompiler(booksTable(), nil)
	p, err := c.Compile(nil)
	require.NoError(t, err)
	assert.Equal(t, "TRUE", p.SQL)
	assert.Empty(t, p.Args)
}
