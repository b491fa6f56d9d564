package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/fabrica/filter"
)

func TestParseOrder(t *testing.T) {
	books := booksTable()

	t.Run("Scalar", func(t *testing.T) {
		orders, err := filter.ParseOrder(books, "title", "desc")
		require.NoError(t, err)
		assert.Equal(t, []filter.Order{{Column: "title", Desc: true}}, orders)
	})

	t.Run("ScalarOrderBroadcasts", func(t *testing.T) {
		orders, err := filter.ParseOrder(books, []any{"title", "pages"}, "desc")
		require.NoError(t, err)
		assert.Equal(t, []filter.Order{
			{Column: "title", Desc: true},
			{Column: "pages", Desc: true},
		}, orders)
	})

	t.Run("AlignedArray", func(t *testing.T) {
		orders, err := filter.ParseOrder(books, []any{"title", "pages"}, []any{"asc", "desc"})
		require.NoError(t, err)
		assert.Equal(t, []filter.Order{
			{Column: "title", Desc: false},
			{Column: "pages", Desc: true},
		}, orders)
	})

	t.Run("MisalignedArray", func(t *testing.T) {
		_, err := filter.ParseOrder(books, []any{"title", "pages"}, []any{"asc"})
		require.Error(t, err)
		assert.ErrorContains(t, err, "align")
	})

	t.Run("UnknownColumn", func(t *testing.T) {
		_, err := filter.ParseOrder(books, "ghost", nil)
		require.Error(t, err)
		assert.ErrorContains(t, err, "unknown column")
	})

	t.Run("NonOrderableColumn", func(t *testing.T) {
		_, err := filter.ParseOrder(books, "metadata", nil)
		require.Error(t, err)
		assert.ErrorContains(t, err, "cannot order by")
	})

	t.Run("BadDirection", func(t *testing.T) {
		_, err := filter.ParseOrder(books, "title", "sideways")
		require.Error(t, err)
	})

	t.Run("OrderWithoutOrderBy", func(t *testing.T) {
		_, err := filter.ParseOrder(books, nil, "asc")
		require.Error(t, err)
	})

	t.Run("NilMeansNoOrdering", func(t *testing.T) {
		orders, err := filter.ParseOrder(books, nil, nil)
		require.NoError(t, err)
		assert.Nil(t, orders)
	})
}

func TestOrderSQL(t *testing.T) {
	assert.Equal(t, "", filter.OrderSQL(nil))
	assert.Equal(t, `"title" ASC, "pages" DESC`, filter.OrderSQL([]filter.Order{
		{Column: "title"},
		{Column: "pages", Desc: true},
	}))
}
