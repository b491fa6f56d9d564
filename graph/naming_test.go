package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/fabrica/graph"
)

func TestDefaultNamer(t *testing.T) {
	n := graph.DefaultNamer()

	assert.Equal(t, "author", n.Singularize("authors"))
	assert.Equal(t, "category", n.Singularize("categories"))
	assert.Equal(t, "address", n.Singularize("addresses"))

	assert.Equal(t, "books", n.Pluralize("books"))
	assert.Equal(t, "tags", n.Pluralize("tags"))
	assert.Equal(t, "people", n.Pluralize("person"))
}
