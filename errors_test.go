package fabrica_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/fabrica"
)

func TestConfigError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := fabrica.NewConfigError("includeMethodsDepth", 0, "must be positive")
		assert.Equal(t, `fabrica: config error for "includeMethodsDepth" (value: 0): must be positive`, err.Error())
	})

	t.Run("ErrorWithoutValue", func(t *testing.T) {
		err := fabrica.NewConfigError("connectionString", nil, "required")
		assert.Equal(t, `fabrica: config error for "connectionString": required`, err.Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := fabrica.NewConfigError("outDir", nil, "empty")
		assert.True(t, errors.Is(err, fabrica.ErrConfig))
	})

	t.Run("IsConfigError", func(t *testing.T) {
		err := fabrica.NewConfigError("dateType", "epoch", "unknown")
		assert.True(t, fabrica.IsConfigError(err))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, fabrica.IsConfigError(wrapped))

		// Sentinel error
		assert.True(t, fabrica.IsConfigError(fabrica.ErrConfig))

		// Non-matching error
		assert.False(t, fabrica.IsConfigError(errors.New("other error")))
		assert.False(t, fabrica.IsConfigError(nil))
	})
}

func TestIntrospectionError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := fabrica.NewIntrospectionError("public", "columns", errors.New("connection refused"))
		assert.Equal(t, `fabrica: introspection failed at columns (schema "public"): connection refused`, err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("timeout")
		err := fabrica.NewIntrospectionError("public", "connect", underlying)
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("Is", func(t *testing.T) {
		err := fabrica.NewIntrospectionError("app", "enums", nil)
		assert.True(t, errors.Is(err, fabrica.ErrIntrospection))
	})

	t.Run("IsIntrospectionError", func(t *testing.T) {
		err := fabrica.NewIntrospectionError("public", "tables", errors.New("boom"))
		assert.True(t, fabrica.IsIntrospectionError(err))

		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, fabrica.IsIntrospectionError(wrapped))

		assert.False(t, fabrica.IsIntrospectionError(errors.New("other error")))
		assert.False(t, fabrica.IsIntrospectionError(nil))
	})
}

func TestClassificationError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := fabrica.NewClassificationError("book_tags", "foreign key column count mismatch")
		assert.Equal(t, `fabrica: classification failed on table "book_tags": foreign key column count mismatch`, err.Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := fabrica.NewClassificationError("books", "unknown parent table")
		assert.True(t, errors.Is(err, fabrica.ErrClassification))
		assert.True(t, fabrica.IsClassificationError(err))
	})
}

func TestEmissionError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := fabrica.NewEmissionError("routes", "routes_books.go", errors.New("disk full"))
		assert.Equal(t, "fabrica: emission failed in stage routes (file routes_books.go): disk full", err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("permission denied")
		err := fabrica.NewEmissionError("write", "tables.go", underlying)
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("IsEmissionError", func(t *testing.T) {
		err := fabrica.NewEmissionError("client", "", nil)
		assert.True(t, fabrica.IsEmissionError(err))
		assert.True(t, errors.Is(err, fabrica.ErrEmission))
		assert.False(t, fabrica.IsEmissionError(nil))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("SingleIssue", func(t *testing.T) {
		err := fabrica.NewIssueError("where.name.$gt", "operator not allowed on boolean column")
		assert.Equal(t, "fabrica: validation failed: where.name.$gt: operator not allowed on boolean column", err.Error())
	})

	t.Run("MultipleIssues", func(t *testing.T) {
		err := fabrica.NewValidationError(
			fabrica.Issue{Path: "limit", Message: "must be non-negative"},
			fabrica.Issue{Path: "orderBy", Message: "unknown column \"nme\""},
		)
		assert.Contains(t, err.Error(), "2 issues")
		assert.Contains(t, err.Error(), "limit: must be non-negative")
		assert.Contains(t, err.Error(), "orderBy: unknown column")
	})

	t.Run("Append", func(t *testing.T) {
		err := fabrica.NewValidationError()
		assert.True(t, err.Empty())
		err.Append("offset", "must be non-negative")
		assert.False(t, err.Empty())
		assert.Len(t, err.Issues, 1)
	})

	t.Run("Is", func(t *testing.T) {
		err := fabrica.NewIssueError("where", "unknown column")
		assert.True(t, errors.Is(err, fabrica.ErrValidation))
	})

	t.Run("IsValidationError", func(t *testing.T) {
		err := fabrica.NewIssueError("include.books", "depth exceeded")
		assert.True(t, fabrica.IsValidationError(err))

		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, fabrica.IsValidationError(wrapped))

		assert.False(t, fabrica.IsValidationError(errors.New("other error")))
		assert.False(t, fabrica.IsValidationError(nil))
	})
}

func TestNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := fabrica.NewNotFoundError("authors")
		assert.Equal(t, "fabrica: authors not found", err.Error())
	})

	t.Run("ErrorWithKey", func(t *testing.T) {
		err := fabrica.NewNotFoundErrorWithKey("books", "42")
		assert.Equal(t, "fabrica: books not found (key=42)", err.Error())
		assert.Equal(t, "books", err.Label())
		assert.Equal(t, "42", err.Key())
	})

	t.Run("Is", func(t *testing.T) {
		err := fabrica.NewNotFoundError("tags")
		assert.True(t, errors.Is(err, fabrica.ErrNotFound))
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := fabrica.NewNotFoundError("authors")
		assert.True(t, fabrica.IsNotFound(err))

		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, fabrica.IsNotFound(wrapped))

		assert.True(t, fabrica.IsNotFound(fabrica.ErrNotFound))
		assert.False(t, fabrica.IsNotFound(errors.New("other error")))
		assert.False(t, fabrica.IsNotFound(nil))
	})
}

func TestAuthError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := fabrica.NewAuthError("missing bearer token")
		assert.Equal(t, "fabrica: unauthorized: missing bearer token", err.Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := fabrica.NewAuthError("invalid signature")
		assert.True(t, errors.Is(err, fabrica.ErrUnauthorized))
		assert.True(t, fabrica.IsAuthError(err))
		assert.False(t, fabrica.IsAuthError(nil))
	})
}

func TestDatabaseError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := fabrica.NewDatabaseError("books", "insert", errors.New("unique violation"))
		assert.Equal(t, "fabrica: insert books: unique violation", err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("broken pipe")
		err := fabrica.NewDatabaseError("books", "select", underlying)
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("IsDatabaseError", func(t *testing.T) {
		err := fabrica.NewDatabaseError("tags", "count", errors.New("x"))
		assert.True(t, fabrica.IsDatabaseError(err))
		assert.True(t, errors.Is(err, fabrica.ErrDatabase))
		assert.False(t, fabrica.IsDatabaseError(errors.New("other")))
	})
}

func TestStitchError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := fabrica.NewStitchError("authors", "books", errors.New("query canceled"))
		assert.Equal(t, "fabrica: stitching authors.books: query canceled", err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("bad column")
		err := fabrica.NewStitchError("books", "tags", underlying)
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("IsStitchError", func(t *testing.T) {
		err := fabrica.NewStitchError("authors", "books", errors.New("x"))
		assert.True(t, fabrica.IsStitchError(err))
		assert.True(t, errors.Is(err, fabrica.ErrStitch))
		assert.False(t, fabrica.IsStitchError(nil))
	})
}

func TestAggregateError(t *testing.T) {
	t.Run("NilWhenEmpty", func(t *testing.T) {
		assert.NoError(t, fabrica.NewAggregateError())
		assert.NoError(t, fabrica.NewAggregateError(nil, nil))
	})

	t.Run("SingleErrorPassthrough", func(t *testing.T) {
		underlying := errors.New("only one")
		err := fabrica.NewAggregateError(nil, underlying)
		assert.Equal(t, underlying, err)
	})

	t.Run("Multiple", func(t *testing.T) {
		err := fabrica.NewAggregateError(errors.New("first"), errors.New("second"))
		assert.Contains(t, err.Error(), "multiple errors")
		assert.Contains(t, err.Error(), "[1] first")
		assert.Contains(t, err.Error(), "[2] second")
	})
}
