package sql

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/fabrica/schema"
)

func newMock(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return OpenDB(db), mock
}

func TestExecSetsAndResetsSessionVars(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectExec("SET app.user_id = 'u-42'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE "books" SET "title" = $1`).WithArgs("x").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("RESET app.user_id").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := WithVar(context.Background(), "app.user_id", "u-42")
	_, err := d.ExecContext(ctx, `UPDATE "books" SET "title" = $1`, "x")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecEscapesVarValue(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectExec(`SET app.tenant = 'o''brien'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("RESET app.tenant").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := WithVar(context.Background(), "app.tenant", "o'brien")
	_, err := d.ExecContext(ctx, "SELECT 1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecRejectsBadVarName(t *testing.T) {
	d, _ := newMock(t)

	ctx := WithVar(context.Background(), "app.user_id; DROP TABLE books", "x")
	_, err := d.ExecContext(ctx, "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session variable name")
}

func TestQueryOnPoolRejectsSessionVars(t *testing.T) {
	d, _ := newMock(t)

	ctx := WithVar(context.Background(), "app.user_id", "u-1")
	_, err := d.QueryContext(ctx, "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinned connection")
}

func TestQueryWithoutVarsPassesThrough(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery(`SELECT "id" FROM "books"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("b1"))

	rows, err := d.QueryContext(context.Background(), `SELECT "id" FROM "books"`)
	require.NoError(t, err)
	defer rows.Close()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVarFromContext(t *testing.T) {
	t.Parallel()

	ctx := WithVar(context.Background(), "app.user_id", "u-1")
	ctx = WithIntVar(ctx, "app.depth", 3)

	v, ok := VarFromContext(ctx, "app.user_id")
	assert.True(t, ok)
	assert.Equal(t, "u-1", v)

	v, ok = VarFromContext(ctx, "app.depth")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	_, ok = VarFromContext(ctx, "app.other")
	assert.False(t, ok)

	_, ok = VarFromContext(context.Background(), "app.user_id")
	assert.False(t, ok)
}

func TestScanRows(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery("SELECT * FROM t").
		WillReturnRows(sqlmock.NewRows([]string{"id", "n", "raw", "missing"}).
			AddRow("a1", int64(7), []byte("bytes"), nil))

	rows, err := d.QueryContext(context.Background(), "SELECT * FROM t")
	require.NoError(t, err)
	defer rows.Close()

	out, err := ScanRows(rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a1", out[0]["id"])
	assert.Equal(t, int64(7), out[0]["n"])
	assert.Equal(t, "bytes", out[0]["raw"], "byte slices are copied to strings")
	assert.Nil(t, out[0]["missing"])
}

func TestNormalizeRow(t *testing.T) {
	t.Parallel()

	table := &schema.Table{
		Name: "books",
		Columns: []schema.Column{
			{Name: "id", Type: schema.TypeUUID, Position: 1},
			{Name: "created_at", Type: schema.TypeTimestamp, Position: 2},
			{Name: "emb", Type: schema.TypeVector, VectorDim: 3, Position: 3},
			{Name: "title", Type: schema.TypeText, Position: 4},
		},
		PrimaryKey: []string{"id"},
	}

	id := uuid.MustParse("9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d")
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.FixedZone("X", 3600))
	row := map[string]any{
		"id":         id,
		"created_at": ts,
		"emb":        "[0.1,0.2,0.3]",
		"title":      "P&P",
		"_distance":  "0.42",
	}
	NormalizeRow(table, row)

	assert.Equal(t, "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d", row["id"])
	assert.Equal(t, "2025-03-14T08:26:53Z", row["created_at"], "timestamps normalize to UTC RFC 3339")
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, row["emb"])
	assert.Equal(t, "P&P", row["title"])
	assert.Equal(t, 0.42, row["_distance"])
}

func TestNormalizeRowLeavesNulls(t *testing.T) {
	t.Parallel()

	table := &schema.Table{
		Name: "books",
		Columns: []schema.Column{
			{Name: "id", Type: schema.TypeUUID, Position: 1},
			{Name: "emb", Type: schema.TypeVector, Position: 2},
		},
		PrimaryKey: []string{"id"},
	}
	row := map[string]any{"id": "a1", "emb": nil}
	NormalizeRow(table, row)
	assert.Equal(t, "a1", row["id"])
	assert.Nil(t, row["emb"])
}
