package rows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect(t *testing.T) {
	sql, params, err := BuildSelect(ReadParams{
		Schema: "p7", Table: "widgets",
		Limit: 50, Offset: 10,
		OrderBy: "created_at", OrderDir: "desc",
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "p7"."widgets" ORDER BY "created_at" DESC LIMIT $1 OFFSET $2`, sql)
	assert.Equal(t, []any{50, 10}, params)
}

func TestBuildSelectWithTenantFilter(t *testing.T) {
	sql, params, err := BuildSelect(ReadParams{
		Table: "pages", FilterProject: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "pages" WHERE "project_id" = $1 LIMIT $2`, sql)
	assert.Equal(t, []any{7, 100}, params)
}

func TestBuildSelectClampsLimit(t *testing.T) {
	sql, params, err := BuildSelect(ReadParams{Table: "t", Limit: 99999})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" LIMIT $1`, sql)
	assert.Equal(t, []any{100}, params)
}

func TestBuildSelectSanitizesIdentifiers(t *testing.T) {
	sql, _, err := BuildSelect(ReadParams{
		Table:   `widgets"; DROP TABLE users; --`,
		OrderBy: "id; DELETE",
	})
	require.NoError(t, err)
	assert.NotContains(t, sql, ";")
	assert.NotContains(t, sql, "--")
	assert.Contains(t, sql, `"widgetsDROPTABLEusers"`)
}

func TestBuildInsert(t *testing.T) {
	sql, params, err := BuildInsert("", "notes", map[string]any{
		"body":  "hi",
		"owner": 3,
	})
	require.NoError(t, err)
	// Keys are sorted for deterministic output.
	assert.Equal(t, `INSERT INTO "notes" ("body", "owner") VALUES ($1, $2) RETURNING *`, sql)
	assert.Equal(t, []any{"hi", 3}, params)
}

func TestBuildInsertEmptyData(t *testing.T) {
	_, _, err := BuildInsert("", "notes", map[string]any{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestBuildInsertBadTable(t *testing.T) {
	_, _, err := BuildInsert("", "!!!", map[string]any{"x": 1})
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestBuildUpdate(t *testing.T) {
	sql, params, err := BuildUpdate("p3", "widgets",
		map[string]any{"name": "new"},
		map[string]any{"id": 42},
	)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "p3"."widgets" SET "name" = $1 WHERE "id" = $2 RETURNING *`, sql)
	assert.Equal(t, []any{"new", 42}, params)
}

func TestBuildUpdateRequiresWhere(t *testing.T) {
	_, _, err := BuildUpdate("", "widgets", map[string]any{"x": 1}, map[string]any{})
	assert.ErrorIs(t, err, ErrEmptyWhere)
}

func TestBuildDelete(t *testing.T) {
	sql, params, err := BuildDelete("", "widgets", map[string]any{"id": 7, "status": "old"})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "widgets" WHERE "id" = $1 AND "status" = $2 RETURNING *`, sql)
	assert.Equal(t, []any{7, "old"}, params)
}

func TestBuildDeleteRequiresWhere(t *testing.T) {
	_, _, err := BuildDelete("", "widgets", nil)
	assert.ErrorIs(t, err, ErrEmptyWhere)
}

func TestNullWhereValue(t *testing.T) {
	sql, params, err := BuildDelete("", "widgets", map[string]any{"deleted_at": nil})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "widgets" WHERE "deleted_at" IS NULL RETURNING *`, sql)
	assert.Empty(t, params)
}
