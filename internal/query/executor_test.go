package query

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		sql     string
		command string
		isRead  bool
	}{
		{"SELECT * FROM widgets", "SELECT", true},
		{"  select 1", "SELECT", true},
		{"\n\tSeLeCt now()", "SELECT", true},
		{"SELECT(1)", "SELECT", true},
		{"INSERT INTO notes (body) VALUES ($1)", "INSERT", false},
		{"UPDATE widgets SET x = 1", "UPDATE", false},
		{"DELETE FROM widgets", "DELETE", false},
		{"CREATE TABLE t (id int)", "CREATE", false},
		{"WITH x AS (SELECT 1) SELECT * FROM x", "WITH", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, c := range cases {
		command, isRead := Classify(c.sql)
		assert.Equal(t, c.command, command, c.sql)
		assert.Equal(t, c.isRead, isRead, c.sql)
	}
}

func TestWrapEngineError(t *testing.T) {
	pgErr := &pgconn.PgError{
		Message:  "relation \"nope\" does not exist",
		Code:     "42P01",
		Position: 15,
		Hint:     "check the table name",
		Detail:   "some detail",
	}

	err := wrapEngineError(pgErr)
	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "relation \"nope\" does not exist", engineErr.Message)
	assert.Equal(t, "42P01", engineErr.Code)
	assert.Equal(t, 15, engineErr.Position)
	assert.Equal(t, "check the table name", engineErr.Hint)
	assert.Equal(t, "some detail", engineErr.Detail)
	assert.Contains(t, engineErr.Error(), "does not exist")
}

func TestWrapEngineErrorPassthrough(t *testing.T) {
	plain := errors.New("network broke")
	err := wrapEngineError(plain)

	var engineErr *EngineError
	assert.False(t, errors.As(err, &engineErr))
	assert.ErrorIs(t, err, plain)
}
