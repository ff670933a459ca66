package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestructivePatterns(t *testing.T) {
	rejected := []string{
		"DROP DATABASE production",
		"drop   database foo",
		"Drop\nDatabase foo",
		"TRUNCATE widgets CASCADE",
		"truncate table widgets cascade",
		"ALTER SYSTEM SET shared_buffers = '1GB'",
		"alter  system reset all",
		"SELECT pg_terminate_backend(1234)",
		"select PG_CANCEL_BACKEND(99)",
		"GRANT ALL ON widgets TO intruder",
		"grant select on t to public",
		"REVOKE SELECT ON widgets FROM intruder",
		"CREATE ROLE sneaky LOGIN",
		"alter user postgres password 'x'",
		"DROP ROLE IF EXISTS admin",
		"SET ROLE postgres",
		"set session authorization postgres",
	}
	for _, sql := range rejected {
		v := Inspect(sql, nil)
		require.NotNil(t, v, "expected rejection: %s", sql)
		assert.Equal(t, CategoryDestructive, v.Category, sql)
		assert.NotEmpty(t, v.Hint, sql)
	}
}

func TestDestructivePatternsAllowOrdinarySQL(t *testing.T) {
	allowed := []string{
		"SELECT * FROM widgets",
		"INSERT INTO notes (body) VALUES ($1)",
		"UPDATE widgets SET name = $1 WHERE id = $2",
		"DELETE FROM widgets WHERE id = $1",
		"CREATE TABLE my_notes (id SERIAL PRIMARY KEY, body TEXT)",
		"TRUNCATE scratch", // no CASCADE
		"SELECT granted_at FROM public.audit_view",
	}
	for _, sql := range allowed {
		assert.Nil(t, Inspect(sql, nil), "expected pass: %s", sql)
	}
}

func TestSystemTableDDL(t *testing.T) {
	rejected := []string{
		"ALTER TABLE users ADD COLUMN x TEXT",
		"DROP TABLE IF EXISTS api_keys",
		"drop table webhooks",
		"CREATE TABLE IF NOT EXISTS sessions (id int)",
		"TRUNCATE TABLE table_registry",
		`ALTER TABLE public.users ADD COLUMN x TEXT`,
		`ALTER TABLE "users" ADD COLUMN x TEXT`,
		"alter table p9.vault_secrets drop column secret",
	}
	for _, sql := range rejected {
		v := Inspect(sql, []string{"p9"})
		require.NotNil(t, v, "expected rejection: %s", sql)
		assert.Equal(t, CategorySystemTable, v.Category, sql)
	}

	allowed := []string{
		"ALTER TABLE my_custom_table ADD COLUMN x TEXT",
		"CREATE TABLE users_archive (id int)",
		"DROP TABLE IF EXISTS scratch",
		// DML against system tables is not DDL; it is governed by
		// grants and search path, not by this check.
		"SELECT * FROM users",
	}
	for _, sql := range allowed {
		assert.Nil(t, Inspect(sql, nil), "expected pass: %s", sql)
	}
}

func TestSchemaEscape(t *testing.T) {
	v := Inspect("SELECT * FROM other_schema.secret_table", []string{"p7"})
	require.NotNil(t, v)
	assert.Equal(t, CategorySchemaEscape, v.Category)

	v = Inspect(`SELECT * FROM "p12"."widgets"`, []string{"p7"})
	require.NotNil(t, v)
	assert.Equal(t, CategorySchemaEscape, v.Category)

	assert.Nil(t, Inspect("SELECT * FROM p7.widgets", []string{"p7"}))
	assert.Nil(t, Inspect(`SELECT * FROM "p7".widgets`, []string{"p7"}))
	assert.Nil(t, Inspect("SELECT * FROM public.widgets", []string{"p7"}))
	assert.Nil(t, Inspect("SELECT table_name FROM information_schema.tables", []string{"p7"}))
	assert.Nil(t, Inspect("SELECT pg_catalog.version()", []string{"p7"}))
}

func TestSchemaEscapeIgnoresTableAliases(t *testing.T) {
	allowed := []string{
		"SELECT u.name FROM users_data u JOIN orders o ON o.user_id = u.id",
		"SELECT u.name, o.total FROM users_data AS u JOIN orders AS o ON o.user_id = u.id",
		"select w.id from p7.widgets w where w.id > 10",
		`SELECT w.id FROM "p7"."widgets" w ORDER BY w.id`,
		"SELECT a.x, b.y FROM alpha a, beta b WHERE a.id = b.id",
		"SELECT t.n FROM (SELECT 1 AS n) t",
		"SELECT g.g FROM generate_series(1, 10) AS g",
		"UPDATE widgets SET name = s.name FROM staging s WHERE widgets.id = s.id",
		"SELECT users_data.name FROM users_data WHERE users_data.id = $1",
	}
	for _, sql := range allowed {
		assert.Nil(t, Inspect(sql, []string{"p7"}), "expected pass: %s", sql)
	}

	// An alias on the outer table does not launder a qualified
	// reference to a foreign schema elsewhere in the statement.
	v := Inspect("SELECT u.name FROM users_data u JOIN other_schema.orders o ON o.user_id = u.id", []string{"p7"})
	require.NotNil(t, v)
	assert.Equal(t, CategorySchemaEscape, v.Category)
}

func TestSchemaEscapeCaseInsensitive(t *testing.T) {
	v := Inspect("SELECT * FROM OTHER_SCHEMA.t", []string{"p7"})
	require.NotNil(t, v)

	assert.Nil(t, Inspect("SELECT * FROM PUBLIC.widgets", []string{"p7"}))
}

func TestInspectOrdering(t *testing.T) {
	// A statement that is both destructive and schema-escaping reports
	// the destructive category; destructive checks run first.
	v := Inspect("GRANT ALL ON evil.t TO them", []string{"p7"})
	require.NotNil(t, v)
	assert.Equal(t, CategoryDestructive, v.Category)
}

func TestNumericLiteralsNotFlagged(t *testing.T) {
	assert.Nil(t, Inspect("SELECT 1.5 + 2.25", []string{"p7"}))
}
