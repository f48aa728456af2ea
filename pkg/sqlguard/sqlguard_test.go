package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsReadOnlyStatements(t *testing.T) {
	cases := []string{
		"SELECT * FROM customers",
		"SELECT name, email FROM customers WHERE id = 1;",
		"SELECT COUNT(*) FROM orders;",
		"select c.first_name, count(o.order_id) from customers c left join orders o on c.customer_id = o.customer_id group by c.first_name",
		"WITH recent AS (SELECT * FROM orders WHERE order_date >= CURRENT_DATE - INTERVAL '7 days') SELECT COUNT(*) FROM recent",
		"SELECT 'it''s fine; really' FROM notes",
		"SELECT \"weird;column\" FROM t",
		"(SELECT 1)",
		// A block comment in the middle of a statement is harmless.
		"SELECT /* note */ 1 FROM t;",
	}
	for _, sql := range cases {
		v := Validate(sql)
		assert.True(t, v.Accepted, "expected accept: %s (got %s: %s)", sql, v.Reason, v.Detail)
		assert.Equal(t, ReasonNone, v.Reason)
		assert.NotEmpty(t, v.Cleaned)
	}
}

func TestValidate_RejectsForbiddenStatements(t *testing.T) {
	cases := []string{
		"DROP TABLE customers;",
		"DELETE FROM orders WHERE id = 1",
		"UPDATE customers SET name = 'x'",
		"INSERT INTO customers VALUES (1, 'x')",
		"TRUNCATE orders",
		"GRANT ALL ON customers TO evil",
		"SELECT * FROM customers WHERE id IN (SELECT id FROM x) UNION SELECT * FROM t; DROP TABLE orders;",
		// Forbidden keyword inside a sub-select is still forbidden.
		"SELECT (SELECT COUNT(*) FROM t WHERE EXISTS (DELETE FROM orders RETURNING 1)) AS n",
		// Leading keyword is not SELECT/WITH even though a SELECT follows.
		"EXPLAIN SELECT * FROM orders",
	}
	for _, sql := range cases {
		v := Validate(sql)
		require.False(t, v.Accepted, "expected reject: %s", sql)
		assert.Equal(t, ReasonForbiddenStatement, v.Reason, "sql: %s", sql)
	}
}

func TestValidate_RejectsMultipleStatements(t *testing.T) {
	cases := []string{
		"SELECT 1; SELECT 2",
		"SELECT * FROM customers; SELECT * FROM orders;",
	}
	for _, sql := range cases {
		v := Validate(sql)
		require.False(t, v.Accepted, "expected reject: %s", sql)
		assert.Equal(t, ReasonMultipleStatements, v.Reason, "sql: %s", sql)
	}
}

func TestValidate_SeparatorInsideLiteralIsAllowed(t *testing.T) {
	v := Validate("SELECT * FROM notes WHERE body = 'a; b; c'")
	assert.True(t, v.Accepted, "got %s: %s", v.Reason, v.Detail)
}

func TestValidate_RejectsInjectionPatterns(t *testing.T) {
	cases := []string{
		"SELECT * FROM t; -- tail comment hides the rest",
		"SELECT * FROM t WHERE pg_sleep(10) IS NULL",
		"SELECT dblink('host=evil', 'SELECT 1')",
		"SELECT 1 /* x */;",
		"SELECT 1; /* hide */ DROP TABLE t",
	}
	for _, sql := range cases {
		v := Validate(sql)
		require.False(t, v.Accepted, "expected reject: %s", sql)
		assert.Equal(t, ReasonInjectionPattern, v.Reason, "sql: %s", sql)
	}
}

func TestValidate_RejectsUnparseable(t *testing.T) {
	cases := []string{
		"",
		"   \n\t",
		"```sql\n```",
		"-- just a comment",
		"I could not determine a query for that question.",
	}
	for _, sql := range cases {
		v := Validate(sql)
		require.False(t, v.Accepted, "expected reject: %q", sql)
		assert.Equal(t, ReasonUnparseable, v.Reason, "sql: %q", sql)
	}
}

func TestValidate_StripsFences(t *testing.T) {
	v := Validate("```sql\nSELECT count(*) FROM customers;\n```")
	require.True(t, v.Accepted, "got %s: %s", v.Reason, v.Detail)
	assert.Equal(t, "SELECT count(*) FROM customers;", v.Cleaned)
}

func TestValidate_Idempotent(t *testing.T) {
	sql := "```sql\nSELECT id FROM orders WHERE status = 'pending';\n```"
	first := Validate(sql)
	second := Validate(first.Cleaned)
	assert.Equal(t, first.Accepted, second.Accepted)
	assert.Equal(t, first.Cleaned, second.Cleaned)
}

func TestEnsureLimit(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t LIMIT 100", EnsureLimit("SELECT * FROM t;", 100))
	assert.Equal(t, "SELECT * FROM t LIMIT 5", EnsureLimit("SELECT * FROM t LIMIT 5", 100))
	assert.Equal(t, "SELECT * FROM t limit 20", EnsureLimit("SELECT * FROM t limit 20", 100))
}
