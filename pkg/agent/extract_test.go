package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSQL(t *testing.T) {
	cases := []struct {
		name       string
		completion string
		want       string
	}{
		{
			name:       "bare statement",
			completion: "SELECT count(*) FROM customers;",
			want:       "SELECT count(*) FROM customers;",
		},
		{
			name:       "sql fence",
			completion: "```sql\nSELECT count(*) FROM customers;\n```",
			want:       "SELECT count(*) FROM customers;",
		},
		{
			name:       "generic fence",
			completion: "```\nSELECT id FROM orders\n```",
			want:       "SELECT id FROM orders",
		},
		{
			name:       "leading prose",
			completion: "Here is the query you asked for:\n\nSELECT id FROM orders WHERE status = 'pending';",
			want:       "SELECT id FROM orders WHERE status = 'pending';",
		},
		{
			name:       "trailing commentary",
			completion: "SELECT id FROM orders;\n\nThis query lists the order ids.",
			want:       "SELECT id FROM orders;",
		},
		{
			name:       "cte",
			completion: "WITH recent AS (SELECT * FROM orders) SELECT count(*) FROM recent;",
			want:       "WITH recent AS (SELECT * FROM orders) SELECT count(*) FROM recent;",
		},
		{
			name:       "stacked statement kept whole for the validator",
			completion: "SELECT * FROM customers; DROP TABLE orders;",
			want:       "SELECT * FROM customers; DROP TABLE orders;",
		},
		{
			name:       "semicolon inside literal",
			completion: "SELECT * FROM notes WHERE body = 'a; b';\nExplanation follows.",
			want:       "SELECT * FROM notes WHERE body = 'a; b';",
		},
		{
			name:       "bare write statement reaches the validator",
			completion: "DROP TABLE customers;",
			want:       "DROP TABLE customers;",
		},
		{
			name:       "fenced write statement reaches the validator",
			completion: "```sql\nDELETE FROM orders WHERE id = 1;\n```",
			want:       "DELETE FROM orders WHERE id = 1;",
		},
		{
			name:       "write statement after prose reaches the validator",
			completion: "To remove them you would run:\n\nTRUNCATE orders;",
			want:       "TRUNCATE orders;",
		},
		{
			name:       "no sql at all",
			completion: "I cannot produce a query for that question.",
			want:       "",
		},
		{
			name:       "empty",
			completion: "   ",
			want:       "",
		},
		{
			name:       "fence with prose only",
			completion: "```\nnot a query\n```",
			want:       "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractSQL(tc.completion))
		})
	}
}

func TestExtractSQL_Deterministic(t *testing.T) {
	in := "```sql\nSELECT 1;\n```"
	assert.Equal(t, ExtractSQL(in), ExtractSQL(in))
}
