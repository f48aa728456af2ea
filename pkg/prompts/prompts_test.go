package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuilder_LoadsEmbeddedDefaults(t *testing.T) {
	b, err := NewBuilder(nil)
	require.NoError(t, err)

	system, user := b.Generate("TABLE: customers\n- customer_id (integer)", "How many customers do we have?")
	assert.Contains(t, system, "ONLY SELECT queries")
	assert.Contains(t, system, "Database schema")
	assert.Contains(t, system, "TABLE: customers")
	assert.Contains(t, system, "orders.customer_id -> customers.customer_id")
	assert.Contains(t, system, "Example 1:")
	assert.Contains(t, user, "How many customers do we have?")
}

func TestBuilder_InjectedKnowledgeReplacesDefaults(t *testing.T) {
	k := &Knowledge{
		Relationships: []Relationship{{From: "flights.plane_id", To: "planes.id"}},
		Examples:      []Example{{Question: "how many flights?", SQL: "SELECT COUNT(*) FROM flights;"}},
	}
	b, err := NewBuilder(k)
	require.NoError(t, err)

	system, _ := b.Generate("TABLE: flights", "q")
	assert.Contains(t, system, "flights.plane_id -> planes.id")
	assert.Contains(t, system, "SELECT COUNT(*) FROM flights;")
	assert.NotContains(t, system, "shipping_addresses")
}

func TestBuilder_RetryCarriesFailureContext(t *testing.T) {
	b, err := NewBuilder(nil)
	require.NoError(t, err)

	failedSQL := "SELECT cust_id FROM customers"
	errMsg := `column "cust_id" does not exist`
	system, user := b.Retry("TABLE: customers", "list customer ids", failedSQL, errMsg)

	assert.Contains(t, system, "Database schema")
	assert.Contains(t, user, failedSQL)
	assert.Contains(t, user, errMsg)
	assert.Contains(t, user, "list customer ids")
}

func TestParseKnowledge(t *testing.T) {
	k, err := parseKnowledge([]byte(`
relationships:
  - from: a.b
    to: c.d
    note: n
examples:
  - question: q
    sql: SELECT 1;
`))
	require.NoError(t, err)
	require.Len(t, k.Relationships, 1)
	require.Len(t, k.Examples, 1)
	assert.Equal(t, "a.b", k.Relationships[0].From)
	assert.Equal(t, "SELECT 1;", k.Examples[0].SQL)
}
