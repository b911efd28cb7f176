package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	ms, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)

	assert.Equal(t, "migrations/001_schema.sql", ms[0].Name)
	for _, m := range ms {
		assert.Contains(t, m.SQL, "IF NOT EXISTS", "%s must be idempotent", m.Name)
	}
	assert.True(t, strings.Contains(ms[0].SQL, "CREATE TABLE IF NOT EXISTS outbox"))
}
