package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, "0001_auth", migrations[0].Version)
	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
}

func TestAuthSchemaCarriesUniquenessConstraints(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	schema := migrations[0].SQL

	assert.Contains(t, schema, "identities_email_key ON identities (lower(email))")
	assert.Contains(t, schema, "PRIMARY KEY (identity_id, device_id)")
	assert.Contains(t, schema, "sessions_token_hash_key ON sessions (token_hash)")
	assert.False(t, strings.Contains(schema, "password TEXT"), "plain passwords are never stored")
}
