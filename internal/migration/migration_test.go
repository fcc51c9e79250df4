package migration

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestLatestMigrationVersion(t *testing.T) {
	version, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestParseMigrationVersion(t *testing.T) {
	version, ok := parseMigrationVersion("000012_add_index.up.sql")
	assert.True(t, ok)
	assert.Equal(t, uint(12), version)

	_, ok = parseMigrationVersion("init.up.sql")
	assert.False(t, ok)

	_, ok = parseMigrationVersion("000000_zero.up.sql")
	assert.False(t, ok)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	for _, name := range []string{"000001_init.up.sql", "000001_init.down.sql"} {
		content, err := embeddedMigrations.ReadFile(migrationsDir + "/" + name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, content, name)
	}
}

func TestRunAutoMigratesNonPostgres(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Run(conn, zap.NewNop()))

	for _, table := range []string{"organizations", "credit_histories", "leads", "costs", "payments"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestRunRequiresConnection(t *testing.T) {
	assert.Error(t, Run(nil, zap.NewNop()))
}
