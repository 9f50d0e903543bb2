package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchen-dashboard/config"
	"kitchen-dashboard/internal/model"
)

func TestDialector(t *testing.T) {
	assert.Equal(t, "postgres", Dialector("postgres://u:p@localhost/kitchen").Name())
	assert.Equal(t, "postgres", Dialector("host=localhost user=u dbname=kitchen").Name())
	assert.Equal(t, "sqlite", Dialector("file:kitchen.db").Name())
	assert.Equal(t, "sqlite", Dialector(":memory:").Name())
}

func TestInit_SQLiteMigrates(t *testing.T) {
	gormDB, err := Init(&config.DatabaseConfig{DSN: "file:dbtest?mode=memory&cache=shared", MaxOpenConns: 1})
	require.NoError(t, err)

	assert.True(t, gormDB.Migrator().HasTable(&model.ClientState{}))
	assert.True(t, gormDB.Migrator().HasTable(&model.PushSubscription{}))
}
