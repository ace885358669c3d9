package main

import (
	"testing"

	"pasar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDatabase_SqliteFallback(t *testing.T) {
	db, err := openDatabase("sqlite", "file:maintest?mode=memory&cache=shared")
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Product{}, &models.Review{}, &models.Order{}))

	for _, table := range []string{"users", "products", "reviews", "orders"} {
		assert.True(t, db.Migrator().HasTable(table), "expected table %s after migration", table)
	}

	// Unknown drivers fall back to sqlite rather than failing startup.
	db, err = openDatabase("not-a-driver", "file:maintest2?mode=memory&cache=shared")
	require.NoError(t, err)
	assert.NotNil(t, db)
}
