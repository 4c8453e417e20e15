package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/angelmondragon/tillpoint-backend/pkg/db"
	"github.com/angelmondragon/tillpoint-backend/pkg/migrate"
)

func TestRepositoryLoadSnapshotFromSeededCatalog(t *testing.T) {
	conn, err := db.Open(sqlite.Open("file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	require.NoError(t, migrate.AutoMigrate(conn))
	_, err = migrate.SeedCatalog(context.Background(), conn)
	require.NoError(t, err)

	snap, err := NewRepository(conn).LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Categories, 8)
	assert.Len(t, snap.Products, 8)
	assert.Len(t, snap.Stock, 8)
	assert.Equal(t, "Beverages", snap.Categories[0].Name)

	byCode := map[string]Product{}
	for _, p := range snap.Products {
		byCode[p.ShortCode] = p
	}
	assert.Equal(t, "4.99", byCode["OJ"].UnitPrice.StringFixed(2))
	assert.Equal(t, "3.20", byCode["OJ"].CostPrice.StringFixed(2))
}
