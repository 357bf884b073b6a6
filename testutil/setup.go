package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/metrocity/server/cache"
	"github.com/metrocity/server/config"
	dbadapter "github.com/metrocity/server/db"
	"github.com/metrocity/server/model"
	"github.com/metrocity/server/store"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Now is the fixed clock used by seeded test stores.
var Now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// Clock returns Now.
func Clock() time.Time { return Now }

// SetupTestDB creates an in-memory sqlite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.StoreConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: ":memory:",
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// SetupMemStore returns a seeded MemStore on the fixed test clock.
func SetupMemStore(t *testing.T, opts ...store.Option) *store.MemStore {
	t.Helper()
	return store.NewMemStore(append([]store.Option{store.WithClock(Clock)}, opts...)...)
}

// SetupGormStore returns a seeded GormStore over a fresh in-memory DB.
func SetupGormStore(t *testing.T, opts ...store.Option) *store.GormStore {
	t.Helper()
	s := store.NewGormStore(SetupTestDB(t), append([]store.Option{store.WithClock(Clock)}, opts...)...)
	seeded, err := s.Seed(context.Background())
	require.NoError(t, err, "SetupGormStore: Seed")
	require.True(t, seeded, "SetupGormStore: Seed inserted nothing")
	return s
}
