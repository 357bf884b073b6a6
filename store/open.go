package store

import (
	"context"
	"fmt"

	"github.com/metrocity/server/config"
	dbadapter "github.com/metrocity/server/db"
	"github.com/metrocity/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open builds the store selected by cfg.Mode. For database modes it also
// returns the migrated *gorm.DB so other components (audit) can share it;
// for memory mode the returned DB is nil.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, *gorm.DB, error) {
	opts := []Option{WithLikeTracking(cfg.DedupeLikes)}

	if cfg.Mode == "" || cfg.Mode == dbadapter.ModeMemory {
		if !cfg.Seed {
			opts = append(opts, WithoutSeed())
		}
		logger.Info("store initialized", zap.String("mode", dbadapter.ModeMemory))
		return NewMemStore(opts...), nil, nil
	}

	db, err := dbadapter.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("store: open: %w", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		return nil, nil, fmt.Errorf("store: migrate: %w", err)
	}
	s := NewGormStore(db, opts...)
	if cfg.Seed {
		seeded, err := s.Seed(ctx)
		if err != nil {
			return nil, nil, err
		}
		if seeded {
			logger.Info("store seeded")
		}
	}
	logger.Info("store initialized", zap.String("mode", cfg.Mode))
	return s, db, nil
}
