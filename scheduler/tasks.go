package scheduler

import (
	"context"

	"github.com/metrocity/server/model"
	"go.uber.org/zap"
)

// StatsSource is the part of the store the stats task reads.
type StatsSource interface {
	Stats(ctx context.Context) (model.Stats, error)
}

// StoreStats returns a task that logs entity counts.
func StoreStats(src StatsSource, logger *zap.Logger) TaskFn {
	return func(ctx context.Context) {
		st, err := src.Stats(ctx)
		if err != nil {
			logger.Error("store stats failed", zap.Error(err))
			return
		}
		logger.Info("store stats",
			zap.Int64("users", st.Users),
			zap.Int64("posts", st.Posts),
			zap.Int64("chats", st.Chats),
			zap.Int64("notifications", st.Notifications),
			zap.Int64("friendships", st.Friendships))
	}
}
