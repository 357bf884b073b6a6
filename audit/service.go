package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/metrocity/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// AuditEntry holds one audit event to be logged.
type AuditEntry struct {
	TraceID    string
	UserID     *int64
	Action     string
	Status     int
	Request    interface{}
	Error      string
	IP         string
	DurationMs int
}

// Service records audit entries asynchronously in batches. With a database
// the batches go to the audit_logs table; without one (memory store) each
// entry is written to the logger instead.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a new audit Service and starts its background worker.
// db may be nil.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an audit entry. It never blocks; entries are dropped with a
// warning when the queue is full.
func (svc *Service) Log(entry AuditEntry) {
	var reqJSON []byte
	if entry.Request != nil {
		reqJSON, _ = json.Marshal(entry.Request)
	}
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		UserID:     entry.UserID,
		Action:     entry.Action,
		Status:     entry.Status,
		Request:    datatypes.JSON(reqJSON),
		Error:      entry.Error,
		IP:         entry.IP,
		DurationMs: entry.DurationMs,
		CreatedAt:  time.Now(),
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished or ctx is done.
func (svc *Service) Stop(ctx context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		svc.logger.Warn("audit stop timed out", zap.Error(ctx.Err()))
	}
}

func (svc *Service) write(batch []*model.AuditLog) {
	if svc.db == nil {
		for _, r := range batch {
			fields := []zap.Field{
				zap.String("trace_id", r.TraceID),
				zap.String("action", r.Action),
				zap.Int("status", r.Status),
				zap.String("ip", r.IP),
				zap.Int("duration_ms", r.DurationMs),
			}
			if r.UserID != nil {
				fields = append(fields, zap.Int64("user_id", *r.UserID))
			}
			if r.Error != "" {
				fields = append(fields, zap.String("error", r.Error))
			}
			svc.logger.Info("audit", fields...)
		}
		return
	}
	if err := svc.db.Create(&batch).Error; err != nil {
		svc.logger.Error("audit batch write failed", zap.Error(err), zap.Int("size", len(batch)))
	}
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		svc.write(batch)
		batch = make([]*model.AuditLog, 0, batchSize)
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
