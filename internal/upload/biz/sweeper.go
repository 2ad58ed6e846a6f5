package biz

import (
	"context"
	"time"

	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// BlobStore abstracts the object storage backend for verification and
// deletion passes.
type BlobStore interface {
	// StatObject returns size and content type for an object, or an error
	// when it is absent.
	StatObject(ctx context.Context, objectName string) (int64, string, error)
	// RemoveObjects deletes the named objects and returns the names that
	// failed to delete.
	RemoveObjects(ctx context.Context, objectNames []string) []string
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// SweeperConfig controls the background maintenance loop.
type SweeperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func (c *SweeperConfig) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
}

// Sweeper periodically expires aged sessions and reconciles orphaned rows,
// then deletes the released objects from the blob store. Blob deletion is
// best effort: a failed removal is logged and retried on a later cycle by
// the enumerate-and-diff pass during entity reset.
type Sweeper struct {
	sessions   *SessionUseCase
	reconciler *ReconcilerUseCase
	blobs      BlobStore
	cfg        SweeperConfig
	logger     *logger.Logger
}

// NewSweeper creates the maintenance sweeper
func NewSweeper(sessions *SessionUseCase, reconciler *ReconcilerUseCase, blobs BlobStore, cfg SweeperConfig, log *logger.Logger) *Sweeper {
	cfg.setDefaults()
	return &Sweeper{
		sessions:   sessions,
		reconciler: reconciler,
		blobs:      blobs,
		cfg:        cfg,
		logger:     log,
	}
}

// Run blocks until ctx is cancelled, executing one sweep per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single maintenance pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	log := s.logger.WithContext(ctx)

	expired, deleted, err := s.sessions.Sweep(ctx)
	if err != nil {
		log.Error("session sweep failed", zap.Error(err))
	} else if expired > 0 || deleted > 0 {
		log.Info("session sweep",
			zap.Int64("expired", expired),
			zap.Int64("deleted", deleted),
		)
	}

	result, err := s.reconciler.CleanupOrphans(ctx)
	if err != nil {
		log.Error("orphan cleanup failed", zap.Error(err))
		return
	}

	if s.blobs != nil && len(result.StoragePathsToDelete) > 0 {
		if failed := s.blobs.RemoveObjects(ctx, result.StoragePathsToDelete); len(failed) > 0 {
			log.Warn("blob removal incomplete",
				zap.Int("requested", len(result.StoragePathsToDelete)),
				zap.Int("failed", len(failed)),
			)
		}
	}
}
