package service

import (
	"github.com/gin-gonic/gin"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/pkg/response"
	"github.com/scenehub/scenehub-backend/internal/upload/biz"
	"go.uber.org/zap"
)

// MaintenanceService exposes the orphan reconciler.
type MaintenanceService struct {
	reconciler *biz.ReconcilerUseCase
	blobs      biz.BlobStore // may be nil
	logger     *logger.Logger
}

// NewMaintenanceService creates the maintenance HTTP service
func NewMaintenanceService(reconciler *biz.ReconcilerUseCase, blobs biz.BlobStore, log *logger.Logger) *MaintenanceService {
	return &MaintenanceService{reconciler: reconciler, blobs: blobs, logger: log}
}

// FindOrphans handles GET /api/v1/maintenance/orphans
func (s *MaintenanceService) FindOrphans(c *gin.Context) {
	orphans, err := s.reconciler.FindOrphans(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, orphans)
}

// CleanupOrphans handles POST /api/v1/maintenance/orphans/cleanup
func (s *MaintenanceService) CleanupOrphans(c *gin.Context) {
	ctx := c.Request.Context()

	result, err := s.reconciler.CleanupOrphans(ctx)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	if s.blobs != nil && len(result.StoragePathsToDelete) > 0 {
		if failed := s.blobs.RemoveObjects(ctx, result.StoragePathsToDelete); len(failed) > 0 {
			s.logger.WithContext(ctx).Warn("blob removal incomplete on cleanup",
				zap.Int("requested", len(result.StoragePathsToDelete)),
				zap.Int("failed", len(failed)),
			)
		}
	}

	response.Success(c, result)
}
