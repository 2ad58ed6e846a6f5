package biz

import (
	"context"
	"sync"

	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/pkg/workerpool"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"go.uber.org/zap"
)

// OrphanArtifact describes an artifact whose parent entity no longer exists.
type OrphanArtifact struct {
	ArtifactID  string           `json:"artifact_id"`
	EntityKind  types.EntityKind `json:"entity_kind"`
	EntityID    string           `json:"entity_id"`
	FileKind    types.FileKind   `json:"file_kind"`
	StoragePath string           `json:"storage_path"`
}

// CleanupResult reports what a cleanup pass removed.
type CleanupResult struct {
	DeletedCount         int64    `json:"deleted_count"`
	StoragePathsToDelete []string `json:"storage_paths_to_delete"`
}

// ReconcilerUseCase finds and removes artifact and session rows whose parent
// entity is gone. All scans are read-then-delete over a best-effort
// consistency window: an entity deleted concurrently is picked up one cycle
// later.
type ReconcilerUseCase struct {
	artifacts ArtifactRepo
	sessions  SessionRepo
	pool      *workerpool.Pool
	logger    *logger.Logger
}

// NewReconcilerUseCase creates the orphan reconciler
func NewReconcilerUseCase(artifacts ArtifactRepo, sessions SessionRepo, pool *workerpool.Pool, log *logger.Logger) *ReconcilerUseCase {
	return &ReconcilerUseCase{
		artifacts: artifacts,
		sessions:  sessions,
		pool:      pool,
		logger:    log,
	}
}

var entityKinds = []types.EntityKind{
	types.EntityKindProject,
	types.EntityKindOption,
	types.EntityKindRecord,
}

// FindOrphans returns orphaned artifacts grouped by entity kind
func (uc *ReconcilerUseCase) FindOrphans(ctx context.Context) (map[types.EntityKind][]*OrphanArtifact, error) {
	result := make(map[types.EntityKind][]*OrphanArtifact, len(entityKinds))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	for _, kind := range entityKinds {
		kind := kind
		scan := func() {
			defer wg.Done()

			artifacts, err := uc.artifacts.ListOrphaned(ctx, kind)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}

			orphans := make([]*OrphanArtifact, 0, len(artifacts))
			for _, a := range artifacts {
				orphans = append(orphans, &OrphanArtifact{
					ArtifactID:  a.ID,
					EntityKind:  a.EntityKind,
					EntityID:    a.EntityID,
					FileKind:    a.FileKind,
					StoragePath: a.StoragePath,
				})
			}
			result[kind] = orphans
		}

		wg.Add(1)
		if uc.pool == nil || uc.pool.Submit(scan) != nil {
			scan()
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// CleanupOrphans deletes orphaned artifact and session rows and returns the
// storage paths the blob-store collaborator should physically delete.
func (uc *ReconcilerUseCase) CleanupOrphans(ctx context.Context) (*CleanupResult, error) {
	orphans, err := uc.FindOrphans(ctx)
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{}

	var artifactIDs []string
	for _, group := range orphans {
		for _, o := range group {
			artifactIDs = append(artifactIDs, o.ArtifactID)
			result.StoragePathsToDelete = append(result.StoragePathsToDelete, o.StoragePath)
		}
	}

	if len(artifactIDs) > 0 {
		deleted, err := uc.artifacts.DeleteByIDs(ctx, artifactIDs)
		if err != nil {
			return nil, err
		}
		result.DeletedCount = deleted
	}

	// Sessions referencing deleted entities are orphans too; their final
	// paths may hold partially uploaded objects.
	for _, kind := range entityKinds {
		sessions, err := uc.sessions.ListOrphaned(ctx, kind)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			continue
		}

		ids := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ids = append(ids, s.ID)
			if s.FinalPath != "" {
				result.StoragePathsToDelete = append(result.StoragePathsToDelete, s.FinalPath)
			}
		}

		deleted, err := uc.sessions.DeleteByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		result.DeletedCount += deleted
	}

	if result.DeletedCount > 0 {
		uc.logger.WithContext(ctx).Info("orphan cleanup",
			zap.Int64("deleted", result.DeletedCount),
			zap.Int("paths", len(result.StoragePathsToDelete)),
		)
	}

	return result, nil
}
