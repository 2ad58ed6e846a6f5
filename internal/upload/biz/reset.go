package biz

import (
	"context"

	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/upload/storagepath"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"go.uber.org/zap"
)

// TxRunner executes a function as one transactional unit of work, threading
// the transaction through the context so repositories participate in it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ResetResult reports what a reset removed.
type ResetResult struct {
	DeletedArtifactCount int64    `json:"deleted_artifact_count"`
	StoragePathsToDelete []string `json:"storage_paths_to_delete"`
}

// ResetUseCase clears a completed entity back to draft for re-upload.
type ResetUseCase struct {
	tx        TxRunner
	entities  *EntityUseCase
	artifacts ArtifactRepo
	sessions  SessionRepo
	blobs     BlobStore // may be nil
	logger    *logger.Logger
}

// NewResetUseCase creates the reset service
func NewResetUseCase(tx TxRunner, entities *EntityUseCase, artifacts ArtifactRepo, sessions SessionRepo, blobs BlobStore, log *logger.Logger) *ResetUseCase {
	return &ResetUseCase{tx: tx, entities: entities, artifacts: artifacts, sessions: sessions, blobs: blobs, logger: log}
}

// ResetEntity deletes every artifact of a completed entity, clears its final
// URLs and flips it back to draft, all as a single unit. Any other starting
// status is rejected. After the rows are gone the released objects are
// deleted from the blob store, followed by a sweep of the entity's own slot
// prefixes for objects that were written but never registered.
func (uc *ResetUseCase) ResetEntity(ctx context.Context, kind types.EntityKind, entityID string) (*ResetResult, error) {
	entity, err := uc.entities.Get(ctx, kind, entityID)
	if err != nil {
		return nil, err
	}
	if entity.Status != types.EntityStatusCompleted {
		return nil, apperrors.Newf(apperrors.ErrUploadInvalidTransition,
			"reset requires a completed entity, got %s", entity.Status)
	}

	result := &ResetResult{}

	err = uc.tx.RunInTx(ctx, func(ctx context.Context) error {
		artifacts, err := uc.artifacts.ListByEntity(ctx, kind, entityID)
		if err != nil {
			return err
		}

		for _, a := range artifacts {
			result.StoragePathsToDelete = append(result.StoragePathsToDelete, a.StoragePath)
		}

		deleted, err := uc.artifacts.DeleteByEntity(ctx, kind, entityID)
		if err != nil {
			return err
		}
		result.DeletedArtifactCount = deleted

		// Clearing the URLs and leaving completed must happen in the same
		// mutation; an empty URL set signals the explicit reset.
		cleared := make(map[types.FileKind]string, len(types.FinalURLKinds(kind)))
		for _, fk := range types.FinalURLKinds(kind) {
			cleared[fk] = ""
		}

		_, err = uc.entities.Transition(ctx, entity, types.EntityStatusDraft, cleared)
		return err
	})
	if err != nil {
		return nil, err
	}

	if uc.blobs != nil {
		log := uc.logger.WithContext(ctx)

		if failed := uc.blobs.RemoveObjects(ctx, result.StoragePathsToDelete); len(failed) > 0 {
			log.Warn("blob removal incomplete on reset",
				zap.String("entity_id", entityID),
				zap.Int("failed", len(failed)),
			)
		}

		uc.sweepLeftovers(ctx, entity)
	}

	uc.logger.WithContext(ctx).Info("entity reset for re-upload",
		zap.String("entity_kind", kind.String()),
		zap.String("entity_id", entityID),
		zap.Int64("deleted_artifacts", result.DeletedArtifactCount),
	)

	return result, nil
}

// sweepLeftovers enumerates the entity's own slot prefixes and removes the
// objects nothing accounts for anymore. A leftover is removed only when no
// artifact row and no active session still claims its path, so files that
// other entities share a prefix with survive. Best effort.
func (uc *ResetUseCase) sweepLeftovers(ctx context.Context, entity *Entity) {
	log := uc.logger.WithContext(ctx)

	chain, err := uc.entities.ResolveChain(ctx, entity)
	if err != nil {
		return
	}
	prefixes, err := storagepath.EntityPrefixes(chain, entity.Kind)
	if err != nil {
		return
	}

	var doomed []string
	for _, prefix := range prefixes {
		leftover, err := uc.blobs.ListObjects(ctx, prefix)
		if err != nil {
			log.Warn("prefix enumeration failed on reset",
				zap.String("entity_id", entity.ID),
				zap.String("prefix", prefix),
				zap.Error(err),
			)
			continue
		}
		if len(leftover) == 0 {
			continue
		}

		claimed, err := uc.claimedPaths(ctx, prefix)
		if err != nil {
			log.Warn("claimed path lookup failed on reset",
				zap.String("prefix", prefix),
				zap.Error(err),
			)
			continue
		}

		for _, name := range leftover {
			if _, ok := claimed[name]; ok {
				continue
			}
			doomed = append(doomed, name)
		}
	}

	if len(doomed) == 0 {
		return
	}

	log.Info("removing unclaimed objects on reset",
		zap.String("entity_id", entity.ID),
		zap.Int("count", len(doomed)),
	)
	if failed := uc.blobs.RemoveObjects(ctx, doomed); len(failed) > 0 {
		log.Warn("leftover removal incomplete",
			zap.String("entity_id", entity.ID),
			zap.Int("failed", len(failed)),
		)
	}
}

// claimedPaths collects the storage paths under a prefix that are still
// referenced by an artifact row or an active upload session.
func (uc *ResetUseCase) claimedPaths(ctx context.Context, prefix string) (map[string]struct{}, error) {
	claimed := make(map[string]struct{})

	paths, err := uc.artifacts.ListPathsUnder(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		claimed[p] = struct{}{}
	}

	paths, err = uc.sessions.ListActiveFinalPaths(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		claimed[p] = struct{}{}
	}

	return claimed, nil
}
