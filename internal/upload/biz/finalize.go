package biz

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"go.uber.org/zap"
)

// MissingRequiredError reports how many required artifacts are not yet
// completed. Carried inside the IncompleteRequiredFiles app error so callers
// can read the exact count.
type MissingRequiredError struct {
	Missing int
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("%d required file(s) not completed", e.Missing)
}

// ArtifactSummary is the per-artifact slice of a finalize result.
type ArtifactSummary struct {
	ID          string         `json:"id"`
	FileKind    types.FileKind `json:"file_kind"`
	StoragePath string         `json:"storage_path"`
	Size        int64          `json:"size"`
	MimeType    string         `json:"mime_type"`
	IsRequired  bool           `json:"is_required"`
}

// FinalizeSummary is returned on a successful finalization.
type FinalizeSummary struct {
	EntityID    string                    `json:"entity_id"`
	EntityKind  types.EntityKind          `json:"entity_kind"`
	CompletedAt time.Time                 `json:"completed_at"`
	FinalURLs   map[types.FileKind]string `json:"final_urls"`
	Artifacts   []ArtifactSummary         `json:"artifacts"`
}

// FinalizeUseCase verifies that every required artifact is completed and
// commits the entity's completed transition.
type FinalizeUseCase struct {
	entities  *EntityUseCase
	artifacts ArtifactRepo
	logger    *logger.Logger
	now       func() time.Time
}

// NewFinalizeUseCase creates the finalization service
func NewFinalizeUseCase(entities *EntityUseCase, artifacts ArtifactRepo, log *logger.Logger) *FinalizeUseCase {
	return &FinalizeUseCase{
		entities:  entities,
		artifacts: artifacts,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Finalize verifies the entity's artifacts and flips it to completed with the
// final URLs denormalized in the same mutation. Finalizing an entity that is
// already completed fails: completed is immutable until an explicit reset.
func (uc *FinalizeUseCase) Finalize(ctx context.Context, kind types.EntityKind, entityID string) (*FinalizeSummary, error) {
	entity, err := uc.entities.Get(ctx, kind, entityID)
	if err != nil {
		return nil, err
	}

	if entity.Status == types.EntityStatusCompleted {
		return nil, apperrors.Newf(apperrors.ErrUploadInvalidTransition,
			"entity %s/%s is already completed", kind, entityID)
	}

	artifacts, err := uc.artifacts.ListByEntity(ctx, kind, entityID)
	if err != nil {
		return nil, err
	}

	var required, requiredDone int
	for _, a := range artifacts {
		if !a.IsRequired {
			continue
		}
		required++
		if a.Status == types.ArtifactStatusCompleted {
			requiredDone++
		}
	}

	if missing := required - requiredDone; missing > 0 {
		uc.logger.WithContext(ctx).Info("finalize rejected, required files incomplete",
			zap.String("entity_kind", kind.String()),
			zap.String("entity_id", entityID),
			zap.Int("missing", missing),
		)
		return nil, apperrors.Wrap(&MissingRequiredError{Missing: missing}, apperrors.ErrUploadIncompleteFiles)
	}

	// Denormalize the most recently completed artifact per file slot.
	urls := make(map[types.FileKind]string, len(types.FinalURLKinds(kind)))
	for _, fk := range types.FinalURLKinds(kind) {
		if latest := latestCompleted(artifacts, fk); latest != nil {
			urls[fk] = latest.StoragePath
		} else {
			urls[fk] = ""
		}
	}

	// The transition guard re-checks that every required URL is set and the
	// CAS write rejects a concurrent finalize.
	if _, err := uc.entities.Transition(ctx, entity, types.EntityStatusCompleted, urls); err != nil {
		return nil, err
	}

	summary := &FinalizeSummary{
		EntityID:    entityID,
		EntityKind:  kind,
		CompletedAt: uc.now(),
		FinalURLs:   urls,
		Artifacts:   make([]ArtifactSummary, 0, len(artifacts)),
	}
	for _, a := range artifacts {
		summary.Artifacts = append(summary.Artifacts, ArtifactSummary{
			ID:          a.ID,
			FileKind:    a.FileKind,
			StoragePath: a.StoragePath,
			Size:        a.Size,
			MimeType:    a.MimeType,
			IsRequired:  a.IsRequired,
		})
	}

	uc.logger.WithContext(ctx).Info("entity finalized",
		zap.String("entity_kind", kind.String()),
		zap.String("entity_id", entityID),
		zap.Int("artifacts", len(artifacts)),
	)

	return summary, nil
}

// latestCompleted picks the most recently verified completed artifact of the
// given file kind.
func latestCompleted(artifacts []*FileArtifact, fk types.FileKind) *FileArtifact {
	var latest *FileArtifact
	for _, a := range artifacts {
		if a.FileKind != fk || a.Status != types.ArtifactStatusCompleted {
			continue
		}
		if latest == nil || verifiedTime(a).After(verifiedTime(latest)) {
			latest = a
		}
	}
	return latest
}

func verifiedTime(a *FileArtifact) time.Time {
	if a.VerifiedAt != nil {
		return *a.VerifiedAt
	}
	return a.UploadedAt
}
