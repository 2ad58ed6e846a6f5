package biz

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"go.uber.org/zap"
)

// FileArtifact is one logical file slot bound to an entity. Artifacts
// reference their entity by (kind, id) without a foreign key, so the registry
// can still be queried about entities that are already gone.
type FileArtifact struct {
	ID            string
	EntityKind    types.EntityKind
	EntityID      string
	FileKind      types.FileKind
	StoragePath   string
	Size          int64
	MimeType      string
	IsRequired    bool
	Status        types.ArtifactStatus
	FailureReason string
	UploadedAt    time.Time
	VerifiedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ArtifactRepo is the artifact registry persistence surface.
type ArtifactRepo interface {
	// Create inserts a new artifact. Implementations map a storage-path
	// uniqueness violation to ErrUploadPathConflict.
	Create(ctx context.Context, a *FileArtifact) error
	GetByID(ctx context.Context, id string) (*FileArtifact, error)
	// GetByPath returns nil, nil when no artifact uses the path.
	GetByPath(ctx context.Context, path string) (*FileArtifact, error)
	ListByEntity(ctx context.Context, kind types.EntityKind, entityID string) ([]*FileArtifact, error)
	// ListPathsUnder returns the storage paths of artifacts whose path
	// starts with the given prefix.
	ListPathsUnder(ctx context.Context, pathPrefix string) ([]string, error)
	Update(ctx context.Context, a *FileArtifact) error
	DeleteByEntity(ctx context.Context, kind types.EntityKind, entityID string) (int64, error)
	// ListOrphaned returns artifacts of the given entity kind whose entity no
	// longer exists.
	ListOrphaned(ctx context.Context, kind types.EntityKind) ([]*FileArtifact, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// ArtifactUseCase implements the file artifact registry. It never touches the
// entity's own status; lifecycle changes go through EntityUseCase.
type ArtifactUseCase struct {
	repo     ArtifactRepo
	entities EntityRepo
	blobs    BlobStore // may be nil
	logger   *logger.Logger
}

// NewArtifactUseCase creates the artifact registry use case
func NewArtifactUseCase(repo ArtifactRepo, entities EntityRepo, blobs BlobStore, log *logger.Logger) *ArtifactUseCase {
	return &ArtifactUseCase{repo: repo, entities: entities, blobs: blobs, logger: log}
}

// Register creates an artifact row for a file slot about to be uploaded
func (uc *ArtifactUseCase) Register(ctx context.Context, kind types.EntityKind, entityID string, fileKind types.FileKind, path string, isRequired bool) (*FileArtifact, error) {
	if !types.AllowsFileKind(kind, fileKind) {
		return nil, apperrors.Newf(apperrors.ErrInvalidParams, "%s entities do not carry %s files", kind, fileKind)
	}
	if path == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParams, "storage path is required")
	}

	if _, err := uc.entities.Get(ctx, kind, entityID); err != nil {
		return nil, err
	}

	existing, err := uc.repo.GetByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.New(apperrors.ErrUploadPathConflict, path)
	}

	now := time.Now().UTC()
	artifact := &FileArtifact{
		ID:          uuid.NewString(),
		EntityKind:  kind,
		EntityID:    entityID,
		FileKind:    fileKind,
		StoragePath: path,
		IsRequired:  isRequired,
		Status:      types.ArtifactStatusUploading,
		UploadedAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The unique index on storage_path is the backstop for two registrations
	// racing past the existence check above.
	if err := uc.repo.Create(ctx, artifact); err != nil {
		return nil, err
	}

	uc.logger.WithContext(ctx).Info("artifact registered",
		zap.String("artifact_id", artifact.ID),
		zap.String("entity_kind", kind.String()),
		zap.String("entity_id", entityID),
		zap.String("file_kind", fileKind.String()),
		zap.String("path", path),
		zap.Bool("required", isRequired),
	)

	return artifact, nil
}

// MarkCompleted records that the byte transfer for an artifact was confirmed.
// When a blob store is wired in, the object is stat'ed first and its reported
// size wins over the caller's claim.
func (uc *ArtifactUseCase) MarkCompleted(ctx context.Context, artifactID string, size int64, mimeType string) (*FileArtifact, error) {
	artifact, err := uc.repo.GetByID(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	if uc.blobs != nil {
		statSize, statMime, err := uc.blobs.StatObject(ctx, artifact.StoragePath)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrUploadStorageFailed,
				"object not found at "+artifact.StoragePath)
		}
		size = statSize
		if statMime != "" {
			mimeType = statMime
		}
	}

	now := time.Now().UTC()
	artifact.Status = types.ArtifactStatusCompleted
	artifact.Size = size
	artifact.MimeType = mimeType
	artifact.FailureReason = ""
	artifact.VerifiedAt = &now
	artifact.UpdatedAt = now

	if err := uc.repo.Update(ctx, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

// MarkFailed records a failed transfer for an artifact
func (uc *ArtifactUseCase) MarkFailed(ctx context.Context, artifactID, reason string) (*FileArtifact, error) {
	artifact, err := uc.repo.GetByID(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	artifact.Status = types.ArtifactStatusFailed
	artifact.FailureReason = reason
	artifact.UpdatedAt = time.Now().UTC()

	if err := uc.repo.Update(ctx, artifact); err != nil {
		return nil, err
	}

	uc.logger.WithContext(ctx).Warn("artifact marked failed",
		zap.String("artifact_id", artifactID),
		zap.String("reason", reason),
	)

	return artifact, nil
}

// ListByEntity returns every artifact registered for an entity
func (uc *ArtifactUseCase) ListByEntity(ctx context.Context, kind types.EntityKind, entityID string) ([]*FileArtifact, error) {
	return uc.repo.ListByEntity(ctx, kind, entityID)
}
