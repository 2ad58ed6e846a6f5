package data

import (
	"context"
	"fmt"
	"time"

	"github.com/scenehub/scenehub-backend/internal/pkg/database"
	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/upload/biz"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
)

// FileArtifactPO represents the file_artifacts table
type FileArtifactPO struct {
	ID            string `gorm:"type:uuid;primarykey"`
	EntityKind    string `gorm:"size:20;not null;index:idx_file_artifacts_entity"`
	EntityID      string `gorm:"type:uuid;not null;index:idx_file_artifacts_entity"`
	FileKind      string `gorm:"size:32;not null"`
	StoragePath   string `gorm:"size:1024;not null;uniqueIndex:idx_file_artifacts_storage_path"`
	Size          int64  `gorm:"not null;default:0"`
	MimeType      string `gorm:"size:128;not null;default:''"`
	IsRequired    bool   `gorm:"not null;default:false"`
	Status        string `gorm:"size:20;not null;index"`
	FailureReason string `gorm:"size:512;not null;default:''"`
	UploadedAt    time.Time
	VerifiedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (FileArtifactPO) TableName() string {
	return "file_artifacts"
}

// ArtifactRepo implements biz.ArtifactRepo
type ArtifactRepo struct {
	db *database.DB
}

// NewArtifactRepo creates the gorm-backed artifact repository
func NewArtifactRepo(db *database.DB) biz.ArtifactRepo {
	return &ArtifactRepo{db: db}
}

func (r *ArtifactRepo) Create(ctx context.Context, a *biz.FileArtifact) error {
	db := r.db.GetDBFromContext(ctx)

	if err := db.Create(artifactToPO(a)).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return apperrors.New(apperrors.ErrUploadPathConflict, a.StoragePath)
		}
		return apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return nil
}

func (r *ArtifactRepo) GetByID(ctx context.Context, id string) (*biz.FileArtifact, error) {
	db := r.db.GetDBFromContext(ctx)

	var po FileArtifactPO
	if err := db.First(&po, "id = ?", id).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, apperrors.NewNotFoundError("artifact " + id)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return artifactToDomain(&po), nil
}

func (r *ArtifactRepo) GetByPath(ctx context.Context, path string) (*biz.FileArtifact, error) {
	db := r.db.GetDBFromContext(ctx)

	var po FileArtifactPO
	if err := db.First(&po, "storage_path = ?", path).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return artifactToDomain(&po), nil
}

func (r *ArtifactRepo) ListByEntity(ctx context.Context, kind types.EntityKind, entityID string) ([]*biz.FileArtifact, error) {
	db := r.db.GetDBFromContext(ctx)

	var pos []FileArtifactPO
	err := db.Where("entity_kind = ? AND entity_id = ?", kind.String(), entityID).
		Order("created_at ASC").
		Find(&pos).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	artifacts := make([]*biz.FileArtifact, 0, len(pos))
	for i := range pos {
		artifacts = append(artifacts, artifactToDomain(&pos[i]))
	}
	return artifacts, nil
}

func (r *ArtifactRepo) ListPathsUnder(ctx context.Context, pathPrefix string) ([]string, error) {
	db := r.db.GetDBFromContext(ctx)

	var paths []string
	err := db.Model(&FileArtifactPO{}).
		Where("storage_path LIKE ?", pathPrefix+"%").
		Pluck("storage_path", &paths).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return paths, nil
}

func (r *ArtifactRepo) Update(ctx context.Context, a *biz.FileArtifact) error {
	db := r.db.GetDBFromContext(ctx)

	res := db.Model(&FileArtifactPO{}).Where("id = ?", a.ID).Updates(map[string]interface{}{
		"status":         a.Status.String(),
		"size":           a.Size,
		"mime_type":      a.MimeType,
		"failure_reason": a.FailureReason,
		"verified_at":    a.VerifiedAt,
		"updated_at":     a.UpdatedAt,
	})
	if res.Error != nil {
		return apperrors.Wrap(res.Error, apperrors.ErrInternalServer)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("artifact " + a.ID)
	}
	return nil
}

func (r *ArtifactRepo) DeleteByEntity(ctx context.Context, kind types.EntityKind, entityID string) (int64, error) {
	db := r.db.GetDBFromContext(ctx)

	res := db.Where("entity_kind = ? AND entity_id = ?", kind.String(), entityID).
		Delete(&FileArtifactPO{})
	if res.Error != nil {
		return 0, apperrors.Wrap(res.Error, apperrors.ErrInternalServer)
	}
	return res.RowsAffected, nil
}

// ListOrphaned finds artifacts whose entity row no longer exists, one anti
// join per entity table.
func (r *ArtifactRepo) ListOrphaned(ctx context.Context, kind types.EntityKind) ([]*biz.FileArtifact, error) {
	db := r.db.GetDBFromContext(ctx)

	table, err := entityTable(kind)
	if err != nil {
		return nil, err
	}

	var pos []FileArtifactPO
	err = db.Where("entity_kind = ?", kind.String()).
		Where(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s e WHERE e.id = file_artifacts.entity_id)", table)).
		Find(&pos).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	artifacts := make([]*biz.FileArtifact, 0, len(pos))
	for i := range pos {
		artifacts = append(artifacts, artifactToDomain(&pos[i]))
	}
	return artifacts, nil
}

func (r *ArtifactRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db := r.db.GetDBFromContext(ctx)

	res := db.Where("id IN ?", ids).Delete(&FileArtifactPO{})
	if res.Error != nil {
		return 0, apperrors.Wrap(res.Error, apperrors.ErrInternalServer)
	}
	return res.RowsAffected, nil
}

func entityTable(kind types.EntityKind) (string, error) {
	switch kind {
	case types.EntityKindProject:
		return ProjectPO{}.TableName(), nil
	case types.EntityKindOption:
		return DesignOptionPO{}.TableName(), nil
	case types.EntityKindRecord:
		return RecordPO{}.TableName(), nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidParams, "unknown entity kind %q", kind)
	}
}

func artifactToPO(a *biz.FileArtifact) *FileArtifactPO {
	return &FileArtifactPO{
		ID:            a.ID,
		EntityKind:    a.EntityKind.String(),
		EntityID:      a.EntityID,
		FileKind:      a.FileKind.String(),
		StoragePath:   a.StoragePath,
		Size:          a.Size,
		MimeType:      a.MimeType,
		IsRequired:    a.IsRequired,
		Status:        a.Status.String(),
		FailureReason: a.FailureReason,
		UploadedAt:    a.UploadedAt,
		VerifiedAt:    a.VerifiedAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func artifactToDomain(po *FileArtifactPO) *biz.FileArtifact {
	return &biz.FileArtifact{
		ID:            po.ID,
		EntityKind:    types.EntityKind(po.EntityKind),
		EntityID:      po.EntityID,
		FileKind:      types.FileKind(po.FileKind),
		StoragePath:   po.StoragePath,
		Size:          po.Size,
		MimeType:      po.MimeType,
		IsRequired:    po.IsRequired,
		Status:        types.ArtifactStatus(po.Status),
		FailureReason: po.FailureReason,
		UploadedAt:    po.UploadedAt,
		VerifiedAt:    po.VerifiedAt,
		CreatedAt:     po.CreatedAt,
		UpdatedAt:     po.UpdatedAt,
	}
}
