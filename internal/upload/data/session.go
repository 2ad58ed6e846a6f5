package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/scenehub/scenehub-backend/internal/pkg/database"
	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/upload/biz"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChunkSetJSON stores the uploaded chunk indices as a JSONB array
type ChunkSetJSON []int

func (j *ChunkSetJSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j ChunkSetJSON) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal([]int{})
	}
	return json.Marshal(j)
}

// UploadSessionPO represents the upload_sessions table. A partial unique
// index keeps at most one active session per (entity_kind, entity_id,
// file_name) slot.
type UploadSessionPO struct {
	ID             string       `gorm:"type:uuid;primarykey"`
	EntityKind     string       `gorm:"size:20;not null;uniqueIndex:idx_upload_sessions_active_slot,where:status = 'active'"`
	EntityID       string       `gorm:"type:uuid;not null;uniqueIndex:idx_upload_sessions_active_slot,where:status = 'active'"`
	FileName       string       `gorm:"size:255;not null;uniqueIndex:idx_upload_sessions_active_slot,where:status = 'active'"`
	FileKind       string       `gorm:"size:32;not null"`
	TotalSize      int64        `gorm:"not null"`
	ChunkSize      int64        `gorm:"not null"`
	TotalChunks    int          `gorm:"not null"`
	UploadedChunks ChunkSetJSON `gorm:"type:jsonb;not null;default:'[]'"`
	FinalPath      string       `gorm:"size:1024;not null"`
	Status         string       `gorm:"size:20;not null;index"`
	ExpiresAt      time.Time    `gorm:"not null;index"`
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (UploadSessionPO) TableName() string {
	return "upload_sessions"
}

// SessionRepo implements biz.SessionRepo
type SessionRepo struct {
	db *database.DB
}

// NewSessionRepo creates the gorm-backed session repository
func NewSessionRepo(db *database.DB) biz.SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, s *biz.UploadSession) error {
	db := r.db.GetDBFromContext(ctx)

	if err := db.Create(sessionToPO(s)).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			// The partial unique index caught a racing create for the slot.
			return apperrors.Newf(apperrors.ErrUploadDuplicateSession,
				"active session exists for %s", s.FileName)
		}
		return apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*biz.UploadSession, error) {
	db := r.db.GetDBFromContext(ctx)

	var po UploadSessionPO
	if err := db.First(&po, "id = ?", id).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, apperrors.NewNotFoundError("upload session " + id)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return sessionToDomain(&po), nil
}

func (r *SessionRepo) GetActive(ctx context.Context, kind types.EntityKind, entityID, fileName string) (*biz.UploadSession, error) {
	db := r.db.GetDBFromContext(ctx)

	var po UploadSessionPO
	err := db.Where("entity_kind = ? AND entity_id = ? AND file_name = ? AND status = ?",
		kind.String(), entityID, fileName, types.SessionStatusActive.String()).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return sessionToDomain(&po), nil
}

// AcknowledgeChunk inserts the chunk index under a row lock. The insert is a
// set insert, so replayed acknowledgements converge on the same row, and the
// completion flip happens in the same transaction as the final insert.
func (r *SessionRepo) AcknowledgeChunk(ctx context.Context, id string, index int) (*biz.UploadSession, error) {
	var result *biz.UploadSession

	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var po UploadSessionPO
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&po, "id = ?", id).Error
		if err != nil {
			if database.IsRecordNotFoundError(err) {
				return apperrors.NewNotFoundError("upload session " + id)
			}
			return apperrors.Wrap(err, apperrors.ErrInternalServer)
		}

		present := false
		for _, i := range po.UploadedChunks {
			if i == index {
				present = true
				break
			}
		}

		now := time.Now().UTC()
		if !present {
			po.UploadedChunks = append(po.UploadedChunks, index)
			sort.Ints(po.UploadedChunks)
		}

		updates := map[string]interface{}{
			"uploaded_chunks": po.UploadedChunks,
			"updated_at":      now,
		}
		if len(po.UploadedChunks) == po.TotalChunks && po.Status == types.SessionStatusActive.String() {
			po.Status = types.SessionStatusCompleted.String()
			po.CompletedAt = &now
			updates["status"] = po.Status
			updates["completed_at"] = now
		}
		po.UpdatedAt = now

		if err := tx.Model(&UploadSessionPO{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrInternalServer)
		}

		result = sessionToDomain(&po)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SessionRepo) UpdateStatus(ctx context.Context, id string, status types.SessionStatus) error {
	db := r.db.GetDBFromContext(ctx)

	res := db.Model(&UploadSessionPO{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status.String(),
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return apperrors.Wrap(res.Error, apperrors.ErrInternalServer)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("upload session " + id)
	}
	return nil
}

func (r *SessionRepo) ExpireActiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db := r.db.GetDBFromContext(ctx)

	res := db.Model(&UploadSessionPO{}).
		Where("status = ? AND expires_at < ?", types.SessionStatusActive.String(), cutoff).
		Updates(map[string]interface{}{
			"status":     types.SessionStatusExpired.String(),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, apperrors.Wrap(res.Error, apperrors.ErrInternalServer)
	}
	return res.RowsAffected, nil
}

func (r *SessionRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db := r.db.GetDBFromContext(ctx)

	res := db.Where("status = ? AND expires_at < ?", types.SessionStatusExpired.String(), cutoff).
		Delete(&UploadSessionPO{})
	if res.Error != nil {
		return 0, apperrors.Wrap(res.Error, apperrors.ErrInternalServer)
	}
	return res.RowsAffected, nil
}

func (r *SessionRepo) ListOrphaned(ctx context.Context, kind types.EntityKind) ([]*biz.UploadSession, error) {
	db := r.db.GetDBFromContext(ctx)

	table, err := entityTable(kind)
	if err != nil {
		return nil, err
	}

	var pos []UploadSessionPO
	err = db.Where("entity_kind = ?", kind.String()).
		Where(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s e WHERE e.id = upload_sessions.entity_id)", table)).
		Find(&pos).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	sessions := make([]*biz.UploadSession, 0, len(pos))
	for i := range pos {
		sessions = append(sessions, sessionToDomain(&pos[i]))
	}
	return sessions, nil
}

func (r *SessionRepo) ListActiveFinalPaths(ctx context.Context, pathPrefix string) ([]string, error) {
	db := r.db.GetDBFromContext(ctx)

	var paths []string
	err := db.Model(&UploadSessionPO{}).
		Where("status = ?", types.SessionStatusActive.String()).
		Where("final_path LIKE ?", pathPrefix+"%").
		Pluck("final_path", &paths).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return paths, nil
}

func (r *SessionRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db := r.db.GetDBFromContext(ctx)

	res := db.Where("id IN ?", ids).Delete(&UploadSessionPO{})
	if res.Error != nil {
		return 0, apperrors.Wrap(res.Error, apperrors.ErrInternalServer)
	}
	return res.RowsAffected, nil
}

func sessionToPO(s *biz.UploadSession) *UploadSessionPO {
	return &UploadSessionPO{
		ID:             s.ID,
		EntityKind:     s.EntityKind.String(),
		EntityID:       s.EntityID,
		FileName:       s.FileName,
		FileKind:       s.FileKind.String(),
		TotalSize:      s.TotalSize,
		ChunkSize:      s.ChunkSize,
		TotalChunks:    s.TotalChunks,
		UploadedChunks: ChunkSetJSON(s.UploadedChunks),
		FinalPath:      s.FinalPath,
		Status:         s.Status.String(),
		ExpiresAt:      s.ExpiresAt,
		CompletedAt:    s.CompletedAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func sessionToDomain(po *UploadSessionPO) *biz.UploadSession {
	return &biz.UploadSession{
		ID:             po.ID,
		EntityKind:     types.EntityKind(po.EntityKind),
		EntityID:       po.EntityID,
		FileName:       po.FileName,
		FileKind:       types.FileKind(po.FileKind),
		TotalSize:      po.TotalSize,
		ChunkSize:      po.ChunkSize,
		TotalChunks:    po.TotalChunks,
		UploadedChunks: []int(po.UploadedChunks),
		FinalPath:      po.FinalPath,
		Status:         types.SessionStatus(po.Status),
		ExpiresAt:      po.ExpiresAt,
		CompletedAt:    po.CompletedAt,
		CreatedAt:      po.CreatedAt,
		UpdatedAt:      po.UpdatedAt,
	}
}
