package data

import (
	"context"
	"time"

	"github.com/scenehub/scenehub-backend/internal/pkg/database"
	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/upload/biz"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
)

// ProjectPO represents the projects table
type ProjectPO struct {
	ID         string `gorm:"type:uuid;primarykey"`
	Name       string `gorm:"size:255;not null"`
	Status     string `gorm:"size:20;not null;default:'draft';index"`
	ContextURL string `gorm:"size:1024;not null;default:''"`
	HeatmapURL string `gorm:"size:1024;not null;default:''"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ProjectPO) TableName() string {
	return "projects"
}

// DesignOptionPO represents the design_options table
type DesignOptionPO struct {
	ID        string `gorm:"type:uuid;primarykey"`
	ProjectID string `gorm:"type:uuid;not null;index"`
	Name      string `gorm:"size:255;not null"`
	Status    string `gorm:"size:20;not null;default:'draft';index"`
	ModelURL  string `gorm:"size:1024;not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DesignOptionPO) TableName() string {
	return "design_options"
}

// RecordPO represents the records table
type RecordPO struct {
	ID                    string `gorm:"type:uuid;primarykey"`
	OptionID              string `gorm:"type:uuid;not null;index"`
	ScenarioID            string `gorm:"size:64;not null"`
	Name                  string `gorm:"size:255;not null"`
	Status                string `gorm:"size:20;not null;default:'draft';index"`
	ProcessedRecordingURL string `gorm:"size:1024;not null;default:''"`
	RawRecordingURL       string `gorm:"size:1024;not null;default:''"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (RecordPO) TableName() string {
	return "records"
}

// urlColumns maps each entity kind's file slots to their denormalized URL
// columns on the entity table.
var urlColumns = map[types.EntityKind]map[types.FileKind]string{
	types.EntityKindProject: {
		types.FileKindContext: "context_url",
		types.FileKindHeatmap: "heatmap_url",
	},
	types.EntityKindOption: {
		types.FileKindModel: "model_url",
	},
	types.EntityKindRecord: {
		types.FileKindProcessedRecording: "processed_recording_url",
		types.FileKindRawRecording:       "raw_recording_url",
	},
}

// EntityRepo implements biz.EntityRepo over the three entity tables,
// dispatching on the entity kind.
type EntityRepo struct {
	db *database.DB
}

// NewEntityRepo creates the gorm-backed entity repository
func NewEntityRepo(db *database.DB) biz.EntityRepo {
	return &EntityRepo{db: db}
}

func (r *EntityRepo) Get(ctx context.Context, kind types.EntityKind, id string) (*biz.Entity, error) {
	db := r.db.GetDBFromContext(ctx)

	switch kind {
	case types.EntityKindProject:
		var po ProjectPO
		if err := db.First(&po, "id = ?", id).Error; err != nil {
			return nil, notFoundOr(err, kind, id)
		}
		return projectToDomain(&po), nil

	case types.EntityKindOption:
		var po DesignOptionPO
		if err := db.First(&po, "id = ?", id).Error; err != nil {
			return nil, notFoundOr(err, kind, id)
		}
		return optionToDomain(&po), nil

	case types.EntityKindRecord:
		var po RecordPO
		if err := db.First(&po, "id = ?", id).Error; err != nil {
			return nil, notFoundOr(err, kind, id)
		}
		return recordToDomain(&po), nil

	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParams, "unknown entity kind %q", kind)
	}
}

func (r *EntityRepo) Create(ctx context.Context, e *biz.Entity) error {
	db := r.db.GetDBFromContext(ctx)

	switch e.Kind {
	case types.EntityKindProject:
		return db.Create(&ProjectPO{
			ID:     e.ID,
			Name:   e.Name,
			Status: e.Status.String(),
		}).Error

	case types.EntityKindOption:
		return db.Create(&DesignOptionPO{
			ID:        e.ID,
			ProjectID: e.ProjectID,
			Name:      e.Name,
			Status:    e.Status.String(),
		}).Error

	case types.EntityKindRecord:
		return db.Create(&RecordPO{
			ID:         e.ID,
			OptionID:   e.OptionID,
			ScenarioID: e.ScenarioID,
			Name:       e.Name,
			Status:     e.Status.String(),
		}).Error

	default:
		return apperrors.Newf(apperrors.ErrInvalidParams, "unknown entity kind %q", e.Kind)
	}
}

func (r *EntityRepo) Delete(ctx context.Context, kind types.EntityKind, id string) error {
	db := r.db.GetDBFromContext(ctx)

	model, err := modelFor(kind)
	if err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(model).Error
}

// UpdateStatusCAS writes the status guarded by the expected current status.
// When urls is non-nil every URL column of the kind is written in the same
// statement, so completion and reset stay atomic with the status flip.
func (r *EntityRepo) UpdateStatusCAS(ctx context.Context, kind types.EntityKind, id string, from, to types.EntityStatus, urls map[types.FileKind]string) (bool, error) {
	db := r.db.GetDBFromContext(ctx)

	model, err := modelFor(kind)
	if err != nil {
		return false, err
	}

	updates := map[string]interface{}{
		"status":     to.String(),
		"updated_at": time.Now().UTC(),
	}
	if urls != nil {
		for fk, col := range urlColumns[kind] {
			updates[col] = urls[fk]
		}
	}

	res := db.Model(model).
		Where("id = ? AND status = ?", id, from.String()).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func modelFor(kind types.EntityKind) (interface{}, error) {
	switch kind {
	case types.EntityKindProject:
		return &ProjectPO{}, nil
	case types.EntityKindOption:
		return &DesignOptionPO{}, nil
	case types.EntityKindRecord:
		return &RecordPO{}, nil
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParams, "unknown entity kind %q", kind)
	}
}

func notFoundOr(err error, kind types.EntityKind, id string) error {
	if database.IsRecordNotFoundError(err) {
		return apperrors.NewNotFoundError(kind.String() + " " + id)
	}
	return apperrors.Wrap(err, apperrors.ErrInternalServer)
}

func projectToDomain(po *ProjectPO) *biz.Entity {
	return &biz.Entity{
		ID:     po.ID,
		Kind:   types.EntityKindProject,
		Name:   po.Name,
		Status: types.EntityStatus(po.Status),
		FinalURLs: map[types.FileKind]string{
			types.FileKindContext: po.ContextURL,
			types.FileKindHeatmap: po.HeatmapURL,
		},
		CreatedAt: po.CreatedAt,
		UpdatedAt: po.UpdatedAt,
	}
}

func optionToDomain(po *DesignOptionPO) *biz.Entity {
	return &biz.Entity{
		ID:        po.ID,
		Kind:      types.EntityKindOption,
		Name:      po.Name,
		ProjectID: po.ProjectID,
		Status:    types.EntityStatus(po.Status),
		FinalURLs: map[types.FileKind]string{
			types.FileKindModel: po.ModelURL,
		},
		CreatedAt: po.CreatedAt,
		UpdatedAt: po.UpdatedAt,
	}
}

func recordToDomain(po *RecordPO) *biz.Entity {
	return &biz.Entity{
		ID:         po.ID,
		Kind:       types.EntityKindRecord,
		Name:       po.Name,
		OptionID:   po.OptionID,
		ScenarioID: po.ScenarioID,
		Status:     types.EntityStatus(po.Status),
		FinalURLs: map[types.FileKind]string{
			types.FileKindProcessedRecording: po.ProcessedRecordingURL,
			types.FileKindRawRecording:       po.RawRecordingURL,
		},
		CreatedAt: po.CreatedAt,
		UpdatedAt: po.UpdatedAt,
	}
}
