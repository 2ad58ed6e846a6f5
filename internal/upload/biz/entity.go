package biz

import (
	"context"
	"time"

	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/upload/storagepath"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"go.uber.org/zap"
)

// Entity is an upload-bearing record: a project, a design option, or a
// recording. Only status and the final URL fields are owned by this module;
// descriptive fields are opaque.
type Entity struct {
	ID         string
	Kind       types.EntityKind
	Name       string
	ProjectID  string // parent project, set on options
	OptionID   string // parent option, set on records
	ScenarioID string // scenario the record belongs to
	Status     types.EntityStatus
	FinalURLs  map[types.FileKind]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EntityRepo is the entity store surface the lifecycle depends on.
type EntityRepo interface {
	Get(ctx context.Context, kind types.EntityKind, id string) (*Entity, error)
	Create(ctx context.Context, e *Entity) error
	Delete(ctx context.Context, kind types.EntityKind, id string) error

	// UpdateStatusCAS writes the status and, when urls is non-nil, every final
	// URL field of the entity in a single statement guarded by the expected
	// current status. Returns false when the guard did not match, meaning the
	// status changed underneath the caller.
	UpdateStatusCAS(ctx context.Context, kind types.EntityKind, id string, from, to types.EntityStatus, urls map[types.FileKind]string) (bool, error)
}

// allowedTransitions is the status graph. completed->draft additionally
// requires the URL-clearing guard checked in ValidateTransition.
var allowedTransitions = map[types.EntityStatus][]types.EntityStatus{
	types.EntityStatusDraft:     {types.EntityStatusUploading, types.EntityStatusFailed},
	types.EntityStatusUploading: {types.EntityStatusCompleted, types.EntityStatusFailed},
	types.EntityStatusFailed:    {types.EntityStatusUploading, types.EntityStatusDraft},
	types.EntityStatusCompleted: {types.EntityStatusDraft},
}

// ValidateTransition checks an edge of the status graph for an entity of the
// given kind. urls carries the final URL fields written together with the
// status: nil leaves them untouched, non-nil replaces all of them. URL writes
// are only legal on the two guarded edges (into completed, and the explicit
// completed->draft reset).
func ValidateTransition(kind types.EntityKind, from, to types.EntityStatus, urls map[types.FileKind]string) error {
	if !to.Valid() {
		return apperrors.Newf(apperrors.ErrUploadInvalidTransition, "unknown status %q", to)
	}

	edgeOK := false
	for _, next := range allowedTransitions[from] {
		if next == to {
			edgeOK = true
			break
		}
	}
	if !edgeOK {
		return apperrors.Newf(apperrors.ErrUploadInvalidTransition, "%s -> %s", from, to)
	}

	switch {
	case to == types.EntityStatusCompleted:
		// Completion must set every required URL in the same mutation.
		if urls == nil {
			return apperrors.New(apperrors.ErrUploadInvalidTransition, "completing requires the final file URLs")
		}
		for _, fk := range types.RequiredFileKinds(kind) {
			if urls[fk] == "" {
				return apperrors.Newf(apperrors.ErrUploadInvalidTransition, "required %s URL missing for %s", fk, kind)
			}
		}

	case from == types.EntityStatusCompleted && to == types.EntityStatusDraft:
		// Leaving completed is only legal as an explicit reset that clears
		// every final URL in the same mutation, never as a plain status write.
		if urls == nil {
			return apperrors.New(apperrors.ErrUploadInvalidTransition, "leaving completed requires clearing the final file URLs")
		}
		for _, fk := range types.FinalURLKinds(kind) {
			if urls[fk] != "" {
				return apperrors.Newf(apperrors.ErrUploadInvalidTransition, "%s URL must be cleared when leaving completed", fk)
			}
		}

	default:
		if urls != nil {
			return apperrors.Newf(apperrors.ErrUploadInvalidTransition, "final URLs cannot change on %s -> %s", from, to)
		}
	}

	return nil
}

// EntityUseCase applies lifecycle transitions to entities.
type EntityUseCase struct {
	repo   EntityRepo
	logger *logger.Logger
}

// NewEntityUseCase creates an entity lifecycle use case
func NewEntityUseCase(repo EntityRepo, log *logger.Logger) *EntityUseCase {
	return &EntityUseCase{repo: repo, logger: log}
}

// Get loads an entity
func (uc *EntityUseCase) Get(ctx context.Context, kind types.EntityKind, id string) (*Entity, error) {
	return uc.repo.Get(ctx, kind, id)
}

// CreateDraft creates a new entity in draft status
func (uc *EntityUseCase) CreateDraft(ctx context.Context, e *Entity) error {
	e.Status = types.EntityStatusDraft
	e.FinalURLs = nil
	return uc.repo.Create(ctx, e)
}

// Transition validates and persists a status change. The write is a
// compare-and-swap on the entity's current status, so two racing callers
// cannot both succeed.
func (uc *EntityUseCase) Transition(ctx context.Context, e *Entity, to types.EntityStatus, urls map[types.FileKind]string) (*Entity, error) {
	if err := ValidateTransition(e.Kind, e.Status, to, urls); err != nil {
		return nil, err
	}

	swapped, err := uc.repo.UpdateStatusCAS(ctx, e.Kind, e.ID, e.Status, to, urls)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, apperrors.Newf(apperrors.ErrUploadInvalidTransition,
			"entity %s/%s status changed concurrently", e.Kind, e.ID)
	}

	updated := *e
	updated.Status = to
	if urls != nil {
		updated.FinalURLs = urls
	}

	uc.logger.WithContext(ctx).Info("entity status transition",
		zap.String("entity_kind", e.Kind.String()),
		zap.String("entity_id", e.ID),
		zap.String("from", e.Status.String()),
		zap.String("to", to.String()),
	)

	return &updated, nil
}

// EnsureUploading moves a draft or failed entity into uploading at the start
// of an upload. Already-uploading entities are left alone; completed entities
// must be reset first.
func (uc *EntityUseCase) EnsureUploading(ctx context.Context, kind types.EntityKind, id string) error {
	e, err := uc.repo.Get(ctx, kind, id)
	if err != nil {
		return err
	}

	switch e.Status {
	case types.EntityStatusUploading:
		return nil
	case types.EntityStatusDraft, types.EntityStatusFailed:
		_, err = uc.Transition(ctx, e, types.EntityStatusUploading, nil)
		if err != nil && apperrors.Is(err, apperrors.ErrUploadInvalidTransition) {
			// A concurrent upload may have flipped it first; accept that.
			if cur, gerr := uc.repo.Get(ctx, kind, id); gerr == nil && cur.Status == types.EntityStatusUploading {
				return nil
			}
		}
		return err
	default:
		return apperrors.Newf(apperrors.ErrUploadInvalidTransition,
			"cannot start upload while entity is %s", e.Status)
	}
}

// ResolveChain walks the hierarchy from the entity up to its project so a
// storage path can be derived for it.
func (uc *EntityUseCase) ResolveChain(ctx context.Context, e *Entity) (storagepath.Chain, error) {
	switch e.Kind {
	case types.EntityKindProject:
		return storagepath.Chain{ProjectName: e.Name, ProjectID: e.ID}, nil

	case types.EntityKindOption:
		project, err := uc.repo.Get(ctx, types.EntityKindProject, e.ProjectID)
		if err != nil {
			return storagepath.Chain{}, err
		}
		return storagepath.Chain{
			ProjectName: project.Name,
			ProjectID:   project.ID,
			OptionID:    e.ID,
		}, nil

	case types.EntityKindRecord:
		option, err := uc.repo.Get(ctx, types.EntityKindOption, e.OptionID)
		if err != nil {
			return storagepath.Chain{}, err
		}
		project, err := uc.repo.Get(ctx, types.EntityKindProject, option.ProjectID)
		if err != nil {
			return storagepath.Chain{}, err
		}
		return storagepath.Chain{
			ProjectName: project.Name,
			ProjectID:   project.ID,
			OptionID:    option.ID,
			ScenarioID:  e.ScenarioID,
		}, nil

	default:
		return storagepath.Chain{}, apperrors.Newf(apperrors.ErrInvalidParams, "unknown entity kind %q", e.Kind)
	}
}
