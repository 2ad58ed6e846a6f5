package biz

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/upload/storagepath"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"go.uber.org/zap"
)

// UploadSession tracks one chunked, resumable upload.
type UploadSession struct {
	ID             string
	EntityKind     types.EntityKind
	EntityID       string
	FileName       string
	FileKind       types.FileKind
	TotalSize      int64
	ChunkSize      int64
	TotalChunks    int
	UploadedChunks []int // sorted, distinct indices in [0, TotalChunks)
	FinalPath      string
	Status         types.SessionStatus
	ExpiresAt      time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExpiredAt reports whether the session's TTL has passed at the given instant
func (s *UploadSession) ExpiredAt(now time.Time) bool {
	return s.Status == types.SessionStatusActive && now.After(s.ExpiresAt)
}

// ProgressPct returns upload progress in percent
func (s *UploadSession) ProgressPct() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(len(s.UploadedChunks)) / float64(s.TotalChunks) * 100
}

// MissingChunks returns the integer complement of the uploaded set against
// [0, TotalChunks), for resuming after a client crash.
func (s *UploadSession) MissingChunks() []int {
	uploaded := make(map[int]struct{}, len(s.UploadedChunks))
	for _, i := range s.UploadedChunks {
		uploaded[i] = struct{}{}
	}

	missing := make([]int, 0, s.TotalChunks-len(uploaded))
	for i := 0; i < s.TotalChunks; i++ {
		if _, ok := uploaded[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// SessionRepo is the upload session persistence surface.
type SessionRepo interface {
	Create(ctx context.Context, s *UploadSession) error
	GetByID(ctx context.Context, id string) (*UploadSession, error)
	// GetActive returns nil, nil when no active session exists for the slot.
	GetActive(ctx context.Context, kind types.EntityKind, entityID, fileName string) (*UploadSession, error)
	// AcknowledgeChunk inserts a chunk index into the session's uploaded set
	// under a row lock. The insert is idempotent; when the set reaches
	// TotalChunks the status flips to completed and CompletedAt is stamped,
	// all in the same transaction.
	AcknowledgeChunk(ctx context.Context, id string, index int) (*UploadSession, error)
	UpdateStatus(ctx context.Context, id string, status types.SessionStatus) error
	// ExpireActiveBefore marks active sessions whose TTL passed before cutoff
	// as expired.
	ExpireActiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteExpiredBefore hard-deletes expired sessions whose TTL passed
	// before cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListOrphaned(ctx context.Context, kind types.EntityKind) ([]*UploadSession, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	// ListActiveFinalPaths returns the final paths of active sessions whose
	// path starts with the given prefix.
	ListActiveFinalPaths(ctx context.Context, pathPrefix string) ([]string, error)
}

// ProgressCache is an optional cache for chunk progress, read by polling
// clients without hitting the database. Best effort only.
type ProgressCache interface {
	SetProgress(ctx context.Context, sessionID string, pct float64, ttl time.Duration) error
	// GetProgress returns the cached progress and whether it was present.
	GetProgress(ctx context.Context, sessionID string) (float64, bool, error)
}

// SessionConfig carries the session TTL and post-expiry retention window.
type SessionConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	Retention time.Duration `mapstructure:"retention"`
}

// DefaultSessionConfig returns the default session timing configuration
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:       24 * time.Hour,
		Retention: 48 * time.Hour,
	}
}

// ChunkAck is the result of acknowledging one chunk.
type ChunkAck struct {
	UploadedCount int     `json:"uploaded_count"`
	TotalChunks   int     `json:"total_chunks"`
	IsComplete    bool    `json:"is_complete"`
	ProgressPct   float64 `json:"progress_pct"`
}

// SessionStatusInfo is the resumption view of a session.
type SessionStatusInfo struct {
	SessionID      string              `json:"session_id"`
	UploadedChunks []int               `json:"uploaded_chunks"`
	MissingChunks  []int               `json:"missing_chunks"`
	ProgressPct    float64             `json:"progress_pct"`
	Status         types.SessionStatus `json:"status"`
	FinalPath      string              `json:"final_path"`
	ExpiresAt      time.Time           `json:"expires_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// CreateSessionInput are the parameters for starting a chunked upload.
type CreateSessionInput struct {
	EntityKind types.EntityKind
	EntityID   string
	FileName   string
	FileKind   types.FileKind
	TotalSize  int64
	ChunkSize  int64
}

// SessionUseCase implements the chunked upload session manager.
type SessionUseCase struct {
	repo     SessionRepo
	entities *EntityUseCase
	cache    ProgressCache // may be nil
	cfg      SessionConfig
	logger   *logger.Logger
	now      func() time.Time
}

// NewSessionUseCase creates the session manager
func NewSessionUseCase(repo SessionRepo, entities *EntityUseCase, cache ProgressCache, cfg SessionConfig, log *logger.Logger) *SessionUseCase {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionConfig().TTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultSessionConfig().Retention
	}
	return &SessionUseCase{
		repo:     repo,
		entities: entities,
		cache:    cache,
		cfg:      cfg,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession starts a chunked upload for one file slot. Starting an upload
// also moves a draft or failed entity into uploading.
func (uc *SessionUseCase) CreateSession(ctx context.Context, in CreateSessionInput) (*UploadSession, error) {
	if in.FileName == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParams, "file name is required")
	}
	if in.TotalSize <= 0 || in.ChunkSize <= 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParams, "total size and chunk size must be positive")
	}
	if !types.AllowsFileKind(in.EntityKind, in.FileKind) {
		return nil, apperrors.Newf(apperrors.ErrInvalidParams, "%s entities do not carry %s files", in.EntityKind, in.FileKind)
	}

	entity, err := uc.entities.Get(ctx, in.EntityKind, in.EntityID)
	if err != nil {
		return nil, err
	}
	if entity.Status == types.EntityStatusCompleted {
		return nil, apperrors.Newf(apperrors.ErrUploadInvalidTransition,
			"entity %s/%s is completed; reset it before re-uploading", in.EntityKind, in.EntityID)
	}

	now := uc.now()

	existing, err := uc.repo.GetActive(ctx, in.EntityKind, in.EntityID, in.FileName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.ExpiredAt(now) {
			return nil, apperrors.Newf(apperrors.ErrUploadDuplicateSession,
				"session %s is active for %s", existing.ID, in.FileName)
		}
		// The previous session aged out; expire it lazily and start fresh.
		if err := uc.repo.UpdateStatus(ctx, existing.ID, types.SessionStatusExpired); err != nil {
			return nil, err
		}
	}

	chain, err := uc.entities.ResolveChain(ctx, entity)
	if err != nil {
		return nil, err
	}

	finalPath, err := storagepath.Resolve(chain, in.FileKind, now.UnixMilli())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParams)
	}

	totalChunks := int((in.TotalSize + in.ChunkSize - 1) / in.ChunkSize)

	session := &UploadSession{
		ID:             uuid.NewString(),
		EntityKind:     in.EntityKind,
		EntityID:       in.EntityID,
		FileName:       in.FileName,
		FileKind:       in.FileKind,
		TotalSize:      in.TotalSize,
		ChunkSize:      in.ChunkSize,
		TotalChunks:    totalChunks,
		UploadedChunks: []int{},
		FinalPath:      finalPath,
		Status:         types.SessionStatusActive,
		ExpiresAt:      now.Add(uc.cfg.TTL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Flip the entity before the row exists. If a concurrent finalize won the
	// race the flip fails here, and no active session is left holding the
	// slot until its TTL.
	if err := uc.entities.EnsureUploading(ctx, in.EntityKind, in.EntityID); err != nil {
		return nil, err
	}

	if err := uc.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	uc.logger.WithContext(ctx).Info("upload session created",
		zap.String("session_id", session.ID),
		zap.String("entity_kind", in.EntityKind.String()),
		zap.String("entity_id", in.EntityID),
		zap.String("file_name", in.FileName),
		zap.Int("total_chunks", totalChunks),
		zap.String("final_path", finalPath),
	)

	return session, nil
}

// MarkChunkCompleted acknowledges one chunk. Re-acknowledging an index that
// is already present is absorbed silently.
func (uc *SessionUseCase) MarkChunkCompleted(ctx context.Context, sessionID string, index int) (*ChunkAck, error) {
	session, err := uc.loadLive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= session.TotalChunks {
		return nil, apperrors.Newf(apperrors.ErrUploadChunkOutOfRange,
			"index %d outside [0, %d)", index, session.TotalChunks)
	}

	if session.Status == types.SessionStatusCompleted {
		// Every index is present on a completed session, so any re-ack is a
		// duplicate and a no-op.
		return uc.ackOf(session), nil
	}
	if session.Status == types.SessionStatusFailed {
		return nil, apperrors.Newf(apperrors.ErrUploadInvalidTransition,
			"session %s has failed", sessionID)
	}

	session, err = uc.repo.AcknowledgeChunk(ctx, sessionID, index)
	if err != nil {
		return nil, err
	}

	ack := uc.ackOf(session)

	if uc.cache != nil {
		ttl := time.Until(session.ExpiresAt)
		if ttl > 0 {
			if cerr := uc.cache.SetProgress(ctx, sessionID, ack.ProgressPct, ttl); cerr != nil {
				uc.logger.WithContext(ctx).Warn("progress cache write failed",
					zap.String("session_id", sessionID),
					zap.Error(cerr),
				)
			}
		}
	}

	if ack.IsComplete {
		uc.logger.WithContext(ctx).Info("upload session completed",
			zap.String("session_id", sessionID),
			zap.Int("total_chunks", session.TotalChunks),
		)
	}

	return ack, nil
}

// GetStatus returns the resumption view of a session
func (uc *SessionUseCase) GetStatus(ctx context.Context, sessionID string) (*SessionStatusInfo, error) {
	session, err := uc.loadLive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &SessionStatusInfo{
		SessionID:      session.ID,
		UploadedChunks: session.UploadedChunks,
		MissingChunks:  session.MissingChunks(),
		ProgressPct:    session.ProgressPct(),
		Status:         session.Status,
		FinalPath:      session.FinalPath,
		ExpiresAt:      session.ExpiresAt,
		CompletedAt:    session.CompletedAt,
	}, nil
}

// GetProgress returns the percent progress of a session, served from the
// cache when a fresh value is there so polling clients skip the database.
func (uc *SessionUseCase) GetProgress(ctx context.Context, sessionID string) (float64, error) {
	if uc.cache != nil {
		pct, ok, err := uc.cache.GetProgress(ctx, sessionID)
		if err != nil {
			uc.logger.WithContext(ctx).Warn("progress cache read failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		} else if ok {
			return pct, nil
		}
	}

	session, err := uc.loadLive(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	pct := session.ProgressPct()
	if uc.cache != nil {
		if ttl := session.ExpiresAt.Sub(uc.now()); ttl > 0 {
			if cerr := uc.cache.SetProgress(ctx, sessionID, pct, ttl); cerr != nil {
				uc.logger.WithContext(ctx).Warn("progress cache write failed",
					zap.String("session_id", sessionID),
					zap.Error(cerr),
				)
			}
		}
	}
	return pct, nil
}

// Sweep expires aged-out active sessions and hard-deletes expired ones past
// the retention window.
func (uc *SessionUseCase) Sweep(ctx context.Context) (expired, deleted int64, err error) {
	now := uc.now()

	expired, err = uc.repo.ExpireActiveBefore(ctx, now)
	if err != nil {
		return 0, 0, err
	}

	deleted, err = uc.repo.DeleteExpiredBefore(ctx, now.Add(-uc.cfg.Retention))
	if err != nil {
		return expired, 0, err
	}

	if expired > 0 || deleted > 0 {
		uc.logger.WithContext(ctx).Info("session sweep",
			zap.Int64("expired", expired),
			zap.Int64("deleted", deleted),
		)
	}

	return expired, deleted, nil
}

// loadLive loads a session, lazily expiring it when the TTL has passed.
func (uc *SessionUseCase) loadLive(ctx context.Context, sessionID string) (*UploadSession, error) {
	session, err := uc.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status == types.SessionStatusExpired {
		return nil, apperrors.New(apperrors.ErrUploadSessionExpired, sessionID)
	}

	if session.ExpiredAt(uc.now()) {
		if err := uc.repo.UpdateStatus(ctx, session.ID, types.SessionStatusExpired); err != nil {
			return nil, err
		}
		return nil, apperrors.New(apperrors.ErrUploadSessionExpired, sessionID)
	}

	return session, nil
}

func (uc *SessionUseCase) ackOf(s *UploadSession) *ChunkAck {
	return &ChunkAck{
		UploadedCount: len(s.UploadedChunks),
		TotalChunks:   s.TotalChunks,
		IsComplete:    s.Status == types.SessionStatusCompleted,
		ProgressPct:   s.ProgressPct(),
	}
}
