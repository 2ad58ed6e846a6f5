package service

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/pkg/response"
	"github.com/scenehub/scenehub-backend/internal/upload/biz"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
)

// SessionService exposes the chunked upload session API.
type SessionService struct {
	sessions *biz.SessionUseCase
	logger   *logger.Logger
}

// NewSessionService creates the session HTTP service
func NewSessionService(sessions *biz.SessionUseCase, log *logger.Logger) *SessionService {
	return &SessionService{sessions: sessions, logger: log}
}

type CreateSessionRequest struct {
	EntityKind string `json:"entity_kind" binding:"required"`
	EntityID   string `json:"entity_id" binding:"required"`
	FileName   string `json:"file_name" binding:"required"`
	FileKind   string `json:"file_kind" binding:"required"`
	TotalSize  int64  `json:"total_size" binding:"required,gt=0"`
	ChunkSize  int64  `json:"chunk_size" binding:"required,gt=0"`
}

type SessionResponse struct {
	SessionID   string  `json:"session_id"`
	EntityKind  string  `json:"entity_kind"`
	EntityID    string  `json:"entity_id"`
	FileName    string  `json:"file_name"`
	FileKind    string  `json:"file_kind"`
	TotalChunks int     `json:"total_chunks"`
	ChunkSize   int64   `json:"chunk_size"`
	FinalPath   string  `json:"final_path"`
	Status      string  `json:"status"`
	ExpiresAt   string  `json:"expires_at"`
	ProgressPct float64 `json:"progress_pct"`
}

// CreateSession handles POST /api/v1/uploads/sessions
func (s *SessionService) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	kind, err := types.ParseEntityKind(req.EntityKind)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	fileKind, err := types.ParseFileKind(req.FileKind)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	session, err := s.sessions.CreateSession(c.Request.Context(), biz.CreateSessionInput{
		EntityKind: kind,
		EntityID:   req.EntityID,
		FileName:   req.FileName,
		FileKind:   fileKind,
		TotalSize:  req.TotalSize,
		ChunkSize:  req.ChunkSize,
	})
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Created(c, toSessionResponse(session))
}

// MarkChunk handles POST /api/v1/uploads/sessions/:id/chunks/:index
func (s *SessionService) MarkChunk(c *gin.Context) {
	sessionID := c.Param("id")

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.BadRequest(c, "chunk index must be an integer")
		return
	}

	ack, err := s.sessions.MarkChunkCompleted(c.Request.Context(), sessionID, index)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, ack)
}

// GetStatus handles GET /api/v1/uploads/sessions/:id
func (s *SessionService) GetStatus(c *gin.Context) {
	info, err := s.sessions.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, info)
}

// GetProgress handles GET /api/v1/uploads/sessions/:id/progress, a cheap
// cache-backed read for polling clients.
func (s *SessionService) GetProgress(c *gin.Context) {
	sessionID := c.Param("id")

	pct, err := s.sessions.GetProgress(c.Request.Context(), sessionID)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"session_id":   sessionID,
		"progress_pct": pct,
	})
}

func toSessionResponse(session *biz.UploadSession) *SessionResponse {
	return &SessionResponse{
		SessionID:   session.ID,
		EntityKind:  session.EntityKind.String(),
		EntityID:    session.EntityID,
		FileName:    session.FileName,
		FileKind:    session.FileKind.String(),
		TotalChunks: session.TotalChunks,
		ChunkSize:   session.ChunkSize,
		FinalPath:   session.FinalPath,
		Status:      session.Status.String(),
		ExpiresAt:   session.ExpiresAt.Format(time.RFC3339),
		ProgressPct: session.ProgressPct(),
	}
}
