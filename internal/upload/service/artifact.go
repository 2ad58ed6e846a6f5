package service

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/pkg/response"
	"github.com/scenehub/scenehub-backend/internal/upload/biz"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
)

// ArtifactService exposes the file artifact registry API.
type ArtifactService struct {
	artifacts *biz.ArtifactUseCase
	entities  *biz.EntityUseCase
	logger    *logger.Logger
}

// NewArtifactService creates the artifact HTTP service
func NewArtifactService(artifacts *biz.ArtifactUseCase, entities *biz.EntityUseCase, log *logger.Logger) *ArtifactService {
	return &ArtifactService{artifacts: artifacts, entities: entities, logger: log}
}

type RegisterArtifactRequest struct {
	EntityKind  string `json:"entity_kind" binding:"required"`
	EntityID    string `json:"entity_id" binding:"required"`
	FileKind    string `json:"file_kind" binding:"required"`
	StoragePath string `json:"storage_path" binding:"required"`
}

type CompleteArtifactRequest struct {
	Size     int64  `json:"size" binding:"required,gt=0"`
	MimeType string `json:"mime_type"`
}

type FailArtifactRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ArtifactResponse struct {
	ID            string `json:"id"`
	EntityKind    string `json:"entity_kind"`
	EntityID      string `json:"entity_id"`
	FileKind      string `json:"file_kind"`
	StoragePath   string `json:"storage_path"`
	Size          int64  `json:"size"`
	MimeType      string `json:"mime_type,omitempty"`
	IsRequired    bool   `json:"is_required"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	UploadedAt    string `json:"uploaded_at"`
	VerifiedAt    string `json:"verified_at,omitempty"`
}

// Register handles POST /api/v1/artifacts. Registering a file also moves a
// draft or failed entity into uploading.
func (s *ArtifactService) Register(c *gin.Context) {
	var req RegisterArtifactRequest
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

	ctx := c.Request.Context()

	if err := s.entities.EnsureUploading(ctx, kind, req.EntityID); err != nil {
		response.HandleError(c, err)
		return
	}

	artifact, err := s.artifacts.Register(ctx, kind, req.EntityID, fileKind,
		req.StoragePath, types.IsRequiredFileKind(kind, fileKind))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Created(c, toArtifactResponse(artifact))
}

// Complete handles POST /api/v1/artifacts/:id/complete
func (s *ArtifactService) Complete(c *gin.Context) {
	var req CompleteArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	artifact, err := s.artifacts.MarkCompleted(c.Request.Context(), c.Param("id"), req.Size, req.MimeType)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, toArtifactResponse(artifact))
}

// Fail handles POST /api/v1/artifacts/:id/fail
func (s *ArtifactService) Fail(c *gin.Context) {
	var req FailArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	artifact, err := s.artifacts.MarkFailed(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, toArtifactResponse(artifact))
}

// ListByEntity handles GET /api/v1/entities/:kind/:id/artifacts
func (s *ArtifactService) ListByEntity(c *gin.Context) {
	kind, err := types.ParseEntityKind(c.Param("kind"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	artifacts, err := s.artifacts.ListByEntity(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	out := make([]*ArtifactResponse, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, toArtifactResponse(a))
	}
	response.Success(c, out)
}

func toArtifactResponse(a *biz.FileArtifact) *ArtifactResponse {
	resp := &ArtifactResponse{
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
		UploadedAt:    a.UploadedAt.Format(time.RFC3339),
	}
	if a.VerifiedAt != nil {
		resp.VerifiedAt = a.VerifiedAt.Format(time.RFC3339)
	}
	return resp
}
