package service

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/pkg/response"
	"github.com/scenehub/scenehub-backend/internal/upload/biz"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
)

// LifecycleService exposes finalization and reset.
type LifecycleService struct {
	entities *biz.EntityUseCase
	finalize *biz.FinalizeUseCase
	reset    *biz.ResetUseCase
	logger   *logger.Logger
}

// NewLifecycleService creates the lifecycle HTTP service
func NewLifecycleService(entities *biz.EntityUseCase, finalize *biz.FinalizeUseCase, reset *biz.ResetUseCase, log *logger.Logger) *LifecycleService {
	return &LifecycleService{
		entities: entities,
		finalize: finalize,
		reset:    reset,
		logger:   log,
	}
}

type EntityResponse struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Name       string            `json:"name,omitempty"`
	ProjectID  string            `json:"project_id,omitempty"`
	OptionID   string            `json:"option_id,omitempty"`
	ScenarioID string            `json:"scenario_id,omitempty"`
	Status     string            `json:"status"`
	FinalURLs  map[string]string `json:"final_urls"`
	UpdatedAt  string            `json:"updated_at"`
}

// Get handles GET /api/v1/entities/:kind/:id
func (s *LifecycleService) Get(c *gin.Context) {
	kind, err := types.ParseEntityKind(c.Param("kind"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	entity, err := s.entities.Get(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, toEntityResponse(entity))
}

// Finalize handles POST /api/v1/entities/:kind/:id/finalize
func (s *LifecycleService) Finalize(c *gin.Context) {
	kind, err := types.ParseEntityKind(c.Param("kind"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	summary, err := s.finalize.Finalize(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, summary)
}

// Reset handles POST /api/v1/entities/:kind/:id/reset
func (s *LifecycleService) Reset(c *gin.Context) {
	kind, err := types.ParseEntityKind(c.Param("kind"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := s.reset.ResetEntity(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, result)
}

func toEntityResponse(e *biz.Entity) *EntityResponse {
	urls := make(map[string]string, len(e.FinalURLs))
	for fk, url := range e.FinalURLs {
		urls[fk.String()] = url
	}
	return &EntityResponse{
		ID:         e.ID,
		Kind:       e.Kind.String(),
		Name:       e.Name,
		ProjectID:  e.ProjectID,
		OptionID:   e.OptionID,
		ScenarioID: e.ScenarioID,
		Status:     e.Status.String(),
		FinalURLs:  urls,
		UpdatedAt:  e.UpdatedAt.Format(time.RFC3339),
	}
}
