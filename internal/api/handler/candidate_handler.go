package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/recruitq/internal/api/dto"
	"github.com/cuongbtq/recruitq/internal/candidates"
)

// CandidateHandler serves the candidates written by imports
type CandidateHandler struct {
	logger     *slog.Logger
	candidates CandidateReader
}

func NewCandidateHandler(deps *Dependencies) *CandidateHandler {
	return &CandidateHandler{
		logger:     deps.Logger,
		candidates: deps.Candidates,
	}
}

// ListCandidates handles GET /api/v1/projects/:project_id/candidates
func (h *CandidateHandler) ListCandidates(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := c.Param("project_id")

	project, err := h.candidates.GetProject(ctx, projectID)
	switch {
	case errors.Is(err, candidates.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Project not found"})
		return
	case err != nil:
		h.logger.Error("Failed to get project", slog.String("project_id", projectID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list candidates"})
		return
	}

	list, err := h.candidates.ListByProject(ctx, projectID)
	if err != nil {
		h.logger.Error("Failed to list candidates", slog.String("project_id", projectID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list candidates"})
		return
	}

	c.JSON(http.StatusOK, dto.ListCandidatesResponse{
		ProjectID:  project.ID,
		HiresCount: project.HiresCount,
		Candidates: list,
	})
}
