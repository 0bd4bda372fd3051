package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/recruitq/internal/api/dto"
	"github.com/cuongbtq/recruitq/internal/importer"
	"github.com/cuongbtq/recruitq/internal/jobs"
	"github.com/cuongbtq/recruitq/internal/research"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateImport handles POST /api/v1/imports
// Records an import job and queues it without waiting for execution
func (h *JobHandler) CreateImport(c *gin.Context) {
	var req dto.CreateImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body", Details: err.Error()})
		return
	}
	if err := req.Request.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid import request", Details: err.Error()})
		return
	}

	job, err := h.jobs.Submit(c.Request.Context(), importer.JobType, req.Request, jobs.Refs{
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		h.logger.Error("Failed to submit import", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to submit import"})
		return
	}

	c.JSON(http.StatusAccepted, dto.FromJob(job))
}

// RefreshResearch handles POST /api/v1/positions/:position_id/market-research
// Returns the in-flight refresh for the position or queues a new one
func (h *JobHandler) RefreshResearch(c *gin.Context) {
	var req dto.MarketResearchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body", Details: err.Error()})
			return
		}
	}
	if req.UserID == "" {
		req.UserID = c.Query("user_id")
	}

	positionID := c.Param("position_id")
	job, created, err := h.research.Refresh(c.Request.Context(), positionID, req.UserID)
	switch {
	case errors.Is(err, research.ErrPositionNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Position not found"})
		return
	case err != nil:
		h.logger.Error("Failed to submit market research",
			slog.String("position_id", positionID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to submit market research"})
		return
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, dto.FromJob(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_id must be a valid UUID"})
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Job not found"})
		return
	case err != nil:
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters", Details: err.Error()})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	status := jobs.Status(req.Status)
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid status", Details: req.Status})
		return
	}

	cursor, err := jobs.DecodeCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	list, next, err := h.jobs.List(c.Request.Context(), jobs.ListFilter{
		UserID:     req.UserID,
		JobType:    req.JobType,
		Status:     status,
		ProjectID:  req.ProjectID,
		PositionID: req.PositionID,
		PageSize:   req.PageSize,
		Cursor:     cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list jobs"})
		return
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(list))}
	for i := range list {
		resp.Jobs[i] = dto.FromJob(&list[i])
	}
	if next != nil {
		resp.NextCursor = next.Encode()
	}
	c.JSON(http.StatusOK, resp)
}

// QueueStats handles GET /api/v1/queue/stats
func (h *JobHandler) QueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.Stats(c.Request.Context()))
}
