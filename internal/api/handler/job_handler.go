package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/resumatch/resumatch/internal/api/dto"
	"github.com/resumatch/resumatch/internal/api/storage"
	"github.com/resumatch/resumatch/internal/domain"
)

// CreateJob handles POST /api/v1/jobs
// Accepts a multipart resume upload plus a job description, persists
// both, and queues the match pipeline.
func (h *JobHandler) CreateJob(c *gin.Context) {
	h.logger.Info("CreateJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.logger.Error("Missing resume file", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file is required",
		})
		return
	}

	if fileHeader.Size > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds the %d byte upload limit", h.maxUploadSize),
		})
		return
	}

	jobDescription := strings.TrimSpace(c.PostForm("job_description"))
	if jobDescription == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_description is required",
		})
		return
	}

	job := &domain.Job{
		ID:             uuid.New().String(),
		Name:           filepath.Base(fileHeader.Filename),
		JobDescription: jobDescription,
		Status:         domain.StatusSaving,
	}

	ctx := c.Request.Context()
	if err := h.storage.CreateJob(ctx, job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		h.failIntake(ctx, job.ID, domain.FailureStoreUnavailable, "failed to read uploaded resume")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store resume file",
		})
		return
	}
	defer file.Close()

	if _, err := h.documents.Save(job.ID, fileHeader.Filename, file); err != nil {
		h.logger.Error("Failed to store resume file",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		h.failIntake(ctx, job.ID, domain.FailureStoreUnavailable, "failed to store resume file")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store resume file",
		})
		return
	}

	if err := h.enqueueJob(ctx, job.ID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Queue is unavailable, try again later",
		})
		return
	}

	if err := h.markQueued(ctx, job.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateJobResponse{JobID: job.ID})
}

// enqueueJob publishes the job id for the worker fleet and records a
// QueueUnavailable failure on the record when the broker is down.
func (h *JobHandler) enqueueJob(ctx context.Context, jobID string) error {
	body, err := json.Marshal(domain.JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to encode job message: %w", err)
	}

	if err := h.publisher.Publish(ctx, body, "application/json"); err != nil {
		h.logger.Error("Failed to publish job message",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		h.failIntake(ctx, jobID, domain.FailureQueueUnavailable, "failed to enqueue job for processing")
		return err
	}

	return nil
}

// markQueued hands the record over to the worker fleet. A record that
// cannot be moved off saving is failed instead, so the published message
// lands on a terminal row and gets dropped rather than looping.
func (h *JobHandler) markQueued(ctx context.Context, jobID string) error {
	err := h.storage.TransitionStatus(ctx, jobID, domain.StatusSaving, domain.StatusQueued)
	if err == nil {
		return nil
	}

	h.logger.Error("Failed to mark job queued",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	h.failIntake(ctx, jobID, domain.FailureStoreUnavailable, "failed to hand job to the worker queue")
	return err
}

// failIntake records an intake failure on a freshly written record. The
// client already gets an error status; the record keeps the reason.
func (h *JobHandler) failIntake(ctx context.Context, jobID string, kind domain.FailureKind, message string) {
	if err := h.storage.FailJob(ctx, jobID, kind, message); err != nil {
		h.logger.Error("Failed to record intake failure",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the job record including status, analysis, and error details
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	h.logger.Info("GetJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.storage.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromDomain(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional status filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	h.logger.Info("ListJobs called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
	)

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Status != "" && !domain.Status(req.Status).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unknown status %q", req.Status),
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.storage.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	// One extra row was fetched to detect a following page.
	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobResponse, len(jobs))
	for i, job := range jobs {
		jobResponse[i] = dto.FromDomain(job)
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		cursorObj := storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.ID,
		}
		nextCursor, err = EncodeJobCursor(&cursorObj)
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Requests cooperative cancellation; the worker honors the flag at the
// next stage boundary.
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")

	h.logger.Info("CancelJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	if err := h.storage.RequestCancel(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		if errors.Is(err, domain.ErrJobTerminal) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Job already reached a terminal status",
			})
			return
		}
		h.logger.Error("Failed to request cancellation", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel job",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": jobID,
		"status": "cancellation_requested",
	})
}

// RetryJob handles POST /api/v1/jobs/:job_id/retry
// Requeues a failed job from the start of the pipeline.
func (h *JobHandler) RetryJob(c *gin.Context) {
	jobID := c.Param("job_id")

	h.logger.Info("RetryJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	ctx := c.Request.Context()
	if err := h.storage.ResetForRetry(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		if conflict, ok := domain.AsStatusConflict(err); ok {
			c.JSON(http.StatusConflict, gin.H{
				"error": fmt.Sprintf("only failed jobs can be retried, job is %s", conflict.Status),
			})
			return
		}
		h.logger.Error("Failed to reset job for retry", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retry job",
		})
		return
	}

	if err := h.enqueueJob(ctx, jobID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Queue is unavailable, try again later",
		})
		return
	}

	if err := h.markQueued(ctx, jobID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retry job",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": jobID,
		"status": string(domain.StatusQueued),
	})
}

// Health handles GET /health
// Reports process liveness plus the state of the two backing services
func (h *JobHandler) Health(c *gin.Context) {
	status := http.StatusOK
	database := "ok"
	queue := "ok"

	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			database = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	if h.queue != nil && !h.queue.IsConnected() {
		queue = "unavailable"
		status = http.StatusServiceUnavailable
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"service":  "resume-match-api",
		"database": database,
		"queue":    queue,
	})
}
