package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/truthlens/internal/api/dto"
	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/jobstore"
)

// multipartOverhead leaves room for the form boundaries around the file part
const multipartOverhead = 1 << 20

// AnalyseImage handles POST /api/v1/analyse
// Accepts one image upload and starts its analysis pipeline
func (h *JobHandler) AnalyseImage(c *gin.Context) {
	h.logger.Info("AnalyseImage called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	// 1. Read the upload within the size limit
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "file too large"})
			return
		}
		h.logger.Error("Invalid upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "file is required"})
		return
	}

	if fileHeader.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "file too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "failed to read file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.logger.Error("Failed to read upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "failed to read file"})
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "file too large"})
		return
	}

	// 2. Only images are analyzed
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		c.JSON(http.StatusUnsupportedMediaType, dto.ErrorResponse{Error: "file must be an image"})
		return
	}

	filename := uploadFilename(fileHeader.Filename)

	// 3. Register the job
	job, err := h.store.Create(c.Request.Context(), filename, len(data))
	if err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to create job"})
		return
	}

	// 4. Start the pipeline in the background
	if err := h.runner.Submit(c.Request.Context(), job.ID, data, filename); err != nil {
		h.logger.Error("Failed to submit job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		if _, updateErr := h.store.Update(c.Request.Context(), job.ID, func(j *domain.Job) error {
			return j.Fail(err.Error(), time.Now().UTC())
		}); updateErr != nil {
			h.logger.Error("Failed to mark rejected job as failed",
				slog.String("job_id", job.ID),
				slog.String("error", updateErr.Error()),
			)
		}
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "service is shutting down"})
		return
	}

	h.logger.Info("Job accepted",
		slog.String("job_id", job.ID),
		slog.String("filename", filename),
		slog.Int("size_bytes", len(data)),
	)

	c.JSON(http.StatusAccepted, dto.AnalyseResponse{JobID: job.ID})
}

// GetResult handles GET /api/v1/results/:job_id
// Returns the current state of a job, including its result once finished
func (h *JobHandler) GetResult(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.ResultResponse{
		JobID:  job.ID,
		Status: job.Status,
		Steps:  job.Steps,
		Result: job.Result,
		Error:  job.Error,
	})
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional status filter and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	h.logger.Info("ListJobs called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
	)

	// 1. Parse query parameters
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	// 2. Validate parameters
	status := domain.JobStatus(req.Status)
	switch status {
	case "", domain.JobStatusPending, domain.JobStatusRunning, domain.JobStatusDone, domain.JobStatusError:
	default:
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid status"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = jobstore.DefaultPageSize
	}

	if req.PageSize > jobstore.MaxPageSize {
		req.PageSize = jobstore.MaxPageSize
	}

	// 3. Decode cursor for pagination
	cursor, err := jobstore.DecodeCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	// 4. Query the store
	jobs, err := h.store.List(c.Request.Context(), jobstore.JobFilter{
		Status:   status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list jobs"})
		return
	}

	// 5. Prepare response with next cursor if more results exist
	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		jobResponse[i] = toJobDTO(job)
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = jobstore.EncodeCursor(&jobstore.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Cancels a pending or running job
func (h *JobHandler) CancelJob(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	if job.Status.IsTerminal() {
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: domain.ErrJobTerminal.Error()})
		return
	}

	if !h.runner.Cancel(job.ID) {
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "job is not running"})
		return
	}

	h.logger.Info("Job cancel requested", slog.String("job_id", job.ID))

	c.JSON(http.StatusAccepted, dto.CancelJobResponse{
		JobID:  job.ID,
		Status: "canceling",
	})
}

// DeleteJob handles DELETE /api/v1/jobs/:job_id
// Removes a finished job
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	err := h.store.Delete(c.Request.Context(), jobID)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: domain.ErrJobNotFound.Error()})
		return
	case errors.Is(err, domain.ErrJobActive):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: domain.ErrJobActive.Error()})
		return
	case err != nil:
		h.logger.Error("Failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete job"})
		return
	}

	h.logger.Info("Job deleted", slog.String("job_id", jobID))
	c.Status(http.StatusNoContent)
}

// jobID validates the job_id path parameter
func (h *JobHandler) jobID(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_id must be a valid UUID"})
		return "", false
	}
	return jobID, true
}

// lookupJob loads the job named by the path, writing the error response when
// it cannot
func (h *JobHandler) lookupJob(c *gin.Context) (domain.Job, bool) {
	jobID, ok := h.jobID(c)
	if !ok {
		return domain.Job{}, false
	}

	job, err := h.store.Get(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: domain.ErrJobNotFound.Error()})
		return domain.Job{}, false
	}
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		return domain.Job{}, false
	}
	return job, true
}

func toJobDTO(job domain.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobID:     job.ID,
		Filename:  job.Filename,
		SizeBytes: job.SizeBytes,
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}
	if job.Result != nil {
		out.Verdict = string(job.Result.Verdict)
	}
	return out
}

func uploadFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return DefaultFilename
	}
	return name
}
