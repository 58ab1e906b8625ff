package dto

import "github.com/cuongbtq/truthlens/internal/domain"

type AnalyseResponse struct {
	JobID string `json:"job_id"`
}

type ResultResponse struct {
	JobID  string                `json:"job_id"`
	Status domain.JobStatus      `json:"status"`
	Steps  []domain.StepState    `json:"steps"`
	Result *domain.ResultPayload `json:"result"`
	Error  *string               `json:"error"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID     string `json:"job_id"`
	Filename  string `json:"filename"`
	SizeBytes int    `json:"size_bytes"`
	Status    string `json:"status"`
	Verdict   string `json:"verdict,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type CancelJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
