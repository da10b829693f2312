package dto

import (
	"time"

	"campus-assistant/internal/domain/entity"
)

type SubmitJobResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type JobResponse struct {
	ID             string                `json:"id"`
	Kind           string                `json:"kind"`
	Status         string                `json:"status"`
	Progress       int                   `json:"progress"`
	InputFiles     []string              `json:"inputFiles"`
	RowsExtracted  int                   `json:"rowsExtracted"`
	RowsInserted   int                   `json:"rowsInserted"`
	ChunksIndexed  int                   `json:"chunksIndexed"`
	AffectedTables []string              `json:"affectedTables"`
	Errors         []entity.JobItemError `json:"errors,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
	FinishedAt     *time.Time            `json:"finishedAt,omitempty"`
}

func NewJobResponse(job *entity.IngestionJob) JobResponse {
	return JobResponse{
		ID:             job.ID,
		Kind:           string(job.Kind),
		Status:         string(job.Status),
		Progress:       job.Progress,
		InputFiles:     job.InputFiles,
		RowsExtracted:  job.RowsExtracted,
		RowsInserted:   job.RowsInserted,
		ChunksIndexed:  job.ChunksIndexed,
		AffectedTables: job.AffectedTables,
		Errors:         job.Errors,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		FinishedAt:     job.FinishedAt,
	}
}
