package repository

import (
	"context"

	"campus-assistant/internal/domain/entity"
)

// JobRepository tracks ingestion jobs. Updates must keep progress monotonic
// and refuse transitions out of a terminal status.
type JobRepository interface {
	Create(ctx context.Context, job *entity.IngestionJob) error
	FindByID(ctx context.Context, id string) (*entity.IngestionJob, error)
	Update(ctx context.Context, id string, mutate func(job *entity.IngestionJob)) (*entity.IngestionJob, error)
}
