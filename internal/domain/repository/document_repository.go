package repository

import (
	"context"

	"campus-assistant/internal/domain/entity"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	FindByID(ctx context.Context, id string) (*entity.Document, error)
	FindByOriginalName(ctx context.Context, name string) (*entity.Document, error)
	List(ctx context.Context, page, limit int) ([]entity.Document, int, error)
	UpdateStatus(ctx context.Context, id string, status entity.DocumentStatus) error
	UpdateTotalChunks(ctx context.Context, id string, totalChunks int) error
	Delete(ctx context.Context, id string) error
}
