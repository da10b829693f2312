package repository

import (
	"context"

	"campus-assistant/internal/domain/entity"

	"github.com/pgvector/pgvector-go"
)

type ChunkRepository interface {
	CreateBatch(ctx context.Context, chunks []entity.DocumentChunk) error
	SearchSimilar(ctx context.Context, embedding pgvector.Vector, topK int, threshold float64) ([]entity.SimilarChunk, error)
	CountByDocumentID(ctx context.Context, documentID string) (int, error)
	DeleteByDocumentID(ctx context.Context, documentID string) error
}
