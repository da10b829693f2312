package postgres

import (
	"context"
	"time"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
)

type chunkRepository struct {
	db *sqlx.DB
}

func NewChunkRepository(db *sqlx.DB) repository.ChunkRepository {
	return &chunkRepository{db: db}
}

// CreateBatch inserts a document's chunks in one transaction so a reindex
// never leaves a half-written chunk set visible.
func (r *chunkRepository) CreateBatch(ctx context.Context, chunks []entity.DocumentChunk) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO document_chunks (id, document_id, chunk_index, content, start_offset, end_offset, overlap_with_prev, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for i := range chunks {
		chunks[i].ID = uuid.New().String()
		chunks[i].CreatedAt = time.Now()

		_, err := tx.ExecContext(ctx, query,
			chunks[i].ID,
			chunks[i].DocumentID,
			chunks[i].ChunkIndex,
			chunks[i].Content,
			chunks[i].StartOffset,
			chunks[i].EndOffset,
			chunks[i].OverlapWithPrev,
			chunks[i].Embedding,
			chunks[i].CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SearchSimilar searches for similar chunks using cosine similarity.
func (r *chunkRepository) SearchSimilar(ctx context.Context, embedding pgvector.Vector, topK int, threshold float64) ([]entity.SimilarChunk, error) {
	query := `
		SELECT
			dc.id,
			dc.document_id,
			dc.chunk_index,
			dc.content,
			dc.start_offset,
			dc.end_offset,
			dc.overlap_with_prev,
			dc.created_at,
			1 - (dc.embedding <=> $1) AS similarity
		FROM document_chunks dc
		INNER JOIN documents d ON dc.document_id = d.id
		WHERE d.status = 'completed'
		AND (1 - (dc.embedding <=> $1)) >= $2
		ORDER BY dc.embedding <=> $1
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, embedding, threshold, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []entity.SimilarChunk
	for rows.Next() {
		var chunk entity.SimilarChunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&chunk.StartOffset,
			&chunk.EndOffset,
			&chunk.OverlapWithPrev,
			&chunk.CreatedAt,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

func (r *chunkRepository) CountByDocumentID(ctx context.Context, documentID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`
	err := r.db.GetContext(ctx, &count, query, documentID)
	return count, err
}

// DeleteByDocumentID removes a document's entire chunk set.
func (r *chunkRepository) DeleteByDocumentID(ctx context.Context, documentID string) error {
	query := `DELETE FROM document_chunks WHERE document_id = $1`
	_, err := r.db.ExecContext(ctx, query, documentID)
	return err
}
