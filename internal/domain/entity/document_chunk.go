package entity

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

type DocumentChunk struct {
	ID              string          `db:"id" json:"id"`
	DocumentID      string          `db:"document_id" json:"documentId"`
	ChunkIndex      int             `db:"chunk_index" json:"chunkIndex"`
	Content         string          `db:"content" json:"content"`
	StartOffset     int             `db:"start_offset" json:"startOffset"`
	EndOffset       int             `db:"end_offset" json:"endOffset"`
	OverlapWithPrev int             `db:"overlap_with_prev" json:"overlapWithPrev"`
	Embedding       pgvector.Vector `db:"embedding" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

type SimilarChunk struct {
	DocumentChunk
	Similarity float64 `db:"similarity" json:"similarity"`
}
