package query

import (
	"context"
	"fmt"
	"sync"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"

	"github.com/pgvector/pgvector-go"
)

// scriptedGenerator replays canned completions in order and records every
// prompt it was given.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, userPrompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", fmt.Errorf("no scripted reply left")
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

type stubStore struct {
	schemas  []repository.TableSchema
	result   *repository.QueryResult
	execErr  error
	executed []string
}

func (s *stubStore) ExistingTables(ctx context.Context) ([]repository.TableSchema, error) {
	return s.schemas, nil
}

func (s *stubStore) ExecuteSelect(ctx context.Context, statement string) (*repository.QueryResult, error) {
	s.executed = append(s.executed, statement)
	if s.execErr != nil {
		return nil, s.execErr
	}
	if s.result != nil {
		return s.result, nil
	}
	return &repository.QueryResult{}, nil
}

func (s *stubStore) InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}) (int, error) {
	return 0, fmt.Errorf("not supported")
}

func (s *stubStore) CountRows(ctx context.Context, table string) (int, error) {
	return 0, nil
}

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) GenerateEmbedding(ctx context.Context, text string) (pgvector.Vector, error) {
	if e.err != nil {
		return pgvector.Vector{}, e.err
	}
	return pgvector.NewVector([]float32{0.1, 0.2, 0.3}), nil
}

type stubChunkRepo struct {
	chunks []entity.SimilarChunk
	err    error
}

func (r *stubChunkRepo) CreateBatch(ctx context.Context, chunks []entity.DocumentChunk) error {
	return nil
}

func (r *stubChunkRepo) SearchSimilar(ctx context.Context, embedding pgvector.Vector, topK int, threshold float64) ([]entity.SimilarChunk, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.chunks, nil
}

func (r *stubChunkRepo) CountByDocumentID(ctx context.Context, documentID string) (int, error) {
	return len(r.chunks), nil
}

func (r *stubChunkRepo) DeleteByDocumentID(ctx context.Context, documentID string) error {
	return nil
}

var campusSchemas = []repository.TableSchema{
	{
		Name: "faculty_members",
		Columns: []repository.ColumnSchema{
			{Name: "id", DataType: "uuid"},
			{Name: "name", DataType: "character varying"},
			{Name: "department_id", DataType: "uuid"},
			{Name: "email", DataType: "character varying"},
		},
	},
	{
		Name: "courses",
		Columns: []repository.ColumnSchema{
			{Name: "id", DataType: "uuid"},
			{Name: "code", DataType: "character varying"},
			{Name: "name", DataType: "character varying"},
			{Name: "credits", DataType: "integer"},
		},
	},
	{
		Name: "exams",
		Columns: []repository.ColumnSchema{
			{Name: "id", DataType: "uuid"},
			{Name: "course_id", DataType: "uuid"},
			{Name: "exam_date", DataType: "date"},
			{Name: "room", DataType: "character varying"},
		},
	},
}

func similarChunk(docID string, index int, similarity float64, content string) entity.SimilarChunk {
	return entity.SimilarChunk{
		DocumentChunk: entity.DocumentChunk{
			DocumentID: docID,
			ChunkIndex: index,
			Content:    content,
		},
		Similarity: similarity,
	}
}
