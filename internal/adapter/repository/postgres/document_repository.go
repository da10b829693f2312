package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type documentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) repository.DocumentRepository {
	return &documentRepository{db: db}
}

// create document
func (r *documentRepository) Create(ctx context.Context, doc *entity.Document) error {
	doc.ID = uuid.New().String()
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = time.Now()

	query := `
		INSERT INTO documents (id, filename, original_name, file_size, mime_type, status, total_chunks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query, doc.ID, doc.Filename, doc.OriginalName, doc.FileSize, doc.MimeType, doc.Status, doc.TotalChunks, doc.CreatedAt, doc.UpdatedAt)
	return err
}

// find document by id
func (r *documentRepository) FindByID(ctx context.Context, id string) (*entity.Document, error) {
	var doc entity.Document
	query := `SELECT * FROM documents WHERE id = $1`
	err := r.db.GetContext(ctx, &doc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// find latest document uploaded under a logical name
func (r *documentRepository) FindByOriginalName(ctx context.Context, name string) (*entity.Document, error) {
	var doc entity.Document
	query := `SELECT * FROM documents WHERE original_name = $1 ORDER BY created_at DESC LIMIT 1`
	err := r.db.GetContext(ctx, &doc, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// list documents
func (r *documentRepository) List(ctx context.Context, page, limit int) ([]entity.Document, int, error) {
	offset := (page - 1) * limit

	var docs []entity.Document
	query := `SELECT * FROM documents ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	err := r.db.SelectContext(ctx, &docs, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	var total int
	query = `SELECT COUNT(*) FROM documents`
	err = r.db.GetContext(ctx, &total, query)
	if err != nil {
		return nil, 0, err
	}

	return docs, total, nil
}

// update status
func (r *documentRepository) UpdateStatus(ctx context.Context, id string, status entity.DocumentStatus) error {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

// update total chunks
func (r *documentRepository) UpdateTotalChunks(ctx context.Context, id string, totalChunks int) error {
	query := `UPDATE documents SET total_chunks = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, totalChunks, id)
	return err
}

// delete document
func (r *documentRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
