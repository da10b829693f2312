package entity

import "time"

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID           string         `db:"id" json:"id"`
	Filename     string         `db:"filename" json:"filename"`
	OriginalName string         `db:"original_name" json:"originalName"`
	FileSize     int64          `db:"file_size" json:"fileSize"`
	MimeType     string         `db:"mime_type" json:"mimeType"`
	Status       DocumentStatus `db:"status" json:"status"`
	TotalChunks  int            `db:"total_chunks" json:"totalChunks"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}
