package dto

import "campus-assistant/internal/domain/entity"

type ChatRequest struct {
	Message string   `json:"message"`
	History []string `json:"history,omitempty"`
}

type ChunkSource struct {
	DocumentID string  `json:"documentId"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	ChunkIndex int     `json:"chunkIndex"`
}

type ChatResponse struct {
	Reply   *entity.StructuredResponse `json:"reply"`
	Route   string                     `json:"route"`
	Sources []ChunkSource              `json:"sources,omitempty"`
}
