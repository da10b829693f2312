package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"

	"github.com/pgvector/pgvector-go"
)

// EmbedderGateway is the embedding side of the agent.
type EmbedderGateway interface {
	GenerateEmbedding(ctx context.Context, text string) (pgvector.Vector, error)
}

// RetrievedContext is the assembled document evidence for one question.
// Empty Chunks means retrieval found nothing above the similarity threshold.
type RetrievedContext struct {
	Chunks []entity.SimilarChunk
	Text   string
}

func (rc *RetrievedContext) Empty() bool {
	return rc == nil || len(rc.Chunks) == 0
}

type Retriever struct {
	embedder   EmbedderGateway
	chunkRepo  repository.ChunkRepository
	topK       int
	threshold  float64
	charBudget int
}

func NewRetriever(embedder EmbedderGateway, chunkRepo repository.ChunkRepository, topK int, threshold float64, charBudget int) *Retriever {
	return &Retriever{
		embedder:   embedder,
		chunkRepo:  chunkRepo,
		topK:       topK,
		threshold:  threshold,
		charBudget: charBudget,
	}
}

// Retrieve embeds the question and assembles the nearest chunks into a
// budgeted context block. Chunks are ranked by best similarity across
// documents but keep their original order within each document.
func (r *Retriever) Retrieve(ctx context.Context, question string) (*RetrievedContext, error) {
	embedding, err := r.embedder.GenerateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	chunks, err := r.chunkRepo.SearchSimilar(ctx, embedding, r.topK, r.threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	if len(chunks) == 0 {
		return &RetrievedContext{}, nil
	}

	chunks = r.applyBudget(chunks)
	ordered := orderForContext(chunks)

	var sb strings.Builder
	for i, chunk := range ordered {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("[Source %d - Similarity: %.2f]\n%s", i+1, chunk.Similarity, chunk.Content))
	}

	return &RetrievedContext{Chunks: ordered, Text: sb.String()}, nil
}

// applyBudget drops the lowest-similarity chunks until the context fits.
func (r *Retriever) applyBudget(chunks []entity.SimilarChunk) []entity.SimilarChunk {
	if r.charBudget <= 0 {
		return chunks
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Similarity > chunks[j].Similarity
	})

	total := 0
	kept := chunks[:0]
	for _, chunk := range chunks {
		if total+len(chunk.Content) > r.charBudget && len(kept) > 0 {
			break
		}
		total += len(chunk.Content)
		kept = append(kept, chunk)
	}
	return kept
}

// orderForContext groups chunks by document, documents ranked by their best
// chunk, chunks inside a document in reading order.
func orderForContext(chunks []entity.SimilarChunk) []entity.SimilarChunk {
	best := map[string]float64{}
	var docOrder []string
	byDoc := map[string][]entity.SimilarChunk{}

	for _, chunk := range chunks {
		if _, seen := best[chunk.DocumentID]; !seen {
			docOrder = append(docOrder, chunk.DocumentID)
			best[chunk.DocumentID] = chunk.Similarity
		} else if chunk.Similarity > best[chunk.DocumentID] {
			best[chunk.DocumentID] = chunk.Similarity
		}
		byDoc[chunk.DocumentID] = append(byDoc[chunk.DocumentID], chunk)
	}

	sort.SliceStable(docOrder, func(i, j int) bool {
		return best[docOrder[i]] > best[docOrder[j]]
	})

	ordered := make([]entity.SimilarChunk, 0, len(chunks))
	for _, docID := range docOrder {
		docChunks := byDoc[docID]
		sort.SliceStable(docChunks, func(i, j int) bool {
			return docChunks[i].ChunkIndex < docChunks[j].ChunkIndex
		})
		ordered = append(ordered, docChunks...)
	}
	return ordered
}
