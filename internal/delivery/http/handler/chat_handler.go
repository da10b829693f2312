package handler

import (
	"campus-assistant/internal/delivery/http/dto"
	"campus-assistant/internal/usecase/query"

	"github.com/gofiber/fiber/v2"
)

type ChatHandler struct {
	agent *query.Agent
}

func NewChatHandler(agent *query.Agent) *ChatHandler {
	return &ChatHandler{agent: agent}
}

// Chat godoc
// @Summary      Ask a question
// @Description  Answer a question from documents and institutional records
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Param        request  body  dto.ChatRequest  true  "Question"
// @Success      200  {object}  dto.ChatResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/chat [post]
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "message is required"})
	}

	result := h.agent.Answer(c.Context(), req.Message, req.History)

	sources := make([]dto.ChunkSource, 0, len(result.Sources))
	for _, chunk := range result.Sources {
		sources = append(sources, dto.ChunkSource{
			DocumentID: chunk.DocumentID,
			Content:    chunk.Content,
			Similarity: chunk.Similarity,
			ChunkIndex: chunk.ChunkIndex,
		})
	}

	return c.Status(fiber.StatusOK).JSON(dto.ChatResponse{
		Reply:   result.Response,
		Route:   string(result.Intent.Route),
		Sources: sources,
	})
}
