package handler

import (
	"io"
	"mime/multipart"

	"campus-assistant/internal/delivery/http/dto"
	"campus-assistant/internal/usecase/ingestion"

	"github.com/gofiber/fiber/v2"
)

type IngestHandler struct {
	pipeline *ingestion.Pipeline
}

func NewIngestHandler(pipeline *ingestion.Pipeline) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

// IngestDocuments godoc
// @Summary      Submit documents for indexing
// @Description  Accepts PDF, DOCX, text and Markdown files; returns a job id immediately
// @Tags         Ingestion
// @Accept       multipart/form-data
// @Produce      json
// @Param        files  formData  file  true  "Files to index"
// @Success      202  {object}  dto.SubmitJobResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/ingest/documents [post]
func (h *IngestHandler) IngestDocuments(c *fiber.Ctx) error {
	files, err := h.readBatch(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	job, err := h.pipeline.SubmitDocuments(c.Context(), files)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.SubmitJobResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "Batch accepted. Poll the job id for progress.",
	})
}

// IngestTabular godoc
// @Summary      Submit tabular files for insertion
// @Description  Accepts CSV, XLSX and JSON files; the optional table field overrides the filename-derived target table
// @Tags         Ingestion
// @Accept       multipart/form-data
// @Produce      json
// @Param        files  formData  file    true   "Files to insert"
// @Param        table  formData  string  false  "Target table"
// @Success      202  {object}  dto.SubmitJobResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/ingest/tabular [post]
func (h *IngestHandler) IngestTabular(c *fiber.Ctx) error {
	files, err := h.readBatch(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	if table := c.FormValue("table"); table != "" {
		for i := range files {
			files[i].Table = table
		}
	}

	job, err := h.pipeline.SubmitTabular(c.Context(), files)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.SubmitJobResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "Batch accepted. Poll the job id for progress.",
	})
}

// GetJob godoc
// @Summary      Get job status
// @Tags         Ingestion
// @Produce      json
// @Param        id  path  string  true  "Job ID"
// @Success      200  {object}  dto.JobResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/jobs/{id} [get]
func (h *IngestHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.pipeline.Job(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	if job == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "job not found"})
	}

	return c.Status(fiber.StatusOK).JSON(dto.NewJobResponse(job))
}

// CancelJob godoc
// @Summary      Cancel a running job
// @Tags         Ingestion
// @Produce      json
// @Param        id  path  string  true  "Job ID"
// @Success      202  {object}  dto.MessageResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/jobs/{id}/cancel [post]
func (h *IngestHandler) CancelJob(c *fiber.Ctx) error {
	if err := h.pipeline.Cancel(c.Params("id")); err != nil {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.MessageResponse{Message: "Cancellation requested"})
}

func (h *IngestHandler) readBatch(c *fiber.Ctx) ([]ingestion.IngestFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "expected multipart form")
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "no files provided")
	}

	files := make([]ingestion.IngestFile, 0, len(headers))
	for _, header := range headers {
		data, err := readFileHeader(header)
		if err != nil {
			return nil, err
		}
		files = append(files, ingestion.IngestFile{
			Name:     header.Filename,
			Data:     data,
			MimeType: header.Header.Get("Content-Type"),
		})
	}
	return files, nil
}

func readFileHeader(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
