package ingestion

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"
	"campus-assistant/pkg/logger"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/semaphore"
)

type EmbeddingService interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([]pgvector.Vector, error)
}

// IngestFile is one uploaded file in a batch submission.
type IngestFile struct {
	Name     string
	Data     []byte
	MimeType string
	// Table overrides the filename-derived target table for tabular files.
	Table string
}

// Pipeline converts uploaded files into indexed chunks or relational rows,
// tracked as asynchronous jobs. Submissions return immediately; callers poll
// the job by id.
type Pipeline struct {
	docRepo   repository.DocumentRepository
	chunkRepo repository.ChunkRepository
	jobRepo   repository.JobRepository
	store     repository.StructuredStore
	embedder  EmbeddingService
	extractor *TextExtractor
	chunker   *Chunker
	parser    *TabularParser
	log       *logger.Logger

	insertBatch int
	workers     *semaphore.Weighted

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex
	cancels  map[string]context.CancelFunc
}

func NewPipeline(
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	jobRepo repository.JobRepository,
	store repository.StructuredStore,
	embedder EmbeddingService,
	chunkSize, chunkOverlap, insertBatch int,
	workers int,
	log *logger.Logger,
) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	if insertBatch <= 0 {
		insertBatch = 100
	}
	return &Pipeline{
		docRepo:     docRepo,
		chunkRepo:   chunkRepo,
		jobRepo:     jobRepo,
		store:       store,
		embedder:    embedder,
		extractor:   NewTextExtractor(),
		chunker:     NewChunker(chunkSize, chunkOverlap),
		parser:      NewTabularParser(),
		log:         log,
		insertBatch: insertBatch,
		workers:     semaphore.NewWeighted(int64(workers)),
		docLocks:    make(map[string]*sync.Mutex),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// SubmitDocuments accepts a document batch and returns the tracking job.
func (p *Pipeline) SubmitDocuments(ctx context.Context, files []IngestFile) (*entity.IngestionJob, error) {
	return p.submit(ctx, entity.JobKindDocuments, files, p.runDocumentJob)
}

// SubmitTabular accepts a CSV/XLSX/JSON batch and returns the tracking job.
func (p *Pipeline) SubmitTabular(ctx context.Context, files []IngestFile) (*entity.IngestionJob, error) {
	return p.submit(ctx, entity.JobKindTabular, files, p.runTabularJob)
}

func (p *Pipeline) submit(ctx context.Context, kind entity.JobKind, files []IngestFile, run func(ctx context.Context, job *entity.IngestionJob, files []IngestFile)) (*entity.IngestionJob, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}

	job := &entity.IngestionJob{
		Kind:       kind,
		Status:     entity.JobQueued,
		InputFiles: names,
	}
	if err := p.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancels[job.ID] = cancel
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("panic in ingestion job", "job_id", job.ID, "panic", r)
				p.failJob(job.ID, entity.JobItemError{
					Kind:    string(entity.ErrExecution),
					Message: fmt.Sprintf("panic: %v", r),
				})
			}
			p.mu.Lock()
			delete(p.cancels, job.ID)
			p.mu.Unlock()
			cancel()
		}()

		if err := p.workers.Acquire(jobCtx, 1); err != nil {
			p.failJob(job.ID, entity.JobItemError{
				Kind:    string(entity.ErrCancelled),
				Message: "job cancelled while queued",
			})
			return
		}
		defer p.workers.Release(1)

		run(jobCtx, job, files)
	}()

	return job, nil
}

// Cancel requests a job stop. The running stage finishes its current batch
// before the cancellation is honored.
func (p *Pipeline) Cancel(jobID string) error {
	job, err := p.jobRepo.FindByID(context.Background(), jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s already %s", jobID, job.Status)
	}

	p.mu.Lock()
	cancel, ok := p.cancels[jobID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (p *Pipeline) Job(ctx context.Context, id string) (*entity.IngestionJob, error) {
	return p.jobRepo.FindByID(ctx, id)
}

// ---- document ingestion ----

func (p *Pipeline) runDocumentJob(ctx context.Context, job *entity.IngestionJob, files []IngestFile) {
	p.setStage(job.ID, entity.JobScanning, 5)

	totalChunks := 0
	for i, file := range files {
		if p.checkCancelled(ctx, job.ID) {
			return
		}

		p.setStage(job.ID, entity.JobParsing, 5+i*85/len(files))
		chunks, err := p.processDocument(ctx, job.ID, file)
		if err != nil {
			p.log.Warn("document skipped", "job_id", job.ID, "file", file.Name, "error", err)
			p.appendError(job.ID, entity.JobItemError{
				Item:    file.Name,
				Kind:    string(entity.KindOf(err)),
				Message: err.Error(),
			})
		} else {
			totalChunks += chunks
		}

		progress := 5 + (i+1)*85/len(files)
		p.updateJob(job.ID, func(j *entity.IngestionJob) {
			j.Progress = progress
			j.ChunksIndexed = totalChunks
		})
	}

	p.setStage(job.ID, entity.JobVerifying, 95)
	p.finishJob(job.ID, totalChunks > 0)
}

// processDocument runs the single-document path: extract, chunk, embed,
// then, under the per-document lock, delete the superseded version and write
// the replacement. Returns the number of chunks written.
func (p *Pipeline) processDocument(ctx context.Context, jobID string, file IngestFile) (int, error) {
	text, err := p.extractor.Extract(file.Name, file.Data, file.MimeType)
	if err != nil {
		return 0, err
	}

	p.setStage(jobID, entity.JobTransforming, 0)
	spans := p.chunker.ChunkText(text)
	if len(spans) == 0 {
		return 0, entity.NewDomainError(entity.ErrDecodeFailure, file.Name,
			fmt.Errorf("no chunks generated"))
	}

	p.setStage(jobID, entity.JobEmbedding, 0)
	texts := make([]string, len(spans))
	for i, span := range spans {
		texts[i] = span.Text
	}
	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(embeddings) != len(spans) {
		return 0, entity.NewDomainError(entity.ErrEmbedding, file.Name,
			fmt.Errorf("expected %d embeddings, got %d", len(spans), len(embeddings)))
	}

	// writes to one logical document are mutually exclusive: a re-upload
	// under the same name must never interleave with another
	lock := p.lockFor(file.Name)
	lock.Lock()
	defer lock.Unlock()

	prior, err := p.docRepo.FindByOriginalName(ctx, file.Name)
	if err != nil {
		return 0, entity.NewDomainError(entity.ErrExecution, file.Name, err)
	}

	// the prior version goes away before the replacement is written, so the
	// index never serves two copies of one document and a crash mid-swap
	// cannot leave orphaned vectors behind
	if prior != nil {
		if err := p.chunkRepo.DeleteByDocumentID(ctx, prior.ID); err != nil {
			return 0, entity.NewDomainError(entity.ErrExecution, file.Name, err)
		}
		if err := p.docRepo.Delete(ctx, prior.ID); err != nil {
			return 0, entity.NewDomainError(entity.ErrExecution, file.Name, err)
		}
	}

	doc := &entity.Document{
		Filename:     file.Name,
		OriginalName: file.Name,
		FileSize:     int64(len(file.Data)),
		MimeType:     file.MimeType,
		Status:       entity.StatusProcessing,
	}
	if err := p.docRepo.Create(ctx, doc); err != nil {
		return 0, entity.NewDomainError(entity.ErrExecution, file.Name, err)
	}

	chunks := make([]entity.DocumentChunk, len(spans))
	for i, span := range spans {
		chunks[i] = entity.DocumentChunk{
			DocumentID:      doc.ID,
			ChunkIndex:      span.Index,
			Content:         span.Text,
			StartOffset:     span.Start,
			EndOffset:       span.End,
			OverlapWithPrev: span.OverlapWithPrev,
			Embedding:       embeddings[i],
		}
	}

	if err := p.chunkRepo.CreateBatch(ctx, chunks); err != nil {
		p.docRepo.UpdateStatus(ctx, doc.ID, entity.StatusFailed)
		return 0, entity.NewDomainError(entity.ErrExecution, file.Name, err)
	}

	if err := p.docRepo.UpdateTotalChunks(ctx, doc.ID, len(chunks)); err != nil {
		return 0, entity.NewDomainError(entity.ErrExecution, file.Name, err)
	}
	if err := p.docRepo.UpdateStatus(ctx, doc.ID, entity.StatusCompleted); err != nil {
		return 0, entity.NewDomainError(entity.ErrExecution, file.Name, err)
	}

	p.log.Info("document indexed", "file", file.Name, "document_id", doc.ID, "chunks", len(chunks))
	return len(chunks), nil
}

// ---- tabular ingestion ----

func (p *Pipeline) runTabularJob(ctx context.Context, job *entity.IngestionJob, files []IngestFile) {
	p.setStage(job.ID, entity.JobScanning, 5)

	schemas, err := p.store.ExistingTables(ctx)
	if err != nil {
		p.failJob(job.ID, entity.JobItemError{
			Kind:    string(entity.ErrExecution),
			Message: fmt.Sprintf("schema introspection failed: %v", err),
		})
		return
	}

	totalExtracted := 0
	totalInserted := 0
	affected := map[string]bool{}

	for i, file := range files {
		if p.checkCancelled(ctx, job.ID) {
			return
		}

		p.setStage(job.ID, entity.JobParsing, 5+i*85/len(files))
		rowSet, err := p.parser.Parse(file.Name, file.Data, file.Table, schemas)
		if err != nil {
			p.log.Warn("tabular file skipped", "job_id", job.ID, "file", file.Name, "error", err)
			p.appendError(job.ID, entity.JobItemError{
				Item:    file.Name,
				Kind:    string(entity.KindOf(err)),
				Message: err.Error(),
			})
			continue
		}

		p.setStage(job.ID, entity.JobValidating, 0)
		totalExtracted += rowSet.Extracted
		for _, rowErr := range rowSet.RowErrors {
			p.appendError(job.ID, rowErr)
		}

		if len(rowSet.Rows) == 0 {
			continue
		}

		p.setStage(job.ID, entity.JobInserting, 0)
		before, err := p.store.CountRows(ctx, rowSet.Table)
		if err != nil {
			before = -1
		}

		// rows go in batches so a cancellation lands on a batch boundary
		inserted := 0
		for offset := 0; offset < len(rowSet.Rows); offset += p.insertBatch {
			if p.checkCancelled(ctx, job.ID) {
				return
			}
			limit := offset + p.insertBatch
			if limit > len(rowSet.Rows) {
				limit = len(rowSet.Rows)
			}
			n, err := p.store.InsertRows(ctx, rowSet.Table, rowSet.Columns, rowSet.Rows[offset:limit])
			if err != nil {
				p.appendError(job.ID, entity.JobItemError{
					Item:    file.Name,
					Kind:    string(entity.ErrExecution),
					Message: err.Error(),
				})
				break
			}
			inserted += n
		}

		// verify by row-count delta when the count was readable
		if before >= 0 {
			if after, err := p.store.CountRows(ctx, rowSet.Table); err == nil && after-before < inserted {
				inserted = after - before
			}
		}

		totalInserted += inserted
		if inserted > 0 {
			affected[rowSet.Table] = true
		}

		progress := 5 + (i+1)*85/len(files)
		p.updateJob(job.ID, func(j *entity.IngestionJob) {
			j.Progress = progress
			j.RowsExtracted = totalExtracted
			j.RowsInserted = totalInserted
			j.AffectedTables = sortedKeys(affected)
		})
	}

	p.updateJob(job.ID, func(j *entity.IngestionJob) {
		j.RowsExtracted = totalExtracted
		j.RowsInserted = totalInserted
		j.AffectedTables = sortedKeys(affected)
	})
	p.setStage(job.ID, entity.JobVerifying, 95)
	p.finishJob(job.ID, totalInserted > 0)
}

// ---- document queries for the delivery layer ----

func (p *Pipeline) ListDocuments(ctx context.Context, page, limit int) ([]entity.Document, int, error) {
	return p.docRepo.List(ctx, page, limit)
}

func (p *Pipeline) GetDocument(ctx context.Context, id string) (*entity.Document, error) {
	return p.docRepo.FindByID(ctx, id)
}

// DeleteDocument removes a document and its chunk set, chunks first so no
// orphaned vectors survive a partial failure.
func (p *Pipeline) DeleteDocument(ctx context.Context, id string) error {
	doc, err := p.docRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document not found")
	}

	lock := p.lockFor(doc.OriginalName)
	lock.Lock()
	defer lock.Unlock()

	if err := p.chunkRepo.DeleteByDocumentID(ctx, id); err != nil {
		return err
	}
	return p.docRepo.Delete(ctx, id)
}

// ---- job bookkeeping ----

func (p *Pipeline) lockFor(name string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.docLocks[name]
	if !ok {
		lock = &sync.Mutex{}
		p.docLocks[name] = lock
	}
	return lock
}

func (p *Pipeline) checkCancelled(ctx context.Context, jobID string) bool {
	if ctx.Err() == nil {
		return false
	}
	p.failJob(jobID, entity.JobItemError{
		Kind:    string(entity.ErrCancelled),
		Message: "job cancelled by request",
	})
	return true
}

func (p *Pipeline) setStage(jobID string, status entity.JobStatus, progress int) {
	p.updateJob(jobID, func(j *entity.IngestionJob) {
		j.Status = status
		if progress > 0 {
			j.Progress = progress
		}
	})
}

func (p *Pipeline) appendError(jobID string, itemErr entity.JobItemError) {
	p.updateJob(jobID, func(j *entity.IngestionJob) {
		j.Errors = append(j.Errors, itemErr)
	})
}

func (p *Pipeline) finishJob(jobID string, anySucceeded bool) {
	p.updateJob(jobID, func(j *entity.IngestionJob) {
		if anySucceeded {
			// partial failures stay visible in the error list, the job
			// itself completes
			j.Status = entity.JobCompleted
			j.Progress = 100
		} else {
			j.Status = entity.JobFailed
		}
	})
}

func (p *Pipeline) failJob(jobID string, itemErr entity.JobItemError) {
	p.updateJob(jobID, func(j *entity.IngestionJob) {
		j.Errors = append(j.Errors, itemErr)
		j.Status = entity.JobFailed
	})
}

func (p *Pipeline) updateJob(jobID string, mutate func(j *entity.IngestionJob)) {
	if _, err := p.jobRepo.Update(context.Background(), jobID, mutate); err != nil {
		p.log.Debug("job update skipped", "job_id", jobID, "error", err)
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
