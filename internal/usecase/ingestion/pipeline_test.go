package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"campus-assistant/internal/adapter/repository/memory"
	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"
	"campus-assistant/pkg/logger"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- test doubles ----

type fakeDocRepo struct {
	mu   sync.Mutex
	seq  int
	docs map[string]*entity.Document
	// onStatus observes every status transition, for ordering assertions
	onStatus func(id string, status entity.DocumentStatus)
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: map[string]*entity.Document{}}
}

func (r *fakeDocRepo) Create(ctx context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	doc.ID = fmt.Sprintf("doc-%04d", r.seq)
	doc.CreatedAt = time.Now()
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *fakeDocRepo) FindByID(ctx context.Context, id string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeDocRepo) FindByOriginalName(ctx context.Context, name string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *entity.Document
	for _, doc := range r.docs {
		if doc.OriginalName != name {
			continue
		}
		if latest == nil || doc.ID > latest.ID {
			latest = doc
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeDocRepo) List(ctx context.Context, page, limit int) ([]entity.Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, *doc)
	}
	return out, len(out), nil
}

func (r *fakeDocRepo) UpdateStatus(ctx context.Context, id string, status entity.DocumentStatus) error {
	r.mu.Lock()
	if doc, ok := r.docs[id]; ok {
		doc.Status = status
	}
	hook := r.onStatus
	r.mu.Unlock()
	if hook != nil {
		hook(id, status)
	}
	return nil
}

func (r *fakeDocRepo) UpdateTotalChunks(ctx context.Context, id string, totalChunks int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[id]; ok {
		doc.TotalChunks = totalChunks
	}
	return nil
}

func (r *fakeDocRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

type fakeChunkRepo struct {
	mu     sync.Mutex
	chunks map[string][]entity.DocumentChunk
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{chunks: map[string][]entity.DocumentChunk{}}
}

func (r *fakeChunkRepo) CreateBatch(ctx context.Context, chunks []entity.DocumentChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, chunk := range chunks {
		r.chunks[chunk.DocumentID] = append(r.chunks[chunk.DocumentID], chunk)
	}
	return nil
}

func (r *fakeChunkRepo) SearchSimilar(ctx context.Context, embedding pgvector.Vector, topK int, threshold float64) ([]entity.SimilarChunk, error) {
	return nil, nil
}

func (r *fakeChunkRepo) CountByDocumentID(ctx context.Context, documentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks[documentID]), nil
}

func (r *fakeChunkRepo) DeleteByDocumentID(ctx context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, documentID)
	return nil
}

func (r *fakeChunkRepo) documentIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.chunks))
	for id := range r.chunks {
		ids = append(ids, id)
	}
	return ids
}

type fakeStructuredStore struct {
	mu          sync.Mutex
	schemas     []repository.TableSchema
	rows        map[string]int
	insertCalls int
}

func newFakeStructuredStore(schemas []repository.TableSchema) *fakeStructuredStore {
	return &fakeStructuredStore{schemas: schemas, rows: map[string]int{}}
}

func (s *fakeStructuredStore) ExistingTables(ctx context.Context) ([]repository.TableSchema, error) {
	return s.schemas, nil
}

func (s *fakeStructuredStore) ExecuteSelect(ctx context.Context, statement string) (*repository.QueryResult, error) {
	return &repository.QueryResult{}, nil
}

func (s *fakeStructuredStore) InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	s.rows[table] += len(rows)
	return len(rows), nil
}

func (s *fakeStructuredStore) CountRows(ctx context.Context, table string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[table], nil
}

type fakeEmbedder struct {
	err error
	// when set, a call signals started and then blocks until release closes
	// or the context is cancelled
	started chan struct{}
	release chan struct{}
}

func (e *fakeEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if e.started != nil {
		select {
		case e.started <- struct{}{}:
		default:
		}
	}
	if e.release != nil {
		select {
		case <-e.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make([]pgvector.Vector, len(texts))
	for i := range texts {
		out[i] = pgvector.NewVector([]float32{0.1, 0.2, 0.3})
	}
	return out, nil
}

// recordingJobStore wraps the real store and captures every progress value
// the pipeline reports.
type recordingJobStore struct {
	inner    repository.JobRepository
	mu       sync.Mutex
	progress []int
}

func (s *recordingJobStore) Create(ctx context.Context, job *entity.IngestionJob) error {
	return s.inner.Create(ctx, job)
}

func (s *recordingJobStore) FindByID(ctx context.Context, id string) (*entity.IngestionJob, error) {
	return s.inner.FindByID(ctx, id)
}

func (s *recordingJobStore) Update(ctx context.Context, id string, mutate func(job *entity.IngestionJob)) (*entity.IngestionJob, error) {
	job, err := s.inner.Update(ctx, id, mutate)
	if err == nil {
		s.mu.Lock()
		s.progress = append(s.progress, job.Progress)
		s.mu.Unlock()
	}
	return job, err
}

// ---- harness ----

type pipelineEnv struct {
	pipeline  *Pipeline
	docRepo   *fakeDocRepo
	chunkRepo *fakeChunkRepo
	jobStore  repository.JobRepository
	store     *fakeStructuredStore
	embedder  *fakeEmbedder
}

func newPipelineEnv(t *testing.T, jobStore repository.JobRepository) *pipelineEnv {
	t.Helper()
	env := &pipelineEnv{
		docRepo:   newFakeDocRepo(),
		chunkRepo: newFakeChunkRepo(),
		jobStore:  jobStore,
		store:     newFakeStructuredStore(courseSchemas),
		embedder:  &fakeEmbedder{},
	}
	if env.jobStore == nil {
		env.jobStore = memory.NewJobStore()
	}
	env.pipeline = NewPipeline(
		env.docRepo, env.chunkRepo, env.jobStore, env.store, env.embedder,
		200, 40, 2, 2, logger.NewNop(),
	)
	return env
}

func waitForJob(t *testing.T, p *Pipeline, id string) *entity.IngestionJob {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := p.Job(context.Background(), id)
		return err == nil && job != nil && job.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)

	job, err := p.Job(context.Background(), id)
	require.NoError(t, err)
	return job
}

func textFile(name, content string) IngestFile {
	return IngestFile{Name: name, Data: []byte(content), MimeType: "text/plain"}
}

// ---- tabular jobs ----

func TestTabularJobCompletes(t *testing.T) {
	env := newPipelineEnv(t, nil)
	csv := "code,name,credits\nCS101,Algorithms,6\nCS102,Databases,4\nCS103,Networks,5\n"

	job, err := env.pipeline.SubmitTabular(context.Background(), []IngestFile{
		{Name: "courses.csv", Data: []byte(csv), MimeType: "text/csv"},
	})
	require.NoError(t, err)

	final := waitForJob(t, env.pipeline, job.ID)
	assert.Equal(t, entity.JobCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, 3, final.RowsExtracted)
	assert.Equal(t, 3, final.RowsInserted)
	assert.Equal(t, []string{"courses"}, final.AffectedTables)
	assert.Empty(t, final.Errors)
	require.NotNil(t, final.FinishedAt)

	count, _ := env.store.CountRows(context.Background(), "courses")
	assert.Equal(t, 3, count)

	// three rows with a batch size of two means two insert calls
	env.store.mu.Lock()
	calls := env.store.insertCalls
	env.store.mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestTabularJobPartialRowFailureStillCompletes(t *testing.T) {
	env := newPipelineEnv(t, nil)
	csv := "code,name,credits\nCS101,Algorithms,6\nCS102,Databases,six\n"

	job, err := env.pipeline.SubmitTabular(context.Background(), []IngestFile{
		{Name: "courses.csv", Data: []byte(csv), MimeType: "text/csv"},
	})
	require.NoError(t, err)

	final := waitForJob(t, env.pipeline, job.ID)
	assert.Equal(t, entity.JobCompleted, final.Status)
	assert.Equal(t, 2, final.RowsExtracted)
	assert.Equal(t, 1, final.RowsInserted)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, string(entity.ErrRowValidation), final.Errors[0].Kind)
}

func TestTabularJobFailsWhenNothingInserted(t *testing.T) {
	env := newPipelineEnv(t, nil)

	job, err := env.pipeline.SubmitTabular(context.Background(), []IngestFile{
		{Name: "unknown_table.csv", Data: []byte("a,b\n1,2\n"), MimeType: "text/csv"},
	})
	require.NoError(t, err)

	final := waitForJob(t, env.pipeline, job.ID)
	assert.Equal(t, entity.JobFailed, final.Status)
	assert.Equal(t, 0, final.RowsInserted)
	require.NotEmpty(t, final.Errors)
	assert.Equal(t, string(entity.ErrRowValidation), final.Errors[0].Kind)
}

func TestSubmitRejectsEmptyBatch(t *testing.T) {
	env := newPipelineEnv(t, nil)

	_, err := env.pipeline.SubmitTabular(context.Background(), nil)
	require.Error(t, err)
}

// ---- document jobs ----

func TestDocumentJobIndexesFile(t *testing.T) {
	env := newPipelineEnv(t, nil)
	content := strings.Repeat("The library opens at eight. Students may borrow five books. ", 20)

	job, err := env.pipeline.SubmitDocuments(context.Background(), []IngestFile{
		textFile("library.txt", content),
	})
	require.NoError(t, err)

	final := waitForJob(t, env.pipeline, job.ID)
	assert.Equal(t, entity.JobCompleted, final.Status)
	assert.Greater(t, final.ChunksIndexed, 0)
	assert.Empty(t, final.Errors)

	docs, total, err := env.pipeline.ListDocuments(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, entity.StatusCompleted, docs[0].Status)
	assert.Equal(t, final.ChunksIndexed, docs[0].TotalChunks)

	chunkCount, err := env.chunkRepo.CountByDocumentID(context.Background(), docs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, docs[0].TotalChunks, chunkCount)
}

func TestDocumentReuploadSupersedesPriorVersion(t *testing.T) {
	env := newPipelineEnv(t, nil)

	first, err := env.pipeline.SubmitDocuments(context.Background(), []IngestFile{
		textFile("handbook.txt", strings.Repeat("Old policy text. ", 30)),
	})
	require.NoError(t, err)
	waitForJob(t, env.pipeline, first.ID)

	second, err := env.pipeline.SubmitDocuments(context.Background(), []IngestFile{
		textFile("handbook.txt", strings.Repeat("New policy text. ", 30)),
	})
	require.NoError(t, err)
	waitForJob(t, env.pipeline, second.ID)

	_, total, err := env.pipeline.ListDocuments(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	ids := env.chunkRepo.documentIDs()
	require.Len(t, ids, 1)

	doc, err := env.docRepo.FindByID(context.Background(), ids[0])
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "handbook.txt", doc.OriginalName)
}

func TestReindexDeletesPriorBeforeReplacementIsLive(t *testing.T) {
	env := newPipelineEnv(t, nil)

	first, err := env.pipeline.SubmitDocuments(context.Background(), []IngestFile{
		textFile("handbook.txt", strings.Repeat("Old policy text. ", 30)),
	})
	require.NoError(t, err)
	waitForJob(t, env.pipeline, first.ID)

	// capture which chunk sets exist at the instant a version completes
	var mu sync.Mutex
	var liveAtCompletion [][]string
	env.docRepo.onStatus = func(id string, status entity.DocumentStatus) {
		if status != entity.StatusCompleted {
			return
		}
		mu.Lock()
		liveAtCompletion = append(liveAtCompletion, env.chunkRepo.documentIDs())
		mu.Unlock()
	}

	second, err := env.pipeline.SubmitDocuments(context.Background(), []IngestFile{
		textFile("handbook.txt", strings.Repeat("New policy text. ", 30)),
	})
	require.NoError(t, err)
	waitForJob(t, env.pipeline, second.ID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, liveAtCompletion, 1)
	assert.Len(t, liveAtCompletion[0], 1,
		"prior chunk set must be gone before the replacement becomes searchable")
}

func TestConcurrentReuploadsSerializeOnDocumentName(t *testing.T) {
	env := newPipelineEnv(t, nil)
	contentA := strings.Repeat("Version A of the handbook. ", 20)
	contentB := strings.Repeat("Version B of the handbook. ", 20)

	jobA, err := env.pipeline.SubmitDocuments(context.Background(), []IngestFile{textFile("handbook.txt", contentA)})
	require.NoError(t, err)
	jobB, err := env.pipeline.SubmitDocuments(context.Background(), []IngestFile{textFile("handbook.txt", contentB)})
	require.NoError(t, err)

	waitForJob(t, env.pipeline, jobA.ID)
	waitForJob(t, env.pipeline, jobB.ID)

	// whichever version won, exactly one complete chunk set survives
	ids := env.chunkRepo.documentIDs()
	require.Len(t, ids, 1)

	env.chunkRepo.mu.Lock()
	chunks := env.chunkRepo.chunks[ids[0]]
	env.chunkRepo.mu.Unlock()

	var sb strings.Builder
	for _, chunk := range chunks {
		sb.WriteString(chunk.Content[chunk.OverlapWithPrev:])
	}
	text := sb.String()
	assert.True(t, text == strings.TrimSpace(contentA) || text == strings.TrimSpace(contentB))
}

func TestDocumentJobFailsWhenEmbeddingFails(t *testing.T) {
	env := newPipelineEnv(t, nil)
	env.embedder.err = entity.NewDomainError(entity.ErrEmbedding, "", fmt.Errorf("provider unavailable"))

	job, err := env.pipeline.SubmitDocuments(context.Background(), []IngestFile{
		textFile("notes.txt", "Some content to index."),
	})
	require.NoError(t, err)

	final := waitForJob(t, env.pipeline, job.ID)
	assert.Equal(t, entity.JobFailed, final.Status)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, string(entity.ErrEmbedding), final.Errors[0].Kind)
	assert.Equal(t, "notes.txt", final.Errors[0].Item)

	// nothing half-indexed is left behind
	assert.Empty(t, env.chunkRepo.documentIDs())
}

func TestDocumentJobSkipsBadFileAndCompletes(t *testing.T) {
	env := newPipelineEnv(t, nil)

	job, err := env.pipeline.SubmitDocuments(context.Background(), []IngestFile{
		{Name: "photo.png", Data: []byte{0x89}, MimeType: "image/png"},
		textFile("notes.txt", strings.Repeat("Exam rules apply to everyone. ", 15)),
	})
	require.NoError(t, err)

	final := waitForJob(t, env.pipeline, job.ID)
	assert.Equal(t, entity.JobCompleted, final.Status)
	assert.Greater(t, final.ChunksIndexed, 0)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, "photo.png", final.Errors[0].Item)
	assert.Equal(t, string(entity.ErrUnsupportedMedia), final.Errors[0].Kind)
}

// ---- job lifecycle ----

func TestJobProgressNeverDecreases(t *testing.T) {
	recorder := &recordingJobStore{inner: memory.NewJobStore()}
	env := newPipelineEnv(t, recorder)

	files := []IngestFile{
		textFile("a.txt", strings.Repeat("First file content here. ", 20)),
		textFile("b.txt", strings.Repeat("Second file content here. ", 20)),
		textFile("c.txt", strings.Repeat("Third file content here. ", 20)),
	}
	job, err := env.pipeline.SubmitDocuments(context.Background(), files)
	require.NoError(t, err)
	waitForJob(t, env.pipeline, job.ID)

	recorder.mu.Lock()
	progress := append([]int(nil), recorder.progress...)
	recorder.mu.Unlock()

	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestCancelRunningJobFailsWithCancelledError(t *testing.T) {
	env := newPipelineEnv(t, nil)
	env.embedder.started = make(chan struct{}, 1)
	env.embedder.release = make(chan struct{})
	defer close(env.embedder.release)

	job, err := env.pipeline.SubmitDocuments(context.Background(), []IngestFile{
		textFile("a.txt", strings.Repeat("First file content here. ", 20)),
		textFile("b.txt", strings.Repeat("Second file content here. ", 20)),
	})
	require.NoError(t, err)

	// park the job mid-embedding, then cancel it
	<-env.embedder.started
	require.NoError(t, env.pipeline.Cancel(job.ID))

	final := waitForJob(t, env.pipeline, job.ID)
	assert.Equal(t, entity.JobFailed, final.Status)
	require.NotNil(t, final.FinishedAt)

	kinds := make([]string, 0, len(final.Errors))
	for _, itemErr := range final.Errors {
		kinds = append(kinds, itemErr.Kind)
	}
	assert.Contains(t, kinds, string(entity.ErrCancelled))

	// nothing half-indexed survives the cancellation
	assert.Empty(t, env.chunkRepo.documentIDs())
}

func TestCancelTerminalJobIsRejected(t *testing.T) {
	env := newPipelineEnv(t, nil)

	job, err := env.pipeline.SubmitTabular(context.Background(), []IngestFile{
		{Name: "courses.csv", Data: []byte("code,name,credits\nCS101,Algorithms,6\n"), MimeType: "text/csv"},
	})
	require.NoError(t, err)
	waitForJob(t, env.pipeline, job.ID)

	err = env.pipeline.Cancel(job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already")
}

func TestCancelUnknownJob(t *testing.T) {
	env := newPipelineEnv(t, nil)

	err := env.pipeline.Cancel("no-such-job")
	require.Error(t, err)
}

func TestDeleteDocumentRemovesChunksFirst(t *testing.T) {
	env := newPipelineEnv(t, nil)

	job, err := env.pipeline.SubmitDocuments(context.Background(), []IngestFile{
		textFile("notes.txt", strings.Repeat("Rules for the reading room. ", 15)),
	})
	require.NoError(t, err)
	waitForJob(t, env.pipeline, job.ID)

	docs, _, err := env.pipeline.ListDocuments(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, env.pipeline.DeleteDocument(context.Background(), docs[0].ID))

	assert.Empty(t, env.chunkRepo.documentIDs())
	doc, err := env.pipeline.GetDocument(context.Background(), docs[0].ID)
	require.NoError(t, err)
	assert.Nil(t, doc)
}
