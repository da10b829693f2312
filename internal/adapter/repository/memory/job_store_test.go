package memory

import (
	"context"
	"testing"

	"campus-assistant/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createJob(t *testing.T, store *JobStore) *entity.IngestionJob {
	t.Helper()
	job := &entity.IngestionJob{Kind: entity.JobKindDocuments, InputFiles: []string{"a.txt"}}
	require.NoError(t, store.Create(context.Background(), job))
	return job
}

func TestCreateAssignsIDAndDefaults(t *testing.T) {
	store := NewJobStore().(*JobStore)
	job := createJob(t, store)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, entity.JobQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	found, err := store.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, job.ID, found.ID)
}

func TestFindByIDUnknownReturnsNil(t *testing.T) {
	store := NewJobStore().(*JobStore)

	found, err := store.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestUpdateKeepsProgressMonotonic(t *testing.T) {
	store := NewJobStore().(*JobStore)
	job := createJob(t, store)

	updated, err := store.Update(context.Background(), job.ID, func(j *entity.IngestionJob) {
		j.Progress = 60
	})
	require.NoError(t, err)
	assert.Equal(t, 60, updated.Progress)

	updated, err = store.Update(context.Background(), job.ID, func(j *entity.IngestionJob) {
		j.Progress = 40
	})
	require.NoError(t, err)
	assert.Equal(t, 60, updated.Progress)

	updated, err = store.Update(context.Background(), job.ID, func(j *entity.IngestionJob) {
		j.Progress = 250
	})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Progress)
}

func TestUpdateNeverMovesStatusBackward(t *testing.T) {
	store := NewJobStore().(*JobStore)
	job := createJob(t, store)

	updated, err := store.Update(context.Background(), job.ID, func(j *entity.IngestionJob) {
		j.Status = entity.JobInserting
	})
	require.NoError(t, err)
	assert.Equal(t, entity.JobInserting, updated.Status)

	// a later file re-entering the parsing stage must not be visible
	updated, err = store.Update(context.Background(), job.ID, func(j *entity.IngestionJob) {
		j.Status = entity.JobParsing
	})
	require.NoError(t, err)
	assert.Equal(t, entity.JobInserting, updated.Status)
}

func TestUpdateFreezesTerminalJobs(t *testing.T) {
	store := NewJobStore().(*JobStore)
	job := createJob(t, store)

	updated, err := store.Update(context.Background(), job.ID, func(j *entity.IngestionJob) {
		j.Status = entity.JobCompleted
	})
	require.NoError(t, err)
	assert.Equal(t, entity.JobCompleted, updated.Status)
	assert.Equal(t, 100, updated.Progress)
	require.NotNil(t, updated.FinishedAt)

	_, err = store.Update(context.Background(), job.ID, func(j *entity.IngestionJob) {
		j.Status = entity.JobFailed
	})
	require.Error(t, err)
}

func TestFindByIDReturnsIsolatedCopy(t *testing.T) {
	store := NewJobStore().(*JobStore)
	job := createJob(t, store)

	first, err := store.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	first.Errors = append(first.Errors, entity.JobItemError{Item: "tampered"})
	first.InputFiles[0] = "tampered"

	second, err := store.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Empty(t, second.Errors)
	assert.Equal(t, "a.txt", second.InputFiles[0])
}
