package entity

import "time"

type JobKind string

const (
	JobKindDocuments JobKind = "documents"
	JobKindTabular   JobKind = "tabular"
)

type JobStatus string

// Stage order is fixed; a job only ever moves forward through it.
const (
	JobQueued       JobStatus = "queued"
	JobScanning     JobStatus = "scanning"
	JobParsing      JobStatus = "parsing"
	JobValidating   JobStatus = "validating"
	JobTransforming JobStatus = "transforming"
	JobInserting    JobStatus = "inserting"
	JobEmbedding    JobStatus = "embedding"
	JobVerifying    JobStatus = "verifying"
	JobCompleted    JobStatus = "completed"
	JobFailed       JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

var stageRank = map[JobStatus]int{
	JobQueued:       0,
	JobScanning:     1,
	JobParsing:      2,
	JobValidating:   3,
	JobTransforming: 4,
	JobInserting:    5,
	JobEmbedding:    5,
	JobVerifying:    6,
	JobCompleted:    7,
	JobFailed:       7,
}

// Rank orders stages so a job's reported status never moves backward, even
// when a multi-file batch revisits earlier work for later files.
func (s JobStatus) Rank() int {
	return stageRank[s]
}

// JobItemError records a single failed file or row without failing the batch.
type JobItemError struct {
	Item    string `json:"item"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type IngestionJob struct {
	ID             string         `json:"id"`
	Kind           JobKind        `json:"kind"`
	Status         JobStatus      `json:"status"`
	Progress       int            `json:"progress"`
	InputFiles     []string       `json:"inputFiles"`
	RowsExtracted  int            `json:"rowsExtracted"`
	RowsInserted   int            `json:"rowsInserted"`
	ChunksIndexed  int            `json:"chunksIndexed"`
	AffectedTables []string       `json:"affectedTables"`
	Errors         []JobItemError `json:"errors,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	FinishedAt     *time.Time     `json:"finishedAt,omitempty"`
}
