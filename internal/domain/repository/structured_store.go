package repository

import "context"

// TableSchema describes one relational table exposed to SQL synthesis and
// tabular ingestion.
type TableSchema struct {
	Name    string
	Columns []ColumnSchema
}

type ColumnSchema struct {
	Name     string
	DataType string
}

// QueryResult holds the ordered output of one read-only statement.
type QueryResult struct {
	Columns []string
	Rows    []map[string]interface{}
}

// StructuredStore is the adapter over the relational side of the knowledge
// base: schema introspection, validated read-only execution, and batch
// insertion of ingested rows.
type StructuredStore interface {
	ExistingTables(ctx context.Context) ([]TableSchema, error)
	ExecuteSelect(ctx context.Context, statement string) (*QueryResult, error)
	InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}) (int, error)
	CountRows(ctx context.Context, table string) (int, error)
}
