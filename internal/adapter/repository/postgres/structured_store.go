package postgres

import (
	"context"
	"fmt"
	"strings"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"

	"github.com/jmoiron/sqlx"
)

type structuredStore struct {
	db *sqlx.DB
}

// NewStructuredStore wraps the institutional tables (courses, departments,
// faculty and so on) behind introspection, read-only execution and batch
// insertion. The document/chunk tables are excluded from the exposed schema.
func NewStructuredStore(db *sqlx.DB) repository.StructuredStore {
	return &structuredStore{db: db}
}

var internalTables = map[string]bool{
	"documents":       true,
	"document_chunks": true,
}

// ExistingTables introspects the public schema and returns the tables exposed
// to SQL synthesis and tabular ingestion, with their columns in ordinal order.
func (s *structuredStore) ExistingTables(ctx context.Context) ([]repository.TableSchema, error) {
	query := `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema: %w", err)
	}
	defer rows.Close()

	var tables []repository.TableSchema
	byName := map[string]int{}
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return nil, err
		}
		if internalTables[table] {
			continue
		}
		idx, ok := byName[table]
		if !ok {
			tables = append(tables, repository.TableSchema{Name: table})
			idx = len(tables) - 1
			byName[table] = idx
		}
		tables[idx].Columns = append(tables[idx].Columns, repository.ColumnSchema{
			Name:     column,
			DataType: dataType,
		})
	}

	return tables, rows.Err()
}

// ExecuteSelect runs one already-validated read-only statement and returns
// ordered rows keyed by column name.
func (s *structuredStore) ExecuteSelect(ctx context.Context, statement string) (*repository.QueryResult, error) {
	rows, err := s.db.QueryxContext(ctx, statement)
	if err != nil {
		return nil, entity.NewDomainError(entity.ErrExecution, "", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, entity.NewDomainError(entity.ErrExecution, "", err)
	}

	result := &repository.QueryResult{
		Columns: columns,
		Rows:    []map[string]interface{}{},
	}

	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, entity.NewDomainError(entity.ErrExecution, "", err)
		}
		// sqlx hands text columns back as []byte
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, entity.NewDomainError(entity.ErrExecution, "", err)
	}

	return result, nil
}

// InsertRows batch-inserts validated rows into one table. Returns the number
// of rows actually inserted; duplicates are skipped via ON CONFLICT DO NOTHING.
func (s *structuredStore) InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, entity.NewDomainError(entity.ErrExecution, table, err)
	}
	defer tx.Rollback()

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = fmt.Sprintf("%q", col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(
		`INSERT INTO %q (%s) VALUES (%s) ON CONFLICT DO NOTHING`,
		table,
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	inserted := 0
	for _, row := range rows {
		res, err := tx.ExecContext(ctx, query, row...)
		if err != nil {
			return 0, entity.NewDomainError(entity.ErrExecution, table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, entity.NewDomainError(entity.ErrExecution, table, err)
	}
	return inserted, nil
}

func (s *structuredStore) CountRows(ctx context.Context, table string) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)
	if err := s.db.GetContext(ctx, &count, query); err != nil {
		return 0, entity.NewDomainError(entity.ErrExecution, table, err)
	}
	return count, nil
}
