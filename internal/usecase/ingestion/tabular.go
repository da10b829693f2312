package ingestion

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"

	"github.com/xuri/excelize/v2"
)

// RowSet is the validated, type-coerced output of parsing one tabular file.
// Per-row problems land in RowErrors without discarding the rest of the file.
type RowSet struct {
	Table     string
	Columns   []string
	Rows      [][]interface{}
	RowErrors []entity.JobItemError
	Extracted int
}

type TabularParser struct{}

func NewTabularParser() *TabularParser {
	return &TabularParser{}
}

// Parse decodes a CSV/XLSX/JSON file into rows for the table named by
// tableHint (or the filename stem), validating the header against the
// declared column set and coercing cell values to the column types.
func (p *TabularParser) Parse(filename string, data []byte, tableHint string, schemas []repository.TableSchema) (*RowSet, error) {
	table := tableHint
	if table == "" {
		table = tableNameFromFilename(filename)
	}

	schema := findSchema(schemas, table)
	if schema == nil {
		return nil, entity.NewDomainError(entity.ErrRowValidation, filename,
			fmt.Errorf("unknown target table %q", table))
	}

	var header []string
	var records [][]string
	var err error

	switch {
	case hasExt(filename, ".csv"):
		header, records, err = parseCSV(data)
	case hasExt(filename, ".xlsx"):
		header, records, err = parseXLSX(data)
	case hasExt(filename, ".json"):
		header, records, err = parseJSONRows(data)
	default:
		return nil, entity.NewDomainError(entity.ErrUnsupportedMedia, filename,
			fmt.Errorf("unsupported tabular format"))
	}
	if err != nil {
		return nil, entity.NewDomainError(entity.ErrDecodeFailure, filename, err)
	}
	if len(header) == 0 {
		return nil, entity.NewDomainError(entity.ErrDecodeFailure, filename,
			fmt.Errorf("no header row found"))
	}

	columnTypes := make([]string, len(header))
	for i, col := range header {
		colSchema := findColumn(schema, col)
		if colSchema == nil {
			return nil, entity.NewDomainError(entity.ErrRowValidation, filename,
				fmt.Errorf("column %q is not declared on table %q", col, table))
		}
		header[i] = colSchema.Name
		columnTypes[i] = colSchema.DataType
	}

	result := &RowSet{
		Table:     table,
		Columns:   header,
		Extracted: len(records),
	}

	for rowIndex, record := range records {
		if len(record) != len(header) {
			result.RowErrors = append(result.RowErrors, entity.JobItemError{
				Item:    fmt.Sprintf("%s:row %d", filename, rowIndex+1),
				Kind:    string(entity.ErrRowValidation),
				Message: fmt.Sprintf("expected %d columns, got %d", len(header), len(record)),
			})
			continue
		}

		row := make([]interface{}, len(record))
		coerceErr := ""
		for i, cell := range record {
			value, err := coerceValue(cell, columnTypes[i])
			if err != nil {
				coerceErr = fmt.Sprintf("column %q: %v", header[i], err)
				break
			}
			row[i] = value
		}
		if coerceErr != "" {
			result.RowErrors = append(result.RowErrors, entity.JobItemError{
				Item:    fmt.Sprintf("%s:row %d", filename, rowIndex+1),
				Kind:    string(entity.ErrRowValidation),
				Message: coerceErr,
			})
			continue
		}

		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

func parseCSV(data []byte) ([]string, [][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	all, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return normalizeHeader(all[0]), all[1:], nil
}

func parseXLSX(data []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	header := normalizeHeader(rows[0])
	// excelize drops trailing empty cells, so pad short rows
	records := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		for len(row) < len(header) {
			row = append(row, "")
		}
		records = append(records, row)
	}
	return header, records, nil
}

// parseJSONRows accepts an array of flat objects and flattens it to
// header+records form, using the first object's keys as the column set.
func parseJSONRows(data []byte) ([]string, [][]string, error) {
	var objects []map[string]json.RawMessage
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, nil, fmt.Errorf("failed to parse JSON rows: %w", err)
	}
	if len(objects) == 0 {
		return nil, nil, nil
	}

	var header []string
	for key := range objects[0] {
		header = append(header, key)
	}
	sort.Strings(header)

	records := make([][]string, 0, len(objects))
	for _, obj := range objects {
		record := make([]string, len(header))
		for i, key := range header {
			raw, ok := obj[key]
			if !ok {
				continue
			}
			var asString string
			if err := json.Unmarshal(raw, &asString); err == nil {
				record[i] = asString
			} else {
				record[i] = strings.Trim(string(raw), `"`)
			}
		}
		records = append(records, record)
	}
	return normalizeHeader(header), records, nil
}

// coerceValue converts a raw cell into the Go value matching the declared
// column type. Empty cells become NULL.
func coerceValue(cell, dataType string) (interface{}, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}

	dt := strings.ToLower(dataType)
	switch {
	case strings.Contains(dt, "int"):
		n, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", cell)
		}
		return n, nil
	case strings.Contains(dt, "numeric"), strings.Contains(dt, "decimal"),
		strings.Contains(dt, "double"), strings.Contains(dt, "real"):
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", cell)
		}
		return f, nil
	case strings.Contains(dt, "bool"):
		b, err := strconv.ParseBool(cell)
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", cell)
		}
		return b, nil
	case strings.Contains(dt, "timestamp"):
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, cell); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("not a timestamp: %q", cell)
	case strings.Contains(dt, "date"):
		t, err := time.Parse("2006-01-02", cell)
		if err != nil {
			return nil, fmt.Errorf("not a date: %q", cell)
		}
		return t, nil
	default:
		return cell, nil
	}
}

func tableNameFromFilename(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.ToLower(stem)
	var sb strings.Builder
	for _, r := range stem {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

func findSchema(schemas []repository.TableSchema, table string) *repository.TableSchema {
	for i := range schemas {
		if schemas[i].Name == table {
			return &schemas[i]
		}
	}
	return nil
}

func findColumn(schema *repository.TableSchema, column string) *repository.ColumnSchema {
	normalized := strings.ToLower(strings.TrimSpace(column))
	for i := range schema.Columns {
		if schema.Columns[i].Name == normalized {
			return &schema.Columns[i]
		}
	}
	return nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, col := range header {
		out[i] = strings.ToLower(strings.TrimSpace(col))
	}
	return out
}
