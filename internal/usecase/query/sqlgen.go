package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"
	"campus-assistant/pkg/logger"
)

// SQLSynthesizer turns a question into one validated read-only SELECT and
// executes it. Generation gets exactly one retry with the validation error
// as a hint; the statement never reaches the database unvalidated.
type SQLSynthesizer struct {
	generator GeneratorGateway
	store     repository.StructuredStore
	log       *logger.Logger
}

func NewSQLSynthesizer(generator GeneratorGateway, store repository.StructuredStore, log *logger.Logger) *SQLSynthesizer {
	return &SQLSynthesizer{
		generator: generator,
		store:     store,
		log:       log,
	}
}

// SQLEvidence carries the executed statement and its rows. Zero rows is a
// valid outcome, not an error.
type SQLEvidence struct {
	Statement string
	Result    *repository.QueryResult
}

func (s *SQLSynthesizer) Synthesize(ctx context.Context, question string) (*SQLEvidence, error) {
	schemas, err := s.store.ExistingTables(ctx)
	if err != nil {
		return nil, entity.NewDomainError(entity.ErrExecution, "", fmt.Errorf("schema introspection: %w", err))
	}
	if len(schemas) == 0 {
		return nil, entity.NewDomainError(entity.ErrSQLSynthesis, "", fmt.Errorf("no tables available"))
	}

	systemPrompt := buildSQLSystemPrompt(schemas)
	tables := declaredTables(schemas)
	columns := declaredColumns(schemas)

	statement, err := s.generateValidated(ctx, systemPrompt, question, tables, columns)
	if err != nil {
		return nil, err
	}

	result, err := s.store.ExecuteSelect(ctx, statement)
	if err != nil {
		return nil, err
	}

	s.log.Debug("sql evidence gathered", "statement", statement, "rows", len(result.Rows))
	return &SQLEvidence{Statement: statement, Result: result}, nil
}

func (s *SQLSynthesizer) generateValidated(ctx context.Context, systemPrompt, question string, tables, columns map[string]bool) (string, error) {
	userPrompt := fmt.Sprintf("Question: %s\n\nGenerate the most relevant SELECT query:", question)

	raw, err := s.generator.Generate(ctx, systemPrompt, userPrompt, 0.1, 400)
	if err != nil {
		return "", entity.NewDomainError(entity.ErrSQLSynthesis, "", fmt.Errorf("generation failed: %w", err))
	}

	statement := cleanSQL(raw)
	validationErr := ValidateReadOnlySQL(statement, tables, columns)
	if validationErr == nil {
		return statement, nil
	}

	// one retry, feeding the validation error back as a hint
	s.log.Debug("generated sql rejected, retrying", "error", validationErr)
	retryPrompt := fmt.Sprintf(
		"Question: %s\n\nYour previous statement was rejected: %v\nPrevious statement: %s\n\nGenerate a corrected SELECT query:",
		question, validationErr, statement,
	)
	raw, err = s.generator.Generate(ctx, systemPrompt, retryPrompt, 0.1, 400)
	if err != nil {
		return "", entity.NewDomainError(entity.ErrSQLSynthesis, "", fmt.Errorf("retry generation failed: %w", err))
	}

	statement = cleanSQL(raw)
	if err := ValidateReadOnlySQL(statement, tables, columns); err != nil {
		return "", entity.NewDomainError(entity.ErrSQLSynthesis, "", err)
	}
	return statement, nil
}

var (
	sqlFenceRe      = regexp.MustCompile("(?i)```sql\\s*|```\\s*")
	sqlSpaceRe      = regexp.MustCompile(`\s+`)
	tableRefRe      = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_][a-zA-Z0-9_."]*)`)
	forbiddenVerbRe = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|copy|merge|call|into)\b`)
	stringLitRe     = regexp.MustCompile(`'(?:[^']|'')*'`)
	tableAliasRe    = regexp.MustCompile(`(?i)\b(?:from|join)\s+[a-zA-Z_][a-zA-Z0-9_."]*(?:\s+(?:as\s+)?([a-zA-Z_][a-zA-Z0-9_]*))?`)
	columnAliasRe   = regexp.MustCompile(`(?i)\bas\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	identRe         = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_.]*`)
)

// sqlKeywords covers the SELECT grammar, common functions and type names,
// so the identifier scan only ever sees things that must be declared.
var sqlKeywords = map[string]bool{
	"select": true, "from": true, "join": true, "inner": true, "left": true,
	"right": true, "full": true, "outer": true, "cross": true, "on": true,
	"where": true, "and": true, "or": true, "not": true, "in": true,
	"is": true, "null": true, "like": true, "ilike": true, "between": true,
	"order": true, "by": true, "group": true, "having": true, "limit": true,
	"offset": true, "as": true, "distinct": true, "union": true, "all": true,
	"any": true, "exists": true, "case": true, "when": true, "then": true,
	"else": true, "end": true, "asc": true, "desc": true, "nulls": true,
	"first": true, "last": true, "true": true, "false": true, "using": true,
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"lower": true, "upper": true, "trim": true, "length": true, "round": true,
	"coalesce": true, "nullif": true, "concat": true, "substring": true,
	"cast": true, "extract": true, "date_part": true, "date_trunc": true,
	"now": true, "current_date": true, "current_timestamp": true,
	"interval": true, "date": true, "time": true, "timestamp": true,
	"text": true, "integer": true, "numeric": true, "boolean": true,
	"varchar": true, "char": true,
}

func cleanSQL(raw string) string {
	cleaned := sqlFenceRe.ReplaceAllString(raw, "")
	cleaned = sqlSpaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// ValidateReadOnlySQL rejects anything but a single SELECT over declared
// tables and columns. It runs before every execution, including the retry.
func ValidateReadOnlySQL(statement string, declaredTables, declaredColumns map[string]bool) error {
	if statement == "" {
		return fmt.Errorf("empty statement")
	}

	body := strings.TrimSuffix(strings.TrimSpace(statement), ";")
	if strings.Contains(body, ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}

	if !strings.HasPrefix(strings.ToUpper(body), "SELECT") {
		return fmt.Errorf("only SELECT statements are allowed")
	}

	if match := forbiddenVerbRe.FindString(body); match != "" {
		return fmt.Errorf("forbidden keyword %q", strings.ToUpper(match))
	}

	refs := tableRefRe.FindAllStringSubmatch(body, -1)
	if len(refs) == 0 {
		return fmt.Errorf("no table reference found")
	}
	for _, ref := range refs {
		table := strings.ToLower(strings.Trim(ref[1], `"`))
		if dot := strings.IndexByte(table, '.'); dot >= 0 {
			table = table[dot+1:]
		}
		if !declaredTables[table] {
			return fmt.Errorf("undeclared table %q", table)
		}
	}

	return checkDeclaredColumns(body, declaredTables, declaredColumns)
}

// checkDeclaredColumns scans every bare identifier left after stripping
// string literals and checks it against the declared column set, table
// aliases and column aliases introduced in the statement itself.
func checkDeclaredColumns(body string, declaredTables, declaredColumns map[string]bool) error {
	scrubbed := stringLitRe.ReplaceAllString(body, "''")

	aliases := map[string]bool{}
	for _, m := range tableAliasRe.FindAllStringSubmatch(scrubbed, -1) {
		if alias := strings.ToLower(m[1]); alias != "" && !sqlKeywords[alias] {
			aliases[alias] = true
		}
	}
	for _, m := range columnAliasRe.FindAllStringSubmatch(scrubbed, -1) {
		if alias := strings.ToLower(m[1]); alias != "" {
			aliases[alias] = true
		}
	}

	for _, ident := range identRe.FindAllString(scrubbed, -1) {
		for _, part := range strings.Split(strings.ToLower(ident), ".") {
			part = strings.Trim(part, `"`)
			if part == "" || part == "public" || sqlKeywords[part] {
				continue
			}
			if declaredTables[part] || declaredColumns[part] || aliases[part] {
				continue
			}
			return fmt.Errorf("undeclared column %q", part)
		}
	}
	return nil
}

func declaredTables(schemas []repository.TableSchema) map[string]bool {
	declared := make(map[string]bool, len(schemas))
	for _, schema := range schemas {
		declared[schema.Name] = true
	}
	return declared
}

func declaredColumns(schemas []repository.TableSchema) map[string]bool {
	declared := map[string]bool{}
	for _, schema := range schemas {
		for _, col := range schema.Columns {
			declared[col.Name] = true
		}
	}
	return declared
}

// buildSQLSystemPrompt renders the live schema into the generation
// instruction set: read-only, declared identifiers only, fuzzy matching,
// explicit columns, no ids surfaced to users.
func buildSQLSystemPrompt(schemas []repository.TableSchema) string {
	var sb strings.Builder
	sb.WriteString("You are a PostgreSQL expert and a search-oriented SQL assistant.\n")
	sb.WriteString("Generate one safe, read-only SELECT query that retrieves the most relevant results for the user's question, even when names are misspelled or approximate.\n\n")
	sb.WriteString("DATABASE SCHEMA:\n")
	for _, schema := range schemas {
		sb.WriteString(schema.Name)
		sb.WriteString("(")
		for i, col := range schema.Columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(col.Name)
			sb.WriteString(" ")
			sb.WriteString(col.DataType)
		}
		sb.WriteString(")\n")
	}
	sb.WriteString(`
RULES:
1. Generate ONLY a single SELECT statement.
2. Use ONLY the tables and columns listed above.
3. Return ONLY raw SQL, no markdown and no explanations.
4. Never modify data: no INSERT, UPDATE, DELETE, DROP.
5. List columns explicitly instead of SELECT *.
6. Never return id or foreign key columns; resolve them with JOINs to human-readable fields.
7. Prefer case-insensitive partial matching with ILIKE '%value%' over exact equality.
8. Always include a LIMIT, typically 5-10.
9. If no confident filter can be inferred, return a reasonable sample of rows.`)
	return sb.String()
}
