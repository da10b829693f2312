package query

import (
	"context"
	"sort"
	"strings"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"
	"campus-assistant/pkg/logger"
)

// GeneratorGateway is the language-model side of the agent: one prompt in,
// one completion out, with explicit generation controls.
type GeneratorGateway interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error)
}

// SchemaVocabulary holds the terms the heuristic router matches questions
// against: table names, column names and their everyday synonyms.
type SchemaVocabulary struct {
	tableTerms  map[string]string // term -> table
	columnTerms map[string]bool
}

// Synonyms for institutional tables, so "who teaches math" hits
// faculty_members without the user knowing the schema.
var tableSynonyms = map[string][]string{
	"faculty_members":   {"faculty", "professor", "professors", "teacher", "teachers", "teaches", "instructor", "instructors", "staff"},
	"courses":           {"course", "courses", "class", "classes", "subject", "subjects", "credits"},
	"programs":          {"program", "programs", "degree", "degrees", "bachelor", "master"},
	"departments":       {"department", "departments"},
	"exams":             {"exam", "exams", "test", "tests", "midterm", "final"},
	"admissions":        {"admission", "admissions", "tuition", "fee", "fees", "scholarship", "scholarships", "apply", "deadline"},
	"academic_calendar": {"calendar", "semester", "holiday", "holidays", "schedule", "timetable"},
	"campus_services":   {"library", "cafeteria", "service", "services"},
	"student_clubs":     {"club", "clubs"},
	"faqs":              {"faq", "faqs"},
}

var ragTerms = []string{
	"why", "how", "explain", "describe", "about", "history", "policy",
	"policies", "rule", "rules", "regulation", "regulations", "overview",
	"guide", "information", "tell",
}

func NewSchemaVocabulary(schemas []repository.TableSchema) *SchemaVocabulary {
	v := &SchemaVocabulary{
		tableTerms:  map[string]string{},
		columnTerms: map[string]bool{},
	}
	for _, schema := range schemas {
		v.tableTerms[schema.Name] = schema.Name
		v.tableTerms[strings.TrimSuffix(schema.Name, "s")] = schema.Name
		for _, syn := range tableSynonyms[schema.Name] {
			v.tableTerms[syn] = schema.Name
		}
		for _, col := range schema.Columns {
			if col.Name == "id" || strings.HasSuffix(col.Name, "_id") {
				continue
			}
			v.columnTerms[col.Name] = true
		}
	}
	return v
}

// Router classifies a question as rag, sql or hybrid. The heuristic scorer
// runs first; the model is asked only when neither signal is confident.
type Router struct {
	vocab        *SchemaVocabulary
	generator    GeneratorGateway
	sqlThreshold float64
	ragThreshold float64
	log          *logger.Logger
}

func NewRouter(vocab *SchemaVocabulary, generator GeneratorGateway, sqlThreshold, ragThreshold float64, log *logger.Logger) *Router {
	return &Router{
		vocab:        vocab,
		generator:    generator,
		sqlThreshold: sqlThreshold,
		ragThreshold: ragThreshold,
		log:          log,
	}
}

// Classify produces a fresh QueryIntent for the question. Results are never
// cached across turns.
func (r *Router) Classify(ctx context.Context, question string, history []string) entity.QueryIntent {
	sqlScore, ragScore, matched := r.score(question)

	sqlConfident := sqlScore >= r.sqlThreshold
	ragConfident := ragScore >= r.ragThreshold

	switch {
	case sqlConfident && ragConfident:
		return entity.QueryIntent{Route: entity.RouteHybrid, Confidence: maxFloat(sqlScore, ragScore), MatchedEntities: matched}
	case sqlConfident:
		return entity.QueryIntent{Route: entity.RouteSQL, Confidence: sqlScore, MatchedEntities: matched}
	case ragConfident:
		return entity.QueryIntent{Route: entity.RouteRAG, Confidence: ragScore, MatchedEntities: matched}
	}

	// neither signal is confident: one model call, then documents as the
	// fallback knowledge source
	route := r.classifyWithModel(ctx, question, history)
	return entity.QueryIntent{Route: route, Confidence: maxFloat(sqlScore, ragScore), MatchedEntities: matched}
}

func (r *Router) score(question string) (sqlScore, ragScore float64, matched []string) {
	tokens := tokenize(question)

	matchedTables := map[string]bool{}
	columnHits := 0
	ragHits := 0

	for _, token := range tokens {
		if table, ok := r.vocab.tableTerms[token]; ok {
			matchedTables[table] = true
		}
		if r.vocab.columnTerms[token] {
			columnHits++
		}
	}
	for _, term := range ragTerms {
		for _, token := range tokens {
			if token == term {
				ragHits++
				break
			}
		}
	}

	sqlScore = minFloat(1.0, 0.45*float64(len(matchedTables))+0.15*float64(columnHits))
	ragScore = minFloat(1.0, 0.25*float64(ragHits))

	matched = make([]string, 0, len(matchedTables))
	for table := range matchedTables {
		matched = append(matched, table)
	}
	sort.Strings(matched)
	return sqlScore, ragScore, matched
}

const classifySystemPrompt = `You route questions for a university assistant.
Answer with exactly one word:
- "sql" if the question asks for records like courses, schedules, staff, fees
- "rag" if the question asks about unstructured topics, policies or explanations
- "hybrid" if it needs both`

func (r *Router) classifyWithModel(ctx context.Context, question string, history []string) entity.QueryRoute {
	userPrompt := question
	if len(history) > 0 {
		userPrompt = "Earlier messages:\n" + strings.Join(history, "\n") + "\n\nQuestion: " + question
	}

	answer, err := r.generator.Generate(ctx, classifySystemPrompt, userPrompt, 0, 4)
	if err != nil {
		r.log.Warn("route classification call failed", "error", err)
		return entity.RouteRAG
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "sql":
		return entity.RouteSQL
	case "hybrid":
		return entity.RouteHybrid
	case "rag":
		return entity.RouteRAG
	default:
		return entity.RouteRAG
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
