package query

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/internal/domain/repository"
	"campus-assistant/pkg/logger"
)

// DeclineMessage is the polite refusal used whenever the evidence does not
// support an answer.
const DeclineMessage = "We currently do not have information about this topic."

// Composer merges retrieved context and query results into the structured
// response contract, with the grounding constraint applied at generation
// time and the schema invariant enforced before anything is emitted.
type Composer struct {
	generator   GeneratorGateway
	temperature float32
	maxTokens   int
	log         *logger.Logger
}

func NewComposer(generator GeneratorGateway, temperature float32, maxTokens int, log *logger.Logger) *Composer {
	return &Composer{
		generator:   generator,
		temperature: temperature,
		maxTokens:   maxTokens,
		log:         log,
	}
}

const composeSystemPrompt = `You are a university virtual assistant.

Answer student and staff questions accurately and professionally, using ONLY
the information provided in the CONTEXT section (unstructured text) and the
STRUCTURED_DATA section (JSON rows from the database).

RESPONSE FORMAT:
Return a valid JSON object and NOTHING else, with EXACTLY this structure:
{
  "intro_message": "string",
  "content": {
    "structured": [
      {
        "message": "string",
        "components": [
          {
            "component_type": "table | cards | list | text",
            "table_layout": {"columns": [{"key": "string", "label": "string"}], "rows": [{"<column_key>": "value"}]},
            "cards_layout": {"cards": [{"title": "string", "subtitle": "string", "meta": [{"label": "head | body | image | footer", "value": "string"}]}]},
            "list_layout": {"items": [{"text": "string"}]},
            "text_layout": {"content": "string"}
          }
        ]
      }
    ],
    "rawtext": "string"
  }
}

LAYOUT RULES:
- Use ONLY ONE layout per component, matching component_type.
- Do NOT include unused layout objects.
- table for schedules, exams, grades; cards for courses and instructors;
  list for rules and notes; text for everything else.
- cards meta labels MUST be one of: head, body, image, footer.
- If structured data contains image urls, present them with a cards layout.

DATA USAGE RULES:
- Never invent facts that are not in CONTEXT or STRUCTURED_DATA.
- If the evidence is insufficient, decline politely: set rawtext and a single
  text component to a short message saying the information is not available.
- Never mention databases, SQL, retrieval or any internal mechanics.`

// Compose always returns a renderable response; every failure path folds
// into a decline rather than an error payload.
func (c *Composer) Compose(ctx context.Context, question string, ragCtx *RetrievedContext, sqlEv *SQLEvidence) *entity.StructuredResponse {
	hasContext := !ragCtx.Empty()
	hasRows := sqlEv != nil && sqlEv.Result != nil

	if !hasContext && !hasRows {
		return entity.NewDeclineResponse(DeclineMessage)
	}

	contextText := ""
	if hasContext {
		contextText = ragCtx.Text
	}
	structuredData := ""
	if hasRows {
		if encoded, err := json.Marshal(sqlEv.Result.Rows); err == nil {
			structuredData = string(encoded)
		}
	}

	userPrompt := fmt.Sprintf("***CONTEXT***\n%s\n\n***STRUCTURED_DATA***\n%s\n\n***MESSAGE***\n%s",
		contextText, structuredData, question)

	raw, err := c.generator.Generate(ctx, composeSystemPrompt, userPrompt, c.temperature, c.maxTokens)
	if err != nil {
		c.log.Warn("grounded generation failed", "error", err)
		return c.fallback(sqlEv)
	}

	response, err := parseModelResponse(raw)
	if err != nil {
		c.log.Warn("model response rejected", "error", err)
		return c.fallback(sqlEv)
	}

	if response.Content.RawText == "" {
		response.Content.RawText = response.IntroMessage
	}
	if response.Content.Structured == nil {
		response.Content.Structured = []entity.StructuredSection{}
	}
	return response
}

var jsonFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*|```\\s*$")

func parseModelResponse(raw string) (*entity.StructuredResponse, error) {
	cleaned := strings.TrimSpace(jsonFenceRe.ReplaceAllString(strings.TrimSpace(raw), ""))

	var response entity.StructuredResponse
	if err := json.Unmarshal([]byte(cleaned), &response); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := response.Validate(); err != nil {
		return nil, fmt.Errorf("response violates component schema: %w", err)
	}
	return &response, nil
}

// fallback formats the query result directly when the model output was
// unusable. With no result either, it declines.
func (c *Composer) fallback(sqlEv *SQLEvidence) *entity.StructuredResponse {
	if sqlEv == nil || sqlEv.Result == nil {
		return entity.NewDeclineResponse(DeclineMessage)
	}

	message := "Here are the matching records."
	if len(sqlEv.Result.Rows) == 0 {
		message = "No matching records were found."
	}

	return &entity.StructuredResponse{
		IntroMessage: message,
		Content: entity.ResponseContent{
			Structured: []entity.StructuredSection{
				{
					Message:    message,
					Components: []entity.Component{ComponentForResult(sqlEv.Result)},
				},
			},
			RawText: message,
		},
	}
}

// ComponentForResult picks the layout for a direct row rendering: single
// column results read as an enumeration, small named-entity sets as cards,
// everything else as a table. Zero rows stay a table so "no matching
// records" renders as an empty result, not an error.
func ComponentForResult(result *repository.QueryResult) entity.Component {
	if len(result.Rows) == 0 {
		return entity.NewTableComponent(tableColumns(result.Columns), nil)
	}

	if len(result.Columns) == 1 {
		items := make([]string, 0, len(result.Rows))
		for _, row := range result.Rows {
			items = append(items, stringify(row[result.Columns[0]]))
		}
		return entity.NewListComponent(items)
	}

	if titleCol := entityTitleColumn(result.Columns); titleCol != "" && len(result.Rows) <= 5 {
		cards := make([]entity.Card, 0, len(result.Rows))
		for _, row := range result.Rows {
			card := entity.Card{Title: stringify(row[titleCol])}
			for _, col := range result.Columns {
				if col == titleCol {
					continue
				}
				value := stringify(row[col])
				if value == "" {
					continue
				}
				label := entity.CardMetaBody
				if strings.Contains(col, "image") {
					label = entity.CardMetaImage
				}
				card.Meta = append(card.Meta, entity.CardMeta{
					Label: label,
					Value: fmt.Sprintf("%s: %s", columnLabel(col), value),
				})
			}
			cards = append(cards, card)
		}
		return entity.NewCardsComponent(cards)
	}

	rows := make([]map[string]interface{}, 0, len(result.Rows))
	for _, row := range result.Rows {
		out := map[string]interface{}{}
		for _, col := range result.Columns {
			out[col] = row[col]
		}
		rows = append(rows, out)
	}
	return entity.NewTableComponent(tableColumns(result.Columns), rows)
}

func tableColumns(columns []string) []entity.TableColumn {
	out := make([]entity.TableColumn, 0, len(columns))
	for _, col := range columns {
		out = append(out, entity.TableColumn{Key: col, Label: columnLabel(col)})
	}
	return out
}

func entityTitleColumn(columns []string) string {
	for _, col := range columns {
		if col == "name" || col == "title" {
			return col
		}
	}
	return ""
}

func columnLabel(column string) string {
	words := strings.Split(column, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
