package entity

import "fmt"

// StructuredResponse is the rendering contract with the chat frontend. The
// frontend renders it without further interpretation, so the shape below is
// fixed: every component carries exactly one layout matching its type.
type StructuredResponse struct {
	IntroMessage string          `json:"intro_message"`
	Content      ResponseContent `json:"content"`
}

type ResponseContent struct {
	Structured []StructuredSection `json:"structured"`
	RawText    string              `json:"rawtext"`
}

type StructuredSection struct {
	Message    string      `json:"message"`
	Components []Component `json:"components"`
}

type ComponentType string

const (
	ComponentTable ComponentType = "table"
	ComponentCards ComponentType = "cards"
	ComponentList  ComponentType = "list"
	ComponentText  ComponentType = "text"
)

type Component struct {
	Type        ComponentType `json:"component_type"`
	TableLayout *TableLayout  `json:"table_layout,omitempty"`
	CardsLayout *CardsLayout  `json:"cards_layout,omitempty"`
	ListLayout  *ListLayout   `json:"list_layout,omitempty"`
	TextLayout  *TextLayout   `json:"text_layout,omitempty"`
}

type TableColumn struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type TableLayout struct {
	Columns []TableColumn            `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

type CardMetaLabel string

const (
	CardMetaHead   CardMetaLabel = "head"
	CardMetaBody   CardMetaLabel = "body"
	CardMetaImage  CardMetaLabel = "image"
	CardMetaFooter CardMetaLabel = "footer"
)

type CardMeta struct {
	Label CardMetaLabel `json:"label"`
	Value string        `json:"value"`
}

type Card struct {
	Title    string     `json:"title"`
	Subtitle string     `json:"subtitle,omitempty"`
	Meta     []CardMeta `json:"meta"`
}

type CardsLayout struct {
	Cards []Card `json:"cards"`
}

type ListItem struct {
	Text string `json:"text"`
}

type ListLayout struct {
	Items []ListItem `json:"items"`
}

type TextLayout struct {
	Content string `json:"content"`
}

// Factories are the only sanctioned way to build components. Each one fills
// exactly the layout field matching its type.

func NewTableComponent(columns []TableColumn, rows []map[string]interface{}) Component {
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	return Component{
		Type:        ComponentTable,
		TableLayout: &TableLayout{Columns: columns, Rows: rows},
	}
}

func NewCardsComponent(cards []Card) Component {
	return Component{
		Type:        ComponentCards,
		CardsLayout: &CardsLayout{Cards: cards},
	}
}

func NewListComponent(items []string) Component {
	listItems := make([]ListItem, 0, len(items))
	for _, item := range items {
		listItems = append(listItems, ListItem{Text: item})
	}
	return Component{
		Type:       ComponentList,
		ListLayout: &ListLayout{Items: listItems},
	}
}

func NewTextComponent(content string) Component {
	return Component{
		Type:       ComponentText,
		TextLayout: &TextLayout{Content: content},
	}
}

// Validate checks the one-layout-per-component invariant.
func (c Component) Validate() error {
	populated := 0
	var active ComponentType
	if c.TableLayout != nil {
		populated++
		active = ComponentTable
	}
	if c.CardsLayout != nil {
		populated++
		active = ComponentCards
	}
	if c.ListLayout != nil {
		populated++
		active = ComponentList
	}
	if c.TextLayout != nil {
		populated++
		active = ComponentText
	}
	if populated != 1 {
		return fmt.Errorf("component must have exactly one layout, got %d", populated)
	}
	if active != c.Type {
		return fmt.Errorf("component type %q does not match populated layout %q", c.Type, active)
	}
	if c.CardsLayout != nil {
		for _, card := range c.CardsLayout.Cards {
			for _, meta := range card.Meta {
				switch meta.Label {
				case CardMetaHead, CardMetaBody, CardMetaImage, CardMetaFooter:
				default:
					return fmt.Errorf("invalid card meta label %q", meta.Label)
				}
			}
		}
	}
	return nil
}

func (r *StructuredResponse) Validate() error {
	for _, section := range r.Content.Structured {
		for _, comp := range section.Components {
			if err := comp.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewDeclineResponse builds the well-formed answer used whenever evidence is
// missing or a retrieval path failed. The caller always gets a renderable
// payload, never an error shape.
func NewDeclineResponse(message string) *StructuredResponse {
	return &StructuredResponse{
		IntroMessage: message,
		Content: ResponseContent{
			Structured: []StructuredSection{
				{
					Message:    message,
					Components: []Component{NewTextComponent(message)},
				},
			},
			RawText: message,
		},
	}
}
