package ingestion

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"campus-assistant/internal/domain/entity"

	docx "github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
)

// TextExtractor turns uploaded document bytes into normalized plain text.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract dispatches on media type. Unreadable input surfaces as a
// decode_failure so the pipeline can skip the file and keep the batch alive.
func (te *TextExtractor) Extract(filename string, data []byte, mimeType string) (string, error) {
	var text string
	var err error

	switch {
	case mimeType == "application/pdf" || hasExt(filename, ".pdf"):
		text, err = te.extractFromPDF(data)
	case mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" || hasExt(filename, ".docx"):
		text, err = te.extractFromDOCX(data)
	case strings.HasPrefix(mimeType, "text/") || hasExt(filename, ".txt", ".md", ".markdown"):
		text, err = te.extractFromPlainText(data)
	default:
		return "", entity.NewDomainError(entity.ErrUnsupportedMedia, filename,
			fmt.Errorf("unsupported media type: %s", mimeType))
	}

	if err != nil {
		return "", entity.NewDomainError(entity.ErrDecodeFailure, filename, err)
	}

	text = normalizeText(text)
	if text == "" {
		return "", entity.NewDomainError(entity.ErrDecodeFailure, filename,
			fmt.Errorf("no text content extracted"))
	}
	return text, nil
}

func (te *TextExtractor) extractFromPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

func (te *TextExtractor) extractFromDOCX(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse DOCX: %w", err)
	}

	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch item.(type) {
		case *docx.Paragraph, *docx.Table:
			sb.WriteString(fmt.Sprint(item))
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}

func (te *TextExtractor) extractFromPlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("input is not valid UTF-8")
	}
	return string(data), nil
}

var multiBlankLines = regexp.MustCompile(`\n{3,}`)

// normalizeText unifies line endings and trims noise while keeping single
// newlines intact, since table detection depends on line structure.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = multiBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func hasExt(filename string, exts ...string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
