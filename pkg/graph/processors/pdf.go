package processors

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/athapong/concept-graph/pkg/graph"
)

type PDFProcessor struct{}

func NewPDFProcessor() *PDFProcessor {
	return &PDFProcessor{}
}

// Process extracts the plain text of every page. Pages that fail to decode
// are skipped.
func (p *PDFProcessor) Process(ctx context.Context, content []byte, metadata map[string]interface{}) (*graph.Document, error) {
	reader := bytes.NewReader(content)

	r, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	totalPage := r.NumPage()
	pages := 0

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
		pages++
	}

	if pages == 0 {
		return nil, fmt.Errorf("no readable text in %d PDF pages", totalPage)
	}

	meta := copyMetadata(metadata)
	meta["pages"] = totalPage
	return newDocument(CleanMarkdown(sb.String()), "application/pdf", meta), nil
}

func (p *PDFProcessor) SupportedTypes() []string {
	return []string{"application/pdf"}
}
