package processors

import (
	"bytes"
	"context"
	"fmt"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/athapong/concept-graph/pkg/graph"
)

// noiseSelectors are removed before conversion; they never carry notes.
const noiseSelectors = "script, style, noscript, nav, footer, iframe, svg, form"

// HTMLProcessor converts HTML pages to markdown.
type HTMLProcessor struct{}

// NewHTMLProcessor creates a new instance of HTMLProcessor.
func NewHTMLProcessor() *HTMLProcessor {
	return &HTMLProcessor{}
}

// Process strips page chrome with goquery and converts the body to markdown.
func (p *HTMLProcessor) Process(ctx context.Context, content []byte, metadata map[string]interface{}) (*graph.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to create document from HTML content: %w", err)
	}

	doc.Find(noiseSelectors).Remove()
	title := doc.Find("title").First().Text()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	html, err := body.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to render HTML body: %w", err)
	}

	markdown, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}

	meta := copyMetadata(metadata)
	if title != "" {
		meta["title"] = title
	}
	return newDocument(CleanMarkdown(markdown), "text/html", meta), nil
}

// SupportedTypes returns the MIME types supported by the HTMLProcessor.
func (p *HTMLProcessor) SupportedTypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

func copyMetadata(metadata map[string]interface{}) map[string]interface{} {
	meta := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	return meta
}

func newDocument(markdown, mimeType string, metadata map[string]interface{}) *graph.Document {
	name, _ := metadata["name"].(string)
	return &graph.Document{
		ID:          uuid.New().String(),
		Name:        name,
		MimeType:    mimeType,
		Content:     markdown,
		Metadata:    metadata,
		ProcessedAt: time.Now(),
	}
}
