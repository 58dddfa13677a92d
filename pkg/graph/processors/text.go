package processors

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/athapong/concept-graph/pkg/graph"
)

// TextProcessor passes plain text and markdown through the markdown cleanup.
type TextProcessor struct{}

func NewTextProcessor() *TextProcessor {
	return &TextProcessor{}
}

func (p *TextProcessor) Process(ctx context.Context, content []byte, metadata map[string]interface{}) (*graph.Document, error) {
	if !utf8.Valid(content) {
		return nil, errors.New("text document is not valid UTF-8")
	}
	return newDocument(CleanMarkdown(string(content)), "text/markdown", copyMetadata(metadata)), nil
}

func (p *TextProcessor) SupportedTypes() []string {
	return []string{"text/plain", "text/markdown", "text/x-markdown"}
}

// Default returns a processor for every supported upload type.
func Default() []graph.DocumentProcessor {
	return []graph.DocumentProcessor{
		NewTextProcessor(),
		NewHTMLProcessor(),
		NewPDFProcessor(),
	}
}

var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".html":     "text/html",
	".htm":      "text/html",
	".pdf":      "application/pdf",
}

// DetectMimeType picks the MIME type of an upload from its declared type,
// its file extension and finally its first bytes.
func DetectMimeType(name, declared string, content []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
			return mediaType
		}
	}
	if t, ok := TypeForExtension(name); ok {
		return t
	}
	mediaType, _, err := mime.ParseMediaType(http.DetectContentType(content))
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}

// TypeForExtension maps the extension of name to a supported MIME type.
func TypeForExtension(name string) (string, bool) {
	t, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]
	return t, ok
}
