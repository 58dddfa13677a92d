package processors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLProcessor(t *testing.T) {
	page := `<html><head><title>Physics notes</title><script>track()</script></head>
<body><nav>Home | About</nav><h1>Gravity</h1><p>Gravity pulls masses together.</p><footer>© 2024</footer></body></html>`

	doc, err := NewHTMLProcessor().Process(context.Background(), []byte(page), map[string]interface{}{"name": "physics.html"})
	require.NoError(t, err)

	assert.Contains(t, doc.Content, "# Gravity")
	assert.Contains(t, doc.Content, "Gravity pulls masses together.")
	assert.NotContains(t, doc.Content, "track()")
	assert.NotContains(t, doc.Content, "Home | About")
	assert.NotContains(t, doc.Content, "2024")
	assert.Equal(t, "Physics notes", doc.Metadata["title"])
	assert.Equal(t, "physics.html", doc.Name)
	assert.NotEmpty(t, doc.ID)
}

func TestTextProcessor(t *testing.T) {
	p := NewTextProcessor()

	doc, err := p.Process(context.Background(), []byte("Orbits are\ncurved paths."), nil)
	require.NoError(t, err)
	assert.Equal(t, "Orbits are curved paths.", doc.Content)
	assert.Equal(t, "text/markdown", doc.MimeType)

	_, err = p.Process(context.Background(), []byte{0xff, 0xfe, 0xfd}, nil)
	assert.Error(t, err)
}

func TestPDFProcessorRejectsGarbage(t *testing.T) {
	_, err := NewPDFProcessor().Process(context.Background(), []byte("not a pdf"), nil)
	assert.Error(t, err)
}

func TestDefaultProcessorsCoverUploadTypes(t *testing.T) {
	types := make(map[string]bool)
	for _, p := range Default() {
		for _, mt := range p.SupportedTypes() {
			types[mt] = true
		}
	}
	for _, mt := range []string{"text/plain", "text/markdown", "text/html", "application/pdf"} {
		assert.True(t, types[mt], mt)
	}
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		declared string
		content  []byte
		expected string
	}{
		{"extension", "notes.md", "", nil, "text/markdown"},
		{"declared with params", "page", "text/html; charset=utf-8", nil, "text/html"},
		{"octet stream falls back to extension", "paper.PDF", "application/octet-stream", nil, "application/pdf"},
		{"sniffed pdf", "upload", "", []byte("%PDF-1.4\n%âãÏÓ"), "application/pdf"},
		{"sniffed text", "upload", "", []byte("just words"), "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectMimeType(tt.file, tt.declared, tt.content))
		})
	}
}
