package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"broken paragraph", "This paragraph was\nbroken by the converter.", "This paragraph was broken by the converter."},
		{"sentence boundary", "First sentence.\nSecond sentence.", "First sentence.\nSecond sentence."},
		{"bullets", "* one\n• two", "- one\n- two"},
		{"heading spacing", "#Heading\ntext", "# Heading\ntext"},
		{"page number", "End of page.\n 12 \nNext page.", "End of page.\nNext page."},
		{"blank runs", "a.\n\n\n\n\nb.", "a.\n\nb."},
		{"no merge across blank line", "no period\n\nnext para", "no period\n\nnext para"},
		{"horizontal rule", "Intro.\n---\nMore.", "Intro.\nMore."},
		{"windows line endings", "one\r\ntwo.", "one two."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanMarkdown(tt.input))
		})
	}
}
