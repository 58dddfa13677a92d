// Package tokenizer budgets model input with tiktoken.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sirupsen/logrus"
)

// DefaultEncoding is the encoding shared by the OpenAI chat and embedding models.
const DefaultEncoding = "cl100k_base"

// Truncator cuts texts to a token budget. The encoding is loaded on first use;
// when it cannot be loaded texts are cut at four bytes per token instead.
type Truncator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	logger   *logrus.Logger
}

// New creates a truncator for encoding (DefaultEncoding when empty).
func New(encoding string, logger *logrus.Logger) *Truncator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Truncator{encoding: encoding, logger: logger}
}

func (t *Truncator) load() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.logger.WithError(err).WithField("encoding", t.encoding).Warn("Falling back to byte-based token estimate")
			return
		}
		t.enc = enc
	})
	return t.enc
}

// Count returns the number of tokens in text.
func (t *Truncator) Count(text string) int {
	if enc := t.load(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// Truncate returns text cut to at most maxTokens tokens and whether it was
// cut. A non-positive budget disables truncation.
func (t *Truncator) Truncate(text string, maxTokens int) (string, bool) {
	// every token spans at least one byte
	if maxTokens <= 0 || len(text) <= maxTokens {
		return text, false
	}
	if enc := t.load(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text, false
		}
		return enc.Decode(tokens[:maxTokens]), true
	}
	limit := maxTokens * 4
	if len(text) <= limit {
		return text, false
	}
	// back off to a rune boundary
	for limit > 0 && !isRuneStart(text[limit]) {
		limit--
	}
	return text[:limit], true
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
