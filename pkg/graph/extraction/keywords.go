package extraction

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jdkato/prose/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var keywordDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "concept_graph_keyword_extraction_duration_seconds",
		Help: "Time spent ranking keywords for a concept",
	},
)

func init() {
	prometheus.MustRegister(keywordDuration)
}

var stopWords = mapset.NewSet[string](
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of",
	"with", "by", "is", "are", "was", "were", "be", "been", "it", "its", "this",
	"that", "these", "those", "as", "from", "which", "also", "such",
)

const (
	damping       = 0.85
	epsilon       = 0.0001
	maxIterations = 50
	window        = 4
)

// KeywordExtractor ranks the nouns of a text with TextRank over a word
// co-occurrence graph.
type KeywordExtractor struct {
	maxKeywords int
	logger      *logrus.Logger
}

// NewKeywordExtractor creates an extractor returning at most maxKeywords words.
func NewKeywordExtractor(maxKeywords int) *KeywordExtractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if maxKeywords <= 0 {
		maxKeywords = 5
	}
	return &KeywordExtractor{maxKeywords: maxKeywords, logger: logger}
}

// Keywords returns the top ranked nouns of text, best first. Ties are broken
// alphabetically so the result is stable.
func (k *KeywordExtractor) Keywords(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}

	timer := prometheus.NewTimer(keywordDuration)
	defer timer.ObserveDuration()

	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithSegmentation(true),
	)
	if err != nil {
		return nil, err
	}

	nouns := make(map[string]bool)
	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)
		if tok.Tag == "" || tok.Tag[0] != 'N' || len(word) < 3 || stopWords.Contains(word) {
			continue
		}
		nouns[word] = true
	}

	// co-occurrence graph over a sliding window within sentences
	edges := make(map[string]map[string]float64, len(nouns))
	for w := range nouns {
		edges[w] = make(map[string]float64)
	}
	for _, sent := range doc.Sentences() {
		words := tokenize(sent.Text)
		for i, word := range words {
			if !nouns[word] {
				continue
			}
			end := i + window
			if end > len(words) {
				end = len(words)
			}
			for j := i + 1; j < end; j++ {
				other := words[j]
				if other == word || !nouns[other] {
					continue
				}
				edges[word][other]++
				edges[other][word]++
			}
		}
	}

	scores := rank(edges)

	keywords := make([]string, 0, len(scores))
	for w := range scores {
		keywords = append(keywords, w)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if scores[keywords[i]] != scores[keywords[j]] {
			return scores[keywords[i]] > scores[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > k.maxKeywords {
		keywords = keywords[:k.maxKeywords]
	}

	k.logger.WithField("keywords_count", len(keywords)).Debug("Ranked keywords")
	return keywords, nil
}

func rank(edges map[string]map[string]float64) map[string]float64 {
	scores := make(map[string]float64, len(edges))
	totals := make(map[string]float64, len(edges))
	for w, out := range edges {
		scores[w] = 1.0
		for _, weight := range out {
			totals[w] += weight
		}
	}

	for iter := 0; iter < maxIterations; iter++ {
		diff := 0.0
		next := make(map[string]float64, len(scores))
		for w, in := range edges {
			sum := 0.0
			for other, weight := range in {
				if totals[other] > 0 {
					sum += weight * scores[other] / totals[other]
				}
			}
			score := (1 - damping) + damping*sum
			if d := score - scores[w]; d < 0 {
				diff -= d
			} else {
				diff += d
			}
			next[w] = score
		}
		scores = next
		if diff < epsilon {
			break
		}
	}
	return scores
}

func tokenize(sentence string) []string {
	fields := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !(r == '-' || r == '\'' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 127)
	})
	return fields
}
