package processors

import (
	"regexp"
	"strings"
)

var (
	pageNumberPattern     = regexp.MustCompile(`\n\s*\d+\s*\n`)
	horizontalRulePattern = regexp.MustCompile(`\s*[-–—]{3,}\s*`)
	blankLinesPattern     = regexp.MustCompile(`\n{3,}`)
	bulletPattern         = regexp.MustCompile(`(?m)^[*•–]\s+`)
	headingPattern        = regexp.MustCompile(`(?m)^(#{1,6})([^\s#])`)
)

// CleanMarkdown removes conversion artifacts from markdown: standalone page
// numbers, horizontal rules, runs of blank lines, mixed bullet markers,
// headings without a space and paragraphs broken across lines.
func CleanMarkdown(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = pageNumberPattern.ReplaceAllString(text, "\n")
	text = horizontalRulePattern.ReplaceAllString(text, "\n")
	text = blankLinesPattern.ReplaceAllString(text, "\n\n")
	text = bulletPattern.ReplaceAllString(text, "- ")
	text = headingPattern.ReplaceAllString(text, "$1 $2")
	return strings.TrimSpace(mergeBrokenParagraphs(text))
}

// mergeBrokenParagraphs joins a line onto the previous one unless the previous
// line ends a sentence or either line is blank, a heading, a list item or a
// table row.
func mergeBrokenParagraphs(text string) string {
	lines := strings.Split(text, "\n")
	merged := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			merged = append(merged, "")
			continue
		}
		if n := len(merged); n > 0 && !startsBlock(line) && continuesParagraph(merged[n-1]) {
			merged[n-1] += " " + line
			continue
		}
		merged = append(merged, line)
	}
	return strings.Join(merged, "\n")
}

func startsBlock(line string) bool {
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "|")
}

func continuesParagraph(prev string) bool {
	if prev == "" || startsBlock(prev) {
		return false
	}
	return !strings.HasSuffix(prev, ".") &&
		!strings.HasSuffix(prev, "?") &&
		!strings.HasSuffix(prev, "!") &&
		!strings.HasSuffix(prev, ":")
}
