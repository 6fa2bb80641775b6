package folding

import (
	"strings"
	"unicode/utf8"
)

var summaryKeywords = []string{"#", "error", "success", "failed", "completed", "created", "modified"}

const (
	keywordSummaryLines = 15
	keywordSummaryRunes = 300
)

// KeywordSummarizer keeps the lines mentioning an outcome keyword and
// falls back to a plain prefix when there are none. It is the default
// compaction summarizer for context tiers.
type KeywordSummarizer struct{}

// Summarize implements Summarizer.
func (KeywordSummarizer) Summarize(content string) string {
	var keep []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, kw := range summaryKeywords {
			if strings.Contains(lower, kw) {
				keep = append(keep, line)
				break
			}
		}
		if len(keep) == keywordSummaryLines {
			break
		}
	}
	if len(keep) > 0 {
		return strings.Join(keep, "\n")
	}
	if utf8.RuneCountInString(content) > keywordSummaryRunes {
		return string([]rune(content)[:keywordSummaryRunes]) + ellipsis
	}
	return content
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(content string) string

// Summarize implements Summarizer.
func (fn SummarizerFunc) Summarize(content string) string {
	return fn(content)
}

var (
	_ Summarizer = (*Folder)(nil)
	_ Summarizer = KeywordSummarizer{}
	_ Summarizer = SummarizerFunc(nil)
)
