package folding

import "regexp"

var (
	pathPattern = regexp.MustCompile(`[\w./\\-]+\.\w{1,10}`)
	declPattern = regexp.MustCompile(`(?:def|class|function|func)\s+(\w+)`)
	urlPattern  = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")
)

const (
	maxPathArtifacts = 10
	maxDeclArtifacts = 5
	maxURLArtifacts  = 3
)

// ExtractArtifacts pulls file-path-like tokens, declared identifier names
// and URLs out of content. Each kind is capped independently and the
// combined list is deduplicated in first-seen order.
func ExtractArtifacts(content string) []string {
	var out []string
	out = append(out, pathPattern.FindAllString(content, maxPathArtifacts)...)
	for _, m := range declPattern.FindAllStringSubmatch(content, maxDeclArtifacts) {
		out = append(out, m[1])
	}
	out = append(out, urlPattern.FindAllString(content, maxURLArtifacts)...)
	return dedupe(out)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
