package agent

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/helloagents/rlm/pkg/models"
)

// ParseOutput extracts the result envelope from backend output.
//
// Output is scanned line by line. The first line holding a JSON object with
// a status key is the result. Earlier JSON lines may carry a threadId,
// which is kept. Fields are decoded one at a time and a field of the wrong
// type is dropped without discarding the envelope. Without an envelope the
// output itself becomes the single finding of a completed result.
func ParseOutput(output string) models.AgentResult {
	var threadID string

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			continue
		}
		if _, ok := fields["status"]; !ok {
			if id := field[string](fields, "threadId"); id != "" {
				threadID = id
			}
			continue
		}

		res := models.AgentResult{
			ThreadID:        threadID,
			Status:          models.ResultStatus(field[string](fields, "status")),
			KeyFindings:     field[[]string](fields, "key_findings"),
			ChangesMade:     field[[]models.Change](fields, "changes_made"),
			IssuesFound:     field[[]models.Issue](fields, "issues_found"),
			Recommendations: field[[]string](fields, "recommendations"),
			NeedsFollowup:   field[bool](fields, "needs_followup"),
			FollowupContext: field[string](fields, "followup_context"),
			RawOutput:       output,
		}
		if id := field[string](fields, "threadId"); id != "" {
			res.ThreadID = id
		}
		if res.Status == "" {
			res.Status = models.ResultCompleted
		}
		return res
	}

	finding := "no output"
	if output != "" {
		finding = truncate(output, 500)
	}
	return models.AgentResult{
		ThreadID:    threadID,
		Status:      models.ResultCompleted,
		KeyFindings: []string{finding},
		RawOutput:   output,
	}
}

// field decodes one envelope field, yielding the zero value when it is
// missing or of the wrong type.
func field[T any](fields map[string]json.RawMessage, key string) T {
	var v T
	raw, ok := fields[key]
	if !ok {
		return v
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero
	}
	return v
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
