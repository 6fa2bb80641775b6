package engine

import (
	"strings"
	"testing"

	"github.com/helloagents/rlm/pkg/models"
)

func recs(items ...string) models.AgentResult {
	return models.AgentResult{Status: models.ResultCompleted, Recommendations: items}
}

func TestMerge_Vote(t *testing.T) {
	results := []models.AgentResult{recs("a", "b"), recs("a"), recs("a", "c")}

	votes := Tally(results)
	if votes[0] != (Vote{Item: "a", Count: 3}) {
		t.Fatalf("top vote = %+v", votes[0])
	}
	if votes[1].Item != "b" || votes[2].Item != "c" {
		t.Errorf("ties should keep first-seen order: %+v", votes)
	}

	got := Merge(results, models.MergeVote)
	want := "- a (3 votes)\n- b (1 votes)\n- c (1 votes)"
	if got != want {
		t.Errorf("vote =\n%s\nwant\n%s", got, want)
	}

	if got := Merge([]models.AgentResult{{}}, models.MergeVote); got != "no consensus recommendations" {
		t.Errorf("no recommendations = %q", got)
	}
}

func TestMerge_VoteTopFive(t *testing.T) {
	results := []models.AgentResult{recs("a", "b", "c", "d", "e", "f"), recs("f")}
	lines := strings.Split(Merge(results, models.MergeVote), "\n")
	if len(lines) != 5 || lines[0] != "- f (2 votes)" {
		t.Errorf("lines = %q", lines)
	}
}

func TestMerge_Synthesize(t *testing.T) {
	var issues []models.Issue
	for i := 0; i < 7; i++ {
		issues = append(issues, models.Issue{Description: "issue"})
	}
	issues[0].Severity = "high"

	results := []models.AgentResult{
		{KeyFindings: []string{"f1", "f2"}, Recommendations: []string{"r1"}, IssuesFound: issues[:3]},
		{KeyFindings: []string{"f2", "f3"}, Recommendations: []string{"r1", "r2"}, IssuesFound: issues[3:]},
	}
	got := Merge(results, models.MergeSynthesize)

	want := strings.Join([]string{
		"### Key findings", "- f1", "- f2", "- f3",
		"\n### Recommendations", "- r1", "- r2",
		"\n### Issues (7)",
		"- [high] issue", "- [medium] issue", "- [medium] issue", "- [medium] issue", "- [medium] issue",
	}, "\n")
	if got != want {
		t.Errorf("synthesize =\n%s\nwant\n%s", got, want)
	}
}

func TestMerge_SynthesizeCapsAtTen(t *testing.T) {
	var findings []string
	for i := 0; i < 15; i++ {
		findings = append(findings, string(rune('a'+i)))
	}
	got := Merge([]models.AgentResult{{KeyFindings: findings}}, models.MergeSynthesize)
	if n := strings.Count(got, "\n- "); n != 10 {
		t.Errorf("kept %d findings, want 10:\n%s", n, got)
	}
}

func TestMerge_Concat(t *testing.T) {
	results := []models.AgentResult{
		{Status: models.ResultCompleted, RawOutput: "raw one"},
		{Status: models.ResultFailed, KeyFindings: []string{"broke"}},
	}
	got := Merge(results, models.MergeConcat)
	want := "## Agent 1 (completed)\n\nraw one\n\n---\n\n## Agent 2 (failed)\n\n[FAILED] | findings: broke"
	if got != want {
		t.Errorf("concat =\n%s\nwant\n%s", got, want)
	}
}

func TestMerge_EmptyAndUnknown(t *testing.T) {
	if got := Merge(nil, models.MergeSynthesize); got != "" {
		t.Errorf("empty = %q", got)
	}
	if got := Merge([]models.AgentResult{recs("a")}, "majority"); got != "" {
		t.Errorf("unknown strategy = %q", got)
	}
}
