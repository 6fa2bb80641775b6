package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/helloagents/rlm/pkg/models"
)

// printJSON writes v as indented JSON.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printStatus prints a status line with color
func (a *app) printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(a.out, "%s %s\n", c.Sprint(symbol), message)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func statusSymbol(s models.ResultStatus) (string, color.Attribute) {
	switch s {
	case models.ResultCompleted:
		return "✓", color.FgGreen
	case models.ResultFailed:
		return "✗", color.FgRed
	case models.ResultPartial:
		return "◐", color.FgYellow
	default:
		return "ℹ", color.FgCyan
	}
}

// printResult renders one agent result for humans.
func (a *app) printResult(label string, r models.AgentResult) {
	sym, attr := statusSymbol(r.Status)
	head := fmt.Sprintf("%s %s (%s)", label, r.Status, formatDuration(r.ExecutionTime))
	if r.ThreadID != "" {
		head += " thread " + r.ThreadID
	}
	a.printStatus(sym, head, attr)

	if len(r.KeyFindings) > 0 {
		a.printf("  %s\n", heading("Findings"))
		for _, f := range r.KeyFindings {
			a.printf("    - %s\n", f)
		}
	}
	if len(r.ChangesMade) > 0 {
		a.printf("  %s\n", heading("Changes"))
		for _, c := range r.ChangesMade {
			a.printf("    - %s %s\n", c.Type, c.File)
		}
	}
	if len(r.IssuesFound) > 0 {
		a.printf("  %s\n", heading("Issues"))
		for _, is := range r.IssuesFound {
			a.printf("    - [%s] %s\n", severityColor(is.SeverityOrDefault()), is.Description)
		}
	}
	if len(r.Recommendations) > 0 {
		a.printf("  %s\n", heading("Recommendations"))
		for _, rec := range r.Recommendations {
			a.printf("    - %s\n", rec)
		}
	}
	if r.NeedsFollowup {
		a.printf("  %s %s\n", color.YellowString("Follow-up:"), r.FollowupContext)
	}
}

func severityColor(sev string) string {
	switch sev {
	case "high":
		return color.RedString(sev)
	case "medium":
		return color.YellowString(sev)
	default:
		return sev
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func heading(s string) string {
	return color.New(color.Bold).Sprint(s)
}

func nodeSymbol(s models.NodeStatus) (string, color.Attribute) {
	switch s {
	case models.NodeCompleted:
		return "✓", color.FgGreen
	case models.NodeFailed:
		return "✗", color.FgRed
	case models.NodeSkipped:
		return "–", color.FgHiBlack
	default:
		return "○", color.FgYellow
	}
}
