package agent

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/helloagents/rlm/pkg/models"
)

//go:embed roles/*.md
var roleFS embed.FS

const outputContract = "## Output\n" +
	"Return the result as a single-line JSON object:\n" +
	"```json\n" +
	`{"status": "completed|failed|partial", ` +
	`"key_findings": ["..."], ` +
	`"changes_made": [{"file": "path", "type": "modify|create|delete"}], ` +
	`"issues_found": [{"severity": "high|medium|low", "description": "..."}], ` +
	`"recommendations": ["..."], ` +
	`"needs_followup": false, ` +
	`"followup_context": ""}` + "\n" +
	"```\n"

// PromptBuilder renders role prompts. Role instructions come from
// <RolesDir>/<role>.md when present, otherwise from the built-in set.
type PromptBuilder struct {
	RolesDir string
}

// RoleInstructions returns the instruction text for a role, or "".
func (b PromptBuilder) RoleInstructions(role models.Role) string {
	name := string(role) + ".md"
	if b.RolesDir != "" {
		if data, err := os.ReadFile(filepath.Join(b.RolesDir, name)); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	data, err := roleFS.ReadFile("roles/" + name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Build renders the full prompt for one sub-agent.
func (b PromptBuilder) Build(role models.Role, task string, contextHint []string) string {
	preset, _ := role.Preset()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Role: %s\n%s\n\n", role, preset.Description)
	if instr := b.RoleInstructions(role); instr != "" {
		sb.WriteString(instr)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "## Task\n%s\n", task)
	if len(contextHint) > 0 {
		fmt.Fprintf(&sb, "\n## Relevant context\nFiles/dirs: %s\n", strings.Join(contextHint, ", "))
	}
	sb.WriteString("\n")
	sb.WriteString(outputContract)
	return sb.String()
}
