package api

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/helloagents/rlm/pkg/models"
)

type toolSpec struct {
	name        string
	description string
	props       map[string]any
	required    []string
	writes      bool
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

var toolSpecs = []toolSpec{
	{
		name:        "Read",
		description: "Read a file. Returns contents with line numbers.",
		props: map[string]any{
			"file_path": prop("string", "Path of the file, absolute or relative to the workspace"),
			"offset":    prop("integer", "Line number to start reading from (1-indexed, optional)"),
			"limit":     prop("integer", "Maximum number of lines to read (optional)"),
		},
		required: []string{"file_path"},
	},
	{
		name:        "Glob",
		description: "Find files whose name matches a glob pattern.",
		props: map[string]any{
			"pattern": prop("string", "Glob pattern such as '*.go'"),
			"path":    prop("string", "Directory to search in (optional)"),
		},
		required: []string{"pattern"},
	},
	{
		name:        "Grep",
		description: "Search file contents with a regular expression.",
		props: map[string]any{
			"pattern": prop("string", "Regex pattern to search for"),
			"path":    prop("string", "File or directory to search in (optional)"),
			"glob":    prop("string", "Only search files whose name matches this glob"),
		},
		required: []string{"pattern"},
	},
	{
		name:        "ListDir",
		description: "List the contents of a directory.",
		props: map[string]any{
			"path": prop("string", "Directory path to list"),
		},
		required: []string{"path"},
	},
	{
		name:        "Write",
		description: "Write content to a file, creating parent directories if needed.",
		props: map[string]any{
			"file_path": prop("string", "Path of the file to write"),
			"content":   prop("string", "Content to write"),
		},
		required: []string{"file_path", "content"},
		writes:   true,
	},
	{
		name:        "Edit",
		description: "Replace text in a file. old_string must be unique unless replace_all is true.",
		props: map[string]any{
			"file_path":   prop("string", "Path of the file to edit"),
			"old_string":  prop("string", "The exact text to replace"),
			"new_string":  prop("string", "The replacement text"),
			"replace_all": prop("boolean", "Replace every occurrence (default false)"),
		},
		required: []string{"file_path", "old_string", "new_string"},
		writes:   true,
	},
	{
		name:        "Bash",
		description: "Run a shell command in the workspace and return its output.",
		props: map[string]any{
			"command": prop("string", "The command to run"),
			"timeout": prop("integer", "Timeout in milliseconds (optional, default 120000)"),
		},
		required: []string{"command"},
		writes:   true,
	},
}

// allowed reports whether a tool may run under sandbox.
func allowed(name string, sandbox models.Sandbox) bool {
	for _, s := range toolSpecs {
		if s.name == name {
			return !s.writes || sandbox == models.SandboxWorkspaceWrite
		}
	}
	return false
}

// ToolDefinitions returns the tool schemas offered under sandbox. Read-only
// agents never see the tools that modify the workspace.
func ToolDefinitions(sandbox models.Sandbox) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, s := range toolSpecs {
		if !allowed(s.name, sandbox) {
			continue
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.name,
				Description: anthropic.String(s.description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: s.props,
					Required:   s.required,
				},
			},
		})
	}
	return out
}
