package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/helloagents/rlm/internal/protect"
	"github.com/helloagents/rlm/pkg/models"
)

const maxToolOutput = 30000

var errOutsideWorkspace = errors.New("path is outside the workspace")

// ToolExecutor runs tool calls for one sub-agent. Paths are confined to the
// workspace and write tools are refused outside the workspace-write sandbox.
type ToolExecutor struct {
	workDir   string
	sandbox   models.Sandbox
	protected *protect.Detector
}

// NewToolExecutor creates a tool executor rooted at workDir.
func NewToolExecutor(workDir string, sandbox models.Sandbox) *ToolExecutor {
	return &ToolExecutor{workDir: workDir, sandbox: sandbox}
}

// Protect refuses Write and Edit on paths d reports as protected.
func (e *ToolExecutor) Protect(d *protect.Detector) *ToolExecutor {
	e.protected = d
	return e
}

// ToolResult is the content returned to the model for one tool call.
type ToolResult struct {
	Content string
	IsError bool
}

func toolError(format string, args ...any) ToolResult {
	return ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

// Execute runs a tool by name with the given JSON input.
func (e *ToolExecutor) Execute(ctx context.Context, name string, input json.RawMessage) ToolResult {
	if !allowed(name, e.sandbox) {
		if _, known := toolByName(name); known {
			return toolError("Tool %s is not available in the %s sandbox", name, e.sandbox)
		}
		return toolError("Unknown tool: %s", name)
	}

	switch name {
	case "Read":
		return e.read(input)
	case "Glob":
		return e.glob(input)
	case "Grep":
		return e.grep(ctx, input)
	case "ListDir":
		return e.listDir(input)
	case "Write":
		return e.write(input)
	case "Edit":
		return e.edit(input)
	case "Bash":
		return e.bash(ctx, input)
	}
	return toolError("Unknown tool: %s", name)
}

func toolByName(name string) (toolSpec, bool) {
	for _, s := range toolSpecs {
		if s.name == name {
			return s, true
		}
	}
	return toolSpec{}, false
}

// resolveWritable resolves a path for modification.
func (e *ToolExecutor) resolveWritable(path string) (string, error) {
	abs, err := e.resolve(path)
	if err != nil {
		return "", err
	}
	rel, _ := filepath.Rel(e.workDir, abs)
	if ok, reason := e.protected.IsProtectedWithReason(rel); ok {
		return "", fmt.Errorf("refusing to modify %s: %s", rel, reason)
	}
	return abs, nil
}

// resolve maps a tool path onto the workspace.
func (e *ToolExecutor) resolve(path string) (string, error) {
	if path == "" {
		return e.workDir, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.workDir, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(e.workDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideWorkspace
	}
	return path, nil
}

func (e *ToolExecutor) read(input json.RawMessage) ToolResult {
	var params struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}
	path, err := e.resolve(params.FilePath)
	if err != nil {
		return toolError("%v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return toolError("Failed to read file: %v", err)
	}

	lines := strings.Split(string(content), "\n")
	start := 0
	if params.Offset > 0 {
		start = params.Offset - 1
		if start >= len(lines) {
			return toolError("Offset beyond end of file")
		}
	}
	end := len(lines)
	if params.Limit > 0 {
		end = min(start+params.Limit, len(lines))
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	return ToolResult{Content: b.String()}
}

func (e *ToolExecutor) glob(input json.RawMessage) ToolResult {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}
	root, err := e.resolve(params.Path)
	if err != nil {
		return toolError("%v", err)
	}

	pattern := filepath.Base(params.Pattern)
	var matches []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			rel, _ := filepath.Rel(root, path)
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return toolError("Glob error: %v", err)
	}
	if len(matches) == 0 {
		return ToolResult{Content: "No files matched the pattern"}
	}
	return ToolResult{Content: strings.Join(matches, "\n")}
}

func (e *ToolExecutor) grep(ctx context.Context, input json.RawMessage) ToolResult {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
		Glob    string `json:"glob"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}
	root, err := e.resolve(params.Path)
	if err != nil {
		return toolError("%v", err)
	}

	args := []string{"--color=never", "-n"}
	if params.Glob != "" {
		args = append(args, "--glob", params.Glob)
	}
	args = append(args, params.Pattern, root)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// rg exits non-zero when nothing matches.
	out, _ := exec.CommandContext(ctx, "rg", args...).CombinedOutput()
	if len(out) == 0 {
		return ToolResult{Content: "No matches found"}
	}
	return ToolResult{Content: clip(string(out))}
}

func (e *ToolExecutor) listDir(input json.RawMessage) ToolResult {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}
	path, err := e.resolve(params.Path)
	if err != nil {
		return toolError("%v", err)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return toolError("Failed to read directory: %v", err)
	}

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&b, "d %s/\n", entry.Name())
			continue
		}
		if info, err := entry.Info(); err == nil {
			fmt.Fprintf(&b, "- %s (%d bytes)\n", entry.Name(), info.Size())
		} else {
			fmt.Fprintf(&b, "? %s\n", entry.Name())
		}
	}
	return ToolResult{Content: b.String()}
}

func (e *ToolExecutor) write(input json.RawMessage) ToolResult {
	var params struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}
	path, err := e.resolveWritable(params.FilePath)
	if err != nil {
		return toolError("%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return toolError("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(params.Content), 0644); err != nil {
		return toolError("Failed to write file: %v", err)
	}
	return ToolResult{Content: fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), params.FilePath)}
}

func (e *ToolExecutor) edit(input json.RawMessage) ToolResult {
	var params struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}
	path, err := e.resolveWritable(params.FilePath)
	if err != nil {
		return toolError("%v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return toolError("Failed to read file: %v", err)
	}

	content := string(data)
	count := strings.Count(content, params.OldString)
	switch {
	case params.OldString == "" || count == 0:
		return toolError("old_string not found in file")
	case count > 1 && !params.ReplaceAll:
		return toolError("old_string found %d times; must be unique or use replace_all=true", count)
	}

	n := 1
	if params.ReplaceAll {
		n = -1
	}
	if err := os.WriteFile(path, []byte(strings.Replace(content, params.OldString, params.NewString, n)), 0644); err != nil {
		return toolError("Failed to write file: %v", err)
	}
	if params.ReplaceAll {
		return ToolResult{Content: fmt.Sprintf("Replaced %d occurrences", count)}
	}
	return ToolResult{Content: "Edit successful"}
}

func (e *ToolExecutor) bash(ctx context.Context, input json.RawMessage) ToolResult {
	var params struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}

	timeout := 120 * time.Second
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", params.Command)
	cmd.Dir = e.workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return toolError("Command timed out after %v:\n%s", timeout, out)
		}
		return toolError("%s\nError: %v", out, err)
	}
	return ToolResult{Content: clip(string(out))}
}

func clip(s string) string {
	if len(s) > maxToolOutput {
		return s[:maxToolOutput] + "\n... (output truncated)"
	}
	return s
}
