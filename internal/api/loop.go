package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// DefaultMaxIterations bounds the number of API calls in one loop.
const DefaultMaxIterations = 50

// AgentLoop alternates API calls and tool execution until the model ends
// its turn.
type AgentLoop struct {
	client        *Client
	tools         *ToolExecutor
	log           *slog.Logger
	maxIterations int
}

// LoopResult contains the results of an agent loop execution.
type LoopResult struct {
	Output     string
	TokensIn   int64
	TokensOut  int64
	ToolCalls  int
	Iterations int
}

// NewAgentLoop creates a loop. A non-positive maxIterations selects
// DefaultMaxIterations.
func NewAgentLoop(client *Client, tools *ToolExecutor, maxIterations int, log *slog.Logger) *AgentLoop {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &AgentLoop{
		client:        client,
		tools:         tools,
		log:           log,
		maxIterations: maxIterations,
	}
}

// Run executes the loop. The returned output is the text of the final turn.
func (l *AgentLoop) Run(ctx context.Context, systemPrompt, userPrompt string, tools []anthropic.ToolUnionParam) (*LoopResult, error) {
	result := &LoopResult{}
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}

	for result.Iterations < l.maxIterations {
		result.Iterations++

		resp, err := l.client.messages.New(ctx, anthropic.MessageNewParams{
			Model:     l.client.Model(),
			MaxTokens: l.client.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages:  messages,
			Tools:     tools,
		})
		if err != nil {
			return result, fmt.Errorf("API call failed: %w", err)
		}

		result.TokensIn += resp.Usage.InputTokens
		result.TokensOut += resp.Usage.OutputTokens
		l.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

		var assistantBlocks, toolResultBlocks []anthropic.ContentBlockParamUnion
		var text strings.Builder

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				text.WriteString(variant.Text)
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				result.ToolCalls++
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				tr := l.tools.Execute(ctx, variant.Name, variant.Input)
				l.log.Debug("tool call", "tool", variant.Name, "error", tr.IsError)
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, tr.Content, tr.IsError))
			}
		}

		if len(toolResultBlocks) == 0 || resp.StopReason == anthropic.StopReasonEndTurn {
			result.Output = text.String()
			return result, nil
		}

		messages = append(messages,
			anthropic.NewAssistantMessage(assistantBlocks...),
			anthropic.NewUserMessage(toolResultBlocks...),
		)
	}

	return result, fmt.Errorf("max iterations (%d) reached", l.maxIterations)
}
