package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helloagents/rlm/internal/folding"
)

func (a *app) foldCmd() *cobra.Command {
	var reason, prompt string
	var estimate bool

	cmd := &cobra.Command{
		Use:   "fold [file|-]",
		Short: "Compress a trajectory into a summary",
		Long: `Fold a long agent trajectory (a transcript, log or tool output) into a
short summary plus extracted artifacts. Reads stdin when no file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("nothing to fold")
			}

			if estimate {
				f := folding.New(a.cfg.FolderConfig())
				s := f.EstimateSavings(text, "")
				if a.jsonOut {
					return a.printJSON(s)
				}
				a.printf("%d -> %d tokens (%.0f%% saved)\n", s.OriginalTokens, s.EstimatedTokens, s.SavingsPercent)
				return nil
			}

			e, release, err := a.newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			folded := e.Fold(text, prompt, reason)
			if a.jsonOut {
				return a.printJSON(folded)
			}
			a.printf("%s %s (%s, ratio %.2f)\n", heading("Folded"), folded.ID, folded.Strategy, folded.CompressionRatio)
			a.printf("%s\n", indent(folded.Summary, "  "))
			if len(folded.Artifacts) > 0 {
				a.printf("%s\n", heading("Artifacts"))
				for _, art := range folded.Artifacts {
					a.printf("  - %s\n", art)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "why the trajectory is folded")
	cmd.Flags().StringVar(&prompt, "prompt", "", "summarization instruction")
	cmd.Flags().BoolVar(&estimate, "estimate", false, "only estimate token savings")
	return cmd
}

// readInput reads the named file, or stdin for no argument or "-".
func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}
