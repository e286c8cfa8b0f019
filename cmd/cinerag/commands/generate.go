package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/cinerag-go/internal/generator"
	"github.com/54b3r/cinerag-go/internal/logging"
)

// NewGenerateCmd constructs the `cinerag generate` command, which sends a
// prompt straight to the generation backend without retrieval.
func NewGenerateCmd() *cobra.Command {
	var model string
	var maxTokens int

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Send a prompt directly to the generation backend",
		Long: `Send a prompt to the configured generation backend and print the text.

No retrieval is performed and the RAG prompt template is not applied. Useful
for checking that GENERATION_BACKEND and its credentials work.

Examples:
  cinerag generate "Summarise the plot of Alien in one sentence"
  cinerag generate --model gemini-2.5-pro --max-tokens 64 "hello"
  GENERATION_BACKEND=http GENERATION_ENDPOINT=http://127.0.0.1:8000/generate cinerag generate "hi"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			gen, _, err := buildGenerator(ctx, log)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			text, err := gen.GenerateRaw(ctx, strings.Join(args, " "), model, maxTokens)
			if err != nil {
				if generator.IsUnavailable(err) {
					return fmt.Errorf("generate: no generation backend configured (set GENERATION_BACKEND and its credentials): %w", err)
				}
				return fmt.Errorf("generate: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model override (default: GENERATION_MODEL)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 256, "Maximum tokens to generate")

	return cmd
}
