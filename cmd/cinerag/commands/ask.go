package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/cinerag-go/internal/logging"
	"github.com/54b3r/cinerag-go/internal/pipeline"
	"github.com/54b3r/cinerag-go/internal/rag"
	"github.com/54b3r/cinerag-go/internal/tracing"
	"github.com/54b3r/cinerag-go/internal/version"
)

// NewAskCmd constructs the `cinerag ask` command, which runs the pipeline once
// for a single question and prints the answer with its sources.
func NewAskCmd() *cobra.Command {
	var historyPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about movies",
		Long: `Run the question-answering pipeline once and print the answer.

Without --json the answer is printed as "Response: ..." followed by the
labels of the passages used as context. Stages that failed are listed as
warnings on stderr; the command still succeeds with whatever was retrieved.

--history points at a JSON file of prior turns, oldest first:
  [{"role": "user", "text": "who directed Heat?"},
   {"role": "assistant", "text": "Michael Mann."}]

Examples:
  cinerag ask "movies about dreams within dreams"
  cinerag ask --history chat.json "what else did he direct?"
  cinerag ask --json "heist films with Al Pacino"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			history, err := readHistory(historyPath)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			flush, _ := tracing.Setup(tracing.ConfigFromEnv(version.Version))
			defer flush()

			var recorder pipeline.Recorder
			if rs := openRunStore(log); rs != nil {
				defer func() { _ = rs.Close() }()
				recorder = rs
			}

			c, err := buildPipeline(ctx, log, recorder, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer c.close()

			res := c.pipeline.Run(ctx, strings.Join(args, " "), history)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			for _, d := range res.Diagnostics {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s %s: %s\n", d.Stage, d.Kind, d.Message)
			}
			sources, err := json.Marshal(res.Sources(getEnvInt("PIPELINE_CONTEXT_ITEMS", pipeline.DefaultContextItems)))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Fprintf(out, "Response: %s\nSources: %s\n", res.Response, sources)
			return nil
		},
	}

	cmd.Flags().StringVar(&historyPath, "history", "", "JSON file with the prior conversation turns")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full pipeline result as JSON")

	return cmd
}

// readHistory loads a conversation history file. An empty path means no
// history.
func readHistory(path string) ([]rag.ChatTurn, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var turns []rag.ChatTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parsing history %s: %w", path, err)
	}
	for i, t := range turns {
		if t.Role != rag.RoleUser && t.Role != rag.RoleAssistant {
			return nil, fmt.Errorf("history turn %d: unknown role %q", i, t.Role)
		}
	}
	return turns, nil
}
