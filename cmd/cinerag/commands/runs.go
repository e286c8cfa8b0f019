package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/cinerag-go/internal/store"
)

// NewRunsCmd constructs the `cinerag runs` command, which lists recent
// entries of the run ledger.
func NewRunsCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs from the run ledger",
		Long: `List the most recent pipeline runs recorded by 'cinerag ask' and 'cinerag serve'.

The ledger lives at CINERAG_RUNS_DB (default: ~/.cinerag/runs.db).

Examples:
  cinerag runs
  cinerag runs --limit 50 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbPath := os.Getenv("CINERAG_RUNS_DB")
			if dbPath == "disabled" {
				return fmt.Errorf("runs: the run ledger is disabled (CINERAG_RUNS_DB=disabled)")
			}
			if dbPath == "" {
				var err error
				if dbPath, err = store.DefaultDBPath(); err != nil {
					return fmt.Errorf("runs: %w", err)
				}
			}

			rs, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("runs: %w", err)
			}
			defer func() { _ = rs.Close() }()

			if limit <= 0 {
				limit = 20
			}
			runs, err := rs.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tINTENT\tDEGRADED\tDURATION\tQUERY")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n",
					r.CreatedAt.Local().Format(time.DateTime),
					r.Intent,
					r.Degraded,
					r.Duration.Round(time.Millisecond),
					r.Query,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")

	return cmd
}
