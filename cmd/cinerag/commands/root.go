// Package commands defines all Cobra CLI commands for the cinerag binary.
package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/cinerag-go/internal/audit"
	"github.com/54b3r/cinerag-go/internal/config"
	"github.com/54b3r/cinerag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// commandStarted is set in PersistentPreRunE; zero means no command ran.
var commandStarted time.Time

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cinerag",
		Short: "cinerag: ask questions about movies, answered from your catalog",
		Long: `cinerag is a retrieval-augmented question answering service for a movie catalog.

Each question is rewritten using the conversation so far, matched against
ingested plot embeddings and against catalog titles, genres and cast, then
answered by a language model from the best-ranked passages.

Providers are selected via environment variables (MODEL_PROVIDER,
EMBEDDING_PROVIDER, VECTOR_STORE, GENERATION_BACKEND) or a YAML config file
(~/.cinerag/config.yaml). Environment variables always win.
See 'cinerag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path
			commandStarted = time.Now()

			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.cinerag/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewGenerateCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewRunsCmd(),
		NewVersionCmd(),
	)

	return root
}

// Execute runs the root command and writes the end-of-command audit record,
// including the error when the command failed.
func Execute() error {
	cmd, err := NewRootCmd().ExecuteC()
	if !commandStarted.IsZero() {
		audit.LogCommandEnd(logging.New(), cmd.Name(), time.Since(commandStarted), err)
	}
	return err
}
