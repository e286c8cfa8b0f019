// Command cinerag answers natural-language questions about movies by
// combining vector search over ingested plots with keyword matching against
// the movie catalog. It provides a CLI interface (via Cobra) and an HTTP
// server exposing the same pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/cinerag-go/cmd/cinerag/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
