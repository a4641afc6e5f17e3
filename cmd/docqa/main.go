// Command docqa is the entry point for the document Q&A backend.
// It provides a CLI interface (via Cobra) for ingesting documents and asking
// questions, plus an optional HTTP server exposing the same operations.
package main

import (
	"fmt"
	"os"

	"github.com/d8vjr/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
