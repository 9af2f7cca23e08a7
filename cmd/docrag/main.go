// Command docrag is the entry point for the document retrieval service.
// It provides a CLI (via Cobra) for indexing and querying stores locally and
// a serve command that exposes the same operations over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docrag-go/cmd/docrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
