// Command resultplay serves the Result playground and its documentation site.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/resultplay/cmd/resultplay/commands"
)

const version = "0.1.0-dev"

func main() {
	if err := commands.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
