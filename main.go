// The main package for the indexer executable.
package main

import (
	"github.com/JakeFAU/site-indexer/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
