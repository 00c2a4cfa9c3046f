// Command batchctl inspects the status and batch directories of a batchgen
// engine.
package main

import (
	"os"

	"github.com/stonezone/batchgen/cmd/batchctl/commands"
)

func main() {
	if err := commands.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
