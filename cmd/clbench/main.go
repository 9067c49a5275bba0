// Package main provides the CLI entry point for the continual-learning
// benchmark.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hopo55/CL-Papers/cmd/clbench/commands"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clbench",
	Short: "Continual-learning benchmark over permuted task sequences",
	Long: `clbench trains a model on a sequence of tasks and measures how much
of each task survives later training.

It provides:
  - Regularization strategies: EWC, PI, MAS, RWalk
  - Replay strategies: A-GEM, ER-Reservoir, ER-Ring, MER
  - Hindsight anchoring with per-class anchor synthesis
  - SQLite and PostgreSQL result stores`,
	Version: version,
}

func init() {
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ResultsCmd)
}
