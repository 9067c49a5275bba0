package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hopo55/CL-Papers/internal/config"
)

// Results command flags
var (
	resultsConfigPath string
	resultsDBPath     string
)

// ResultsCmd is the parent command for inspecting stored experiments.
var ResultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect stored experiment results",
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored experiments, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx, resultsConfig())
		if err != nil {
			return err
		}
		defer store.Close()

		exps, err := store.ListExperiments(ctx)
		if err != nil {
			return err
		}
		if len(exps) == 0 {
			fmt.Println("no experiments stored")
			return nil
		}

		fmt.Printf("%-36s  %-22s  %-9s  %-5s  %s\n", "ID", "STRATEGY", "OPTIMIZER", "ARCH", "CREATED")
		for _, exp := range exps {
			fmt.Printf("%-36s  %-22s  %-9s  %-5s  %s\n",
				exp.ID, exp.Strategy, exp.Optimizer, exp.Arch, exp.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <experiment-id>",
	Short: "Show accuracy and forgetting statistics for an experiment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx, resultsConfig())
		if err != nil {
			return err
		}
		defer store.Close()

		exp, err := store.GetExperiment(ctx, args[0])
		if err != nil {
			return err
		}
		rs, err := store.LoadRunSet(ctx, args[0])
		if err != nil {
			return err
		}

		acc, accStd := rs.MeanFinalAccuracy()
		fgt, fgtStd := rs.MeanForgetting()
		fmt.Printf("id:         %s\n", exp.ID)
		fmt.Printf("strategy:   %s\n", exp.Strategy)
		fmt.Printf("optimizer:  %s\n", exp.Optimizer)
		fmt.Printf("arch:       %s\n", exp.Arch)
		fmt.Printf("created:    %s\n", exp.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("runs:       %d\n", len(rs.Runs))
		fmt.Printf("accuracy:   %.4f ± %.4f\n", acc, accStd)
		fmt.Printf("forgetting: %.4f ± %.4f\n", fgt, fgtStd)
		return nil
	},
}

// resultsConfig resolves the storage configuration for results commands.
func resultsConfig() *config.Config {
	cfg := config.LoadOrDefault(resultsConfigPath)
	if resultsDBPath != "" {
		cfg.Storage.Backend = "sqlite"
		cfg.Storage.Path = resultsDBPath
	}
	return cfg
}

func init() {
	ResultsCmd.PersistentFlags().StringVarP(&resultsConfigPath, "config", "c", "", "Path to YAML config file")
	ResultsCmd.PersistentFlags().StringVar(&resultsDBPath, "db", "", "SQLite database path (overrides config)")

	ResultsCmd.AddCommand(resultsListCmd)
	ResultsCmd.AddCommand(resultsShowCmd)
}
