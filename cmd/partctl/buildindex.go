package main

import (
	"github.com/spf13/cobra"

	"github.com/partdb/partdb/partition/indexbuild"
)

var buildindexWorkers int

var buildindexCmd = &cobra.Command{
	Use:   "buildindex <dir>",
	Short: "Compute every column's min/max",
	Long: `buildindex walks every column of the partition, computing min/max
where unset. partctl carries no index implementation, so it passes no
index loader: no column's index spec is loaded or rebuilt.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuildindex,
}

func init() {
	buildindexCmd.Flags().IntVar(&buildindexWorkers, "workers", 4, "Worker goroutines")
	rootCmd.AddCommand(buildindexCmd)
}

func runBuildindex(cmd *cobra.Command, args []string) error {
	p, mgr, err := openPartition(args[0])
	if err != nil {
		return err
	}

	pool := indexbuild.New(p, mgr, nil, nil)
	result := pool.Run(buildindexWorkers)

	if jsonOut {
		return printJSON(result)
	}
	printInfo("built: %d  errors: %d\n", result.Built, result.Errors)
	for _, f := range result.Failures {
		printInfo("  FAIL: %s\n", f)
	}
	return nil
}
