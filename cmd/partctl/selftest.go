package main

import (
	"github.com/spf13/cobra"

	"github.com/partdb/partdb/config"
	"github.com/partdb/partdb/partition/selftest"
)

var (
	selftestWorkers    int
	selftestLongTests  bool
	selftestVerifySize bool
)

var selftestCmd = &cobra.Command{
	Use:   "selftest <dir>",
	Short: "Run the partition's quick or additivity self-test",
	Args:  cobra.ExactArgs(1),
	RunE:  runSelftest,
}

func init() {
	selftestCmd.Flags().IntVar(&selftestWorkers, "workers", 4, "Worker goroutines")
	selftestCmd.Flags().BoolVar(&selftestLongTests, "long-tests", false, "Force the recursive additivity test regardless of row count")
	selftestCmd.Flags().BoolVar(&selftestVerifySize, "verify-sizes", false, "Also verify every column's file size before running queries")
	rootCmd.AddCommand(selftestCmd)
}

func runSelftest(cmd *cobra.Command, args []string) error {
	p, mgr, err := openPartition(args[0])
	if err != nil {
		return err
	}

	cfg := config.MapLookup{}
	if selftestLongTests {
		cfg[p.Name()+".longTests"] = "true"
	}
	tester := selftest.New(p, mgr, cfg, nil)

	if selftestVerifySize {
		for _, sizeErr := range tester.VerifyFileSizes() {
			printInfo("size check failed: %v\n", sizeErr)
		}
	}

	result := tester.Run(selftestWorkers)

	if jsonOut {
		return printJSON(result)
	}
	printInfo("queries: %d  errors: %d\n", result.Queries, result.Errors)
	for _, f := range result.Failures {
		printInfo("  FAIL: %s\n", f)
	}
	return nil
}
