package main

import (
	"github.com/spf13/cobra"

	"github.com/partdb/partdb/partition/histogram"
)

var (
	hist1dBegin  float64
	hist1dEnd    float64
	hist1dStride float64
)

var hist1dCmd = &cobra.Command{
	Use:   "hist1d <dir> <column>",
	Short: "Build a 1-D histogram of a column over [--begin, --end) by --stride",
	Args:  cobra.ExactArgs(2),
	RunE:  runHist1D,
}

func init() {
	hist1dCmd.Flags().Float64Var(&hist1dBegin, "begin", 0, "Range start (inclusive)")
	hist1dCmd.Flags().Float64Var(&hist1dEnd, "end", 0, "Range end (exclusive)")
	hist1dCmd.Flags().Float64Var(&hist1dStride, "stride", 1, "Bin width")
	rootCmd.AddCommand(hist1dCmd)
}

func runHist1D(cmd *cobra.Command, args []string) error {
	p, mgr, err := openPartition(args[0])
	if err != nil {
		return err
	}
	colName := args[1]

	eng := histogram.New(p, mgr, nil)
	counts, err := eng.Histogram1D(colName, hist1dBegin, hist1dEnd, hist1dStride, nil)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]interface{}{
			"column": colName,
			"begin":  hist1dBegin,
			"end":    hist1dEnd,
			"stride": hist1dStride,
			"counts": counts,
		})
	}
	for i, c := range counts {
		lo := hist1dBegin + float64(i)*hist1dStride
		printInfo("[%g, %g): %d\n", lo, lo+hist1dStride, c)
	}
	return nil
}
