package main

import (
	"github.com/spf13/cobra"

	"github.com/partdb/partdb/partition/evaluator"
	"github.com/partdb/partdb/partition/predicate"
)

var (
	evalLow    float64
	evalHigh   float64
	evalHasLow bool
	evalHasHi  bool
)

var evalCmd = &cobra.Command{
	Use:   "eval <dir> <column>",
	Short: "Evaluate a [low, high] range predicate against a column",
	Long: `eval restricts a column to rows whose value falls in [--lo, --hi]
(either bound may be omitted for an open range) and reports how many rows
of the partition's active mask matched.`,
	Args: cobra.ExactArgs(2),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().Float64Var(&evalLow, "lo", 0, "Lower bound (inclusive)")
	evalCmd.Flags().Float64Var(&evalHigh, "hi", 0, "Upper bound (inclusive)")
	evalCmd.Flags().BoolVar(&evalHasLow, "has-lo", false, "Set when --lo should be applied")
	evalCmd.Flags().BoolVar(&evalHasHi, "has-hi", false, "Set when --hi should be applied")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	p, mgr, err := openPartition(args[0])
	if err != nil {
		return err
	}
	colName := args[1]

	r := predicate.Range{Column: colName, LowOp: predicate.None, HighOp: predicate.None}
	if evalHasLow {
		r.LowOp, r.Low = predicate.Ge, evalLow
	}
	if evalHasHi {
		r.HighOp, r.High = predicate.Le, evalHigh
	}

	ev := evaluator.New(p, mgr, nil)
	count, err := ev.CountHits(r)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]interface{}{
			"column": colName,
			"count":  count,
			"rows":   p.N(),
		})
	}
	printInfo("%s matched %d of %d rows\n", colName, count, p.N())
	return nil
}
