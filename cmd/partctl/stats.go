package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <dir>",
	Short: "Show per-column type, bounds, and active-row counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

// ColumnStats is one row of the stats table: a column's static shape
// (type, element size) plus the dynamic bounds and active-row count
// that selftest and histogram both depend on being accurate.
type ColumnStats struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	ElementSize int     `json:"elementSize"`
	BoundsSet   bool    `json:"boundsSet"`
	Lower       float64 `json:"lower,omitempty"`
	Upper       float64 `json:"upper,omitempty"`
	HasIndex    bool    `json:"hasIndex"`
}

type PartitionStats struct {
	Name       string        `json:"name"`
	Rows       uint64        `json:"rows"`
	ActiveRows uint64        `json:"activeRows"`
	Columns    []ColumnStats `json:"columns"`
}

func runStats(cmd *cobra.Command, args []string) error {
	p, _, err := openPartition(args[0])
	if err != nil {
		return err
	}

	mask := p.ActiveMask()
	stats := PartitionStats{
		Name:       p.Name(),
		Rows:       p.N(),
		ActiveRows: mask.Popcount(),
	}
	for _, name := range p.ColumnNames() {
		c, _ := p.Column(name)
		cs := ColumnStats{
			Name:        name,
			Type:        c.Type().String(),
			ElementSize: c.ElementSize(),
			HasIndex:    c.HasIndex(),
		}
		if lo, hi, ok := c.Bounds(); ok {
			cs.BoundsSet = true
			cs.Lower, cs.Upper = lo, hi
		}
		stats.Columns = append(stats.Columns, cs)
	}

	if jsonOut {
		return printJSON(stats)
	}

	printInfo("Partition: %s\n", stats.Name)
	printInfo("%s\n\n", strings.Repeat("-", 40))
	printInfo("Rows:        %s\n", formatNumber(int64(stats.Rows)))
	printInfo("Active rows: %s\n\n", formatNumber(int64(stats.ActiveRows)))

	printInfo("Columns:\n")
	for _, cs := range stats.Columns {
		bounds := "unset"
		if cs.BoundsSet {
			bounds = fmt.Sprintf("[%g, %g]", cs.Lower, cs.Upper)
		}
		idx := ""
		if cs.HasIndex {
			idx = " (indexed)"
		}
		printInfo("  %-24s %-10s size=%-3d bounds=%s%s\n", cs.Name, cs.Type, cs.ElementSize, bounds, idx)
	}
	return nil
}

func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}
	var result strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}
