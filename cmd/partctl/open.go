package main

import (
	"github.com/spf13/cobra"

	"github.com/partdb/partdb/config"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/internal/logx"
	"github.com/partdb/partdb/partition"
)

var openCmd = &cobra.Command{
	Use:   "open <dir>",
	Short: "Open a partition directory and print its header summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

// openPartition is shared by every subcommand that needs a live Partition:
// it wires a fresh FileManager and the process-wide logger, the same pair
// selftest and indexbuild expect callers to supply.
func openPartition(dir string) (*partition.Partition, *filemgr.Manager, error) {
	mgr := filemgr.New(nil)
	p, err := partition.Open(dir, mgr, config.MapLookup{}, logx.Default())
	if err != nil {
		return nil, nil, err
	}
	return p, mgr, nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	p, _, err := openPartition(args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]interface{}{
			"name":        p.Name(),
			"description": p.Description(),
			"rows":        p.N(),
			"state":       p.State().String(),
			"columns":     p.ColumnNames(),
		})
	}

	printInfo("Name:        %s\n", p.Name())
	printInfo("Description: %s\n", p.Description())
	printInfo("Rows:        %d\n", p.N())
	printInfo("State:       %s\n", p.State().String())
	printInfo("Columns:     %d\n", len(p.ColumnNames()))
	for _, name := range p.ColumnNames() {
		c, _ := p.Column(name)
		printVerbose("  %-24s %s\n", name, c.Type().String())
	}
	return nil
}
