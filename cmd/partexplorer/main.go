package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/partdb/partdb/config"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/internal/logx"
	"github.com/partdb/partdb/partition"
)

func main() {
	args := os.Args[1:]
	if len(args) < 1 || args[0] == "--help" || args[0] == "-h" {
		printUsage()
		if len(args) < 1 {
			os.Exit(1)
		}
		os.Exit(0)
	}

	dir := args[0]
	mgr := filemgr.New(nil)
	p, err := partition.Open(dir, mgr, config.MapLookup{}, logx.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	m := NewModel(dir, p, mgr)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	final, err := prog.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
	if fm, ok := final.(Model); ok {
		fm.Close()
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: partexplorer <partition-dir>")
	fmt.Fprintln(os.Stderr, "Interactive column browser, predicate evaluator, and histogram viewer.")
}
