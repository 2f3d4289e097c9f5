// Command scandex analyzes a shell-script codebase and answers dependency
// queries against the resulting graph.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	dbPath string
	format string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "scandex:", err)
		os.Exit(exitCodeFor(err))
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scandex",
		Short:         "Static dependency analyzer for ksh/sh script estates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the scandex database (default: scandex.db alongside the script root)")
	root.PersistentFlags().StringVar(&format, "format", defaultFormat(), "output format: text, json, or yaml")

	root.AddCommand(analyzeCmd())
	root.AddCommand(forwardCmd())
	root.AddCommand(backwardCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(summaryCmd())
	root.AddCommand(watchCmd())
	return root
}

// defaultFormat prefers human-readable text on an interactive terminal and
// machine-readable json when output is piped or redirected.
func defaultFormat() string {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return "text"
	}
	return "json"
}

func resolveDBPath(scriptRoot string) string {
	if dbPath != "" {
		return dbPath
	}
	if scriptRoot == "" {
		return "scandex.db"
	}
	return filepath.Join(scriptRoot, "scandex.db")
}

// exit statuses (§6): 0 success, 2 usage error, 3 I/O failure on input
// tree, 4 store failure, 5 store-incompatible, 130 cancelled.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case isUsageError(err):
		return 2
	case isInputError(err):
		return 3
	case isStoreIncompatible(err):
		return 5
	case isStoreError(err):
		return 4
	case isCancelled(err):
		return 130
	default:
		return 1
	}
}
