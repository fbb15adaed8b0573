package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "memoryd",
	Short:   "Persistent personal memory for MCP clients",
	Version: version,
	Long: `memoryd stores markdown profiles — a personal profile and per-model
self-profiles — and exposes them to MCP clients as tools for loading,
reflecting on, and editing memory.

Run "memoryd stdio" for a local single-user server over stdin/stdout, or
"memoryd serve" for the hosted HTTP deployment with Entra ID auth.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(stdioCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
