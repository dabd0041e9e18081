package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"chimera/internal/server"
)

// rootCmd is the entry point when chimera is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "chimera",
	Short: "Database-resident MCP tool engine",
	Long: `chimera serves an MCP catalog whose tools, resources, and prompts live
as rows in a metadata database with content-addressed executable bodies.
The engine validates every body against a read-only discipline, executes it
against a data database or the embedded script runtime, audits every call,
and can extend its own tool surface at runtime through meta-tools.`,
	// Handled errors should not re-print usage.
	SilenceUsage: true,
}

// SetVersion injects the build version.
func SetVersion(v string) {
	rootCmd.Version = v
	server.Version = v
}

// Execute runs the CLI.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "chimera version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
