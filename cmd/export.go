package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chimera/internal/config"
	"chimera/internal/specfile"
)

var (
	exportOutput  string
	exportPersona string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the persistent catalog as a YAML spec file",
	Long: `Exports the catalog for one persona in the same format the load
command reads. Loading an exported file reproduces the same artifacts and
registry rows.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	reg, artifacts, cleanup, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	f, err := specfile.NewLoader(reg, artifacts).Export(ctx, exportPersona)
	if err != nil {
		return err
	}
	data, err := specfile.Marshal(f)
	if err != nil {
		return err
	}

	if exportOutput == "" || exportOutput == "-" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", exportOutput, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported catalog to %s\n", exportOutput)
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
	exportCmd.Flags().StringVar(&exportPersona, "persona", "", "Persona to export (default: default)")
	exportCmd.Flags().StringVar(&catalogConfigPath, "config-path", config.DefaultConfigPath(), "Configuration directory")
	exportCmd.Flags().StringVar(&catalogMetadataURL, "metadata-url", "", "Metadata database URL override")
}
