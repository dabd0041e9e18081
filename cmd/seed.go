package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"chimera/internal/config"
	"chimera/internal/seed"
)

var seedForce bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the sample catalog",
	Long: `Installs the sample tools, resource, and prompt that an empty
registry receives on first start. Refuses to touch a non-empty registry
unless --force is given (writes are upserts either way).`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	reg, artifacts, cleanup, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !seedForce {
		needed, err := seed.IsNeeded(ctx, reg)
		if err != nil {
			return err
		}
		if !needed {
			return fmt.Errorf("registry is not empty; use --force to re-seed")
		}
	}
	if err := seed.Run(ctx, reg, artifacts); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sample catalog installed")
	return nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "Seed even when the registry already has tools")
	seedCmd.Flags().StringVar(&catalogConfigPath, "config-path", config.DefaultConfigPath(), "Configuration directory")
	seedCmd.Flags().StringVar(&catalogMetadataURL, "metadata-url", "", "Metadata database URL override")
}
