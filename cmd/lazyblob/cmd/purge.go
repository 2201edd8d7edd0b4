package cmd

import (
	"fmt"
	"os"

	"github.com/aweris/lazyblob/internal/credentials"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete the local content cache",
	Long: `Delete every blob and content record in the local cache. Tracked files
and lazyblob.yml are not touched; blobs that were never pushed are lost.`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	dir := viper.GetString("cache_dir")
	if dir == "" {
		return usageError(fmt.Errorf("no cache directory configured"))
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		ok, err := credentials.NewPrompter(os.Stdin, os.Stderr).
			Confirm(fmt.Sprintf("Delete %s?", dir))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("purge %s: %w", dir, err)
	}
	fmt.Fprintf(os.Stderr, "Removed %s\n", dir)
	return nil
}
