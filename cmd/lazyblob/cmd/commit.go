package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Record new versions of changed files",
	Long:  "Re-track every tracked file that is present, recording a new version for each one that changed.",
	Args:  cobra.NoArgs,
	RunE:  runCommit,
}

func init() {
	rootCmd.AddCommand(commitCmd)
}

func runCommit(cmd *cobra.Command, args []string) (err error) {
	p, err := openProject()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := p.Commit(context.Background()); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Done.")
	return nil
}
