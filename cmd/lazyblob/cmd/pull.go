package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull [artefacts...]",
	Short: "Restore tracked files",
	Long: `Restore tracked files from the local cache, the remote or their source URLs.

Each artefact is a tracked path, a usage site (restoring the versions it
used) or a directory. Without artefacts every tracked file is restored to
its latest version.`,
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) (err error) {
	p, err := openProject()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	res, err := p.Pull(context.Background(), args...)
	for _, path := range res.Restored {
		fmt.Fprintf(os.Stderr, "[pull] restored %s\n", path)
	}
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "[pull] done: %d restored, %d up to date\n", len(res.Restored), len(res.Current))
	return nil
}
