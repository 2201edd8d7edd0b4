package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push to the remote",
	Long:  "Upload every blob referenced by lazyblob.yml that the remote does not have yet.",
	Args:  cobra.NoArgs,
	RunE:  runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) (err error) {
	p, err := openProject()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	url, _, _ := p.Remote()
	fmt.Fprintf(os.Stderr, "[push] %s\n", url)

	res, err := p.Push(context.Background())
	for _, h := range res.Uploaded {
		fmt.Fprintf(os.Stderr, "[push] uploaded %s\n", h)
	}
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "[push] done: %d uploaded, %d already present\n", len(res.Uploaded), len(res.Skipped))
	return nil
}
