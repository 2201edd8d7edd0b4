package cmd

import (
	"github.com/spf13/cobra"
)

var addSourceCmd = &cobra.Command{
	Use:   "add-source <path> <url>",
	Short: "Record where a tracked file came from",
	Args:  cobra.ExactArgs(2),
	RunE:  runAddSource,
}

func init() {
	rootCmd.AddCommand(addSourceCmd)
}

func runAddSource(cmd *cobra.Command, args []string) (err error) {
	p, err := openProject()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return p.AddSource(args[0], args[1])
}
