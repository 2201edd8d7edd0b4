package cmd

import (
	"fmt"
	"os"

	"github.com/aweris/lazyblob"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create lazyblob.yml in the current directory",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) (err error) {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	p, err := lazyblob.Init(wd, projectOptions()...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	fmt.Fprintf(os.Stderr, "Created %s\n", p.ManifestPath())
	return nil
}
