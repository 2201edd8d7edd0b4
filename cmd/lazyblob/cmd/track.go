package cmd

import (
	"context"
	"fmt"

	"github.com/aweris/lazyblob"
	"github.com/spf13/cobra"
)

var trackCmd = &cobra.Command{
	Use:   "track <file>",
	Short: "Track a file",
	Long: `Record a file in lazyblob.yml, or bring it in line with the version
lazyblob.yml expects. A file that does not exist yet is downloaded from
--source.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrack,
}

func init() {
	trackCmd.Flags().String("source", "", "URL the file originally came from")
	trackCmd.Flags().String("usage", "", "usage site to record (default: none)")
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) (err error) {
	source, _ := cmd.Flags().GetString("source")
	usage, _ := cmd.Flags().GetString("usage")

	p, err := openProject()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	opts := []lazyblob.TrackOption{lazyblob.WithUsage(usage)}
	if source != "" {
		opts = append(opts, lazyblob.WithSource(source))
	}

	path, err := p.Track(context.Background(), args[0], opts...)
	if err != nil {
		return err
	}

	fmt.Println(path)
	return nil
}
