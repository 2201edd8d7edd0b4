package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aweris/lazyblob"
	"github.com/aweris/lazyblob/internal/credentials"
	"github.com/aweris/lazyblob/internal/remote"
	"github.com/spf13/cobra"
)

var addRemoteCmd = &cobra.Command{
	Use:   "add-remote <url>",
	Short: "Configure the project remote",
	Long: `Check that the remote exists and record it in lazyblob.yml.

Supported remotes: s3://bucket/prefix, gs://bucket/prefix,
az://container/prefix, oci://registry/repo, https://host/prefix
(download only) and local folders.`,
	Args: cobra.ExactArgs(1),
	RunE: runAddRemote,
}

func init() {
	addRemoteCmd.Flags().String("endpoint-url", "", "custom S3 endpoint, e.g. a MinIO server")
	rootCmd.AddCommand(addRemoteCmd)
}

func runAddRemote(cmd *cobra.Command, args []string) (err error) {
	url := args[0]
	endpoint, _ := cmd.Flags().GetString("endpoint-url")

	p, err := openProject()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx := context.Background()
	prompter := credentials.NewPrompter(os.Stdin, os.Stderr)
	for {
		err = p.AddRemote(ctx, url, endpoint)
		if !errors.Is(err, lazyblob.ErrCredentialsMissing) {
			break
		}

		fmt.Fprintf(os.Stderr, "No credentials found for %s.\n", url)
		ok, perr := prompter.Confirm("Would you like to configure them now?")
		if perr != nil || !ok {
			return err
		}
		if perr := configureFor(url, prompter); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Remote set to %s\n", url)
	return nil
}

// configureFor prompts for the credentials the remote's provider needs.
func configureFor(url string, prompter *credentials.Prompter) error {
	kind, err := remote.ParseKind(url)
	if err != nil {
		return err
	}
	switch kind {
	case remote.S3:
		return configureAWS(prompter)
	case remote.Azure:
		return configureAzure(prompter)
	default:
		return fmt.Errorf("%w: credentials for %s remotes are configured outside lazyblob",
			lazyblob.ErrCredentialsMissing, kind)
	}
}
