package cmd

import (
	"fmt"
	"os"

	"github.com/aweris/lazyblob/internal/credentials"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure cloud credentials",
}

var configAWSCmd = &cobra.Command{
	Use:   "aws",
	Short: "Write AWS credentials to ~/.aws",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configureAWS(credentials.NewPrompter(os.Stdin, os.Stderr))
	},
}

var configAzureCmd = &cobra.Command{
	Use:   "azure",
	Short: "Write Azure storage credentials to ~/.azure/config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configureAzure(credentials.NewPrompter(os.Stdin, os.Stderr))
	},
}

func init() {
	configCmd.AddCommand(configAWSCmd, configAzureCmd)
	rootCmd.AddCommand(configCmd)
}

func configureAWS(prompter *credentials.Prompter) error {
	c, err := credentials.PromptAWS(prompter)
	if err != nil {
		return err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir, err := credentials.WriteAWS(home, c)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Credentials written to %s\n", dir)
	return nil
}

func configureAzure(prompter *credentials.Prompter) error {
	c, err := credentials.PromptAzure(prompter)
	if err != nil {
		return err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir, err := credentials.WriteAzure(home, c)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Credentials written to %s\n", dir)
	return credentials.ExportAzure(home)
}
