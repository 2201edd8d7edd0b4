package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aweris/lazyblob"
	"github.com/aweris/lazyblob/internal/credentials"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Exit codes.
const (
	exitFailure   = 1
	exitUsage     = 2
	exitRemote    = 3
	exitIntegrity = 4
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "lazyblob",
	Short: "Track data files next to your code",
	Long: `Track data files in lazyblob.yml, keep their bytes in a local
content-addressed cache and sync them with a remote.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/lazyblob/config.yaml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "cache directory (default: ~/.local/share/lazyblob)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("concurrency", lazyblob.DefaultConcurrency, "parallel transfers during push")
	rootCmd.PersistentFlags().Int("oci-compression-level", 2, "zstd level for OCI remotes (1 fastest, 4 best)")

	viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	viper.BindPFlag("oci_compression_level", rootCmd.PersistentFlags().Lookup("oci-compression-level"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LAZYBLOB")
	viper.AutomaticEnv()
	viper.SetDefault("cache_dir", lazyblob.DefaultCacheDir())

	viper.ReadInConfig()
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return usageError(err)
	}
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lazyblob")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "lazyblob")
	}
	return ".lazyblob"
}

func projectOptions() []lazyblob.Option {
	return []lazyblob.Option{
		lazyblob.WithCacheDir(viper.GetString("cache_dir")),
		lazyblob.WithConcurrency(viper.GetInt("concurrency")),
		lazyblob.WithLogger(log),
		lazyblob.WithGatewayOptions(lazyblob.GatewayOptions{
			CompressionLevel: viper.GetInt("oci_compression_level"),
		}),
	}
}

// openProject opens the project governing the working directory.
func openProject() (*lazyblob.Project, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if home, err := os.UserHomeDir(); err == nil {
		if err := credentials.ExportAzure(home); err != nil {
			log.WithError(err).Warn("ignoring azure credentials")
		}
	}
	return lazyblob.Open(wd, projectOptions()...)
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

func exitCode(err error) int {
	var ee *exitError
	switch {
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, lazyblob.ErrIntegrity),
		errors.Is(err, lazyblob.ErrInvalidHash):
		return exitIntegrity
	case errors.Is(err, lazyblob.ErrRemoteUnreachable),
		errors.Is(err, lazyblob.ErrAuth),
		errors.Is(err, lazyblob.ErrCredentialsMissing),
		errors.Is(err, lazyblob.ErrNotFound),
		errors.Is(err, lazyblob.ErrUploadUnsupported):
		return exitRemote
	case errors.Is(err, lazyblob.ErrConfigNotFound),
		errors.Is(err, lazyblob.ErrConfigParse),
		errors.Is(err, lazyblob.ErrManifestExists),
		errors.Is(err, lazyblob.ErrRemoteExists),
		errors.Is(err, lazyblob.ErrRemoteNotConfigured),
		errors.Is(err, lazyblob.ErrUnsupportedScheme),
		errors.Is(err, lazyblob.ErrPathOutsideProject),
		errors.Is(err, lazyblob.ErrUnsupportedDirectoryTracking),
		errors.Is(err, lazyblob.ErrNotTracked):
		return exitUsage
	default:
		return exitFailure
	}
}
