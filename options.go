package lazyblob

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/aweris/lazyblob/internal/remote"
	"github.com/sirupsen/logrus"
)

// DefaultConcurrency is the number of parallel uploads during Push.
const DefaultConcurrency = 4

// Authenticator provides credentials for OCI registry remotes.
type Authenticator = remote.Authenticator

// Gateway is the interface every remote backend implements.
type Gateway = remote.Gateway

// GatewayOptions configures how remote gateways are built.
type GatewayOptions = remote.Options

// Options configures a Project.
type Options struct {
	CacheDir    string
	CacheSize   int
	Concurrency int
	Logger      logrus.FieldLogger
	Gateway     GatewayOptions
}

// Option is a functional option for configuring Open.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		CacheDir:    defaultCacheDir(),
		Concurrency: DefaultConcurrency,
	}
}

// WithCacheDir sets the local content cache directory.
func WithCacheDir(dir string) Option {
	return func(o *Options) {
		if dir != "" {
			o.CacheDir = dir
		}
	}
}

// WithCacheSize sets how many file identities are memoized in memory.
func WithCacheSize(n int) Option {
	return func(o *Options) { o.CacheSize = n }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithConcurrency sets the number of parallel uploads for Push.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithGatewayOptions sets the options used to build remote gateways. The
// project's configured endpoint still takes precedence.
func WithGatewayOptions(g GatewayOptions) Option {
	return func(o *Options) { o.Gateway = g }
}

// WithAuth sets custom registry authentication for OCI remotes.
func WithAuth(auth Authenticator) Option {
	return func(o *Options) { o.Gateway.Auth = auth }
}

func defaultCacheDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "lazyblob")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "lazyblob")
	}
	return ".lazyblob"
}

// DefaultCacheDir returns the cache location used when none is configured.
func DefaultCacheDir() string { return defaultCacheDir() }

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
