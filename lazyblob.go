package lazyblob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aweris/lazyblob/internal/manifest"
	"github.com/aweris/lazyblob/internal/remote"
	"github.com/aweris/lazyblob/internal/store"
	"github.com/sirupsen/logrus"
)

// Project is an open lazyblob project: its manifest plus the local content
// cache. A Project is not safe for concurrent use.
type Project struct {
	manifest *manifest.Manifest
	store    *store.Store
	opts     *Options
	log      logrus.FieldLogger

	gw remote.Gateway // opened on first use
}

// Open loads the manifest governing dir, searching parent directories, and
// opens the content cache.
func Open(dir string, opts ...Option) (*Project, error) {
	options := applyOptions(opts)

	m, err := manifest.Load(dir)
	if err != nil {
		return nil, err
	}
	return open(m, options)
}

// Init creates lazyblob.yml in dir and opens the new project.
func Init(dir string, opts ...Option) (*Project, error) {
	options := applyOptions(opts)

	m, err := manifest.Init(dir)
	if err != nil {
		return nil, err
	}
	return open(m, options)
}

func applyOptions(opts []Option) *Options {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		options.Logger = l
	}
	return options
}

func open(m *manifest.Manifest, options *Options) (*Project, error) {
	log := options.Logger.WithField("project", m.Dir())

	st, err := store.Open(context.Background(), expandPath(options.CacheDir), store.Options{
		CacheSize: options.CacheSize,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	return &Project{
		manifest: m,
		store:    st,
		opts:     options,
		log:      log,
	}, nil
}

// Dir returns the project directory.
func (p *Project) Dir() string { return p.manifest.Dir() }

// ManifestPath returns the location of lazyblob.yml.
func (p *Project) ManifestPath() string { return p.manifest.Path() }

// CacheDir returns the root of the local content cache.
func (p *Project) CacheDir() string { return p.store.Root() }

// Remote returns the configured remote URL and endpoint, if any.
func (p *Project) Remote() (url, endpoint string, ok bool) {
	if p.manifest.Remote == nil {
		return "", "", false
	}
	return p.manifest.Remote.URL, p.manifest.Remote.Endpoint, true
}

// Close releases the remote gateway and the content cache.
func (p *Project) Close() error {
	var errs []error
	if p.gw != nil {
		errs = append(errs, p.gw.Close())
		p.gw = nil
	}
	errs = append(errs, p.store.Close())
	return errors.Join(errs...)
}

// AddRemote checks that url is reachable and records it as the project
// remote. A missing credential comes back as ErrCredentialsMissing so
// callers can offer to configure one and retry.
func (p *Project) AddRemote(ctx context.Context, url, endpoint string) error {
	if p.manifest.Remote != nil {
		return fmt.Errorf("%w: %s", ErrRemoteExists, p.manifest.Remote.URL)
	}

	opts := p.gatewayOptions()
	opts.Endpoint = endpoint
	gw, err := remote.New(ctx, url, opts)
	if err != nil {
		return err
	}
	defer gw.Close()

	ok, err := gw.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s does not exist", ErrRemoteUnreachable, url)
	}

	if err := p.manifest.SetRemote(url, endpoint); err != nil {
		return err
	}
	p.log.WithField("remote", url).Info("remote configured")
	return nil
}

// AddSource records url as the origin of the latest version of path. If that
// version already has a different source, a new version with the same
// content and the new source is appended.
func (p *Project) AddSource(path, url string) error {
	rel, err := p.manifest.Rel(path)
	if err != nil {
		return err
	}
	latest, _ := p.manifest.LatestAndHistory(rel)
	if latest == nil {
		return fmt.Errorf("%w: %s", ErrNotTracked, rel)
	}
	_, err = p.manifest.AttachSource(latest, url)
	return err
}

func (p *Project) gatewayOptions() remote.Options {
	opts := p.opts.Gateway
	if opts.Logger == nil {
		opts.Logger = p.log
	}
	return opts
}

// gateway returns the gateway of the configured remote.
func (p *Project) gateway(ctx context.Context) (remote.Gateway, error) {
	if p.gw != nil {
		return p.gw, nil
	}
	if p.manifest.Remote == nil {
		return nil, ErrRemoteNotConfigured
	}
	opts := p.gatewayOptions()
	if p.manifest.Remote.Endpoint != "" {
		opts.Endpoint = p.manifest.Remote.Endpoint
	}
	gw, err := remote.New(ctx, p.manifest.Remote.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("open remote %s: %w", p.manifest.Remote.URL, err)
	}
	p.gw = gw
	return gw, nil
}

// restore writes the blob for hash to dest, downloading it first when it is
// not in the local cache.
func (p *Project) restore(ctx context.Context, hash, dest string) error {
	ok, err := p.store.Materialize(ctx, hash, dest)
	if err != nil || ok {
		return err
	}

	if err := p.download(ctx, hash); err != nil {
		return err
	}

	ok, err = p.store.Materialize(ctx, hash, dest)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: blob %s vanished from the cache", ErrStorageIO, hash)
	}
	return nil
}

// download puts the blob for hash into the local cache. The project remote
// is tried first; the recorded source URL is the fallback when there is no
// remote or the remote does not have the blob.
func (p *Project) download(ctx context.Context, hash string) error {
	log := p.log.WithField("hash", hash)

	var remoteErr error
	gw, err := p.gateway(ctx)
	switch {
	case err == nil:
		key, kerr := remote.KeyFor(hash)
		if kerr != nil {
			return kerr
		}
		log.Info("downloading from remote")
		_, err = p.store.Ingest(ctx, hash, func(w io.Writer) error {
			return gw.Download(ctx, key, w)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("download %s: %w", hash, err)
		}
		remoteErr = fmt.Errorf("download %s: %w", hash, err)
	case errors.Is(err, ErrRemoteNotConfigured):
		remoteErr = fmt.Errorf("download %s: %w", hash, err)
	default:
		return err
	}

	src := p.manifest.SourceFor(hash)
	if src == "" {
		return remoteErr
	}

	log.WithField("source", src).Info("downloading from source")
	_, err = p.store.Ingest(ctx, hash, func(w io.Writer) error {
		return remote.Fetch(ctx, src, w, p.gatewayOptions())
	})
	if err != nil {
		return fmt.Errorf("download %s from %s: %w", hash, src, err)
	}
	return nil
}
