package lazyblob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/aweris/lazyblob/internal/manifest"
	"github.com/aweris/lazyblob/internal/remote"
	"github.com/sirupsen/logrus"
)

type trackConfig struct {
	source   string
	usage    string
	usageSet bool
}

// TrackOption configures a single Track call.
type TrackOption func(*trackConfig)

// WithSource records url as the file's origin. A file that does not exist
// yet is downloaded from it.
func WithSource(url string) TrackOption {
	return func(c *trackConfig) { c.source = url }
}

// WithUsage overrides the usage site recorded for this call. By default it
// is the Go source file calling Track. An empty site records no usage.
func WithUsage(site string) TrackOption {
	return func(c *trackConfig) {
		c.usage = site
		c.usageSet = true
	}
}

// Track makes sure path holds the version the manifest expects and records
// the caller as a user of that version. It returns the absolute path.
//
// Depending on what is on disk and in the manifest, Track records a new
// file, records a new version of a changed file, restores an outdated or
// missing file from the cache or the remote, or downloads a file from its
// source URL on first use.
func (p *Project) Track(ctx context.Context, path string, opts ...TrackOption) (string, error) {
	var cfg trackConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.usageSet {
		_, file, _, _ := runtime.Caller(1)
		cfg.usage = p.usageSite(file)
	}
	return p.track(ctx, path, cfg)
}

// Track opens the project governing path, tracks path in it and closes it
// again.
func Track(ctx context.Context, path string, opts ...TrackOption) (resolved string, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	p, err := Open(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	_, file, _, _ := runtime.Caller(1)
	opts = append([]TrackOption{WithUsage(p.usageSite(file))}, opts...)
	return p.Track(ctx, abs, opts...)
}

// usageSite renders a source file as a usage site: relative to the project
// when it lies inside it, absolute otherwise.
func (p *Project) usageSite(file string) string {
	if file == "" {
		return ""
	}
	file = filepath.Clean(file)
	if rel, err := p.manifest.Rel(file); err == nil {
		return rel
	}
	return filepath.ToSlash(file)
}

func (p *Project) track(ctx context.Context, path string, cfg trackConfig) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	info, statErr := os.Stat(abs)
	exists := statErr == nil
	switch {
	case exists && info.IsDir():
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDirectoryTracking, path)
	case statErr != nil && !os.IsNotExist(statErr):
		return "", fmt.Errorf("%w: stat %s: %w", ErrStorageIO, path, statErr)
	}

	rel, err := p.manifest.Rel(abs)
	if err != nil {
		return "", err
	}
	log := p.log.WithField("path", rel)

	latest, older := p.manifest.LatestAndHistory(rel)

	if latest != nil && cfg.source != "" && latest.SourceURL != cfg.source {
		attached, err := p.manifest.AttachSource(latest, cfg.source)
		if err != nil {
			return "", fmt.Errorf("attach source: %w", err)
		}
		if attached != latest {
			log.WithField("source", cfg.source).Info("source changed, recorded as a new version")
			older = append(older, latest)
			latest = attached
		}
	}

	switch {
	case !exists && latest == nil && cfg.source == "":
		return "", fmt.Errorf("%w: %s", ErrFileNotFoundToTrack, path)
	case !exists && latest == nil:
		return abs, p.firstDownload(ctx, log, abs, rel, cfg)
	case !exists:
		return abs, p.fetch(ctx, log, abs, latest, cfg)
	case latest == nil:
		return abs, p.trackNew(ctx, log, abs, rel, cfg)
	}

	known, err := p.store.KnownHashes(ctx, abs)
	if err != nil {
		return "", err
	}
	if _, ok := known[latest.Hash]; ok {
		log.Debug("unchanged")
		return abs, p.manifest.RecordUsage(latest, cfg.usage)
	}
	for _, e := range older {
		if _, ok := known[e.Hash]; ok {
			return abs, p.restoreStale(ctx, log, abs, latest, cfg)
		}
	}
	return abs, p.recheck(ctx, log, abs, rel, latest, cfg)
}

// trackNew records a file seen for the first time.
func (p *Project) trackNew(ctx context.Context, log logrus.FieldLogger, abs, rel string, cfg trackConfig) error {
	hash, err := p.store.Store(ctx, abs)
	if err != nil {
		return err
	}
	if _, err := p.manifest.AppendVersion(rel, hash, cfg.usage, cfg.source); err != nil {
		return err
	}
	log.WithField("hash", hash).Info("tracking new file")
	return nil
}

// restoreStale puts the latest version back over a file that still holds an
// older one.
func (p *Project) restoreStale(ctx context.Context, log logrus.FieldLogger, abs string, latest *manifest.FileEntry, cfg trackConfig) error {
	log.WithField("hash", latest.Hash).Info("file is outdated, restoring latest version")
	if err := p.restore(ctx, latest.Hash, abs); err != nil {
		return err
	}
	return p.manifest.RecordUsage(latest, cfg.usage)
}

// recheck hashes a file whose content records are inconclusive. A new hash
// means the file changed and becomes the latest version.
func (p *Project) recheck(ctx context.Context, log logrus.FieldLogger, abs, rel string, latest *manifest.FileEntry, cfg trackConfig) error {
	hash, err := p.store.Store(ctx, abs)
	if err != nil {
		return err
	}
	if hash == latest.Hash {
		log.Debug("unchanged after rehash")
		return p.manifest.RecordUsage(latest, cfg.usage)
	}

	log.WithFields(logrus.Fields{"from": latest.Hash, "to": hash}).Info("file changed, recording new version")
	if _, err := p.manifest.AppendVersion(rel, hash, cfg.usage, cfg.source); err != nil {
		return err
	}
	return p.manifest.RecordUsage(latest, cfg.usage)
}

// fetch restores a missing file that has a recorded version.
func (p *Project) fetch(ctx context.Context, log logrus.FieldLogger, abs string, latest *manifest.FileEntry, cfg trackConfig) error {
	log.WithField("hash", latest.Hash).Info("file missing, restoring")
	if err := p.restore(ctx, latest.Hash, abs); err != nil {
		return err
	}
	return p.manifest.RecordUsage(latest, cfg.usage)
}

// firstDownload fetches a never-seen file from its source URL.
func (p *Project) firstDownload(ctx context.Context, log logrus.FieldLogger, abs, rel string, cfg trackConfig) error {
	log.WithField("source", cfg.source).Info("downloading new file")
	hash, err := p.store.Ingest(ctx, "", func(w io.Writer) error {
		return remote.Fetch(ctx, cfg.source, w, p.gatewayOptions())
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", cfg.source, err)
	}

	ok, err := p.store.Materialize(ctx, hash, abs)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: blob %s vanished from the cache", ErrStorageIO, hash)
	}

	_, err = p.manifest.AppendVersion(rel, hash, cfg.usage, cfg.source)
	return err
}

