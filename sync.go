package lazyblob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aweris/lazyblob/internal/manifest"
	"github.com/aweris/lazyblob/internal/remote"
	"github.com/aweris/lazyblob/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// PushResult lists the hashes handled by Push.
type PushResult struct {
	Uploaded []string
	Skipped  []string // already on the remote
}

// Push uploads every blob referenced by the manifest that the remote does
// not have yet. Failures for individual blobs do not stop the others; they
// are returned joined.
func (p *Project) Push(ctx context.Context) (PushResult, error) {
	var res PushResult

	gw, err := p.gateway(ctx)
	if err != nil {
		return res, err
	}

	hashes := p.manifest.Hashes()
	p.log.WithField("blobs", len(hashes)).Info("pushing")

	var mu sync.Mutex
	pl := pool.New().WithMaxGoroutines(p.opts.Concurrency).WithErrors().WithContext(ctx)
	for _, hash := range hashes {
		pl.Go(func(ctx context.Context) error {
			uploaded, err := p.pushBlob(ctx, gw, hash)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if uploaded {
				res.Uploaded = append(res.Uploaded, hash)
			} else {
				res.Skipped = append(res.Skipped, hash)
			}
			return nil
		})
	}
	err = pl.Wait()

	p.log.WithFields(logrus.Fields{
		"uploaded": len(res.Uploaded),
		"skipped":  len(res.Skipped),
	}).Info("push finished")
	return res, err
}

func (p *Project) pushBlob(ctx context.Context, gw remote.Gateway, hash string) (bool, error) {
	blob, err := p.store.BlobPath(hash)
	if err != nil {
		return false, err
	}
	if !p.store.Has(hash) {
		return false, fmt.Errorf("%w: %s (%s)", ErrBlobMissing, hash, p.manifest.PathFor(hash))
	}

	key, err := remote.KeyFor(hash)
	if err != nil {
		return false, err
	}
	present, err := gw.Has(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", hash, err)
	}
	if present {
		return false, nil
	}

	p.log.WithField("hash", hash).Debug("uploading")
	if err := gw.Upload(ctx, blob, key); err != nil {
		return false, fmt.Errorf("upload %s: %w", hash, err)
	}
	return true, nil
}

// PullResult lists the paths handled by Pull.
type PullResult struct {
	Restored []string
	Current  []string // already held the wanted version
}

// Pull restores tracked files from the cache, the remote or their sources.
//
// Without artefacts every tracked path gets its latest version. Otherwise
// each artefact is matched, in order, as a tracked path, as a usage site
// (restoring the versions that site used) or as a directory. Artefacts that
// match nothing are reported as ErrNotTracked.
func (p *Project) Pull(ctx context.Context, artefacts ...string) (PullResult, error) {
	var res PullResult

	entries, selectErr := p.selectEntries(artefacts)

	var errs []error
	if selectErr != nil {
		errs = append(errs, selectErr)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		dest := p.manifest.Abs(e.Path)
		if p.holds(ctx, dest, e.Hash) {
			res.Current = append(res.Current, e.Path)
			continue
		}
		if err := p.restore(ctx, e.Hash, dest); err != nil {
			errs = append(errs, fmt.Errorf("pull %s: %w", e.Path, err))
			continue
		}
		p.log.WithField("path", e.Path).Info("restored")
		res.Restored = append(res.Restored, e.Path)
	}
	return res, errors.Join(errs...)
}

// selectEntries resolves pull artefacts to manifest entries, at most one per
// path.
func (p *Project) selectEntries(artefacts []string) ([]*manifest.FileEntry, error) {
	if len(artefacts) == 0 {
		return p.manifest.UnderDir("."), nil
	}

	var (
		out       []*manifest.FileEntry
		seen      = make(map[string]struct{})
		unmatched []error
	)
	add := func(entries ...*manifest.FileEntry) {
		for _, e := range entries {
			if _, ok := seen[e.Path]; ok {
				continue
			}
			seen[e.Path] = struct{}{}
			out = append(out, e)
		}
	}

	for _, a := range artefacts {
		rel, err := p.manifest.Rel(a)
		if err != nil {
			rel = a
		}

		if latest, _ := p.manifest.LatestAndHistory(rel); latest != nil {
			add(latest)
			continue
		}
		if used := lastPerPath(p.manifest.UsedBy(rel)); len(used) > 0 {
			add(used...)
			continue
		}
		if rel != a {
			if used := lastPerPath(p.manifest.UsedBy(a)); len(used) > 0 {
				add(used...)
				continue
			}
		}
		if under := p.manifest.UnderDir(rel); len(under) > 0 && err == nil {
			add(under...)
			continue
		}
		unmatched = append(unmatched, fmt.Errorf("%w: %s", ErrNotTracked, a))
	}
	return out, errors.Join(unmatched...)
}

// lastPerPath keeps the last entry of every path, in first-seen order.
func lastPerPath(entries []*manifest.FileEntry) []*manifest.FileEntry {
	idx := make(map[string]int)
	var out []*manifest.FileEntry
	for _, e := range entries {
		if i, ok := idx[e.Path]; ok {
			out[i] = e
			continue
		}
		idx[e.Path] = len(out)
		out = append(out, e)
	}
	return out
}

// holds reports whether dest already contains hash.
func (p *Project) holds(ctx context.Context, dest, hash string) bool {
	if _, err := os.Stat(dest); err != nil {
		return false
	}
	if known, err := p.store.KnownHashes(ctx, dest); err == nil {
		if _, ok := known[hash]; ok {
			return true
		}
	}
	got, err := store.ComputeDigest(dest)
	if err != nil || got != hash {
		return false
	}
	p.store.Record(ctx, dest, got)
	return true
}

// Commit re-tracks every tracked file that is present, recording new
// versions of the ones that changed. No usage is recorded.
func (p *Project) Commit(ctx context.Context) error {
	var errs []error
	for _, rel := range p.manifest.Paths() {
		abs := p.manifest.Abs(rel)
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			p.log.WithField("path", rel).Warn("skipping missing file")
			continue
		}
		if _, err := p.track(ctx, abs, trackConfig{usageSet: true}); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", rel, err))
		}
	}
	return errors.Join(errs...)
}
