package lazyblob

import (
	"context"
	"os"

	"github.com/aweris/lazyblob/internal/manifest"
	"github.com/aweris/lazyblob/internal/store"
)

// State is how a tracked file on disk relates to its manifest history.
type State string

const (
	StateCurrent  State = "current"  // holds the latest version
	StateModified State = "modified" // holds content the manifest has never seen
	StateStale    State = "stale"    // holds an older version
	StateMissing  State = "missing"
	StateUnknown  State = "unknown" // could not be read
)

// FileStatus describes one tracked path.
type FileStatus struct {
	Path      string
	Hash      string // latest recorded hash
	State     State
	Versions  int
	Usage     []string
	SourceURL string
	Cached    bool // latest blob is in the local cache
}

// Status reports the state of every tracked path without changing anything.
func (p *Project) Status(ctx context.Context) ([]FileStatus, error) {
	var out []FileStatus
	for _, rel := range p.manifest.Paths() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		latest, older := p.manifest.LatestAndHistory(rel)
		out = append(out, FileStatus{
			Path:      rel,
			Hash:      latest.Hash,
			State:     p.classify(ctx, p.manifest.Abs(rel), latest.Hash, older),
			Versions:  len(older) + 1,
			Usage:     latest.Usage,
			SourceURL: latest.SourceURL,
			Cached:    p.store.Has(latest.Hash),
		})
	}
	return out, nil
}

func (p *Project) classify(ctx context.Context, abs, latest string, older []*manifest.FileEntry) State {
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return StateMissing
		}
		return StateUnknown
	}

	known, _ := p.store.KnownHashes(ctx, abs)
	if state, ok := match(known, latest, older); ok {
		return state
	}

	got, err := store.ComputeDigest(abs)
	if err != nil {
		return StateUnknown
	}
	if state, ok := match(map[string]struct{}{got: {}}, latest, older); ok {
		return state
	}
	return StateModified
}

func match(hashes map[string]struct{}, latest string, older []*manifest.FileEntry) (State, bool) {
	if _, ok := hashes[latest]; ok {
		return StateCurrent, true
	}
	for _, e := range older {
		if _, ok := hashes[e.Hash]; ok {
			return StateStale, true
		}
	}
	return "", false
}
