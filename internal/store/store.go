// Package store implements the local content store.
//
// Blobs are kept by content hash with git-style sharding:
//
//	root/
//	  data/
//	    ab/cd123...  (raw file bytes, never rewritten)
//	  tmp/           (staging files, renamed into data/ once verified)
//	  index.db       (content records: abs path, mtime, size -> hash)
//
// The content records only let callers skip rehashing. Losing or corrupting
// index.db costs time, never correctness.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var (
	ErrStorageIO   = errors.New("lazyblob: storage i/o error")
	ErrIntegrity   = errors.New("lazyblob: content hash mismatch")
	ErrInvalidHash = errors.New("lazyblob: not a sha256 hex digest")
)

const (
	DefaultCacheSize = 4096
	indexFile        = "index.db"
)

// Options configures a Store.
type Options struct {
	CacheSize int
	Logger    logrus.FieldLogger
}

// Store is the content-addressed blob cache plus its content record index.
type Store struct {
	root    string
	dataDir string
	tmpDir  string

	records *recordIndex
	cache   *recordCache
	log     logrus.FieldLogger

	afterDigest func(abs string) // test hook, runs between hashing and recording
}

// Open creates or opens a store rooted at dir.
func Open(ctx context.Context, dir string, opts Options) (*Store, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}

	dataDir := filepath.Join(dir, "data")
	tmpDir := filepath.Join(dir, "tmp")
	for _, d := range []string{dataDir, tmpDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("%w: create directory %s: %w", ErrStorageIO, d, err)
		}
	}

	records, err := openRecordIndex(ctx, filepath.Join(dir, indexFile))
	if err != nil {
		return nil, fmt.Errorf("%w: open content index: %w", ErrStorageIO, err)
	}

	cache, err := newRecordCache(opts.CacheSize)
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("create record cache: %w", err)
	}

	return &Store{
		root:    dir,
		dataDir: dataDir,
		tmpDir:  tmpDir,
		records: records,
		cache:   cache,
		log:     opts.Logger.WithField("component", "store"),
	}, nil
}

// Root returns the directory the store lives in.
func (s *Store) Root() string { return s.root }

func (s *Store) Close() error {
	return s.records.Close()
}
