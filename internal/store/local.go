package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BlobPath returns the filesystem path for a blob hash.
// Git-style sharding: data/ab/cd123...
func (s *Store) BlobPath(hash string) (string, error) {
	if !ValidHash(hash) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return filepath.Join(s.dataDir, hash[:2], hash[2:]), nil
}

// Has reports whether the blob is present locally.
func (s *Store) Has(hash string) bool {
	p, err := s.BlobPath(hash)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Store copies the file at path into the blob cache, unless a blob with the
// same hash already exists, and refreshes its content record.
func (s *Store) Store(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %w", ErrStorageIO, path, err)
	}

	before, err := identityOf(abs)
	if err != nil {
		return "", err
	}
	hash, err := ComputeDigest(abs)
	if err != nil {
		return "", err
	}
	if s.afterDigest != nil {
		s.afterDigest(abs)
	}

	if !s.Has(hash) {
		if err := s.copyIn(abs, hash); err != nil {
			return "", err
		}
		s.log.WithField("hash", hash).Debug("stored new blob")
	}

	// A record is only valid for the identity the bytes were read under.
	if after, err := identityOf(abs); err != nil || after != before {
		s.log.WithField("path", abs).Debug("file changed while hashing, not recorded")
		return hash, nil
	}
	s.put(ctx, before, hash)
	return hash, nil
}

// copyIn stages the file and commits it under hash. The staged bytes are
// hashed again so a file modified mid-copy is never committed.
func (s *Store) copyIn(abs, hash string) error {
	src, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrStorageIO, abs, err)
	}
	defer src.Close()

	_, err = s.ingest(hash, func(w io.Writer) error {
		_, err := io.CopyBuffer(w, src, make([]byte, chunkSize))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrIntegrity) {
			return fmt.Errorf("%w: %s changed while being stored", ErrStorageIO, abs)
		}
		return err
	}
	return nil
}

// Ingest streams bytes produced by fill into the cache. When expected is
// non-empty, the content must hash to it or nothing is kept and ErrIntegrity
// is returned. The resulting hash is returned either way.
func (s *Store) Ingest(ctx context.Context, expected string, fill func(w io.Writer) error) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.ingest(expected, fill)
}

func (s *Store) ingest(expected string, fill func(w io.Writer) error) (string, error) {
	if expected != "" && !ValidHash(expected) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, expected)
	}

	tmp, err := os.CreateTemp(s.tmpDir, "blob-*")
	if err != nil {
		return "", fmt.Errorf("%w: create staging file: %w", ErrStorageIO, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	h := sha256.New()
	if err := fill(io.MultiWriter(tmp, h)); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: fsync staging file: %w", ErrStorageIO, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close staging file: %w", ErrStorageIO, err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if expected != "" && got != expected {
		return got, fmt.Errorf("%w: expected %s, got %s", ErrIntegrity, expected, got)
	}

	if s.Has(got) {
		return got, nil
	}

	dst, err := s.BlobPath(got)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("%w: create blob directory: %w", ErrStorageIO, err)
	}
	if err := os.Chmod(tmpPath, 0444); err != nil {
		return "", fmt.Errorf("%w: chmod staging file: %w", ErrStorageIO, err)
	}
	// Same hash means same bytes, so losing a rename race to another writer
	// is harmless.
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("%w: commit blob %s: %w", ErrStorageIO, got, err)
	}
	committed = true
	return got, nil
}

// Materialize copies the blob to dest, overwriting it. It returns false if
// the blob is not present locally; the caller then has to fetch it.
func (s *Store) Materialize(ctx context.Context, hash, dest string) (bool, error) {
	blob, err := s.BlobPath(hash)
	if err != nil {
		return false, err
	}
	src, err := os.Open(blob)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: open blob %s: %w", ErrStorageIO, hash, err)
	}
	defer src.Close()

	abs, err := filepath.Abs(dest)
	if err != nil {
		return false, fmt.Errorf("%w: resolve %s: %w", ErrStorageIO, dest, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return false, fmt.Errorf("%w: create directory for %s: %w", ErrStorageIO, abs, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".lazyblob-*")
	if err != nil {
		return false, fmt.Errorf("%w: create temp file for %s: %w", ErrStorageIO, abs, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.CopyBuffer(tmp, src, make([]byte, chunkSize)); err != nil {
		tmp.Close()
		return false, fmt.Errorf("%w: copy blob %s: %w", ErrStorageIO, hash, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return false, fmt.Errorf("%w: chmod %s: %w", ErrStorageIO, abs, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("%w: close %s: %w", ErrStorageIO, abs, err)
	}
	if err := os.Rename(tmpPath, abs); err != nil {
		return false, fmt.Errorf("%w: replace %s: %w", ErrStorageIO, abs, err)
	}
	tmpPath = ""

	if err := s.Record(ctx, abs, hash); err != nil {
		return true, err
	}
	return true, nil
}

// KnownHashes returns the hashes previously recorded for the file's current
// (path, mtime, size). An empty set only means "unknown".
func (s *Store) KnownHashes(ctx context.Context, path string) (map[string]struct{}, error) {
	id, err := identityOf(path)
	if err != nil {
		return nil, err
	}

	hashes, ok := s.cache.Get(id)
	if !ok {
		hashes, err = s.records.Lookup(ctx, id)
		if err != nil {
			// The index is only a hint; fall back to rehashing.
			s.log.WithError(err).WithField("path", id.AbsPath).Warn("content index lookup failed")
			hashes = nil
		} else {
			s.cache.Set(id, hashes)
		}
	}

	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	return set, nil
}

// Record memoizes hash for the file's current identity.
func (s *Store) Record(ctx context.Context, path, hash string) error {
	id, err := identityOf(path)
	if err != nil {
		return err
	}
	s.put(ctx, id, hash)
	return nil
}

func (s *Store) put(ctx context.Context, id identity, hash string) {
	if err := s.records.Put(ctx, id, hash); err != nil {
		s.log.WithError(err).WithField("path", id.AbsPath).Warn("content index update failed")
		return
	}
	s.cache.Add(id, hash)
}

func identityOf(path string) (identity, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return identity{}, fmt.Errorf("%w: resolve %s: %w", ErrStorageIO, path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return identity{}, fmt.Errorf("%w: stat %s: %w", ErrStorageIO, abs, err)
	}
	return identity{
		AbsPath: abs,
		MTime:   info.ModTime().UnixNano(),
		Size:    info.Size(),
	}, nil
}
