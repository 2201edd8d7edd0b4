package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Save rewrites the manifest in full.
//
// Writers on this machine are serialized through an advisory lock kept in
// the user cache directory, keyed by the manifest path, and the file is
// replaced atomically so readers never see a torn write. Two processes that
// loaded the manifest at different times can still overwrite each other's
// additions.
func (m *Manifest) Save() error {
	data, err := m.encode()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	lockFile := lockPath(m.path)
	if err := os.MkdirAll(filepath.Dir(lockFile), 0755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(lockFile)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock manifest: %w", err)
	}
	defer lock.Unlock()

	if err := safeWrite(m.path, data, 0644); err != nil {
		return fmt.Errorf("write manifest %s: %w", m.path, err)
	}
	return nil
}

// lockPath returns the lock file guarding the manifest at path. It lives
// outside the project so it never shows up in version control.
func lockPath(path string) string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	sum := sha256.Sum256([]byte(path))
	return filepath.Join(dir, "lazyblob", "locks", hex.EncodeToString(sum[:8])+".lock")
}

// safeWrite writes data to path atomically: tempfile -> fsync -> rename.
func safeWrite(path string, data []byte, perm os.FileMode) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err = f.Chmod(perm); err != nil {
		f.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp to target: %w", err)
	}
	return nil
}
