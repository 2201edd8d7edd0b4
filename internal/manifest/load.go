package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aweris/lazyblob/internal/store"
	"gopkg.in/yaml.v3"
)

// Find returns the manifest in searchDir or the nearest ancestor holding one.
func Find(searchDir string) (string, error) {
	abs, err := filepath.Abs(searchDir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", searchDir, err)
	}

	for dir := abs; ; {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("%w: no %s in %s or any parent directory (run `lazyblob init`)", ErrNotFound, FileName, abs)
}

// Load locates and decodes the manifest governing searchDir.
func Load(searchDir string) (*Manifest, error) {
	p, err := Find(searchDir)
	if err != nil {
		return nil, err
	}
	return LoadFile(p)
}

// LoadFile decodes the manifest at p.
func LoadFile(p string) (*Manifest, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", p, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		return nil, fmt.Errorf("read manifest %s: %w", abs, err)
	}

	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}

	m, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, abs, err)
	}
	m.path = abs
	m.dir = dir
	return m, nil
}

// Init writes an empty manifest into dir.
func Init(dir string) (*Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	p := filepath.Join(abs, FileName)
	if _, err := os.Stat(p); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, p)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}

	m := &Manifest{Version: SchemaVersion, path: p, dir: canonical}
	if err := m.Save(); err != nil {
		return nil, err
	}
	return m, nil
}

func decode(data []byte) (*Manifest, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Version != SchemaVersion {
		return nil, fmt.Errorf("unsupported version %d (want %d)", doc.Version, SchemaVersion)
	}

	m := &Manifest{Version: doc.Version, Files: doc.Files}
	if doc.Remote != "" {
		m.Remote = &Remote{URL: doc.Remote, Endpoint: doc.Endpoint}
	}

	for i, e := range m.Files {
		if e == nil {
			return nil, fmt.Errorf("files[%d]: empty entry", i)
		}
		if e.Path == "" || e.Hash == "" {
			return nil, fmt.Errorf("files[%d]: path and hash are required", i)
		}
		if !store.ValidHash(e.Hash) {
			return nil, fmt.Errorf("files[%d]: hash %q is not a lowercase sha256 hex digest", i, e.Hash)
		}
		if path.IsAbs(e.Path) || path.Clean(e.Path) != e.Path || e.Path == ".." || strings.HasPrefix(e.Path, "../") {
			return nil, fmt.Errorf("files[%d]: path %q must be clean and relative to the manifest", i, e.Path)
		}
	}
	return m, nil
}

func (m *Manifest) encode() ([]byte, error) {
	doc := document{
		Version: m.Version,
		Files:   m.Files,
	}
	if m.Remote != nil {
		doc.Remote = m.Remote.URL
		doc.Endpoint = m.Remote.Endpoint
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Rel returns p relative to the project directory, slash separated.
// Symlinks in the parent directories are resolved; a symlinked file keeps
// its own name.
func (m *Manifest) Rel(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	if isFileLink(abs) {
		abs = filepath.Join(resolveExisting(filepath.Dir(abs)), filepath.Base(abs))
	} else {
		abs = resolveExisting(abs)
	}

	rel, err := filepath.Rel(m.dir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is not under %s", ErrPathOutsideProject, p, m.dir)
	}
	return filepath.ToSlash(rel), nil
}

// Abs returns the absolute location of a manifest-relative path.
func (m *Manifest) Abs(rel string) string {
	return filepath.Join(m.dir, filepath.FromSlash(rel))
}

// isFileLink reports whether p is a symlink that does not point at a
// directory. Dangling links count.
func isFileLink(p string) bool {
	info, err := os.Lstat(p)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return false
	}
	target, err := os.Stat(p)
	return err != nil || !target.IsDir()
}

// resolveExisting evaluates symlinks in the longest existing prefix of abs,
// so paths to files that do not exist yet still compare against the
// canonical project directory.
func resolveExisting(abs string) string {
	var rest []string
	cur := abs
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}
