// Package manifest reads and writes the project manifest, lazyblob.yml.
//
// The manifest is an append-mostly log of file versions. Entries are never
// reordered or removed; the latest version of a path is the last entry with
// that path. Every mutation rewrites the whole file.
package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the manifest file looked up in the project directory.
const FileName = "lazyblob.yml"

// SchemaVersion is the only manifest version this package reads and writes.
const SchemaVersion = 1

var (
	ErrNotFound           = errors.New("lazyblob: manifest not found")
	ErrParse              = errors.New("lazyblob: malformed manifest")
	ErrExists             = errors.New("lazyblob: manifest already exists")
	ErrPathOutsideProject = errors.New("lazyblob: path is outside the project")
	ErrRemoteExists       = errors.New("lazyblob: remote already configured")
)

// Remote is the storage backend configured for the project.
type Remote struct {
	URL      string
	Endpoint string
}

// FileEntry is one observed version of a tracked path.
type FileEntry struct {
	Path      string `yaml:"path"`
	Hash      string `yaml:"hash"`
	Usage     Usage  `yaml:"usage,omitempty"`
	SourceURL string `yaml:"source_url,omitempty"`
}

// Usage is the ordered set of sites that referenced an entry. On disk it is
// a bare string when there is exactly one site and a list otherwise.
type Usage []string

func (u Usage) Contains(site string) bool {
	for _, s := range u {
		if s == site {
			return true
		}
	}
	return false
}

func (u Usage) MarshalYAML() (any, error) {
	if len(u) == 1 {
		return u[0], nil
	}
	return []string(u), nil
}

func (u *Usage) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			*u = nil
			return nil
		}
		var site string
		if err := n.Decode(&site); err != nil {
			return err
		}
		if site == "" {
			*u = nil
			return nil
		}
		*u = Usage{site}
		return nil
	case yaml.SequenceNode:
		var sites []string
		if err := n.Decode(&sites); err != nil {
			return err
		}
		var out Usage
		for _, s := range sites {
			if s != "" && !out.Contains(s) {
				out = append(out, s)
			}
		}
		*u = out
		return nil
	default:
		return fmt.Errorf("line %d: usage must be a string or a list of strings", n.Line)
	}
}

// document is the on-disk shape. Field order is the serialized key order.
type document struct {
	Version  int          `yaml:"version"`
	Remote   string       `yaml:"remote,omitempty"`
	Endpoint string       `yaml:"endpoint,omitempty"`
	Files    []*FileEntry `yaml:"files,omitempty"`
}

// Manifest is a loaded lazyblob.yml.
type Manifest struct {
	Version int
	Remote  *Remote
	Files   []*FileEntry

	path string // absolute path of the manifest file
	dir  string // canonical project directory
}

// Path returns the manifest file location.
func (m *Manifest) Path() string { return m.path }

// Dir returns the project directory all entry paths are relative to.
func (m *Manifest) Dir() string { return m.dir }

// LatestAndHistory returns the last entry for relPath and all earlier ones,
// oldest first. latest is nil when the path has never been tracked.
func (m *Manifest) LatestAndHistory(relPath string) (latest *FileEntry, older []*FileEntry) {
	for _, e := range m.Files {
		if e.Path != relPath {
			continue
		}
		if latest != nil {
			older = append(older, latest)
		}
		latest = e
	}
	return latest, older
}

// AppendVersion records a new version of relPath and saves the manifest.
func (m *Manifest) AppendVersion(relPath, hash, usageSite, sourceURL string) (*FileEntry, error) {
	e := &FileEntry{
		Path:      relPath,
		Hash:      hash,
		SourceURL: sourceURL,
	}
	if usageSite != "" {
		e.Usage = Usage{usageSite}
	}
	m.Files = append(m.Files, e)
	if err := m.Save(); err != nil {
		return e, err
	}
	return e, nil
}

// RecordUsage adds usageSite to the entry. The manifest is only rewritten
// when the usage set actually grew.
func (m *Manifest) RecordUsage(e *FileEntry, usageSite string) error {
	if usageSite == "" || e.Usage.Contains(usageSite) {
		return nil
	}
	e.Usage = append(e.Usage, usageSite)
	return m.Save()
}

// AttachSource sets the entry's source URL. An entry that already points at
// a different source is left untouched and a new entry with the same path and
// hash is appended instead; that new entry is returned.
func (m *Manifest) AttachSource(e *FileEntry, url string) (*FileEntry, error) {
	switch e.SourceURL {
	case url:
		return e, nil
	case "":
		e.SourceURL = url
		return e, m.Save()
	default:
		forked := &FileEntry{
			Path:      e.Path,
			Hash:      e.Hash,
			SourceURL: url,
		}
		m.Files = append(m.Files, forked)
		return forked, m.Save()
	}
}

// SetRemote configures the project remote. It refuses to replace one.
func (m *Manifest) SetRemote(url, endpoint string) error {
	if m.Remote != nil {
		return fmt.Errorf("%w: %s", ErrRemoteExists, m.Remote.URL)
	}
	m.Remote = &Remote{URL: url, Endpoint: endpoint}
	return m.Save()
}

// Paths returns each tracked path once, in first-seen order.
func (m *Manifest) Paths() []string {
	seen := make(map[string]struct{}, len(m.Files))
	var out []string
	for _, e := range m.Files {
		if _, ok := seen[e.Path]; ok {
			continue
		}
		seen[e.Path] = struct{}{}
		out = append(out, e.Path)
	}
	return out
}

// Hashes returns each referenced hash once, in first-seen order.
func (m *Manifest) Hashes() []string {
	seen := make(map[string]struct{}, len(m.Files))
	var out []string
	for _, e := range m.Files {
		if _, ok := seen[e.Hash]; ok {
			continue
		}
		seen[e.Hash] = struct{}{}
		out = append(out, e.Hash)
	}
	return out
}

// UsedBy returns entries whose usage includes site.
func (m *Manifest) UsedBy(site string) []*FileEntry {
	var out []*FileEntry
	for _, e := range m.Files {
		if e.Usage.Contains(site) {
			out = append(out, e)
		}
	}
	return out
}

// UnderDir returns the latest entry of every tracked path below relDir.
// An empty or "." relDir selects everything.
func (m *Manifest) UnderDir(relDir string) []*FileEntry {
	relDir = path.Clean(relDir)
	var out []*FileEntry
	for _, p := range m.Paths() {
		if relDir != "." && !strings.HasPrefix(p, relDir+"/") {
			continue
		}
		latest, _ := m.LatestAndHistory(p)
		out = append(out, latest)
	}
	return out
}

// PathFor returns the path of the last entry with the given hash.
func (m *Manifest) PathFor(hash string) string {
	for i := len(m.Files) - 1; i >= 0; i-- {
		if m.Files[i].Hash == hash {
			return m.Files[i].Path
		}
	}
	return ""
}

// SourceFor returns the last source URL recorded for hash.
func (m *Manifest) SourceFor(hash string) string {
	for i := len(m.Files) - 1; i >= 0; i-- {
		if e := m.Files[i]; e.Hash == hash && e.SourceURL != "" {
			return e.SourceURL
		}
	}
	return ""
}
