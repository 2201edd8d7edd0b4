package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()

	p := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(p, []byte(strings.TrimSpace(body)+"\n"), 0o644))
	return p
}

func initProject(t *testing.T) *Manifest {
	t.Helper()

	m, err := Init(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestInitWritesVersionOnly(t *testing.T) {
	t.Parallel()

	m := initProject(t)

	data, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))

	_, err = Init(filepath.Dir(m.Path()))
	assert.ErrorIs(t, err, ErrExists)
}

func TestLoadSearchesAncestors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeManifest(t, root, `version: 1`)
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	m, err := Load(deep)
	require.NoError(t, err)

	canonical, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, canonical, m.Dir())
}

func TestLoadPrefersNearestManifest(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeManifest(t, root, `version: 1`)
	inner := filepath.Join(root, "inner")
	require.NoError(t, os.MkdirAll(inner, 0o755))
	writeManifest(t, inner, `version: 1`)

	m, err := Load(inner)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(inner, FileName), m.Path())
}

func TestLoadNotFound(t *testing.T) {
	t.Parallel()

	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad yaml":        "version: [1",
		"wrong version":   "version: 7",
		"missing hash":    "version: 1\nfiles:\n- path: x.csv",
		"absolute path":   "version: 1\nfiles:\n- path: /etc/passwd\n  hash: " + hashA,
		"escaping path":   "version: 1\nfiles:\n- path: ../x.csv\n  hash: " + hashA,
		"usage as object": "version: 1\nfiles:\n- path: x.csv\n  hash: " + hashA + "\n  usage: {a: b}",
		"hash traversal":  "version: 1\nfiles:\n- path: out.txt\n  hash: ../../secret.txt",
		"short hash":      "version: 1\nfiles:\n- path: x.csv\n  hash: abc",
		"uppercase hash":  "version: 1\nfiles:\n- path: x.csv\n  hash: " + strings.ToUpper(hashA),
		"non-hex hash":    "version: 1\nfiles:\n- path: x.csv\n  hash: " + strings.Repeat("g", 64),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeManifest(t, dir, body)
			_, err := Load(dir)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestLoadAcceptsScalarAndListUsage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeManifest(t, dir, `
version: 1
remote: s3://bucket/prefix
endpoint: http://localhost:9000
files:
- path: data/one.csv
  hash: `+hashA+`
  usage: scripts/a.py
- path: data/two.csv
  hash: `+hashB+`
  usage:
  - scripts/a.py
  - scripts/b.py
  - scripts/a.py
- path: data/three.csv
  hash: `+hashB+`
`)

	m, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, m.Files, 3)
	require.NotNil(t, m.Remote)
	assert.Equal(t, "s3://bucket/prefix", m.Remote.URL)
	assert.Equal(t, "http://localhost:9000", m.Remote.Endpoint)

	assert.Equal(t, Usage{"scripts/a.py"}, m.Files[0].Usage)
	assert.Equal(t, Usage{"scripts/a.py", "scripts/b.py"}, m.Files[1].Usage)
	assert.Empty(t, m.Files[2].Usage)
}

func TestSaveDeterministicLayout(t *testing.T) {
	t.Parallel()

	m := initProject(t)
	require.NoError(t, m.SetRemote("s3://bucket", "http://minio:9000"))
	e, err := m.AppendVersion("data/x.csv", hashA, "a.go", "https://example.com/x.csv")
	require.NoError(t, err)
	require.NoError(t, m.RecordUsage(e, "b.go"))
	_, err = m.AppendVersion("data/y.csv", hashB, "a.go", "")
	require.NoError(t, err)

	data, err := os.ReadFile(m.Path())
	require.NoError(t, err)

	want := `version: 1
remote: s3://bucket
endpoint: http://minio:9000
files:
  - path: data/x.csv
    hash: ` + hashA + `
    usage:
      - a.go
      - b.go
    source_url: https://example.com/x.csv
  - path: data/y.csv
    hash: ` + hashB + `
    usage: a.go
`
	assert.Equal(t, want, string(data))
}

func TestSaveKeepsLockOutOfProject(t *testing.T) {
	t.Parallel()

	m := initProject(t)
	_, err := m.AppendVersion("x.csv", hashA, "a.go", "")
	require.NoError(t, err)

	entries, err := os.ReadDir(m.Dir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{FileName}, names)

	rel, err := filepath.Rel(m.Dir(), lockPath(m.Path()))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, ".."), "lock %s is inside the project", lockPath(m.Path()))
	assert.NotEqual(t, lockPath(m.Path()), lockPath(m.Path()+"x"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	m := initProject(t)
	first, err := m.AppendVersion("x.csv", hashA, "a.go", "")
	require.NoError(t, err)
	require.NoError(t, m.RecordUsage(first, "b.go"))
	_, err = m.AppendVersion("x.csv", hashB, "a.go", "https://example.com/x")
	require.NoError(t, err)

	loaded, err := LoadFile(m.Path())
	require.NoError(t, err)
	assert.Equal(t, m.Files, loaded.Files)
	assert.Equal(t, m.Version, loaded.Version)
	assert.Nil(t, loaded.Remote)
}

func TestLatestAndHistory(t *testing.T) {
	t.Parallel()

	m := initProject(t)
	v1, err := m.AppendVersion("x.csv", hashA, "", "")
	require.NoError(t, err)
	_, err = m.AppendVersion("other.csv", hashA, "", "")
	require.NoError(t, err)
	v2, err := m.AppendVersion("x.csv", hashB, "", "")
	require.NoError(t, err)

	latest, older := m.LatestAndHistory("x.csv")
	assert.Same(t, v2, latest)
	require.Len(t, older, 1)
	assert.Same(t, v1, older[0])

	latest, older = m.LatestAndHistory("never.csv")
	assert.Nil(t, latest)
	assert.Empty(t, older)
}

func TestRecordUsageIsIdempotent(t *testing.T) {
	t.Parallel()

	m := initProject(t)
	e, err := m.AppendVersion("x.csv", hashA, "a.go", "")
	require.NoError(t, err)

	require.NoError(t, m.RecordUsage(e, "a.go"))
	require.NoError(t, m.RecordUsage(e, "b.go"))
	require.NoError(t, m.RecordUsage(e, "b.go"))
	require.NoError(t, m.RecordUsage(e, ""))

	assert.Equal(t, Usage{"a.go", "b.go"}, e.Usage)
}

func TestAttachSource(t *testing.T) {
	t.Parallel()

	m := initProject(t)
	e, err := m.AppendVersion("x.csv", hashA, "a.go", "")
	require.NoError(t, err)

	got, err := m.AttachSource(e, "https://one.example/x.csv")
	require.NoError(t, err)
	assert.Same(t, e, got, "unset source is attached in place")
	assert.Len(t, m.Files, 1)

	got, err = m.AttachSource(e, "https://one.example/x.csv")
	require.NoError(t, err)
	assert.Same(t, e, got, "same source is a no-op")
	assert.Len(t, m.Files, 1)

	forked, err := m.AttachSource(e, "https://two.example/x.csv")
	require.NoError(t, err)
	require.Len(t, m.Files, 2)
	assert.NotSame(t, e, forked)
	assert.Equal(t, "https://one.example/x.csv", e.SourceURL, "old entry stays untouched")
	assert.Equal(t, Usage{"a.go"}, e.Usage)
	assert.Equal(t, "https://two.example/x.csv", forked.SourceURL)
	assert.Equal(t, e.Hash, forked.Hash)
	assert.Equal(t, e.Path, forked.Path)

	latest, _ := m.LatestAndHistory("x.csv")
	assert.Same(t, forked, latest)
}

func TestSetRemoteRefusesOverwrite(t *testing.T) {
	t.Parallel()

	m := initProject(t)
	require.NoError(t, m.SetRemote("gs://bucket", ""))
	assert.ErrorIs(t, m.SetRemote("s3://other", ""), ErrRemoteExists)
	assert.Equal(t, "gs://bucket", m.Remote.URL)
}

func TestRelResolvesAgainstManifestDir(t *testing.T) {
	t.Parallel()

	m := initProject(t)

	rel, err := m.Rel(filepath.Join(m.Dir(), "data", "x.csv"))
	require.NoError(t, err)
	assert.Equal(t, "data/x.csv", rel)
	assert.Equal(t, filepath.Join(m.Dir(), "data", "x.csv"), m.Abs(rel))

	_, err = m.Rel(filepath.Join(m.Dir(), "..", "outside.csv"))
	assert.ErrorIs(t, err, ErrPathOutsideProject)
}

func TestRelKeepsSymlinkedFileName(t *testing.T) {
	t.Parallel()

	m := initProject(t)
	shared := filepath.Join(m.Dir(), "shared", "x.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(shared), 0o755))
	require.NoError(t, os.WriteFile(shared, []byte("x"), 0o644))
	outside := filepath.Join(t.TempDir(), "y.csv")
	require.NoError(t, os.WriteFile(outside, []byte("y"), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(m.Dir(), "data"), 0o755))
	inner := filepath.Join(m.Dir(), "data", "x.csv")
	outer := filepath.Join(m.Dir(), "data", "y.csv")
	require.NoError(t, os.Symlink(shared, inner))
	require.NoError(t, os.Symlink(outside, outer))

	rel, err := m.Rel(inner)
	require.NoError(t, err)
	assert.Equal(t, "data/x.csv", rel)

	rel, err = m.Rel(outer)
	require.NoError(t, err)
	assert.Equal(t, "data/y.csv", rel)
}

func TestRelResolvesSymlinkedDirectories(t *testing.T) {
	t.Parallel()

	m := initProject(t)
	require.NoError(t, os.MkdirAll(filepath.Join(m.Dir(), "real"), 0o755))
	link := filepath.Join(t.TempDir(), "alias")
	require.NoError(t, os.Symlink(m.Dir(), link))

	rel, err := m.Rel(filepath.Join(link, "real", "x.csv"))
	require.NoError(t, err)
	assert.Equal(t, "real/x.csv", rel)
}

func TestQueries(t *testing.T) {
	t.Parallel()

	m := initProject(t)
	_, err := m.AppendVersion("data/a.csv", hashA, "s1.go", "")
	require.NoError(t, err)
	_, err = m.AppendVersion("data/sub/b.csv", hashB, "s2.go", "https://example.com/b")
	require.NoError(t, err)
	_, err = m.AppendVersion("top.csv", hashA, "s1.go", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"data/a.csv", "data/sub/b.csv", "top.csv"}, m.Paths())
	assert.Equal(t, []string{hashA, hashB}, m.Hashes())
	assert.Len(t, m.UsedBy("s1.go"), 2)
	assert.Len(t, m.UnderDir("data"), 2)
	assert.Len(t, m.UnderDir("."), 3)
	assert.Equal(t, "https://example.com/b", m.SourceFor(hashB))
	assert.Equal(t, "", m.SourceFor(hashA))
	assert.Equal(t, "top.csv", m.PathFor(hashA))
}
