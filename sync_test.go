package lazyblob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRemote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newProject(t)
	dir := t.TempDir()

	require.NoError(t, p.AddRemote(ctx, "file://"+dir, ""))
	url, endpoint, ok := p.Remote()
	assert.True(t, ok)
	assert.Equal(t, "file://"+dir, url)
	assert.Empty(t, endpoint)
	assert.Contains(t, readManifest(t, p), "remote: file://"+dir)

	err := p.AddRemote(ctx, "file://"+t.TempDir(), "")
	assert.ErrorIs(t, err, ErrRemoteExists)
}

func TestAddRemoteRejectsUnreachable(t *testing.T) {
	t.Parallel()

	p := newProject(t)
	before := readManifest(t, p)

	err := p.AddRemote(context.Background(), filepath.Join(t.TempDir(), "nope"), "")
	assert.ErrorIs(t, err, ErrRemoteUnreachable)
	assert.Equal(t, before, readManifest(t, p))
	_, _, ok := p.Remote()
	assert.False(t, ok)
}

func TestAddRemoteRejectsUnknownScheme(t *testing.T) {
	t.Parallel()

	p := newProject(t)
	err := p.AddRemote(context.Background(), "ftp://example.com/data", "")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestAddSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newProject(t)
	path := filepath.Join(p.Dir(), "x.csv")
	writeFile(t, path, []byte("x"))

	assert.ErrorIs(t, p.AddSource(path, "https://example.com/x.csv"), ErrNotTracked)

	_, err := p.Track(ctx, path, WithUsage("a.go"))
	require.NoError(t, err)
	require.NoError(t, p.AddSource(path, "https://example.com/x.csv"))

	require.Len(t, p.manifest.Files, 1)
	assert.Equal(t, "https://example.com/x.csv", p.manifest.Files[0].SourceURL)
}

func TestPush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newProject(t)
	remoteDir := t.TempDir()
	require.NoError(t, p.AddRemote(ctx, remoteDir, ""))

	a, b := []byte("alpha"), []byte("bravo bravo")
	writeFile(t, filepath.Join(p.Dir(), "a.csv"), a)
	writeFile(t, filepath.Join(p.Dir(), "b.csv"), b)
	_, err := p.Track(ctx, filepath.Join(p.Dir(), "a.csv"), WithUsage("x.go"))
	require.NoError(t, err)
	_, err = p.Track(ctx, filepath.Join(p.Dir(), "b.csv"), WithUsage("x.go"))
	require.NoError(t, err)

	res, err := p.Push(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{sum(a), sum(b)}, res.Uploaded)
	assert.Empty(t, res.Skipped)

	for _, data := range [][]byte{a, b} {
		h := sum(data)
		got, err := os.ReadFile(filepath.Join(remoteDir, "data", h[:2], h[2:]))
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}

	res, err = p.Push(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Uploaded)
	assert.ElementsMatch(t, []string{sum(a), sum(b)}, res.Skipped)
}

func TestPushWithoutRemote(t *testing.T) {
	t.Parallel()

	_, err := newProject(t).Push(context.Background())
	assert.ErrorIs(t, err, ErrRemoteNotConfigured)
}

func TestPushReportsBlobsMissingLocally(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newProject(t)
	require.NoError(t, p.AddRemote(ctx, t.TempDir(), ""))
	writeFile(t, filepath.Join(p.Dir(), "a.csv"), []byte("a"))
	_, err := p.Track(ctx, filepath.Join(p.Dir(), "a.csv"), WithUsage("x.go"))
	require.NoError(t, err)

	_, err = reopen(t, p).Push(ctx)
	assert.ErrorIs(t, err, ErrBlobMissing)
}

func TestPullEverything(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newProject(t)
	require.NoError(t, p.AddRemote(ctx, t.TempDir(), ""))

	files := map[string][]byte{
		"a.csv":        []byte("a"),
		"nested/b.csv": []byte("bb"),
	}
	for rel, data := range files {
		writeFile(t, filepath.Join(p.Dir(), rel), data)
		_, err := p.Track(ctx, filepath.Join(p.Dir(), rel), WithUsage("x.go"))
		require.NoError(t, err)
	}
	_, err := p.Push(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(p.Dir(), "a.csv")))
	q := reopen(t, p)
	res, err := q.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv"}, res.Restored)
	assert.Equal(t, []string{"nested/b.csv"}, res.Current)

	for rel, data := range files {
		got, err := os.ReadFile(filepath.Join(p.Dir(), rel))
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestPullByUsageSite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newProject(t)
	a := filepath.Join(p.Dir(), "a.csv")
	b := filepath.Join(p.Dir(), "b.csv")
	writeFile(t, a, []byte("for training"))
	writeFile(t, b, []byte("for eval"))
	_, err := p.Track(ctx, a, WithUsage("train.go"))
	require.NoError(t, err)
	_, err = p.Track(ctx, b, WithUsage("eval.go"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(a))
	require.NoError(t, os.Remove(b))

	res, err := p.Pull(ctx, "train.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv"}, res.Restored)
	assert.FileExists(t, a)
	assert.NoFileExists(t, b)
}

func TestPullRestoresVersionUsedBySite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newProject(t)
	path := filepath.Join(p.Dir(), "x.csv")
	v1, v2 := []byte("old"), []byte("newer")

	writeFile(t, path, v1)
	_, err := p.Track(ctx, path, WithUsage("old.go"))
	require.NoError(t, err)
	rewrite(t, path, v2)
	_, err = p.Track(ctx, path, WithUsage("new.go"))
	require.NoError(t, err)

	_, err = p.Pull(ctx, "old.go")
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, v1, got)

	_, err = p.Pull(ctx, "x.csv")
	require.NoError(t, err)
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, v2, got)
}

func TestPullByDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newProject(t)
	in := filepath.Join(p.Dir(), "raw", "in.csv")
	out := filepath.Join(p.Dir(), "out.csv")
	writeFile(t, in, []byte("in"))
	writeFile(t, out, []byte("out"))
	for _, f := range []string{in, out} {
		_, err := p.Track(ctx, f, WithUsage("x.go"))
		require.NoError(t, err)
	}
	require.NoError(t, os.Remove(in))
	require.NoError(t, os.Remove(out))

	res, err := p.Pull(ctx, filepath.Join(p.Dir(), "raw"))
	require.NoError(t, err)
	assert.Equal(t, []string{"raw/in.csv"}, res.Restored)
	assert.NoFileExists(t, out)
}

func TestPullUnknownArtefact(t *testing.T) {
	t.Parallel()

	_, err := newProject(t).Pull(context.Background(), "nothing.go")
	assert.ErrorIs(t, err, ErrNotTracked)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newProject(t)
	paths := map[string]string{}
	for _, rel := range []string{"current.csv", "modified.csv", "missing.csv", "stale.csv"} {
		paths[rel] = filepath.Join(p.Dir(), rel)
		writeFile(t, paths[rel], []byte(rel))
		_, err := p.Track(ctx, paths[rel], WithUsage("x.go"))
		require.NoError(t, err)
	}

	rewrite(t, paths["modified.csv"], []byte("edited by hand"))
	require.NoError(t, os.Remove(paths["missing.csv"]))
	rewrite(t, paths["stale.csv"], []byte("stale v2"))
	_, err := p.Track(ctx, paths["stale.csv"], WithUsage("x.go"))
	require.NoError(t, err)
	_, err = p.store.Materialize(ctx, sum([]byte("stale.csv")), paths["stale.csv"])
	require.NoError(t, err)

	statuses, err := p.Status(ctx)
	require.NoError(t, err)

	got := map[string]FileStatus{}
	for _, s := range statuses {
		got[s.Path] = s
	}
	require.Len(t, got, 4)
	assert.Equal(t, StateCurrent, got["current.csv"].State)
	assert.Equal(t, StateModified, got["modified.csv"].State)
	assert.Equal(t, StateMissing, got["missing.csv"].State)
	assert.Equal(t, StateStale, got["stale.csv"].State)
	assert.Equal(t, 2, got["stale.csv"].Versions)
	assert.True(t, got["current.csv"].Cached)
	assert.Equal(t, []string{"x.go"}, got["current.csv"].Usage)
}

func TestCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newProject(t)
	changed := filepath.Join(p.Dir(), "changed.csv")
	missing := filepath.Join(p.Dir(), "missing.csv")
	writeFile(t, changed, []byte("v1"))
	writeFile(t, missing, []byte("gone soon"))
	for _, f := range []string{changed, missing} {
		_, err := p.Track(ctx, f, WithUsage("x.go"))
		require.NoError(t, err)
	}

	rewrite(t, changed, []byte("v2 after edit"))
	require.NoError(t, os.Remove(missing))

	require.NoError(t, p.Commit(ctx))

	latest, older := p.manifest.LatestAndHistory("changed.csv")
	require.Len(t, older, 1)
	assert.Equal(t, sum([]byte("v2 after edit")), latest.Hash)
	assert.Empty(t, latest.Usage)
	assert.Equal(t, []string{"x.go"}, []string(older[0].Usage))

	_, older = p.manifest.LatestAndHistory("missing.csv")
	assert.Empty(t, older)
	assert.NoFileExists(t, missing)
}
