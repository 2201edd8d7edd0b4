package remote

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aweris/lazyblob/internal/store"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	cases := map[string]Kind{
		"s3://bucket/prefix":      S3,
		"gs://bucket":             GCS,
		"az://container/p":        Azure,
		"azblob://container":      Azure,
		"https://example.com/d":   PlainURL,
		"http://example.com":      PlainURL,
		"file:///srv/lazyblob":    LocalFolder,
		"/srv/lazyblob":           LocalFolder,
		"relative/dir":            LocalFolder,
		"oci://ghcr.io/org/blobs": OCI,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseKind("ftp://example.com/x")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
	_, err = ParseKind("")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

// keyFor is KeyFor for hashes known to be valid.
func keyFor(t *testing.T, hash string) string {
	t.Helper()

	key, err := KeyFor(hash)
	require.NoError(t, err)
	return key
}

func TestKeyForRoundTrip(t *testing.T) {
	t.Parallel()

	hash := sum([]byte("x"))
	key := keyFor(t, hash)
	assert.Equal(t, "data/"+hash[:2]+"/"+hash[2:], key)

	back, err := HashFromKey(key)
	require.NoError(t, err)
	assert.Equal(t, hash, back)

	_, err = HashFromKey("other/ab/cd")
	assert.Error(t, err)
	_, err = HashFromKey("data/abc")
	assert.Error(t, err)
	_, err = HashFromKey("data/../../secret.txt")
	assert.ErrorIs(t, err, store.ErrInvalidHash)
}

func TestKeyForRejectsNonDigests(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{
		"",
		"ab",
		"../../secret.txt",
		strings.ToUpper(sum([]byte("x"))),
		sum([]byte("x"))[:63] + "/",
	} {
		_, err := KeyFor(bad)
		assert.ErrorIs(t, err, store.ErrInvalidHash, bad)
	}
}

func TestSplitSource(t *testing.T) {
	t.Parallel()

	base, key, err := SplitSource("s3://bucket/some/dir/x.csv")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket", base)
	assert.Equal(t, "some/dir/x.csv", key)

	base, key, err = SplitSource("https://example.com/files/x.csv")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/files/x.csv", base)
	assert.Empty(t, key)

	base, key, err = SplitSource("file:///srv/data/x.csv")
	require.NoError(t, err)
	assert.Equal(t, "/srv/data", base)
	assert.Equal(t, "x.csv", key)

	_, _, err = SplitSource("gs://bucket")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestFolderGateway(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	gw, err := New(ctx, "file://"+dir, Options{})
	require.NoError(t, err)
	defer gw.Close()

	ok, err := gw.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	data := []byte("remote payload")
	hash := sum(data)
	key := keyFor(t, hash)

	has, err := gw.Has(ctx, key)
	require.NoError(t, err)
	assert.False(t, has)

	var buf bytes.Buffer
	err = gw.Download(ctx, key, &buf)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, gw.Upload(ctx, writeTemp(t, data), key))

	has, err = gw.Has(ctx, key)
	require.NoError(t, err)
	assert.True(t, has)

	mirrored, err := os.ReadFile(filepath.Join(dir, "data", hash[:2], hash[2:]))
	require.NoError(t, err)
	assert.Equal(t, data, mirrored)

	buf.Reset()
	require.NoError(t, gw.Download(ctx, key, &buf))
	assert.Equal(t, data, buf.Bytes())
}

func TestFolderGatewayPrefixFromBarePath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	gw, err := New(ctx, dir, Options{})
	require.NoError(t, err)
	defer gw.Close()

	data := []byte("bare")
	require.NoError(t, gw.Upload(ctx, writeTemp(t, data), keyFor(t, sum(data))))
	assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(keyFor(t, sum(data)))))
}

func TestFolderGatewayMissingDir(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), filepath.Join(t.TempDir(), "nope"), Options{})
	assert.ErrorIs(t, err, ErrRemoteUnreachable)
}

func TestHTTPGateway(t *testing.T) {
	t.Parallel()

	data := []byte("served over http")
	hash := sum(data)
	key := keyFor(t, hash)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/store", "/store/":
			w.WriteHeader(http.StatusOK)
		case "/store/" + key:
			w.Write(data)
		case "/store/private":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	gw, err := New(ctx, srv.URL+"/store", Options{})
	require.NoError(t, err)
	defer gw.Close()

	ok, err := gw.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	has, err := gw.Has(ctx, key)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = gw.Has(ctx, keyFor(t, sum([]byte("other"))))
	require.NoError(t, err)
	assert.False(t, has)

	var buf bytes.Buffer
	require.NoError(t, gw.Download(ctx, key, &buf))
	assert.Equal(t, data, buf.Bytes())

	assert.ErrorIs(t, gw.Download(ctx, "missing", io.Discard), ErrNotFound)
	assert.ErrorIs(t, gw.Download(ctx, "private", io.Discard), ErrAuth)
	assert.ErrorIs(t, gw.Upload(ctx, writeTemp(t, data), key), ErrUploadUnsupported)
}

func TestFetchPlainURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/datasets/x.csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("a,b\n1,2\n"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	require.NoError(t, Fetch(context.Background(), srv.URL+"/datasets/x.csv", &buf, Options{}))
	assert.Equal(t, "a,b\n1,2\n", buf.String())

	err := Fetch(context.Background(), srv.URL+"/datasets/y.csv", io.Discard, Options{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchLocalFile(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, []byte("local source"))

	var buf bytes.Buffer
	require.NoError(t, Fetch(context.Background(), "file://"+p, &buf, Options{}))
	assert.Equal(t, "local source", buf.String())
}

func TestOCIGateway(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(registry.New(registry.Logger(log.New(io.Discard, "", 0))))
	defer srv.Close()

	ctx := context.Background()
	url := "oci://" + strings.TrimPrefix(srv.URL, "http://") + "/lazyblob/test"
	gw, err := New(ctx, url, Options{CompressionLevel: 1, Auth: StaticAuthenticator{}})
	require.NoError(t, err)
	defer gw.Close()

	ok, err := gw.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	data := bytes.Repeat([]byte("layer bytes "), 10_000)
	key := keyFor(t, sum(data))

	has, err := gw.Has(ctx, key)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, gw.Upload(ctx, writeTemp(t, data), key))

	has, err = gw.Has(ctx, key)
	require.NoError(t, err)
	assert.True(t, has)

	var buf bytes.Buffer
	require.NoError(t, gw.Download(ctx, key, &buf))
	assert.Equal(t, data, buf.Bytes())

	err = gw.Download(ctx, keyFor(t, sum([]byte("absent"))), io.Discard)
	assert.ErrorIs(t, err, ErrNotFound)
}
