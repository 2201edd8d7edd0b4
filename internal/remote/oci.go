package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aweris/lazyblob/internal/compression"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/sirupsen/logrus"
)

const hashLabel = "dev.lazyblob.hash"

// ociGateway stores every blob as a single-layer image tagged with its hash.
type ociGateway struct {
	repo name.Repository
	auth Authenticator
	comp *compression.Compressor
	log  logrus.FieldLogger
}

// newOCIGateway creates a gateway from oci://registry/repository.
func newOCIGateway(rawURL string, opts Options) (*ociGateway, error) {
	ref := strings.TrimSuffix(strings.TrimPrefix(rawURL, "oci://"), "/")
	repo, err := name.NewRepository(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid repository %q: %w", ErrUnsupportedScheme, ref, err)
	}
	auth := opts.Auth
	if auth == nil {
		auth = NewDefaultAuthenticator()
	}
	return &ociGateway{
		repo: repo,
		auth: auth,
		comp: compression.NewCompressor(opts.CompressionLevel),
		log:  opts.logger().WithField("remote", repo.String()),
	}, nil
}

func (g *ociGateway) String() string   { return g.repo.String() }
func (g *ociGateway) Registry() string { return g.repo.RegistryStr() }

func (g *ociGateway) tag(key string) (name.Tag, error) {
	hash, err := HashFromKey(key)
	if err != nil {
		return name.Tag{}, err
	}
	return g.repo.Tag(hash), nil
}

// Exists lists the repository's tags. A repository that has never been
// pushed to still counts, since the first push creates it.
func (g *ociGateway) Exists(ctx context.Context) (bool, error) {
	_, err := retry(ctx, 3, func() ([]string, error) {
		return remote.List(g.repo, g.remoteOptions(ctx)...)
	})
	if err == nil || statusCode(err) == http.StatusNotFound {
		return true, nil
	}
	return false, classifyOCI("list "+g.repo.String(), err)
}

func (g *ociGateway) Has(ctx context.Context, key string) (bool, error) {
	tag, err := g.tag(key)
	if err != nil {
		return false, err
	}
	_, err = retry(ctx, 3, func() (*v1.Descriptor, error) {
		return remote.Head(tag, g.remoteOptions(ctx)...)
	})
	if err == nil {
		return true, nil
	}
	if statusCode(err) == http.StatusNotFound {
		return false, nil
	}
	return false, classifyOCI("head "+tag.String(), err)
}

func (g *ociGateway) Upload(ctx context.Context, localPath, key string) error {
	tag, err := g.tag(key)
	if err != nil {
		return err
	}
	hash := tag.TagStr()

	layer, err := newBlobLayer(localPath, hash, g.comp)
	if err != nil {
		return fmt.Errorf("build layer: %w", err)
	}
	defer layer.Cleanup()

	img, err := buildImage(layer, hash)
	if err != nil {
		return fmt.Errorf("build image: %w", err)
	}

	g.log.WithFields(logrus.Fields{
		"tag":        tag.String(),
		"size":       layer.rawSize,
		"compressed": layer.size,
	}).Debug("pushing blob image")

	_, err = retry(ctx, 3, func() (struct{}, error) {
		return struct{}{}, remote.Write(tag, img, g.remoteOptions(ctx)...)
	})
	return classifyOCI("push "+tag.String(), err)
}

func (g *ociGateway) Download(ctx context.Context, key string, w io.Writer) error {
	tag, err := g.tag(key)
	if err != nil {
		return err
	}

	img, err := retry(ctx, 3, func() (v1.Image, error) {
		return remote.Image(tag, g.remoteOptions(ctx)...)
	})
	if err != nil {
		return classifyOCI("fetch "+tag.String(), err)
	}

	layers, err := img.Layers()
	if err != nil {
		return classifyOCI("get layers", err)
	}
	if len(layers) != 1 {
		return fmt.Errorf("%w: %s has %d layers, want 1", ErrNotFound, tag, len(layers))
	}

	rc, err := layers[0].Compressed()
	if err != nil {
		return classifyOCI("read layer", err)
	}
	defer rc.Close()

	dec, err := g.comp.Decompress(rc)
	if err != nil {
		return fmt.Errorf("decompress layer: %w", err)
	}
	defer dec.Close()

	if _, err := io.Copy(w, dec); err != nil {
		return classifyOCI("read layer", err)
	}
	return nil
}

func (g *ociGateway) Close() error { return nil }

func buildImage(layer v1.Layer, hash string) (v1.Image, error) {
	img, err := mutate.AppendLayers(empty.Image, layer)
	if err != nil {
		return nil, err
	}
	img = mutate.MediaType(img, types.OCIManifestSchema1)
	img = mutate.ConfigMediaType(img, types.OCIConfigJSON)

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}
	cfg = cfg.DeepCopy()
	cfg.Config.Labels = map[string]string{hashLabel: hash}

	return mutate.ConfigFile(img, cfg)
}

func (g *ociGateway) remoteOptions(ctx context.Context) []remote.Option {
	options := []remote.Option{remote.WithContext(ctx)}
	if g.auth != nil {
		username, password, err := g.auth.Authenticate(g.Registry())
		if err == nil && username != "" {
			return append(options, remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			}))
		}
	}
	return append(options, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}

// blobLayer implements v1.Layer over a zstd-compressed copy of a cached blob
// staged on disk, so large blobs are never held in memory.
type blobLayer struct {
	path    string
	digest  v1.Hash
	diffID  v1.Hash
	size    int64
	rawSize int64
	comp    *compression.Compressor
}

func newBlobLayer(src, hash string, comp *compression.Compressor) (_ *blobLayer, err error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	out, err := os.CreateTemp("", "lazyblob-layer-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(out.Name())
		}
	}()

	h := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(out, h)}
	raw, err := comp.Compress(counter, in)
	if err != nil {
		return nil, fmt.Errorf("compress %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	return &blobLayer{
		path:    out.Name(),
		digest:  v1.Hash{Algorithm: "sha256", Hex: hex.EncodeToString(h.Sum(nil))},
		diffID:  v1.Hash{Algorithm: "sha256", Hex: hash},
		size:    counter.n,
		rawSize: raw,
		comp:    comp,
	}, nil
}

func (l *blobLayer) Digest() (v1.Hash, error) { return l.digest, nil }
func (l *blobLayer) DiffID() (v1.Hash, error) { return l.diffID, nil }

func (l *blobLayer) Compressed() (io.ReadCloser, error) {
	return os.Open(l.path)
}

func (l *blobLayer) Uncompressed() (io.ReadCloser, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}
	dec, err := l.comp.Decompress(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &stackedCloser{ReadCloser: dec, under: f}, nil
}

func (l *blobLayer) Size() (int64, error)                { return l.size, nil }
func (l *blobLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

// Cleanup removes the staged compressed copy.
func (l *blobLayer) Cleanup() { os.Remove(l.path) }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type stackedCloser struct {
	io.ReadCloser
	under io.Closer
}

func (s *stackedCloser) Close() error {
	err := s.ReadCloser.Close()
	if cerr := s.under.Close(); err == nil {
		err = cerr
	}
	return err
}

func statusCode(err error) int {
	var terr *transport.Error
	if errors.As(err, &terr) {
		return terr.StatusCode
	}
	return 0
}

func classifyOCI(op string, err error) error {
	if err == nil {
		return nil
	}
	switch statusCode(err) {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s: %w", ErrAuth, op, err)
	}
	for _, known := range []error{ErrAuth, ErrCredentialsMissing, context.Canceled, context.DeadlineExceeded} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrRemoteUnreachable, op, err)
}

// retry runs fn up to maxAttempts times with exponential backoff. Registry
// errors that are not temporary are returned immediately.
func retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var terr *transport.Error
		if errors.As(err, &terr) && !terr.Temporary() {
			return zero, err
		}
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * 500 * time.Millisecond // 500ms, 1s, 2s, 4s...
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
