package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// bucketGateway serves S3, GCS, Azure and local folders through a
// gocloud bucket.
type bucketGateway struct {
	kind   Kind
	url    string
	bucket *blob.Bucket
	log    logrus.FieldLogger
}

func openBucket(ctx context.Context, kind Kind, rawURL string, opts Options) (*bucketGateway, error) {
	var (
		b   *blob.Bucket
		err error
	)
	if kind == LocalFolder {
		b, err = openFolder(rawURL)
	} else {
		b, err = openCloudBucket(ctx, kind, rawURL, opts.Endpoint)
	}
	if err != nil {
		return nil, classify("open "+rawURL, err)
	}
	return &bucketGateway{
		kind:   kind,
		url:    rawURL,
		bucket: b,
		log:    opts.logger().WithField("remote", rawURL),
	}, nil
}

func openFolder(rawURL string) (*blob.Bucket, error) {
	dir := rawURL
	if strings.HasPrefix(rawURL, "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedScheme, rawURL, err)
		}
		dir = u.Path
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		return nil, fmt.Errorf("%w: folder %s does not exist", ErrRemoteUnreachable, abs)
	case err != nil:
		return nil, err
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRemoteUnreachable, abs)
	}

	return fileblob.OpenBucket(abs, &fileblob.Options{
		NoTempDir: true,
		Metadata:  fileblob.MetadataDontWrite,
	})
}

func openCloudBucket(ctx context.Context, kind Kind, rawURL, endpoint string) (*blob.Bucket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedScheme, rawURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %s has no bucket name", ErrUnsupportedScheme, rawURL)
	}

	scheme := u.Scheme
	q := u.Query()
	switch kind {
	case S3:
		if endpoint != "" {
			q.Set("endpoint", endpoint)
			q.Set("use_path_style", "true")
		}
	case Azure:
		scheme = "azblob"
		if os.Getenv("AZURE_STORAGE_ACCOUNT") == "" {
			return nil, fmt.Errorf("%w: AZURE_STORAGE_ACCOUNT is not set (run `lazyblob config azure`)", ErrCredentialsMissing)
		}
	}

	bucketURL := (&url.URL{Scheme: scheme, Host: u.Host, RawQuery: q.Encode()}).String()
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	if prefix := strings.Trim(u.Path, "/"); prefix != "" {
		b = blob.PrefixedBucket(b, prefix+"/")
	}
	return b, nil
}

func (g *bucketGateway) Exists(ctx context.Context) (bool, error) {
	ok, err := g.bucket.IsAccessible(ctx)
	if err != nil {
		return false, classify("probe "+g.url, err)
	}
	return ok, nil
}

func (g *bucketGateway) Has(ctx context.Context, key string) (bool, error) {
	ok, err := g.bucket.Exists(ctx, key)
	if err != nil {
		return false, classify("stat "+key, err)
	}
	return ok, nil
}

func (g *bucketGateway) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	g.log.WithField("key", key).Debug("uploading blob")
	err = g.bucket.Upload(ctx, key, f, &blob.WriterOptions{
		ContentType: "application/octet-stream",
	})
	return classify("upload "+key, err)
}

func (g *bucketGateway) Download(ctx context.Context, key string, w io.Writer) error {
	g.log.WithField("key", key).Debug("downloading blob")
	return classify("download "+key, g.bucket.Download(ctx, key, w, nil))
}

func (g *bucketGateway) Close() error {
	return g.bucket.Close()
}

// classify maps driver errors onto the package's error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrNotFound, ErrAuth, ErrCredentialsMissing, ErrRemoteUnreachable, ErrUnsupportedScheme,
		context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
	case gcerrors.PermissionDenied:
		return fmt.Errorf("%w: %s: %w", ErrAuth, op, err)
	case gcerrors.Canceled, gcerrors.DeadlineExceeded:
		return fmt.Errorf("%s: %w", op, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "credential") {
		return fmt.Errorf("%w: %s: %w", ErrCredentialsMissing, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrRemoteUnreachable, op, err)
}
