// Package remote moves blobs between the local cache and remote storage.
//
// A remote is addressed by URL. The scheme selects the gateway:
//
//	s3://bucket/prefix        Amazon S3 or any S3-compatible endpoint
//	gs://bucket/prefix        Google Cloud Storage
//	az://container/prefix     Azure Blob Storage (azblob:// is accepted too)
//	https://host/prefix       read-only plain HTTP(S)
//	file:///dir, /dir, ./dir  a local folder
//	oci://registry/repo       an OCI registry, one image per blob
//
// Blobs live under data/<hash[:2]>/<hash[2:]> below the URL's path.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound           = errors.New("lazyblob: blob not found on remote")
	ErrRemoteUnreachable  = errors.New("lazyblob: remote unreachable")
	ErrAuth               = errors.New("lazyblob: remote rejected credentials")
	ErrCredentialsMissing = errors.New("lazyblob: remote credentials missing")
	ErrUploadUnsupported  = errors.New("lazyblob: remote does not support uploads")
	ErrUnsupportedScheme  = errors.New("lazyblob: unsupported remote scheme")
)

// Gateway is a storage backend addressed by blob keys.
type Gateway interface {
	// Exists reports whether the remote location itself is reachable.
	Exists(ctx context.Context) (bool, error)

	// Has reports whether key is present.
	Has(ctx context.Context, key string) (bool, error)

	// Upload copies the file at localPath to key.
	Upload(ctx context.Context, localPath, key string) error

	// Download streams key into w.
	Download(ctx context.Context, key string, w io.Writer) error

	Close() error
}

// Kind identifies the gateway implementation behind a URL.
type Kind int

const (
	LocalFolder Kind = iota
	S3
	GCS
	Azure
	PlainURL
	OCI
)

func (k Kind) String() string {
	switch k {
	case LocalFolder:
		return "folder"
	case S3:
		return "s3"
	case GCS:
		return "gcs"
	case Azure:
		return "azure"
	case PlainURL:
		return "url"
	case OCI:
		return "oci"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind classifies a remote URL by its scheme. A string without a
// scheme is a local folder.
func ParseKind(rawURL string) (Kind, error) {
	if rawURL == "" {
		return 0, fmt.Errorf("%w: empty url", ErrUnsupportedScheme)
	}
	scheme, _, ok := strings.Cut(rawURL, "://")
	if !ok {
		return LocalFolder, nil
	}
	switch strings.ToLower(scheme) {
	case "file":
		return LocalFolder, nil
	case "s3":
		return S3, nil
	case "gs":
		return GCS, nil
	case "az", "azblob":
		return Azure, nil
	case "http", "https":
		return PlainURL, nil
	case "oci":
		return OCI, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// Options configures gateway construction.
type Options struct {
	// Endpoint overrides the S3 service endpoint, e.g. a MinIO server.
	Endpoint string

	// CompressionLevel is the zstd level for OCI layers (1-4).
	CompressionLevel int

	// Auth supplies registry credentials for OCI remotes. Nil uses the
	// docker keychain.
	Auth Authenticator

	Logger logrus.FieldLogger
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// New opens the gateway for rawURL.
func New(ctx context.Context, rawURL string, opts Options) (Gateway, error) {
	kind, err := ParseKind(rawURL)
	if err != nil {
		return nil, err
	}
	switch kind {
	case PlainURL:
		return newHTTPGateway(rawURL, opts), nil
	case OCI:
		return newOCIGateway(rawURL, opts)
	default:
		return openBucket(ctx, kind, rawURL, opts)
	}
}
