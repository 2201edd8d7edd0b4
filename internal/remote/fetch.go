package remote

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
)

// Fetch downloads an arbitrary source URL into w. Bucket URLs are split into
// the bucket and the object key; plain URLs are fetched as they are.
func Fetch(ctx context.Context, sourceURL string, w io.Writer, opts Options) (err error) {
	base, key, err := SplitSource(sourceURL)
	if err != nil {
		return err
	}

	gw, err := New(ctx, base, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := gw.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return gw.Download(ctx, key, w)
}

// SplitSource separates a source URL into a gateway URL and a key within it.
func SplitSource(sourceURL string) (base, key string, err error) {
	kind, err := ParseKind(sourceURL)
	if err != nil {
		return "", "", err
	}

	switch kind {
	case PlainURL:
		return sourceURL, "", nil
	case OCI:
		return "", "", fmt.Errorf("%w: oci sources cannot be fetched directly", ErrUnsupportedScheme)
	case LocalFolder:
		p := sourceURL
		if strings.HasPrefix(sourceURL, "file://") {
			u, err := url.Parse(sourceURL)
			if err != nil {
				return "", "", fmt.Errorf("%w: %s: %w", ErrUnsupportedScheme, sourceURL, err)
			}
			p = u.Path
		}
		return filepath.Dir(p), filepath.Base(p), nil
	}

	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %w", ErrUnsupportedScheme, sourceURL, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: %s names a bucket, not an object", ErrUnsupportedScheme, sourceURL)
	}
	u.Path = ""
	u.RawPath = ""
	return u.String(), key, nil
}
