package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// httpGateway reads blobs over plain HTTP(S). It cannot upload.
type httpGateway struct {
	base   string
	client *retryablehttp.Client
	log    logrus.FieldLogger
}

func newHTTPGateway(base string, opts Options) *httpGateway {
	log := opts.logger().WithField("remote", base)

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = leveledLogger{log}

	return &httpGateway{base: base, client: client, log: log}
}

func (g *httpGateway) url(key string) string {
	if key == "" {
		return g.base
	}
	return strings.TrimSuffix(g.base, "/") + "/" + key
}

// Exists probes the base URL. Servers that refuse HEAD count as present.
func (g *httpGateway) Exists(ctx context.Context) (bool, error) {
	resp, err := g.do(ctx, http.MethodHead, g.base)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNotFound:
		return false, nil
	case http.StatusMethodNotAllowed:
		return true, nil
	}
	if err := statusError("probe "+g.base, resp); err != nil {
		return false, err
	}
	return true, nil
}

func (g *httpGateway) Has(ctx context.Context, key string) (bool, error) {
	u := g.url(key)
	resp, err := g.do(ctx, http.MethodHead, u)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := statusError("stat "+u, resp); err != nil {
		return false, err
	}
	return true, nil
}

func (g *httpGateway) Upload(context.Context, string, string) error {
	return fmt.Errorf("%w: %s is read-only", ErrUploadUnsupported, g.base)
}

func (g *httpGateway) Download(ctx context.Context, key string, w io.Writer) error {
	u := g.url(key)
	g.log.WithField("url", u).Debug("downloading")

	resp, err := g.do(ctx, http.MethodGet, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := statusError("download "+u, resp); err != nil {
		return err
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: download %s: %w", ErrRemoteUnreachable, u, err)
	}
	return nil
}

func (g *httpGateway) Close() error {
	g.client.HTTPClient.CloseIdleConnections()
	return nil
}

func (g *httpGateway) do(ctx context.Context, method, u string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedScheme, u, err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRemoteUnreachable, method, u, err)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s: %s", ErrNotFound, op, resp.Status)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %s", ErrAuth, op, resp.Status)
	default:
		return fmt.Errorf("%w: %s: %s", ErrRemoteUnreachable, op, resp.Status)
	}
}

// leveledLogger adapts logrus to retryablehttp's logger interface.
type leveledLogger struct {
	log logrus.FieldLogger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.with(kv).Error(msg) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.with(kv).Warn(msg) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.with(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.with(kv).Debug(msg) }

func (l leveledLogger) with(kv []any) logrus.FieldLogger {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.log.WithFields(fields)
}
