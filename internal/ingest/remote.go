package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/welltest/internal/httputil"
	"github.com/lox/welltest/internal/metrics"
)

var ErrUnsupportedSource = errors.New("unsupported source")

// Fetcher reads source files from disk, FTP servers (gauge loggers usually
// publish there) or HTTP. Remote reads are retried with exponential backoff.
type Fetcher struct {
	client         *http.Client
	maxElapsedTime time.Duration
	dialTimeout    time.Duration
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client:         httputil.NewClient(),
		maxElapsedTime: 2 * time.Minute,
		dialTimeout:    30 * time.Second,
	}
}

// Fetch returns the raw bytes of source, which may be a local path or an
// ftp://, http:// or https:// URL.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil || len(u.Scheme) <= 1 {
		// Not a URL, or a Windows drive letter.
		return readLocal(source)
	}

	start := time.Now()
	var body []byte
	switch u.Scheme {
	case "file":
		body, err = readLocal(u.Path)
	case "ftp":
		body, err = f.retry(ctx, func() ([]byte, error) { return f.fetchFTP(ctx, u) })
	case "http", "https":
		body, err = f.retry(ctx, func() ([]byte, error) { return f.fetchHTTP(ctx, u) })
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedSource, u.Scheme)
	}

	metrics.FetchLatency.WithLabelValues(u.Scheme).Observe(time.Since(start).Seconds())
	metrics.FetchesTotal.WithLabelValues(u.Scheme, metrics.Status(err)).Inc()
	return body, err
}

func readLocal(path string) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return body, nil
}

func (f *Fetcher) retry(ctx context.Context, fetch func() ([]byte, error)) ([]byte, error) {
	var body []byte
	operation := func() error {
		b, err := fetch()
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.maxElapsedTime
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.dialTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, ftpError("ftp login", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, ftpError("ftp retr", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// ftpError marks permanent (5xx) server replies so they are not retried.
func ftpError(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	var reply *textproto.Error
	if errors.As(err, &reply) && reply.Code >= 500 {
		return backoff.Permanent(wrapped)
	}
	return wrapped
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("fetch source: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("fetch source: status %d: %s", resp.StatusCode, string(b)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
