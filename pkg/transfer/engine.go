// Package transfer downloads a runtime archive into memory: a TCP
// connectivity preflight, then a streaming read that reports progress and
// honours cancellation after every chunk.
package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runtimeboot/runtimeboot/pkg/descriptor"
	"github.com/runtimeboot/runtimeboot/pkg/errors"
	"github.com/runtimeboot/runtimeboot/pkg/progress"
	"github.com/runtimeboot/runtimeboot/pkg/storage"
)

const (
	// DefaultPreflightTimeout bounds the connectivity check.
	DefaultPreflightTimeout = 10 * time.Second
	// DefaultHTTPTimeout bounds a whole HTTP download.
	DefaultHTTPTimeout = 30 * time.Minute
	// DefaultUserAgent is the User-Agent header sent with requests.
	DefaultUserAgent = "runtimeboot/1.0"
	// DefaultMaxSize caps the declared payload size that will be buffered.
	DefaultMaxSize = 2 * 1024 * 1024 * 1024

	chunkSize = 64 * 1024

	// maxPrealloc caps how much of a declared length is allocated before
	// any byte arrives.
	maxPrealloc int64 = 8 * 1024 * 1024
)

// ObjectStore opens s3:// sources. *storage.Client implements it.
type ObjectStore interface {
	Open(ctx context.Context, bucket, key string) (*storage.Object, error)
	Server(bucket string) string
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	PreflightTimeout time.Duration
	HTTPTimeout      time.Duration
	UserAgent        string
	MaxSize          int64
	// Store serves s3:// URLs; they fail when it is nil.
	Store ObjectStore
}

// Engine downloads runtime payloads.
type Engine struct {
	client           *http.Client
	dialer           *net.Dialer
	store            ObjectStore
	userAgent        string
	maxSize          int64
	preflightTimeout time.Duration
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	if opts.PreflightTimeout <= 0 {
		opts.PreflightTimeout = DefaultPreflightTimeout
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = DefaultHTTPTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}

	return &Engine{
		client: &http.Client{
			Timeout: opts.HTTPTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		dialer:           &net.Dialer{Timeout: opts.PreflightTimeout},
		store:            opts.Store,
		userAgent:        opts.UserAgent,
		maxSize:          opts.MaxSize,
		preflightTimeout: opts.PreflightTimeout,
	}
}

// Server resolves the host:port a download URL will connect to. The scheme's
// default port is used when the URL has none.
func (e *Engine) Server(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return e.server(u)
}

func (e *Engine) server(u *url.URL) (string, error) {
	switch u.Scheme {
	case "http", "https":
		if u.Hostname() == "" {
			return "", fmt.Errorf("download url has no host: %s", u)
		}
		port := u.Port()
		if port == "" {
			port = "80"
			if u.Scheme == "https" {
				port = "443"
			}
		}
		return net.JoinHostPort(u.Hostname(), port), nil
	case "s3":
		if e.store == nil {
			return "", fmt.Errorf("s3 downloads are not configured")
		}
		bucket, _, err := storage.ParseURL(u)
		if err != nil {
			return "", err
		}
		return e.store.Server(bucket), nil
	default:
		return "", fmt.Errorf("unsupported download scheme %q", u.Scheme)
	}
}

// Preflight opens and closes a TCP connection to the download server.
func (e *Engine) Preflight(ctx context.Context, rawURL string) error {
	server, err := e.Server(rawURL)
	if err != nil {
		return &Error{URL: rawURL, Err: err}
	}

	slog.Info("transfer_preflight", "server", server, "timeout", e.preflightTimeout)
	conn, err := e.dialer.DialContext(ctx, "tcp", server)
	if err != nil {
		slog.Error("transfer_preflight_failed", "server", server, "error", err)
		return &ServerUnreachableError{Server: server, Err: err}
	}
	conn.Close()
	return nil
}

// Download runs the preflight and streams the payload of desc into memory.
// When the sink reports cancellation after a chunk the partial payload is
// discarded and errors.ErrCancelled is returned.
func (e *Engine) Download(ctx context.Context, desc *descriptor.Descriptor, sink progress.Sink) ([]byte, error) {
	if err := e.Preflight(ctx, desc.DownloadURL); err != nil {
		return nil, err
	}
	return e.Fetch(ctx, desc, sink)
}

// Fetch streams the payload of desc without a preflight.
func (e *Engine) Fetch(ctx context.Context, desc *descriptor.Descriptor, sink progress.Sink) ([]byte, error) {
	if sink == nil {
		sink = progress.Noop{}
	}

	body, total, err := e.open(ctx, desc.DownloadURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	fail := func(err error) ([]byte, error) {
		slog.Error("transfer_failed", "url", desc.DownloadURL, "error", err)
		return nil, &Error{URL: desc.DownloadURL, Err: err}
	}

	if total < 0 {
		return fail(ErrUnknownLength)
	}
	if total > e.maxSize {
		return fail(fmt.Errorf("declared size %s exceeds limit %s", humanize.Bytes(uint64(total)), humanize.Bytes(uint64(e.maxSize))))
	}

	slog.Info("transfer_start", "url", desc.DownloadURL, "bytes", total)

	payload := make([]byte, 0, initialCapacity(total))
	chunk := make([]byte, chunkSize)
	for {
		n, readErr := body.Read(chunk)
		if n > 0 {
			if int64(len(payload)+n) > total {
				return fail(fmt.Errorf("received more than the declared %d bytes", total))
			}
			payload = append(payload, chunk[:n]...)

			received := uint64(len(payload))
			sink.ReportProgress(
				fmt.Sprintf("Downloading runtime %s: %s/%s", desc.Version, humanize.Bytes(received), humanize.Bytes(uint64(total))),
				fraction(received, uint64(total)))
			if sink.IsCancelled() {
				slog.Info("transfer_cancelled", "url", desc.DownloadURL, "received", received, "total", total)
				return nil, errors.ErrCancelled
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return nil, errors.ErrCancelled
			}
			return fail(readErr)
		}
	}

	if int64(len(payload)) != total {
		return fail(fmt.Errorf("received %d bytes, server declared %d", len(payload), total))
	}

	slog.Info("transfer_complete", "url", desc.DownloadURL, "bytes", len(payload))
	return payload, nil
}

// initialCapacity bounds the buffer allocated up front for a declared
// length; append grows it as bytes actually arrive.
func initialCapacity(total int64) int {
	return int(min(total, maxPrealloc))
}

func (e *Engine) open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, &Error{URL: rawURL, Err: err}
	}

	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, 0, &Error{URL: rawURL, Err: err}
		}
		req.Header.Set("User-Agent", e.userAgent)
		// Keep the transport from decompressing and dropping the length.
		req.Header.Set("Accept-Encoding", "identity")

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, errors.ErrCancelled
			}
			return nil, 0, &Error{URL: rawURL, Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, 0, &Error{URL: rawURL, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
		}
		return resp.Body, resp.ContentLength, nil

	case "s3":
		if e.store == nil {
			return nil, 0, &Error{URL: rawURL, Err: fmt.Errorf("s3 downloads are not configured")}
		}
		bucket, key, err := storage.ParseURL(u)
		if err != nil {
			return nil, 0, &Error{URL: rawURL, Err: err}
		}
		obj, err := e.store.Open(ctx, bucket, key)
		if err != nil {
			return nil, 0, &Error{URL: rawURL, Err: err}
		}
		return obj.Body, obj.ContentLength, nil

	default:
		return nil, 0, &Error{URL: rawURL, Err: fmt.Errorf("unsupported download scheme %q", u.Scheme)}
	}
}

func fraction(received, total uint64) float64 {
	if total == 0 {
		return 1
	}
	return float64(received) / float64(total)
}
