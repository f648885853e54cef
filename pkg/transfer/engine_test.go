package transfer

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/runtimeboot/runtimeboot/pkg/descriptor"
	"github.com/runtimeboot/runtimeboot/pkg/errors"
	"github.com/runtimeboot/runtimeboot/pkg/progress"
	"github.com/runtimeboot/runtimeboot/pkg/storage"
)

func testPayload(size int) []byte {
	return bytes.Repeat([]byte("runtime!"), size/8)
}

func servePayload(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("unexpected User-Agent: %s", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	payload := testPayload(256 * 1024)
	srv := servePayload(t, payload)
	tracker := progress.NewTracker()

	got, err := NewEngine(Options{}).Download(context.Background(), &descriptor.Descriptor{
		Version:     "8.0.5",
		DownloadURL: srv.URL + "/runtime.tar.gz",
	}, tracker)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}

	st := tracker.Snapshot()
	if st.Fraction != 1 {
		t.Errorf("final fraction = %v, want 1", st.Fraction)
	}
	if !strings.HasPrefix(st.Text, "Downloading runtime 8.0.5: ") || !strings.HasSuffix(st.Text, "262 kB/262 kB") {
		t.Errorf("final message = %q", st.Text)
	}
}

type cancelAfterBytes struct {
	progress.Noop
	after    float64
	fraction float64
	reports  int
}

func (c *cancelAfterBytes) ReportProgress(_ string, fraction float64) {
	c.fraction = fraction
	c.reports++
}

func (c *cancelAfterBytes) IsCancelled() bool { return c.fraction >= c.after }

func TestDownloadCancel(t *testing.T) {
	payload := testPayload(1024 * 1024)
	srv := servePayload(t, payload)
	sink := &cancelAfterBytes{after: 0.0000001}

	got, err := NewEngine(Options{}).Download(context.Background(), &descriptor.Descriptor{
		Version:     "8.0.5",
		DownloadURL: srv.URL,
	}, sink)
	if !errors.IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if got != nil {
		t.Error("partial payload returned after cancellation")
	}
	if sink.reports != 1 {
		t.Errorf("reading continued after cancellation: %d reports", sink.reports)
	}
	if sink.fraction >= 1 {
		t.Errorf("cancelled download reached the end: %v", sink.fraction)
	}
}

func TestDownloadMissingContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		w.Write([]byte("chunked body"))
	}))
	defer srv.Close()

	_, err := NewEngine(Options{}).Download(context.Background(), &descriptor.Descriptor{DownloadURL: srv.URL}, nil)
	if !errors.Is(err, ErrUnknownLength) {
		t.Fatalf("expected ErrUnknownLength, got %v", err)
	}
	if errors.KindOf(err) != errors.KindTransfer {
		t.Errorf("KindOf = %v", errors.KindOf(err))
	}
}

func TestDownloadShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("only a little"))
	}))
	defer srv.Close()

	_, err := NewEngine(Options{}).Download(context.Background(), &descriptor.Descriptor{DownloadURL: srv.URL}, nil)
	if errors.KindOf(err) != errors.KindTransfer {
		t.Fatalf("expected transfer error, got %v", err)
	}
}

func TestDownloadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewEngine(Options{}).Download(context.Background(), &descriptor.Descriptor{DownloadURL: srv.URL}, nil)
	if errors.KindOf(err) != errors.KindTransfer {
		t.Fatalf("expected transfer error, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("status missing from error: %v", err)
	}
}

func TestDownloadServerUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewEngine(Options{PreflightTimeout: time.Second}).Download(context.Background(), &descriptor.Descriptor{
		DownloadURL: "http://" + addr + "/runtime.tar.gz",
	}, nil)

	var unreachable *ServerUnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("expected ServerUnreachableError, got %v", err)
	}
	if unreachable.Server != addr {
		t.Errorf("Server = %s, want %s", unreachable.Server, addr)
	}
	if errors.KindOf(err) != errors.KindServerUnreachable {
		t.Errorf("KindOf = %v", errors.KindOf(err))
	}
}

func TestServer(t *testing.T) {
	e := NewEngine(Options{})

	tests := []struct {
		url       string
		want      string
		shouldErr bool
	}{
		{"https://example.org/runtime.tar.gz", "example.org:443", false},
		{"http://example.org/runtime.tar.gz", "example.org:80", false},
		{"https://example.org:8443/runtime.tar.gz", "example.org:8443", false},
		{"http://[::1]:9000/x", "[::1]:9000", false},
		{"ftp://example.org/x", "", true},
		{"s3://bucket/key", "", true},
		{"https:///nohost", "", true},
	}

	for _, tt := range tests {
		got, err := e.Server(tt.url)
		if tt.shouldErr {
			if err == nil {
				t.Errorf("Server(%s): expected error", tt.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("Server(%s): %v", tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Server(%s) = %s, want %s", tt.url, got, tt.want)
		}
	}
}

func TestDownloadFromS3(t *testing.T) {
	payload := testPayload(128 * 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runtimes/linux/runtime.tar.gz" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer srv.Close()

	ctx := context.Background()
	store, err := storage.NewClient(ctx, storage.Options{Region: "us-east-1", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("failed to create storage client: %v", err)
	}

	got, err := NewEngine(Options{Store: store}).Download(ctx, &descriptor.Descriptor{
		Version:     "8.0.5",
		DownloadURL: "s3://runtimes/linux/runtime.tar.gz",
	}, nil)
	if err != nil {
		t.Fatalf("Download from s3 failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %d bytes", len(got))
	}
}

func TestInitialCapacity(t *testing.T) {
	tests := []struct {
		total int64
		want  int
	}{
		{total: 0, want: 0},
		{total: 4096, want: 4096},
		{total: maxPrealloc, want: int(maxPrealloc)},
		{total: 2 * 1024 * 1024 * 1024, want: int(maxPrealloc)},
	}

	for _, tt := range tests {
		if got := initialCapacity(tt.total); got != tt.want {
			t.Errorf("initialCapacity(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestDownloadOversizedDeclaration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(1<<30))
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	engine := NewEngine(Options{PreflightTimeout: time.Second})
	desc := &descriptor.Descriptor{Version: "8.0.5", DownloadURL: srv.URL}

	_, err := engine.Download(context.Background(), desc, progress.Noop{})
	if errors.KindOf(err) != errors.KindTransfer {
		t.Fatalf("expected transfer error, got %v", err)
	}
}
