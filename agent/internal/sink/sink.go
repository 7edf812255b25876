package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/logrelay/logrelay/pkg/types"
)

// Header names understood by the remote logging service.
const (
	HeaderAuthKey = "AUTHKEY"
	ContentType   = "text/plain; charset=utf-8"
)

// maxDrain caps how much of a response body is read before closing so the
// connection can be reused.
const maxDrain = 64 << 10

// Sink delivers one message body to endpoint.
type Sink interface {
	Post(ctx context.Context, endpoint, authKey string, body []byte) (*Response, error)
}

// Response is the part of the remote reply the agent observes.
type Response struct {
	StatusCode int
	Status     string
}

// Endpoint returns https://<host>/<hostname>/<key>.
func Endpoint(host, hostname, key string) string {
	return "https://" + host + types.Route{Hostname: hostname, Key: key}.Path()
}

// Options configures an HTTPSink.
type Options struct {
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration

	// Compress gzips request bodies.
	Compress bool

	// CAFile adds a PEM bundle to the trusted roots.
	CAFile string

	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool
}

// HTTPSink posts message bodies with an *http.Client.
type HTTPSink struct {
	client   *http.Client
	compress bool
}

// New builds an HTTPSink with its own transport.
func New(opts Options) (*HTTPSink, error) {
	client, err := buildHTTPClient(opts)
	if err != nil {
		return nil, fmt.Errorf("sink: build http client: %w", err)
	}
	return &HTTPSink{client: client, compress: opts.Compress}, nil
}

// NewWithClient wraps an existing client (tests use httptest's TLS client).
func NewWithClient(client *http.Client, compress bool) *HTTPSink {
	return &HTTPSink{client: client, compress: compress}
}

// Post sends body to endpoint. Any non-2xx status is a failure.
func (s *HTTPSink) Post(ctx context.Context, endpoint, authKey string, body []byte) (*Response, error) {
	payload := body
	if s.compress {
		var err error
		if payload, err = gzipBody(body); err != nil {
			return nil, &SendError{Kind: KindOther, Err: fmt.Errorf("gzip body: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &SendError{Kind: KindOther, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set(HeaderAuthKey, authKey)
	req.Header.Set("Content-Type", ContentType)
	if s.compress {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, context.Canceled) {
			kind = KindOther
		}
		return nil, &SendError{Kind: kind, Err: fmt.Errorf("http post: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SendError{
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("remote returned %s", resp.Status),
		}
	}
	return &Response{StatusCode: resp.StatusCode, Status: resp.Status}, nil
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildHTTPClient constructs an http.Client for the configured TLS settings.
func buildHTTPClient(opts Options) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if opts.CAFile != "" {
		caPEM, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", opts.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}, nil
}
