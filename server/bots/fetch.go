package bots

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Fetcher downloads a bot artifact archive to dest.
type Fetcher interface {
	Download(ctx context.Context, key, dest, bucket string) error
}

// HTTPFetcher fetches <baseURL>/<bucket>/<key>, which is how object stores
// expose artifacts over plain HTTP.
type HTTPFetcher struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxResponseBodySize: 256 << 20,
		},
		timeout: timeout,
	}
}

func (f *HTTPFetcher) Download(ctx context.Context, key, dest, bucket string) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(f.baseURL + "/" + bucket + "/" + key)

	deadline := time.Now().Add(f.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := f.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}
	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return fmt.Errorf("download %s/%s: status=%d", bucket, key, status)
	}
	if err := os.WriteFile(dest, resp.Body(), 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// DirFetcher copies artifacts from <Root>/<bucket>/<key> on local disk.
type DirFetcher struct {
	Root string
}

func (f DirFetcher) Download(ctx context.Context, key, dest, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(filepath.Join(f.Root, bucket, key))
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("copy artifact: %w", err)
	}
	return out.Close()
}
