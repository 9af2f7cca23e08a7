// Package docsource fetches raw document bytes from the document-storage
// service by bucket and path. HTTP talks to the storage service's upload
// endpoint; Dir serves the same layout from a local directory.
package docsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxBytes caps the size of a fetched document.
const DefaultMaxBytes = 50 << 20

// ErrTooLarge is returned when a document exceeds the configured size cap.
var ErrTooLarge = errors.New("document too large")

// ErrInvalidPath is returned for bucket/path pairs that escape the storage root.
var ErrInvalidPath = errors.New("invalid document path")

// Fetcher retrieves document bytes for a bucket and path.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, path string) ([]byte, error)
}

// StatusError reports a non-2xx response from the storage service.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("docsource: %s %s: HTTP %d", e.Method, e.URL, e.Code)
}

// HTTPConfig holds the settings for constructing an HTTP fetcher.
type HTTPConfig struct {
	// BaseURL is the storage service root (e.g. "http://localhost:3050").
	BaseURL string
	// Token is sent as a Bearer token when set.
	Token string
	// Timeout bounds each request. Defaults to 60s.
	Timeout time.Duration
	// MaxBytes caps the document size. Defaults to DefaultMaxBytes.
	MaxBytes int64
}

// HTTP fetches documents from GET {base}/uploads/{bucket}/{path}.
type HTTP struct {
	base     string
	token    string
	maxBytes int64
	client   *http.Client
}

// NewHTTP constructs an HTTP fetcher.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("docsource: base URL must not be empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("docsource: parse base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &HTTP{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		maxBytes: cfg.MaxBytes,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// escapePath escapes each slash-separated segment of p.
func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func (h *HTTP) newRequest(ctx context.Context, method, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("docsource: create request: %w", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	req.Header.Set("User-Agent", "docrag/1.0")
	return req, nil
}

// Fetch downloads the document at bucket/path.
func (h *HTTP) Fetch(ctx context.Context, bucket, p string) ([]byte, error) {
	if bucket == "" || p == "" {
		return nil, fmt.Errorf("docsource: bucket and path are required: %w", ErrInvalidPath)
	}
	u := h.base + "/uploads/" + url.PathEscape(bucket) + "/" + escapePath(p)

	req, err := h.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docsource: get %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: http.MethodGet, URL: u, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("docsource: read %s: %w", u, err)
	}
	if int64(len(data)) > h.maxBytes {
		return nil, fmt.Errorf("docsource: %s exceeds %d bytes: %w", u, h.maxBytes, ErrTooLarge)
	}
	return data, nil
}

// DeleteRecord removes the service's record for a store via
// DELETE {base}/api/vector_db_documents/{id}.
func (h *HTTP) DeleteRecord(ctx context.Context, id string) error {
	u := h.base + "/api/vector_db_documents/" + url.PathEscape(id)
	req, err := h.newRequest(ctx, http.MethodDelete, u)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("docsource: delete %s: %w", u, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: http.MethodDelete, URL: u, Code: resp.StatusCode}
	}
	return nil
}

// Ping checks that the storage service answers. Any status below 500 counts
// as reachable.
func (h *HTTP) Ping(ctx context.Context) error {
	req, err := h.newRequest(ctx, http.MethodHead, h.base+"/")
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("docsource: ping: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &StatusError{Method: http.MethodHead, URL: h.base + "/", Code: resp.StatusCode}
	}
	return nil
}

// Dir serves documents from {root}/{bucket}/{path} on the local filesystem.
type Dir struct {
	root     string
	maxBytes int64
}

// NewDir returns a Dir rooted at root.
func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("docsource: stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docsource: %s is not a directory", root)
	}
	return &Dir{root: root, maxBytes: DefaultMaxBytes}, nil
}

// Fetch reads the document from disk. Paths that would escape the root are
// rejected with ErrInvalidPath.
func (d *Dir) Fetch(_ context.Context, bucket, p string) ([]byte, error) {
	rel := path.Join(bucket, p)
	if bucket == "" || bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) ||
		p == "" || path.IsAbs(p) || !filepath.IsLocal(filepath.FromSlash(rel)) {
		return nil, fmt.Errorf("docsource: %q/%q: %w", bucket, p, ErrInvalidPath)
	}
	full := filepath.Join(d.root, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("docsource: %w", err)
	}
	if info.Size() > d.maxBytes {
		return nil, fmt.Errorf("docsource: %s exceeds %d bytes: %w", full, d.maxBytes, ErrTooLarge)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("docsource: %w", err)
	}
	return data, nil
}

// Ping checks that the root directory is still present.
func (d *Dir) Ping(context.Context) error {
	if _, err := os.Stat(d.root); err != nil {
		return fmt.Errorf("docsource: ping: %w", err)
	}
	return nil
}

// NewFromEnv selects a Dir fetcher when DOCSTORE_DIR is set and an HTTP
// fetcher against DOCSTORE_BASE_URL (default http://localhost:3050)
// otherwise.
func NewFromEnv() (Fetcher, error) {
	if dir := os.Getenv("DOCSTORE_DIR"); dir != "" {
		return NewDir(dir)
	}
	base := os.Getenv("DOCSTORE_BASE_URL")
	if base == "" {
		base = "http://localhost:3050"
	}
	return NewHTTP(HTTPConfig{BaseURL: base, Token: os.Getenv("DOCSTORE_TOKEN")})
}
