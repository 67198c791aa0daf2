// Package blobstore is the client for the external object store that holds
// uploaded CSV files and exported results. The store speaks a flat
// bucket/key HTTP API authenticated with a bearer service key.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Sentinel errors for object store failures.
var (
	ErrUnreachable = errors.New("object store unreachable")
	ErrTimeout     = errors.New("object store timeout")
	ErrRejected    = errors.New("object store rejected request")
	ErrNotFound    = errors.New("object not found")
)

// Retryable reports whether err is a transient failure eligible for bounded retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrTimeout)
}

// Store is the interface for object storage.
type Store interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	PublicURL(key string) string
}

// HTTPClient implements Store against the object store's HTTP API.
type HTTPClient struct {
	baseURL    string
	bucket     string
	serviceKey string
	client     *http.Client
}

// NewHTTPClient creates an object store client scoped to one bucket.
func NewHTTPClient(baseURL, bucket, serviceKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		bucket:     bucket,
		serviceKey: serviceKey,
		client:     &http.Client{Timeout: timeout},
	}
}

// Upload stores body under key and returns the stored path. Keys are unique
// per submission; the store rejects overwrites of an existing key.
func (c *HTTPClient) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL(key), body)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: upload status %d: %s", ErrRejected, resp.StatusCode, msg)
	}

	return key, nil
}

// Download fetches the stored bytes for key.
func (c *HTTPClient) Download(ctx context.Context, key string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: download status %d: %s", ErrRejected, resp.StatusCode, msg)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyError(err)
	}
	return data, nil
}

// PublicURL returns the unauthenticated download URL for key.
func (c *HTTPClient) PublicURL(key string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", c.baseURL, c.bucket, escapeKey(key))
}

func (c *HTTPClient) objectURL(key string) string {
	return fmt.Sprintf("%s/object/%s/%s", c.baseURL, c.bucket, escapeKey(key))
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	}
}

// escapeKey path-escapes each segment but keeps slashes as separators.
func escapeKey(key string) string {
	u := url.URL{Path: key}
	return u.EscapedPath()
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Store.
var _ Store = (*HTTPClient)(nil)
