package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 10 * time.Second
)

// HTTPConfig configures an HTTP provider.
type HTTPConfig struct {
	BaseURL        string
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
	Client         *http.Client
}

// HTTP fetches files relative to a base URL. Only hosts listed in
// AllowedHosts (or their subdomains) are contacted.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTP returns an HTTP provider with defaults applied.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &HTTP{cfg: cfg, client: client}
}

// Exists issues a HEAD request and reports whether it returned 200.
func (h *HTTP) Exists(name string) bool {
	resp, err := h.do(http.MethodHead, name)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Read fetches name with GET.
func (h *HTTP) Read(name string) ([]byte, error) {
	resp, err := h.do(http.MethodGet, name)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > h.cfg.MaxBodySize {
		return nil, fmt.Errorf("response body exceeds max size")
	}
	return body, nil
}

func (h *HTTP) do(method, name string) (*http.Response, error) {
	rawURL, err := h.fileURL(name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.RequestTimeout)
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// fileURL joins name onto the base URL and enforces the host allow-list.
func (h *HTTP) fileURL(name string) (string, error) {
	if len(h.cfg.AllowedHosts) == 0 {
		return "", fmt.Errorf("http not enabled")
	}

	base, err := url.Parse(h.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url")
	}
	ref, err := url.Parse("./" + escapeName(name))
	if err != nil {
		return "", fmt.Errorf("invalid file name")
	}
	resolved := base.ResolveReference(ref)

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", fmt.Errorf("scheme must be http or https")
	}

	rawURL := resolved.String()
	if len(rawURL) > h.cfg.MaxURLLength {
		return "", fmt.Errorf("url exceeds max length")
	}

	host := resolved.Hostname()
	if !h.isHostAllowed(host) {
		return "", fmt.Errorf("host not allowed: %s", host)
	}
	return rawURL, nil
}

// escapeName cleans name and escapes each path segment.
func escapeName(name string) string {
	segments := strings.Split(strings.TrimPrefix(path.Clean("/"+name), "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func (h *HTTP) isHostAllowed(host string) bool {
	for _, allowed := range h.cfg.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
