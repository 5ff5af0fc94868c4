// Package media downloads the media attached to outbound messages.
//
// Bills are rendered by the tenant's point-of-sale system and exposed as an
// image URL. The fetcher downloads the resource once per send, caps its size,
// and resolves a MIME type and filename for the engine.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/nerrad567/foxbridge/internal/engine"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxBytes  = 16 << 20
	DefaultUserAgent = "foxbridge/1.0"
	fallbackFilename = "media"
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("media: invalid url")

	// ErrFetchFailed is returned when the resource could not be downloaded.
	ErrFetchFailed = errors.New("media: fetch failed")

	// ErrTooLarge is returned when the resource exceeds the size cap.
	ErrTooLarge = errors.New("media: resource too large")
)

// Config configures a Fetcher.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// Fetcher downloads media over HTTP.
//
// Thread Safety: Fetch is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewFetcher creates a fetcher. A nil client selects one with cfg.Timeout.
func NewFetcher(cfg Config, client *http.Client) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{client: client, maxBytes: cfg.MaxBytes, userAgent: cfg.UserAgent}
}

// Fetch downloads rawURL and returns its bytes with a resolved MIME type and
// filename.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (engine.Media, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return engine.Media{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return engine.Media{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return engine.Media{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return engine.Media{}, fmt.Errorf("%w: %s returned %s", ErrFetchFailed, u.Host, resp.Status)
	}
	if resp.ContentLength > f.maxBytes {
		return engine.Media{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return engine.Media{}, fmt.Errorf("%w: reading body: %w", ErrFetchFailed, err)
	}
	if int64(len(data)) > f.maxBytes {
		return engine.Media{}, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, f.maxBytes)
	}
	if len(data) == 0 {
		return engine.Media{}, fmt.Errorf("%w: empty body", ErrFetchFailed)
	}

	mimeType := contentType(resp.Header.Get("Content-Type"), data)
	return engine.Media{
		Data:     data,
		MimeType: mimeType,
		Filename: filename(u, resp.Header.Get("Content-Disposition"), mimeType),
	}, nil
}

func contentType(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

func filename(u *url.URL, disposition, mimeType string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := path.Base(params["filename"]); params["filename"] != "" && name != "/" && name != "." {
			return name
		}
	}

	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		name = fallbackFilename
	}
	if path.Ext(name) == "" {
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			name += exts[0]
		}
	}
	return strings.TrimSpace(name)
}
