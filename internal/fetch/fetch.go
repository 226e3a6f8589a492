// Package fetch retrieves vendor pages.
//
// A fetch is a single GET with a fixed timeout and browser-like headers. It is
// never retried here; the next polling round is the retry.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	logx "tixwatch/pkg/logx"
)

const (
	DefaultTimeout        = 15 * time.Second
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7"
	DefaultMaxBodyBytes   = 8 << 20
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindTransport  Kind = "transport"
	KindUnexpected Kind = "unexpected"
)

// Error is returned by Fetcher implementations.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a fetch Error of kind k.
func IsKind(err error, k Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == k
}

// Page is the raw result of a successful fetch.
type Page struct {
	URL         string
	Status      int
	ContentType string // lower-cased
	Body        []byte
}

// Fetcher retrieves one URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Config tunes the HTTP client.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
	MaxBodyBytes   int64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
	if strings.TrimSpace(c.AcceptLanguage) == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}

// Client is the plain-HTTP Fetcher.
type Client struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
}

func NewClient(cfg Config, log logx.Logger) *Client {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Client{
		cfg:  cfg,
		log:  log,
		http: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
}

func (c *Client) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Page{}, &Error{Kind: KindUnexpected, URL: rawURL, Err: errors.New("empty url")}
	}
	c.log.Debug("fetching", logx.String("url", rawURL))
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, &Error{Kind: KindUnexpected, URL: rawURL, Err: err}
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		fe := classify(rawURL, err)
		c.log.Warn("fetch failed", logx.String("url", rawURL), logx.String("kind", string(fe.Kind)), logx.Err(fe.Err), logx.Duration("took", time.Since(start)))
		return Page{}, fe
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		fe := &Error{Kind: KindTransport, URL: rawURL, Err: fmt.Errorf("http status %d", resp.StatusCode)}
		c.log.Warn("fetch failed", logx.String("url", rawURL), logx.String("kind", string(fe.Kind)), logx.Int("status", resp.StatusCode))
		return Page{}, fe
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		fe := classify(rawURL, err)
		c.log.Warn("fetch body read failed", logx.String("url", rawURL), logx.String("kind", string(fe.Kind)), logx.Err(fe.Err))
		return Page{}, fe
	}

	page := Page{
		URL:         rawURL,
		Status:      resp.StatusCode,
		ContentType: strings.ToLower(resp.Header.Get("Content-Type")),
		Body:        body,
	}
	c.log.Debug("fetched",
		logx.String("url", rawURL),
		logx.Int("status", page.Status),
		logx.String("content_type", page.ContentType),
		logx.Int("bytes", len(body)),
		logx.Duration("took", time.Since(start)),
	)
	return page, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept-Language", c.cfg.AcceptLanguage)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
}

func classify(rawURL string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindUnexpected, URL: rawURL, Err: err}
	}
	return &Error{Kind: KindTransport, URL: rawURL, Err: err}
}
