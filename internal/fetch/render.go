package fetch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	logx "tixwatch/pkg/logx"
)

// Renderer fetches pages through headless Chrome so client-rendered seat
// panels are present in the returned HTML.
//
// The browser is started lazily on first use and kept until Close. Each Fetch
// opens a tab in it. A browser that died is replaced on the next Fetch.
type Renderer struct {
	timeout     time.Duration
	userAgent   string
	browserPath string
	log         logx.Logger

	// start launches the browser behind a fresh chromedp context.
	start func(ctx context.Context) error

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewRenderer(cfg Config, browserPath string, log logx.Logger) *Renderer {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Renderer{
		timeout:     cfg.Timeout,
		userAgent:   cfg.UserAgent,
		browserPath: strings.TrimSpace(browserPath),
		log:         log,
		start:       func(ctx context.Context) error { return chromedp.Run(ctx) },
	}
}

func (r *Renderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCtx != nil && r.browserCtx.Err() == nil {
		return r.browserCtx, nil
	}
	r.releaseLocked()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(r.userAgent),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if r.browserPath != "" {
		opts = append(opts, chromedp.ExecPath(r.browserPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	bctx, bcancel := chromedp.NewContext(allocCtx)
	// Tabs only share a browser once it is running; otherwise each tab
	// context would launch and kill its own Chrome.
	if err := r.start(bctx); err != nil {
		bcancel()
		allocCancel()
		return nil, err
	}
	r.log.Info("headless browser started")
	r.allocCancel, r.browserCtx, r.browserCancel = allocCancel, bctx, bcancel
	return bctx, nil
}

func (r *Renderer) releaseLocked() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	r.browserCtx, r.browserCancel, r.allocCancel = nil, nil, nil
}

func (r *Renderer) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Page{}, &Error{Kind: KindUnexpected, URL: rawURL, Err: errors.New("empty url")}
	}
	r.log.Debug("rendering", logx.String("url", rawURL))
	start := time.Now()

	bctx, err := r.browser()
	if err != nil {
		fe := classify(rawURL, err)
		r.log.Warn("browser start failed", logx.String("url", rawURL), logx.Err(fe.Err))
		return Page{}, fe
	}
	tabCtx, tabCancel := chromedp.NewContext(bctx)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, r.timeout)
	defer cancel()
	// Propagate caller cancellation (shutdown) into the tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		fe := classify(rawURL, err)
		if errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
			fe.Kind = KindTimeout
		}
		r.log.Warn("render failed", logx.String("url", rawURL), logx.String("kind", string(fe.Kind)), logx.Err(fe.Err))
		return Page{}, fe
	}

	r.log.Debug("rendered", logx.String("url", rawURL), logx.Int("bytes", len(html)), logx.Duration("took", time.Since(start)))
	return Page{
		URL:         rawURL,
		Status:      200,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(html),
	}, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked()
}
