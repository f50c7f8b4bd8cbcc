package loader

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/haunt/browser"
	"github.com/use-agent/haunt/config"
	"github.com/use-agent/haunt/models"
	"github.com/ysmood/gson"
)

// Page is the snapshot of a loaded target page. Once Load returns, no live
// browser state is referenced: extraction runs against RenderedHTML, so the
// borrowed rendering handle can be released immediately after the load.
type Page struct {
	URL          string
	FinalURL     string
	Title        string
	RenderedHTML string
	StatusCode   int
	LoadedAt     time.Time
}

// Loader loads target URLs into pooled browser pages with SSRF validation on
// the initial navigation and on every request the page issues while loading.
type Loader struct {
	cfg      config.LoaderConfig
	resolver Resolver
}

// New creates a Loader. A nil resolver means net.DefaultResolver.
func New(cfg config.LoaderConfig, resolver Resolver) *Loader {
	return &Loader{cfg: cfg, resolver: resolver}
}

// Load navigates the handle's page to rawURL and returns a rendered snapshot.
//
// Sequence:
//
//  1. Pre-flight URL/host/IP validation, before any network I/O.
//  2. Hard deadline covering the whole load.
//  3. Hijack guard mount. MUST precede navigation so the very first request
//     is already intercepted.
//  4. Optional stealth injection (also before navigation).
//  5. Navigate, wait for the DOM to stabilise (not full resource load), then
//     sleep the settle delay for client-side rendering.
//  6. Capture status code, HTML, title and final URL.
//
// A non-2xx/3xx status is logged but not fatal: some monitored sites serve
// legitimate content on error statuses. The hijack router is stopped on every
// exit path.
func (l *Loader) Load(ctx context.Context, h *browser.Handle, rawURL string) (*Page, error) {
	if _, err := ValidateTargetURL(ctx, l.resolver, rawURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.LoadTimeout)
	defer cancel()

	page := h.Page()

	if l.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("loader: stealth injection failed, proceeding without",
				"error", err)
		}
	}

	setRefererHeader(page, rawURL)

	router := mountGuard(ctx, page, l.resolver)
	defer func() { _ = router.Stop() }()

	p := page.Context(ctx)

	if err := p.Navigate(rawURL); err != nil {
		return nil, categorizeLoadError(err, "navigation to target URL failed")
	}

	// DOM parsed is enough; full resource load is not required.
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("loader: DOM did not stabilise, proceeding with current DOM",
			"url", rawURL, "error", err)
	}

	// Fixed settle delay for client-side rendering of dynamic content.
	if l.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, categorizeLoadError(ctx.Err(), "load timed out during settle delay")
		case <-time.After(l.cfg.SettleDelay):
		}
	}

	statusCode := captureStatusCode(p)
	if statusCode >= 400 {
		slog.Warn("loader: target returned non-OK status, extracting anyway",
			"url", rawURL, "status", statusCode)
	}

	rendered, err := p.HTML()
	if err != nil {
		return nil, categorizeLoadError(err, "failed to capture rendered HTML")
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = rawURL
	}

	return &Page{
		URL:          rawURL,
		FinalURL:     finalURL,
		Title:        evalStringOrEmpty(p, `() => document.title`),
		RenderedHTML: rendered,
		StatusCode:   statusCode,
		LoadedAt:     time.Now(),
	}, nil
}

// setRefererHeader makes the load look like a search-engine click-through,
// which several monitored sites require before serving full content.
func setRefererHeader(page *rod.Page, rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	headers := proto.NetworkHeaders{
		"Referer": gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())),
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: headers}.Call(page)
}

// captureStatusCode reads the navigation status from the performance timeline.
// This avoids CDP Network-domain event listeners, which conflict with the
// Fetch domain used by the hijack guard on recent Chromium.
func captureStatusCode(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (used for optional metadata).
func evalStringOrEmpty(p *rod.Page, js string) string {
	res, err := p.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// categorizeLoadError wraps raw errors into coded MonitorErrors so the retry
// layer can classify them.
func categorizeLoadError(err error, msg string) *models.MonitorError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewMonitorError(models.ErrCodeLoadTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewMonitorError(models.ErrCodeLoadTimeout, "load canceled", err)
	default:
		return models.NewMonitorError(models.ErrCodeNavigation, msg, err)
	}
}
