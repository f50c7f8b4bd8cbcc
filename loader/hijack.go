package loader

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// mountGuard installs a request interceptor on the page that re-validates the
// host of EVERY request the page issues (initial navigation, redirects and
// subresources alike) against the shared SSRF predicate, and aborts anything
// blocked. A one-time check at load start would leave the DNS-rebinding /
// redirect-to-internal-IP gap open; this closes it.
//
// Returns the running HijackRouter so the caller can defer router.Stop().
func mountGuard(ctx context.Context, page *rod.Page, resolver Resolver) *rod.HijackRouter {
	router := page.HijackRequests()

	// Pattern "*" + empty resourceType = intercept ALL requests, then
	// decide per-request whether to abort or continue.
	_ = router.Add("*", "", func(hj *rod.Hijack) {
		reqURL := hj.Request.URL()
		if err := CheckHost(ctx, resolver, reqURL.Hostname()); err != nil {
			slog.Warn("loader: aborted request to blocked host",
				"url", reqURL.String(),
				"host", reqURL.Hostname(),
				"error", err,
			)
			hj.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		hj.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	// It exits when router.Stop() is called.
	go router.Run()

	return router
}
