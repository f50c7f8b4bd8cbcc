package browser

import (
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/haunt/config"
	"github.com/use-agent/haunt/models"
)

// Manager owns the shared Chromium instance. The browser is launched lazily
// on the first page request so constructing a Manager is cheap and a process
// that never runs an extraction never spawns Chrome.
// It is safe for concurrent use.
type Manager struct {
	cfg config.BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
}

// NewManager creates a Manager. No browser process is started yet.
func NewManager(cfg config.BrowserConfig) *Manager {
	return &Manager{cfg: cfg}
}

// NewPage creates a fresh blank page on the shared browser, launching the
// browser first if needed. Intended to be used as the pool's handle factory.
func (m *Manager) NewPage() (*rod.Page, error) {
	b, err := m.ensureBrowser()
	if err != nil {
		return nil, err
	}
	return b.Page(proto.TargetCreateTarget{})
}

// ensureBrowser launches and connects the browser once, under the mutex.
func (m *Manager) ensureBrowser() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		return m.browser, nil
	}

	l := launcher.New().
		Headless(m.cfg.Headless).
		NoSandbox(m.cfg.NoSandbox)

	if m.cfg.BrowserBin != "" {
		l = l.Bin(m.cfg.BrowserBin)
	}
	if m.cfg.Proxy != "" {
		l = l.Proxy(m.cfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewMonitorError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewMonitorError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	m.browser = b
	return b, nil
}

// Close kills the browser process if it was ever launched.
// Call on graceful shutdown to prevent zombie Chrome processes.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return
	}
	slog.Info("closing browser")
	m.browser.MustClose()
	m.browser = nil
}
