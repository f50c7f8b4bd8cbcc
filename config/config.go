package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all engine configuration.
type Config struct {
	Browser  BrowserConfig
	Pool     PoolConfig
	Loader   LoaderConfig
	Schedule ScheduleConfig
	Alert    AlertConfig
	Notify   NotifyConfig
	Ops      OpsConfig
	Log      LogConfig

	// TargetsFile is the JSON file the in-memory target store is seeded
	// from at startup.
	TargetsFile string // default: "targets.json"
}

// BrowserConfig controls the shared Chromium instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL applied to all page loads.
	Proxy string
}

// PoolConfig controls the rendering handle pool.
type PoolConfig struct {
	// MaxSize is the maximum number of live page handles.
	MaxSize int // default: 5
}

// LoaderConfig controls secure page loading.
type LoaderConfig struct {
	// LoadTimeout is the hard deadline for one page load.
	LoadTimeout time.Duration // default: 30s

	// SettleDelay is the extra wait after DOM parse so client-side
	// rendering can populate dynamic content.
	SettleDelay time.Duration // default: 2s

	// Stealth injects anti-bot-detection JS before navigation.
	Stealth bool // default: false
}

// ScheduleConfig controls run scheduling and retries.
type ScheduleConfig struct {
	// TickInterval is how often due targets are swept.
	TickInterval time.Duration // default: 1m

	// MaxAttempts bounds retries of one extraction run.
	MaxAttempts int // default: 3

	// RetryBaseDelay is the first backoff delay; doubles per attempt.
	RetryBaseDelay time.Duration // default: 2s

	// RetryMaxDelay caps the backoff delay.
	RetryMaxDelay time.Duration // default: 30s

	// RetryJitter is the random fraction (0.0-1.0) added to each delay.
	RetryJitter float64 // default: 0.2

	// ManualCooldown is the minimum spacing between user-triggered runs
	// of one target.
	ManualCooldown time.Duration // default: 1m
}

// AlertConfig controls the AI alert-evaluation collaborator.
type AlertConfig struct {
	// Enabled toggles the AI evaluator. When off, the mechanical
	// alert-on-any-change fallback is used.
	Enabled bool // default: false

	// APIKey authenticates against the OpenAI-compatible API.
	APIKey string

	// Model is the evaluation model. Default: "gpt-4o-mini".
	Model string

	// BaseURL is the API base. Default: "https://api.openai.com/v1".
	BaseURL string

	// MaxExcerptTokens caps the page excerpt included in the prompt.
	MaxExcerptTokens int // default: 2000
}

// NotifyConfig controls webhook publishing of alert decisions.
type NotifyConfig struct {
	// WebhookURL receives alert events. Empty disables publishing.
	WebhookURL string

	// Secret signs webhook bodies with HMAC-SHA256 when non-empty.
	Secret string
}

// OpsConfig controls the optional operational HTTP surface.
type OpsConfig struct {
	Enabled bool   // default: false
	Host    string // default: "0.0.0.0"
	Port    int    // default: 8090
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:   envBoolOr("HAUNT_HEADLESS", true),
			NoSandbox:  envBoolOr("HAUNT_NO_SANDBOX", false),
			BrowserBin: os.Getenv("HAUNT_BROWSER_BIN"),
			Proxy:      os.Getenv("HAUNT_PROXY"),
		},
		Pool: PoolConfig{
			MaxSize: envIntOr("HAUNT_POOL_MAX", 5),
		},
		Loader: LoaderConfig{
			LoadTimeout: envDurationOr("HAUNT_LOAD_TIMEOUT", 30*time.Second),
			SettleDelay: envDurationOr("HAUNT_SETTLE_DELAY", 2*time.Second),
			Stealth:     envBoolOr("HAUNT_STEALTH", false),
		},
		Schedule: ScheduleConfig{
			TickInterval:   envDurationOr("HAUNT_TICK_INTERVAL", time.Minute),
			MaxAttempts:    envIntOr("HAUNT_MAX_ATTEMPTS", 3),
			RetryBaseDelay: envDurationOr("HAUNT_RETRY_BASE_DELAY", 2*time.Second),
			RetryMaxDelay:  envDurationOr("HAUNT_RETRY_MAX_DELAY", 30*time.Second),
			RetryJitter:    envFloatOr("HAUNT_RETRY_JITTER", 0.2),
			ManualCooldown: envDurationOr("HAUNT_MANUAL_COOLDOWN", time.Minute),
		},
		Alert: AlertConfig{
			Enabled:          envBoolOr("HAUNT_ALERT_ENABLED", false),
			APIKey:           os.Getenv("HAUNT_ALERT_API_KEY"),
			Model:            envOr("HAUNT_ALERT_MODEL", "gpt-4o-mini"),
			BaseURL:          envOr("HAUNT_ALERT_BASE_URL", "https://api.openai.com/v1"),
			MaxExcerptTokens: envIntOr("HAUNT_ALERT_EXCERPT_TOKENS", 2000),
		},
		Notify: NotifyConfig{
			WebhookURL: os.Getenv("HAUNT_WEBHOOK_URL"),
			Secret:     os.Getenv("HAUNT_WEBHOOK_SECRET"),
		},
		Ops: OpsConfig{
			Enabled: envBoolOr("HAUNT_OPS_ENABLED", false),
			Host:    envOr("HAUNT_OPS_HOST", "0.0.0.0"),
			Port:    envIntOr("HAUNT_OPS_PORT", 8090),
		},
		Log: LogConfig{
			Level:  envOr("HAUNT_LOG_LEVEL", "info"),
			Format: envOr("HAUNT_LOG_FORMAT", "json"),
		},
		TargetsFile: envOr("HAUNT_TARGETS_FILE", "targets.json"),
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
