package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every environment-sourced option the gateway reads at
// startup, grouped by concern; envconfig fills defaults and fails fast
// on missing required values.
type Config struct {
	// MTProto (single privileged upstream account)
	TGAPIID        int           `envconfig:"TG_API_ID" required:"true"`
	TGAPIHash      string        `envconfig:"TG_API_HASH" required:"true"`
	TGSessionName  string        `envconfig:"TG_SESSION_NAME" default:"me"`
	BotUsername    string        `envconfig:"BOT_USERNAME" required:"true"`
	DefaultTimeout time.Duration `envconfig:"DEFAULT_TIMEOUT" default:"20s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	SendDelayMin time.Duration `envconfig:"SEND_DELAY_MIN" default:"0s"`
	SendDelayMax time.Duration `envconfig:"SEND_DELAY_MAX" default:"0s"`

	// Upstream flow control
	RateMaxActions           int           `envconfig:"RATE_MAX_ACTIONS" default:"1"`
	RateWindowSeconds        time.Duration `envconfig:"RATE_WINDOW_SECONDS" default:"1s"`
	FloodWaitBufferSeconds   time.Duration `envconfig:"FLOODWAIT_BUFFER_SECONDS" default:"5s"`
	PeerFloodCooldownSeconds time.Duration `envconfig:"PEERFLOOD_COOLDOWN_SECONDS" default:"6h"`

	// Cache
	CacheDBPath     string        `envconfig:"CACHE_DB_PATH" default:"cache.db"`
	CacheTTLSeconds time.Duration `envconfig:"CACHE_TTL_SECONDS" default:"24h"`

	// Admission
	UserQuotaPerHour int `envconfig:"USER_QUOTA_PER_HOUR" default:"10"`
	QueueMaxSize     int `envconfig:"QUEUE_MAXSIZE" default:"100"`

	// Ingress (collaborator interface only, credential passthrough)
	ControlBotToken    string `envconfig:"CONTROL_BOT_TOKEN" required:"true"`
	ControlPrivateOnly bool   `envconfig:"CONTROL_PRIVATE_ONLY" default:"true"`

	// Driver tuning (defaults, not invariants)
	MinControls           int           `envconfig:"MIN_CONTROLS" default:"1"`
	EditWatchTimeout      time.Duration `envconfig:"EDIT_WATCH_TIMEOUT" default:"18s"`
	EditWatchQuietTimeout time.Duration `envconfig:"EDIT_WATCH_QUIET_TIMEOUT" default:"2500ms"`
	CollectTimeout        time.Duration `envconfig:"COLLECT_TIMEOUT" default:"4s"`
	CollectIdleTimeout    time.Duration `envconfig:"COLLECT_IDLE_TIMEOUT" default:"800ms"`
	CollectMaxEvents      int           `envconfig:"COLLECT_MAX_EVENTS" default:"5"`

	// Admin HTTP / observability
	AdminAddr      string `envconfig:"ADMIN_ADDR" default:":8080"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`

	// Audit trail (optional; empty disables it)
	AuditDatabaseURL string `envconfig:"AUDIT_DATABASE_URL" default:""`
}

// Load reads Config from the environment, normalizing the fields that
// need it (bot username prefix, session name fallback).
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	cfg.TGSessionName = strings.TrimSpace(cfg.TGSessionName)
	if cfg.TGSessionName == "" {
		cfg.TGSessionName = "me"
	}

	cfg.BotUsername = strings.TrimSpace(cfg.BotUsername)
	if !strings.HasPrefix(cfg.BotUsername, "@") {
		cfg.BotUsername = "@" + cfg.BotUsername
	}

	if cfg.UserQuotaPerHour < 1 {
		cfg.UserQuotaPerHour = 1
	}
	if cfg.RateMaxActions < 1 {
		cfg.RateMaxActions = 1
	}

	return &cfg, nil
}
