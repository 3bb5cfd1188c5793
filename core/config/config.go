package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds bot transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies Telegram webhook settings (run_mode=webhook).
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// HTTPConfig controls the public HTTP boundary (payment webhook, return pages).
type HTTPConfig struct {
	Listen    string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	PublicURL string `yaml:"public_url" envconfig:"SERVER_URL"`
	// Gateway names the webhook path segment: POST /webhook/{gateway}.
	Gateway string `yaml:"gateway"`
}

// PaymentConfig configures the YooKassa gateway client.
type PaymentConfig struct {
	Enabled       bool          `yaml:"enabled" envconfig:"PAYMENT_ENABLED"`
	ShopID        string        `yaml:"shop_id" envconfig:"YOOKASSA_SHOP_ID"`
	SecretKey     string        `yaml:"secret_key" envconfig:"YOOKASSA_SECRET_KEY"`
	APIURL        string        `yaml:"api_url" envconfig:"YOOKASSA_API_URL"`
	Amount        string        `yaml:"amount" envconfig:"PAYMENT_AMOUNT"`
	Currency      string        `yaml:"currency" envconfig:"PAYMENT_CURRENCY"`
	Description   string        `yaml:"description" envconfig:"PAYMENT_DESCRIPTION"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"PAYMENT_TIMEOUT"`
	// TrustWebhook skips the live status check on webhooks. Only for gateways
	// reachable solely through an authenticated channel.
	TrustWebhook bool `yaml:"trust_webhook" envconfig:"PAYMENT_TRUST_WEBHOOK"`
	// VerifyWebhook is derived from TrustWebhook by Normalize.
	VerifyWebhook bool `yaml:"-" ignored:"true"`
}

// FunnelConfig carries the conversation script and media settings.
type FunnelConfig struct {
	ScriptPath     string        `yaml:"script_path" envconfig:"FUNNEL_SCRIPT_PATH"`
	MediaDir       string        `yaml:"media_dir" envconfig:"MEDIA_DIR"`
	ChannelLink    string        `yaml:"channel_link" envconfig:"MARATHON_CHAT_LINK"`
	Channel        string        `yaml:"channel" envconfig:"BROADCAST_CHANNEL"`
	SupportContact string        `yaml:"support_contact" envconfig:"SUPPORT_CONTACT"`
	Pause          time.Duration `yaml:"pause" envconfig:"FUNNEL_PAUSE"`
	ReminderAfter  time.Duration `yaml:"reminder_after" envconfig:"FUNNEL_REMINDER_AFTER"`
	ContentLink    string        `yaml:"content_link" envconfig:"COURSE_CONTENT_LINK"`
}

// AnalyticsConfig configures the GA4 measurement protocol beacon.
type AnalyticsConfig struct {
	MeasurementID string `yaml:"measurement_id" envconfig:"GA_MEASUREMENT_ID"`
	APISecret     string `yaml:"api_secret" envconfig:"GA_API_SECRET"`
	Endpoint      string `yaml:"endpoint" envconfig:"GA_ENDPOINT"`
	ItemID        string `yaml:"item_id"`
	ItemName      string `yaml:"item_name"`
}

// LeadsConfig configures where remembered user ids are kept.
type LeadsConfig struct {
	File     string  `yaml:"file" envconfig:"LEAD_RECIPIENTS_FILE"`
	ExtraIDs []int64 `yaml:"extra_ids" envconfig:"REQUEST_BOT_CHAT_ID"`
}

// SiteRequestConfig configures POST /api/site-request.
type SiteRequestConfig struct {
	APIKey         string   `yaml:"api_key" envconfig:"REQUEST_API_KEY"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"REQUEST_ALLOWED_ORIGIN"`
	Recipients     []int64  `yaml:"recipients" envconfig:"REQUEST_ADMIN_ID"`
	Title          string   `yaml:"title"`
	PerMinute      int      `yaml:"per_minute" envconfig:"REQUEST_PER_MINUTE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for per-user rate limiting.
// ExcludeUpdates accepts "callback", "message" and "inline_query".
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// DatabaseConfig holds optional postgres settings. An empty host keeps
// the lead store on the local file.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// Enabled reports whether a postgres connection was configured.
func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.Host) != ""
}

// Config aggregates the whole bot configuration.
type Config struct {
	Telegram    TelegramConfig    `yaml:"telegram"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Logging     LoggingConfig     `yaml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	AdminIDs    []int64           `yaml:"admin_ids" envconfig:"ADMIN_IDS"`
	HTTP        HTTPConfig        `yaml:"http"`
	Payment     PaymentConfig     `yaml:"payment"`
	Funnel      FunnelConfig      `yaml:"funnel"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Leads       LeadsConfig       `yaml:"leads"`
	SiteRequest SiteRequestConfig `yaml:"site_request"`
	Database    DatabaseConfig    `yaml:"database"`
}

// Load reads configuration from a YAML file and environment variables.
// A missing file is not an error: the environment alone may carry everything.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeHTTP(&cfg.HTTP); err != nil {
		return err
	}
	if err := normalizePayment(&cfg.Payment); err != nil {
		return err
	}
	normalizeFunnel(&cfg.Funnel)
	normalizeDatabase(&cfg.Database)
	normalizeAnalytics(&cfg.Analytics)
	if cfg.SiteRequest.PerMinute <= 0 {
		cfg.SiteRequest.PerMinute = 30
	}
	if cfg.SiteRequest.Title == "" {
		cfg.SiteRequest.Title = "New request from the site"
	}
	return nil
}

func normalizeHTTP(h *HTTPConfig) error {
	if strings.TrimSpace(h.Listen) == "" {
		h.Listen = ":3000"
	}
	h.PublicURL = strings.TrimRight(strings.TrimSpace(h.PublicURL), "/")
	if h.PublicURL == "" {
		h.PublicURL = "http://localhost:3000"
	}
	h.Gateway = strings.ToLower(strings.TrimSpace(h.Gateway))
	if h.Gateway == "" {
		h.Gateway = "yookassa"
	}
	return nil
}

func normalizePayment(p *PaymentConfig) error {
	if !p.Enabled && p.ShopID != "" && p.SecretKey != "" {
		p.Enabled = true
	}
	if p.Enabled && (strings.TrimSpace(p.ShopID) == "" || strings.TrimSpace(p.SecretKey) == "") {
		return fmt.Errorf("payment.shop_id and payment.secret_key are required when payments are enabled")
	}
	if p.APIURL == "" {
		p.APIURL = "https://api.yookassa.ru/v3"
	}
	p.APIURL = strings.TrimRight(p.APIURL, "/")
	if p.Amount == "" {
		p.Amount = "990.00"
	}
	if p.Currency == "" {
		p.Currency = "RUB"
	}
	if p.Description == "" {
		p.Description = "Course access"
	}
	if p.Timeout <= 0 {
		p.Timeout = 15 * time.Second
	}
	p.VerifyWebhook = !p.TrustWebhook
	return nil
}

func normalizeFunnel(f *FunnelConfig) {
	if f.MediaDir == "" {
		f.MediaDir = "media"
	}
	if f.Pause < 0 {
		f.Pause = 0
	} else if f.Pause == 0 {
		f.Pause = 2500 * time.Millisecond
	}
	if f.ReminderAfter == 0 {
		f.ReminderAfter = 24 * time.Hour
	}
}

func normalizeDatabase(d *DatabaseConfig) {
	if !d.Enabled() {
		return
	}
	if d.Port == "" {
		d.Port = "5432"
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.MaxConnections <= 0 {
		d.MaxConnections = 5
	}
	if d.MigrationsDir == "" {
		d.MigrationsDir = "migrations"
	}
}

func normalizeAnalytics(a *AnalyticsConfig) {
	if a.Endpoint == "" {
		a.Endpoint = "https://www.google-analytics.com/mp/collect"
	}
	if a.ItemID == "" {
		a.ItemID = "english_course"
	}
	if a.ItemName == "" {
		a.ItemName = "English course"
	}
}

// IsAdmin reports whether id belongs to the operator allow-list.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}
