package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "t"}}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	if cfg.HTTP.Listen != ":3000" || cfg.HTTP.Gateway != "yookassa" {
		t.Fatalf("http defaults = %+v", cfg.HTTP)
	}
	if cfg.Payment.Amount != "990.00" || cfg.Payment.Currency != "RUB" {
		t.Fatalf("payment defaults = %+v", cfg.Payment)
	}
	if !cfg.Payment.VerifyWebhook {
		t.Fatal("webhooks must be verified unless explicitly trusted")
	}
	if cfg.Funnel.Pause != 2500*time.Millisecond || cfg.Funnel.ReminderAfter != 24*time.Hour {
		t.Fatalf("funnel defaults = %+v", cfg.Funnel)
	}
	if cfg.Database.Enabled() {
		t.Fatal("database must stay disabled without host")
	}
}

func TestNormalizeTrustWebhookOptOut(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		Payment:  PaymentConfig{ShopID: "shop", SecretKey: "key", TrustWebhook: true},
	}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Payment.VerifyWebhook {
		t.Fatal("trust_webhook must disable the live check")
	}
}

func TestNormalizeValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing token", Config{}},
		{"bad run mode", Config{Telegram: TelegramConfig{Token: "t", RunMode: "carrier-pigeon"}}},
		{"webhook without url", Config{Telegram: TelegramConfig{Token: "t", RunMode: "webhook"}}},
		{"payments without secret", Config{Telegram: TelegramConfig{Token: "t"}, Payment: PaymentConfig{Enabled: true, ShopID: "1"}}},
		{"bad rate limit exclusion", Config{Telegram: TelegramConfig{Token: "t"}, RateLimit: RateLimitConfig{ExcludeUpdates: []string{"poll"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			if err := Normalize(&cfg); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestNormalizeEnablesPaymentsWithCredentials(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		Payment:  PaymentConfig{ShopID: "shop", SecretKey: "key", APIURL: "https://gw.example/v3/"},
	}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !cfg.Payment.Enabled {
		t.Fatal("payments should be enabled when credentials are present")
	}
	if cfg.Payment.APIURL != "https://gw.example/v3" {
		t.Fatalf("api url = %q", cfg.Payment.APIURL)
	}
}

func TestLoadYAMLWithEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `telegram:
  token: from-file
admin_ids: [1, 2]
funnel:
  pause: 1s
database:
  host: db
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("PAYMENT_AMOUNT", "1490.00")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Payment.Amount != "1490.00" {
		t.Fatalf("amount = %q", cfg.Payment.Amount)
	}
	if !cfg.IsAdmin(2) || cfg.IsAdmin(3) {
		t.Fatalf("admin ids = %v", cfg.AdminIDs)
	}
	if cfg.Funnel.Pause != time.Second {
		t.Fatalf("pause = %v", cfg.Funnel.Pause)
	}
	if cfg.Database.Port != "5432" || cfg.Database.MigrationsDir != "migrations" {
		t.Fatalf("database defaults = %+v", cfg.Database)
	}
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-only")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "env-only" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}
