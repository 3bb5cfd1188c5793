package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
)

func TestRunSkipsDatabaseWhenNotConfigured(t *testing.T) {
	var connected bool
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Connect: func(context.Context, coreconfig.DatabaseConfig, time.Duration) (*sqlx.DB, error) {
			connected = true
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if connected {
		t.Fatal("connect must not be called without a database host")
	}
	if res.DB != nil {
		t.Fatal("expected nil DB")
	}
	if err := res.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRunPropagatesConnectError(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Database.Host = "db"
	boom := errors.New("boom")
	_, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Connect: func(context.Context, coreconfig.DatabaseConfig, time.Duration) (*sqlx.DB, error) {
			return nil, boom
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped connect error, got %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
