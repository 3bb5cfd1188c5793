// Command funnelbot runs the Telegram sales funnel with its payment webhook server.
package main

import (
	"context"
	"log"

	"github.com/m3rciful/funnelbot/core/bootstrap"
	corecmd "github.com/m3rciful/funnelbot/core/cmd"
	coreconfig "github.com/m3rciful/funnelbot/core/config"
	"github.com/m3rciful/funnelbot/funnel/bot"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		EnvFiles:          []string{".env"},
		Build: func(ctx context.Context, cfg *coreconfig.Config, infra *bootstrap.Result) (corecmd.TelegramApp, error) {
			return bot.New(ctx, cfg, infra)
		},
	})
	if err != nil {
		log.Fatalf("funnelbot: %v", err)
	}
}
