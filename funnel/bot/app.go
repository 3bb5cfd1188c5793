package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/m3rciful/funnelbot/core/bootstrap"
	coreconfig "github.com/m3rciful/funnelbot/core/config"
	"github.com/m3rciful/funnelbot/core/logger"
	coretelegram "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/sender"
	"github.com/m3rciful/funnelbot/funnel/access"
	"github.com/m3rciful/funnelbot/funnel/analytics"
	"github.com/m3rciful/funnelbot/funnel/confirm"
	"github.com/m3rciful/funnelbot/funnel/flow"
	"github.com/m3rciful/funnelbot/funnel/grant"
	"github.com/m3rciful/funnelbot/funnel/httpapi"
	"github.com/m3rciful/funnelbot/funnel/leads"
	"github.com/m3rciful/funnelbot/funnel/payment"
	"github.com/m3rciful/funnelbot/funnel/reconcile"
	"github.com/m3rciful/funnelbot/funnel/reminder"
	"github.com/m3rciful/funnelbot/funnel/state"
)

// App is the assembled funnel bot.
type App struct {
	cfg    *coreconfig.Config
	script *flow.Script

	messenger  *Messenger
	states     state.Store
	tracker    analytics.Tracker
	leads      *leads.Registry
	reminder   *reminder.Scheduler
	engine     *flow.Engine
	dialogue   *access.Dialogue
	override   *confirm.ManualOverride
	reconciler *reconcile.Reconciler
	server     *httpapi.Server

	dispatcher *sender.Dispatcher
}

// New wires every funnel component. Nothing talks to the network until OnStart.
func New(ctx context.Context, cfg *coreconfig.Config, infra *bootstrap.Result) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bot: nil config")
	}
	script, err := flow.LoadScript(cfg.Funnel.ScriptPath, map[string]string{
		"channel_link": cfg.Funnel.ChannelLink,
		"support":      cfg.Funnel.SupportContact,
		"content_link": cfg.Funnel.ContentLink,
	})
	if err != nil {
		return nil, fmt.Errorf("bot: funnel script: %w", err)
	}

	a := &App{
		cfg:       cfg,
		script:    script,
		messenger: NewMessenger(),
		states:    state.NewMemory(),
		tracker: analytics.New(analytics.Config{
			MeasurementID: cfg.Analytics.MeasurementID,
			APISecret:     cfg.Analytics.APISecret,
			Endpoint:      cfg.Analytics.Endpoint,
		}),
	}

	accessStore := access.NewStore()
	notifier := access.NewNotifier(accessStore, a.messenger, cfg.AdminIDs, script.Operator)
	a.dialogue = access.NewDialogue(accessStore, a.messenger, access.DialogueOptions{
		IsOperator:  cfg.IsAdmin,
		ChannelLink: cfg.Funnel.ChannelLink,
		Texts:       script.Operator,
	})

	ledger := payment.NewLedger()
	var client *payment.Client
	if cfg.Payment.Enabled {
		client = payment.NewClient(payment.Config{
			APIURL:      cfg.Payment.APIURL,
			ShopID:      cfg.Payment.ShopID,
			SecretKey:   cfg.Payment.SecretKey,
			Amount:      cfg.Payment.Amount,
			Currency:    cfg.Payment.Currency,
			Description: cfg.Payment.Description,
			PublicURL:   cfg.HTTP.PublicURL,
			Timeout:     cfg.Payment.Timeout,
		}, ledger)
	}

	granter := grant.New(grant.Options{
		Store:     a.states,
		Chat:      a.messenger,
		Notifier:  notifier,
		Analytics: a.tracker,
		Content: grant.Content{
			Media: a.mediaPath(script.Grant.Media),
			Text:  script.Grant.Text,
			Link:  cfg.Funnel.ContentLink,
		},
		Price: grant.Price{
			Amount:   cfg.Payment.Amount,
			Currency: cfg.Payment.Currency,
			Item:     analytics.Item{ID: cfg.Analytics.ItemID, Name: cfg.Analytics.ItemName},
		},
		NoEmail:     script.Texts.NoEmail,
		TicketTitle: script.Texts.PaidTicketTitle,
		Pause:       cfg.Funnel.Pause,
	})
	a.reconciler = reconcile.New(ledger, granter)
	a.override = confirm.NewManualOverride(a.reconciler, a.states, cfg.IsAdmin)

	a.leads = leads.NewRegistry(leadStore(cfg, infra), cfg.Leads.ExtraIDs)
	if err := a.leads.Load(ctx); err != nil {
		logger.Warn(ctx, logger.CompLeads, "leads.load", slog.String("status", "fail"), logger.Err(err))
	}

	deps := flow.Deps{
		Store:     a.states,
		Chat:      a.messenger,
		Notifier:  notifier,
		Analytics: a.tracker,
		Leads:     a.leads,
		MediaDir:  cfg.Funnel.MediaDir,
		Channel:   cfg.Funnel.Channel,
		Pause:     cfg.Funnel.Pause,
	}
	if client != nil {
		deps.Payments = client
	}
	if cfg.Funnel.ReminderAfter > 0 {
		a.reminder, err = reminder.New(cfg.Funnel.ReminderAfter, func(ctx context.Context, userID int64) error {
			return a.engine.Remind(ctx, userID)
		})
		if err != nil {
			return nil, fmt.Errorf("bot: reminder: %w", err)
		}
		deps.Reminder = a.reminder
	}
	if a.engine, err = flow.NewEngine(script, deps); err != nil {
		return nil, fmt.Errorf("bot: funnel engine: %w", err)
	}

	var checker confirm.StatusChecker = payment.Unavailable{}
	if client != nil {
		checker = client
	}
	router, err := httpapi.NewRouter(httpapi.Options{
		Gateway:   cfg.HTTP.Gateway,
		Webhook:   confirm.NewWebhook(a.reconciler, checker, cfg.Payment.VerifyWebhook),
		Return:    confirm.NewReturn(ledger, checker, a.reconciler),
		Messenger: a.messenger,
		SiteRequest: httpapi.SiteRequestOptions{
			APIKey:         cfg.SiteRequest.APIKey,
			AllowedOrigins: cfg.SiteRequest.AllowedOrigins,
			Recipients:     cfg.SiteRequest.Recipients,
			Title:          cfg.SiteRequest.Title,
			PerMinute:      cfg.SiteRequest.PerMinute,
		},
	})
	if err != nil {
		return nil, err
	}
	a.server = httpapi.NewServer(cfg.HTTP.Listen, router)

	logger.Info(ctx, logger.CompFlow, "app.wired",
		slog.Bool("payments", client != nil),
		slog.Bool("analytics", cfg.Analytics.MeasurementID != ""),
		slog.Bool("reminder", a.reminder != nil),
		slog.Int("operators", len(cfg.AdminIDs)),
		slog.Int("actions", len(script.Actions)),
	)
	return a, nil
}

func leadStore(cfg *coreconfig.Config, infra *bootstrap.Result) leads.Store {
	switch {
	case infra != nil && infra.DB != nil:
		return leads.NewPostgresStore(infra.DB)
	case cfg.Leads.File != "":
		return leads.NewFileStore(cfg.Leads.File)
	}
	return nil
}

func (a *App) mediaPath(name string) string {
	if name == "" || filepath.IsAbs(name) || a.cfg.Funnel.MediaDir == "" {
		return name
	}
	return filepath.Join(a.cfg.Funnel.MediaDir, name)
}

func (a *App) start(ctx context.Context, rt coretelegram.Runtime) error {
	a.messenger.Attach(rt.Bot)
	a.dispatcher = rt.Dispatcher
	if a.reminder != nil {
		a.reminder.Start()
	}
	if err := a.server.Start(ctx); err != nil {
		return fmt.Errorf("bot: http server: %w", err)
	}
	return nil
}

func (a *App) stop(ctx context.Context, _ coretelegram.Runtime) error {
	var errs []error
	errs = append(errs, a.server.Shutdown(ctx))
	if a.reminder != nil {
		errs = append(errs, a.reminder.Shutdown())
	}
	if c, ok := a.tracker.(*analytics.Client); ok {
		c.Close()
	}
	return errors.Join(errs...)
}
