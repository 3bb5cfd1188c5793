// Package analytics sends funnel events to the GA4 measurement protocol.
package analytics

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/m3rciful/funnelbot/core/logger"
)

// Event is one measurement protocol event.
type Event struct {
	Name   string
	Params map[string]any
}

// Tracker accepts events. Delivery is best effort.
type Tracker interface {
	Track(ctx context.Context, userID int64, ev Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Track(context.Context, int64, Event) {}

// Config holds the GA4 credentials.
type Config struct {
	MeasurementID string
	APISecret     string
	Endpoint      string
	Timeout       time.Duration
}

// Enabled reports whether events can be delivered.
func (c Config) Enabled() bool { return c.MeasurementID != "" && c.APISecret != "" }

type payload struct {
	ClientID string         `json:"client_id"`
	Events   []eventPayload `json:"events"`
}

type eventPayload struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// Client posts events in the background.
type Client struct {
	http *resty.Client
	cfg  Config
	now  func() time.Time
	wg   sync.WaitGroup
}

// New returns a Tracker for cfg: a Client when configured, Nop otherwise.
func New(cfg Config) Tracker {
	if !cfg.Enabled() {
		logger.Warn(context.Background(), logger.CompAnalytics, "analytics.disabled", slog.String("cause", "not_configured"))
		return Nop{}
	}
	return NewClient(cfg)
}

// NewClient builds a GA4 client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	hc := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetQueryParams(map[string]string{
			"measurement_id": cfg.MeasurementID,
			"api_secret":     cfg.APISecret,
		})
	return &Client{http: hc, cfg: cfg, now: time.Now}
}

// Track sends ev without blocking the caller.
func (c *Client) Track(ctx context.Context, userID int64, ev Event) {
	params := map[string]any{
		"engagement_time_msec": "100",
		"session_id":           strconv.FormatInt(c.now().UnixMilli(), 10),
	}
	for k, v := range ev.Params {
		params[k] = v
	}
	body := payload{
		ClientID: strconv.FormatInt(userID, 10),
		Events:   []eventPayload{{Name: ev.Name, Params: params}},
	}
	ctx = context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(c.cfg.Endpoint)
		if err == nil && resp.IsError() {
			logger.Warn(ctx, logger.CompAnalytics, "analytics.rejected",
				slog.String("status", "fail"),
				slog.String("action", ev.Name),
				slog.Int("http_code", resp.StatusCode()),
			)
			return
		}
		if err != nil {
			logger.Warn(ctx, logger.CompAnalytics, "analytics.send_failed",
				slog.String("status", "fail"),
				slog.String("action", ev.Name),
				logger.Err(err),
			)
			return
		}
		logger.Debug(ctx, logger.CompAnalytics, "analytics.sent", slog.String("action", ev.Name))
	}()
}

// Close waits for in-flight events.
func (c *Client) Close() {
	c.wg.Wait()
}
