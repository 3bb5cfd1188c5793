// Package payment talks to the YooKassa API and keeps the pending payment ledger.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel"
)

// Status is the gateway-side payment status.
type Status string

const (
	StatusPending           Status = "pending"
	StatusWaitingForCapture Status = "waiting_for_capture"
	StatusSucceeded         Status = "succeeded"
	StatusCanceled          Status = "canceled"
)

// Config holds the gateway settings.
type Config struct {
	APIURL      string
	ShopID      string
	SecretKey   string
	Amount      string
	Currency    string
	Description string
	// PublicURL is the base of the return redirect: PublicURL + "/payment/return?order_id=".
	PublicURL string
	Timeout   time.Duration
}

// Payment is a freshly created payment request.
type Payment struct {
	PaymentID  string
	PaymentURL string
	OrderID    string
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type createRequest struct {
	Amount       amount            `json:"amount"`
	Confirmation confirmation      `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata"`
}

type paymentResponse struct {
	ID           string            `json:"id"`
	Status       Status            `json:"status"`
	Confirmation *confirmation     `json:"confirmation"`
	Metadata     map[string]string `json:"metadata"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Client creates payments and looks up their status.
type Client struct {
	http   *resty.Client
	cfg    Config
	ledger *Ledger
	newID  func() string
}

// NewClient builds a gateway client recording created payments into ledger.
func NewClient(cfg Config, ledger *Ledger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if ledger == nil {
		ledger = NewLedger()
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetBasicAuth(cfg.ShopID, cfg.SecretKey).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: hc, cfg: cfg, ledger: ledger, newID: uuid.NewString}
}

// Ledger exposes the pending payment ledger.
func (c *Client) Ledger() *Ledger { return c.ledger }

// Amount returns the configured price and currency.
func (c *Client) Amount() (string, string) { return c.cfg.Amount, c.cfg.Currency }

// CreatePayment mints a payment for userID. Every call uses a new idempotency key.
func (c *Client) CreatePayment(ctx context.Context, userID int64) (Payment, error) {
	orderID := c.newID()
	idempotenceKey := c.newID()
	ctx = logger.WithOrder(ctx, orderID)

	body := createRequest{
		Amount: amount{Value: c.cfg.Amount, Currency: c.cfg.Currency},
		Confirmation: confirmation{
			Type:      "redirect",
			ReturnURL: c.cfg.PublicURL + "/payment/return?order_id=" + orderID,
		},
		Capture:     true,
		Description: c.cfg.Description,
		Metadata: map[string]string{
			"user_id":  strconv.FormatInt(userID, 10),
			"order_id": orderID,
		},
	}

	start := time.Now()
	var out paymentResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotence-Key", idempotenceKey).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/payments")
	if err != nil {
		return Payment{}, c.fail(ctx, "create payment", 0, err, start)
	}
	if resp.IsError() {
		return Payment{}, c.fail(ctx, "create payment", resp.StatusCode(), describe(apiErr, resp), start)
	}
	if out.ID == "" || out.Confirmation == nil || out.Confirmation.ConfirmationURL == "" {
		return Payment{}, c.fail(ctx, "create payment", resp.StatusCode(), fmt.Errorf("malformed confirmation"), start)
	}

	c.ledger.Record(out.ID, orderID, userID)
	logger.Info(logger.WithPayment(ctx, out.ID), logger.CompPayments, "payment.created",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("amount", c.cfg.Amount),
		slog.String("currency", c.cfg.Currency),
		slog.Duration("duration", logger.Took(start)),
	)
	return Payment{PaymentID: out.ID, PaymentURL: out.Confirmation.ConfirmationURL, OrderID: orderID}, nil
}

// PaymentStatus fetches the live status of paymentID.
func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (Status, error) {
	ctx = logger.WithPayment(ctx, paymentID)
	start := time.Now()
	var out paymentResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/payments/{id}")
	if err != nil {
		return "", c.fail(ctx, "get payment", 0, err, start)
	}
	if resp.IsError() {
		return "", c.fail(ctx, "get payment", resp.StatusCode(), describe(apiErr, resp), start)
	}
	if out.Status == "" {
		return "", c.fail(ctx, "get payment", resp.StatusCode(), fmt.Errorf("empty status"), start)
	}
	logger.Debug(ctx, logger.CompPayments, "payment.status",
		slog.String("gateway_status", string(out.Status)),
		slog.Duration("duration", logger.Took(start)),
	)
	return out.Status, nil
}

// Unavailable answers status lookups while payments are disabled. Every
// lookup fails, so no confirmation can be trusted.
type Unavailable struct{}

func (Unavailable) PaymentStatus(context.Context, string) (Status, error) {
	return "", &funnel.GatewayError{Op: "get payment", Err: errors.New("payments disabled")}
}

func (c *Client) fail(ctx context.Context, op string, status int, err error, start time.Time) error {
	gwErr := &funnel.GatewayError{Op: op, Status: status, Err: err}
	logger.Warn(ctx, logger.CompPayments, "payment.gateway_error",
		slog.String("status", "fail"),
		slog.String("action", op),
		slog.Int("http_code", status),
		logger.Err(err),
		slog.Duration("duration", logger.Took(start)),
	)
	return gwErr
}

func describe(apiErr apiError, resp *resty.Response) error {
	if apiErr.Description != "" {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Description)
	}
	return fmt.Errorf("unexpected response %s", http.StatusText(resp.StatusCode()))
}
