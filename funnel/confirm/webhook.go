package confirm

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel"
	"github.com/m3rciful/funnelbot/funnel/payment"
)

// EventPaymentSucceeded is the only notification that leads to a grant.
const EventPaymentSucceeded = "payment.succeeded"

// Notification is the gateway webhook body.
type Notification struct {
	Event  string `json:"event"`
	Object struct {
		ID       string         `json:"id"`
		Status   string         `json:"status"`
		Metadata map[string]any `json:"metadata"`
	} `json:"object"`
}

// ParseNotification decodes a webhook body. Only undecodable input fails.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return n, &funnel.ValidationError{Field: "notification", Reason: err.Error()}
	}
	return n, nil
}

// HintUserID extracts the user id the payment was created for from metadata.
// Keys are tried in order; values that are not positive integers are skipped.
func (n Notification) HintUserID() int64 {
	for _, key := range []string{"user_id", "chatId", "chat_id"} {
		switch v := n.Object.Metadata[key].(type) {
		case string:
			if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && id > 0 {
				return id
			}
		case float64:
			if v > 0 && v == math.Trunc(v) && v <= math.MaxInt64 {
				return int64(v)
			}
		}
	}
	return 0
}

// Webhook handles gateway push notifications.
type Webhook struct {
	rec    Reconciler
	status StatusChecker
	verify bool
}

// NewWebhook builds the adapter. With verify set every notification is
// re-checked against the gateway before reconciling.
func NewWebhook(rec Reconciler, status StatusChecker, verify bool) *Webhook {
	return &Webhook{rec: rec, status: status, verify: verify && status != nil}
}

// Handle processes a parsed notification. The caller acknowledges the gateway
// regardless of the verdict; the error is for logging only.
func (w *Webhook) Handle(ctx context.Context, n Notification) (Verdict, error) {
	paymentID := n.Object.ID
	ctx = logger.WithPayment(ctx, paymentID)
	if n.Event != EventPaymentSucceeded || paymentID == "" {
		logger.Info(ctx, logger.CompReconcile, "webhook.ignored",
			slog.String("outcome", string(VerdictIgnored)),
			slog.String("action", n.Event),
		)
		return VerdictIgnored, nil
	}
	if w.verify {
		st, err := w.status.PaymentStatus(ctx, paymentID)
		if err != nil {
			return VerdictPending, err
		}
		if st != payment.StatusSucceeded {
			logger.Warn(ctx, logger.CompReconcile, "webhook.unverified",
				slog.String("outcome", string(VerdictPending)),
				slog.String("gateway_status", string(st)),
			)
			return VerdictPending, nil
		}
	}
	out, err := w.rec.Reconcile(ctx, paymentID, n.HintUserID())
	return fromOutcome(out), err
}
