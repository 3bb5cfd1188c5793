package confirm

import (
	"context"
	"log/slog"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel/payment"
)

// Return handles the browser coming back from the payment page.
type Return struct {
	orders OrderLookup
	status StatusChecker
	rec    Reconciler
}

// NewReturn builds the return-redirect adapter.
func NewReturn(orders OrderLookup, status StatusChecker, rec Reconciler) *Return {
	return &Return{orders: orders, status: status, rec: rec}
}

// Handle resolves orderID locally, checks the live status and reconciles on
// success. Client-supplied status is never consulted. A failed lookup is pending.
func (r *Return) Handle(ctx context.Context, orderID string) (Verdict, error) {
	ctx = logger.WithOrder(ctx, orderID)
	paymentID, ok := r.orders.PaymentForOrder(orderID)
	if orderID == "" || !ok {
		logger.Info(ctx, logger.CompReconcile, "return.unknown_order", slog.String("outcome", string(VerdictPending)))
		return VerdictPending, nil
	}
	ctx = logger.WithPayment(ctx, paymentID)

	st, err := r.status.PaymentStatus(ctx, paymentID)
	if err != nil {
		return VerdictPending, err
	}
	switch st {
	case payment.StatusSucceeded:
	case payment.StatusCanceled:
		return VerdictFailed, nil
	default:
		return VerdictPending, nil
	}
	out, err := r.rec.Reconcile(ctx, paymentID, 0)
	return fromOutcome(out), err
}
