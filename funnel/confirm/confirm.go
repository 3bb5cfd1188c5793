// Package confirm turns external confirmation signals into reconciliation calls.
package confirm

import (
	"context"

	"github.com/m3rciful/funnelbot/funnel/payment"
	"github.com/m3rciful/funnelbot/funnel/reconcile"
)

// Reconciler is the part of reconcile.Reconciler the adapters use.
type Reconciler interface {
	Reconcile(ctx context.Context, paymentID string, hintUserID int64) (reconcile.Outcome, error)
	Override(ctx context.Context, userID int64, paymentID string) error
}

// StatusChecker performs a live gateway status lookup.
type StatusChecker interface {
	PaymentStatus(ctx context.Context, paymentID string) (payment.Status, error)
}

// OrderLookup resolves return-redirect order ids.
type OrderLookup interface {
	PaymentForOrder(orderID string) (string, bool)
}

// Verdict is what an adapter concluded; pages and replies are chosen from it.
type Verdict string

const (
	VerdictGranted    Verdict = "granted"
	VerdictDuplicate  Verdict = "already_processed"
	VerdictUnresolved Verdict = "unresolved"
	VerdictIgnored    Verdict = "ignored"
	VerdictPending    Verdict = "pending"
	VerdictFailed     Verdict = "fail"
)

// Confirmed reports whether the payment is known to be fulfilled.
func (v Verdict) Confirmed() bool { return v == VerdictGranted || v == VerdictDuplicate }

func fromOutcome(o reconcile.Outcome) Verdict {
	switch o {
	case reconcile.Granted:
		return VerdictGranted
	case reconcile.AlreadyProcessed:
		return VerdictDuplicate
	default:
		return VerdictUnresolved
	}
}
