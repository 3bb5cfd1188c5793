// Package reconcile decides, exactly once per payment, whether a confirmation leads to a grant.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel"
)

// Outcome is the result of one reconciliation attempt.
type Outcome string

const (
	Granted          Outcome = "granted"
	AlreadyProcessed Outcome = "already_processed"
	Unresolved       Outcome = "unresolved"
)

// Granter performs the grant side effects.
type Granter interface {
	Grant(ctx context.Context, userID int64, paymentID string) error
}

// Ledger resolves payment owners recorded at creation time.
type Ledger interface {
	UserFor(paymentID string) (int64, bool)
	Settle(paymentID string)
}

// Reconciler owns the processed payment set and is the only caller of the Granter.
type Reconciler struct {
	mu        sync.Mutex
	processed map[string]time.Time

	ledger  Ledger
	granter Granter
}

// New builds a Reconciler.
func New(ledger Ledger, granter Granter) *Reconciler {
	return &Reconciler{
		processed: make(map[string]time.Time),
		ledger:    ledger,
		granter:   granter,
	}
}

// Reconcile grants paymentID unless it was processed before. The ledger owner
// wins over hintUserID, which usually comes from gateway metadata; hintUserID
// of zero means no hint. Grant delivery errors are returned with Granted.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID string, hintUserID int64) (Outcome, error) {
	if paymentID == "" {
		return Unresolved, &funnel.ValidationError{Field: "payment_id", Reason: "empty"}
	}
	ctx = logger.WithPayment(ctx, paymentID)

	r.mu.Lock()
	if _, done := r.processed[paymentID]; done {
		r.mu.Unlock()
		logger.Info(ctx, logger.CompReconcile, "payment.reconciled", slog.String("outcome", string(AlreadyProcessed)))
		return AlreadyProcessed, nil
	}
	userID, source := r.resolve(paymentID, hintUserID)
	if userID == 0 {
		r.mu.Unlock()
		logger.Warn(ctx, logger.CompReconcile, "payment.unresolved",
			slog.String("outcome", string(Unresolved)),
			slog.String("cause", "no_owner"),
		)
		return Unresolved, &funnel.UnresolvedPaymentError{PaymentID: paymentID}
	}
	r.processed[paymentID] = time.Now()
	r.mu.Unlock()

	ctx = logger.WithUser(ctx, userID)
	err := r.granter.Grant(ctx, userID, paymentID)
	r.ledger.Settle(paymentID)

	logger.Info(ctx, logger.CompReconcile, "payment.reconciled",
		slog.String("status", logger.Status(err)),
		slog.String("outcome", string(Granted)),
		slog.String("cause", source),
		logger.Err(err),
	)
	return Granted, err
}

func (r *Reconciler) resolve(paymentID string, hintUserID int64) (int64, string) {
	if id, ok := r.ledger.UserFor(paymentID); ok && id != 0 {
		return id, "ledger"
	}
	if hintUserID != 0 {
		return hintUserID, "metadata"
	}
	return 0, ""
}

// Override grants userID without a gateway confirmation. A known paymentID is
// marked processed first so a later webhook for it stays a no-op. Override
// itself is not deduplicated: an operator may re-run it.
func (r *Reconciler) Override(ctx context.Context, userID int64, paymentID string) error {
	ctx = logger.WithUser(ctx, userID)
	if paymentID != "" {
		ctx = logger.WithPayment(ctx, paymentID)
		r.mu.Lock()
		r.processed[paymentID] = time.Now()
		r.mu.Unlock()
	}
	err := r.granter.Grant(ctx, userID, paymentID)
	if paymentID != "" {
		r.ledger.Settle(paymentID)
	}
	logger.Info(ctx, logger.CompReconcile, "payment.override",
		slog.String("status", logger.Status(err)),
		slog.String("outcome", string(Granted)),
		logger.Err(err),
	)
	return err
}

// Processed reports whether paymentID was already fulfilled.
func (r *Reconciler) Processed(paymentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.processed[paymentID]
	return ok
}
